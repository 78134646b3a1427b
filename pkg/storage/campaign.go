package storage

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"bump_go/models"

	"github.com/lib/pq"
)

// CreateCampaign сохраняет новую кампанию рассылки и возвращает её с заполненным ID.
func (db *DB) CreateCampaign(c models.Campaign) (*models.Campaign, error) {
	query := `
              INSERT INTO campaigns (account_id, name, storage_channel, storage_message_id, content_text,
                                     target_chats, schedule_type, schedule_time, status, next_run_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
              RETURNING id, created_at
       `

	err := db.Conn.QueryRow(
		query,
		c.AccountID,
		c.Name,
		c.StorageChannel,
		c.StorageMessageID,
		c.ContentText,
		pq.Array(c.TargetChats),
		c.ScheduleType,
		c.ScheduleTime,
		c.Status,
		c.NextRunAt,
	).Scan(&c.ID, &c.CreatedAt)

	if err != nil {
		log.Printf("[DB ERROR] Ошибка при создании кампании: %v", err)
		return nil, err
	}

	log.Printf("[DB INFO] Кампания %q создана с ID=%d", c.Name, c.ID)
	return &c, nil
}

const campaignColumns = `id, account_id, name, storage_channel, storage_message_id, content_text,
              target_chats, schedule_type, schedule_time, status, next_run_at, created_at, last_run_at,
              attempts, successes, failures`

// scanCampaign читает одну строку выборки кампании с учётом NULL-полей.
func scanCampaign(row interface{ Scan(...any) error }) (*models.Campaign, error) {
	var c models.Campaign
	var nextRun, lastRun sql.NullTime

	if err := row.Scan(
		&c.ID,
		&c.AccountID,
		&c.Name,
		&c.StorageChannel,
		&c.StorageMessageID,
		&c.ContentText,
		pq.Array(&c.TargetChats),
		&c.ScheduleType,
		&c.ScheduleTime,
		&c.Status,
		&nextRun,
		&c.CreatedAt,
		&lastRun,
		&c.Attempts,
		&c.Successes,
		&c.Failures,
	); err != nil {
		return nil, err
	}

	if nextRun.Valid {
		c.NextRunAt = &nextRun.Time
	}
	if lastRun.Valid {
		c.LastRunAt = &lastRun.Time
	}
	return &c, nil
}

// GetCampaignByID возвращает кампанию по идентификатору.
func (db *DB) GetCampaignByID(id int) (*models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`
	return scanCampaign(db.Conn.QueryRow(query, id))
}

// GetActiveCampaigns возвращает все кампании, которые планировщик должен учитывать
// при расчёте расписания. Приостановленные кампании в выборку не попадают.
func (db *DB) GetActiveCampaigns() ([]models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE status <> $1 ORDER BY account_id, id`

	rows, err := db.Conn.Query(query, models.CampaignPaused)
	if err != nil {
		log.Printf("[DB ERROR] Failed to get campaigns: %v", err)
		return nil, fmt.Errorf("database error")
	}
	defer rows.Close()

	var campaigns []models.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			log.Printf("[DB WARN] Failed to scan campaign: %v", err)
			continue
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, nil
}

// UpdateCampaignNextRun сохраняет пересчитанный момент следующего запуска.
// lastRun передаётся только после фактического выполнения, иначе nil.
func (db *DB) UpdateCampaignNextRun(id int, nextRun time.Time, lastRun *time.Time) error {
	if lastRun != nil {
		_, err := db.Conn.Exec(
			"UPDATE campaigns SET next_run_at = $1, last_run_at = $2 WHERE id = $3",
			nextRun, lastRun, id,
		)
		return err
	}
	_, err := db.Conn.Exec(
		"UPDATE campaigns SET next_run_at = $1 WHERE id = $2",
		nextRun, id,
	)
	return err
}

// UpdateCampaignStatus переводит кампанию между active/paused/testing.
func (db *DB) UpdateCampaignStatus(id int, status string) error {
	_, err := db.Conn.Exec(
		"UPDATE campaigns SET status = $1 WHERE id = $2",
		status, id,
	)
	return err
}

// IncrementCampaignStats добавляет счётчики выполненного прогона к накопленным.
// Счётчики отражают ровно те попытки, которые были сделаны.
func (db *DB) IncrementCampaignStats(id, attempts, successes, failures int) error {
	_, err := db.Conn.Exec(
		`UPDATE campaigns
                 SET attempts = attempts + $1, successes = successes + $2, failures = failures + $3
                 WHERE id = $4`,
		attempts, successes, failures, id,
	)
	if err != nil {
		log.Printf("[DB ERROR] Не удалось обновить счётчики кампании %d: %v", id, err)
	}
	return err
}

// DeleteCampaign удаляет кампанию вместе с её журналом доставки.
func (db *DB) DeleteCampaign(id int) error {
	if _, err := db.Conn.Exec("DELETE FROM delivery_log WHERE campaign_id = $1", id); err != nil {
		return err
	}
	_, err := db.Conn.Exec("DELETE FROM campaigns WHERE id = $1", id)
	return err
}
