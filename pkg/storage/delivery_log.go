package storage

import (
	"log"

	"bump_go/models"
)

// LogDeliveryAttempt фиксирует в журнале одну попытку отправки в целевой чат.
// Журнал является источником статистики по кампании, поэтому пишем каждую попытку.
func (db *DB) LogDeliveryAttempt(a models.DeliveryAttempt) error {
	_, err := db.Conn.Exec(
		`INSERT INTO delivery_log (campaign_id, target, attempt, status, error_kind)
                 VALUES ($1, $2, $3, $4, $5)`,
		a.CampaignID, a.Target, a.Attempt, a.Status, a.ErrorKind,
	)
	if err != nil {
		log.Printf("[DB ERROR] Не удалось записать попытку доставки: %v", err)
	}
	return err
}

// GetCampaignStatistics собирает счётчики кампании и последнюю ошибку по каждой цели.
func (db *DB) GetCampaignStatistics(campaignID int) (*models.CampaignStatistics, error) {
	stat := models.CampaignStatistics{CampaignID: campaignID}

	err := db.Conn.QueryRow(
		"SELECT attempts, successes, failures FROM campaigns WHERE id = $1",
		campaignID,
	).Scan(&stat.Attempts, &stat.Successes, &stat.Failures)
	if err != nil {
		return nil, err
	}

	// DISTINCT ON оставляет по одной, самой свежей, ошибке на каждый целевой чат
	rows, err := db.Conn.Query(
		`SELECT DISTINCT ON (target) target, error_kind, created_at
                 FROM delivery_log
                 WHERE campaign_id = $1 AND status = $2
                 ORDER BY target, created_at DESC`,
		campaignID, models.AttemptFailed,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var e models.TargetLastError
		if err := rows.Scan(&e.Target, &e.ErrorKind, &e.At); err != nil {
			log.Printf("[DB WARN] Failed to scan delivery log row: %v", err)
			continue
		}
		stat.LastErrors = append(stat.LastErrors, e)
	}
	return &stat, nil
}
