package storage

import (
	"time"

	"bump_go/models"
)

// CalculateStatistics вычисляет статистику за текущие сутки и сохраняет её
// в таблицу statistics. Повторный вызов за те же сутки обновляет запись.
func (db *DB) CalculateStatistics() (*models.Statistics, error) {
	var stat models.Statistics

	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)
	stat.Date = dayStart

	// Количество авторизованных аккаунтов
	if err := db.Conn.QueryRow("SELECT COUNT(*) FROM accounts WHERE is_authorized = true").Scan(&stat.AccountAll); err != nil {
		return nil, err
	}

	// Количество аккаунтов, находящихся в периоде остывания
	if err := db.Conn.QueryRow("SELECT COUNT(*) FROM accounts WHERE floodwait_until IS NOT NULL AND floodwait_until > NOW()").Scan(&stat.AccountFloodBan); err != nil {
		return nil, err
	}

	// Количество неприостановленных кампаний
	if err := db.Conn.QueryRow("SELECT COUNT(*) FROM campaigns WHERE status <> $1", models.CampaignPaused).Scan(&stat.CampaignActive); err != nil {
		return nil, err
	}

	// Попытки и исходы за текущие сутки из журнала доставки
	if err := db.Conn.QueryRow(
		"SELECT COUNT(*) FROM delivery_log WHERE created_at >= $1 AND created_at < $2",
		dayStart, dayEnd,
	).Scan(&stat.SendAll); err != nil {
		return nil, err
	}
	if err := db.Conn.QueryRow(
		"SELECT COUNT(*) FROM delivery_log WHERE status = $1 AND created_at >= $2 AND created_at < $3",
		models.AttemptSuccess, dayStart, dayEnd,
	).Scan(&stat.SuccessAll); err != nil {
		return nil, err
	}
	if err := db.Conn.QueryRow(
		"SELECT COUNT(*) FROM delivery_log WHERE status = $1 AND created_at >= $2 AND created_at < $3",
		models.AttemptFailed, dayStart, dayEnd,
	).Scan(&stat.FailureAll); err != nil {
		return nil, err
	}

	err := db.Conn.QueryRow(
		"INSERT INTO statistics (stat_date, send_all, success_all, failure_all, campaign_active, account_floodban, account_all) VALUES ($1, $2, $3, $4, $5, $6, $7) "+
			"ON CONFLICT (stat_date) DO UPDATE SET send_all = EXCLUDED.send_all, success_all = EXCLUDED.success_all, failure_all = EXCLUDED.failure_all, campaign_active = EXCLUDED.campaign_active, account_floodban = EXCLUDED.account_floodban, account_all = EXCLUDED.account_all "+
			"RETURNING id, stat_date",
		stat.Date, stat.SendAll, stat.SuccessAll, stat.FailureAll, stat.CampaignActive, stat.AccountFloodBan, stat.AccountAll,
	).Scan(&stat.ID, &stat.Date)
	if err != nil {
		return nil, err
	}

	return &stat, nil
}
