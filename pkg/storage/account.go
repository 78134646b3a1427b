package storage

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"bump_go/models"
)

// CreateAccount записывает аккаунт в БД, чтобы в дальнейшем
// не приходилось заново вводить параметры.
func (db *DB) CreateAccount(account models.Account) (*models.Account, error) {
	query := `
              INSERT INTO accounts (phone, name, api_id, api_hash, phone_code_hash, proxy_id)
              VALUES ($1, $2, $3, $4, $5, $6)
              RETURNING id
       `

	err := db.Conn.QueryRow(
		query,
		account.Phone,
		account.Name,
		account.ApiID,
		account.ApiHash,
		account.PhoneCodeHash,
		account.ProxyID,
	).Scan(&account.ID)

	if err != nil {
		log.Printf("[DB ERROR] Ошибка при создании аккаунта: %v", err)
		return nil, err
	}

	log.Printf("[DB INFO] Аккаунт создан с ID=%d", account.ID)
	return &account, nil
}

const accountColumns = `a.id, a.phone, a.name, a.api_id, a.api_hash, a.phone_code_hash, a.is_authorized, a.proxy_id,
             a.floodwait_until, a.peer_flood_time, a.warmup_until, a.last_online_simulation,
             p.id, p.ip, p.port, p.login, p.password, p.type, p.ipv6, p.account_count, p.is_active`

// scanAccount читает одну строку выборки аккаунта с учётом NULL-полей прокси.
func scanAccount(row interface{ Scan(...any) error }) (*models.Account, error) {
	var account models.Account
	var (
		accountProxyID sql.NullInt64
		proxyID        sql.NullInt64
		proxyIP        sql.NullString
		proxyPort      sql.NullInt64
		proxyLogin     sql.NullString
		proxyPassword  sql.NullString
		proxyType      sql.NullString
		proxyIPv6      sql.NullString
		proxyCount     sql.NullInt64
		proxyActive    sql.NullBool
	)

	if err := row.Scan(
		&account.ID,
		&account.Phone,
		&account.Name,
		&account.ApiID,
		&account.ApiHash,
		&account.PhoneCodeHash,
		&account.IsAuthorized,
		&accountProxyID,
		&account.FloodWaitUntil,
		&account.PeerFloodTime,
		&account.WarmupUntil,
		&account.LastOnlineSimulation,
		&proxyID,
		&proxyIP,
		&proxyPort,
		&proxyLogin,
		&proxyPassword,
		&proxyType,
		&proxyIPv6,
		&proxyCount,
		&proxyActive,
	); err != nil {
		return nil, err
	}

	if accountProxyID.Valid {
		id := int(accountProxyID.Int64)
		account.ProxyID = &id
	}
	if proxyID.Valid {
		account.Proxy = &models.Proxy{
			ID:            int(proxyID.Int64),
			IP:            proxyIP.String,
			Port:          int(proxyPort.Int64),
			Login:         proxyLogin.String,
			Password:      proxyPassword.String,
			Type:          proxyType.String,
			IPv6:          proxyIPv6.String,
			AccountsCount: int(proxyCount.Int64),
			IsActive:      proxyActive,
		}
	}

	return &account, nil
}

// GetAccountByID возвращает аккаунт вместе с привязкой к прокси,
// чтобы сервисы могли работать с полными данными.
func (db *DB) GetAccountByID(id int) (*models.Account, error) {
	query := `
              SELECT ` + accountColumns + `
              FROM accounts a
              LEFT JOIN proxy p ON a.proxy_id = p.id
              WHERE a.id = $1
       `
	return scanAccount(db.Conn.QueryRow(query, id))
}

// GetAccountByPhone ищет аккаунт по номеру, чтобы избежать создания дубликатов.
func (db *DB) GetAccountByPhone(phone string) (*models.Account, error) {
	query := `
              SELECT ` + accountColumns + `
              FROM accounts a
              LEFT JOIN proxy p ON a.proxy_id = p.id
              WHERE a.phone = $1
       `
	return scanAccount(db.Conn.QueryRow(query, phone))
}

// getAccounts возвращает список аккаунтов по произвольному условию WHERE.
// Это позволяет переиспользовать код выборки и не дублировать обработку NULL-полей.
func (db *DB) getAccounts(where string, args ...any) ([]models.Account, error) {
	query := `
      SELECT ` + accountColumns + `
      FROM accounts a
      LEFT JOIN proxy p ON a.proxy_id = p.id
      WHERE ` + where

	rows, err := db.Conn.Query(query, args...)
	if err != nil {
		log.Printf("[DB ERROR] Failed to get accounts: %v", err)
		return nil, fmt.Errorf("database error")
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			log.Printf("[DB WARN] Failed to scan account: %v", err)
			continue
		}
		accounts = append(accounts, *account)
	}
	return accounts, nil
}

// GetAllAccounts возвращает все аккаунты независимо от статуса авторизации.
// Нужен при старте сервиса, чтобы восстановить состояние здоровья целиком,
// включая аккаунты, потерявшие авторизацию до перезапуска.
func (db *DB) GetAllAccounts() ([]models.Account, error) {
	return db.getAccounts("true")
}

// GetAuthorizedAccounts возвращает все авторизованные аккаунты,
// чтобы планировщик мог быстро получить список рабочих сессий.
func (db *DB) GetAuthorizedAccounts() ([]models.Account, error) {
	accounts, err := db.getAccounts("a.is_authorized = true")
	if err == nil {
		log.Printf("[DB INFO] Found %d authorized accounts", len(accounts))
	}
	return accounts, err
}

// MarkAccountAsAuthorized фиксирует факт авторизации, чтобы другие сервисы
// понимали, что сессия активна.
func (db *DB) MarkAccountAsAuthorized(accountID int) error {
	_, err := db.Conn.Exec(
		"UPDATE accounts SET is_authorized = true WHERE id = $1",
		accountID,
	)
	return err
}

// MarkAccountAsUnauthorized сбрасывает флаг авторизации,
// чтобы в БД отражалось фактическое отсутствие рабочей сессии.
func (db *DB) MarkAccountAsUnauthorized(accountID int) error {
	_, err := db.Conn.Exec(
		"UPDATE accounts SET is_authorized = false WHERE id = $1",
		accountID,
	)
	return err
}

// UpdatePhoneCodeHash обновляет hash, чтобы повторно не запрашивать код у пользователя.
func (db *DB) UpdatePhoneCodeHash(accountID int, hash string) error {
	_, err := db.Conn.Exec(
		"UPDATE accounts SET phone_code_hash = $1 WHERE id = $2",
		hash,
		accountID,
	)
	return err
}

// MarkPeerFlood фиксирует срабатывание PEER_FLOOD: аккаунт остывает до until,
// момент срабатывания сохраняется для расчёта окна прогрева.
func (db *DB) MarkPeerFlood(accountID int, until time.Time) error {
	_, err := db.Conn.Exec(
		"UPDATE accounts SET floodwait_until = $1, peer_flood_time = NOW() WHERE id = $2",
		until,
		accountID,
	)
	if err != nil {
		log.Printf("[DB ERROR] Не удалось отметить PEER_FLOOD для аккаунта %d: %v", accountID, err)
	}
	return err
}

// SetWarmupUntil задаёт конец периода прогрева после остывания.
func (db *DB) SetWarmupUntil(accountID int, until time.Time) error {
	_, err := db.Conn.Exec(
		"UPDATE accounts SET warmup_until = $1 WHERE id = $2",
		until,
		accountID,
	)
	return err
}

// UpdateLastOnlineSimulation отмечает время последней имитации активности,
// чтобы можно было оценивать равномерность поведения аккаунта.
func (db *DB) UpdateLastOnlineSimulation(accountID int) error {
	_, err := db.Conn.Exec(
		"UPDATE accounts SET last_online_simulation = NOW() WHERE id = $1",
		accountID,
	)
	return err
}
