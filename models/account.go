package models

import "time"

// Account описывает авторизованный аккаунт, от имени которого выполняются рассылки.
// Поля флуд-бана и прогрева заполняются трекером здоровья аккаунтов.
type Account struct {
	ID            int    `json:"id"`
	Phone         string `json:"phone"`
	Name          string `json:"name"`
	ApiID         int    `json:"api_id"`
	ApiHash       string `json:"api_hash"`
	IsAuthorized  bool   `json:"is_authorized"`
	PhoneCodeHash string `json:"phone_code_hash"`
	ProxyID       *int   `json:"proxy_id"`
	Proxy         *Proxy `json:"proxy"`

	// FloodWaitUntil — момент окончания остывания после PEER_FLOOD.
	FloodWaitUntil *time.Time `json:"floodwait_until"`
	// PeerFloodTime — момент последнего зафиксированного PEER_FLOOD.
	PeerFloodTime *time.Time `json:"peer_flood_time"`
	// WarmupUntil — конец периода прогрева после остывания.
	WarmupUntil *time.Time `json:"warmup_until"`
	// LastOnlineSimulation — время последней имитации активности (чтение чата).
	LastOnlineSimulation *time.Time `json:"last_online_simulation"`
}
