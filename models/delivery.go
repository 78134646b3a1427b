package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind классифицирует ошибку отправки по тому, как на неё нужно реагировать.
type ErrorKind string

const (
	// ErrKindRateLimited — сервер потребовал подождать указанное время (FLOOD_WAIT).
	ErrKindRateLimited ErrorKind = "rate_limited"
	// ErrKindPeerFlood — предупреждение о скором бане, аккаунт должен остыть.
	ErrKindPeerFlood ErrorKind = "peer_flood"
	// ErrKindTargetBanned — запрет писать в конкретный чат, остальные цели не затронуты.
	ErrKindTargetBanned ErrorKind = "target_banned"
	// ErrKindAuthLost — сессия аккаунта недействительна, нужна повторная авторизация.
	ErrKindAuthLost ErrorKind = "auth_lost"
	// ErrKindTransient — временная сетевая ошибка, допускает повтор.
	ErrKindTransient ErrorKind = "transient"
)

// DeliveryError — классифицированная ошибка отправки.
// Wait заполняется только для ErrKindRateLimited и равен требуемой паузе.
type DeliveryError struct {
	Kind ErrorKind
	Wait time.Duration
	Err  error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// KindOf извлекает классификацию из ошибки. Неклассифицированные ошибки
// считаются временными, чтобы не терять попытки из-за неожиданных сбоев.
func KindOf(err error) ErrorKind {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ErrKindTransient
}

// Статусы записи журнала доставки.
const (
	AttemptSuccess = "success"
	AttemptFailed  = "failed"
	AttemptSkipped = "skipped"
)

// DeliveryAttempt — запись журнала об одной попытке отправки в целевой чат.
type DeliveryAttempt struct {
	ID         int       `json:"id"`
	CampaignID int       `json:"campaign_id"`
	Target     string    `json:"target"`
	Attempt    int       `json:"attempt"`
	Status     string    `json:"status"`
	ErrorKind  string    `json:"error_kind"`
	CreatedAt  time.Time `json:"created_at"`
}

// Content — то, что кампания отправляет в каждый целевой чат.
// При непустом StorageChannel сообщение пересылается из канала-хранилища,
// иначе отправляется готовый текст.
type Content struct {
	Text             string `json:"text"`
	StorageChannel   string `json:"storage_channel"`
	StorageMessageID int    `json:"storage_message_id"`
}

// Length оценивает объём контента для расчёта длительности имитации набора.
// Для пересылаемых сообщений точная длина неизвестна, берём фиксированную оценку.
func (c Content) Length() int {
	if c.StorageChannel != "" {
		return 200
	}
	return len([]rune(c.Text))
}
