package models

import (
	"strconv"
	"time"
)

// Статусы кампании в БД.
const (
	CampaignActive  = "active"
	CampaignPaused  = "paused"
	CampaignTesting = "testing"
)

// Виды расписания кампании. Формат schedule_time зависит от вида:
// daily — "14:30", weekly — "Monday 14:30", interval — "every 3 minutes".
const (
	ScheduleImmediate = "immediate"
	ScheduleDaily     = "daily"
	ScheduleWeekly    = "weekly"
	ScheduleHourly    = "hourly"
	ScheduleInterval  = "interval"
)

// Campaign описывает повторяющуюся задачу рассылки: откуда берётся контент,
// куда он отправляется и по какому расписанию.
type Campaign struct {
	ID        int    `json:"id"`
	AccountID int    `json:"account_id"`
	Name      string `json:"name"`

	// Контент: либо ссылка на сообщение в канале-хранилище, либо готовый текст.
	StorageChannel   string `json:"storage_channel"`
	StorageMessageID int    `json:"storage_message_id"`
	ContentText      string `json:"content_text"`

	// Упорядоченный список целевых чатов; порядок отправки строго сохраняется.
	TargetChats []string `json:"target_chats"`

	ScheduleType string `json:"schedule_type"`
	ScheduleTime string `json:"schedule_time"`

	Status    string     `json:"status"`
	NextRunAt *time.Time `json:"next_run_at"`
	CreatedAt time.Time  `json:"created_at"`
	LastRunAt *time.Time `json:"last_run_at"`

	Attempts  int `json:"attempts"`
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
}

// Content возвращает контент кампании в виде, пригодном для отправки.
func (c Campaign) Content() Content {
	return Content{
		Text:             c.ContentText,
		StorageChannel:   c.StorageChannel,
		StorageMessageID: c.StorageMessageID,
	}
}

// SourceKey идентифицирует группу кампаний с одинаковым источником сообщения.
// Кампании с буквальным текстом группируются по самому тексту.
func (c Campaign) SourceKey() string {
	if c.StorageChannel != "" {
		return c.StorageChannel + "#" + strconv.Itoa(c.StorageMessageID)
	}
	return "text:" + c.ContentText
}
