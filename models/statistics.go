package models

import "time"

// Statistics отражает запись таблицы statistics с агрегированными данными за конкретную дату.
type Statistics struct {
	ID              int       `json:"id"`
	Date            time.Time `json:"date"`             // Дата, за которую собрана статистика
	SendAll         int       `json:"send_all"`         // Общее количество попыток отправки за сутки
	SuccessAll      int       `json:"success_all"`      // Успешные отправки за сутки
	FailureAll      int       `json:"failure_all"`      // Неуспешные отправки за сутки
	CampaignActive  int       `json:"campaign_active"`  // Количество активных кампаний
	AccountFloodBan int       `json:"account_floodban"` // Количество аккаунтов во флуд-бане
	AccountAll      int       `json:"account_all"`      // Всего авторизованных аккаунтов
}

// CampaignStatistics — счётчики одной кампании вместе с последними ошибками по целям.
type CampaignStatistics struct {
	CampaignID int               `json:"campaign_id"`
	Attempts   int               `json:"attempts"`
	Successes  int               `json:"successes"`
	Failures   int               `json:"failures"`
	LastErrors []TargetLastError `json:"last_errors"`
}

// TargetLastError — последняя классификация ошибки по конкретному целевому чату.
type TargetLastError struct {
	Target    string    `json:"target"`
	ErrorKind string    `json:"error_kind"`
	At        time.Time `json:"at"`
}
