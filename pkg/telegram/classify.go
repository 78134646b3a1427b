package telegram

import (
	"errors"

	"bump_go/models"

	"github.com/gotd/td/session"
	"github.com/gotd/td/tgerr"
)

// Ошибки Telegram, означающие запрет писать в конкретный чат.
// Такие ошибки терминальны для цели, но не для аккаунта.
var targetBannedTypes = []string{
	"CHAT_WRITE_FORBIDDEN",
	"USER_BANNED_IN_CHANNEL",
	"CHANNEL_PRIVATE",
	"CHAT_RESTRICTED",
	"USER_IS_BLOCKED",
	"INPUT_USER_DEACTIVATED",
	"PEER_ID_INVALID",
	"CHAT_ADMIN_REQUIRED",
}

// Classify переводит ошибку Telegram в классифицированную ошибку доставки.
// Уже классифицированные ошибки возвращаются как есть, nil остаётся nil.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var de *models.DeliveryError
	if errors.As(err, &de) {
		return err
	}

	if wait, ok := tgerr.AsFloodWait(err); ok {
		return &models.DeliveryError{Kind: models.ErrKindRateLimited, Wait: wait, Err: err}
	}
	if tgerr.Is(err, "PEER_FLOOD") {
		return &models.DeliveryError{Kind: models.ErrKindPeerFlood, Err: err}
	}
	if errors.Is(err, session.ErrNotFound) {
		return &models.DeliveryError{Kind: models.ErrKindAuthLost, Err: err}
	}

	var rpc *tgerr.Error
	if errors.As(err, &rpc) {
		if rpc.Code == 401 {
			return &models.DeliveryError{Kind: models.ErrKindAuthLost, Err: err}
		}
		if rpc.IsOneOf(targetBannedTypes...) {
			return &models.DeliveryError{Kind: models.ErrKindTargetBanned, Err: err}
		}
	}

	// Всё остальное считаем временным сбоем: сеть, таймауты, внутренние ошибки сервера.
	return &models.DeliveryError{Kind: models.ErrKindTransient, Err: err}
}
