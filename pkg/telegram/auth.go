package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"bump_go/models"
	"bump_go/pkg/storage"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

// RequestCode отправляет код подтверждения и сохраняет хеш в БД,
// чтобы авторизацию можно было завершить отдельным запросом.
func RequestCode(db *storage.DB, acc models.Account) (string, error) {
	client, err := newClient(acc, db.Conn, nil)
	if err != nil {
		return "", err
	}
	var phoneCodeHash string
	ctx := context.Background()
	err = client.Run(ctx, func(ctx context.Context) error {
		sentCode, err := client.Auth().SendCode(ctx, acc.Phone, auth.SendCodeOptions{})
		if err != nil {
			return err
		}
		if sent, ok := sentCode.(*tg.AuthSentCode); ok {
			phoneCodeHash = sent.PhoneCodeHash
			// Сохраняем полученный хеш в БД для дальнейшей авторизации
			if err := db.UpdatePhoneCodeHash(acc.ID, phoneCodeHash); err != nil {
				return err
			}
		} else {
			log.Printf("[ERROR] Unexpected sent code type: %T", sentCode)
			return fmt.Errorf("unexpected sent code type: %T", sentCode)
		}
		return nil
	})
	return phoneCodeHash, err
}

// CompleteAuthorization завершает вход по коду подтверждения.
// Пароль нужен только аккаунтам с включённой двухфакторной защитой.
func CompleteAuthorization(db *storage.DB, acc models.Account, code, password string) error {
	randSrc := rand.New(rand.NewSource(time.Now().UnixNano()))
	client, err := newClient(acc, db.Conn, randSrc)
	if err != nil {
		return err
	}
	ctx := context.Background()
	return client.Run(ctx, func(ctx context.Context) error {
		if _, err := client.Auth().SignIn(ctx, acc.Phone, code, acc.PhoneCodeHash); err != nil {
			if errors.Is(err, auth.ErrPasswordAuthNeeded) {
				if password == "" {
					return fmt.Errorf("account requires two-factor password")
				}
				if _, err := client.Auth().Password(ctx, password); err != nil {
					log.Printf("[ERROR] Password authentication failed: %v", err)
					return fmt.Errorf("password authentication failed: %w", err)
				}
				log.Printf("[INFO] Successfully authorized phone: %s", acc.Phone)
				return nil
			}
			log.Printf("[ERROR] Authorization failed: %v", err)
			return fmt.Errorf("authorization error: %w", err)
		}

		log.Printf("[INFO] Successfully authorized phone: %s", acc.Phone)
		return nil
	})
}
