package telegram

import (
	"database/sql"
	"fmt"
	"log"
	"math/rand"

	"bump_go/models"

	"golang.org/x/net/proxy"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/dcs"
)

// newClient создаёт клиент Telegram с хранилищем сессии в БД и,
// при наличии прокси у аккаунта, с выходом через SOCKS5.
func newClient(acc models.Account, db *sql.DB, r *rand.Rand) (*telegram.Client, error) {
	var storage session.Storage = &session.StorageMemory{}
	if db != nil && acc.ID > 0 {
		storage = &DBSessionStorage{DB: db, AccountID: acc.ID}
	}

	opts := telegram.Options{SessionStorage: storage}
	if r != nil {
		opts.Random = r
	}
	if acc.Proxy != nil {
		p := acc.Proxy
		addr := fmt.Sprintf("%s:%d", p.IP, p.Port)
		var auth *proxy.Auth
		if p.Login != "" || p.Password != "" {
			auth = &proxy.Auth{User: p.Login, Password: p.Password}
		}
		d, err := proxy.SOCKS5("tcp", addr, auth, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("proxy dialer: %w", err)
		}
		dc, ok := d.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("proxy dialer missing context")
		}
		opts.Resolver = dcs.Plain(dcs.PlainOptions{Dial: dc.DialContext})
		log.Printf("[PROXY] %s via %s", acc.Phone, addr)
	}
	return telegram.NewClient(acc.ApiID, acc.ApiHash, opts), nil
}
