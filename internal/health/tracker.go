// Package health отслеживает состояние аккаунтов и владеет их соединениями.
// Аккаунт проходит цикл: Active → CoolingDown (после PEER_FLOOD) → WarmUp →
// Active. Потеря авторизации выводит аккаунт из ротации до повторного входа.
package health

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"bump_go/internal/config"
	"bump_go/internal/executor"
	"bump_go/models"

	"github.com/cenkalti/backoff/v4"
)

// Conn — проверенное соединение аккаунта, которым владеет трекер.
type Conn interface {
	executor.Transport
	Ping(ctx context.Context) error
	Close() error
}

// Dialer открывает новое соединение для аккаунта.
type Dialer interface {
	Dial(ctx context.Context, acc models.Account) (Conn, error)
}

// DialerFunc позволяет использовать функцию как Dialer.
type DialerFunc func(ctx context.Context, acc models.Account) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, acc models.Account) (Conn, error) {
	return f(ctx, acc)
}

// Store — персистентная часть состояния здоровья.
type Store interface {
	MarkPeerFlood(accountID int, until time.Time) error
	SetWarmupUntil(accountID int, until time.Time) error
	MarkAccountAsUnauthorized(accountID int) error
	SaveSos(msg string) error
}

var (
	// ErrBusy — соединение аккаунта уже занято другим прогоном.
	ErrBusy = errors.New("аккаунт уже используется")
	// ErrUnauthorized — аккаунт требует повторной авторизации.
	ErrUnauthorized = errors.New("аккаунт не авторизован")
	// ErrCoolingDown — аккаунт остывает после PEER_FLOOD.
	ErrCoolingDown = errors.New("аккаунт в периоде остывания")
)

// entry хранит соединение одного аккаунта. Мьютекс выражает владение:
// между Acquire и Release соединением пользуется ровно один прогон.
type entry struct {
	mu   sync.Mutex
	conn Conn
}

type Tracker struct {
	store  Store
	dialer Dialer
	cfg    config.Health
	rcfg   config.Reconnect

	now func() time.Time

	mu            sync.Mutex
	entries       map[int]*entry
	cooldownUntil map[int]time.Time
	warmupUntil   map[int]time.Time
	unauthorized  map[int]bool
}

func NewTracker(store Store, dialer Dialer, cfg config.Health, rcfg config.Reconnect) *Tracker {
	return &Tracker{
		store:         store,
		dialer:        dialer,
		cfg:           cfg,
		rcfg:          rcfg,
		now:           time.Now,
		entries:       make(map[int]*entry),
		cooldownUntil: make(map[int]time.Time),
		warmupUntil:   make(map[int]time.Time),
		unauthorized:  make(map[int]bool),
	}
}

// Prime восстанавливает состояние здоровья из сохранённых полей аккаунтов,
// чтобы перезапуск сервиса не сбрасывал остывание и прогрев.
func (t *Tracker) Prime(accounts []models.Account) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, acc := range accounts {
		if acc.FloodWaitUntil != nil {
			t.cooldownUntil[acc.ID] = *acc.FloodWaitUntil
		}
		if acc.WarmupUntil != nil {
			t.warmupUntil[acc.ID] = *acc.WarmupUntil
		}
		if !acc.IsAuthorized {
			t.unauthorized[acc.ID] = true
		}
	}
}

func (t *Tracker) entry(accountID int) *entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[accountID]
	if !ok {
		e = &entry{}
		t.entries[accountID] = e
	}
	return e
}

// Acquire выдаёт соединение аккаунта в монопольное пользование.
// Живое соединение переиспользуется после проверки, мёртвое
// переустанавливается с ограниченным числом повторов.
func (t *Tracker) Acquire(ctx context.Context, acc models.Account) (Conn, error) {
	if t.IsUnauthorized(acc.ID) {
		return nil, fmt.Errorf("%w: аккаунт %d", ErrUnauthorized, acc.ID)
	}
	if t.IsInCooldown(acc.ID) {
		return nil, fmt.Errorf("%w: аккаунт %d", ErrCoolingDown, acc.ID)
	}

	e := t.entry(acc.ID)
	if !e.mu.TryLock() {
		return nil, fmt.Errorf("%w: аккаунт %d", ErrBusy, acc.ID)
	}

	if e.conn != nil {
		err := e.conn.Ping(ctx)
		if err == nil {
			return e.conn, nil
		}
		log.Printf("[HEALTH] аккаунт %d: соединение не отвечает, переподключаемся: %v", acc.ID, err)
		_ = e.conn.Close()
		e.conn = nil
	}

	conn, err := t.dial(ctx, acc)
	if err != nil {
		e.mu.Unlock()
		if models.KindOf(err) == models.ErrKindAuthLost {
			t.ReportAuthFailure(acc)
			return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return nil, fmt.Errorf("не удалось подключить аккаунт %d: %w", acc.ID, err)
	}
	e.conn = conn
	return conn, nil
}

// dial переустанавливает соединение с экспоненциальной паузой между попытками.
// Потеря авторизации прекращает попытки сразу: повторный набор её не вернёт.
func (t *Tracker) dial(ctx context.Context, acc models.Account) (Conn, error) {
	ebo := backoff.NewExponentialBackOff()
	ebo.InitialInterval = t.rcfg.Base
	ebo.MaxInterval = t.rcfg.Cap
	ebo.MaxElapsedTime = 0
	ebo.Reset()

	op := func() (Conn, error) {
		conn, err := t.dialer.Dial(ctx, acc)
		if err != nil {
			if models.KindOf(err) == models.ErrKindAuthLost {
				return nil, backoff.Permanent(err)
			}
			log.Printf("[HEALTH] аккаунт %d: ошибка подключения: %v", acc.ID, err)
			return nil, err
		}
		return conn, nil
	}
	return backoff.RetryWithData(op, backoff.WithMaxRetries(backoff.WithContext(ebo, ctx), t.rcfg.Attempts))
}

// Release возвращает соединение трекеру. Вызывается только владельцем.
func (t *Tracker) Release(accountID int) {
	t.mu.Lock()
	e := t.entries[accountID]
	t.mu.Unlock()
	if e != nil {
		e.mu.Unlock()
	}
}

// dropConn закрывает и забывает соединение аккаунта.
// Вызывается владельцем соединения, поэтому гонок с прогоном нет.
func (t *Tracker) dropConn(accountID int) {
	t.mu.Lock()
	e := t.entries[accountID]
	t.mu.Unlock()
	if e != nil && e.conn != nil {
		_ = e.conn.Close()
		e.conn = nil
	}
}

// ReportPeerFlood переводит аккаунт в остывание и, при включённом
// автовосстановлении, планирует период прогрева после него.
func (t *Tracker) ReportPeerFlood(acc models.Account) {
	now := t.now()
	cooldownEnd := now.Add(t.cfg.Cooldown)

	t.mu.Lock()
	t.cooldownUntil[acc.ID] = cooldownEnd
	if t.cfg.AutoRecovery {
		t.warmupUntil[acc.ID] = cooldownEnd.Add(time.Duration(t.cfg.WarmupDays) * 24 * time.Hour)
	}
	warmupEnd := t.warmupUntil[acc.ID]
	t.mu.Unlock()

	if err := t.store.MarkPeerFlood(acc.ID, cooldownEnd); err != nil {
		log.Printf("[HEALTH] не удалось сохранить остывание аккаунта %d: %v", acc.ID, err)
	}
	if t.cfg.AutoRecovery {
		if err := t.store.SetWarmupUntil(acc.ID, warmupEnd); err != nil {
			log.Printf("[HEALTH] не удалось сохранить прогрев аккаунта %d: %v", acc.ID, err)
		}
	}
	t.dropConn(acc.ID)

	msg := fmt.Sprintf("аккаунт %s получил PEER_FLOOD и остывает до %s", acc.Phone, cooldownEnd.Format(time.RFC3339))
	if err := t.store.SaveSos(msg); err != nil {
		log.Printf("[HEALTH] ошибка записи в Sos: %v", err)
	}
	log.Printf("[HEALTH] %s", msg)
}

// ReportAuthFailure выводит аккаунт из ротации до повторной авторизации.
func (t *Tracker) ReportAuthFailure(acc models.Account) {
	t.mu.Lock()
	t.unauthorized[acc.ID] = true
	t.mu.Unlock()

	if err := t.store.MarkAccountAsUnauthorized(acc.ID); err != nil {
		log.Printf("[HEALTH] ошибка обновления статуса %s: %v", acc.Phone, err)
	}
	t.dropConn(acc.ID)

	msg := fmt.Sprintf("номер %s больше не авторизован в программе", acc.Phone)
	if err := t.store.SaveSos(msg); err != nil {
		log.Printf("[HEALTH] ошибка записи в Sos: %v", err)
	}
	log.Printf("[HEALTH] %s", msg)
}

// MarkAuthorized возвращает аккаунт в ротацию после повторного входа.
func (t *Tracker) MarkAuthorized(accountID int) {
	t.mu.Lock()
	delete(t.unauthorized, accountID)
	t.mu.Unlock()
}

// IsInCooldown сообщает, остывает ли аккаунт в данный момент.
func (t *Tracker) IsInCooldown(accountID int) bool {
	t.mu.Lock()
	until, ok := t.cooldownUntil[accountID]
	t.mu.Unlock()
	return ok && t.now().Before(until)
}

// IsUnauthorized сообщает, требует ли аккаунт повторной авторизации.
func (t *Tracker) IsUnauthorized(accountID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unauthorized[accountID]
}

// PacingMultiplier возвращает множитель пауз для аккаунта:
// в период прогрева все задержки растягиваются, бюджет повторов не меняется.
func (t *Tracker) PacingMultiplier(accountID int) float64 {
	t.mu.Lock()
	warmup, ok := t.warmupUntil[accountID]
	t.mu.Unlock()
	if ok && t.now().Before(warmup) && !t.IsInCooldown(accountID) {
		return t.cfg.WarmupPacing
	}
	return 1
}
