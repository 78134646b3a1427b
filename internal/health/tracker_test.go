package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bump_go/internal/config"
	"bump_go/models"
)

type fakeConn struct {
	pingErr error
	closed  bool
}

func (f *fakeConn) Send(ctx context.Context, target string, content models.Content) error { return nil }
func (f *fakeConn) MarkRead(ctx context.Context, target string) error                     { return nil }
func (f *fakeConn) SimulateTyping(ctx context.Context, target string) error               { return nil }
func (f *fakeConn) Ping(ctx context.Context) error                                        { return f.pingErr }
func (f *fakeConn) Close() error                                                          { f.closed = true; return nil }

// fakeDialer отдаёт заранее заданные ошибки, потом успешные соединения.
type fakeDialer struct {
	mu    sync.Mutex
	errs  []error
	calls int
	conns []*fakeConn
}

func (f *fakeDialer) Dial(ctx context.Context, acc models.Account) (Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	c := &fakeConn{}
	f.conns = append(f.conns, c)
	return c, nil
}

type fakeStore struct {
	flood        map[int]time.Time
	warmup       map[int]time.Time
	unauthorized []int
	sos          []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{flood: map[int]time.Time{}, warmup: map[int]time.Time{}}
}

func (f *fakeStore) MarkPeerFlood(accountID int, until time.Time) error {
	f.flood[accountID] = until
	return nil
}

func (f *fakeStore) SetWarmupUntil(accountID int, until time.Time) error {
	f.warmup[accountID] = until
	return nil
}

func (f *fakeStore) MarkAccountAsUnauthorized(accountID int) error {
	f.unauthorized = append(f.unauthorized, accountID)
	return nil
}

func (f *fakeStore) SaveSos(msg string) error {
	f.sos = append(f.sos, msg)
	return nil
}

func testTracker(store Store, dialer Dialer) *Tracker {
	cfg := config.Health{Cooldown: 24 * time.Hour, WarmupDays: 7, WarmupPacing: 3, AutoRecovery: true}
	rcfg := config.Reconnect{Attempts: 4, Base: time.Millisecond, Cap: 5 * time.Millisecond}
	return NewTracker(store, dialer, cfg, rcfg)
}

func account(id int) models.Account {
	return models.Account{ID: id, Phone: "+79990000001", IsAuthorized: true}
}

// TestAcquireExclusive проверяет монопольное владение соединением:
// второй Acquire до Release получает ошибку занятости.
func TestAcquireExclusive(t *testing.T) {
	d := &fakeDialer{}
	tr := testTracker(newFakeStore(), d)
	acc := account(1)

	if _, err := tr.Acquire(context.Background(), acc); err != nil {
		t.Fatalf("первый Acquire должен пройти: %v", err)
	}
	if _, err := tr.Acquire(context.Background(), acc); !errors.Is(err, ErrBusy) {
		t.Fatalf("ожидалась ошибка занятости, получено %v", err)
	}

	tr.Release(acc.ID)
	if _, err := tr.Acquire(context.Background(), acc); err != nil {
		t.Fatalf("после Release аккаунт должен быть доступен: %v", err)
	}
}

// TestAcquireReusesLiveConnection проверяет, что живое соединение
// переиспользуется без повторного подключения.
func TestAcquireReusesLiveConnection(t *testing.T) {
	d := &fakeDialer{}
	tr := testTracker(newFakeStore(), d)
	acc := account(1)

	c1, err := tr.Acquire(context.Background(), acc)
	if err != nil {
		t.Fatalf("Acquire завершился ошибкой: %v", err)
	}
	tr.Release(acc.ID)

	c2, err := tr.Acquire(context.Background(), acc)
	if err != nil {
		t.Fatalf("повторный Acquire завершился ошибкой: %v", err)
	}
	if c1 != c2 {
		t.Fatalf("живое соединение должно переиспользоваться")
	}
	if d.calls != 1 {
		t.Fatalf("ожидалось одно подключение, получено %d", d.calls)
	}
}

// TestAcquireRedialsDeadConnection проверяет, что не отвечающее соединение
// закрывается и устанавливается новое.
func TestAcquireRedialsDeadConnection(t *testing.T) {
	d := &fakeDialer{}
	tr := testTracker(newFakeStore(), d)
	acc := account(1)

	c1, err := tr.Acquire(context.Background(), acc)
	if err != nil {
		t.Fatalf("Acquire завершился ошибкой: %v", err)
	}
	tr.Release(acc.ID)
	c1.(*fakeConn).pingErr = errors.New("rpc timeout")

	c2, err := tr.Acquire(context.Background(), acc)
	if err != nil {
		t.Fatalf("повторный Acquire завершился ошибкой: %v", err)
	}
	if c1 == c2 {
		t.Fatalf("мёртвое соединение должно быть заменено")
	}
	if !c1.(*fakeConn).closed {
		t.Fatalf("мёртвое соединение должно быть закрыто")
	}
	if d.calls != 2 {
		t.Fatalf("ожидалось 2 подключения, получено %d", d.calls)
	}
}

// TestAcquireRetriesTransientDialErrors проверяет ограниченные повторы подключения.
func TestAcquireRetriesTransientDialErrors(t *testing.T) {
	transient := &models.DeliveryError{Kind: models.ErrKindTransient, Err: errors.New("dial timeout")}
	d := &fakeDialer{errs: []error{transient, transient}}
	tr := testTracker(newFakeStore(), d)

	if _, err := tr.Acquire(context.Background(), account(1)); err != nil {
		t.Fatalf("подключение должно пройти после повторов: %v", err)
	}
	if d.calls != 3 {
		t.Fatalf("ожидалось 3 вызова Dial, получено %d", d.calls)
	}
}

// TestAcquireConnectionFailureAfterBudget проверяет, что после исчерпания
// бюджета повторов возвращается ошибка подключения, а аккаунт не блокируется.
func TestAcquireConnectionFailureAfterBudget(t *testing.T) {
	transient := &models.DeliveryError{Kind: models.ErrKindTransient, Err: errors.New("dial timeout")}
	d := &fakeDialer{errs: []error{transient, transient, transient, transient, transient, transient}}
	tr := testTracker(newFakeStore(), d)
	acc := account(1)

	if _, err := tr.Acquire(context.Background(), acc); err == nil {
		t.Fatalf("ожидалась ошибка подключения")
	}
	// Бюджет: первая попытка плюс 4 повтора
	if d.calls != 5 {
		t.Fatalf("ожидалось 5 вызовов Dial, получено %d", d.calls)
	}
	// После неудачи владение должно быть снято
	d.errs = nil
	if _, err := tr.Acquire(context.Background(), acc); err != nil {
		t.Fatalf("аккаунт должен быть доступен после неудачного подключения: %v", err)
	}
}

// TestAcquireAuthLostStopsRetries проверяет, что потеря авторизации
// прекращает повторы сразу и переводит аккаунт в Unauthorized.
func TestAcquireAuthLostStopsRetries(t *testing.T) {
	lost := &models.DeliveryError{Kind: models.ErrKindAuthLost, Err: errors.New("AUTH_KEY_UNREGISTERED")}
	d := &fakeDialer{errs: []error{lost}}
	store := newFakeStore()
	tr := testTracker(store, d)
	acc := account(1)

	if _, err := tr.Acquire(context.Background(), acc); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("ожидалась ошибка авторизации, получено %v", err)
	}
	if d.calls != 1 {
		t.Fatalf("повторы после потери авторизации бессмысленны, вызовов: %d", d.calls)
	}
	if !tr.IsUnauthorized(acc.ID) {
		t.Fatalf("аккаунт должен быть помечен неавторизованным")
	}
	if len(store.unauthorized) != 1 || len(store.sos) != 1 {
		t.Fatalf("потеря авторизации должна попасть в БД и Sos")
	}
}

// TestReportPeerFlood проверяет перевод аккаунта в остывание:
// блокировку Acquire, закрытие соединения и запись в БД.
func TestReportPeerFlood(t *testing.T) {
	d := &fakeDialer{}
	store := newFakeStore()
	tr := testTracker(store, d)
	acc := account(1)

	conn, err := tr.Acquire(context.Background(), acc)
	if err != nil {
		t.Fatalf("Acquire завершился ошибкой: %v", err)
	}
	tr.ReportPeerFlood(acc)
	tr.Release(acc.ID)

	if !tr.IsInCooldown(acc.ID) {
		t.Fatalf("аккаунт должен остывать")
	}
	if !conn.(*fakeConn).closed {
		t.Fatalf("соединение должно быть закрыто при остывании")
	}
	if _, ok := store.flood[acc.ID]; !ok {
		t.Fatalf("остывание должно быть сохранено в БД")
	}
	if _, ok := store.warmup[acc.ID]; !ok {
		t.Fatalf("прогрев должен быть запланирован при автовосстановлении")
	}
	if len(store.sos) != 1 {
		t.Fatalf("остывание должно попасть в Sos")
	}
	if _, err := tr.Acquire(context.Background(), acc); !errors.Is(err, ErrCoolingDown) {
		t.Fatalf("во время остывания Acquire должен отклоняться, получено %v", err)
	}
}

// TestPacingMultiplierLifecycle проверяет множитель пауз на всех стадиях:
// остывание, прогрев и возврат к нормальной работе.
func TestPacingMultiplierLifecycle(t *testing.T) {
	d := &fakeDialer{}
	tr := testTracker(newFakeStore(), d)
	acc := account(1)

	base := time.Now()
	tr.now = func() time.Time { return base }

	if got := tr.PacingMultiplier(acc.ID); got != 1 {
		t.Fatalf("здоровый аккаунт работает без множителя, получено %v", got)
	}

	tr.ReportPeerFlood(acc)

	// Во время остывания множитель не применяется: аккаунт вообще не работает
	if got := tr.PacingMultiplier(acc.ID); got != 1 {
		t.Fatalf("во время остывания множитель не нужен, получено %v", got)
	}

	// Остывание закончилось, идёт прогрев
	tr.now = func() time.Time { return base.Add(25 * time.Hour) }
	if tr.IsInCooldown(acc.ID) {
		t.Fatalf("остывание должно закончиться")
	}
	if got := tr.PacingMultiplier(acc.ID); got != 3 {
		t.Fatalf("в период прогрева ожидался множитель 3, получено %v", got)
	}

	// Прогрев закончился
	tr.now = func() time.Time { return base.Add(24*time.Hour + 8*24*time.Hour) }
	if got := tr.PacingMultiplier(acc.ID); got != 1 {
		t.Fatalf("после прогрева множитель должен вернуться к 1, получено %v", got)
	}
}

// TestPrimeRestoresState проверяет восстановление состояния после перезапуска.
func TestPrimeRestoresState(t *testing.T) {
	tr := testTracker(newFakeStore(), &fakeDialer{})

	flood := time.Now().Add(time.Hour)
	warmup := flood.Add(7 * 24 * time.Hour)
	tr.Prime([]models.Account{
		{ID: 1, FloodWaitUntil: &flood, WarmupUntil: &warmup, IsAuthorized: true},
		{ID: 2, IsAuthorized: false},
	})

	if !tr.IsInCooldown(1) {
		t.Fatalf("остывание аккаунта 1 должно быть восстановлено")
	}
	if !tr.IsUnauthorized(2) {
		t.Fatalf("аккаунт 2 должен остаться неавторизованным")
	}
}

// TestMarkAuthorized проверяет возврат аккаунта в ротацию после повторного входа.
func TestMarkAuthorized(t *testing.T) {
	d := &fakeDialer{}
	store := newFakeStore()
	tr := testTracker(store, d)
	acc := account(1)

	tr.ReportAuthFailure(acc)
	if !tr.IsUnauthorized(acc.ID) {
		t.Fatalf("аккаунт должен быть помечен неавторизованным")
	}

	tr.MarkAuthorized(acc.ID)
	if _, err := tr.Acquire(context.Background(), acc); err != nil {
		t.Fatalf("после повторного входа Acquire должен пройти: %v", err)
	}
}
