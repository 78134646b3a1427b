package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"bump_go/internal/config"
	"bump_go/models"
)

// fakeTransport отдаёт заранее заданные ошибки на каждую отправку по цели.
type fakeTransport struct {
	errs  map[string][]error // очередь ошибок по цели, nil — успех
	sends []string           // порядок фактических отправок
	reads []string
}

func (f *fakeTransport) Send(ctx context.Context, target string, content models.Content) error {
	f.sends = append(f.sends, target)
	queue := f.errs[target]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	f.errs[target] = queue[1:]
	return err
}

func (f *fakeTransport) MarkRead(ctx context.Context, target string) error {
	f.reads = append(f.reads, target)
	return nil
}

func (f *fakeTransport) SimulateTyping(ctx context.Context, target string) error { return nil }

// fakeRecorder запоминает записанные попытки.
type fakeRecorder struct {
	attempts []models.DeliveryAttempt
	online   int
}

func (f *fakeRecorder) LogDeliveryAttempt(a models.DeliveryAttempt) error {
	f.attempts = append(f.attempts, a)
	return nil
}

func (f *fakeRecorder) UpdateLastOnlineSimulation(accountID int) error {
	f.online++
	return nil
}

func testConfig() (config.Retry, config.Pacing) {
	retry := config.Retry{Attempts: 5, Base: 1500 * time.Millisecond, Multiplier: 2, Cap: 60 * time.Second}
	pacing := config.Pacing{
		ReadSimulation:   false,
		ReadProbability:  0.3,
		TypingSimulation: false,
		TypingMin:        2 * time.Second,
		TypingMax:        5 * time.Second,
		TypingMaxBursts:  3,
		InterSendDelay:   true,
		InterSendMin:     30 * time.Second,
		InterSendMax:     90 * time.Second,
	}
	return retry, pacing
}

// newTestExecutor создаёт экзекьютор с перехватом пауз вместо реального сна.
func newTestExecutor(rec *fakeRecorder, slept *[]time.Duration) *Executor {
	retry, pacing := testConfig()
	e := New(retry, pacing, rec)
	e.sleep = func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	e.randFloat = func() float64 { return 1 } // имитация чтения выключена
	return e
}

func campaign(targets ...string) models.Campaign {
	return models.Campaign{ID: 1, AccountID: 2, ContentText: "привет", TargetChats: targets}
}

// TestRunAllSuccess проверяет успешный прогон: порядок целей сохранён,
// между отправками есть пауза, после последней цели паузы нет.
func TestRunAllSuccess(t *testing.T) {
	tr := &fakeTransport{errs: map[string][]error{}}
	rec := &fakeRecorder{}
	var slept []time.Duration
	e := newTestExecutor(rec, &slept)

	res := e.Run(context.Background(), tr, campaign("@a", "@b", "@c"), 1)

	if res.Signal != SignalNone {
		t.Fatalf("сигнал должен быть пустым, получен %d", res.Signal)
	}
	if len(tr.sends) != 3 || tr.sends[0] != "@a" || tr.sends[1] != "@b" || tr.sends[2] != "@c" {
		t.Fatalf("порядок отправок нарушен: %v", tr.sends)
	}
	attempts, successes, failures := res.Attempts()
	if attempts != 3 || successes != 3 || failures != 0 {
		t.Fatalf("ожидалось 3/3/0, получено %d/%d/%d", attempts, successes, failures)
	}
	// Паузы только между отправками: 2 для трёх целей
	if len(slept) != 2 {
		t.Fatalf("ожидалось 2 паузы между отправками, получено %d", len(slept))
	}
	for _, d := range slept {
		if d < 30*time.Second || d > 90*time.Second {
			t.Fatalf("пауза %s вне диапазона 30-90s", d)
		}
	}
}

// TestRunTargetBannedContinues проверяет, что запрет записи в один чат
// не мешает доставке в остальные.
func TestRunTargetBannedContinues(t *testing.T) {
	banned := &models.DeliveryError{Kind: models.ErrKindTargetBanned, Err: errors.New("CHAT_WRITE_FORBIDDEN")}
	tr := &fakeTransport{errs: map[string][]error{"@b": {banned}}}
	rec := &fakeRecorder{}
	var slept []time.Duration
	e := newTestExecutor(rec, &slept)

	res := e.Run(context.Background(), tr, campaign("@a", "@b", "@c"), 1)

	if res.Signal != SignalNone {
		t.Fatalf("запрет записи не должен давать сигнал аккаунту")
	}
	if len(res.Outcomes) != 3 {
		t.Fatalf("ожидалось 3 исхода, получено %d", len(res.Outcomes))
	}
	if res.Outcomes[1].Status != models.AttemptFailed || res.Outcomes[1].ErrorKind != models.ErrKindTargetBanned {
		t.Fatalf("вторая цель должна быть неуспешной с target_banned: %+v", res.Outcomes[1])
	}
	if res.Outcomes[2].Status != models.AttemptSuccess {
		t.Fatalf("третья цель должна быть доставлена: %+v", res.Outcomes[2])
	}
}

// TestRunPeerFloodAborts проверяет, что PEER_FLOOD прерывает прогон,
// даёт сигнал и помечает оставшиеся цели пропущенными.
func TestRunPeerFloodAborts(t *testing.T) {
	flood := &models.DeliveryError{Kind: models.ErrKindPeerFlood, Err: errors.New("PEER_FLOOD")}
	tr := &fakeTransport{errs: map[string][]error{"@b": {flood}}}
	rec := &fakeRecorder{}
	var slept []time.Duration
	e := newTestExecutor(rec, &slept)

	res := e.Run(context.Background(), tr, campaign("@a", "@b", "@c"), 1)

	if res.Signal != SignalPeerFlood {
		t.Fatalf("ожидался сигнал peer_flood")
	}
	if len(tr.sends) != 2 {
		t.Fatalf("после PEER_FLOOD отправок быть не должно: %v", tr.sends)
	}
	last := res.Outcomes[len(res.Outcomes)-1]
	if last.Target != "@c" || last.Status != models.AttemptSkipped {
		t.Fatalf("оставшаяся цель должна быть пропущена: %+v", last)
	}
	// Пропуск фиксируется в журнале
	if len(rec.attempts) != 3 {
		t.Fatalf("в журнале должны быть все 3 цели, получено %d", len(rec.attempts))
	}
}

// TestRunAuthLostAborts проверяет прерывание прогона при потере авторизации.
func TestRunAuthLostAborts(t *testing.T) {
	lost := &models.DeliveryError{Kind: models.ErrKindAuthLost, Err: errors.New("AUTH_KEY_UNREGISTERED")}
	tr := &fakeTransport{errs: map[string][]error{"@a": {lost}}}
	rec := &fakeRecorder{}
	var slept []time.Duration
	e := newTestExecutor(rec, &slept)

	res := e.Run(context.Background(), tr, campaign("@a", "@b"), 1)

	if res.Signal != SignalAuthLost {
		t.Fatalf("ожидался сигнал auth_lost")
	}
	if len(tr.sends) != 1 {
		t.Fatalf("после потери авторизации отправки должны прекратиться: %v", tr.sends)
	}
}

// TestRateLimitFreeRetry проверяет, что первый FLOOD_WAIT по цели не списывает
// попытку из бюджета, а пауза равна ровно указанному серверу времени.
func TestRateLimitFreeRetry(t *testing.T) {
	wait := &models.DeliveryError{Kind: models.ErrKindRateLimited, Wait: 42 * time.Second, Err: errors.New("FLOOD_WAIT_42")}
	tr := &fakeTransport{errs: map[string][]error{"@a": {wait}}}
	rec := &fakeRecorder{}
	var slept []time.Duration
	e := newTestExecutor(rec, &slept)

	res := e.Run(context.Background(), tr, campaign("@a"), 1)

	if res.Outcomes[0].Status != models.AttemptSuccess {
		t.Fatalf("после ожидания отправка должна пройти: %+v", res.Outcomes[0])
	}
	if res.Outcomes[0].Attempts != 2 {
		t.Fatalf("ожидалось 2 попытки, получено %d", res.Outcomes[0].Attempts)
	}
	if len(slept) != 1 || slept[0] != 42*time.Second {
		t.Fatalf("пауза должна быть ровно 42s, получено %v", slept)
	}
}

// TestRateLimitChargedAfterFree проверяет, что повторные FLOOD_WAIT
// уже списывают попытки и бюджет конечен.
func TestRateLimitChargedAfterFree(t *testing.T) {
	mkWait := func() error {
		return &models.DeliveryError{Kind: models.ErrKindRateLimited, Wait: time.Second, Err: errors.New("FLOOD_WAIT_1")}
	}
	tr := &fakeTransport{errs: map[string][]error{
		"@a": {mkWait(), mkWait(), mkWait(), mkWait(), mkWait(), mkWait(), mkWait(), mkWait()},
	}}
	rec := &fakeRecorder{}
	var slept []time.Duration
	e := newTestExecutor(rec, &slept)

	res := e.Run(context.Background(), tr, campaign("@a"), 1)

	if res.Outcomes[0].Status != models.AttemptFailed {
		t.Fatalf("бесконечные FLOOD_WAIT должны исчерпать бюджет")
	}
	// Бюджет 5 плюс одна несписанная попытка
	if res.Outcomes[0].Attempts != 6 {
		t.Fatalf("ожидалось 6 попыток, получено %d", res.Outcomes[0].Attempts)
	}
}

// TestTransientRetryBackoff проверяет экспоненциальный рост пауз между
// повторами временных ошибок: 1.5s, затем 3s.
func TestTransientRetryBackoff(t *testing.T) {
	transient := func() error {
		return &models.DeliveryError{Kind: models.ErrKindTransient, Err: errors.New("i/o timeout")}
	}
	tr := &fakeTransport{errs: map[string][]error{"@a": {transient(), transient()}}}
	rec := &fakeRecorder{}
	var slept []time.Duration
	e := newTestExecutor(rec, &slept)

	res := e.Run(context.Background(), tr, campaign("@a"), 1)

	if res.Outcomes[0].Status != models.AttemptSuccess || res.Outcomes[0].Attempts != 3 {
		t.Fatalf("ожидался успех с 3 попытками: %+v", res.Outcomes[0])
	}
	if len(slept) != 2 || slept[0] != 1500*time.Millisecond || slept[1] != 3*time.Second {
		t.Fatalf("ожидались паузы 1.5s и 3s, получено %v", slept)
	}
}

// TestTransientBudgetExhausted проверяет, что после пяти неудачных попыток
// цель помечается неуспешной, но прогон продолжается.
func TestTransientBudgetExhausted(t *testing.T) {
	transient := func() error {
		return &models.DeliveryError{Kind: models.ErrKindTransient, Err: errors.New("i/o timeout")}
	}
	tr := &fakeTransport{errs: map[string][]error{
		"@a": {transient(), transient(), transient(), transient(), transient(), transient()},
	}}
	rec := &fakeRecorder{}
	var slept []time.Duration
	e := newTestExecutor(rec, &slept)

	res := e.Run(context.Background(), tr, campaign("@a", "@b"), 1)

	if res.Outcomes[0].Status != models.AttemptFailed || res.Outcomes[0].Attempts != 5 {
		t.Fatalf("ожидалось 5 неудачных попыток: %+v", res.Outcomes[0])
	}
	if res.Outcomes[1].Status != models.AttemptSuccess {
		t.Fatalf("вторая цель должна быть доставлена: %+v", res.Outcomes[1])
	}
}

// TestPacingMultiplierScalesDelays проверяет, что множитель прогрева
// растягивает паузу между отправками.
func TestPacingMultiplierScalesDelays(t *testing.T) {
	tr := &fakeTransport{errs: map[string][]error{}}
	rec := &fakeRecorder{}
	var slept []time.Duration
	e := newTestExecutor(rec, &slept)

	e.Run(context.Background(), tr, campaign("@a", "@b"), 3)

	if len(slept) != 1 {
		t.Fatalf("ожидалась одна пауза, получено %d", len(slept))
	}
	if slept[0] < 90*time.Second || slept[0] > 270*time.Second {
		t.Fatalf("пауза с множителем 3 должна быть в диапазоне 90-270s, получено %s", slept[0])
	}
}

// TestReadSimulation проверяет, что при срабатывании вероятности чтение
// отмечается и фиксируется имитация активности.
func TestReadSimulation(t *testing.T) {
	tr := &fakeTransport{errs: map[string][]error{}}
	rec := &fakeRecorder{}
	var slept []time.Duration
	e := newTestExecutor(rec, &slept)
	e.pacing.ReadSimulation = true
	e.randFloat = func() float64 { return 0 } // вероятность всегда срабатывает

	e.Run(context.Background(), tr, campaign("@a", "@b"), 1)

	if len(tr.reads) != 2 {
		t.Fatalf("ожидалось 2 имитации чтения, получено %d", len(tr.reads))
	}
	if rec.online != 2 {
		t.Fatalf("имитация активности должна фиксироваться, получено %d", rec.online)
	}
}
