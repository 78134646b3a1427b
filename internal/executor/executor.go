// Package executor выполняет один прогон кампании: отправляет контент во все
// целевые чаты по порядку, имитируя поведение живого пользователя.
package executor

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"

	"bump_go/internal/common"
	"bump_go/internal/config"
	"bump_go/models"

	"github.com/cenkalti/backoff/v4"
)

// Transport — операции Telegram, которые нужны прогону кампании.
type Transport interface {
	Send(ctx context.Context, target string, content models.Content) error
	MarkRead(ctx context.Context, target string) error
	SimulateTyping(ctx context.Context, target string) error
}

// Recorder фиксирует попытки доставки и отметки активности аккаунта.
type Recorder interface {
	LogDeliveryAttempt(a models.DeliveryAttempt) error
	UpdateLastOnlineSimulation(accountID int) error
}

// Signal сообщает планировщику о фатальном для аккаунта исходе прогона.
type Signal int

const (
	SignalNone Signal = iota
	SignalPeerFlood
	SignalAuthLost
)

// Outcome — исход обработки одного целевого чата.
type Outcome struct {
	Target    string
	Attempts  int
	Status    string
	ErrorKind models.ErrorKind
}

// Result — итог прогона кампании по всем целям.
type Result struct {
	Outcomes []Outcome
	Signal   Signal
}

// Attempts возвращает счётчики прогона: общее число попыток, успехи и неудачи.
func (r Result) Attempts() (attempts, successes, failures int) {
	for _, o := range r.Outcomes {
		attempts += o.Attempts
		switch o.Status {
		case models.AttemptSuccess:
			successes++
		case models.AttemptFailed:
			failures++
		}
	}
	return
}

type Executor struct {
	retry  config.Retry
	pacing config.Pacing
	rec    Recorder

	// Подменяются в тестах, чтобы не ждать реальные паузы.
	sleep     func(ctx context.Context, d time.Duration) error
	randFloat func() float64
	pickChat  func(c models.Campaign, current string) string
}

func New(retry config.Retry, pacing config.Pacing, rec Recorder) *Executor {
	return &Executor{
		retry:     retry,
		pacing:    pacing,
		rec:       rec,
		sleep:     common.WaitDuration,
		randFloat: rand.Float64,
		pickChat:  defaultPickChat,
	}
}

// defaultPickChat выбирает чат для имитации чтения: случайную цель кампании,
// отличную от текущей, чтобы активность выглядела разнообразнее.
func defaultPickChat(c models.Campaign, current string) string {
	var others []string
	for _, t := range c.TargetChats {
		if t != current {
			others = append(others, t)
		}
	}
	if len(others) == 0 {
		return current
	}
	return others[rand.Intn(len(others))]
}

// Run обрабатывает все целевые чаты кампании в настроенном порядке.
// Множитель pacing растягивает все паузы конвейера в период прогрева аккаунта.
func (e *Executor) Run(ctx context.Context, tr Transport, c models.Campaign, pacing float64) Result {
	if pacing < 1 {
		pacing = 1
	}
	content := c.Content()
	var res Result

	for i, target := range c.TargetChats {
		if ctx.Err() != nil {
			break
		}

		e.maybeSimulateRead(ctx, tr, c, target)
		e.simulateTyping(ctx, tr, target, content, pacing)

		attempts, err := e.sendWithRetry(ctx, tr, target, content)
		outcome := Outcome{Target: target, Attempts: attempts}

		if err == nil {
			outcome.Status = models.AttemptSuccess
			res.Outcomes = append(res.Outcomes, outcome)
			e.record(c.ID, outcome)

			if e.pacing.InterSendDelay && i < len(c.TargetChats)-1 {
				d := common.RandomDuration(e.pacing.InterSendMin, e.pacing.InterSendMax)
				if e.sleep(ctx, scale(d, pacing)) != nil {
					break
				}
			}
			continue
		}

		kind := models.KindOf(err)
		outcome.Status = models.AttemptFailed
		outcome.ErrorKind = kind
		res.Outcomes = append(res.Outcomes, outcome)
		e.record(c.ID, outcome)

		switch kind {
		case models.ErrKindPeerFlood:
			log.Printf("[EXECUTOR] кампания %d: PEER_FLOOD на цели %s, прогон прерван", c.ID, target)
			res.Signal = SignalPeerFlood
			res.Outcomes = append(res.Outcomes, e.skipRest(c, i+1)...)
			return res
		case models.ErrKindAuthLost:
			log.Printf("[EXECUTOR] кампания %d: потеря авторизации на цели %s, прогон прерван", c.ID, target)
			res.Signal = SignalAuthLost
			res.Outcomes = append(res.Outcomes, e.skipRest(c, i+1)...)
			return res
		default:
			// target_banned и исчерпанные повторы не мешают остальным целям
			log.Printf("[EXECUTOR] кампания %d: цель %s не доставлена (%s)", c.ID, target, kind)
		}
	}
	return res
}

// skipRest помечает оставшиеся цели пропущенными, чтобы статистика
// отражала ровно то, что произошло.
func (e *Executor) skipRest(c models.Campaign, from int) []Outcome {
	var skipped []Outcome
	for _, target := range c.TargetChats[from:] {
		o := Outcome{Target: target, Status: models.AttemptSkipped}
		skipped = append(skipped, o)
		e.record(c.ID, o)
	}
	return skipped
}

func (e *Executor) record(campaignID int, o Outcome) {
	err := e.rec.LogDeliveryAttempt(models.DeliveryAttempt{
		CampaignID: campaignID,
		Target:     o.Target,
		Attempt:    o.Attempts,
		Status:     o.Status,
		ErrorKind:  string(o.ErrorKind),
	})
	if err != nil {
		log.Printf("[EXECUTOR] не удалось записать попытку по цели %s: %v", o.Target, err)
	}
}

// maybeSimulateRead с настроенной вероятностью читает один из чатов кампании.
func (e *Executor) maybeSimulateRead(ctx context.Context, tr Transport, c models.Campaign, current string) {
	if !e.pacing.ReadSimulation || e.randFloat() >= e.pacing.ReadProbability {
		return
	}
	chat := e.pickChat(c, current)
	if chat == "" {
		return
	}
	if err := tr.MarkRead(ctx, chat); err != nil {
		log.Printf("[EXECUTOR] имитация чтения %s не удалась: %v", chat, err)
		return
	}
	if err := e.rec.UpdateLastOnlineSimulation(c.AccountID); err != nil {
		log.Printf("[EXECUTOR] не удалось отметить имитацию активности: %v", err)
	}
}

// simulateTyping показывает статус набора перед отправкой.
// Длинный контент набирается в несколько заходов.
func (e *Executor) simulateTyping(ctx context.Context, tr Transport, target string, content models.Content, pacing float64) {
	if !e.pacing.TypingSimulation {
		return
	}
	bursts := 1 + content.Length()/250
	if bursts > e.pacing.TypingMaxBursts {
		bursts = e.pacing.TypingMaxBursts
	}
	for i := 0; i < bursts; i++ {
		if err := tr.SimulateTyping(ctx, target); err != nil {
			log.Printf("[EXECUTOR] имитация набора в %s не удалась: %v", target, err)
			return
		}
		d := common.RandomDuration(e.pacing.TypingMin, e.pacing.TypingMax)
		if e.sleep(ctx, scale(d, pacing)) != nil {
			return
		}
	}
}

// sendWithRetry отправляет контент с бюджетом повторов.
// Первый FLOOD_WAIT по цели не списывает попытку: сервер сам назвал паузу,
// после которой отправка обычно проходит. Повторные списывают как обычно.
func (e *Executor) sendWithRetry(ctx context.Context, tr Transport, target string, content models.Content) (int, error) {
	ebo := backoff.NewExponentialBackOff()
	ebo.InitialInterval = e.retry.Base
	ebo.Multiplier = e.retry.Multiplier
	ebo.MaxInterval = e.retry.Cap
	ebo.RandomizationFactor = 0
	ebo.MaxElapsedTime = 0
	ebo.Reset()

	attempts := 0
	remaining := int(e.retry.Attempts)
	freeRetry := true

	for {
		if ctx.Err() != nil {
			return attempts, ctx.Err()
		}
		remaining--
		attempts++
		err := tr.Send(ctx, target, content)
		if err == nil {
			return attempts, nil
		}

		switch models.KindOf(err) {
		case models.ErrKindRateLimited:
			var de *models.DeliveryError
			errors.As(err, &de)
			if freeRetry {
				// Попытка не списывается ровно один раз за цель
				freeRetry = false
				remaining++
			}
			if remaining <= 0 {
				return attempts, err
			}
			log.Printf("[EXECUTOR] цель %s: FLOOD_WAIT, ждём %s", target, de.Wait)
			if werr := e.sleep(ctx, de.Wait); werr != nil {
				return attempts, err
			}
		case models.ErrKindTransient:
			if remaining <= 0 {
				return attempts, err
			}
			if werr := e.sleep(ctx, ebo.NextBackOff()); werr != nil {
				return attempts, err
			}
		default:
			// peer_flood, target_banned, auth_lost повторять бессмысленно
			return attempts, err
		}
	}
}

func scale(d time.Duration, factor float64) time.Duration {
	return time.Duration(float64(d) * factor)
}
