// Package scheduler решает, какая кампания и когда запускается.
// Каждая кампания проходит цикл Scheduled → Due → Running → Scheduled;
// пауза возможна только из Scheduled, начатый прогон всегда довыполняется.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"bump_go/internal/common"
	"bump_go/internal/executor"
	"bump_go/internal/health"
	"bump_go/internal/stagger"
	"bump_go/models"
)

// Store — часть хранилища, с которой работает планировщик.
// *storage.DB реализует интерфейс целиком.
type Store interface {
	GetActiveCampaigns() ([]models.Campaign, error)
	GetAuthorizedAccounts() ([]models.Account, error)
	GetCampaignByID(id int) (*models.Campaign, error)
	GetAccountByID(id int) (*models.Account, error)
	CreateCampaign(c models.Campaign) (*models.Campaign, error)
	UpdateCampaignNextRun(id int, nextRun time.Time, lastRun *time.Time) error
	UpdateCampaignStatus(id int, status string) error
	IncrementCampaignStats(id, attempts, successes, failures int) error
	GetCampaignStatistics(campaignID int) (*models.CampaignStatistics, error)
	DeleteCampaign(id int) error
}

type Scheduler struct {
	baseCtx context.Context
	db      Store
	tracker *health.Tracker
	exec    *executor.Executor

	// Transform — внешний хук обработки текста перед отправкой.
	// Применяется только к готовому тексту, пересылки не трогает.
	Transform func(string) string

	mu      sync.Mutex
	waiting map[int]context.CancelFunc // кампании, ждущие своего слота разведения
	running map[int]struct{}           // кампании с начатым прогоном
	busy    map[int]bool               // кампании, упёршиеся в занятый аккаунт
}

// New создаёт планировщик. baseCtx ограничивает время жизни ручных запусков:
// его отмена останавливает и их, а не только проходы по расписанию.
func New(baseCtx context.Context, db Store, tracker *health.Tracker, exec *executor.Executor) *Scheduler {
	return &Scheduler{
		baseCtx: baseCtx,
		db:      db,
		tracker: tracker,
		exec:    exec,
		waiting: make(map[int]context.CancelFunc),
		running: make(map[int]struct{}),
		busy:    make(map[int]bool),
	}
}

// Tick — один проход планировщика: пересчитать разведение групп,
// выбрать наступившие кампании и запустить их независимыми горутинами.
func (s *Scheduler) Tick(ctx context.Context) {
	campaigns, err := s.db.GetActiveCampaigns()
	if err != nil {
		log.Printf("[SCHEDULER] не удалось загрузить кампании: %v", err)
		return
	}
	if len(campaigns) == 0 {
		return
	}

	accounts, err := s.db.GetAuthorizedAccounts()
	if err != nil {
		log.Printf("[SCHEDULER] не удалось загрузить аккаунты: %v", err)
		return
	}
	accByID := make(map[int]models.Account, len(accounts))
	for _, acc := range accounts {
		accByID[acc.ID] = acc
	}

	// Смещения пересчитываются каждый проход: состав групп мог измениться
	offsets := stagger.Offsets(campaigns)
	now := time.Now()

	for _, c := range campaigns {
		if c.NextRunAt == nil {
			s.initNextRun(c)
			continue
		}
		if c.NextRunAt.After(now) || s.isActive(c.ID) {
			continue
		}

		acc, ok := accByID[c.AccountID]
		if !ok {
			log.Printf("[SCHEDULER] кампания %d пропущена: аккаунт %d не авторизован", c.ID, c.AccountID)
			continue
		}
		// Пропуск без пересчёта next_run_at: кампания запустится,
		// как только аккаунт вернётся в строй
		if s.tracker.IsUnauthorized(acc.ID) {
			log.Printf("[SCHEDULER] кампания %d пропущена: аккаунт %d требует повторной авторизации", c.ID, acc.ID)
			continue
		}
		if s.tracker.IsInCooldown(acc.ID) {
			log.Printf("[SCHEDULER] кампания %d пропущена: аккаунт %d остывает", c.ID, acc.ID)
			continue
		}

		s.launch(ctx, c, acc, offsets[c.ID])
	}
}

// initNextRun назначает первый запуск свежесозданной кампании.
func (s *Scheduler) initNextRun(c models.Campaign) {
	sched, err := Parse(c.ScheduleType, c.ScheduleTime)
	if err != nil {
		log.Printf("[SCHEDULER] кампания %d: некорректное расписание: %v", c.ID, err)
		return
	}
	first := sched.First(c.CreatedAt)
	if err := s.db.UpdateCampaignNextRun(c.ID, first, nil); err != nil {
		log.Printf("[SCHEDULER] кампания %d: не удалось назначить первый запуск: %v", c.ID, err)
	}
}

func (s *Scheduler) isActive(campaignID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.waiting[campaignID]; ok {
		return true
	}
	_, ok := s.running[campaignID]
	return ok
}

// launch запускает цепочку ожидание слота → захват аккаунта → прогон.
// Пока кампания ждёт слот, пауза отменяет запуск; начатый прогон довыполняется.
func (s *Scheduler) launch(ctx context.Context, c models.Campaign, acc models.Account, offset time.Duration) {
	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	// Слот разведения уже был отсижен перед прогоном, упёршимся в занятый
	// аккаунт; повторная оплата смещения лишь бесконечно оттягивала бы запуск
	if s.busy[c.ID] {
		delete(s.busy, c.ID)
		offset = 0
	}
	s.waiting[c.ID] = cancel
	s.mu.Unlock()

	go func() {
		defer cancel()

		if offset > 0 {
			log.Printf("[SCHEDULER] кампания %d ждёт слот разведения %s", c.ID, offset)
			if err := common.WaitDuration(runCtx, offset); err != nil {
				log.Printf("[SCHEDULER] запуск кампании %d отменён во время ожидания", c.ID)
				s.mu.Lock()
				delete(s.waiting, c.ID)
				s.mu.Unlock()
				return
			}
		}

		// Ожидание закончилось, прогон больше не отменяется паузой
		s.mu.Lock()
		delete(s.waiting, c.ID)
		s.running[c.ID] = struct{}{}
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.running, c.ID)
			s.mu.Unlock()
		}()

		// Перечитываем кампанию: за время ожидания её могли изменить или поставить на паузу
		fresh, err := s.db.GetCampaignByID(c.ID)
		if err != nil {
			log.Printf("[SCHEDULER] кампания %d: не удалось перечитать: %v", c.ID, err)
			return
		}
		if fresh.Status == models.CampaignPaused {
			return
		}

		s.runCampaign(runCtx, *fresh, acc, true)
	}()
}

// runCampaign захватывает аккаунт, выполняет прогон и разбирает его итоги.
// При reschedule=false (ручной запуск) сетка расписания не трогается.
func (s *Scheduler) runCampaign(ctx context.Context, c models.Campaign, acc models.Account, reschedule bool) {
	startedAt := time.Now()

	conn, err := s.tracker.Acquire(ctx, acc)
	if err != nil {
		// Занятость и остывание не фатальны: кампания уйдёт на следующий тик
		if errors.Is(err, health.ErrBusy) {
			s.mu.Lock()
			s.busy[c.ID] = true
			s.mu.Unlock()
		}
		log.Printf("[SCHEDULER] кампания %d: аккаунт недоступен: %v", c.ID, err)
		return
	}
	defer s.tracker.Release(acc.ID)

	run := c
	if s.Transform != nil && run.ContentText != "" {
		run.ContentText = s.Transform(run.ContentText)
	}

	log.Printf("[SCHEDULER] кампания %d: прогон начат, целей: %d", c.ID, len(run.TargetChats))
	res := s.exec.Run(ctx, conn, run, s.tracker.PacingMultiplier(acc.ID))

	switch res.Signal {
	case executor.SignalPeerFlood:
		s.tracker.ReportPeerFlood(acc)
	case executor.SignalAuthLost:
		s.tracker.ReportAuthFailure(acc)
	}

	attempts, successes, failures := res.Attempts()
	if len(res.Outcomes) > 0 {
		if err := s.db.IncrementCampaignStats(c.ID, attempts, successes, failures); err != nil {
			log.Printf("[SCHEDULER] кампания %d: счётчики не сохранены: %v", c.ID, err)
		}
	}
	log.Printf("[SCHEDULER] кампания %d: прогон завершён, попыток %d, успехов %d", c.ID, attempts, successes)

	if reschedule {
		s.reschedule(c, startedAt)
	}
}

// reschedule вычисляет следующий запуск по сетке расписания.
// Однократные кампании после прогона встают на паузу.
func (s *Scheduler) reschedule(c models.Campaign, startedAt time.Time) {
	sched, err := Parse(c.ScheduleType, c.ScheduleTime)
	if err != nil {
		log.Printf("[SCHEDULER] кампания %d: некорректное расписание: %v", c.ID, err)
		return
	}

	next := sched.Next(c.CreatedAt, time.Now())
	if next.IsZero() {
		if err := s.db.UpdateCampaignStatus(c.ID, models.CampaignPaused); err != nil {
			log.Printf("[SCHEDULER] кампания %d: не удалось поставить на паузу: %v", c.ID, err)
		}
		next = startedAt
	}
	if err := s.db.UpdateCampaignNextRun(c.ID, next, &startedAt); err != nil {
		log.Printf("[SCHEDULER] кампания %d: не удалось перепланировать: %v", c.ID, err)
	}
}

// Create проверяет расписание, назначает первый запуск и сохраняет кампанию.
func (s *Scheduler) Create(c models.Campaign) (*models.Campaign, error) {
	if c.AccountID == 0 {
		return nil, fmt.Errorf("account_id обязателен")
	}
	if len(c.TargetChats) == 0 {
		return nil, fmt.Errorf("нужен хотя бы один целевой чат")
	}
	if c.ContentText == "" && c.StorageChannel == "" {
		return nil, fmt.Errorf("нужен текст или ссылка на сообщение в канале-хранилище")
	}
	sched, err := Parse(c.ScheduleType, c.ScheduleTime)
	if err != nil {
		return nil, err
	}
	if c.Status == "" {
		c.Status = models.CampaignActive
	}

	first := sched.First(time.Now())
	c.NextRunAt = &first
	return s.db.CreateCampaign(c)
}

// Pause останавливает кампанию: ожидание слота отменяется,
// начатый прогон довыполняется до конца.
func (s *Scheduler) Pause(id int) error {
	if err := s.db.UpdateCampaignStatus(id, models.CampaignPaused); err != nil {
		return err
	}
	s.mu.Lock()
	cancel, ok := s.waiting[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	log.Printf("[SCHEDULER] кампания %d поставлена на паузу", id)
	return nil
}

// Resume возвращает кампанию в работу и назначает следующий запуск по сетке,
// не нагоняя пропущенные за время паузы прогоны.
func (s *Scheduler) Resume(id int) error {
	c, err := s.db.GetCampaignByID(id)
	if err != nil {
		return err
	}
	sched, err := Parse(c.ScheduleType, c.ScheduleTime)
	if err != nil {
		return err
	}

	next := sched.Next(c.CreatedAt, time.Now())
	if next.IsZero() {
		// однократная кампания при возобновлении выполняется ещё раз
		next = time.Now()
	}
	if err := s.db.UpdateCampaignStatus(id, models.CampaignActive); err != nil {
		return err
	}
	log.Printf("[SCHEDULER] кампания %d возобновлена, следующий запуск %s", id, next.Format(time.RFC3339))
	return s.db.UpdateCampaignNextRun(id, next, nil)
}

// RunNow запускает кампанию вне расписания. Проверки здоровья аккаунта
// сохраняются, сетка будущих запусков не сдвигается. Непустой overrideTarget
// ограничивает пробный прогон одним чатом.
func (s *Scheduler) RunNow(id int, overrideTarget string) error {
	c, err := s.db.GetCampaignByID(id)
	if err != nil {
		return err
	}
	acc, err := s.db.GetAccountByID(c.AccountID)
	if err != nil {
		return err
	}
	if !acc.IsAuthorized || s.tracker.IsUnauthorized(acc.ID) {
		return fmt.Errorf("%w: аккаунт %d", health.ErrUnauthorized, acc.ID)
	}
	if s.tracker.IsInCooldown(acc.ID) {
		return fmt.Errorf("%w: аккаунт %d", health.ErrCoolingDown, acc.ID)
	}
	if s.isActive(c.ID) {
		return fmt.Errorf("кампания %d уже выполняется", c.ID)
	}

	run := *c
	if overrideTarget != "" {
		run.TargetChats = []string{overrideTarget}
	}

	s.mu.Lock()
	s.running[c.ID] = struct{}{}
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.running, c.ID)
			s.mu.Unlock()
		}()
		// Ручной прогон живёт не дольше самого сервиса
		s.runCampaign(s.baseCtx, run, *acc, false)
	}()
	return nil
}

// Statistics возвращает счётчики кампании и последние ошибки по целям.
func (s *Scheduler) Statistics(id int) (*models.CampaignStatistics, error) {
	return s.db.GetCampaignStatistics(id)
}

// Delete останавливает ожидание кампании и удаляет её вместе с журналом.
func (s *Scheduler) Delete(id int) error {
	s.mu.Lock()
	cancel, ok := s.waiting[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return s.db.DeleteCampaign(id)
}
