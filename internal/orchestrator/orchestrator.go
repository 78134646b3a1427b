// Package orchestrator — цикл, который двигает планировщик.
package orchestrator

import (
	"context"
	"log"
	"time"

	"bump_go/internal/scheduler"
	"bump_go/pkg/storage"
)

type Orchestrator struct {
	db         *storage.DB
	sched      *scheduler.Scheduler
	tick       time.Duration
	statsEvery time.Duration
}

func New(db *storage.DB, sched *scheduler.Scheduler, tick, statsEvery time.Duration) *Orchestrator {
	return &Orchestrator{db: db, sched: sched, tick: tick, statsEvery: statsEvery}
}

// Run крутит проходы планировщика с фиксированным интервалом и периодически
// обновляет суточный срез статистики. Завершается по отмене контекста.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.tick)
	defer ticker.Stop()
	stats := time.NewTicker(o.statsEvery)
	defer stats.Stop()

	log.Printf("[ORCHESTRATOR] цикл запущен, тик %s", o.tick)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[ORCHESTRATOR] цикл остановлен")
			return
		case <-ticker.C:
			o.sched.Tick(ctx)
		case <-stats.C:
			if _, err := o.db.CalculateStatistics(); err != nil {
				log.Printf("[ORCHESTRATOR] не удалось обновить статистику: %v", err)
			}
		}
	}
}
