package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"

	"bump_go/internal/accounts"
	"bump_go/internal/campaigns"
	"bump_go/internal/config"
	"bump_go/internal/executor"
	"bump_go/internal/health"
	"bump_go/internal/middleware"
	"bump_go/internal/orchestrator"
	"bump_go/internal/scheduler"
	"bump_go/internal/statistics"
	"bump_go/models"
	"bump_go/pkg/storage"
	"bump_go/pkg/telegram"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
)

func main() {
	cfg, err := config.Load(configPath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация подключения к БД
	dbConn, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbConn.Close()

	// Проверка подключения
	if err := dbConn.Ping(); err != nil {
		log.Fatalf("Database ping failed: %v", err)
	}

	db := storage.NewDB(dbConn)

	// Трекер здоровья владеет соединениями аккаунтов
	dialer := telegram.NewDialer(db)
	tracker := health.NewTracker(db, health.DialerFunc(
		func(ctx context.Context, acc models.Account) (health.Conn, error) {
			return dialer.Dial(ctx, acc)
		},
	), cfg.Health, cfg.Reconnect)

	// Восстанавливаем остывание, прогрев и потерю авторизации после перезапуска
	if accs, err := db.GetAllAccounts(); err == nil {
		tracker.Prime(accs)
	} else {
		log.Printf("[MAIN] не удалось восстановить состояние аккаунтов: %v", err)
	}

	// Планировщик и его прогоны живут до сигнала остановки
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exec := executor.New(cfg.Retry, cfg.Pacing, db)
	sched := scheduler.New(ctx, db, tracker, exec)

	go orchestrator.New(db, sched, cfg.Tick, cfg.StatsEvery).Run(ctx)

	r := setupRouter(db, tracker, sched, cfg.APIToken)

	log.Printf("Starting server on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// configPath берёт путь к конфигу из окружения, по умолчанию config.yaml рядом с бинарником.
func configPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return "config.yaml"
}

// Настройка маршрутов
func setupRouter(db *storage.DB, tracker *health.Tracker, sched *scheduler.Scheduler, apiToken string) *gin.Engine {
	r := gin.Default()

	// Группа роутов для аккаунтов и прокси
	accountsGroup := r.Group("/accounts", middleware.AuthRequired(apiToken))
	accounts.SetupRoutes(accountsGroup, db, tracker)

	// Группа роутов для кампаний рассылки
	campaignsGroup := r.Group("/campaigns", middleware.AuthRequired(apiToken))
	campaigns.SetupRoutes(campaignsGroup, sched)

	// Группа роутов для статистики
	statisticsGroup := r.Group("/statistics", middleware.AuthRequired(apiToken))
	statistics.SetupRoutes(statisticsGroup, db)

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Логирование зарегистрированных роутов
	log.Printf("[ROUTER] Routes initialized:")
	log.Printf("[ROUTER] POST /accounts/CreateAccount")
	log.Printf("[ROUTER] POST /campaigns/CreateCampaign")
	log.Printf("[ROUTER] GET /health")

	return r
}
