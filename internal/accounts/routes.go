package accounts

import (
	"bump_go/internal/health"
	"bump_go/pkg/storage"

	"github.com/gin-gonic/gin"
)

// SetupRoutes регистрирует маршруты управления аккаунтами и прокси.
func SetupRoutes(r *gin.RouterGroup, db *storage.DB, tracker *health.Tracker) {
	h := NewHandler(db, tracker)
	r.POST("/CreateAccount", h.CreateAccount)
	r.POST("/RequestCode/:id", h.RequestCode)
	r.POST("/VerifyAccount/:id", h.VerifyAccount)
	r.POST("/CreateProxy", h.CreateProxy)
}
