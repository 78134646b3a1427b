package statistics

import (
	"bump_go/pkg/storage"

	"github.com/gin-gonic/gin"
)

// SetupRoutes регистрирует маршруты статистики.
func SetupRoutes(r *gin.RouterGroup, db *storage.DB) {
	h := NewHandler(db)
	r.GET("/Collect", h.Collect)
}
