package campaigns

import (
	"bump_go/internal/scheduler"

	"github.com/gin-gonic/gin"
)

// SetupRoutes регистрирует маршруты управления кампаниями.
func SetupRoutes(r *gin.RouterGroup, sched *scheduler.Scheduler) {
	h := NewHandler(sched)
	r.POST("/CreateCampaign", h.CreateCampaign)
	r.POST("/PauseCampaign/:id", h.PauseCampaign)
	r.POST("/ResumeCampaign/:id", h.ResumeCampaign)
	r.POST("/RunCampaignNow/:id", h.RunCampaignNow)
	r.GET("/Statistics/:id", h.CampaignStatistics)
	r.DELETE("/DeleteCampaign/:id", h.DeleteCampaign)
}
