package campaigns

import (
	"errors"
	"net/http"
	"strconv"

	"bump_go/internal/health"
	"bump_go/internal/httputil"
	"bump_go/internal/scheduler"
	"bump_go/models"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	sched *scheduler.Scheduler
}

func NewHandler(sched *scheduler.Scheduler) *Handler {
	return &Handler{sched: sched}
}

// CreateCampaign создаёт кампанию рассылки и назначает ей первый запуск.
func (h *Handler) CreateCampaign(c *gin.Context) {
	var req struct {
		AccountID        int      `json:"account_id"`
		Name             string   `json:"name"`
		StorageChannel   string   `json:"storage_channel"`
		StorageMessageID int      `json:"storage_message_id"`
		ContentText      string   `json:"content_text"`
		TargetChats      []string `json:"target_chats"`
		ScheduleType     string   `json:"schedule_type"`
		ScheduleTime     string   `json:"schedule_time"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondError(c, http.StatusBadRequest, "некорректное тело запроса: "+err.Error())
		return
	}

	campaign, err := h.sched.Create(models.Campaign{
		AccountID:        req.AccountID,
		Name:             req.Name,
		StorageChannel:   req.StorageChannel,
		StorageMessageID: req.StorageMessageID,
		ContentText:      req.ContentText,
		TargetChats:      req.TargetChats,
		ScheduleType:     req.ScheduleType,
		ScheduleTime:     req.ScheduleTime,
	})
	if err != nil {
		httputil.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusCreated, campaign)
}

// PauseCampaign снимает кампанию с расписания. Начатый прогон довыполняется.
func (h *Handler) PauseCampaign(c *gin.Context) {
	id, ok := campaignID(c)
	if !ok {
		return
	}
	if err := h.sched.Pause(id); err != nil {
		httputil.RespondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.CampaignPaused})
}

// ResumeCampaign возвращает кампанию в расписание без нагона пропусков.
func (h *Handler) ResumeCampaign(c *gin.Context) {
	id, ok := campaignID(c)
	if !ok {
		return
	}
	if err := h.sched.Resume(id); err != nil {
		httputil.RespondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.CampaignActive})
}

// RunCampaignNow запускает кампанию немедленно, минуя расписание.
// Необязательное поле target ограничивает пробный прогон одним чатом.
func (h *Handler) RunCampaignNow(c *gin.Context) {
	id, ok := campaignID(c)
	if !ok {
		return
	}
	var req struct {
		Target string `json:"target"`
	}
	_ = c.ShouldBindJSON(&req) // тело необязательно

	if err := h.sched.RunNow(id, req.Target); err != nil {
		switch {
		case errors.Is(err, health.ErrUnauthorized), errors.Is(err, health.ErrCoolingDown):
			httputil.RespondError(c, http.StatusConflict, err.Error())
		default:
			httputil.RespondError(c, http.StatusInternalServerError, err.Error())
		}
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

// CampaignStatistics отдаёт счётчики кампании и последние ошибки по целям.
func (h *Handler) CampaignStatistics(c *gin.Context) {
	id, ok := campaignID(c)
	if !ok {
		return
	}
	stat, err := h.sched.Statistics(id)
	if err != nil {
		httputil.RespondError(c, http.StatusNotFound, "кампания не найдена")
		return
	}
	c.JSON(http.StatusOK, stat)
}

// DeleteCampaign удаляет кампанию вместе с журналом доставки.
func (h *Handler) DeleteCampaign(c *gin.Context) {
	id, ok := campaignID(c)
	if !ok {
		return
	}
	if err := h.sched.Delete(id); err != nil {
		httputil.RespondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func campaignID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		httputil.RespondError(c, http.StatusBadRequest, "некорректный id кампании")
		return 0, false
	}
	return id, true
}
