package accounts

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strconv"

	"bump_go/internal/health"
	"bump_go/internal/httputil"
	"bump_go/models"
	"bump_go/pkg/storage"
	"bump_go/pkg/telegram"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	DB      *storage.DB
	Tracker *health.Tracker
}

func NewHandler(db *storage.DB, tracker *health.Tracker) *Handler {
	return &Handler{DB: db, Tracker: tracker}
}

// CreateAccount сохраняет аккаунт и отправляет код подтверждения на телефон.
func (h *Handler) CreateAccount(c *gin.Context) {
	var account models.Account
	if err := c.ShouldBindJSON(&account); err != nil {
		httputil.RespondError(c, http.StatusBadRequest, "Invalid data")
		return
	}
	// Обнуляем ID, чтобы БД назначила его автоматически
	account.ID = 0

	if account.ProxyID != nil {
		p, err := h.DB.GetProxyByID(*account.ProxyID)
		if err != nil {
			httputil.RespondError(c, http.StatusBadRequest, "Proxy not found")
			return
		}
		account.Proxy = p
	}

	created, err := h.DB.CreateAccount(account)
	if err != nil {
		log.Printf("[ERROR] Не удалось создать аккаунт в БД: %v", err)
		httputil.RespondError(c, http.StatusInternalServerError, "DB error")
		return
	}
	created.Proxy = account.Proxy

	// Отправляем код подтверждения и сохраняем хеш в БД
	if _, err := telegram.RequestCode(h.DB, *created); err != nil {
		log.Printf("[ERROR] Не удалось получить код: %v", err)
		httputil.RespondError(c, http.StatusInternalServerError, "Failed to request code")
		return
	}

	log.Printf("[INFO] Аккаунт сохранён в БД с ID=%d", created.ID)
	c.JSON(http.StatusOK, gin.H{"id": created.ID, "результат": "готово, теперь нужно подтвердить кодом"})
}

// RequestCode повторно отправляет код существующему аккаунту.
// Используется для возврата аккаунта после потери авторизации.
func (h *Handler) RequestCode(c *gin.Context) {
	account, ok := h.loadAccount(c)
	if !ok {
		return
	}
	if _, err := telegram.RequestCode(h.DB, *account); err != nil {
		log.Printf("[ERROR] Не удалось получить код для аккаунта %d: %v", account.ID, err)
		httputil.RespondError(c, http.StatusInternalServerError, "Failed to request code")
		return
	}
	c.JSON(http.StatusOK, gin.H{"результат": "код отправлен"})
}

// VerifyAccount завершает авторизацию по коду подтверждения
// и возвращает аккаунт в ротацию планировщика.
func (h *Handler) VerifyAccount(c *gin.Context) {
	var input struct {
		Code     string `json:"code"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&input); err != nil || input.Code == "" {
		httputil.RespondError(c, http.StatusBadRequest, "Invalid code")
		return
	}

	account, ok := h.loadAccount(c)
	if !ok {
		return
	}

	if err := telegram.CompleteAuthorization(h.DB, *account, input.Code, input.Password); err != nil {
		httputil.RespondError(c, http.StatusBadRequest, "Auth failed: "+err.Error())
		return
	}

	// Помечаем аккаунт как авторизованный
	if err := h.DB.MarkAccountAsAuthorized(account.ID); err != nil {
		httputil.RespondError(c, http.StatusInternalServerError, "Failed to mark account as authorized")
		return
	}
	// Возвращаем аккаунт в ротацию
	h.Tracker.MarkAuthorized(account.ID)

	log.Printf("[INFO] Аккаунт %d авторизован", account.ID)
	c.JSON(http.StatusOK, gin.H{"status": "Authorized!"})
}

// CreateProxy сохраняет прокси для последующей привязки к аккаунтам.
func (h *Handler) CreateProxy(c *gin.Context) {
	var p models.Proxy
	if err := c.ShouldBindJSON(&p); err != nil {
		httputil.RespondError(c, http.StatusBadRequest, "Invalid data")
		return
	}
	created, err := h.DB.CreateProxy(p)
	if err != nil {
		log.Printf("[ERROR] Не удалось создать прокси: %v", err)
		httputil.RespondError(c, http.StatusInternalServerError, "DB error")
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) loadAccount(c *gin.Context) (*models.Account, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		httputil.RespondError(c, http.StatusBadRequest, "некорректный id аккаунта")
		return nil, false
	}
	account, err := h.DB.GetAccountByID(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			httputil.RespondError(c, http.StatusNotFound, "Account not found")
			return nil, false
		}
		log.Printf("[ERROR] Не удалось получить аккаунт %d: %v", id, err)
		httputil.RespondError(c, http.StatusInternalServerError, "DB error")
		return nil, false
	}
	return account, true
}
