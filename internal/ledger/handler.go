package ledger

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"kassenwart/internal/auth"
	"kassenwart/internal/config"
)

type Handler struct {
	service Service
	cfg     *config.Config
}

func NewHandler(service Service, cfg *config.Config) *Handler {
	return &Handler{service: service, cfg: cfg}
}

type PaymentRequest struct {
	Amount          string `json:"amount" binding:"required"`
	TransactionDate string `json:"transaction_date"`
	Note            string `json:"note"`
}

// BookPayment godoc
// @Summary      Record an incoming payment for a persona
// @Tags         ledger
// @Accept       json
// @Produce      json
// @Param        personaID path int true "Persona ID"
// @Success      201 {object} FinanceLogEntry
// @Failure      400 {object} api.ErrorResponse
// @Router       /admin/personas/{personaID}/payments [post]
func (h *Handler) BookPayment(c *gin.Context) {
	personaID, err := strconv.Atoi(c.Param("personaID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid persona id"})
		return
	}

	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a positive decimal"})
		return
	}

	var transactionDate *time.Time
	if req.TransactionDate != "" {
		d, err := time.Parse("2006-01-02", req.TransactionDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "transaction_date must be YYYY-MM-DD"})
			return
		}
		transactionDate = &d
	}

	var submittedBy *int
	if adminID, ok := auth.GetPersonaID(c); ok {
		submittedBy = &adminID
	}

	entry, err := h.service.BookPayment(c.Request.Context(), personaID, amount, transactionDate, submittedBy, req.Note)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrPersonaNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, entry)
}

// BillSemester godoc
// @Summary      Run period-close membership billing
// @Tags         ledger
// @Produce      json
// @Success      200 {object} BillingReport
// @Router       /admin/semester/bill [post]
func (h *Handler) BillSemester(c *gin.Context) {
	var submittedBy *int
	if adminID, ok := auth.GetPersonaID(c); ok {
		submittedBy = &adminID
	}

	report, err := h.service.BillSemester(c.Request.Context(), h.cfg.SemesterFee, submittedBy)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}

// ListLog serves the finance log, paginated and filterable by code,
// persona and date range.
func (h *Handler) ListLog(c *gin.Context) {
	filter := LogFilter{Code: LogCode(c.Query("code"))}
	if filter.Code != "" && !filter.Code.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown log code"})
		return
	}

	filter.PersonaID, _ = strconv.Atoi(c.DefaultQuery("persona_id", "0"))
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	filter.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	if from := c.Query("from"); from != "" {
		d, err := time.Parse("2006-01-02", from)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be YYYY-MM-DD"})
			return
		}
		filter.From = &d
	}
	if to := c.Query("to"); to != "" {
		d, err := time.Parse("2006-01-02", to)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be YYYY-MM-DD"})
			return
		}
		filter.To = &d
	}

	entries, err := h.service.ListLog(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load finance log"})
		return
	}

	c.JSON(http.StatusOK, entries)
}

// ListMyLog serves the caller's own finance log entries.
func (h *Handler) ListMyLog(c *gin.Context) {
	personaID, ok := auth.GetPersonaID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "persona not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, err := h.service.ListLog(c.Request.Context(), LogFilter{
		PersonaID: personaID,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load finance log"})
		return
	}

	c.JSON(http.StatusOK, entries)
}
