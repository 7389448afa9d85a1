package fee

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"kassenwart/internal/event"
	"kassenwart/internal/registration"
)

type Handler struct {
	service Service
}

func NewHandler(db *sqlx.DB) *Handler {
	return &Handler{
		service: NewService(
			NewRepository(db),
			event.NewRepository(db),
			registration.NewRepository(db),
		),
	}
}

type DefinitionRequest struct {
	Title     string `json:"title" binding:"required"`
	Kind      string `json:"kind" binding:"required"`
	Amount    string `json:"amount" binding:"required"`
	Condition string `json:"condition"`
	Notes     string `json:"notes"`
}

type PreviewRequest struct {
	RegistrationID int                    `json:"registration_id" binding:"required"`
	Fields         map[string]interface{} `json:"fields"`
}

func (h *Handler) bindDefinition(c *gin.Context) (*Definition, bool) {
	var req DefinitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a decimal number"})
		return nil, false
	}

	return &Definition{
		Title:     req.Title,
		Kind:      Kind(req.Kind),
		Amount:    amount,
		Condition: req.Condition,
		Notes:     req.Notes,
	}, true
}

// @Summary      Create a fee definition
// @Tags         fees
// @Accept       json
// @Produce      json
// @Param        eventID path int true "Event ID"
// @Success      201 {object} Definition
// @Failure      400 {object} api.ErrorResponse
// @Router       /events/{eventID}/fees [post]
func (h *Handler) CreateDefinition(c *gin.Context) {
	eventID, err := strconv.Atoi(c.Param("eventID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	def, ok := h.bindDefinition(c)
	if !ok {
		return
	}
	def.EventID = eventID

	created, err := h.service.CreateDefinition(c.Request.Context(), def)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrInvalidKind) || errors.Is(err, ErrInvalidAmount) || errors.Is(err, ErrInvalidCondition) {
			status = http.StatusBadRequest
		} else if errors.Is(err, event.ErrEventNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, created)
}

func (h *Handler) ListDefinitions(c *gin.Context) {
	eventID, err := strconv.Atoi(c.Param("eventID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	defs, err := h.service.ListDefinitions(c.Request.Context(), eventID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load fee definitions"})
		return
	}

	c.JSON(http.StatusOK, defs)
}

func (h *Handler) UpdateDefinition(c *gin.Context) {
	feeID, err := strconv.Atoi(c.Param("feeID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid fee id"})
		return
	}

	def, ok := h.bindDefinition(c)
	if !ok {
		return
	}
	def.ID = feeID

	updated, err := h.service.UpdateDefinition(c.Request.Context(), def)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrInvalidKind) || errors.Is(err, ErrInvalidAmount) || errors.Is(err, ErrInvalidCondition) {
			status = http.StatusBadRequest
		} else if errors.Is(err, ErrDefinitionNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, updated)
}

func (h *Handler) DeleteDefinition(c *gin.Context) {
	feeID, err := strconv.Atoi(c.Param("feeID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid fee id"})
		return
	}

	err = h.service.DeleteDefinition(c.Request.Context(), feeID)
	switch {
	case errors.Is(err, ErrDefinitionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrEventLocked):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete fee definition"})
	default:
		c.JSON(http.StatusOK, gin.H{"message": "fee definition deleted"})
	}
}

// Preview evaluates the event's fees against hypothetical field values
// without persisting anything.
func (h *Handler) Preview(c *gin.Context) {
	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.Preview(c.Request.Context(), req.RegistrationID, req.Fields)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, registration.ErrRegistrationNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// @Summary      Recompute amount_owed for all registrations of an event
// @Tags         fees
// @Produce      json
// @Param        eventID path int true "Event ID"
// @Success      200 {object} RecomputeReport
// @Router       /events/{eventID}/recompute [post]
func (h *Handler) RecomputeEvent(c *gin.Context) {
	eventID, err := strconv.Atoi(c.Param("eventID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	report, err := h.service.RecomputeEvent(c.Request.Context(), eventID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, event.ErrEventNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}

func (h *Handler) FeeStats(c *gin.Context) {
	eventID, err := strconv.Atoi(c.Param("eventID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	stats, err := h.service.FeeStats(c.Request.Context(), eventID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute fee stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}
