package lastschrift

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"kassenwart/internal/auth"
	"kassenwart/internal/persona"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// CreateMandate godoc
// @Summary      Grant a direct debit mandate for a persona
// @Tags         lastschrift
// @Accept       json
// @Produce      json
// @Param        mandate body CreateMandateRequest true "Mandate data"
// @Success      201 {object} Mandate
// @Failure      400 {object} api.ErrorResponse
// @Router       /admin/mandates [post]
func (h *Handler) CreateMandate(c *gin.Context) {
	var req CreateMandateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	donation := decimal.Zero
	if req.Donation != "" {
		var err error
		donation, err = decimal.NewFromString(req.Donation)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "donation must be a decimal"})
			return
		}
	}

	m, err := h.service.CreateMandate(c.Request.Context(), req.PersonaID, donation, req.IBAN, req.AccountOwner, req.Notes)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, ErrInvalidIBAN), errors.Is(err, ErrInvalidDonation):
			status = http.StatusBadRequest
		case errors.Is(err, persona.ErrPersonaNotFound):
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, m)
}

// RevokeMandate godoc
// @Summary      Revoke an active mandate
// @Tags         lastschrift
// @Produce      json
// @Param        mandateID path int true "Mandate ID"
// @Success      200 {object} Mandate
// @Failure      409 {object} api.ErrorResponse
// @Router       /admin/mandates/{mandateID}/revoke [post]
func (h *Handler) RevokeMandate(c *gin.Context) {
	mandateID, err := strconv.Atoi(c.Param("mandateID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid mandate id"})
		return
	}

	m, err := h.service.RevokeMandate(c.Request.Context(), mandateID)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, ErrMandateNotFound):
			status = http.StatusNotFound
		case errors.Is(err, ErrMandateRevoked):
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, m)
}

func (h *Handler) ListMandates(c *gin.Context) {
	activeOnly := c.Query("active") == "true"

	mandates, err := h.service.ListMandates(c.Request.Context(), activeOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load mandates"})
		return
	}

	c.JSON(http.StatusOK, mandates)
}

// GenerateTransactions godoc
// @Summary      Create open transactions for all debitable mandates
// @Tags         lastschrift
// @Produce      json
// @Success      200 {object} GenerationReport
// @Router       /admin/lastschrift/generate [post]
func (h *Handler) GenerateTransactions(c *gin.Context) {
	report, err := h.service.GenerateTransactions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}

// ExportPain godoc
// @Summary      Download open transactions as a pain.008.001.02 document
// @Tags         lastschrift
// @Produce      xml
// @Param        mandate_id query int false "Restrict to one mandate"
// @Success      200 {string} string "SEPA XML"
// @Failure      404 {object} api.ErrorResponse
// @Router       /admin/lastschrift/sepapain [get]
func (h *Handler) ExportPain(c *gin.Context) {
	mandateID, _ := strconv.Atoi(c.DefaultQuery("mandate_id", "0"))

	out, err := h.service.ExportPain(c.Request.Context(), mandateID)
	if err != nil {
		if errors.Is(err, ErrNothingToExport) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="sepapain.xml"`)
	c.Data(http.StatusOK, "application/xml", out)
}

// FinalizeTransactions godoc
// @Summary      Settle a batch of open transactions
// @Tags         lastschrift
// @Accept       json
// @Produce      json
// @Param        batch body FinalizeRequest true "Transaction IDs and outcome"
// @Success      200 {object} FinalizeReport
// @Failure      400 {object} api.ErrorResponse
// @Router       /admin/lastschrift/finalize [post]
func (h *Handler) FinalizeTransactions(c *gin.Context) {
	var req FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var submittedBy *int
	if adminID, ok := auth.GetPersonaID(c); ok {
		submittedBy = &adminID
	}

	report, err := h.service.FinalizeTransactions(c.Request.Context(), req.TransactionIDs, req.Outcome, submittedBy)
	if err != nil {
		if errors.Is(err, ErrInvalidOutcome) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}
