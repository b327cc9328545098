package handlers

import (
	"net/http"
	"strings"

	"dinein_backend/internal/models"
	"dinein_backend/internal/services"
	"dinein_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// PaymentHandler serves transaction creation for guests and manual payments for hosts.
type PaymentHandler struct {
	paymentService services.PaymentService
}

func NewPaymentHandler(ps services.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: ps}
}

// CreateTransaction handles POST /mobile/v1/transaction-create/.
// Guests cannot record MANUAL payments; hosts use RecordManualPayment.
func (h *PaymentHandler) CreateTransaction(c *gin.Context) {
	var req services.CreateTransactionRequest
	if !bindJSON(c, &req) {
		return
	}
	if strings.EqualFold(strings.TrimSpace(req.Provider), string(models.ProviderManual)) {
		utils.RespondValidationFailed(c, "provider MANUAL is not available here")
		return
	}
	tx, err := h.paymentService.CreateTransaction(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		respondServiceError(c, err, "create transaction")
		return
	}
	c.JSON(http.StatusCreated, tx)
}

// GetTransaction handles GET /mobile/v1/transaction-detail/:id/.
func (h *PaymentHandler) GetTransaction(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	tx, err := h.paymentService.GetTransaction(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondServiceError(c, err, "fetch transaction")
		return
	}
	c.JSON(http.StatusOK, tx)
}

// RecordManualPayment handles POST /webapp/v1/visits/:id/payments/manual/.
func (h *PaymentHandler) RecordManualPayment(c *gin.Context) {
	visitID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.ManualPaymentRequest
	if !bindJSON(c, &req) {
		return
	}
	tx, err := h.paymentService.RecordManualPayment(c.Request.Context(), actorFrom(c), visitID, req)
	if err != nil {
		respondServiceError(c, err, "record manual payment")
		return
	}
	c.JSON(http.StatusCreated, tx)
}
