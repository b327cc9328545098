package handlers

import (
	"net/http"

	"dinein_backend/internal/payments"
	"dinein_backend/internal/services"
	"dinein_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// CallbackHandler receives provider webhooks. Providers always get HTTP 200 with
// their own protocol error codes in the body.
type CallbackHandler struct {
	callbacks services.CallbackService
	accounts  services.AccountService
}

func NewCallbackHandler(cs services.CallbackService, as services.AccountService) *CallbackHandler {
	return &CallbackHandler{callbacks: cs, accounts: as}
}

func (h *CallbackHandler) bindClick(c *gin.Context) (payments.ClickRequest, bool) {
	var req payments.ClickRequest
	if err := c.ShouldBind(&req); err != nil {
		utils.LogWarn("Click callback with invalid payload", map[string]interface{}{"error": err.Error()})
		c.JSON(http.StatusOK, payments.ClickResponse{
			ClickTransID:    req.ClickTransID,
			MerchantTransID: req.MerchantTransID,
			Error:           payments.ClickBadRequest,
			ErrorNote:       "Error in request from click",
		})
		return req, false
	}
	return req, true
}

// ClickPrepare handles POST /api/v1/click-prepare/.
func (h *CallbackHandler) ClickPrepare(c *gin.Context) {
	req, ok := h.bindClick(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.callbacks.ClickPrepare(c.Request.Context(), req))
}

// ClickComplete handles POST /api/v1/click-complete/.
func (h *CallbackHandler) ClickComplete(c *gin.Context) {
	req, ok := h.bindClick(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.callbacks.ClickComplete(c.Request.Context(), req))
}

// Payme handles the JSON-RPC endpoint POST /api/v1/payme/.
func (h *CallbackHandler) Payme(c *gin.Context) {
	var req payments.PaymeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, payments.PaymeResponse{
			ID:    req.ID,
			Error: payments.NewPaymeError(payments.PaymeErrParse, "Parse error", ""),
		})
		return
	}
	c.JSON(http.StatusOK, h.callbacks.Payme(c.Request.Context(), c.GetHeader("Authorization"), req))
}

// Paylov handles POST /api/v1/paylov/ with basic auth.
func (h *CallbackHandler) Paylov(c *gin.Context) {
	var req payments.PaylovRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, payments.NewPaylovResponse(req.ID, payments.PaylovOrderNotFound, "Invalid request"))
		return
	}
	username, password, hasAuth := c.Request.BasicAuth()
	c.JSON(http.StatusOK, h.callbacks.Paylov(c.Request.Context(), username, password, hasAuth, req))
}

// Eskiz handles POST /shared/v1/eskiz-callback/.
func (h *CallbackHandler) Eskiz(c *gin.Context) {
	var req services.EskizCallbackRequest
	if err := c.ShouldBind(&req); err != nil {
		utils.RespondValidationFailed(c, "Invalid request payload: "+err.Error())
		return
	}
	if _, err := h.accounts.ApplySMSDelivery(c.Request.Context(), req); err != nil {
		respondServiceError(c, err, "apply sms delivery")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

const throttledNote = "Too many requests"

// ClickThrottled answers a rate limited Click callback in Click's format.
func (h *CallbackHandler) ClickThrottled(c *gin.Context) {
	c.JSON(http.StatusTooManyRequests, payments.ClickResponse{
		ClickTransID:    c.PostForm("click_trans_id"),
		MerchantTransID: c.PostForm("merchant_trans_id"),
		Error:           payments.ClickBadRequest,
		ErrorNote:       throttledNote,
	})
}

// PaymeThrottled answers a rate limited Payme call with a JSON-RPC system error.
func (h *CallbackHandler) PaymeThrottled(c *gin.Context) {
	var req payments.PaymeRequest
	_ = c.ShouldBindJSON(&req)
	c.JSON(http.StatusTooManyRequests, payments.PaymeResponse{
		ID:    req.ID,
		Error: payments.NewPaymeError(payments.PaymeErrSystem, throttledNote, ""),
	})
}

func (h *CallbackHandler) PaylovThrottled(c *gin.Context) {
	var req payments.PaylovRequest
	_ = c.ShouldBindJSON(&req)
	c.JSON(http.StatusTooManyRequests, payments.NewPaylovResponse(req.ID, payments.PaylovMethodNotSupported, throttledNote))
}
