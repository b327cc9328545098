package services

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"dinein_backend/internal/config"
	"dinein_backend/internal/models"
	"dinein_backend/internal/payments"
	"dinein_backend/pkg/utils"

	"github.com/shopspring/decimal"
)

// --- CallbackService Interface ---
type CallbackService interface {
	ClickPrepare(ctx context.Context, req payments.ClickRequest) payments.ClickResponse
	ClickComplete(ctx context.Context, req payments.ClickRequest) payments.ClickResponse
	Payme(ctx context.Context, authHeader string, req payments.PaymeRequest) payments.PaymeResponse
	Paylov(ctx context.Context, username, password string, hasAuth bool, req payments.PaylovRequest) payments.PaylovResponse
}

// --- callbackService Implementation ---
type callbackService struct {
	payments PaymentService
	cfg      config.PaymentsConfig
}

// NewCallbackService translates provider webhooks into settlement calls.
// Replayed callbacks for an already settled transaction are answered with the settled state.
func NewCallbackService(paymentService PaymentService, cfg config.PaymentsConfig) CallbackService {
	return &callbackService{payments: paymentService, cfg: cfg}
}

func parseOrderID(raw string) (int64, bool) {
	return utils.StrToPositiveInt64(raw)
}

// ---------------- Click ----------------

func clickReply(req payments.ClickRequest, code int, note string) payments.ClickResponse {
	return payments.ClickResponse{
		ClickTransID:    req.ClickTransID,
		MerchantTransID: req.MerchantTransID,
		Error:           code,
		ErrorNote:       note,
	}
}

// clickLookup runs the checks shared by prepare and complete.
func (s *callbackService) clickLookup(ctx context.Context, req payments.ClickRequest, action int) (*models.PaymentTransaction, *payments.ClickResponse) {
	if req.Action != action {
		r := clickReply(req, payments.ClickActionNotFound, "Action not found")
		return nil, &r
	}
	if req.ServiceID != s.cfg.Click.ServiceID || !payments.VerifyClickSign(s.cfg.Click.SecretKey, req) {
		r := clickReply(req, payments.ClickSignFailed, "SIGN CHECK FAILED")
		return nil, &r
	}
	id, ok := parseOrderID(req.MerchantTransID)
	if !ok {
		r := clickReply(req, payments.ClickTransactionNotFound, "Transaction not found")
		return nil, &r
	}
	tx, err := s.payments.Lookup(ctx, id)
	if err != nil || tx.Provider != models.ProviderClick {
		r := clickReply(req, payments.ClickTransactionNotFound, "Transaction not found")
		return nil, &r
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.Equal(tx.Amount) {
		r := clickReply(req, payments.ClickIncorrectAmount, "Incorrect parameter amount")
		return nil, &r
	}
	return tx, nil
}

func (s *callbackService) ClickPrepare(ctx context.Context, req payments.ClickRequest) payments.ClickResponse {
	tx, reply := s.clickLookup(ctx, req, payments.ClickActionPrepare)
	if reply != nil {
		return *reply
	}
	switch tx.Status {
	case models.PaymentStatusAccepted:
		return clickReply(req, payments.ClickAlreadyPaid, "Already paid")
	case models.PaymentStatusRejected, models.PaymentStatusCanceled:
		return clickReply(req, payments.ClickTransactionCanceled, "Transaction cancelled")
	}

	if _, err := s.payments.BindRemoteID(ctx, tx.ID, models.ProviderClick, req.ClickTransID, models.JSONMap{"click_paydoc_id": req.ClickPaydocID}); err != nil {
		utils.LogWarn("Click prepare rejected", map[string]interface{}{"transactionID": tx.ID, "error": err.Error()})
		return clickReply(req, payments.ClickTransactionCanceled, "Transaction cancelled")
	}
	resp := clickReply(req, payments.ClickOK, "Success")
	resp.MerchantPrepareID = tx.ID
	return resp
}

func (s *callbackService) ClickComplete(ctx context.Context, req payments.ClickRequest) payments.ClickResponse {
	tx, reply := s.clickLookup(ctx, req, payments.ClickActionComplete)
	if reply != nil {
		return *reply
	}
	if strings.TrimSpace(req.MerchantPrepareID) != strconv.FormatInt(tx.ID, 10) {
		return clickReply(req, payments.ClickTransactionNotFound, "Transaction not found")
	}

	// Click reports a failed payment by sending a negative error on complete.
	if req.Error < 0 {
		if tx.Status == models.PaymentStatusPending {
			if _, err := s.payments.RejectProcess(ctx, tx.ID); err != nil && !errors.Is(err, ErrConflict) {
				utils.LogError(err, "Click reject failed", map[string]interface{}{"transactionID": tx.ID})
				return clickReply(req, payments.ClickBadRequest, "Error in request from click")
			}
		}
		return clickReply(req, payments.ClickTransactionCanceled, "Transaction cancelled")
	}

	if tx.Status == models.PaymentStatusPending && tx.RemoteID != nil && *tx.RemoteID != req.ClickTransID {
		return clickReply(req, payments.ClickTransactionNotFound, "Transaction not found")
	}

	settled := tx
	if tx.Status == models.PaymentStatusPending {
		var err error
		settled, err = s.payments.SuccessProcess(ctx, tx.ID)
		if errors.Is(err, ErrConflict) {
			settled, err = s.payments.Lookup(ctx, tx.ID)
		}
		if err != nil {
			utils.LogError(err, "Click complete failed", map[string]interface{}{"transactionID": tx.ID})
			return clickReply(req, payments.ClickBadRequest, "Error in request from click")
		}
	}

	switch {
	case settled.Status == models.PaymentStatusAccepted && (settled.RemoteID == nil || *settled.RemoteID == req.ClickTransID):
		resp := clickReply(req, payments.ClickOK, "Success")
		resp.MerchantConfirmID = settled.ID
		return resp
	case settled.Status == models.PaymentStatusAccepted:
		return clickReply(req, payments.ClickAlreadyPaid, "Already paid")
	default:
		return clickReply(req, payments.ClickTransactionCanceled, "Transaction cancelled")
	}
}

// ---------------- Payme ----------------

func paymeState(tx *models.PaymentTransaction) int {
	switch tx.Status {
	case models.PaymentStatusPending:
		return payments.PaymeStateCreated
	case models.PaymentStatusAccepted:
		return payments.PaymeStatePerformed
	default:
		return payments.PaymeStateCancelled
	}
}

func millis(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixMilli()
}

func paymeCreateTime(tx *models.PaymentTransaction) int64 {
	if v, ok := tx.Extra["payme_create_time"]; ok {
		switch n := v.(type) {
		case float64:
			return int64(n)
		case int64:
			return n
		case json.Number:
			i, _ := n.Int64()
			return i
		}
	}
	return tx.CreatedAt.UnixMilli()
}

func paymeTransactionResult(tx *models.PaymentTransaction) map[string]interface{} {
	var reason interface{}
	if tx.Status == models.PaymentStatusCanceled || tx.Status == models.PaymentStatusRejected {
		reason = tx.Extra["payme_reason"]
	}
	return map[string]interface{}{
		"create_time":  paymeCreateTime(tx),
		"perform_time": millis(tx.PaidAt),
		"cancel_time":  millis(cancelTime(tx)),
		"transaction":  utils.Int64ToStr(tx.ID),
		"state":        paymeState(tx),
		"reason":       reason,
	}
}

func cancelTime(tx *models.PaymentTransaction) *time.Time {
	if tx.CanceledAt != nil {
		return tx.CanceledAt
	}
	return tx.RejectedAt
}

func (s *callbackService) Payme(ctx context.Context, authHeader string, req payments.PaymeRequest) payments.PaymeResponse {
	resp := payments.PaymeResponse{ID: req.ID}
	if !payments.CheckPaymeAuth(authHeader, s.cfg.Payme.SecretKey) {
		resp.Error = payments.NewPaymeError(payments.PaymeErrInsufficientPrivilege, "Insufficient privilege", "")
		return resp
	}

	var params payments.PaymeParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		resp.Error = payments.NewPaymeError(payments.PaymeErrParse, "Invalid JSON-RPC params", "")
		return resp
	}

	var (
		result interface{}
		perr   *payments.PaymeError
	)
	switch req.Method {
	case payments.PaymeCheckPerformTransaction:
		result, perr = s.paymeCheckPerform(ctx, params)
	case payments.PaymeCreateTransaction:
		result, perr = s.paymeCreate(ctx, params)
	case payments.PaymePerformTransaction:
		result, perr = s.paymePerform(ctx, params)
	case payments.PaymeCancelTransaction:
		result, perr = s.paymeCancel(ctx, params)
	case payments.PaymeCheckTransaction:
		result, perr = s.paymeCheck(ctx, params)
	default:
		perr = payments.NewPaymeError(payments.PaymeErrMethodNotFound, "Method not found", req.Method)
	}
	if perr != nil {
		resp.Error = perr
		return resp
	}
	resp.Result = result
	return resp
}

// paymeOrder resolves account.order_id and verifies the amount in tiyin.
func (s *callbackService) paymeOrder(ctx context.Context, params payments.PaymeParams) (*models.PaymentTransaction, *payments.PaymeError) {
	id, ok := parseOrderID(params.Account.OrderID.String())
	if !ok {
		return nil, payments.NewPaymeError(payments.PaymeErrOrderNotFound, "Order not found", "order_id")
	}
	tx, err := s.payments.Lookup(ctx, id)
	if err != nil || tx.Provider != models.ProviderPayme {
		return nil, payments.NewPaymeError(payments.PaymeErrOrderNotFound, "Order not found", "order_id")
	}
	if utils.SumToTiyin(tx.Amount) != params.Amount {
		return nil, payments.NewPaymeError(payments.PaymeErrInvalidAmount, "Invalid amount", "amount")
	}
	return tx, nil
}

func (s *callbackService) paymeCheckPerform(ctx context.Context, params payments.PaymeParams) (interface{}, *payments.PaymeError) {
	tx, perr := s.paymeOrder(ctx, params)
	if perr != nil {
		return nil, perr
	}
	if tx.Status != models.PaymentStatusPending {
		return nil, payments.NewPaymeError(payments.PaymeErrCannotPerform, "Transaction cannot be performed", "")
	}
	return map[string]interface{}{"allow": true}, nil
}

func (s *callbackService) paymeCreate(ctx context.Context, params payments.PaymeParams) (interface{}, *payments.PaymeError) {
	tx, perr := s.paymeOrder(ctx, params)
	if perr != nil {
		return nil, perr
	}
	if tx.RemoteID != nil && *tx.RemoteID == params.ID {
		return paymeTransactionResult(tx), nil
	}
	if tx.Status != models.PaymentStatusPending || tx.RemoteID != nil {
		return nil, payments.NewPaymeError(payments.PaymeErrCannotPerform, "Transaction cannot be performed", "")
	}
	bound, err := s.payments.BindRemoteID(ctx, tx.ID, models.ProviderPayme, params.ID, models.JSONMap{"payme_create_time": params.Time})
	if err != nil {
		return nil, payments.NewPaymeError(payments.PaymeErrCannotPerform, "Transaction cannot be performed", "")
	}
	return paymeTransactionResult(bound), nil
}

func (s *callbackService) paymeRemote(ctx context.Context, params payments.PaymeParams) (*models.PaymentTransaction, *payments.PaymeError) {
	tx, err := s.payments.LookupRemote(ctx, models.ProviderPayme, params.ID)
	if err != nil {
		return nil, payments.NewPaymeError(payments.PaymeErrTransactionNotFound, "Transaction not found", "")
	}
	return tx, nil
}

func (s *callbackService) paymePerform(ctx context.Context, params payments.PaymeParams) (interface{}, *payments.PaymeError) {
	tx, perr := s.paymeRemote(ctx, params)
	if perr != nil {
		return nil, perr
	}
	if tx.Status == models.PaymentStatusPending {
		settled, err := s.payments.SuccessProcess(ctx, tx.ID)
		if errors.Is(err, ErrConflict) {
			settled, err = s.payments.Lookup(ctx, tx.ID)
		}
		if err != nil {
			utils.LogError(err, "Payme perform failed", map[string]interface{}{"transactionID": tx.ID})
			return nil, payments.NewPaymeError(payments.PaymeErrCannotPerform, "Transaction cannot be performed", "")
		}
		tx = settled
	}
	if tx.Status != models.PaymentStatusAccepted {
		return nil, payments.NewPaymeError(payments.PaymeErrCannotPerform, "Transaction cannot be performed", "")
	}
	return map[string]interface{}{
		"transaction":  utils.Int64ToStr(tx.ID),
		"perform_time": millis(tx.PaidAt),
		"state":        payments.PaymeStatePerformed,
	}, nil
}

func (s *callbackService) paymeCancel(ctx context.Context, params payments.PaymeParams) (interface{}, *payments.PaymeError) {
	tx, perr := s.paymeRemote(ctx, params)
	if perr != nil {
		return nil, perr
	}
	if tx.Status == models.PaymentStatusAccepted {
		return nil, payments.NewPaymeError(payments.PaymeErrCannotCancel, "Transaction cannot be cancelled", "")
	}
	if tx.Status == models.PaymentStatusPending {
		settled, err := s.payments.Settle(ctx, tx.ID, OutcomeCancel, func(t *models.PaymentTransaction) error {
			if params.Reason != nil {
				if t.Extra == nil {
					t.Extra = models.JSONMap{}
				}
				t.Extra["payme_reason"] = *params.Reason
			}
			return nil
		})
		if errors.Is(err, ErrConflict) {
			settled, err = s.payments.Lookup(ctx, tx.ID)
		}
		if err != nil {
			utils.LogError(err, "Payme cancel failed", map[string]interface{}{"transactionID": tx.ID})
			return nil, payments.NewPaymeError(payments.PaymeErrCannotCancel, "Transaction cannot be cancelled", "")
		}
		if settled.Status == models.PaymentStatusAccepted {
			return nil, payments.NewPaymeError(payments.PaymeErrCannotCancel, "Transaction cannot be cancelled", "")
		}
		tx = settled
	}
	return map[string]interface{}{
		"transaction": utils.Int64ToStr(tx.ID),
		"cancel_time": millis(cancelTime(tx)),
		"state":       payments.PaymeStateCancelled,
	}, nil
}

func (s *callbackService) paymeCheck(ctx context.Context, params payments.PaymeParams) (interface{}, *payments.PaymeError) {
	tx, perr := s.paymeRemote(ctx, params)
	if perr != nil {
		return nil, perr
	}
	return paymeTransactionResult(tx), nil
}

// ---------------- Paylov ----------------

func (s *callbackService) Paylov(ctx context.Context, username, password string, hasAuth bool, req payments.PaylovRequest) payments.PaylovResponse {
	cfg := s.cfg.Paylov
	if !payments.CheckPaylovAuth(username, password, hasAuth, cfg.Username, cfg.Password) {
		return payments.NewPaylovResponse(req.ID, payments.PaylovUnauthorized, "Unauthorized")
	}
	var params payments.PaylovParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return payments.NewPaylovResponse(req.ID, payments.PaylovOrderNotFound, "Invalid params")
	}

	id, ok := parseOrderID(params.Account.OrderID.String())
	if !ok {
		return payments.NewPaylovResponse(req.ID, payments.PaylovOrderNotFound, "Order not found")
	}
	tx, err := s.payments.Lookup(ctx, id)
	if err != nil || tx.Provider != models.ProviderPaylov {
		return payments.NewPaylovResponse(req.ID, payments.PaylovOrderNotFound, "Order not found")
	}
	if !decimal.NewFromFloat(params.Amount).Equal(tx.Amount) {
		return payments.NewPaylovResponse(req.ID, payments.PaylovInvalidAmount, "Invalid amount")
	}

	closed := tx.Status == models.PaymentStatusCanceled || tx.Status == models.PaymentStatusRejected

	switch req.Method {
	case payments.PaylovCheck:
		if closed {
			return payments.NewPaylovResponse(req.ID, payments.PaylovTransactionCanceled, "Transaction canceled")
		}
		if tx.Status != models.PaymentStatusPending {
			return payments.NewPaylovResponse(req.ID, payments.PaylovAlreadyProcessed, "Transaction already processed")
		}
		return payments.NewPaylovResponse(req.ID, payments.PaylovOK, "OK")

	case payments.PaylovPerform:
		if tx.Status == models.PaymentStatusAccepted && tx.RemoteID != nil && *tx.RemoteID == params.TransactionID {
			return payments.NewPaylovResponse(req.ID, payments.PaylovOK, "OK")
		}
		if closed {
			return payments.NewPaylovResponse(req.ID, payments.PaylovTransactionCanceled, "Transaction canceled")
		}
		if tx.Status != models.PaymentStatusPending {
			return payments.NewPaylovResponse(req.ID, payments.PaylovAlreadyProcessed, "Transaction already processed")
		}
		if params.TransactionID != "" {
			if _, err := s.payments.BindRemoteID(ctx, tx.ID, models.ProviderPaylov, params.TransactionID, nil); err != nil {
				return payments.NewPaylovResponse(req.ID, payments.PaylovAlreadyProcessed, "Transaction already processed")
			}
		}
		settled, err := s.payments.SuccessProcess(ctx, tx.ID)
		if errors.Is(err, ErrConflict) {
			settled, err = s.payments.Lookup(ctx, tx.ID)
		}
		if err != nil || settled.Status != models.PaymentStatusAccepted {
			return payments.NewPaylovResponse(req.ID, payments.PaylovAlreadyProcessed, "Transaction already processed")
		}
		return payments.NewPaylovResponse(req.ID, payments.PaylovOK, "OK")

	case payments.PaylovCancel:
		if tx.Status == models.PaymentStatusCanceled {
			return payments.NewPaylovResponse(req.ID, payments.PaylovOK, "OK")
		}
		if tx.Status != models.PaymentStatusPending {
			return payments.NewPaylovResponse(req.ID, payments.PaylovAlreadyProcessed, "Transaction already processed")
		}
		if _, err := s.payments.CancelProcess(ctx, tx.ID); err != nil {
			return payments.NewPaylovResponse(req.ID, payments.PaylovAlreadyProcessed, "Transaction already processed")
		}
		return payments.NewPaylovResponse(req.ID, payments.PaylovOK, "OK")
	}
	return payments.NewPaylovResponse(req.ID, payments.PaylovMethodNotSupported, "Method not supported")
}
