package payments

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
)

// Click actions.
const (
	ClickActionPrepare  = 0
	ClickActionComplete = 1
)

// Click error codes returned in the "error" field.
const (
	ClickOK                  = 0
	ClickSignFailed          = -1
	ClickIncorrectAmount     = -2
	ClickActionNotFound      = -3
	ClickAlreadyPaid         = -4
	ClickTransactionNotFound = -5
	ClickBadRequest          = -8
	ClickTransactionCanceled = -9
)

// ClickRequest is the form body of prepare and complete calls.
type ClickRequest struct {
	ClickTransID      string `form:"click_trans_id" json:"click_trans_id" binding:"required"`
	ServiceID         string `form:"service_id" json:"service_id" binding:"required"`
	ClickPaydocID     string `form:"click_paydoc_id" json:"click_paydoc_id"`
	MerchantTransID   string `form:"merchant_trans_id" json:"merchant_trans_id" binding:"required"`
	MerchantPrepareID string `form:"merchant_prepare_id" json:"merchant_prepare_id"`
	Amount            string `form:"amount" json:"amount" binding:"required"`
	Action            int    `form:"action" json:"action"`
	Error             int    `form:"error" json:"error"`
	ErrorNote         string `form:"error_note" json:"error_note"`
	SignTime          string `form:"sign_time" json:"sign_time" binding:"required"`
	SignString        string `form:"sign_string" json:"sign_string" binding:"required"`
}

// ClickResponse is the JSON answer for both actions.
type ClickResponse struct {
	ClickTransID      string `json:"click_trans_id"`
	MerchantTransID   string `json:"merchant_trans_id"`
	MerchantPrepareID int64  `json:"merchant_prepare_id,omitempty"`
	MerchantConfirmID int64  `json:"merchant_confirm_id,omitempty"`
	Error             int    `json:"error"`
	ErrorNote         string `json:"error_note"`
}

// ClickSign computes the md5 signature Click sends in sign_string.
func ClickSign(secretKey string, req ClickRequest) string {
	payload := req.ClickTransID + req.ServiceID + secretKey + req.MerchantTransID
	if req.Action == ClickActionComplete {
		payload += req.MerchantPrepareID
	}
	payload += req.Amount + strconv.Itoa(req.Action) + req.SignTime
	sum := md5.Sum([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// VerifyClickSign compares in constant time.
func VerifyClickSign(secretKey string, req ClickRequest) bool {
	expected := ClickSign(secretKey, req)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(req.SignString)) == 1
}
