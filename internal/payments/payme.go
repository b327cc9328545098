package payments

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"strings"
)

// Payme JSON-RPC methods.
const (
	PaymeCheckPerformTransaction = "CheckPerformTransaction"
	PaymeCreateTransaction       = "CreateTransaction"
	PaymePerformTransaction      = "PerformTransaction"
	PaymeCancelTransaction       = "CancelTransaction"
	PaymeCheckTransaction        = "CheckTransaction"
)

// Payme error codes.
const (
	PaymeErrSystem                = -32400
	PaymeErrInsufficientPrivilege = -32504
	PaymeErrMethodNotFound        = -32601
	PaymeErrParse                 = -32700
	PaymeErrInvalidAmount         = -31001
	PaymeErrTransactionNotFound   = -31003
	PaymeErrCannotPerform         = -31008
	PaymeErrCannotCancel          = -31007
	PaymeErrOrderNotFound         = -31050
)

// Payme transaction states as reported back to the provider.
const (
	PaymeStateCreated   = 1
	PaymeStatePerformed = 2
	PaymeStateCancelled = -1
)

// PaymeRequest is the JSON-RPC envelope.
type PaymeRequest struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// PaymeParams covers the fields of every method we implement.
type PaymeParams struct {
	ID      string `json:"id"`
	Time    int64  `json:"time"`
	Amount  int64  `json:"amount"`
	Reason  *int   `json:"reason"`
	Account struct {
		OrderID json.Number `json:"order_id"`
	} `json:"account"`
}

type PaymeError struct {
	Code    int               `json:"code"`
	Message map[string]string `json:"message"`
	Data    string            `json:"data,omitempty"`
}

type PaymeResponse struct {
	ID     int64       `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  *PaymeError `json:"error,omitempty"`
}

// NewPaymeError builds an error with the same text in every locale Payme asks for.
func NewPaymeError(code int, message, data string) *PaymeError {
	return &PaymeError{
		Code:    code,
		Message: map[string]string{"ru": message, "uz": message, "en": message},
		Data:    data,
	}
}

// CheckPaymeAuth validates "Basic base64(Paycom:<key>)".
func CheckPaymeAuth(header, secretKey string) bool {
	const prefix = "Basic "
	if secretKey == "" || !strings.HasPrefix(header, prefix) {
		return false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return false
	}
	login, password, ok := strings.Cut(string(raw), ":")
	if !ok || login != "Paycom" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(secretKey)) == 1
}
