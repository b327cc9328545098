package payments

import (
	"crypto/subtle"
	"encoding/json"
)

// Paylov JSON-RPC methods.
const (
	PaylovCheck   = "transaction.check"
	PaylovPerform = "transaction.perform"
	PaylovCancel  = "transaction.cancel"
)

// Paylov status codes.
const (
	PaylovOK                  = "0"
	PaylovOrderNotFound       = "303"
	PaylovInvalidAmount       = "5"
	PaylovAlreadyProcessed    = "201"
	PaylovUnauthorized        = "401"
	PaylovMethodNotSupported  = "404"
	PaylovTransactionCanceled = "202"
)

type PaylovRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type PaylovParams struct {
	TransactionID string  `json:"transaction_id"`
	Amount        float64 `json:"amount"`
	Account       struct {
		OrderID json.Number `json:"order_id"`
	} `json:"account"`
}

type PaylovResult struct {
	Status     string `json:"status"`
	StatusText string `json:"statusText"`
}

type PaylovResponse struct {
	JSONRPC string       `json:"jsonrpc"`
	ID      string       `json:"id"`
	Result  PaylovResult `json:"result"`
}

func NewPaylovResponse(id, status, text string) PaylovResponse {
	return PaylovResponse{JSONRPC: "2.0", ID: id, Result: PaylovResult{Status: status, StatusText: text}}
}

// CheckPaylovAuth compares basic auth credentials in constant time.
func CheckPaylovAuth(username, password string, ok bool, wantUser, wantPassword string) bool {
	if !ok || wantUser == "" {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(wantUser)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(wantPassword)) == 1
	return userOK && passOK
}
