package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Provider identifies the payment integration a transaction goes through.
type Provider string

const (
	ProviderCard   Provider = "CARD"
	ProviderClick  Provider = "CLICK"
	ProviderPayme  Provider = "PAYME"
	ProviderUzum   Provider = "UZUM"
	ProviderPaylov Provider = "PAYLOV"
	ProviderPaynet Provider = "PAYNET"
	ProviderManual Provider = "MANUAL"
)

var providers = []Provider{ProviderCard, ProviderClick, ProviderPayme, ProviderUzum, ProviderPaylov, ProviderPaynet, ProviderManual}

// ParseProvider is case-insensitive.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range providers {
		if known == p {
			return p, nil
		}
	}
	return "", NewValidationError("provider %q is not supported", s)
}

// PaymentStatus of a transaction. Everything but pending is terminal.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusAccepted PaymentStatus = "accepted"
	PaymentStatusRejected PaymentStatus = "rejected"
	PaymentStatusCanceled PaymentStatus = "canceled"
)

func (s PaymentStatus) IsTerminal() bool {
	return s != PaymentStatusPending
}

// PaymentTransaction is a single payment attempt against a visit.
type PaymentTransaction struct {
	ID         int64           `json:"id" db:"id"`
	UserID     int64           `json:"user_id" db:"user_id"`
	VisitID    int64           `json:"visit_id" db:"visit_id"`
	CardID     *int64          `json:"card_id,omitempty" db:"card_id"`
	Provider   Provider        `json:"provider" db:"provider"`
	Amount     decimal.Decimal `json:"amount" db:"amount"`
	Status     PaymentStatus   `json:"status" db:"status"`
	RemoteID   *string         `json:"remote_id,omitempty" db:"remote_id"`
	PaidAt     *time.Time      `json:"paid_at,omitempty" db:"paid_at"`
	RejectedAt *time.Time      `json:"rejected_at,omitempty" db:"rejected_at"`
	CanceledAt *time.Time      `json:"canceled_at,omitempty" db:"canceled_at"`
	Extra      JSONMap         `json:"extra" db:"extra"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// NewPaymentTransaction returns a pending transaction, or an accepted one for MANUAL.
func NewPaymentTransaction(userID, visitID int64, provider Provider, amount decimal.Decimal, cardID *int64, now time.Time) (*PaymentTransaction, error) {
	if !amount.IsPositive() {
		return nil, NewValidationError("amount must be positive")
	}
	if _, err := ParseProvider(string(provider)); err != nil {
		return nil, err
	}
	tx := &PaymentTransaction{
		UserID:   userID,
		VisitID:  visitID,
		CardID:   cardID,
		Provider: provider,
		Amount:   amount,
		Status:   PaymentStatusPending,
		Extra:    JSONMap{},
	}
	if provider == ProviderManual {
		tx.Status = PaymentStatusAccepted
		tx.PaidAt = stampOnce(nil, now)
	}
	return tx, nil
}

func (t *PaymentTransaction) settle(op string, next PaymentStatus) error {
	if t.Status != PaymentStatusPending {
		return &InvalidStateError{
			Entity:    "payment transaction",
			ID:        t.ID,
			Operation: op,
			Current:   string(t.Status),
			Allowed:   []string{string(PaymentStatusPending)},
		}
	}
	t.Status = next
	return nil
}

func (t *PaymentTransaction) Accept(now time.Time) error {
	if err := t.settle("accept", PaymentStatusAccepted); err != nil {
		return err
	}
	t.PaidAt = stampOnce(t.PaidAt, now)
	return nil
}

func (t *PaymentTransaction) Reject(now time.Time) error {
	if err := t.settle("reject", PaymentStatusRejected); err != nil {
		return err
	}
	t.RejectedAt = stampOnce(t.RejectedAt, now)
	return nil
}

func (t *PaymentTransaction) Cancel(now time.Time) error {
	if err := t.settle("cancel", PaymentStatusCanceled); err != nil {
		return err
	}
	t.CanceledAt = stampOnce(t.CanceledAt, now)
	return nil
}

// PaymentRequestLog keeps the raw body of every provider callback and our reply.
type PaymentRequestLog struct {
	ID           int64     `json:"id" db:"id"`
	Provider     Provider  `json:"provider" db:"provider"`
	Method       *string   `json:"method,omitempty" db:"method"`
	RequestData  JSONMap   `json:"request_data" db:"request_data"`
	ResponseData JSONMap   `json:"response_data" db:"response_data"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// PaymentFilters is used by the pending-expiry sweep.
type PaymentFilters struct {
	Status        *PaymentStatus
	CreatedBefore *time.Time
	Unbound       bool // remote_id IS NULL
	Limit         int
}
