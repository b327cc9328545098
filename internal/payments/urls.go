package payments

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"dinein_backend/internal/config"
	"dinein_backend/internal/models"

	"github.com/shopspring/decimal"
)

// URLBuilder derives the checkout redirect for a transaction. It never performs I/O.
type URLBuilder interface {
	Build(tx *models.PaymentTransaction) string
}

// URLBuilderFunc adapts a plain function to URLBuilder.
type URLBuilderFunc func(tx *models.PaymentTransaction) string

func (f URLBuilderFunc) Build(tx *models.PaymentTransaction) string {
	return f(tx)
}

// Registry maps providers to their URL builders. Providers without one get "".
type Registry struct {
	builders map[models.Provider]URLBuilder
}

// NewRegistry wires the hosted-checkout providers from injected credentials.
func NewRegistry(cfg config.PaymentsConfig) *Registry {
	return &Registry{builders: map[models.Provider]URLBuilder{
		models.ProviderPayme:  PaymeURL(cfg.Payme),
		models.ProviderPaylov: PaylovURL(cfg.Paylov),
		models.ProviderClick:  ClickURL(cfg.Click),
	}}
}

// Register replaces or adds the builder for a provider.
func (r *Registry) Register(provider models.Provider, b URLBuilder) {
	r.builders[provider] = b
}

func (r *Registry) PaymentURL(tx *models.PaymentTransaction) string {
	if tx == nil {
		return ""
	}
	b, ok := r.builders[tx.Provider]
	if !ok {
		return ""
	}
	return b.Build(tx)
}

// amountString renders a two-decimal amount, e.g. 50000.00.
func amountString(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func joinURL(base, tail string) string {
	return strings.TrimRight(base, "/") + "/" + tail
}

// PaymeURL encodes m=<merchant>;ac.order_id=<id>;a=<amount in tiyin>; as base64 after the checkout host.
func PaymeURL(cfg config.PaymeConfig) URLBuilder {
	return URLBuilderFunc(func(tx *models.PaymentTransaction) string {
		tiyin := tx.Amount.Mul(decimal.NewFromInt(100))
		params := fmt.Sprintf("m=%s;ac.order_id=%d;a=%s;", cfg.MerchantID, tx.ID, amountString(tiyin))
		return joinURL(cfg.CallbackURL, base64.StdEncoding.EncodeToString([]byte(params)))
	})
}

// PaylovURL encodes a query string as base64 after the checkout host.
func PaylovURL(cfg config.PaylovConfig) URLBuilder {
	return URLBuilderFunc(func(tx *models.PaymentTransaction) string {
		query := fmt.Sprintf("merchant_id=%s&amount=%s&account.order_id=%d", cfg.MerchantID, amountString(tx.Amount), tx.ID)
		return joinURL(cfg.CallbackURL, base64.StdEncoding.EncodeToString([]byte(query)))
	})
}

// ClickURL appends plain query parameters; transaction_param carries our transaction id.
func ClickURL(cfg config.ClickConfig) URLBuilder {
	return URLBuilderFunc(func(tx *models.PaymentTransaction) string {
		query := "?service_id=" + cfg.ServiceID +
			"&merchant_id=" + cfg.MerchantID +
			"&amount=" + amountString(tx.Amount) +
			"&transaction_param=" + strconv.FormatInt(tx.ID, 10)
		return joinURL(cfg.CallbackURL, query)
	})
}
