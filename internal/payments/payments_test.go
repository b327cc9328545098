package payments

import (
	"encoding/base64"
	"strings"
	"testing"

	"dinein_backend/internal/config"
	"dinein_backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() *Registry {
	return NewRegistry(config.PaymentsConfig{
		Click:  config.ClickConfig{CallbackURL: "https://my.click.uz/services/pay", ServiceID: "555", MerchantID: "12345"},
		Payme:  config.PaymeConfig{CallbackURL: "https://checkout.paycom.uz", MerchantID: "payme-merchant"},
		Paylov: config.PaylovConfig{CallbackURL: "https://my.paylov.uz/checkout/create/", MerchantID: "paylov-merchant"},
	})
}

func tx(id int64, provider models.Provider, amount int64) *models.PaymentTransaction {
	return &models.PaymentTransaction{ID: id, Provider: provider, Amount: decimal.NewFromInt(amount)}
}

func TestClickURL(t *testing.T) {
	url := testRegistry().PaymentURL(tx(7, models.ProviderClick, 50000))

	assert.Equal(t, "https://my.click.uz/services/pay/?service_id=555&merchant_id=12345&amount=50000.00&transaction_param=7", url)
	assert.Contains(t, url, "merchant_id=12345")
	assert.Contains(t, url, "transaction_param=7")
}

func TestPaymeURL(t *testing.T) {
	url := testRegistry().PaymentURL(tx(7, models.ProviderPayme, 50000))

	require.True(t, strings.HasPrefix(url, "https://checkout.paycom.uz/"))
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, "https://checkout.paycom.uz/"))
	require.NoError(t, err)
	assert.Equal(t, "m=payme-merchant;ac.order_id=7;a=5000000.00;", string(raw))
}

func TestPaylovURL(t *testing.T) {
	url := testRegistry().PaymentURL(tx(9, models.ProviderPaylov, 1200))

	require.True(t, strings.HasPrefix(url, "https://my.paylov.uz/checkout/create/"))
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, "https://my.paylov.uz/checkout/create/"))
	require.NoError(t, err)
	assert.Equal(t, "merchant_id=paylov-merchant&amount=1200.00&account.order_id=9", string(raw))
}

func TestPaymentURLEmptyForProvidersWithoutCheckout(t *testing.T) {
	r := testRegistry()
	for _, p := range []models.Provider{models.ProviderCard, models.ProviderUzum, models.ProviderPaynet, models.ProviderManual} {
		assert.Empty(t, r.PaymentURL(tx(1, p, 100)), p)
	}
	assert.Empty(t, r.PaymentURL(nil))
}

func TestPaymentURLDeterministic(t *testing.T) {
	r := testRegistry()
	for _, p := range []models.Provider{models.ProviderClick, models.ProviderPayme, models.ProviderPaylov} {
		first := r.PaymentURL(tx(42, p, 99999))
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, r.PaymentURL(tx(42, p, 99999)))
		}
	}
}

func TestRegistryRegisterOverrides(t *testing.T) {
	r := testRegistry()
	r.Register(models.ProviderUzum, URLBuilderFunc(func(tx *models.PaymentTransaction) string { return "uzum://pay" }))
	assert.Equal(t, "uzum://pay", r.PaymentURL(tx(1, models.ProviderUzum, 1)))
}

func TestClickSignature(t *testing.T) {
	req := ClickRequest{
		ClickTransID:    "111",
		ServiceID:       "555",
		MerchantTransID: "7",
		Amount:          "50000.00",
		Action:          ClickActionPrepare,
		SignTime:        "2026-05-01 12:00:00",
	}
	req.SignString = ClickSign("secret", req)
	assert.Len(t, req.SignString, 32)
	assert.True(t, VerifyClickSign("secret", req))
	assert.False(t, VerifyClickSign("other", req))

	complete := req
	complete.Action = ClickActionComplete
	complete.MerchantPrepareID = "7"
	assert.NotEqual(t, req.SignString, ClickSign("secret", complete))
}

func TestCheckPaymeAuth(t *testing.T) {
	header := "Basic " + base64.StdEncoding.EncodeToString([]byte("Paycom:key"))
	assert.True(t, CheckPaymeAuth(header, "key"))
	assert.False(t, CheckPaymeAuth(header, "other"))
	assert.False(t, CheckPaymeAuth("Bearer x", "key"))
	assert.False(t, CheckPaymeAuth("Basic "+base64.StdEncoding.EncodeToString([]byte("Someone:key")), "key"))
	assert.False(t, CheckPaymeAuth(header, ""))
}

func TestCheckPaylovAuth(t *testing.T) {
	assert.True(t, CheckPaylovAuth("u", "p", true, "u", "p"))
	assert.False(t, CheckPaylovAuth("u", "x", true, "u", "p"))
	assert.False(t, CheckPaylovAuth("", "", false, "u", "p"))
}
