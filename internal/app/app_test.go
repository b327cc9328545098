package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dinein_backend/internal/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWireServesAPIOnSQLite(t *testing.T) {
	a := &App{Config: config.Config{
		Env:           "local",
		HTTP:          config.HTTPServerConfig{Host: "127.0.0.1", Port: 0},
		Observability: config.ObservabilityHTTPConfig{Enabled: true, Host: "127.0.0.1"},
		DB: config.DBConfig{
			Driver:      "sqlite3",
			SQLitePath:  "file::memory:?_foreign_keys=on",
			ApplySchema: true,
		},
		CORS: config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		JWT:  config.JWTConfig{Secret: "secret", Issuer: "test", AccessTTL: time.Hour},
		Workers: config.WorkersConfig{
			PendingExpirySchedule: "*/5 * * * *",
			PendingExpiryBatch:    10,
		},
	}}
	a.Config.Payments.PendingTTL = 30 * time.Minute
	a.Config.Payments.RateLimit.RPS = 10
	a.Config.Payments.RateLimit.Burst = 10

	require.NoError(t, a.wire(context.Background(), prometheus.NewRegistry()))
	t.Cleanup(a.Close)

	require.NotNil(t, a.API)
	require.NotNil(t, a.Observability)
	require.NotNil(t, a.Workers)

	w := httptest.NewRecorder()
	a.API.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	a.Observability.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, a.Workers.Start())
	a.Workers.Stop()
}
