package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubPinger struct{ err error }

func (p stubPinger) PingContext(context.Context) error { return p.err }

func fetch(t *testing.T, mux http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestObservabilityEndpoints(t *testing.T) {
	healthy := observabilityMux(stubPinger{})
	assert.Equal(t, http.StatusOK, fetch(t, healthy, "/livez").Code)
	assert.Equal(t, http.StatusOK, fetch(t, healthy, "/readyz").Code)
	assert.Equal(t, http.StatusOK, fetch(t, healthy, "/metrics").Code)

	down := observabilityMux(stubPinger{err: errors.New("connection refused")})
	assert.Equal(t, http.StatusOK, fetch(t, down, "/livez").Code)
	w := fetch(t, down, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}
