package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dinein_backend/internal/models"
	"dinein_backend/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestAuthMiddleware(t *testing.T) {
	tokens := utils.NewTokenManager("secret", "test", time.Hour)
	r := gin.New()
	r.GET("/me", AuthMiddleware(tokens), RoleAuthMiddleware(models.RoleHost), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": c.GetInt64(ContextUserID), "venue": c.GetInt64(ContextVenueID)})
	})

	venue := int64(3)
	hostToken, err := tokens.GenerateAccessToken(7, models.RoleHost, &venue)
	require.NoError(t, err)
	userToken, err := tokens.GenerateAccessToken(8, models.RoleUser, nil)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Token " + hostToken, http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
		{"wrong role", "Bearer " + userToken, http.StatusForbidden},
		{"host", "Bearer " + hostToken, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+hostToken)
	r.ServeHTTP(w, req)
	assert.JSONEq(t, `{"user":7,"venue":3}`, w.Body.String())
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(1, 2)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	r := gin.New()
	r.POST("/cb", limiter.Middleware(nil), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/cb", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	now = now.Add(2 * time.Second)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/cb", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiterCustomRejectAndSweep(t *testing.T) {
	limiter := NewRateLimiter(1, 1)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	handled := 0
	r := gin.New()
	r.POST("/cb", limiter.Middleware(func(c *gin.Context) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": -8})
	}), func(c *gin.Context) {
		handled++
		c.Status(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/cb", nil))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/cb", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":-8}`, w.Body.String())
	assert.Equal(t, 1, handled)

	assert.Equal(t, 0, limiter.Sweep())
	now = now.Add(limiterIdleTTL + time.Second)
	assert.Equal(t, 1, limiter.Sweep())
	assert.Empty(t, limiter.clients)
}

func TestRateLimiterSweeperStopsWithContext(t *testing.T) {
	limiter := NewRateLimiter(1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		limiter.RunSweeper(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

type observed struct {
	method, route, code string
}

type fakeObserver struct{ calls []observed }

func (f *fakeObserver) ObserveHTTP(method, route, code string, _ float64) {
	f.calls = append(f.calls, observed{method, route, code})
}

func TestMetricsMiddlewareUsesRouteTemplate(t *testing.T) {
	obs := &fakeObserver{}
	r := gin.New()
	r.Use(MetricsMiddleware(obs))
	r.GET("/visits/:id/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/visits/42/", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	require.Len(t, obs.calls, 2)
	assert.Equal(t, observed{"GET", "/visits/:id/", "204"}, obs.calls[0])
	assert.Equal(t, observed{"GET", "unmatched", "404"}, obs.calls[1])
}

type recordedLog struct {
	provider models.Provider
	method   *string
	request  models.JSONMap
	response models.JSONMap
}

type fakeLogService struct{ logs []recordedLog }

func (f *fakeLogService) Record(_ context.Context, provider models.Provider, method *string, request models.JSONMap) (int64, error) {
	f.logs = append(f.logs, recordedLog{provider: provider, method: method, request: request})
	return int64(len(f.logs)), nil
}

func (f *fakeLogService) AttachResponse(_ context.Context, id int64, response models.JSONMap) error {
	f.logs[id-1].response = response
	return nil
}

func TestPaymentLogMiddlewareRecordsJSONRPC(t *testing.T) {
	logs := &fakeLogService{}
	r := gin.New()
	r.POST("/payme", PaymentLogMiddleware(logs, models.ProviderPayme, ""), func(c *gin.Context) {
		require.Len(t, logs.logs, 1, "request must be stored before the handler runs")
		var body map[string]interface{}
		require.NoError(t, c.ShouldBindJSON(&body))
		c.Header("X-Reply", "yes")
		c.JSON(http.StatusOK, gin.H{"id": body["id"], "result": gin.H{"allow": true}})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/payme", strings.NewReader(`{"id":1,"method":"CheckPerformTransaction","params":{}}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic secret")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, logs.logs, 1)
	entry := logs.logs[0]
	assert.Equal(t, models.ProviderPayme, entry.provider)
	require.NotNil(t, entry.method)
	assert.Equal(t, "CheckPerformTransaction", *entry.method)

	reqHeaders := entry.request["headers"].(models.JSONMap)
	assert.Equal(t, "application/json", reqHeaders["Content-Type"])
	assert.Equal(t, "***", reqHeaders["Authorization"])
	assert.Equal(t, "CheckPerformTransaction", entry.request["body"].(models.JSONMap)["method"])

	require.NotNil(t, entry.response)
	assert.Equal(t, http.StatusOK, entry.response["status_code"])
	assert.Equal(t, "yes", entry.response["headers"].(models.JSONMap)["X-Reply"])
	assert.Equal(t, map[string]interface{}{"allow": true}, entry.response["body"].(models.JSONMap)["result"])
}

func TestPaymentLogMiddlewareUsesRouteMethod(t *testing.T) {
	logs := &fakeLogService{}
	r := gin.New()
	r.POST("/click", PaymentLogMiddleware(logs, models.ProviderClick, "prepare"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"error": 0, "action": c.PostForm("action")})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/click", strings.NewReader("action=0&click_trans_id=11"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.ServeHTTP(w, req)

	require.Len(t, logs.logs, 1)
	entry := logs.logs[0]
	assert.Equal(t, "11", entry.request["body"].(models.JSONMap)["click_trans_id"])
	require.NotNil(t, entry.method)
	assert.Equal(t, "prepare", *entry.method)
	assert.Equal(t, "0", entry.response["body"].(models.JSONMap)["action"])
}

func TestPaymentLogMiddlewareKeepsRequestWhenHandlerPanics(t *testing.T) {
	logs := &fakeLogService{}
	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/paylov", PaymentLogMiddleware(logs, models.ProviderPaylov, ""), func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/paylov", strings.NewReader(`{"id":"7","method":"transaction.check"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.Len(t, logs.logs, 1)
	entry := logs.logs[0]
	assert.Equal(t, "transaction.check", *entry.method)
	assert.Equal(t, "7", entry.request["body"].(models.JSONMap)["id"])
	require.NotNil(t, entry.response)
	assert.Equal(t, http.StatusInternalServerError, entry.response["status_code"])
	assert.Equal(t, "boom", entry.response["error"])
}
