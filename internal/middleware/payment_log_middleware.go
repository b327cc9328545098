package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"dinein_backend/internal/models"
	"dinein_backend/internal/services"
	"dinein_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// maxLoggedBody caps how much of a callback body is kept.
const maxLoggedBody = 64 << 10

type bodyRecorder struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	if w.body.Len() < maxLoggedBody {
		w.body.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

// PaymentLogMiddleware stores every provider callback and our reply. The
// request row is inserted before the handler runs and the response is attached
// afterwards, including when a later handler panics. An empty method is taken
// from the JSON-RPC "method" field. Logging failures never change the response.
func PaymentLogMiddleware(logs services.PaymentLogService, provider models.Provider, method string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxLoggedBody))
		if err != nil {
			utils.LogWarn("Failed to read payment callback body", map[string]interface{}{"provider": string(provider), "error": err.Error()})
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(raw))

		body := decodeBody(raw)
		logMethod := method
		if logMethod == "" {
			logMethod, _ = body["method"].(string)
		}
		var methodPtr *string
		if logMethod != "" {
			methodPtr = &logMethod
		}

		ctx := c.Request.Context()
		id, err := logs.Record(ctx, provider, methodPtr, models.JSONMap{
			"headers": headerMap(c.Request.Header),
			"body":    body,
		})
		if err != nil {
			utils.LogError(err, "Failed to store payment callback", map[string]interface{}{"provider": string(provider)})
			c.Next()
			return
		}

		rec := &bodyRecorder{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = rec

		defer func() {
			response := models.JSONMap{
				"status_code": rec.Status(),
				"headers":     headerMap(rec.Header()),
				"body":        decodeBody(rec.body.Bytes()),
			}
			p := recover()
			if p != nil {
				response["status_code"] = http.StatusInternalServerError
				response["error"] = fmt.Sprint(p)
			}
			if err := logs.AttachResponse(ctx, id, response); err != nil {
				utils.LogError(err, "Failed to store payment callback response", map[string]interface{}{"provider": string(provider), "log_id": id})
			}
			if p != nil {
				panic(p)
			}
		}()

		c.Next()
	}
}

func headerMap(h http.Header) models.JSONMap {
	out := models.JSONMap{}
	for k, v := range h {
		if strings.EqualFold(k, "Authorization") {
			out[k] = "***"
			continue
		}
		out[k] = strings.Join(v, ", ")
	}
	return out
}

// decodeBody accepts JSON objects and url-encoded forms. Anything else is kept as text.
func decodeBody(raw []byte) models.JSONMap {
	out := models.JSONMap{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return out
	}
	if err := json.Unmarshal(raw, &out); err == nil {
		return out
	}
	if form, err := url.ParseQuery(string(raw)); err == nil && len(form) > 0 {
		for k := range form {
			out[k] = form.Get(k)
		}
		return out
	}
	return models.JSONMap{"raw": string(raw)}
}
