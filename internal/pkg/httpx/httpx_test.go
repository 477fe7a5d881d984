package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireSecret(t *testing.T) {
	h := RequireSecret("s3cret", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusNotFound},
		{"wrong", "nope", http.StatusNotFound},
		{"ok", "s3cret", http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/internal/x", nil)
			if tc.header != "" {
				req.Header.Set(CronSecretHeader, tc.header)
			}
			rec := httptest.NewRecorder()
			h(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestRequireSecretEmptyConfigDisablesRoute(t *testing.T) {
	h := RequireSecret("", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	req := httptest.NewRequest(http.MethodPost, "/internal/x", nil)
	rec := httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteProductError(rec, http.StatusBadRequest, "OUT_OF_STOCK", "not enough stock", "p1")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "OUT_OF_STOCK", body["error"]["code"])
	assert.Equal(t, "p1", body["error"]["productId"])
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", ClientIP(req))
}
