package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestPostJSON(t *testing.T) {
	var got map[string]string
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(noop.NewTracerProvider().Tracer("test"))
	err := c.PostJSON(context.Background(), srv.URL+"/send", map[string]string{"Authorization": "Bearer k"}, map[string]string{"to": "a@b.c"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer k", auth)
	assert.Equal(t, "a@b.c", got["to"])
}

func TestPostJSONStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(noop.NewTracerProvider().Tracer("test"))
	err := c.PostJSON(context.Background(), srv.URL, nil, map[string]string{})

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
}
