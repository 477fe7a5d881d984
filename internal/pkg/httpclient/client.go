// internal/pkg/httpclient/client.go

package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StatusError 表示下游返回了非 2xx 状态码
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.URL, e.StatusCode, e.Body)
}

// Client 是一个可追踪的 HTTP 客户端，超时完全由调用方传入的 context 控制
type Client struct {
	Tracer     trace.Tracer
	HTTPClient *http.Client
}

func NewClient(tracer trace.Tracer) *Client {
	return &Client{
		Tracer: tracer,
		HTTPClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
			},
		},
	}
}

// PostJSON 以 JSON 发送 body，附带额外请求头并注入追踪上下文
func (c *Client) PostJSON(ctx context.Context, endpoint string, headers map[string]string, body interface{}) error {
	parsedURL, err := url.Parse(endpoint)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	ctx, span := c.Tracer.Start(ctx, "call-"+parsedURL.Hostname(), trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.url", parsedURL.Redacted()),
		attribute.String("http.method", http.MethodPost),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, parsedURL.String(), bytes.NewReader(payload))
	if err != nil {
		span.RecordError(err)
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := &StatusError{URL: parsedURL.Redacted(), StatusCode: resp.StatusCode, Body: string(snippet)}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
