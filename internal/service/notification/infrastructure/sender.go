package infrastructure

import (
	"context"
	"fmt"

	"storefront/internal/pkg/httpclient"
	"storefront/internal/pkg/logger"
	"storefront/internal/service/notification/domain"
)

// HTTPSender 通过服务商的 HTTP API 投递邮件或短信
type HTTPSender struct {
	channel  domain.Channel
	client   *httpclient.Client
	endpoint string
	apiKey   string
	from     string
}

func NewHTTPSender(channel domain.Channel, client *httpclient.Client, endpoint, apiKey, from string) *HTTPSender {
	return &HTTPSender{channel: channel, client: client, endpoint: endpoint, apiKey: apiKey, from: from}
}

type emailRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

type smsRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`
}

// Send 把任务 id 作为幂等键发送，服务商重复收到时不会重复投递
func (s *HTTPSender) Send(ctx context.Context, msg *domain.Message) error {
	headers := map[string]string{"Idempotency-Key": msg.TaskID}
	if s.apiKey != "" {
		headers["Authorization"] = "Bearer " + s.apiKey
	}

	var body interface{}
	switch s.channel {
	case domain.ChannelEmail:
		body = emailRequest{From: s.from, To: msg.To, Subject: msg.Subject, Text: msg.Body}
	case domain.ChannelSMS:
		body = smsRequest{From: s.from, To: msg.To, Text: msg.Body}
	default:
		return fmt.Errorf("%w: %s", domain.ErrNoSender, s.channel)
	}

	if err := s.client.PostJSON(ctx, s.endpoint, headers, body); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrProviderUnavailable, s.channel, err)
	}
	return nil
}

// SimulatedSender 用于被关闭的渠道：只记日志，视为投递成功
type SimulatedSender struct {
	channel domain.Channel
}

func NewSimulatedSender(channel domain.Channel) *SimulatedSender {
	return &SimulatedSender{channel: channel}
}

func (s *SimulatedSender) Send(ctx context.Context, msg *domain.Message) error {
	to := logger.MaskPhone(msg.To)
	if s.channel == domain.ChannelEmail {
		to = logger.MaskEmail(msg.To)
	}
	logger.Ctx(ctx).Info().
		Str("channel", string(s.channel)).
		Str("task_id", msg.TaskID).
		Str("to", to).
		Msg("📭 channel disabled, delivery simulated")
	return nil
}
