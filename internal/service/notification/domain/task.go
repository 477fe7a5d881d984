// internal/service/notification/domain/task.go
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Channel 是通知的投递渠道
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
)

func ParseChannel(s string) (Channel, error) {
	switch c := Channel(strings.ToUpper(strings.TrimSpace(s))); c {
	case ChannelEmail, ChannelSMS:
		return c, nil
	}
	return "", fmt.Errorf("%w: unknown channel %q", ErrInvalidTask, s)
}

// Status 是通知任务的状态；SENDING 表示已被某个投递批次认领
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSending Status = "SENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

// Task 是发件箱中的一条待投递通知
type Task struct {
	ID           string
	Channel      Channel
	Recipient    string
	Template     string
	Payload      map[string]interface{}
	Fingerprint  string
	Status       Status
	Attempts     int
	ScheduledFor time.Time
	LastError    string
	ClaimToken   string
	ClaimedAt    *time.Time
	SentAt       *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewTask 规范化收件人并计算指纹，返回一个立即可投递的 PENDING 任务
func NewTask(channel Channel, recipient, template string, payload map[string]interface{}, now time.Time) (*Task, error) {
	if channel != ChannelEmail && channel != ChannelSMS {
		return nil, fmt.Errorf("%w: unknown channel %q", ErrInvalidTask, channel)
	}
	recipient = NormalizeRecipient(channel, recipient)
	if recipient == "" {
		return nil, fmt.Errorf("%w: recipient is required", ErrInvalidTask)
	}
	if template == "" {
		return nil, fmt.Errorf("%w: template is required", ErrInvalidTask)
	}
	if payload == nil {
		payload = map[string]interface{}{}
	}
	fp, err := Fingerprint(channel, recipient, template, payload)
	if err != nil {
		return nil, err
	}
	return &Task{
		Channel:      channel,
		Recipient:    recipient,
		Template:     template,
		Payload:      payload,
		Fingerprint:  fp,
		Status:       StatusPending,
		ScheduledFor: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Backoff 计算第 n 次失败之后的等待时间：Base × 2^(n-1)，不超过 Max
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b Backoff) Delay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := b.Base
	for i := 1; i < attempts; i++ {
		if b.Max > 0 && d >= b.Max {
			break
		}
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}
