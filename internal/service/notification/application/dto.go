package application

import "time"

// 投递结果
const (
	OutcomeSent      = "sent"
	OutcomeRetry     = "retry"
	OutcomeFailed    = "failed"
	OutcomeClaimLost = "claim_lost"
	OutcomeError     = "error"
)

// DeliveryResult 描述一次批次中单个任务的处理结果
type DeliveryResult struct {
	TaskID        string     `json:"taskId"`
	Channel       string     `json:"channel"`
	Template      string     `json:"template"`
	Outcome       string     `json:"outcome"`
	Attempts      int        `json:"attempts"`
	Error         string     `json:"error,omitempty"`
	NextAttemptAt *time.Time `json:"nextAttemptAt,omitempty"`
}

// EnqueueResult 中 Duplicate=true 表示同内容任务已存在，没有新建
type EnqueueResult struct {
	TaskID    string `json:"taskId"`
	Duplicate bool   `json:"duplicate"`
}

type ReconcileResult struct {
	Orders     int `json:"orders"`
	Enqueued   int `json:"enqueued"`
	Duplicates int `json:"duplicates"`
}
