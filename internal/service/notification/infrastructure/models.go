package infrastructure

import (
	"database/sql"
	"encoding/json"
	"time"

	"storefront/internal/service/notification/domain"
)

const activeFingerprintIndex = "uk_notification_active_fingerprint"

// NotificationTaskModel 对应 notification_tasks 表。
// active_fingerprint 只在任务未失败时有值，唯一索引保证同一内容最多一个活跃任务。
type NotificationTaskModel struct {
	ID                string         `gorm:"primaryKey;type:varchar(36)"`
	Channel           string         `gorm:"type:varchar(8);not null"`
	Recipient         string         `gorm:"type:varchar(255);not null"`
	Template          string         `gorm:"type:varchar(64);not null"`
	Payload           string         `gorm:"type:text;not null"`
	Fingerprint       string         `gorm:"type:char(64);not null;index"`
	ActiveFingerprint sql.NullString `gorm:"type:char(64);uniqueIndex:uk_notification_active_fingerprint"`
	Status            string         `gorm:"type:varchar(16);not null;index:idx_notification_due,priority:1"`
	Attempts          int            `gorm:"not null;default:0"`
	ScheduledFor      time.Time      `gorm:"not null;index:idx_notification_due,priority:2"`
	LastError         string         `gorm:"type:text"`
	ClaimToken        string         `gorm:"type:varchar(36)"`
	ClaimedAt         *time.Time
	SentAt            *time.Time
	CreatedAt         time.Time `gorm:"index"`
	UpdatedAt         time.Time
}

func (NotificationTaskModel) TableName() string {
	return "notification_tasks"
}

// AllModels 返回需要 AutoMigrate 的模型
func AllModels() []interface{} {
	return []interface{}{&NotificationTaskModel{}}
}

func fromDomainTask(t *domain.Task) (*NotificationTaskModel, error) {
	payload, err := domain.CanonicalPayload(t.Payload)
	if err != nil {
		return nil, err
	}
	m := &NotificationTaskModel{
		ID:           t.ID,
		Channel:      string(t.Channel),
		Recipient:    t.Recipient,
		Template:     t.Template,
		Payload:      string(payload),
		Fingerprint:  t.Fingerprint,
		Status:       string(t.Status),
		Attempts:     t.Attempts,
		ScheduledFor: t.ScheduledFor,
		LastError:    t.LastError,
		ClaimToken:   t.ClaimToken,
		ClaimedAt:    t.ClaimedAt,
		SentAt:       t.SentAt,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
	if t.Status != domain.StatusFailed {
		m.ActiveFingerprint = sql.NullString{String: t.Fingerprint, Valid: true}
	}
	return m, nil
}

func toDomainTask(m *NotificationTaskModel) (*domain.Task, error) {
	payload := map[string]interface{}{}
	if m.Payload != "" {
		if err := json.Unmarshal([]byte(m.Payload), &payload); err != nil {
			return nil, err
		}
	}
	return &domain.Task{
		ID:           m.ID,
		Channel:      domain.Channel(m.Channel),
		Recipient:    m.Recipient,
		Template:     m.Template,
		Payload:      payload,
		Fingerprint:  m.Fingerprint,
		Status:       domain.Status(m.Status),
		Attempts:     m.Attempts,
		ScheduledFor: m.ScheduledFor,
		LastError:    m.LastError,
		ClaimToken:   m.ClaimToken,
		ClaimedAt:    m.ClaimedAt,
		SentAt:       m.SentAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}, nil
}
