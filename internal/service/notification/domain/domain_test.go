package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintIsStableAcrossFormatting(t *testing.T) {
	a, err := Fingerprint(ChannelEmail, "  Maria@Example.GR ", TemplateOrderShippedEmail,
		map[string]interface{}{"orderId": "o1", "buyerName": "Maria", "n": 2})
	require.NoError(t, err)
	b, err := Fingerprint(ChannelEmail, "maria@example.gr", TemplateOrderShippedEmail,
		map[string]interface{}{"n": 2, "buyerName": "Maria", "orderId": "o1"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c, err := Fingerprint(ChannelEmail, "maria@example.gr", TemplateOrderShippedEmail,
		map[string]interface{}{"n": 3, "buyerName": "Maria", "orderId": "o1"})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	d, err := Fingerprint(ChannelEmail, "maria@example.gr", TemplateOrderDeliveredEmail,
		map[string]interface{}{"n": 2, "buyerName": "Maria", "orderId": "o1"})
	require.NoError(t, err)
	assert.NotEqual(t, a, d)
}

func TestNormalizeRecipient(t *testing.T) {
	assert.Equal(t, "maria@example.gr", NormalizeRecipient(ChannelEmail, " Maria@Example.gr\n"))
	assert.Equal(t, "+306912345678", NormalizeRecipient(ChannelSMS, "+30 691 234 5678"))
}

func TestFingerprintNestedPayloadKeyOrder(t *testing.T) {
	a, err := Fingerprint(ChannelSMS, "+30 691", "t", map[string]interface{}{
		"items": []interface{}{map[string]interface{}{"b": 1, "a": "x"}},
	})
	require.NoError(t, err)
	b, err := Fingerprint(ChannelSMS, "+30691", "t", map[string]interface{}{
		"items": []map[string]interface{}{{"a": "x", "b": 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNewTaskValidation(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	task, err := NewTask(ChannelEmail, " A@B.C ", TemplateOrderDeliveredEmail, nil, now)
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", task.Recipient)
	assert.Equal(t, StatusPending, task.Status)
	assert.Equal(t, now, task.ScheduledFor)
	assert.NotNil(t, task.Payload)

	_, err = NewTask(ChannelEmail, "  ", "t", nil, now)
	assert.ErrorIs(t, err, ErrInvalidTask)
	_, err = NewTask("PIGEON", "x", "t", nil, now)
	assert.ErrorIs(t, err, ErrInvalidTask)
	_, err = NewTask(ChannelSMS, "+30", "", nil, now)
	assert.ErrorIs(t, err, ErrInvalidTask)
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	b := Backoff{Base: time.Minute, Max: 10 * time.Minute}
	assert.Equal(t, time.Minute, b.Delay(1))
	assert.Equal(t, 2*time.Minute, b.Delay(2))
	assert.Equal(t, 4*time.Minute, b.Delay(3))
	assert.Equal(t, 8*time.Minute, b.Delay(4))
	assert.Equal(t, 10*time.Minute, b.Delay(5))
	assert.Equal(t, 10*time.Minute, b.Delay(50))
	assert.Equal(t, time.Minute, b.Delay(0))
}

func TestRenderer(t *testing.T) {
	r := NewRenderer()
	assert.True(t, r.Has(ChannelSMS, TemplateOrderCreatedSMS))
	assert.False(t, r.Has(ChannelEmail, TemplateOrderCreatedSMS))
	assert.Len(t, r.Names(), 5)

	msg, err := r.Render(&Task{
		ID: "t1", Channel: ChannelEmail, Recipient: "maria@example.gr", Template: TemplateOrderCreatedEmail,
		Payload: map[string]interface{}{
			"orderId": "o1", "buyerName": "Maria", "shippingMethod": "COURIER", "shippingCost": "3.50",
			"total": "35.80", "currency": "EUR", "trackingToken": "abc",
			"items": []interface{}{map[string]interface{}{"name": "Olive oil", "quantity": 2, "lineTotal": "25.80"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Order o1 confirmed", msg.Subject)
	assert.Contains(t, msg.Body, "- Olive oil x2: 25.80")
	assert.Contains(t, msg.Body, "Total: 35.80 EUR")
	assert.Equal(t, "maria@example.gr", msg.To)
	assert.Equal(t, "t1", msg.TaskID)
}

func TestRenderFailuresArePermanent(t *testing.T) {
	r := NewRenderer()

	_, err := r.Render(&Task{Channel: ChannelEmail, Template: TemplateOrderShippedEmail, Payload: map[string]interface{}{"orderId": "o1"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRender))
	assert.Contains(t, err.Error(), "buyerName")

	_, err = r.Render(&Task{Channel: ChannelEmail, Template: "nope", Payload: map[string]interface{}{}})
	assert.ErrorIs(t, err, ErrRender)
	assert.ErrorIs(t, err, ErrUnknownTemplate)

	_, err = r.Render(&Task{Channel: ChannelSMS, Template: TemplateOrderShippedEmail, Payload: map[string]interface{}{}})
	assert.ErrorIs(t, err, ErrRender)
}
