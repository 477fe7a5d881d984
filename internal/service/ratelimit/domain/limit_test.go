package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyFixedWindow(t *testing.T) {
	p := Policy{Ceiling: 3, Window: time.Minute}
	t0 := time.Date(2026, 5, 4, 9, 0, 30, 0, time.UTC)
	var c Counter

	d, write := Apply(&c, false, t0, 1, p)
	assert.True(t, d.OK)
	assert.True(t, write)
	assert.Equal(t, 2, d.Remaining)
	assert.Equal(t, t0.Add(time.Minute), d.ResetAt)

	d, _ = Apply(&c, true, t0.Add(10*time.Second), 2, p)
	assert.True(t, d.OK)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 3, c.Count)

	d, write = Apply(&c, true, t0.Add(20*time.Second), 1, p)
	assert.False(t, d.OK)
	assert.False(t, write)
	assert.Equal(t, 3, c.Count, "denial must not increment")
	assert.Equal(t, 40*time.Second, d.RetryAfter)

	// 窗口从首次命中开始计算，而不是对齐到整分钟
	d, write = Apply(&c, true, t0.Add(time.Minute), 1, p)
	assert.True(t, d.OK)
	assert.True(t, write)
	assert.Equal(t, 1, c.Count)
	assert.Equal(t, t0.Add(time.Minute), c.WindowStart)
	assert.Equal(t, t0.Add(time.Minute), c.CreatedAt)
}

func TestApplyCostAboveCeilingOnNewWindow(t *testing.T) {
	p := Policy{Ceiling: 2, Window: time.Minute}
	var c Counter
	d, write := Apply(&c, false, time.Now(), 5, p)
	assert.False(t, d.OK)
	assert.True(t, write)
	assert.Equal(t, 0, d.Remaining)
}

func TestPolicyValidate(t *testing.T) {
	require.NoError(t, Policy{Ceiling: 1, Window: time.Second}.Validate(1))
	assert.ErrorIs(t, Policy{Ceiling: 0, Window: time.Second}.Validate(1), ErrInvalidPolicy)
	assert.ErrorIs(t, Policy{Ceiling: 1}.Validate(1), ErrInvalidPolicy)
	assert.ErrorIs(t, Policy{Ceiling: 1, Window: time.Second}.Validate(0), ErrInvalidPolicy)
	assert.Equal(t, "checkout:1.2.3.4", ScopeKey("checkout", "1.2.3.4"))
}
