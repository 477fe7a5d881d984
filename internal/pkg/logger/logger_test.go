package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "m***@example.gr", MaskEmail("maria@example.gr"))
	assert.Equal(t, "***", MaskEmail("not-an-email"))
	assert.Equal(t, "***", MaskEmail("@example.gr"))
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "***567", MaskPhone("+306912345567"))
	assert.Equal(t, "***", MaskPhone("12"))
}
