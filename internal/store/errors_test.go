package store

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryAfter(t *testing.T) {
	wrapped := fmt.Errorf("list devices: %w", &RateLimitError{RetryAfter: 3 * time.Second})

	d, ok := RetryAfter(wrapped)
	assert.True(t, ok)
	assert.Equal(t, 3*time.Second, d)

	_, ok = RetryAfter(errors.New("boom"))
	assert.False(t, ok)
}

func TestIsValidation(t *testing.T) {
	err := fmt.Errorf("save: %w", &ValidationError{Field: "score", Reason: "out of range"})
	assert.True(t, IsValidation(err))
	assert.Equal(t, "validation failed on score: out of range", errors.Unwrap(err).Error())
	assert.False(t, IsValidation(ErrUnavailable))
}
