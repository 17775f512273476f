package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"loud":    zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLogLevel(in), "level %q", in)
	}
}

func TestUserIDField(t *testing.T) {
	f := UserID("u1")
	assert.Equal(t, "user_id", f.Key)
	assert.Equal(t, "u1", f.String)
}

func TestGetEnv(t *testing.T) {
	t.Setenv("FAMILY_SAFETY_TEST_VALUE", "set")
	assert.Equal(t, "set", GetEnv("FAMILY_SAFETY_TEST_VALUE", "fallback"))
	assert.Equal(t, "fallback", GetEnv("FAMILY_SAFETY_TEST_MISSING", "fallback"))
}
