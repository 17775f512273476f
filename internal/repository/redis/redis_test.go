package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"family-safety-score/internal/bucketing"
	"family-safety-score/internal/config"
	"family-safety-score/internal/store"
)

type mockScripter struct {
	mock.Mock
}

func (m *mockScripter) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	args := m.Called(ctx, key, value, expiration)
	return args.Bool(0), args.Error(1)
}

func (m *mockScripter) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	ret := m.Called(ctx, script, keys, args)
	return ret.Get(0), ret.Error(1)
}

func newLock(m *mockScripter) *UserLock {
	l := NewUserLock(m, time.Second, zap.NewNop())
	l.wait = 20 * time.Millisecond
	l.poll = 5 * time.Millisecond
	return l
}

func TestUserLockReleasesWithItsOwnToken(t *testing.T) {
	m := &mockScripter{}
	var token string
	m.On("SetNX", mock.Anything, "score_lock:u1", mock.Anything, time.Second).
		Run(func(args mock.Arguments) { token = args.String(2) }).
		Return(true, nil).Once()
	m.On("Eval", mock.Anything, releaseScript, []string{"score_lock:u1"}, mock.Anything).
		Return(int64(1), nil).Once()

	release, err := newLock(m).Acquire(context.Background(), "u1")
	require.NoError(t, err)
	release()

	m.AssertExpectations(t)
	require.NotEmpty(t, token)
	evalArgs := m.Calls[1].Arguments.Get(3).([]interface{})
	assert.Equal(t, []interface{}{token}, evalArgs)
}

func TestUserLockHeldPastWaitBudget(t *testing.T) {
	m := &mockScripter{}
	m.On("SetNX", mock.Anything, "score_lock:u1", mock.Anything, time.Second).Return(false, nil)

	_, err := newLock(m).Acquire(context.Background(), "u1")

	assert.ErrorIs(t, err, ErrLockHeld)
	assert.ErrorIs(t, err, store.ErrVersionConflict)
	assert.Greater(t, len(m.Calls), 1)
}

func TestUserLockBackendDown(t *testing.T) {
	m := &mockScripter{}
	m.On("SetNX", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, errors.New("connection refused"))

	_, err := newLock(m).Acquire(context.Background(), "u1")

	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestUserLockStopsOnCancel(t *testing.T) {
	m := &mockScripter{}
	m.On("SetNX", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	l := newLock(m)
	l.wait = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Acquire(ctx, "u1")

	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseWindowReply(t *testing.T) {
	tests := []struct {
		name    string
		reply   interface{}
		allowed bool
		count   int
		wantErr bool
	}{
		{name: "admitted", reply: []interface{}{int64(1), int64(3)}, allowed: true, count: 3},
		{name: "rejected", reply: []interface{}{int64(0), int64(6)}, allowed: false, count: 6},
		{name: "not a list", reply: "OK", wantErr: true},
		{name: "short list", reply: []interface{}{int64(1)}, wantErr: true},
		{name: "wrong types", reply: []interface{}{"1", "3"}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			allowed, count, err := parseWindowReply(tc.reply)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.allowed, allowed)
			assert.Equal(t, tc.count, count)
		})
	}
}

func newLimiter(m *mockScripter, limit int) *RateLimitCache {
	buckets := bucketing.NewBucketingManager(config.BucketingConfig{UserBuckets: 4, EventBuckets: 4})
	return NewRateLimitCache(m, buckets, limit, time.Minute, zap.NewNop())
}

func TestRateLimitAllow(t *testing.T) {
	m := &mockScripter{}
	c := newLimiter(m, 6)
	key := c.key("u1", "recalculate")
	m.On("Eval", mock.Anything, slidingWindowScript, []string{key}, mock.Anything).
		Return([]interface{}{int64(1), int64(1)}, nil).Once()
	m.On("Eval", mock.Anything, slidingWindowScript, []string{key}, mock.Anything).
		Return([]interface{}{int64(0), int64(6)}, nil).Once()

	ok, err := c.Allow(context.Background(), "u1", "recalculate")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Allow(context.Background(), "u1", "recalculate")
	require.NoError(t, err)
	assert.False(t, ok)
	m.AssertExpectations(t)
}

func TestRateLimitDisabledAndUnavailable(t *testing.T) {
	m := &mockScripter{}
	ok, err := newLimiter(m, 0).Allow(context.Background(), "u1", "recalculate")
	require.NoError(t, err)
	assert.True(t, ok)
	m.AssertNotCalled(t, "Eval")

	m.On("Eval", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))
	_, err = newLimiter(m, 6).Allow(context.Background(), "u1", "recalculate")
	assert.ErrorIs(t, err, store.ErrUnavailable)
}
