package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.InDelta(t, 0.5, cfg.FailureRatio, 0.0001)
	assert.Equal(t, 20, cfg.WindowSize)
	assert.Equal(t, 10, cfg.MinRequests)
	assert.Equal(t, 5, cfg.MaxFailures)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 1, cfg.HalfOpenMax)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		config Config
		check  func(t *testing.T, c Config)
	}{
		{
			name:   "zero value gets defaults",
			config: Config{},
			check: func(t *testing.T, c Config) {
				assert.InDelta(t, DefaultFailureRatio, c.FailureRatio, 0.0001)
				assert.Equal(t, DefaultWindowSize, c.WindowSize)
				assert.Equal(t, DefaultMinRequests, c.MinRequests)
				assert.Equal(t, DefaultMaxFailures, c.MaxFailures)
				assert.Equal(t, DefaultTimeout, c.Timeout)
				assert.Equal(t, DefaultHalfOpenMax, c.HalfOpenMax)
				assert.NotNil(t, c.Now)
			},
		},
		{
			name:   "ratio above one",
			config: Config{FailureRatio: 1.5},
			check: func(t *testing.T, c Config) {
				assert.InDelta(t, DefaultFailureRatio, c.FailureRatio, 0.0001)
			},
		},
		{
			name:   "min requests clamped to window",
			config: Config{WindowSize: 4, MinRequests: 10},
			check: func(t *testing.T, c Config) {
				assert.Equal(t, 4, c.MinRequests)
			},
		},
		{
			name:   "valid values kept",
			config: Config{FailureRatio: 0.3, WindowSize: 8, MinRequests: 2, MaxFailures: 2, Timeout: time.Second, HalfOpenMax: 2},
			check: func(t *testing.T, c Config) {
				assert.InDelta(t, 0.3, c.FailureRatio, 0.0001)
				assert.Equal(t, 8, c.WindowSize)
				assert.Equal(t, 2, c.MinRequests)
				assert.Equal(t, 2, c.MaxFailures)
				assert.Equal(t, time.Second, c.Timeout)
				assert.Equal(t, 2, c.HalfOpenMax)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := tt.config
			c.Validate()
			tt.check(t, c)
		})
	}
}

func TestConfig_Builders(t *testing.T) {
	t.Parallel()

	now := func() time.Time { return time.Time{} }
	called := false

	cfg := DefaultConfig().
		WithFailureRatio(0.25).
		WithWindowSize(50).
		WithMinRequests(5).
		WithMaxFailures(7).
		WithTimeout(time.Minute).
		WithHalfOpenMax(3).
		WithIsSuccessful(func(error) bool { return true }).
		WithOnStateChange(func(string, State, State) { called = true }).
		WithClock(now)

	assert.InDelta(t, 0.25, cfg.FailureRatio, 0.0001)
	assert.Equal(t, 50, cfg.WindowSize)
	assert.Equal(t, 5, cfg.MinRequests)
	assert.Equal(t, 7, cfg.MaxFailures)
	assert.Equal(t, time.Minute, cfg.Timeout)
	assert.Equal(t, 3, cfg.HalfOpenMax)
	assert.True(t, cfg.IsSuccessful(nil))
	cfg.OnStateChange("x", StateClosed, StateOpen)
	assert.True(t, called)
	assert.True(t, cfg.Now().IsZero())
}
