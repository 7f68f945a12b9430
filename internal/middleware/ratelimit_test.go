package middleware

import (
	"io"
	"testing"

	"github.com/fullsong-tgbot-go/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func newTestLimiter(enabled bool, rpm, burst int) RateLimiter {
	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := &config.Config{}
	cfg.RateLimit.Enabled = enabled
	cfg.RateLimit.RequestsPerMinute = rpm
	cfg.RateLimit.Burst = burst

	return NewRateLimiter(cfg, log)
}

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	rl := newTestLimiter(false, 0, 0)

	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow(42))
	}
}

func TestLimiterThrottlesAndResets(t *testing.T) {
	rl := newTestLimiter(true, 1, 1)

	assert.True(t, rl.Allow(42))
	assert.False(t, rl.Allow(42), "burst spent, the next token is a minute away")

	// Another user has an independent bucket.
	assert.True(t, rl.Allow(43))

	rl.Reset(42)
	assert.True(t, rl.Allow(42), "reset grants a fresh bucket")
}
