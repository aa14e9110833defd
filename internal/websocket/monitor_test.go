package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

func hasMessage(hook *test.Hook, msg string) bool {
	for _, e := range hook.AllEntries() {
		if e.Message == msg {
			return true
		}
	}
	return false
}

func TestMonitor_ReportsEveryInterval(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	logger, hook := newTestLogger()

	cfg := DefaultConfig()
	cfg.RateLimit = 4
	cfg.Clock = clk
	cfg.Logger = logger
	srv := New(cfg)

	// 3 of 4 puts "hot" above half its budget, 1 of 4 keeps "cold" below.
	for i := 0; i < 3; i++ {
		srv.limiter.Allow("hot")
	}
	srv.limiter.Allow("cold")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.monitor(ctx) }()

	require.Eventually(t, clk.HasWaiters, time.Second, time.Millisecond)
	assert.False(t, hasMessage(hook, "Connection status: 0 active clients"))

	clk.Step(DefaultMonitorInterval)
	require.Eventually(t, func() bool {
		return hasMessage(hook, "Connection status: 0 active clients") &&
			hasMessage(hook, "Rate limit status: 1 clients over 50% of rate limit")
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}

func TestMonitor_SkipsRateLineWithoutTraffic(t *testing.T) {
	logger, hook := newTestLogger()
	cfg := DefaultConfig()
	cfg.Logger = logger
	srv := New(cfg)

	srv.reportStats()

	assert.True(t, hasMessage(hook, "Connection status: 0 active clients"))
	for _, e := range hook.AllEntries() {
		assert.NotContains(t, e.Message, "Rate limit status")
	}
	assert.Equal(t, Stats{}, srv.Stats())
}
