package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func TestAllow_BudgetWithinWindow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		limit int
	}{
		{name: "limit one", limit: 1},
		{name: "limit two", limit: 2},
		{name: "default budget", limit: 100},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l := New(tt.limit, clocktesting.NewFakePassiveClock(epoch))
			for i := 1; i <= tt.limit; i++ {
				assert.True(t, l.Allow("10.0.0.1:5000"), "request %d should be allowed", i)
			}
			assert.False(t, l.Allow("10.0.0.1:5000"), "request %d should be rejected", tt.limit+1)

			w, ok := l.Window("10.0.0.1:5000")
			require.True(t, ok)
			assert.Equal(t, tt.limit, w.Count, "rejected requests must not be counted")
		})
	}
}

func TestAllow_ResetsAfterWindow(t *testing.T) {
	t.Parallel()

	clk := clocktesting.NewFakePassiveClock(epoch)
	l := New(2, clk)

	assert.True(t, l.Allow("client"))
	assert.True(t, l.Allow("client"))
	assert.False(t, l.Allow("client"))

	clk.SetTime(epoch.Add(59 * time.Second))
	assert.False(t, l.Allow("client"), "window must still be active before 60s")

	clk.SetTime(epoch.Add(60 * time.Second))
	assert.True(t, l.Allow("client"), "window must reset 60s after it started")

	w, ok := l.Window("client")
	require.True(t, ok)
	assert.Equal(t, 1, w.Count)
	assert.Equal(t, epoch.Add(2*time.Minute), w.ResetAt)
}

func TestAllow_IdentitiesAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(1, clocktesting.NewFakePassiveClock(epoch))

	assert.True(t, l.Allow("a:1"))
	assert.False(t, l.Allow("a:1"))
	assert.True(t, l.Allow("b:1"))
	assert.Equal(t, 2, l.Tracked())
}

func TestAllow_Disabled(t *testing.T) {
	t.Parallel()

	l := New(0, nil)
	for i := 0; i < 1000; i++ {
		require.True(t, l.Allow("client"))
	}
	assert.False(t, l.Enabled())
	assert.Equal(t, 0, l.Tracked())
	assert.Equal(t, 0, l.HotClients())
}

func TestHotClients(t *testing.T) {
	t.Parallel()

	l := New(4, clocktesting.NewFakePassiveClock(epoch))

	// exactly half is not hot
	l.Allow("half")
	l.Allow("half")

	for i := 0; i < 3; i++ {
		l.Allow("hot")
	}
	for i := 0; i < 10; i++ {
		l.Allow("capped")
	}
	l.Allow("cold")

	assert.Equal(t, 2, l.HotClients())
	assert.Equal(t, 4, l.Tracked())
}

func TestAllow_Concurrent(t *testing.T) {
	t.Parallel()

	const (
		limit   = 50
		workers = 20
		perWork = 10
	)
	l := New(limit, clocktesting.NewFakePassiveClock(epoch))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWork; j++ {
				if l.Allow("shared") {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, allowed)
}

func BenchmarkAllow(b *testing.B) {
	l := New(1<<30, nil)
	ids := make([]string, 64)
	for i := range ids {
		ids[i] = fmt.Sprintf("10.0.0.%d:4000", i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.Allow(ids[i%len(ids)])
	}
}
