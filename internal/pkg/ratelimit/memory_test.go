package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(max int, period time.Duration) (*MemoryLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewMemoryLimiter(max, period).WithClock(clock.Now), clock
}

func TestMemoryLimiter_EleventhCallDenied(t *testing.T) {
	limiter, clock := newTestLimiter(10, time.Minute)

	for i := 0; i < 10; i++ {
		assert.True(t, limiter.Allow("1.2.3.4"), "call %d should pass", i+1)
	}
	assert.False(t, limiter.Allow("1.2.3.4"))
	assert.Equal(t, 0, limiter.Remaining("1.2.3.4"))

	// 窗口结束后重新计数
	clock.Advance(time.Minute)
	assert.True(t, limiter.Allow("1.2.3.4"))
	assert.Equal(t, 1, limiter.Count("1.2.3.4"))
	assert.Equal(t, 9, limiter.Remaining("1.2.3.4"))
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(1, time.Minute)

	assert.True(t, limiter.Allow("a"))
	assert.False(t, limiter.Allow("a"))
	assert.True(t, limiter.Allow("b"))
}

func TestMemoryLimiter_RemainingAndResetTime(t *testing.T) {
	limiter, clock := newTestLimiter(3, 30*time.Second)
	start := clock.Now()

	assert.Equal(t, 3, limiter.Remaining("k"))
	assert.Equal(t, start, limiter.ResetTime("k"))

	limiter.Allow("k")
	assert.Equal(t, 2, limiter.Remaining("k"))
	assert.Equal(t, start.Add(30*time.Second), limiter.ResetTime("k"))

	clock.Advance(10 * time.Second)
	limiter.Allow("k")
	// 窗口起点不随后续请求移动
	assert.Equal(t, start.Add(30*time.Second), limiter.ResetTime("k"))
}

func TestMemoryLimiter_Sweep(t *testing.T) {
	limiter, clock := newTestLimiter(5, time.Minute)

	limiter.Allow("old")
	clock.Advance(30 * time.Second)
	limiter.Allow("new")

	clock.Advance(40 * time.Second)
	assert.Equal(t, 1, limiter.Sweep())
	assert.Equal(t, 1, limiter.Len())
	assert.Equal(t, 1, limiter.Count("new"))
}

func TestMemoryLimiter_StartSweeper(t *testing.T) {
	limiter := NewMemoryLimiter(5, 10*time.Millisecond)
	limiter.Allow("a")
	limiter.Allow("b")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	limiter.StartSweeper(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		return limiter.Len() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestMemoryLimiter_Concurrent(t *testing.T) {
	limiter := NewMemoryLimiter(50, time.Minute)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Allow("shared") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed)
}

func BenchmarkMemoryLimiter_Allow(b *testing.B) {
	limiter := NewMemoryLimiter(1000, time.Minute)
	for i := 0; i < b.N; i++ {
		limiter.Allow(fmt.Sprintf("key-%d", i%100))
	}
}
