package timeutil

import (
	"sync"
	"testing"
	"time"
)

func TestRealClock(t *testing.T) {
	c := RealClock{}
	before := time.Now()
	now := c.Now()
	if now.Before(before) {
		t.Errorf("Now() = %v, before %v", now, before)
	}
	if c.Since(before) < 0 {
		t.Error("Since() should not be negative")
	}
}

func TestMockClock(t *testing.T) {
	start := time.Date(2020, 1, 6, 0, 2, 39, 0, time.UTC)
	c := NewMockClock(start)

	if !c.Now().Equal(start) {
		t.Errorf("Now() = %v, want %v", c.Now(), start)
	}
	c.Advance(90 * time.Second)
	if got := c.Since(start); got != 90*time.Second {
		t.Errorf("Since() = %v, want 90s", got)
	}
	c.Set(start.Add(-time.Hour))
	if got := c.Since(start); got != -time.Hour {
		t.Errorf("Since() after Set = %v, want -1h", got)
	}
}

func TestMockClock_Concurrent(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Advance(time.Millisecond)
			_ = c.Now()
		}()
	}
	wg.Wait()
	if got := c.Since(time.Unix(0, 0)); got != 50*time.Millisecond {
		t.Errorf("Since() = %v, want 50ms", got)
	}
}
