package timers_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"

	"github.com/lorrc/ups-collab/internal/infrastructure/timers"
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

func TestRegistry_Schedule(t *testing.T) {
	t.Run("fires once after the delay", func(t *testing.T) {
		clk := testclock.NewClock(time.Now())
		reg := timers.NewRegistry(clk)

		var calls atomic.Int32
		reg.Schedule("a", 3*time.Second, func() { calls.Add(1) })
		assert.True(t, reg.Pending("a"))

		clk.Advance(2999 * time.Millisecond)
		assert.Never(t, func() bool { return calls.Load() > 0 }, 50*time.Millisecond, tick)

		clk.Advance(time.Millisecond)
		assert.Eventually(t, func() bool { return calls.Load() == 1 }, waitFor, tick)
		assert.False(t, reg.Pending("a"))
		assert.Equal(t, 0, reg.Len())
	})

	t.Run("rescheduling replaces the pending timer", func(t *testing.T) {
		clk := testclock.NewClock(time.Now())
		reg := timers.NewRegistry(clk)

		var first, second atomic.Int32
		reg.Schedule("a", 3*time.Second, func() { first.Add(1) })
		clk.Advance(2 * time.Second)
		reg.Schedule("a", 3*time.Second, func() { second.Add(1) })
		assert.Equal(t, 1, reg.Len())

		clk.Advance(2 * time.Second)
		assert.Never(t, func() bool { return first.Load() > 0 || second.Load() > 0 }, 50*time.Millisecond, tick)

		clk.Advance(time.Second)
		assert.Eventually(t, func() bool { return second.Load() == 1 }, waitFor, tick)
		assert.Equal(t, int32(0), first.Load())
	})

	t.Run("keys are independent", func(t *testing.T) {
		clk := testclock.NewClock(time.Now())
		reg := timers.NewRegistry(clk)

		var a, b atomic.Int32
		reg.Schedule("a", time.Second, func() { a.Add(1) })
		reg.Schedule("b", 2*time.Second, func() { b.Add(1) })

		clk.Advance(time.Second)
		assert.Eventually(t, func() bool { return a.Load() == 1 }, waitFor, tick)
		assert.True(t, reg.Pending("b"))
		assert.Equal(t, int32(0), b.Load())
	})
}

func TestRegistry_Cancel(t *testing.T) {
	t.Run("cancelled timer never fires", func(t *testing.T) {
		clk := testclock.NewClock(time.Now())
		reg := timers.NewRegistry(clk)

		var calls atomic.Int32
		reg.Schedule("a", time.Second, func() { calls.Add(1) })
		assert.True(t, reg.Cancel("a"))
		assert.False(t, reg.Cancel("a"))

		clk.Advance(time.Minute)
		assert.Never(t, func() bool { return calls.Load() > 0 }, 50*time.Millisecond, tick)
	})

	t.Run("cancel all", func(t *testing.T) {
		clk := testclock.NewClock(time.Now())
		reg := timers.NewRegistry(clk)

		var calls atomic.Int32
		for _, key := range []string{"a", "b", "c"} {
			reg.Schedule(key, time.Second, func() { calls.Add(1) })
		}
		assert.Equal(t, 3, reg.Len())

		reg.CancelAll()
		assert.Equal(t, 0, reg.Len())

		clk.Advance(time.Minute)
		assert.Never(t, func() bool { return calls.Load() > 0 }, 50*time.Millisecond, tick)
	})
}

func TestRegistry_WallClock(t *testing.T) {
	reg := timers.NewRegistry(nil)

	done := make(chan struct{})
	reg.Schedule("a", 10*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("timer did not fire")
	}
}
