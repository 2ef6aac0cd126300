package carrier

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_TimerWheel_CoarseSweepDue(t *testing.T) {
	t.Parallel()

	w := NewTimerWheel(false)
	now := time.Now()

	past := &Task{}
	future := &Task{}

	w.addTimer(past, now.Add(-time.Millisecond), func(*Task) {})
	w.addTimer(future, now.Add(time.Hour), func(*Task) {})

	due := w.sweepDue(now)
	require.Len(t, due, 1)
	assert.Same(t, past, due[0].task)

	// future timer should not have fired yet.
	due = w.sweepDue(now)
	assert.Empty(t, due)
}

func Test_TimerWheel_CancelRemovesFromHeap(t *testing.T) {
	t.Parallel()

	w := NewTimerWheel(false)
	task := &Task{}
	b := w.addTimer(task, time.Now().Add(time.Hour), func(*Task) {})

	w.cancelTimer(b)
	assert.True(t, b.Canceled())

	_, ok := w.nextDeadline()
	assert.False(t, ok, "canceled timer should be removed from the wheel")
}

func Test_TimerWheel_CancelAfterFireIsNoOp(t *testing.T) {
	t.Parallel()

	w := NewTimerWheel(false)
	task := &Task{}
	b := w.addTimer(task, time.Now().Add(-time.Millisecond), func(*Task) {})

	due := w.sweepDue(time.Now())
	require.Len(t, due, 1)

	assert.NotPanics(t, func() { w.cancelTimer(b) })
}

func Test_TimerWheel_NextDeadlineOrdering(t *testing.T) {
	t.Parallel()

	w := NewTimerWheel(false)
	now := time.Now()
	w.addTimer(&Task{}, now.Add(time.Hour), func(*Task) {})
	w.addTimer(&Task{}, now.Add(time.Minute), func(*Task) {})

	d, ok := w.nextDeadline()
	require.True(t, ok)
	assert.Equal(t, now.Add(time.Minute), d)
}

func Test_TimerWheel_HighPrecisionFiresAndCancels(t *testing.T) {
	t.Parallel()

	w := NewTimerWheel(true)

	t.Run("fires", func(t *testing.T) {
		t.Parallel()
		task := &Task{}
		var mu sync.Mutex
		var woke *Task
		done := make(chan struct{})

		w.addTimer(task, time.Now().Add(5*time.Millisecond), func(tk *Task) {
			mu.Lock()
			woke = tk
			mu.Unlock()
			close(done)
		})

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timer never fired")
		}
		mu.Lock()
		defer mu.Unlock()
		assert.Same(t, task, woke)
	})

	t.Run("canceled timer does not wake", func(t *testing.T) {
		t.Parallel()
		task := &Task{}
		woke := false
		b := w.addTimer(task, time.Now().Add(20*time.Millisecond), func(*Task) {
			woke = true
		})
		w.cancelTimer(b)
		time.Sleep(50 * time.Millisecond)
		assert.False(t, woke)
	})

	// High precision mode never uses the coarse heap.
	_, ok := w.nextDeadline()
	assert.False(t, ok)
}

func Test_TimerWheel_NewBindingThenInstall(t *testing.T) {
	t.Parallel()

	w := NewTimerWheel(false)
	task := &Task{}
	deadline := time.Now().Add(-time.Millisecond)

	b := w.newBinding(task, deadline)
	require.Equal(t, -1, b.index)

	// Not installed yet: sweeping finds nothing.
	assert.Empty(t, w.sweepDue(time.Now()))

	w.install(b, func(*Task) {})
	due := w.sweepDue(time.Now())
	require.Len(t, due, 1)
	assert.Same(t, b, due[0])
}
