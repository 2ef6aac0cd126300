package carrier

import (
	"testing"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Worker_PushPopFIFO(t *testing.T) {
	t.Parallel()

	w := newWorker(0, nil)
	a := &ResumeEntry{}
	b := &ResumeEntry{}

	w.Push(a)
	w.Push(b)
	assert.Equal(t, 2, w.QueueLength())

	got, ok := w.Pop()
	require.True(t, ok)
	assert.Same(t, a, got)

	got, ok = w.Pop()
	require.True(t, ok)
	assert.Same(t, b, got)

	_, ok = w.Pop()
	assert.False(t, ok)
}

func Test_Worker_SignalIsNonBlockingAndCoalesces(t *testing.T) {
	t.Parallel()

	w := newWorker(0, nil)
	w.Signal()
	w.Signal() // must not block even though capacity is 1

	select {
	case <-w.wake:
	default:
		t.Fatal("expected a pending signal")
	}
	select {
	case <-w.wake:
		t.Fatal("signal should have coalesced to one pending wakeup")
	default:
	}
}

func Test_Worker_HandoffReattach(t *testing.T) {
	t.Parallel()

	var reattached *Worker
	w := newWorker(0, func(rw *Worker) { reattached = rw })

	assert.False(t, w.HasBeenHandoff())
	w.hasBeenHandoff.Store(true)
	assert.True(t, w.HasBeenHandoff())

	w.Reattach()
	assert.False(t, w.HasBeenHandoff())
	assert.Same(t, w, reattached)
}

func Test_NewScheduler_BuildsWorkerPool(t *testing.T) {
	t.Parallel()

	s := NewScheduler(4, nil, nil)
	require.Len(t, s.workers, 4)
	for i, w := range s.workers {
		assert.Equal(t, i, w.thread.id)
	}
}

func Test_Scheduler_ExecuteWithWorkerThread(t *testing.T) {
	t.Parallel()

	s := NewScheduler(2, nil, nil)
	entry := &ResumeEntry{}
	s.ExecuteWithWorkerThread(entry, s.workers[1].thread)

	got, ok := s.workers[1].Pop()
	require.True(t, ok)
	assert.Same(t, entry, got)
}

func Test_Scheduler_HandOffWorkerThread(t *testing.T) {
	t.Parallel()

	s := NewScheduler(1, nil, nil)
	thread := s.workers[0].thread
	assert.False(t, s.workers[0].HasBeenHandoff())
	s.HandOffWorkerThread(thread)
	assert.True(t, s.workers[0].HasBeenHandoff())
}

func Test_Scheduler_allowStealRetry_NoLimiterAlwaysAllows(t *testing.T) {
	t.Parallel()

	s := NewScheduler(1, nil, nil)
	origin := &Carrier{id: 1}
	for i := 0; i < 100; i++ {
		assert.True(t, s.allowStealRetry(origin))
	}
}

func Test_Scheduler_allowStealRetry_RespectsLimiter(t *testing.T) {
	t.Parallel()

	limiter := catrate.NewLimiter(map[time.Duration]int{time.Minute: 1})
	s := NewScheduler(1, limiter, nil)
	origin := &Carrier{id: 42}

	assert.True(t, s.allowStealRetry(origin), "first retry should be allowed")
	assert.False(t, s.allowStealRetry(origin), "second retry within the window should be throttled")
}
