//go:build !windows

package carrier

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Exercises the Unix pollers (poller_linux.go/poller_darwin.go) through
// Pump, the layer Carrier actually drives for §4.1.11 I/O wakeups. The
// IOCP-backed Windows poller is only smoke-tested for Init/Close, in
// pump_windows_test.go, since its PollIO dispatch needs real overlapped
// I/O to exercise meaningfully.
func Test_Pump_RegisterEventWakesOnReadReadiness(t *testing.T) {
	t.Parallel()

	p, err := NewPump()
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	defer func() { _ = w.Close() }()

	task := &Task{}
	woke := make(chan *Task, 1)
	require.NoError(t, p.RegisterEvent(task, int(r.Fd()), EventRead, func(got *Task) {
		woke <- got
	}))

	_, err = w.Write([]byte("x"))
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, err := p.Poll(50)
		require.NoError(t, err)
		if n > 0 {
			break
		}
	}

	select {
	case got := <-woke:
		require.Same(t, task, got)
	default:
		t.Fatal("expected RegisterEvent callback to fire on read readiness")
	}

	require.NoError(t, p.UnregisterEvent(task))
	require.Nil(t, task.ch)
}

// A stale registration superseded by UnregisterEvent must not wake a
// recycled task that has moved on to something else (§4.1.11).
func Test_Pump_UnregisterEventDropsStaleNotification(t *testing.T) {
	t.Parallel()

	p, err := NewPump()
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	defer func() { _ = w.Close() }()

	task := &Task{}
	woke := make(chan *Task, 1)
	require.NoError(t, p.RegisterEvent(task, int(r.Fd()), EventRead, func(got *Task) {
		woke <- got
	}))
	require.NoError(t, p.UnregisterEvent(task))

	_, err = w.Write([]byte("x"))
	require.NoError(t, err)

	_, err = p.Poll(50)
	require.NoError(t, err)

	select {
	case <-woke:
		t.Fatal("unregistered task must not be woken")
	default:
	}
}
