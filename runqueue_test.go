package carrier

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_RunQueue_FIFOOrder(t *testing.T) {
	t.Parallel()

	q := NewRunQueue()
	_, ok := q.Pop()
	require.False(t, ok, "empty queue should report no entry")

	entries := make([]*ResumeEntry, 10)
	for i := range entries {
		entries[i] = &ResumeEntry{}
		q.Push(entries[i])
	}
	require.Equal(t, len(entries), q.Length())

	for i, want := range entries {
		got, ok := q.Pop()
		require.Truef(t, ok, "entry %d should be present", i)
		assert.Samef(t, want, got, "entry %d out of order", i)
	}
	_, ok = q.Pop()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Length())
}

func Test_RunQueue_SpansMultipleChunks(t *testing.T) {
	t.Parallel()

	q := NewRunQueue()
	n := chunkSize*2 + 17
	entries := make([]*ResumeEntry, n)
	for i := range entries {
		entries[i] = &ResumeEntry{}
		q.Push(entries[i])
	}
	require.Equal(t, n, q.Length())

	for i, want := range entries {
		got, ok := q.Pop()
		require.Truef(t, ok, "entry %d should be present", i)
		assert.Same(t, want, got)
	}
	_, ok := q.Pop()
	assert.False(t, ok)
}

func Test_RunQueue_InterleavedPushPop(t *testing.T) {
	t.Parallel()

	q := NewRunQueue()
	a, b, c := &ResumeEntry{}, &ResumeEntry{}, &ResumeEntry{}

	q.Push(a)
	q.Push(b)
	got, ok := q.Pop()
	require.True(t, ok)
	assert.Same(t, a, got)

	q.Push(c)
	got, ok = q.Pop()
	require.True(t, ok)
	assert.Same(t, b, got)

	got, ok = q.Pop()
	require.True(t, ok)
	assert.Same(t, c, got)

	_, ok = q.Pop()
	assert.False(t, ok)
}

func Test_TaskCache_GiveTake(t *testing.T) {
	t.Parallel()

	c := NewTaskCache()
	assert.Nil(t, c.Take())
	assert.Equal(t, 0, c.Length())

	task := &Task{}
	c.Give(task)
	require.Equal(t, 1, c.Length())

	got := c.Take()
	assert.Same(t, task, got)
	assert.Equal(t, 0, c.Length())
	assert.Nil(t, c.Take())
}

func Test_TaskCache_OverflowBeyondRingCapacity(t *testing.T) {
	t.Parallel()

	c := NewTaskCache()
	n := ringBufferSize + 100
	tasks := make([]*Task, n)
	for i := range tasks {
		tasks[i] = &Task{}
		c.Give(tasks[i])
	}
	require.Equal(t, n, c.Length())

	seen := make(map[*Task]bool, n)
	for i := 0; i < n; i++ {
		got := c.Take()
		require.NotNilf(t, got, "expected a task at position %d", i)
		assert.False(t, seen[got], "task returned more than once")
		seen[got] = true
	}
	assert.Nil(t, c.Take())
	assert.Len(t, seen, n)
}

func Test_TaskCache_ConcurrentMultiConsumerTakeNeverDuplicates(t *testing.T) {
	t.Parallel()

	c := NewTaskCache()
	const n = 5000
	const consumers = 8

	tasks := make([]*Task, n)
	for i := range tasks {
		tasks[i] = &Task{}
		c.Give(tasks[i])
	}
	require.Equal(t, n, c.Length())

	var mu sync.Mutex
	seen := make(map[*Task]bool, n)
	var dup atomic.Bool
	var taken atomic.Int64

	var wg sync.WaitGroup
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				got := c.Take()
				if got == nil {
					return
				}
				mu.Lock()
				if seen[got] {
					dup.Store(true)
				}
				seen[got] = true
				mu.Unlock()
				taken.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.False(t, dup.Load(), "two concurrent Take callers returned the same recycled *Task")
	assert.Equal(t, int64(n), taken.Load())
}

func Test_TaskCache_ConcurrentGiveTake(t *testing.T) {
	t.Parallel()

	c := NewTaskCache()
	const n = 2000

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < n; i++ {
			c.Give(&Task{})
		}
	}()

	taken := 0
	for taken < n {
		if c.Take() != nil {
			taken++
		}
	}
	<-done
	assert.Equal(t, n, taken)
}
