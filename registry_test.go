package carrier

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_CarrierRegistry_LookupUnbound(t *testing.T) {
	t.Parallel()

	r := NewCarrierRegistry()
	assert.Nil(t, r.Lookup())
}

func Test_CarrierRegistry_BindAndLookup(t *testing.T) {
	t.Parallel()

	r := NewCarrierRegistry()
	c := &Carrier{id: 7}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Bind(c)
		got := r.Lookup()
		require.Same(t, c, got)
		r.Unbind()
		assert.Nil(t, r.Lookup())
	}()
	<-done
}

func Test_CarrierRegistry_PerGoroutineIsolation(t *testing.T) {
	t.Parallel()

	r := NewCarrierRegistry()
	c1 := &Carrier{id: 1}
	c2 := &Carrier{id: 2}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		r.Bind(c1)
		assert.Same(t, c1, r.Lookup())
	}()
	go func() {
		defer wg.Done()
		r.Bind(c2)
		assert.Same(t, c2, r.Lookup())
	}()
	wg.Wait()
}

func Test_getGoroutineID_StableWithinGoroutine(t *testing.T) {
	t.Parallel()

	id1 := getGoroutineID()
	id2 := getGoroutineID()
	assert.Equal(t, id1, id2)
}

func Test_getGoroutineID_DiffersAcrossGoroutines(t *testing.T) {
	t.Parallel()

	callerID := getGoroutineID()
	otherID := make(chan uint64, 1)
	go func() { otherID <- getGoroutineID() }()
	assert.NotEqual(t, callerID, <-otherID)
}
