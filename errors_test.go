package carrier

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Rejected_Error(t *testing.T) {
	t.Parallel()

	t.Run("named spawn", func(t *testing.T) {
		t.Parallel()
		err := &Rejected{Name: "worker-1"}
		assert.Contains(t, err.Error(), "worker-1")
	})

	t.Run("unnamed spawn", func(t *testing.T) {
		t.Parallel()
		err := &Rejected{}
		assert.Contains(t, err.Error(), "spawn rejected")
	})

	t.Run("unwraps cause", func(t *testing.T) {
		t.Parallel()
		cause := errors.New("boom")
		err := &Rejected{Cause: cause}
		assert.True(t, errors.Is(err, cause))
	})
}

func Test_StealOutcome_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "success", StealSuccess.String())
	assert.Equal(t, "fail_by_status", StealFailByStatus.String())
	assert.Equal(t, "fail_by_contention", StealFailByContention.String())
	assert.Equal(t, "unknown", StealOutcome(99).String())
}

func Test_StealFailure_Retryable(t *testing.T) {
	t.Parallel()

	require.True(t, (&StealFailure{Outcome: StealFailByContention}).Retryable())
	require.False(t, (&StealFailure{Outcome: StealFailByStatus}).Retryable())
	require.False(t, (&StealFailure{Outcome: StealSuccess}).Retryable())
}

func Test_InvalidState_Error(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "carrier: invalid state", (&InvalidState{}).Error())
	assert.Equal(t, "carrier: invalid state: custom", (&InvalidState{Message: "custom"}).Error())
}

func Test_ShutdownRaise_Is(t *testing.T) {
	t.Parallel()

	a := &ShutdownRaise{}
	b := &ShutdownRaise{Cause: errors.New("drain")}
	assert.True(t, a.Is(b))
	assert.False(t, a.Is(errors.New("unrelated")))
}

func Test_WrapError(t *testing.T) {
	t.Parallel()

	cause := errors.New("root cause")
	wrapped := WrapError("carrier: operation failed", cause)
	require.Error(t, wrapped)
	assert.True(t, errors.Is(wrapped, cause))
	assert.Contains(t, wrapped.Error(), "operation failed")
}
