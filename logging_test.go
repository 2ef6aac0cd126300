package carrier

import (
	"bytes"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_logger_DefaultIsDisabled(t *testing.T) {
	// Not parallel: mutates global logger state.
	SetLogger(nil)
	l := logger()
	require.NotNil(t, l)
	assert.Equal(t, logiface.LevelDisabled, l.Level())
	assert.False(t, l.Debug().Enabled())
}

func Test_SetLogger_NilRestoresDefault(t *testing.T) {
	// Not parallel: mutates global logger state.
	var buf bytes.Buffer
	custom := NewJSONLogger(logiface.LevelDebug, stumpy.WithWriter(&buf))
	SetLogger(custom)
	assert.Same(t, custom, logger())

	SetLogger(nil)
	assert.NotSame(t, custom, logger())
	assert.False(t, logger().Debug().Enabled())
}

func Test_NewJSONLogger_WritesThroughToBuffer(t *testing.T) {
	// Not parallel: mutates global logger state.
	defer SetLogger(nil)

	var buf bytes.Buffer
	l := NewJSONLogger(logiface.LevelDebug, stumpy.WithWriter(&buf))
	SetLogger(l)

	logger().Debug().Str("component", "test").Log("hello")
	assert.Contains(t, buf.String(), "hello")
}
