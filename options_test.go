//go:build unix

package eventfd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveEventOptions_Defaults(t *testing.T) {
	cfg, err := resolveEventOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultPollInterval, cfg.pollInterval)
	assert.Equal(t, !eventfdSupported, cfg.pipe)
	assert.Nil(t, cfg.logger)
}

// Test: Nil option handling
func TestNewEvent_NilOption(t *testing.T) {
	e, err := NewEvent(nil)
	require.NoError(t, err)
	defer e.Close()
	assert.False(t, e.IsSet())
}

func TestWithPollInterval_Invalid(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second} {
		e, err := NewEvent(WithPollInterval(d))
		assert.Nil(t, e)
		assert.EqualError(t, err, "eventfd: poll interval must be positive")
	}
}

func TestWithPipe_Disabled(t *testing.T) {
	cfg, err := resolveEventOptions([]EventOption{WithPipe(true), WithPipe(false)})
	require.NoError(t, err)
	// platforms without eventfd always use a pipe
	assert.Equal(t, !eventfdSupported, cfg.pipe)
}
