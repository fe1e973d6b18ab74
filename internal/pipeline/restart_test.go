// SPDX-License-Identifier: MIT
package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffForFollowsSpecSchedule(t *testing.T) {
	require.Equal(t, 100*time.Millisecond, backoffFor(0))
	require.Equal(t, 500*time.Millisecond, backoffFor(1))
	require.Equal(t, 2*time.Second, backoffFor(2))
	// Beyond the named schedule, stay at the last (largest) step rather
	// than growing without bound.
	require.Equal(t, 2*time.Second, backoffFor(3))
	require.Equal(t, 2*time.Second, backoffFor(100))
}

func TestIsTransientClassifiesConfigErrorsAsPermanent(t *testing.T) {
	require.False(t, isTransient(&ConfigError{err: errors.New("bad fft size")}))
}

func TestIsTransientClassifiesOtherErrorsAsTransient(t *testing.T) {
	require.True(t, isTransient(errors.New("device busy")))
}

func TestConfigErrorUnwraps(t *testing.T) {
	inner := errors.New("bad window kind")
	wrapped := &ConfigError{err: inner}
	require.ErrorIs(t, wrapped, inner)
	require.Equal(t, inner.Error(), wrapped.Error())
}

// TestSupervisorShutdownIsIdempotent exercises that Shutdown can be called
// more than once without panicking, which the manager relies on during
// overlapping stop/remove calls (scenario 6's teardown path).
func TestSupervisorShutdownIsIdempotent(t *testing.T) {
	p := New("test-device", stubAudioConfig(), stubStreamConfig())
	sup := NewSupervisor(p)

	sup.mu.Lock()
	sup.stopCh = make(chan struct{})
	sup.mu.Unlock()

	require.NotPanics(t, func() {
		sup.Shutdown()
		sup.Shutdown()
	})
}
