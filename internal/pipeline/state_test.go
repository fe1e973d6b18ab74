// SPDX-License-Identifier: MIT
package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateString(t *testing.T) {
	cases := map[State]string{
		Stopped:  "stopped",
		Starting: "starting",
		Running:  "running",
		Stopping: "stopping",
	}
	for state, want := range cases {
		require.Equal(t, want, state.String())
	}
}

func TestStateStringUnknown(t *testing.T) {
	require.Equal(t, "state(99)", State(99).String())
}
