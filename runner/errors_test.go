package runner

import (
	"testing"

	"github.com/evergreen-ci/lattice"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsPhaseErrorDigsThroughWrapping(t *testing.T) {
	base := newPhaseError("linux-3.6", lattice.PhaseInstall, "pip install .", 1, errors.New("exit status 1"))
	wrapped := errors.Wrap(errors.Wrap(base, "running entry"), "matrix run")

	pe, ok := AsPhaseError(wrapped)
	require.True(t, ok)
	assert.Equal(t, lattice.PhaseInstall, pe.Phase)
	assert.Equal(t, "pip install .", pe.Command)
	assert.Equal(t, 1, pe.ExitCode)

	assert.True(t, IsDependencyResolutionError(wrapped))
	assert.False(t, IsTestFailure(wrapped))
}

func TestPhaseErrorClassification(t *testing.T) {
	assert.False(t, IsDependencyResolutionError(nil))
	assert.False(t, IsTestFailure(nil))
	assert.False(t, IsDependencyResolutionError(errors.New("unrelated")))

	scriptErr := newPhaseError("linux-3.6", lattice.PhaseScript, "python -m test", 2, nil)
	assert.True(t, IsTestFailure(scriptErr))
	assert.False(t, IsDependencyResolutionError(scriptErr))

	beforeErr := newPhaseError("linux-3.6", lattice.PhaseBeforeInstall, "apt-get update", 100, nil)
	assert.False(t, IsTestFailure(beforeErr))
	assert.False(t, IsDependencyResolutionError(beforeErr))
}

func TestPhaseErrorMessage(t *testing.T) {
	err := newPhaseError("osx", lattice.PhaseScript, "python -m nose", 1, errors.New("exit status 1"))
	assert.Contains(t, err.Error(), "osx")
	assert.Contains(t, err.Error(), lattice.PhaseScript)
	assert.Contains(t, err.Error(), "python -m nose")
}
