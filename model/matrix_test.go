package model

import (
	"testing"

	"github.com/evergreen-ci/lattice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryEnvLayering(t *testing.T) {
	m := Matrix{
		Env: map[string]string{"SHARED": "global", "OVERRIDDEN": "global"},
		Include: []Entry{
			{Name: "a", OS: lattice.OSLinux, Env: map[string]string{"OVERRIDDEN": "entry", "FORCE_PYTHON_PKGS": "numpy==1.12"}},
			{Name: "b", OS: lattice.OSLinux},
		},
	}

	envA := m.EntryEnv(m.Include[0])
	assert.Equal(t, "global", envA["SHARED"])
	assert.Equal(t, "entry", envA["OVERRIDDEN"], "entry values win over matrix values")

	envB := m.EntryEnv(m.Include[1])
	assert.Equal(t, "global", envB["OVERRIDDEN"])
	_, leaked := envB["FORCE_PYTHON_PKGS"]
	assert.False(t, leaked, "one entry's overrides must not appear in a sibling's env")

	// Mutating a computed env must not affect later computations.
	envA["SHARED"] = "mutated"
	assert.Equal(t, "global", m.EntryEnv(m.Include[0])["SHARED"])
}

func TestEntryDisplayName(t *testing.T) {
	assert.Equal(t, "named", Entry{Name: "named", OS: lattice.OSMac}.DisplayName())
	assert.Equal(t, "osx-generic", Entry{OS: lattice.OSMac, Language: "generic"}.DisplayName())
	assert.Equal(t, "linux-3.6", Entry{OS: lattice.OSLinux, Python: "3.6"}.DisplayName())
	assert.Equal(t, "linux-default", Entry{}.DisplayName())
}

func TestEntrySelectorMatches(t *testing.T) {
	e := Entry{Name: "osx-generic", OS: lattice.OSMac, Language: "generic"}

	assert.True(t, EntrySelector{OS: lattice.OSMac}.Matches(e))
	assert.True(t, EntrySelector{Name: "osx-generic", OS: lattice.OSMac}.Matches(e))
	assert.False(t, EntrySelector{OS: lattice.OSLinux}.Matches(e))
	assert.False(t, EntrySelector{OS: lattice.OSMac, Python: "3.6"}.Matches(e))
	assert.False(t, EntrySelector{}.Matches(e), "an empty selector matches nothing")
}

func TestAllowedToFail(t *testing.T) {
	m := Matrix{
		Include: []Entry{
			{Name: "osx-generic", OS: lattice.OSMac},
			{Name: "linux-3.6", OS: lattice.OSLinux, Python: "3.6"},
		},
		AllowFailures: []EntrySelector{{OS: lattice.OSMac}},
	}

	assert.True(t, m.AllowedToFail(m.Include[0]))
	assert.False(t, m.AllowedToFail(m.Include[1]))
}

func TestRuntimePkgURL(t *testing.T) {
	m := Matrix{
		Env: map[string]string{lattice.RuntimePkgURLKey: "https://example.com/global.pkg"},
		Include: []Entry{
			{Name: "a", OS: lattice.OSMac, Env: map[string]string{lattice.RuntimePkgURLKey: "https://example.com/entry.pkg"}},
			{Name: "b", OS: lattice.OSMac},
			{Name: "c", OS: lattice.OSLinux},
		},
	}
	assert.Equal(t, "https://example.com/entry.pkg", m.RuntimePkgURL(m.Include[0]))
	assert.Equal(t, "https://example.com/global.pkg", m.RuntimePkgURL(m.Include[1]))

	m.Env = nil
	require.Equal(t, "", m.RuntimePkgURL(m.Include[2]))
}

func TestPhaseCommands(t *testing.T) {
	m := Matrix{
		BeforeInstall: []string{"a"},
		Install:       []string{"b"},
		Script:        []string{"c"},
		AfterSuccess:  []string{"d"},
	}
	assert.Equal(t, []string{"a"}, m.PhaseCommands(lattice.PhaseBeforeInstall))
	assert.Equal(t, []string{"b"}, m.PhaseCommands(lattice.PhaseInstall))
	assert.Equal(t, []string{"c"}, m.PhaseCommands(lattice.PhaseScript))
	assert.Equal(t, []string{"d"}, m.PhaseCommands(lattice.PhaseAfterSuccess))
	assert.Nil(t, m.PhaseCommands("bogus"))
}
