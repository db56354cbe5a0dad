package model

import (
	"testing"

	"github.com/evergreen-ci/lattice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMatrix = `
language: python
sudo: false
env:
  CI_PROJECT: nutils
matrix:
  include:
    - os: linux
      python: "3.5"
    - os: linux
      python: "3.6"
    - os: osx
      language: generic
      env: PYTHON_PKG_URL=https://example.com/pkgs/python-3.6.4-macosx10.6.pkg
    - os: linux
      python: "3.6"
      env:
        FORCE_PYTHON_PKGS: numpy==1.12 matplotlib==1.3.1 scipy==0.17
  allow_failures:
    - os: osx
before_install:
  - if [ "$LATTICE_OS_NAME" = "osx" ]; then curl -o python3.pkg "$PYTHON_PKG_URL"; fi
install:
  - python3 -m pip install --upgrade .
  - python3 -m pip install --upgrade coverage codecov $FORCE_PYTHON_PKGS
script:
  - python3 -m coverage run -m unittest -b
after_success:
  - codecov
`

func TestParseMatrix(t *testing.T) {
	m, err := ParseMatrix([]byte(sampleMatrix))
	require.NoError(t, err)

	assert.Equal(t, "python", m.Language)
	assert.False(t, m.Sudo)
	assert.Equal(t, map[string]string{"CI_PROJECT": "nutils"}, m.Env)

	require.Len(t, m.Include, 4)
	assert.Equal(t, "linux-3.5", m.Include[0].Name)
	assert.Equal(t, "linux-3.6", m.Include[1].Name)
	assert.Equal(t, "osx-generic", m.Include[2].Name)
	assert.Equal(t, "linux-3.6-2", m.Include[3].Name, "colliding derived names should get ordinal suffixes")

	assert.Equal(t, "https://example.com/pkgs/python-3.6.4-macosx10.6.pkg", m.Include[2].Env[lattice.RuntimePkgURLKey])
	assert.Equal(t, "numpy==1.12 matplotlib==1.3.1 scipy==0.17", m.Include[3].Env["FORCE_PYTHON_PKGS"])

	assert.Len(t, m.Install, 2)
	assert.Len(t, m.Script, 1)
	assert.Equal(t, []string{"codecov"}, m.AfterSuccess)

	require.Len(t, m.AllowFailures, 1)
	assert.Equal(t, lattice.OSMac, m.AllowFailures[0].OS)
}

func TestParseMatrixScalarShortcuts(t *testing.T) {
	m, err := ParseMatrix([]byte(`
language: python
matrix:
  include:
    - python: 3.6
script: python3 -m unittest
`))
	require.NoError(t, err)

	require.Len(t, m.Include, 1)
	assert.Equal(t, "3.6", m.Include[0].Python, "numeric runtime versions parse as strings")
	assert.Equal(t, lattice.OSLinux, m.Include[0].OS, "omitted os defaults to linux")
	assert.Equal(t, []string{"python3 -m unittest"}, m.Script, "single command string parses as a one-element phase")
}

func TestParseMatrixEnvStringForm(t *testing.T) {
	m, err := ParseMatrix([]byte(`
env: A=1 B="two words"
matrix:
  include:
    - python: "3.6"
script: [true]
`))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "1", "B": "two words"}, m.Env)

	_, err = ParseMatrix([]byte(`
env: not-an-assignment
script: [true]
`))
	assert.Error(t, err)
}

func TestParseMatrixKeepsExplicitDuplicateNames(t *testing.T) {
	m, err := ParseMatrix([]byte(`
language: python
matrix:
  include:
    - name: dup
      python: "3.6"
    - name: dup
      python: "3.7"
script: [true]
`))
	require.NoError(t, err)

	// Explicit duplicates are preserved verbatim so validation can
	// reject them; only derived names get ordinal suffixes.
	require.Len(t, m.Include, 2)
	assert.Equal(t, "dup", m.Include[0].Name)
	assert.Equal(t, "dup", m.Include[1].Name)
}

func TestParseMatrixRejectsUnknownFields(t *testing.T) {
	_, err := ParseMatrix([]byte(`
language: python
scrpit:
  - python3 -m unittest
`))
	assert.Error(t, err, "a typoed phase name must not parse")
}

func TestMatrixRoundTrip(t *testing.T) {
	parsed, err := ParseMatrix([]byte(sampleMatrix))
	require.NoError(t, err)

	out, err := parsed.Marshal()
	require.NoError(t, err)

	reparsed, err := ParseMatrix(out)
	require.NoError(t, err)

	assert.Equal(t, parsed.Include, reparsed.Include, "entry order and contents should survive a round trip")
	for _, phase := range lattice.PhaseSequence {
		assert.Equal(t, parsed.PhaseCommands(phase), reparsed.PhaseCommands(phase), "phase '%s' should survive a round trip", phase)
	}
	assert.Equal(t, parsed, reparsed)
}
