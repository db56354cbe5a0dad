package operations

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"
)

const validMatrixFile = `
language: python
sudo: false
env:
  OMP_NUM_THREADS: "2"
matrix:
  include:
    - os: linux
      python: "3.6"
    - os: linux
      python: "3.7"
install:
  - pip install .
script:
  - python -m unittest discover
`

const invalidMatrixFile = `
language: python
matrix:
  include:
    - os: linux
`

func runCLI(t *testing.T, cmd cli.Command, args ...string) error {
	t.Helper()
	_, err := runCLIWithOutput(t, cmd, args...)
	return err
}

func runCLIWithOutput(t *testing.T, cmd cli.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	app := cli.NewApp()
	app.Name = "lattice"
	app.Writer = out
	app.Commands = []cli.Command{cmd}
	err := app.Run(append([]string{"lattice"}, args...))
	return out.String(), err
}

func writeMatrixFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "matrix.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidateAcceptsWellFormedMatrix(t *testing.T) {
	path := writeMatrixFile(t, validMatrixFile)
	require.NoError(t, runCLI(t, Validate(), "validate", "--path", path))
}

func TestValidateRejectsBrokenMatrix(t *testing.T) {
	path := writeMatrixFile(t, invalidMatrixFile)
	err := runCLI(t, Validate(), "validate", "--path", path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid")
}

func TestValidateRejectsMissingFile(t *testing.T) {
	err := runCLI(t, Validate(), "validate", "--path", filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
}

func TestValidateRejectsMalformedYAML(t *testing.T) {
	path := writeMatrixFile(t, "language: [unclosed")
	require.Error(t, runCLI(t, Validate(), "validate", "--path", path))
}

func TestEvaluatePrintsExpandedMatrix(t *testing.T) {
	path := writeMatrixFile(t, validMatrixFile)

	out, err := runCLIWithOutput(t, Evaluate(), "evaluate", "--path", path)
	require.NoError(t, err)
	require.Contains(t, out, "name: linux-3.6", "omitted entry names should be filled in")
	require.Contains(t, out, "name: linux-3.7")
	require.Contains(t, out, "install:")
	require.Contains(t, out, "- pip install .")
	require.Contains(t, out, "- python -m unittest discover")

	out, err = runCLIWithOutput(t, Evaluate(), "evaluate", "--path", path, "--entries")
	require.NoError(t, err)
	require.Contains(t, out, "linux-3.6")
	require.Contains(t, out, "linux-3.7")
	require.NotContains(t, out, "pip install")

	out, err = runCLIWithOutput(t, Evaluate(), "evaluate", "--path", path, "--phases")
	require.NoError(t, err)
	require.Contains(t, out, "script:")
	require.Contains(t, out, "- python -m unittest discover")
	require.NotContains(t, out, "linux-3.6")
}

func TestRunExecutesMatrixAndWritesResults(t *testing.T) {
	dir := t.TempDir()
	sentinel := filepath.Join(dir, "ran")
	matrix := `
language: python
matrix:
  include:
    - os: linux
      python: "3.6"
script:
  - touch ` + sentinel + `
`
	path := writeMatrixFile(t, matrix)
	results := filepath.Join(dir, "results.yml")

	require.NoError(t, runCLI(t, Run(), "run", "--path", path, "--results", results))
	require.FileExists(t, sentinel)
	require.FileExists(t, results)

	data, err := os.ReadFile(results)
	require.NoError(t, err)
	require.Contains(t, string(data), "succeeded: 1")
}

func TestRunFailsWhenScriptFails(t *testing.T) {
	matrix := `
language: python
matrix:
  include:
    - os: linux
      python: "3.6"
script:
  - exit 1
`
	path := writeMatrixFile(t, matrix)
	err := runCLI(t, Run(), "run", "--path", path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "1 of 1 entries failed")
}

func TestRunRejectsInvalidMatrix(t *testing.T) {
	path := writeMatrixFile(t, invalidMatrixFile)
	require.Error(t, runCLI(t, Run(), "run", "--path", path))
}
