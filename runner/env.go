package runner

import (
	"os"
	"strconv"

	"github.com/evergreen-ci/lattice"
)

type entryEnvOptions struct {
	entryName  string
	osName     string
	workingDir string
	tmpDir     string
	runtimePkg string
}

// buildEntryEnv computes the environment variable overrides for one
// entry's phase commands. The host environment is inherited by the
// subprocess layer; this map carries only the entry's own variables plus
// the runner's markers, and is rebuilt from scratch for every entry so
// that nothing can leak between siblings.
func buildEntryEnv(overrides map[string]string, opts entryEnvOptions) map[string]string {
	env := make(map[string]string, len(overrides)+8)
	for k, v := range overrides {
		env[k] = v
	}

	env[lattice.MarkerOSName] = opts.osName
	env[lattice.MarkerEntryName] = opts.entryName
	env["LATTICE_PID"] = strconv.Itoa(os.Getpid())
	if opts.runtimePkg != "" {
		env[lattice.MarkerRuntimePkg] = opts.runtimePkg
	}

	addTempDirs(env, opts.tmpDir)

	if _, ok := env["CI"]; !ok {
		env["CI"] = "true"
	}

	return env
}

func addTempDirs(env map[string]string, dir string) {
	if dir == "" {
		return
	}
	for _, key := range []string{"TMP", "TMPDIR", "TEMP"} {
		if _, ok := env[key]; ok {
			continue
		}
		env[key] = dir
	}
}
