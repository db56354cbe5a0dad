package lattice

// ClientVersion is the release version string of the lattice binary.
// Update it whenever a change to the configuration format or the runner's
// execution semantics ships.
const ClientVersion = "2026-06-18"

// BuildRevision should be specified with -ldflags at build time.
var BuildRevision = ""

const (
	// DefaultMatrixFileName is the configuration file the CLI looks for
	// when no path is given.
	DefaultMatrixFileName = ".matrix.yml"

	OSLinux   = "linux"
	OSMac     = "osx"
	OSWindows = "windows"

	PhaseBeforeInstall = "before_install"
	PhaseInstall       = "install"
	PhaseScript        = "script"
	PhaseAfterSuccess  = "after_success"

	EntryStatusSucceeded      = "success"
	EntryStatusFailed         = "failed"
	EntryStatusAllowedFailure = "allowed-failure"
	EntryStatusSkipped        = "skipped"

	// Environment markers the runner injects into every phase command's
	// environment.
	MarkerOSName     = "LATTICE_OS_NAME"
	MarkerEntryName  = "LATTICE_ENTRY"
	MarkerRuntimePkg = "LATTICE_RUNTIME_PKG"

	// RuntimePkgURLKey is the environment key entries use to point at a
	// downloadable runtime installer package when the host OS has no
	// native runtime of the requested version.
	RuntimePkgURLKey = "PYTHON_PKG_URL"
)

// PhaseSequence is the fixed, ordered set of phases that run for every
// matrix entry. A phase only starts after the previous one succeeded;
// after_success additionally never affects the entry's recorded outcome.
var PhaseSequence = []string{
	PhaseBeforeInstall,
	PhaseInstall,
	PhaseScript,
	PhaseAfterSuccess,
}

// ValidOSNames enumerates the operating system identifiers entries may
// declare.
var ValidOSNames = []string{OSLinux, OSMac, OSWindows}

// IsValidOSName reports whether name is a recognized entry OS identifier.
func IsValidOSName(name string) bool {
	for _, os := range ValidOSNames {
		if os == name {
			return true
		}
	}
	return false
}

// IsFailurePhase reports whether a failure in the named phase fails the
// entry. A failed after_success is logged but does not change the entry's
// outcome.
func IsFailurePhase(phase string) bool {
	return phase != PhaseAfterSuccess
}
