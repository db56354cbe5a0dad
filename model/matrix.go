package model

import (
	"fmt"

	"github.com/evergreen-ci/lattice"
)

// This package owns the build-matrix configuration: a declarative YAML
// document that enumerates independent (operating system, runtime,
// environment override) combinations and the ordered phase commands that
// run for each of them. Parsing produces a fully evaluated Matrix; callers
// outside this package never see the intermediate parser types.

// Matrix is the evaluated form of a build-matrix configuration file.
type Matrix struct {
	// Language names the primary runtime the matrix builds against. It
	// is advisory; entries may override it individually.
	Language string
	// Sudo indicates the phase commands expect elevated privileges.
	Sudo bool
	// Env holds environment variables shared by every entry. Entry-level
	// variables override these.
	Env map[string]string

	// Include is the ordered list of matrix entries. Order is preserved
	// through serialization round trips.
	Include []Entry
	// AllowFailures selects entries whose pipeline failures are reported
	// but do not fail the overall run.
	AllowFailures []EntrySelector

	BeforeInstall []string
	Install       []string
	Script        []string
	AfterSuccess  []string

	// TimeoutSecs bounds the execution time of each phase. Zero means no
	// limit.
	TimeoutSecs int
}

// Entry is one independent combination the full phase sequence runs for.
type Entry struct {
	// Name identifies the entry in logs and results. The parser fills in
	// a derived name when the configuration omits one.
	Name string
	// OS is the operating system identifier the entry targets.
	OS string
	// Python is the native runtime version to select, when the target OS
	// offers one.
	Python string
	// Language overrides the matrix-level language for this entry.
	Language string
	// Env holds this entry's environment variable overrides. They are
	// layered over the matrix-level env and never shared with sibling
	// entries.
	Env map[string]string
}

// EntrySelector matches entries by any combination of name, OS, and
// runtime version. Empty fields match everything.
type EntrySelector struct {
	Name   string `yaml:"name,omitempty"`
	OS     string `yaml:"os,omitempty"`
	Python string `yaml:"python,omitempty"`
}

// Matches reports whether the selector's populated fields all match the
// given entry. A selector with no populated fields matches nothing rather
// than everything, since that is always a configuration mistake.
func (s EntrySelector) Matches(e Entry) bool {
	if s.Name == "" && s.OS == "" && s.Python == "" {
		return false
	}
	if s.Name != "" && s.Name != e.Name {
		return false
	}
	if s.OS != "" && s.OS != e.OS {
		return false
	}
	if s.Python != "" && s.Python != e.Python {
		return false
	}
	return true
}

func (s EntrySelector) String() string {
	return fmt.Sprintf("{name=%q os=%q python=%q}", s.Name, s.OS, s.Python)
}

// DisplayName returns the entry's configured name, or a name derived from
// its OS and runtime when none was configured.
func (e Entry) DisplayName() string {
	if e.Name != "" {
		return e.Name
	}
	return deriveEntryName(e)
}

func deriveEntryName(e Entry) string {
	runtime := e.Python
	if runtime == "" {
		runtime = e.Language
	}
	if runtime == "" {
		runtime = "default"
	}
	os := e.OS
	if os == "" {
		os = lattice.OSLinux
	}
	return fmt.Sprintf("%s-%s", os, runtime)
}

// PhaseCommands returns the ordered commands for the named phase.
func (m *Matrix) PhaseCommands(phase string) []string {
	switch phase {
	case lattice.PhaseBeforeInstall:
		return m.BeforeInstall
	case lattice.PhaseInstall:
		return m.Install
	case lattice.PhaseScript:
		return m.Script
	case lattice.PhaseAfterSuccess:
		return m.AfterSuccess
	}
	return nil
}

// EntryEnv computes the environment variable overrides for one entry:
// matrix-level variables first, then the entry's own. The result is a
// fresh map on every call so that mutations by one entry's pipeline can
// never leak into a sibling's.
func (m *Matrix) EntryEnv(e Entry) map[string]string {
	env := make(map[string]string, len(m.Env)+len(e.Env))
	for k, v := range m.Env {
		env[k] = v
	}
	for k, v := range e.Env {
		env[k] = v
	}
	return env
}

// RuntimePkgURL returns the runtime installer package URL the entry
// resolves, or the empty string when it declares none.
func (m *Matrix) RuntimePkgURL(e Entry) string {
	return m.EntryEnv(e)[lattice.RuntimePkgURLKey]
}

// EntryLanguage returns the language the entry builds against, falling
// back to the matrix-level language.
func (m *Matrix) EntryLanguage(e Entry) string {
	if e.Language != "" {
		return e.Language
	}
	return m.Language
}

// AllowedToFail reports whether the entry matches any allow_failures
// selector.
func (m *Matrix) AllowedToFail(e Entry) bool {
	for _, sel := range m.AllowFailures {
		if sel.Matches(e) {
			return true
		}
	}
	return false
}

// FindEntry returns the entry with the given display name.
func (m *Matrix) FindEntry(name string) (Entry, bool) {
	for _, e := range m.Include {
		if e.DisplayName() == name {
			return e, true
		}
	}
	return Entry{}, false
}
