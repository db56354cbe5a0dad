package validator

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/evergreen-ci/lattice"
	"github.com/evergreen-ci/lattice/model"
)

type matrixValidator func(*model.Matrix) ValidationErrors

type ValidationErrorLevel int64

const (
	Error ValidationErrorLevel = iota
	Warning
)

func (l ValidationErrorLevel) String() string {
	switch l {
	case Error:
		return "ERROR"
	case Warning:
		return "WARNING"
	}
	return "?"
}

type ValidationError struct {
	Level   ValidationErrorLevel `json:"level"`
	Message string               `json:"message"`
}

func (e ValidationError) Error() string {
	return e.Message
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, fmt.Sprintf("%s: %s", e.Level, e.Message))
	}
	return strings.Join(msgs, "\n")
}

// Has reports whether any finding is at the given level.
func (v ValidationErrors) Has(level ValidationErrorLevel) bool {
	for _, e := range v {
		if e.Level == level {
			return true
		}
	}
	return false
}

// AtLevel returns the findings at the given level.
func (v ValidationErrors) AtLevel(level ValidationErrorLevel) ValidationErrors {
	out := ValidationErrors{}
	for _, e := range v {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// Functions used to validate the syntax of a matrix configuration.
// Validation errors here are fatal: a matrix that fails any of these
// checks cannot run.
var matrixSyntaxValidators = []matrixValidator{
	ensureHasEntries,
	ensureHasScriptPhase,
	ensureEntriesResolveRuntime,
	validateEntryNames,
	validateOSNames,
	validateEnvNames,
}

// Functions used to validate the semantics of a matrix configuration.
// Findings here are advisory; the matrix will still run.
var matrixSemanticValidators = []matrixValidator{
	checkSudo,
	checkAllowFailureSelectors,
	checkDuplicatePhaseCommands,
	checkAfterSuccessWithoutScript,
}

// CheckMatrixSyntax runs the fatal configuration checks.
func CheckMatrixSyntax(m *model.Matrix) ValidationErrors {
	out := ValidationErrors{}
	for _, check := range matrixSyntaxValidators {
		out = append(out, check(m)...)
	}
	return out
}

// CheckMatrixSemantics runs the advisory configuration checks.
func CheckMatrixSemantics(m *model.Matrix) ValidationErrors {
	out := ValidationErrors{}
	for _, check := range matrixSemanticValidators {
		out = append(out, check(m)...)
	}
	return out
}

// CheckMatrix runs all checks, fatal first.
func CheckMatrix(m *model.Matrix) ValidationErrors {
	return append(CheckMatrixSyntax(m), CheckMatrixSemantics(m)...)
}

func ensureHasEntries(m *model.Matrix) ValidationErrors {
	if len(m.Include) == 0 {
		return ValidationErrors{{
			Level:   Error,
			Message: "matrix must include at least one entry",
		}}
	}
	return nil
}

func ensureHasScriptPhase(m *model.Matrix) ValidationErrors {
	if len(m.Script) == 0 {
		return ValidationErrors{{
			Level:   Error,
			Message: "matrix must declare at least one script command",
		}}
	}
	return nil
}

// ensureEntriesResolveRuntime enforces that every entry can obtain a
// runtime: either it names a native runtime version, or it targets macOS
// and resolves a downloadable installer package URL.
func ensureEntriesResolveRuntime(m *model.Matrix) ValidationErrors {
	errs := ValidationErrors{}
	for _, e := range m.Include {
		if e.Python != "" {
			continue
		}
		pkgURL := m.RuntimePkgURL(e)
		if e.OS == lattice.OSMac && pkgURL != "" {
			if u, err := url.Parse(pkgURL); err != nil || u.Scheme == "" || u.Host == "" {
				errs = append(errs, ValidationError{
					Level:   Error,
					Message: fmt.Sprintf("entry '%s' has an unresolvable runtime package URL '%s'", e.DisplayName(), pkgURL),
				})
			}
			continue
		}
		errs = append(errs, ValidationError{
			Level: Error,
			Message: fmt.Sprintf("entry '%s' cannot obtain a runtime: it must set 'python' or target '%s' with a '%s' env value",
				e.DisplayName(), lattice.OSMac, lattice.RuntimePkgURLKey),
		})
	}
	return errs
}

func validateEntryNames(m *model.Matrix) ValidationErrors {
	errs := ValidationErrors{}
	seen := map[string]bool{}
	for _, e := range m.Include {
		name := e.DisplayName()
		if seen[name] {
			errs = append(errs, ValidationError{
				Level:   Error,
				Message: fmt.Sprintf("matrix contains multiple entries named '%s'", name),
			})
		}
		seen[name] = true
	}
	return errs
}

func validateOSNames(m *model.Matrix) ValidationErrors {
	errs := ValidationErrors{}
	for _, e := range m.Include {
		if e.OS != "" && !lattice.IsValidOSName(e.OS) {
			errs = append(errs, ValidationError{
				Level: Error,
				Message: fmt.Sprintf("entry '%s' targets unknown operating system '%s'; must be one of %s",
					e.DisplayName(), e.OS, strings.Join(lattice.ValidOSNames, ", ")),
			})
		}
	}
	return errs
}

var envNameRegexp = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func validateEnvNames(m *model.Matrix) ValidationErrors {
	errs := ValidationErrors{}
	appendBad := func(scope, name string) {
		errs = append(errs, ValidationError{
			Level:   Error,
			Message: fmt.Sprintf("%s declares invalid environment variable name '%s'", scope, name),
		})
	}
	for name := range m.Env {
		if !envNameRegexp.MatchString(name) {
			appendBad("matrix env", name)
		}
	}
	for _, e := range m.Include {
		for name := range e.Env {
			if !envNameRegexp.MatchString(name) {
				appendBad(fmt.Sprintf("entry '%s'", e.DisplayName()), name)
			}
		}
	}
	return errs
}

func checkSudo(m *model.Matrix) ValidationErrors {
	if m.Sudo {
		return ValidationErrors{{
			Level:   Warning,
			Message: "matrix requests sudo; phase commands will mutate host state outside the entry working directory",
		}}
	}
	return nil
}

func checkAllowFailureSelectors(m *model.Matrix) ValidationErrors {
	errs := ValidationErrors{}
	for _, sel := range m.AllowFailures {
		matched := false
		for _, e := range m.Include {
			if sel.Matches(e) {
				matched = true
				break
			}
		}
		if !matched {
			errs = append(errs, ValidationError{
				Level:   Warning,
				Message: fmt.Sprintf("allow_failures selector %s matches no entry", sel),
			})
		}
	}
	return errs
}

// checkAfterSuccessWithoutScript flags after_success commands that can
// never run because there is no script phase to succeed. The missing
// script is already a fatal syntax finding; this warning points at the
// dead commands specifically.
func checkAfterSuccessWithoutScript(m *model.Matrix) ValidationErrors {
	if len(m.AfterSuccess) > 0 && len(m.Script) == 0 {
		return ValidationErrors{{
			Level:   Warning,
			Message: "after_success commands will never run without a script phase",
		}}
	}
	return nil
}

func checkDuplicatePhaseCommands(m *model.Matrix) ValidationErrors {
	errs := ValidationErrors{}
	for _, phase := range lattice.PhaseSequence {
		seen := map[string]bool{}
		for _, cmd := range m.PhaseCommands(phase) {
			if seen[cmd] {
				errs = append(errs, ValidationError{
					Level:   Warning,
					Message: fmt.Sprintf("phase '%s' repeats command '%s'", phase, cmd),
				})
			}
			seen[cmd] = true
		}
	}
	return errs
}
