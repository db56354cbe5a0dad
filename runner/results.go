package runner

import (
	"time"

	"github.com/evergreen-ci/lattice"
	"github.com/mongodb/grip/message"
)

// PhaseResult records one phase's outcome within an entry's pipeline.
type PhaseResult struct {
	Phase      string `yaml:"phase" json:"phase"`
	Succeeded  bool   `yaml:"succeeded" json:"succeeded"`
	ExitCode   int    `yaml:"exit_code" json:"exit_code"`
	DurationMS int64  `yaml:"duration_ms" json:"duration_ms"`
	Error      string `yaml:"error,omitempty" json:"error,omitempty"`
}

// EntryResult records the outcome of one matrix entry's full pipeline.
// Phases lists the phases that actually ran, in execution order; phases
// skipped because an earlier one failed do not appear.
type EntryResult struct {
	Entry          string        `yaml:"entry" json:"entry"`
	Status         string        `yaml:"status" json:"status"`
	AllowedFailure bool          `yaml:"allowed_failure,omitempty" json:"allowed_failure,omitempty"`
	Phases         []PhaseResult `yaml:"phases" json:"phases"`
	DurationMS     int64         `yaml:"duration_ms" json:"duration_ms"`

	err error
}

// Failed reports whether the entry's pipeline failed, regardless of
// whether that failure is allowed.
func (r *EntryResult) Failed() bool {
	return r.Status == lattice.EntryStatusFailed || r.Status == lattice.EntryStatusAllowedFailure
}

// FailsRun reports whether this result should fail the overall run.
func (r *EntryResult) FailsRun() bool {
	return r.Status == lattice.EntryStatusFailed
}

// Err returns the terminal error of the entry's pipeline, if any.
func (r *EntryResult) Err() error { return r.err }

// Message renders the result for structured logging.
func (r *EntryResult) Message() message.Fields {
	fields := message.Fields{
		"entry":       r.Entry,
		"status":      r.Status,
		"phases_run":  len(r.Phases),
		"duration_ms": r.DurationMS,
	}
	if r.err != nil {
		fields["error"] = r.err.Error()
	}
	return fields
}

// RunSummary aggregates every entry result of one matrix run.
type RunSummary struct {
	Total           int           `yaml:"total" json:"total"`
	Succeeded       int           `yaml:"succeeded" json:"succeeded"`
	Failed          int           `yaml:"failed" json:"failed"`
	AllowedFailures int           `yaml:"allowed_failures" json:"allowed_failures"`
	DurationMS      int64         `yaml:"duration_ms" json:"duration_ms"`
	Entries         []EntryResult `yaml:"entries" json:"entries"`
}

// Success reports whether the run as a whole passed: every failure, if
// any, was an allowed one.
func (s *RunSummary) Success() bool { return s.Failed == 0 }

// Message renders the summary for structured logging.
func (s *RunSummary) Message() message.Fields {
	return message.Fields{
		"message":          "matrix run complete",
		"total":            s.Total,
		"succeeded":        s.Succeeded,
		"failed":           s.Failed,
		"allowed_failures": s.AllowedFailures,
		"duration_ms":      s.DurationMS,
	}
}

func summarizeResults(results []EntryResult, duration time.Duration) RunSummary {
	summary := RunSummary{
		Total:      len(results),
		Entries:    results,
		DurationMS: duration.Milliseconds(),
	}
	for _, r := range results {
		switch r.Status {
		case lattice.EntryStatusSucceeded:
			summary.Succeeded++
		case lattice.EntryStatusAllowedFailure:
			summary.AllowedFailures++
		case lattice.EntryStatusFailed:
			summary.Failed++
		}
	}
	return summary
}
