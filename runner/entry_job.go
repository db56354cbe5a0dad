package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/evergreen-ci/lattice"
	"github.com/evergreen-ci/lattice/model"
	"github.com/mongodb/amboy"
	"github.com/mongodb/amboy/job"
	"github.com/mongodb/amboy/registry"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const entryJobName = "matrix-entry"

func init() {
	registry.AddJobType(entryJobName,
		func() amboy.Job { return makeEntryJob() })
}

// entryJob runs the full phase pipeline for a single matrix entry in its
// own working directory. Entries never share job state, so a failing
// entry cannot affect its siblings beyond the run summary.
type entryJob struct {
	job.Base `bson:"job_base" json:"job_base" yaml:"job_base"`

	matrix  *model.Matrix
	entry   model.Entry
	baseDir string
	logDir  string
	tracer  trace.Tracer

	result EntryResult
}

func makeEntryJob() *entryJob {
	j := &entryJob{
		Base: job.Base{
			JobType: amboy.JobType{
				Name:    entryJobName,
				Version: 0,
			},
		},
	}
	return j
}

// NewEntryJob returns a job that executes the given entry's phases under
// a fresh working directory inside baseDir.
func NewEntryJob(m *model.Matrix, e model.Entry, baseDir, logDir string, tracer trace.Tracer) amboy.Job {
	j := makeEntryJob()
	j.matrix = m
	j.entry = e
	j.baseDir = baseDir
	j.logDir = logDir
	j.tracer = tracer
	j.SetID(fmt.Sprintf("%s.%s.%d", entryJobName, e.DisplayName(), job.GetNumber()))
	return j
}

// Result returns the entry's outcome. It is only meaningful after the
// job has run.
func (j *entryJob) Result() EntryResult { return j.result }

func (j *entryJob) Run(ctx context.Context) {
	defer j.MarkComplete()

	if j.tracer != nil {
		var span trace.Span
		ctx, span = j.tracer.Start(ctx, fmt.Sprintf("entry.%s", j.entry.DisplayName()), trace.WithAttributes(
			attribute.String("lattice.entry", j.entry.DisplayName()),
			attribute.String("lattice.os", j.entry.OS),
		))
		defer span.End()
	}

	start := time.Now()
	j.result = EntryResult{
		Entry:          j.entry.DisplayName(),
		Status:         lattice.EntryStatusFailed,
		AllowedFailure: j.matrix.AllowedToFail(j.entry),
	}

	workDir, err := os.MkdirTemp(j.baseDir, fmt.Sprintf("entry-%s-", j.entry.DisplayName()))
	if err != nil {
		j.finish(start, errors.Wrap(err, "creating entry working directory"))
		return
	}
	defer func() {
		grip.Error(message.WrapError(os.RemoveAll(workDir), message.Fields{
			"message": "removing entry working directory",
			"entry":   j.entry.DisplayName(),
			"path":    workDir,
		}))
	}()

	tmpDir := filepath.Join(workDir, "tmp")
	if err = os.MkdirAll(tmpDir, 0o755); err != nil {
		j.finish(start, errors.Wrap(err, "creating entry temp directory"))
		return
	}

	sender, err := GetSender(j.logDir, j.entry.DisplayName())
	if err != nil {
		j.finish(start, errors.Wrap(err, "configuring entry log sender"))
		return
	}
	defer func() {
		grip.Error(message.WrapError(sender.Close(), "closing entry log sender"))
	}()

	runtimePkg, err := fetchRuntimePackage(ctx, j.matrix, j.entry, workDir)
	if err != nil {
		err = errors.Wrap(err, "resolving runtime package")
		grip.Error(message.WrapError(err, message.Fields{
			"message": "entry cannot start",
			"entry":   j.entry.DisplayName(),
		}))
		j.finish(start, err)
		return
	}

	exec := newPhaseExecutor(j.matrix, j.entry, workDir, tmpDir, sender)
	exec.runtimePkg = runtimePkg
	if j.tracer != nil {
		exec.tracer = j.tracer
	}

	j.result = exec.RunPipeline(ctx)
	j.result.DurationMS = time.Since(start).Milliseconds()
	if j.result.FailsRun() {
		j.AddError(j.result.Err())
	}
}

// finish records a failure that happened before the pipeline could run,
// such as a runtime package download error. Setup failures count against
// the entry the same way phase failures do, so an allow_failures match
// still softens them.
func (j *entryJob) finish(start time.Time, err error) {
	j.result.DurationMS = time.Since(start).Milliseconds()
	j.result.err = err
	if j.result.AllowedFailure {
		j.result.Status = lattice.EntryStatusAllowedFailure
		return
	}
	j.AddError(err)
}
