package runner

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/evergreen-ci/lattice"
	"github.com/evergreen-ci/lattice/model"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/level"
	"github.com/mongodb/grip/message"
	"github.com/mongodb/grip/send"
	"github.com/mongodb/jasper"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const defaultShell = "bash"

// phaseExecutor runs the full phase sequence for a single matrix entry
// inside its disposable working directory. Phases run strictly in order;
// the first failure in before_install, install, or script is terminal for
// the entry, while an after_success failure is recorded but does not
// change the entry's outcome.
type phaseExecutor struct {
	matrix     *model.Matrix
	entry      model.Entry
	workDir    string
	tmpDir     string
	runtimePkg string
	shell      string
	sender     send.Sender
	tracer     trace.Tracer
}

func newPhaseExecutor(m *model.Matrix, e model.Entry, workDir, tmpDir string, sender send.Sender) *phaseExecutor {
	return &phaseExecutor{
		matrix:  m,
		entry:   e,
		workDir: workDir,
		tmpDir:  tmpDir,
		shell:   defaultShell,
		sender:  sender,
		tracer:  noop.NewTracerProvider().Tracer(""),
	}
}

// RunPipeline executes the entry's pipeline and reports its result.
func (e *phaseExecutor) RunPipeline(ctx context.Context) EntryResult {
	start := time.Now()
	result := EntryResult{
		Entry:          e.entry.DisplayName(),
		Status:         lattice.EntryStatusSucceeded,
		AllowedFailure: e.matrix.AllowedToFail(e.entry),
	}

	env := buildEntryEnv(e.matrix.EntryEnv(e.entry), entryEnvOptions{
		entryName:  e.entry.DisplayName(),
		osName:     e.entry.OS,
		workingDir: e.workDir,
		tmpDir:     e.tmpDir,
		runtimePkg: e.runtimePkg,
	})

	for _, phase := range lattice.PhaseSequence {
		phaseResult, err := e.runPhase(ctx, phase, env)
		result.Phases = append(result.Phases, phaseResult)
		if err == nil {
			continue
		}
		if !lattice.IsFailurePhase(phase) {
			// after_success only ran because script succeeded, and its
			// failure cannot change the entry's recorded outcome.
			grip.Error(message.WrapError(err, message.Fields{
				"message": "after_success failed; entry outcome is unchanged",
				"entry":   result.Entry,
			}))
			continue
		}
		result.err = err
		if result.AllowedFailure {
			result.Status = lattice.EntryStatusAllowedFailure
		} else {
			result.Status = lattice.EntryStatusFailed
		}
		break
	}

	result.DurationMS = time.Since(start).Milliseconds()
	return result
}

func (e *phaseExecutor) runPhase(ctx context.Context, phase string, env map[string]string) (PhaseResult, error) {
	result := PhaseResult{Phase: phase, Succeeded: true}
	cmds := e.matrix.PhaseCommands(phase)
	if len(cmds) == 0 {
		return result, nil
	}

	ctx, span := e.tracer.Start(ctx, fmt.Sprintf("phase.%s", phase), trace.WithAttributes(
		attribute.String("lattice.entry", e.entry.DisplayName()),
		attribute.String("lattice.phase", phase),
	))
	defer span.End()

	if e.matrix.TimeoutSecs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(e.matrix.TimeoutSecs)*time.Second)
		defer cancel()
	}

	start := time.Now()
	for _, cmd := range cmds {
		if err := e.runCommand(ctx, phase, cmd, env); err != nil {
			result.Succeeded = false
			result.ExitCode = getExitCode(err)
			result.Error = err.Error()
			result.DurationMS = time.Since(start).Milliseconds()
			span.SetStatus(codes.Error, "phase failed")
			span.RecordError(err)

			return result, newPhaseError(e.entry.DisplayName(), phase, cmd, result.ExitCode, err)
		}
	}
	result.DurationMS = time.Since(start).Milliseconds()
	return result, nil
}

func (e *phaseExecutor) runCommand(ctx context.Context, phase, script string, env map[string]string) error {
	if ctx.Err() != nil {
		return errors.Wrapf(ctx.Err(), "canceled before running '%s'", script)
	}

	grip.Info(message.Fields{
		"entry":   e.entry.DisplayName(),
		"phase":   phase,
		"command": script,
	})

	cmd := jasper.NewCommand().
		ShellScript(e.shell, script).
		Directory(e.workDir).
		Environment(env).
		SetOutputSender(level.Info, e.sender).
		SetErrorSender(level.Error, e.sender)

	err := cmd.Run(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Wrapf(ctxErr, "phase '%s' aborted", phase)
	}
	return errors.Wrapf(err, "running '%s'", script)
}

// getExitCode digs a process exit code out of err's cause chain. When no
// process ran at all (e.g. the shell could not start), there is no exit
// status and the failure is reported as 1.
func getExitCode(err error) int {
	for err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode()
		}
		err = errors.Unwrap(err)
	}
	return 1
}
