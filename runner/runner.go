package runner

import (
	"context"
	"os"
	"time"

	"github.com/evergreen-ci/lattice/model"
	"github.com/mongodb/amboy"
	"github.com/mongodb/amboy/queue"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
)

const (
	defaultJobCount    = 2
	queueCapacity      = 1024
	queuePollInterval  = 100 * time.Millisecond
	closerGracePeriod  = 10 * time.Second
	workdirPermissions = 0o755
)

// Options configures a matrix run.
type Options struct {
	// Jobs caps how many entries run concurrently. Defaults to 2.
	Jobs int
	// Workdir is the directory under which each entry gets its own
	// working directory. Defaults to a temporary directory removed when
	// the run finishes.
	Workdir string
	// LogDir, when set, routes each entry's command output to its own
	// log file instead of the console.
	LogDir string
	// EntryFilter restricts the run to entries whose names appear in
	// the list. An empty filter runs everything.
	EntryFilter []string
	// TraceCollectorEndpoint enables OTLP trace export when set.
	TraceCollectorEndpoint string
}

func (o *Options) Validate() error {
	if o.Jobs < 0 {
		return errors.New("job count cannot be negative")
	}
	if o.Jobs == 0 {
		o.Jobs = defaultJobCount
	}
	return nil
}

type closerOp struct {
	name     string
	closerFn func(context.Context) error
}

// Runner executes every entry of a matrix as an independent job on a
// bounded local queue and reports the aggregated outcome.
type Runner struct {
	opts Options

	tracer       trace.Tracer
	otelGrpcConn *grpc.ClientConn
	closers      []closerOp
}

func New(ctx context.Context, opts Options) (*Runner, error) {
	if err := opts.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid runner options")
	}
	r := &Runner{opts: opts}
	if err := r.initOtel(ctx); err != nil {
		return nil, errors.Wrap(err, "initializing tracing")
	}
	return r, nil
}

// Run executes the matrix and returns the per-entry results. The
// returned error reflects infrastructure problems only; entry failures
// are reported through the summary.
func (r *Runner) Run(ctx context.Context, m *model.Matrix) (RunSummary, error) {
	start := time.Now()

	entries, err := r.selectEntries(m)
	if err != nil {
		return RunSummary{}, err
	}

	baseDir, cleanup, err := r.setupWorkdir()
	if err != nil {
		return RunSummary{}, err
	}
	defer cleanup()

	q := queue.NewLocalLimitedSize(r.opts.Jobs, queueCapacity)
	if err = q.Start(ctx); err != nil {
		return RunSummary{}, errors.Wrap(err, "starting local queue")
	}
	defer q.Close(ctx)

	jobs := make([]*entryJob, 0, len(entries))
	for _, e := range entries {
		j := NewEntryJob(m, e, baseDir, r.opts.LogDir, r.tracer).(*entryJob)
		if err = q.Put(ctx, j); err != nil {
			return RunSummary{}, errors.Wrapf(err, "enqueueing entry '%s'", e.DisplayName())
		}
		jobs = append(jobs, j)
	}

	grip.Info(message.Fields{
		"message": "matrix run started",
		"entries": len(jobs),
		"jobs":    r.opts.Jobs,
		"workdir": baseDir,
	})

	if !amboy.WaitInterval(ctx, q, queuePollInterval) {
		return RunSummary{}, errors.Wrap(ctx.Err(), "run aborted")
	}

	results := make([]EntryResult, 0, len(jobs))
	for _, j := range jobs {
		res := j.Result()
		grip.Info(res.Message())
		results = append(results, res)
	}

	summary := summarizeResults(results, time.Since(start))
	grip.Info(summary.Message())
	return summary, nil
}

// Close flushes and releases the runner's background resources.
func (r *Runner) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, closerGracePeriod)
	defer cancel()

	catcher := grip.NewBasicCatcher()
	for _, closer := range r.closers {
		if closer.closerFn == nil {
			continue
		}
		catcher.Wrapf(closer.closerFn(ctx), "running closer '%s'", closer.name)
	}
	return catcher.Resolve()
}

// selectEntries applies the entry filter, failing loudly on names that
// match nothing so a typo cannot silently run the full matrix.
func (r *Runner) selectEntries(m *model.Matrix) ([]model.Entry, error) {
	if len(r.opts.EntryFilter) == 0 {
		return m.Include, nil
	}

	entries := make([]model.Entry, 0, len(r.opts.EntryFilter))
	for _, name := range r.opts.EntryFilter {
		e, ok := m.FindEntry(name)
		if !ok {
			return nil, errors.Errorf("no entry named '%s' in the matrix", name)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *Runner) setupWorkdir() (string, func(), error) {
	if r.opts.Workdir != "" {
		if err := os.MkdirAll(r.opts.Workdir, workdirPermissions); err != nil {
			return "", nil, errors.Wrapf(err, "creating working directory '%s'", r.opts.Workdir)
		}
		return r.opts.Workdir, func() {}, nil
	}

	baseDir, err := os.MkdirTemp("", "lattice-run-")
	if err != nil {
		return "", nil, errors.Wrap(err, "creating run working directory")
	}
	cleanup := func() {
		grip.Error(message.WrapError(os.RemoveAll(baseDir), message.Fields{
			"message": "removing run working directory",
			"path":    baseDir,
		}))
	}
	return baseDir, cleanup, nil
}
