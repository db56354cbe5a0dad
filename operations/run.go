package operations

import (
	"context"
	"os"

	"github.com/evergreen-ci/lattice/model"
	"github.com/evergreen-ci/lattice/runner"
	"github.com/evergreen-ci/lattice/validator"
	"github.com/mitchellh/go-homedir"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"gopkg.in/yaml.v3"
)

// Run returns the command that validates a matrix configuration and then
// executes its entries.
func Run() cli.Command {
	return cli.Command{
		Name:   "run",
		Usage:  "execute every entry of a matrix configuration",
		Flags:  addRunFlags(addPathFlag()...),
		Before: mergeBeforeFuncs(requirePathFlag),
		Action: func(c *cli.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			path := c.String(pathFlagName)
			m, err := model.LoadMatrix(path)
			if err != nil {
				return errors.Wrapf(err, "loading matrix from '%s'", path)
			}

			findings := validator.CheckMatrix(m)
			for _, warning := range findings.AtLevel(validator.Warning) {
				grip.Warning(message.Fields{
					"message": "matrix configuration warning",
					"path":    path,
					"warning": warning.Message,
				})
			}
			if fatal := findings.AtLevel(validator.Error); len(fatal) > 0 {
				return errors.Wrapf(fatal, "matrix configuration '%s' is invalid", path)
			}

			workdir, err := expandPath(c.String(workdirFlagName))
			if err != nil {
				return err
			}
			logDir, err := expandPath(c.String(logDirFlagName))
			if err != nil {
				return err
			}

			r, err := runner.New(ctx, runner.Options{
				Jobs:                   c.Int(jobsFlagName),
				Workdir:                workdir,
				LogDir:                 logDir,
				EntryFilter:            c.StringSlice(entryFlagName),
				TraceCollectorEndpoint: c.String(traceEndpointFlagName),
			})
			if err != nil {
				return errors.Wrap(err, "setting up runner")
			}
			defer func() {
				grip.Error(errors.Wrap(r.Close(ctx), "closing runner"))
			}()

			summary, err := r.Run(ctx, m)
			if err != nil {
				return errors.Wrap(err, "running matrix")
			}

			if resultsPath := c.String(resultsFlagName); resultsPath != "" {
				if err = writeResults(resultsPath, summary); err != nil {
					return err
				}
			}

			if !summary.Success() {
				return errors.Errorf("%d of %d entries failed", summary.Failed, summary.Total)
			}
			return nil
		},
	}
}

func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	expanded, err := homedir.Expand(path)
	return expanded, errors.Wrapf(err, "expanding path '%s'", path)
}

func writeResults(path string, summary runner.RunSummary) error {
	data, err := yaml.Marshal(summary)
	if err != nil {
		return errors.Wrap(err, "marshalling run summary")
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o644), "writing run summary to '%s'", path)
}
