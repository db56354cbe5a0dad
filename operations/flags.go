package operations

import (
	"strings"

	"github.com/evergreen-ci/lattice"
	"github.com/urfave/cli"
)

const (
	pathFlagName          = "path"
	jobsFlagName          = "jobs"
	entryFlagName         = "entry"
	workdirFlagName       = "workdir"
	logDirFlagName        = "log-dir"
	traceEndpointFlagName = "trace-collector"
	entriesFlagName       = "entries"
	phasesFlagName        = "phases"
	resultsFlagName       = "results"
)

func joinFlagNames(names ...string) string { return strings.Join(names, ", ") }

func addPathFlag(flags ...cli.Flag) []cli.Flag {
	return append(flags, cli.StringFlag{
		Name:  joinFlagNames(pathFlagName, "p"),
		Usage: "path to a matrix configuration file",
		Value: lattice.DefaultMatrixFileName,
	})
}

func addRunFlags(flags ...cli.Flag) []cli.Flag {
	return append(flags,
		cli.IntFlag{
			Name:  joinFlagNames(jobsFlagName, "j"),
			Usage: "maximum number of entries to run concurrently",
		},
		cli.StringSliceFlag{
			Name:  joinFlagNames(entryFlagName, "e"),
			Usage: "run only the named entry; may be specified more than once",
		},
		cli.StringFlag{
			Name:  workdirFlagName,
			Usage: "directory for entry working directories; defaults to a temporary directory",
		},
		cli.StringFlag{
			Name:  logDirFlagName,
			Usage: "write each entry's command output to its own file in this directory",
		},
		cli.StringFlag{
			Name:   traceEndpointFlagName,
			Usage:  "gRPC endpoint of an OTLP trace collector",
			EnvVar: "LATTICE_TRACE_COLLECTOR",
		},
		cli.StringFlag{
			Name:  resultsFlagName,
			Usage: "write the run summary to this file as YAML",
		},
	)
}
