package operations

import (
	"fmt"

	"github.com/evergreen-ci/lattice/model"
	"github.com/evergreen-ci/lattice/validator"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

// Validate returns the command that checks a matrix configuration file
// without running anything.
func Validate() cli.Command {
	const quietFlagName = "quiet"

	return cli.Command{
		Name:  "validate",
		Usage: "verify that a matrix configuration file is well formed and runnable",
		Flags: addPathFlag(
			cli.BoolFlag{
				Name:  joinFlagNames(quietFlagName, "q"),
				Usage: "suppress warnings and print fatal problems only",
			},
		),
		Before: mergeBeforeFuncs(requirePathFlag),
		Action: func(c *cli.Context) error {
			path := c.String(pathFlagName)
			quiet := c.Bool(quietFlagName)

			m, err := model.LoadMatrix(path)
			if err != nil {
				return errors.Wrapf(err, "loading matrix from '%s'", path)
			}

			findings := validator.CheckMatrix(m)
			for _, finding := range findings {
				if quiet && finding.Level == validator.Warning {
					continue
				}
				fmt.Printf("%s: %s\n", finding.Level, finding.Message)
			}

			if findings.Has(validator.Error) {
				return errors.Errorf("matrix configuration '%s' is invalid", path)
			}
			fmt.Printf("%s is valid\n", path)
			return nil
		},
	}
}
