package operations

import (
	"fmt"

	"github.com/evergreen-ci/lattice/model"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"gopkg.in/yaml.v3"
)

// Evaluate returns the command that prints a matrix configuration with
// every shortcut expanded: scalar phases become lists, entry names are
// filled in, and env shorthand becomes explicit mappings.
func Evaluate() cli.Command {
	return cli.Command{
		Name:  "evaluate",
		Usage: "print the matrix configuration in its expanded canonical form",
		Flags: addPathFlag(
			cli.BoolFlag{
				Name:  entriesFlagName,
				Usage: "only show the expanded matrix entries",
			},
			cli.BoolFlag{
				Name:  phasesFlagName,
				Usage: "only show the phase command lists",
			},
		),
		Before: mergeBeforeFuncs(requirePathFlag),
		Action: func(c *cli.Context) error {
			path := c.String(pathFlagName)
			showEntries := c.Bool(entriesFlagName)
			showPhases := c.Bool(phasesFlagName)

			m, err := model.LoadMatrix(path)
			if err != nil {
				return errors.Wrapf(err, "loading matrix from '%s'", path)
			}

			var out any
			switch {
			case showEntries && !showPhases:
				out = struct {
					Include []model.Entry `yaml:"include"`
				}{Include: m.Include}
			case showPhases && !showEntries:
				out = struct {
					BeforeInstall []string `yaml:"before_install,omitempty"`
					Install       []string `yaml:"install,omitempty"`
					Script        []string `yaml:"script,omitempty"`
					AfterSuccess  []string `yaml:"after_success,omitempty"`
				}{
					BeforeInstall: m.BeforeInstall,
					Install:       m.Install,
					Script:        m.Script,
					AfterSuccess:  m.AfterSuccess,
				}
			default:
				canonical, err := m.Marshal()
				if err != nil {
					return errors.Wrap(err, "marshalling expanded matrix")
				}
				fmt.Fprintln(c.App.Writer, string(canonical))
				return nil
			}

			bytes, err := yaml.Marshal(out)
			if err != nil {
				return errors.Wrap(err, "marshalling matrix selection")
			}
			fmt.Fprintln(c.App.Writer, string(bytes))
			return nil
		},
	}
}
