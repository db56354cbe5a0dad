package operations

import (
	"os"

	"github.com/mongodb/grip"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

var requirePathFlag = func(c *cli.Context) error {
	path := c.String(pathFlagName)
	if path == "" {
		return errors.New("must specify a matrix configuration path")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return errors.Errorf("configuration file '%s' does not exist", path)
	}
	return nil
}

func mergeBeforeFuncs(ops ...cli.BeforeFunc) cli.BeforeFunc {
	return func(c *cli.Context) error {
		catcher := grip.NewBasicCatcher()

		for _, op := range ops {
			catcher.Add(op(c))
		}

		return catcher.Resolve()
	}
}
