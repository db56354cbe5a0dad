package runner

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mongodb/grip"
	"github.com/mongodb/grip/level"
	"github.com/mongodb/grip/send"
	"github.com/pkg/errors"
)

// GetSender configures the log sender that receives one entry's phase
// command output. With a log directory configured, each entry streams to
// its own file; otherwise output goes to the console, name-prefixed so
// interleaved entries stay attributable.
func GetSender(logDir, entryName string) (send.Sender, error) {
	name := fmt.Sprintf("lattice.%s", entryName)
	levelInfo := send.LevelInfo{Default: level.Info, Threshold: level.Debug}

	if logDir == "" {
		sender, err := send.NewNativeLogger(name, levelInfo)
		return sender, errors.Wrap(err, "creating a native console logger")
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating log directory '%s'", logDir)
	}
	path := filepath.Join(logDir, fmt.Sprintf("%s-%d.log", entryName, os.Getpid()))
	sender, err := send.NewFileLogger(name, path, levelInfo)
	if err != nil {
		return nil, errors.Wrapf(err, "creating a file logger at '%s'", path)
	}

	grip.Infof("streaming output for entry '%s' to '%s'", entryName, path)
	return sender, nil
}
