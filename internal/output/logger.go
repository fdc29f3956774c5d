/*
PURPOSE:
  Provides a structured logger for kvharness.
  Wraps logrus for consistent output.

REQUIREMENTS:
  User-specified:
  - "Sane" CLI output. Not spammy.

  Implementation-discovered:
  - Logs go to stderr so the tee'd server output and rendered tables on
    stdout stay clean.
  - Level must be adjustable from the CLI and config.

ARCHITECTURE INTEGRATION:
  - Used everywhere.

ERROR HANDLING:
  - SetLevel returns the parse error for unknown level names.

IMPLEMENTATION RULES:
  - Use structured fields (WithField/WithFields), not formatted messages.

USAGE:
  output.Logger.WithField("point", "reuse30").Info("Running benchmark")

SELF-HEALING INSTRUCTIONS:
  - None.

RELATED FILES:
  - All.

MAINTENANCE:
  - None.
*/

package output

import (
	"os"

	"github.com/sirupsen/logrus"
)

var Logger *logrus.Logger

func init() {
	Logger = logrus.New()
	Logger.SetOutput(os.Stderr)
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	Logger.SetLevel(logrus.InfoLevel)
}

// SetLogger allows overriding the default logger (e.g. for testing)
func SetLogger(l *logrus.Logger) {
	Logger = l
}

// SetLevel parses and applies a level name such as "debug".
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	Logger.SetLevel(lvl)
	return nil
}
