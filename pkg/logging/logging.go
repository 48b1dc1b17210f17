package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fleetdm/munki-conditions/pkg/constant"
	"github.com/fleetdm/munki-conditions/pkg/secure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where condition scripts send their logs. Munki captures
// stderr of every condition into its own log, so stderr is always written.
type Options struct {
	Debug   bool
	LogFile string
	// Stderr overrides os.Stderr, used by tests.
	Stderr io.Writer
}

// Setup configures the global zerolog logger and returns it. If the log file
// directory cannot be created, logs still go to stderr and the error is
// returned for the caller to report.
func Setup(opts Options) (zerolog.Logger, error) {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	stderrOut := zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.RFC3339Nano, NoColor: true}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if opts.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Logger = log.Output(stderrOut)
	if opts.LogFile == "" {
		return log.Logger, nil
	}

	if err := secure.MkdirAll(filepath.Dir(opts.LogFile), constant.DefaultDirMode); err != nil {
		return log.Logger, errors.Wrap(err, "make directories for log file")
	}

	logFile := &lumberjack.Logger{
		Filename:   opts.LogFile,
		MaxSize:    25, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}

	log.Logger = log.Output(zerolog.MultiLevelWriter(
		stderrOut,
		zerolog.ConsoleWriter{Out: logFile, TimeFormat: time.RFC3339Nano, NoColor: true},
	))
	return log.Logger, nil
}
