// Package execcmd runs the macOS command-line tools the condition reporters
// depend on.
package execcmd

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/fleetdm/munki-conditions/pkg/constant"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Runner executes external commands. Name is always an absolute tool path.
type Runner interface {
	// Output runs the command and returns its stdout.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
	// Run runs the command, discarding stdout. A non-zero exit is an error.
	Run(ctx context.Context, name string, args ...string) error
}

// Exec is the Runner backed by os/exec.
type Exec struct {
	timeout time.Duration
	logger  zerolog.Logger
}

// New returns an Exec runner. A zero timeout uses constant.DefaultExecTimeout.
func New(logger zerolog.Logger, timeout time.Duration) *Exec {
	if timeout <= 0 {
		timeout = constant.DefaultExecTimeout
	}
	return &Exec{timeout: timeout, logger: logger}
}

func (e *Exec) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd.Stdout, cmd.Stderr = stdout, stderr

	e.logger.Debug().Str("cmd", CommandLine(name, args...)).Msg("exec")
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.Wrapf(ctx.Err(), "running %s", name)
		}
		return nil, errors.Wrapf(err, "running %s: %s", name, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func (e *Exec) Run(ctx context.Context, name string, args ...string) error {
	_, err := e.Output(ctx, name, args...)
	return err
}

// CommandLine renders name and args the way they are logged and matched in
// tests.
func CommandLine(name string, args ...string) string {
	return strings.Join(append([]string{name}, args...), " ")
}
