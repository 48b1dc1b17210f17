// Package profiles removes installed configuration profiles with the
// profiles tool.
package profiles

import (
	"context"

	"github.com/fleetdm/munki-conditions/pkg/execcmd"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const profilesPath = "/usr/bin/profiles"

var ErrEmptyIdentifier = errors.New("empty profile identifier")

type Remover struct {
	runner execcmd.Runner
	logger zerolog.Logger
}

func New(runner execcmd.Runner, logger zerolog.Logger) *Remover {
	return &Remover{runner: runner, logger: logger}
}

// Remove uninstalls the profile with the given payload identifier.
func (r *Remover) Remove(ctx context.Context, identifier string) error {
	if identifier == "" {
		return ErrEmptyIdentifier
	}
	if err := r.runner.Run(ctx, profilesPath, "-R", "-p", identifier); err != nil {
		return errors.Wrapf(err, "remove profile %s", identifier)
	}
	r.logger.Info().Str("profile", identifier).Msg("removed configuration profile")
	return nil
}

// RemoveAll tries every identifier and returns the combined failures.
func (r *Remover) RemoveAll(ctx context.Context, identifiers []string) error {
	var errs *multierror.Error
	for _, id := range identifiers {
		if err := r.Remove(ctx, id); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}
