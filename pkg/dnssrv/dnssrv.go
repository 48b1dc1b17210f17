// Package dnssrv checks for Active Directory global catalog SRV records with
// dig.
package dnssrv

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/fleetdm/munki-conditions/pkg/execcmd"
	"github.com/fleetdm/munki-conditions/pkg/retry"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	digPath       = "/usr/bin/dig"
	answerSection = ";; ANSWER SECTION:"
)

var errNoAnswer = errors.New("no global catalog record in answer section")

// Resolver queries DNS through dig.
type Resolver struct {
	runner   execcmd.Runner
	logger   zerolog.Logger
	attempts int
	interval time.Duration
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRetry sets how many times the query is tried and the pause between
// unsuccessful tries. The query always runs at least once and never more than
// attempts times.
func WithRetry(attempts int, interval time.Duration) Option {
	return func(r *Resolver) {
		if attempts < 1 {
			attempts = 1
		}
		r.attempts = attempts
		r.interval = interval
	}
}

func New(runner execcmd.Runner, logger zerolog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		runner:   runner,
		logger:   logger,
		attempts: 5,
		interval: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GlobalCatalogAvailable reports whether _gc._tcp.<forest> answers with a
// record naming the domain or the forest.
func (r *Resolver) GlobalCatalogAvailable(ctx context.Context, forest, domain string) bool {
	name := "_gc._tcp." + forest
	err := retry.Do(ctx, func() error {
		out, err := r.runner.Output(ctx, digPath, "-t", "SRV", name)
		if err != nil {
			r.logger.Debug().Err(err).Str("name", name).Msg("dig")
			return err
		}
		if !AnswerNames(out, forest, domain) {
			return errNoAnswer
		}
		return nil
	}, retry.WithMaxAttempts(r.attempts), retry.WithInterval(r.interval))
	if err != nil {
		r.logger.Info().Err(err).Str("name", name).Msg("global catalog not found")
		return false
	}
	return true
}

// AnswerNames reports whether the answer section of dig output has a line
// containing the domain or the forest, case-insensitively. The section ends
// at the next line containing a semicolon.
func AnswerNames(out []byte, forest, domain string) bool {
	forest, domain = strings.ToLower(forest), strings.ToLower(domain)

	inAnswer := false
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if !inAnswer {
			inAnswer = line == answerSection
			continue
		}
		lower := strings.ToLower(line)
		if strings.Contains(lower, domain) || strings.Contains(lower, forest) {
			return true
		}
		if strings.Contains(line, ";") {
			return false
		}
	}
	return false
}
