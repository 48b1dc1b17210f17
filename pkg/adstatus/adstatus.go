// Package adstatus reports whether the Mac can reach and talk to its Active
// Directory domain, and nudges a broken binding back into shape so Munki can
// reinstall the binding profiles.
package adstatus

import (
	"context"
	"time"

	"github.com/WatchBeam/clock"
	"github.com/beevik/ntp"
	"github.com/fleetdm/munki-conditions/pkg/conditions"
	"github.com/fleetdm/munki-conditions/pkg/constant"
	"github.com/fleetdm/munki-conditions/pkg/dirservice"
	"github.com/fleetdm/munki-conditions/pkg/dnssrv"
	"github.com/fleetdm/munki-conditions/pkg/execcmd"
	"github.com/fleetdm/munki-conditions/pkg/profiles"
	"github.com/fleetdm/munki-conditions/pkg/secure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Status values written to ad_status.
const (
	StatusNotOnNetwork  = "not-on-network"
	StatusUnbound       = "on-network-unbound"
	StatusCommunicating = "on-network-communicating"
)

const (
	ntpdatePath          = "/usr/sbin/ntpdate"
	defaultsPath         = "/usr/bin/defaults"
	securityPrefsPath    = "/Library/Preferences/com.apple.security.plist"
	defaultKeychainKey   = "DefaultKeychain"
	ntpQueryTimeout      = 5 * time.Second
	defaultRemediateWait = 5 * time.Second
)

// Config holds the directory the Mac is expected to be bound to and the
// thresholds of the repair logic.
type Config struct {
	Forest                 string
	Domain                 string
	TestsMaxTries          int
	MaxConsecutiveFailures int
	DependentProfiles      []string
	NTPServer              string
	FailuresHistoryPath    string
	LookupAttempts         int
	RetryInterval          time.Duration
	RemediationPause       time.Duration
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		Forest:                 "example.org",
		Domain:                 "domain.example.org",
		TestsMaxTries:          2,
		MaxConsecutiveFailures: 2,
		DependentProfiles: []string{
			"org.sample.config.profile.active-directory",
			"org.sample.config.profile.8021X",
		},
		NTPServer:           "ntp.example.org",
		FailuresHistoryPath: constant.ADFailuresHistoryPath,
		LookupAttempts:      5,
		RetryInterval:       5 * time.Second,
		RemediationPause:    defaultRemediateWait,
	}
}

// Result is what one run measured.
type Result struct {
	OnNetwork      bool
	ComputerRecord string
	DSCLTestsPass  bool
	Status         string
	FailureCount   int
}

// Conditions returns the facts Munki sees.
func (r Result) Conditions() map[string]interface{} {
	return map[string]interface{}{
		"ad_on_network":      r.OnNetwork,
		"ad_computer_record": r.ComputerRecord,
		"ad_dscl_tests_pass": r.DSCLTestsPass,
		"ad_status":          r.Status,
	}
}

// OffsetFunc measures the local clock's offset from an NTP server.
type OffsetFunc func(host string) (time.Duration, error)

func ntpOffset(host string) (time.Duration, error) {
	resp, err := ntp.QueryWithOptions(host, ntp.QueryOptions{Timeout: ntpQueryTimeout})
	if err != nil {
		return 0, errors.Wrapf(err, "query %s", host)
	}
	return resp.ClockOffset, nil
}

// Reporter runs the Active Directory checks.
type Reporter struct {
	cfg      Config
	runner   execcmd.Runner
	resolver *dnssrv.Resolver
	dir      *dirservice.Directory
	profiles *profiles.Remover
	store    *conditions.Store
	clock    clock.Clock
	offset   OffsetFunc
	logger   zerolog.Logger
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithOffsetFunc replaces the NTP offset measurement.
func WithOffsetFunc(f OffsetFunc) Option {
	return func(r *Reporter) {
		r.offset = f
	}
}

func New(cfg Config, runner execcmd.Runner, store *conditions.Store, c clock.Clock, logger zerolog.Logger, opts ...Option) *Reporter {
	logger = logger.With().Str("reporter", "ad-status").Logger()
	r := &Reporter{
		cfg:      cfg,
		runner:   runner,
		resolver: dnssrv.New(runner, logger, dnssrv.WithRetry(cfg.LookupAttempts, cfg.RetryInterval)),
		dir:      dirservice.New(runner, logger, dirservice.WithLookupRetry(cfg.LookupAttempts, cfg.RetryInterval)),
		profiles: profiles.New(runner, logger),
		store:    store,
		clock:    c,
		offset:   ntpOffset,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run measures, remediates and writes the ad_* conditions. Only a failure to
// write the conditions is returned.
func (r *Reporter) Run(ctx context.Context) (Result, error) {
	res := r.Measure(ctx)
	if err := r.store.Write(res.Conditions()); err != nil {
		return res, errors.Wrap(err, "write active directory conditions")
	}
	return res, nil
}

// Measure runs the checks and the repair steps without touching the
// conditions file.
func (r *Reporter) Measure(ctx context.Context) Result {
	res := Result{Status: StatusNotOnNetwork}

	r.logger.Info().Str("forest", r.cfg.Forest).Msg("looking for global catalog SRV records")
	res.OnNetwork = r.resolver.GlobalCatalogAvailable(ctx, r.cfg.Forest, r.cfg.Domain)

	r.logger.Info().Msg("reading binding from dsconfigad")
	res.ComputerRecord = r.dir.BoundComputerAccount(ctx, r.cfg.Forest, r.cfg.Domain)

	for try := 0; res.OnNetwork && try < r.cfg.TestsMaxTries && res.Status != StatusCommunicating; try++ {
		if ctx.Err() != nil {
			break
		}
		if res.ComputerRecord != "" {
			r.logger.Info().Str("account", res.ComputerRecord).Msg("bound, testing directory lookups")
			res.DSCLTestsPass = r.dir.ComputerRecordInDomain(ctx, r.cfg.Forest, r.cfg.Domain, res.ComputerRecord)
			if res.DSCLTestsPass {
				res.Status = StatusCommunicating
				r.clearFailures()
			}
		}
		if !res.DSCLTestsPass {
			res.Status = StatusUnbound
			r.logger.Error().Msg("directory lookups failed or the Mac is not bound")
		}
		if !res.DSCLTestsPass && res.ComputerRecord != "" {
			r.remediate(ctx)
		}
	}

	if res.Status == StatusUnbound {
		res.FailureCount = r.recordFailure()
		if res.FailureCount >= r.cfg.MaxConsecutiveFailures {
			r.logger.Error().
				Int("failures", res.FailureCount).
				Strs("profiles", r.cfg.DependentProfiles).
				Msg("too many consecutive failures, removing binding profiles")
			if err := r.profiles.RemoveAll(ctx, r.cfg.DependentProfiles); err != nil {
				r.logger.Error().Err(err).Msg("remove dependent profiles")
			}
		}
	}

	r.logger.Info().
		Bool("on_network", res.OnNetwork).
		Str("computer_record", res.ComputerRecord).
		Bool("dscl_tests_pass", res.DSCLTestsPass).
		Str("status", res.Status).
		Msg("active directory status")
	return res
}

// remediate fixes the usual causes of a bound Mac that cannot authenticate
// its computer account: clock skew and a DefaultKeychain override in
// com.apple.security.plist.
func (r *Reporter) remediate(ctx context.Context) {
	if offset, err := r.offset(r.cfg.NTPServer); err != nil {
		r.logger.Debug().Err(err).Msg("measure clock offset")
	} else {
		r.logger.Info().Dur("offset", offset).Str("server", r.cfg.NTPServer).Msg("clock offset")
	}

	r.logger.Error().Str("server", r.cfg.NTPServer).Msg("updating system clock")
	if err := r.runner.Run(ctx, ntpdatePath, "-u", r.cfg.NTPServer); err != nil {
		r.logger.Error().Err(err).Msg("ntp update failed")
	} else {
		r.logger.Error().Msg("ntp update complete")
	}
	r.pause(ctx, r.cfg.RemediationPause)

	r.logger.Error().Msg("removing DefaultKeychain override")
	if err := r.runner.Run(ctx, defaultsPath, "delete", securityPrefsPath, defaultKeychainKey); err != nil {
		r.logger.Error().Err(err).Msg("removing DefaultKeychain failed, perhaps not present")
	} else {
		r.logger.Error().Msg("removed DefaultKeychain")
	}
	r.pause(ctx, r.cfg.RemediationPause)
}

// recordFailure adds this run to the failure history and returns the new
// consecutive failure count. An unreadable history restarts the count.
func (r *Reporter) recordFailure() int {
	h, err := readHistory(r.cfg.FailuresHistoryPath)
	if err != nil {
		r.logger.Info().Err(err).Msg("starting a new failure history")
		h = failureHistory{}
	}
	h.FailureCount++
	h.FailureTimestamps = append(h.FailureTimestamps, r.clock.Now().UTC())
	if err := writeHistory(r.cfg.FailuresHistoryPath, h); err != nil {
		r.logger.Error().Err(err).Str("path", r.cfg.FailuresHistoryPath).Msg("save failure history")
	}
	return h.FailureCount
}

func (r *Reporter) clearFailures() {
	if err := secure.RemoveIfExists(r.cfg.FailuresHistoryPath); err != nil {
		r.logger.Error().Err(err).Str("path", r.cfg.FailuresHistoryPath).Msg("remove failure history")
	}
}

// pause waits d on the reporter's clock, returning early if ctx is done.
func (r *Reporter) pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-r.clock.After(d):
	}
}
