// Package dirservice wraps the macOS directory service tools: dsconfigad for
// the Active Directory binding, dscl for record lookups and dseditgroup for
// group membership.
package dirservice

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/fleetdm/munki-conditions/pkg/execcmd"
	"github.com/fleetdm/munki-conditions/pkg/retry"
	"github.com/groob/plist"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	dsconfigadPath  = "/usr/sbin/dsconfigad"
	dsclPath        = "/usr/bin/dscl"
	dseditgroupPath = "/usr/sbin/dseditgroup"

	// LocalNode is the local directory node holding the admin group.
	LocalNode = "/Local/Default"
	// SearchNode is the combined search policy node.
	SearchNode = "/Search"
	// AdminGroup is the local group granting administrator rights.
	AdminGroup = "admin"
)

// ErrEmptyOutput is returned when a tool succeeded but printed nothing, which
// dsconfigad does on an unbound Mac.
var ErrEmptyOutput = errors.New("empty output")

// ADConfig is the part of `dsconfigad -show -xml` the reporters use.
type ADConfig struct {
	GeneralInfo struct {
		Forest          string `plist:"Active Directory Forest"`
		Domain          string `plist:"Active Directory Domain"`
		ComputerAccount string `plist:"Computer Account"`
	} `plist:"General Info"`
	Administrative struct {
		AllowedAdminGroups []string `plist:"Allowed admin groups"`
	} `plist:"Administrative"`
}

type computerRecord struct {
	MetaNodeLocation []string `plist:"dsAttrTypeStandard:AppleMetaNodeLocation"`
}

type groupGUID struct {
	GeneratedUID []string `plist:"dsAttrTypeStandard:GeneratedUID"`
}

type nestedGroups struct {
	NestedGroups []string `plist:"dsAttrTypeStandard:NestedGroups"`
}

// Directory runs directory service lookups through a Runner.
type Directory struct {
	runner         execcmd.Runner
	logger         zerolog.Logger
	lookupAttempts int
	retryInterval  time.Duration
}

// Option configures a Directory.
type Option func(*Directory)

// WithLookupRetry sets how many times the computer record lookup is tried and
// the pause between tries. Attempts below one are treated as one.
func WithLookupRetry(attempts int, interval time.Duration) Option {
	return func(d *Directory) {
		if attempts < 1 {
			attempts = 1
		}
		d.lookupAttempts = attempts
		d.retryInterval = interval
	}
}

func New(runner execcmd.Runner, logger zerolog.Logger, opts ...Option) *Directory {
	d := &Directory{
		runner:         runner,
		logger:         logger,
		lookupAttempts: 5,
		retryInterval:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func decode(out []byte, v interface{}) error {
	if len(bytes.TrimSpace(out)) == 0 {
		return ErrEmptyOutput
	}
	return plist.Unmarshal(out, v)
}

// ADConfig reads the current Active Directory binding configuration.
func (d *Directory) ADConfig(ctx context.Context) (*ADConfig, error) {
	out, err := d.runner.Output(ctx, dsconfigadPath, "-show", "-xml")
	if err != nil {
		return nil, errors.Wrap(err, "dsconfigad show")
	}
	var cfg ADConfig
	if err := decode(out, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse dsconfigad output")
	}
	return &cfg, nil
}

// BoundComputerAccount returns the computer account macOS believes it is
// bound with, provided the binding is to the expected forest and domain.
func (d *Directory) BoundComputerAccount(ctx context.Context, forest, domain string) string {
	cfg, err := d.ADConfig(ctx)
	if err != nil {
		d.logger.Debug().Err(err).Msg("no active directory binding information")
		return ""
	}
	info := cfg.GeneralInfo
	if !strings.EqualFold(info.Forest, forest) || !strings.EqualFold(info.Domain, domain) {
		d.logger.Info().
			Str("forest", info.Forest).
			Str("domain", info.Domain).
			Msg("bound to an unexpected forest or domain")
		return ""
	}
	return info.ComputerAccount
}

// ComputerRecordInDomain reads the computer record through the search node,
// retrying while the directory does not answer. It reports whether any of
// the record's meta node locations names the forest or the domain.
func (d *Directory) ComputerRecordInDomain(ctx context.Context, forest, domain, account string) bool {
	var rec computerRecord
	err := retry.Do(ctx, func() error {
		out, err := d.runner.Output(ctx, dsclPath, "-plist", SearchNode, "read", "Computers/"+account)
		if err != nil {
			d.logger.Debug().Err(err).Str("account", account).Msg("dscl computer lookup")
			return err
		}
		var r computerRecord
		if err := decode(out, &r); err != nil {
			d.logger.Debug().Err(err).Str("account", account).Msg("parse dscl computer record")
			return err
		}
		rec = r
		return nil
	}, retry.WithMaxAttempts(d.lookupAttempts), retry.WithInterval(d.retryInterval))
	if err != nil {
		d.logger.Info().Err(err).Str("account", account).Msg("computer record lookup failed")
		return false
	}

	forest, domain = strings.ToLower(forest), strings.ToLower(domain)
	for _, loc := range rec.MetaNodeLocation {
		loc = strings.ToLower(loc)
		if strings.Contains(loc, forest) || strings.Contains(loc, domain) {
			return true
		}
	}
	return false
}

// GroupGUID returns the GeneratedUID of the named group in node, or "" if it
// cannot be resolved.
func (d *Directory) GroupGUID(ctx context.Context, node, name string) string {
	out, err := d.runner.Output(ctx, dsclPath, "-plist", node, "read", "Groups/"+name, "GeneratedUID")
	if err != nil {
		d.logger.Info().Err(err).Str("group", name).Msg("unable to read GeneratedUID")
		return ""
	}
	var g groupGUID
	if err := decode(out, &g); err != nil {
		d.logger.Info().Err(err).Str("group", name).Msg("parse GeneratedUID")
		return ""
	}
	if len(g.GeneratedUID) == 0 {
		return ""
	}
	return g.GeneratedUID[0]
}

// NestedAdminGroups returns the GUIDs nested in the local admin group.
func (d *Directory) NestedAdminGroups(ctx context.Context) []string {
	out, err := d.runner.Output(ctx, dsclPath, "-plist", LocalNode, "read", "Groups/"+AdminGroup, "NestedGroups")
	if err != nil {
		d.logger.Info().Err(err).Msg("unable to read NestedGroups for the admin group")
		return nil
	}
	var n nestedGroups
	if err := decode(out, &n); err != nil {
		d.logger.Info().Err(err).Msg("parse admin NestedGroups")
		return nil
	}
	return n.NestedGroups
}

// AddGroupToAdmin nests the named directory group in the local admin group.
func (d *Directory) AddGroupToAdmin(ctx context.Context, name string) error {
	if err := d.runner.Run(ctx, dseditgroupPath, "-o", "edit", "-a", name, "-t", "group", AdminGroup); err != nil {
		return errors.Wrapf(err, "nest %s in %s", name, AdminGroup)
	}
	return nil
}

// RemoveNestedAdminGroup removes guid from the admin group's NestedGroups.
func (d *Directory) RemoveNestedAdminGroup(ctx context.Context, guid string) error {
	if err := d.runner.Run(ctx, dsclPath, LocalNode, "delete", "Groups/"+AdminGroup, "NestedGroups", guid); err != nil {
		return errors.Wrapf(err, "remove nested group %s from %s", guid, AdminGroup)
	}
	return nil
}
