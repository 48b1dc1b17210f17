// Package admingroups keeps the directory groups nested in the local admin
// group in line with the nested_admin_groups metadata of the Mac's manifests.
package admingroups

import (
	"context"
	"strings"

	"github.com/fleetdm/munki-conditions/pkg/conditions"
	"github.com/fleetdm/munki-conditions/pkg/dirservice"
	"github.com/fleetdm/munki-conditions/pkg/execcmd"
	"github.com/fleetdm/munki-conditions/pkg/manifests"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// DefaultSearchNode is where group names are resolved to GUIDs.
const DefaultSearchNode = "/Active Directory/YOURDOMAIN/All Domains"

// Group is a directory group requested as an administrator group.
type Group struct {
	Name string
	GUID string
}

// Result is the outcome of one reconciliation.
type Result struct {
	Requested []Group
	// Err collects every failed add or remove. Nil means success.
	Err error
	// NestedGUIDs is the admin group's NestedGroups after reconciliation.
	NestedGUIDs []string
}

// Conditions returns the facts Munki sees.
func (r Result) Conditions() map[string]interface{} {
	guids := r.NestedGUIDs
	if guids == nil {
		guids = []string{}
	}
	return map[string]interface{}{
		"admin_groups_success":     r.Err == nil,
		"nested_admin_group_guids": guids,
	}
}

type Reporter struct {
	searchNode string
	dir        *dirservice.Directory
	tree       *manifests.Tree
	store      *conditions.Store
	logger     zerolog.Logger
}

func New(searchNode string, runner execcmd.Runner, tree *manifests.Tree, store *conditions.Store, logger zerolog.Logger) *Reporter {
	if searchNode == "" {
		searchNode = DefaultSearchNode
	}
	logger = logger.With().Str("reporter", "admin-groups").Logger()
	return &Reporter{
		searchNode: searchNode,
		dir:        dirservice.New(runner, logger),
		tree:       tree,
		store:      store,
		logger:     logger,
	}
}

// Run reconciles the admin group and writes the admin_groups_* conditions.
// Only a failure to write the conditions is returned.
func (r *Reporter) Run(ctx context.Context) (Result, error) {
	res := r.Reconcile(ctx)
	if err := r.store.Write(res.Conditions()); err != nil {
		return res, errors.Wrap(err, "write admin group conditions")
	}
	return res, nil
}

// Reconcile nests every requested group in the admin group and removes any
// nested group that was not requested. Nothing is changed when no requested
// group resolves, which is the normal state off the domain network.
func (r *Reporter) Reconcile(ctx context.Context) Result {
	names, exclude := r.requestedNames()
	requested := r.resolve(ctx, names)
	measured := r.dir.NestedAdminGroups(ctx)

	var errs *multierror.Error
	if len(requested) > 0 {
		if !exclude {
			requested = appendMissing(requested, r.dsconfigadGroups(ctx, requested))
		}

		for _, g := range requested {
			if containsFold(measured, g.GUID) {
				continue
			}
			r.logger.Info().Str("group", g.Name).Str("guid", g.GUID).Msg("nesting group in admin")
			if err := r.dir.AddGroupToAdmin(ctx, g.Name); err != nil {
				errs = multierror.Append(errs, err)
			}
		}

		for _, guid := range r.dir.NestedAdminGroups(ctx) {
			if requestedGUID(requested, guid) {
				continue
			}
			r.logger.Info().Str("guid", guid).Msg("removing unrequested nested admin group")
			if err := r.dir.RemoveNestedAdminGroup(ctx, guid); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
	}

	res := Result{
		Requested:   requested,
		Err:         errs.ErrorOrNil(),
		NestedGUIDs: r.dir.NestedAdminGroups(ctx),
	}
	if res.Err != nil {
		r.logger.Error().Err(res.Err).Msg("admin group reconciliation incomplete")
	}
	return res
}

// requestedNames returns the union of nested_admin_groups across the
// applicable manifests and whether any manifest asked to leave out the
// dsconfigad admin groups.
func (r *Reporter) requestedNames() ([]string, bool) {
	var (
		names   []string
		seen    = map[string]bool{}
		exclude bool
	)
	for _, m := range r.tree.Applicable() {
		md := r.tree.Metadata(m)
		if md.ExcludeAdminsFromDSConfigAD {
			exclude = true
		}
		for _, n := range md.NestedAdminGroups {
			if seen[n] {
				continue
			}
			seen[n] = true
			names = append(names, n)
		}
	}
	return names, exclude
}

func (r *Reporter) resolve(ctx context.Context, names []string) []Group {
	var groups []Group
	for _, n := range names {
		guid := r.dir.GroupGUID(ctx, r.searchNode, n)
		if guid == "" {
			r.logger.Debug().Str("group", n).Msg("group did not resolve, skipping")
			continue
		}
		groups = append(groups, Group{Name: n, GUID: guid})
	}
	return groups
}

// dsconfigadGroups resolves the binding's allowed admin groups that are not
// already requested by name.
func (r *Reporter) dsconfigadGroups(ctx context.Context, requested []Group) []Group {
	cfg, err := r.dir.ADConfig(ctx)
	if err != nil {
		r.logger.Info().Err(err).Msg("unable to obtain admin groups from dsconfigad")
		return nil
	}
	var names []string
	for _, n := range cfg.Administrative.AllowedAdminGroups {
		if !requestedName(requested, n) {
			names = append(names, n)
		}
	}
	return r.resolve(ctx, names)
}

func appendMissing(groups, more []Group) []Group {
	for _, g := range more {
		if !requestedGUID(groups, g.GUID) {
			groups = append(groups, g)
		}
	}
	return groups
}

func requestedName(groups []Group, name string) bool {
	for _, g := range groups {
		if strings.EqualFold(g.Name, name) {
			return true
		}
	}
	return false
}

func requestedGUID(groups []Group, guid string) bool {
	for _, g := range groups {
		if strings.EqualFold(g.GUID, guid) {
			return true
		}
	}
	return false
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
