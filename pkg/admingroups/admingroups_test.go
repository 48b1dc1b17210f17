package admingroups

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fleetdm/munki-conditions/pkg/conditions"
	"github.com/fleetdm/munki-conditions/pkg/execcmd/execcmdtest"
	"github.com/fleetdm/munki-conditions/pkg/manifests"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"howett.net/plist"
)

const (
	node      = "/Active Directory/DOMAIN/All Domains"
	nestedCmd = "/usr/bin/dscl -plist /Local/Default read Groups/admin NestedGroups"
	showCmd   = "/usr/sbin/dsconfigad -show -xml"
)

func guidCmd(name string) string {
	return "/usr/bin/dscl -plist " + node + " read Groups/" + name + " GeneratedUID"
}

func addCmd(name string) string {
	return "/usr/sbin/dseditgroup -o edit -a " + name + " -t group admin"
}

func removeCmd(guid string) string {
	return "/usr/bin/dscl /Local/Default delete Groups/admin NestedGroups " + guid
}

func attrPlist(attr string, values ...string) execcmdtest.Response {
	var b strings.Builder
	for _, v := range values {
		fmt.Fprintf(&b, "\t\t<string>%s</string>\n", v)
	}
	return execcmdtest.Response{Output: fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>dsAttrTypeStandard:%s</key>
	<array>
%s	</array>
</dict>
</plist>
`, attr, b.String())}
}

const dsconfigadXML = `<?xml version="1.0" encoding="UTF-8"?>
<plist version="1.0">
<dict>
	<key>Administrative</key>
	<dict>
		<key>Allowed admin groups</key>
		<array>
			<string>DOMAIN-ADMINS</string>
			<string>LAB-ADMINS</string>
		</array>
	</dict>
</dict>
</plist>
`

type fixture struct {
	tree  *manifests.Tree
	store *conditions.Store
}

// newFixture lays out a manifests tree: the computer manifest includes a
// lab manifest, and both carry admin group metadata.
func newFixture(t *testing.T, labMetadata map[string]interface{}) *fixture {
	base := t.TempDir()
	dir := filepath.Join(base, "manifests")
	write := func(path string, v interface{}) {
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		b, err := plist.Marshal(v, plist.XMLFormat)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, b, 0o644))
	}
	write(filepath.Join(dir, "client_manifest.plist"), map[string]interface{}{
		"included_manifests": []string{"groups/lab"},
		"_metadata": map[string]interface{}{
			"nested_admin_groups": []string{"LAB-ADMINS", "GHOST"},
		},
	})
	write(filepath.Join(dir, "groups", "lab"), map[string]interface{}{
		"_metadata": labMetadata,
	})
	return &fixture{
		tree:  manifests.New(dir, []string{filepath.Join(base, "none.plist")}, zerolog.Nop()),
		store: conditions.NewStore(filepath.Join(base, "ConditionalItems.plist")),
	}
}

func TestReconcile(t *testing.T) {
	f := newFixture(t, map[string]interface{}{
		"nested_admin_groups": []string{"HELPDESK", "LAB-ADMINS"},
	})
	runner := execcmdtest.New().
		On(guidCmd("LAB-ADMINS"), attrPlist("GeneratedUID", "AAAA-1111")).
		On(guidCmd("GHOST"), execcmdtest.Response{Err: errors.New("eDSRecordNotFound")}).
		On(guidCmd("HELPDESK"), attrPlist("GeneratedUID", "BBBB-2222")).
		On(guidCmd("DOMAIN-ADMINS"), attrPlist("GeneratedUID", "CCCC-3333")).
		On(showCmd, execcmdtest.Response{Output: dsconfigadXML}).
		On(nestedCmd,
			attrPlist("NestedGroups", "aaaa-1111", "DDDD-4444"),
			attrPlist("NestedGroups", "aaaa-1111", "DDDD-4444", "BBBB-2222", "CCCC-3333"),
			attrPlist("NestedGroups", "aaaa-1111", "BBBB-2222", "CCCC-3333"),
		).
		On(addCmd("HELPDESK")).
		On(addCmd("DOMAIN-ADMINS")).
		On(removeCmd("DDDD-4444"))

	res, err := New(node, runner, f.tree, f.store, zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Equal(t, []Group{
		{Name: "LAB-ADMINS", GUID: "AAAA-1111"},
		{Name: "HELPDESK", GUID: "BBBB-2222"},
		{Name: "DOMAIN-ADMINS", GUID: "CCCC-3333"},
	}, res.Requested)
	assert.Equal(t, []string{"aaaa-1111", "BBBB-2222", "CCCC-3333"}, res.NestedGUIDs)

	assert.Zero(t, runner.Count(addCmd("LAB-ADMINS")), "GUIDs already nested compare case-insensitively")
	assert.Equal(t, 1, runner.Count(addCmd("HELPDESK")))
	assert.Equal(t, 1, runner.Count(addCmd("DOMAIN-ADMINS")))
	assert.Equal(t, 1, runner.Count(removeCmd("DDDD-4444")))
	assert.Equal(t, 1, runner.Count(guidCmd("LAB-ADMINS")), "dsconfigad groups already requested are not resolved twice")

	got, err := f.store.Read()
	require.NoError(t, err)
	assert.Equal(t, true, got["admin_groups_success"])
	assert.Equal(t, []interface{}{"aaaa-1111", "BBBB-2222", "CCCC-3333"}, got["nested_admin_group_guids"])
}

func TestReconcileExcludesDSConfigAD(t *testing.T) {
	f := newFixture(t, map[string]interface{}{
		"exclude_admins_from_dsconfigad": true,
	})
	runner := execcmdtest.New().
		On(guidCmd("LAB-ADMINS"), attrPlist("GeneratedUID", "AAAA-1111")).
		On(guidCmd("GHOST"), execcmdtest.Response{Err: errors.New("eDSRecordNotFound")}).
		On(nestedCmd, attrPlist("NestedGroups", "CCCC-3333"),
			attrPlist("NestedGroups", "CCCC-3333", "AAAA-1111"),
			attrPlist("NestedGroups", "AAAA-1111"),
		).
		On(addCmd("LAB-ADMINS")).
		On(removeCmd("CCCC-3333"))

	res, err := New(node, runner, f.tree, f.store, zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Zero(t, runner.Count(showCmd))
	assert.Equal(t, 1, runner.Count(removeCmd("CCCC-3333")))
	assert.Equal(t, []string{"AAAA-1111"}, res.NestedGUIDs)
}

func TestReconcileFailures(t *testing.T) {
	f := newFixture(t, map[string]interface{}{})
	runner := execcmdtest.New().
		On(guidCmd("LAB-ADMINS"), attrPlist("GeneratedUID", "AAAA-1111")).
		On(guidCmd("GHOST"), execcmdtest.Response{Err: errors.New("eDSRecordNotFound")}).
		On(showCmd, execcmdtest.Response{Err: errors.New("exit status 1")}).
		On(nestedCmd, attrPlist("NestedGroups", "EEEE-5555")).
		On(addCmd("LAB-ADMINS"), execcmdtest.Response{Err: errors.New("permission denied")}).
		On(removeCmd("EEEE-5555"), execcmdtest.Response{Err: errors.New("permission denied")})

	res, err := New(node, runner, f.tree, f.store, zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "LAB-ADMINS")
	assert.Contains(t, res.Err.Error(), "EEEE-5555")

	got, err := f.store.Read()
	require.NoError(t, err)
	assert.Equal(t, false, got["admin_groups_success"])
}

func TestReconcileOffNetwork(t *testing.T) {
	f := newFixture(t, map[string]interface{}{})
	runner := execcmdtest.New().
		On(guidCmd("LAB-ADMINS"), execcmdtest.Response{Err: errors.New("eDSNodeNotFound")}).
		On(guidCmd("GHOST"), execcmdtest.Response{Err: errors.New("eDSNodeNotFound")}).
		On(nestedCmd, execcmdtest.Response{Err: errors.New("no such key")})

	res, err := New(node, runner, f.tree, f.store, zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)
	assert.NoError(t, res.Err)
	assert.Empty(t, res.Requested)
	for _, c := range runner.Calls() {
		assert.NotContains(t, c, "dseditgroup")
		assert.NotContains(t, c, "delete")
	}

	got, err := f.store.Read()
	require.NoError(t, err)
	assert.Equal(t, true, got["admin_groups_success"])
	assert.Contains(t, got, "nested_admin_group_guids")
	assert.Empty(t, got["nested_admin_group_guids"])
}

func TestNewDefaultSearchNode(t *testing.T) {
	r := New("", execcmdtest.New(), nil, nil, zerolog.Nop())
	assert.Equal(t, DefaultSearchNode, r.searchNode)
}
