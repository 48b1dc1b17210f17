package manifests

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"howett.net/plist"
)

func writePlist(t *testing.T, path string, v interface{}, format int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	b, err := plist.Marshal(v, format)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))
}

func manifest(included ...string) map[string]interface{} {
	return map[string]interface{}{
		"catalogs":           []string{"production"},
		"included_manifests": included,
	}
}

func TestClientIdentifier(t *testing.T) {
	dir := t.TempDir()
	managed := filepath.Join(dir, "managed.plist")
	root := filepath.Join(dir, "root.plist")
	local := filepath.Join(dir, "local.plist")
	garbage := filepath.Join(dir, "garbage.plist")
	require.NoError(t, os.WriteFile(garbage, []byte("{{{"), 0o644))

	writePlist(t, root, map[string]interface{}{"SoftwareRepoURL": "https://munki"}, plist.BinaryFormat)
	writePlist(t, local, map[string]interface{}{"ClientIdentifier": "labs/mac-01"}, plist.BinaryFormat)

	tree := New(dir, []string{managed, garbage, root, local}, zerolog.Nop())
	assert.Equal(t, "labs/mac-01", tree.ClientIdentifier())

	writePlist(t, managed, map[string]interface{}{"ClientIdentifier": "profile-set"}, plist.XMLFormat)
	assert.Equal(t, "profile-set", tree.ClientIdentifier())

	assert.Empty(t, New(dir, []string{filepath.Join(dir, "none")}, zerolog.Nop()).ClientIdentifier())
}

func TestComputerManifestName(t *testing.T) {
	t.Run("missing dir", func(t *testing.T) {
		tree := New(filepath.Join(t.TempDir(), "manifests"), []string{"/nonexistent"}, zerolog.Nop())
		assert.Empty(t, tree.ComputerManifestName())
	})

	t.Run("client identifier", func(t *testing.T) {
		base := t.TempDir()
		dir := filepath.Join(base, "manifests")
		prefs := filepath.Join(base, "ManagedInstalls.plist")
		writePlist(t, filepath.Join(dir, "client_manifest.plist"), manifest(), plist.XMLFormat)
		writePlist(t, prefs, map[string]interface{}{"ClientIdentifier": "site_default"}, plist.XMLFormat)

		assert.Equal(t, "site_default", New(dir, []string{prefs}, zerolog.Nop()).ComputerManifestName())
	})

	t.Run("single top level file", func(t *testing.T) {
		dir := t.TempDir()
		writePlist(t, filepath.Join(dir, "client_manifest.plist"), manifest(), plist.XMLFormat)
		writePlist(t, filepath.Join(dir, "SelfServeManifest"), manifest(), plist.XMLFormat)
		writePlist(t, filepath.Join(dir, "groups", "lab"), manifest(), plist.XMLFormat)
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".DS_Store"), nil, 0o644))

		assert.Equal(t, "client_manifest.plist", New(dir, []string{"/nonexistent"}, zerolog.Nop()).ComputerManifestName())
	})

	t.Run("ambiguous", func(t *testing.T) {
		dir := t.TempDir()
		writePlist(t, filepath.Join(dir, "a"), manifest(), plist.XMLFormat)
		writePlist(t, filepath.Join(dir, "b"), manifest(), plist.XMLFormat)

		assert.Empty(t, New(dir, []string{"/nonexistent"}, zerolog.Nop()).ComputerManifestName())
	})
}

func TestApplicable(t *testing.T) {
	dir := t.TempDir()
	writePlist(t, filepath.Join(dir, "client_manifest.plist"), manifest("groups/lab", "groups/staff"), plist.XMLFormat)
	writePlist(t, filepath.Join(dir, "groups", "lab"), manifest("groups/printers", "client_manifest.plist"), plist.XMLFormat)
	writePlist(t, filepath.Join(dir, "groups", "staff"), manifest("groups/printers", "groups/missing"), plist.XMLFormat)
	writePlist(t, filepath.Join(dir, "groups", "printers"), manifest("groups/lab"), plist.XMLFormat)

	tree := New(dir, []string{"/nonexistent"}, zerolog.Nop())
	assert.Equal(t, []string{
		"client_manifest.plist",
		"groups/lab",
		"groups/staff",
		"groups/printers",
		"groups/missing",
	}, tree.Applicable())
}

func TestApplicableNoComputerManifest(t *testing.T) {
	tree := New(t.TempDir(), []string{"/nonexistent"}, zerolog.Nop())
	assert.Empty(t, tree.Applicable())
}

func TestIncludedManifests(t *testing.T) {
	dir := t.TempDir()
	writePlist(t, filepath.Join(dir, "mixed"), map[string]interface{}{
		"included_manifests": []interface{}{"a", 3, "b"},
	}, plist.XMLFormat)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken"), []byte("<plist"), 0o644))

	tree := New(dir, []string{"/nonexistent"}, zerolog.Nop())
	assert.Equal(t, []string{"a", "b"}, tree.IncludedManifests("mixed"))
	assert.Empty(t, tree.IncludedManifests("broken"))
	assert.Empty(t, tree.IncludedManifests("absent"))
	assert.Empty(t, tree.IncludedManifests(""))
}

func TestMetadata(t *testing.T) {
	dir := t.TempDir()
	writePlist(t, filepath.Join(dir, "lab"), map[string]interface{}{
		"_metadata": map[string]interface{}{
			"nested_admin_groups":            []interface{}{"LAB-ADMINS", 7},
			"exclude_admins_from_dsconfigad": true,
			"print_queues": []interface{}{
				map[string]interface{}{"name": "lab_laser", "device_uri": "lpd://prn.example.org/lab"},
				"not a dict",
			},
		},
	}, plist.XMLFormat)
	writePlist(t, filepath.Join(dir, "bare"), manifest(), plist.XMLFormat)

	tree := New(dir, []string{"/nonexistent"}, zerolog.Nop())

	md := tree.Metadata("lab")
	assert.Equal(t, []string{"LAB-ADMINS"}, md.NestedAdminGroups)
	assert.True(t, md.ExcludeAdminsFromDSConfigAD)
	require.Len(t, md.PrintQueues, 1)
	assert.Equal(t, "lab_laser", md.PrintQueues[0]["name"])

	assert.Equal(t, Metadata{}, tree.Metadata("bare"))
	assert.Equal(t, Metadata{}, tree.Metadata("absent"))
}

func TestTruthy(t *testing.T) {
	assert.True(t, Truthy(true))
	assert.True(t, Truthy("yes"))
	assert.True(t, Truthy(uint64(1)))
	assert.False(t, Truthy(false))
	assert.False(t, Truthy(""))
	assert.False(t, Truthy(nil))
	assert.False(t, Truthy(int64(0)))
	assert.True(t, Truthy(1.5))
	assert.True(t, Truthy([]interface{}{"x"}))
	assert.False(t, Truthy([]interface{}{}))
	assert.False(t, Truthy(map[string]interface{}{}))
}
