// Package manifests reads the Munki manifests cached on the client and walks
// their included_manifests graph.
package manifests

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/fleetdm/munki-conditions/pkg/constant"
	"github.com/rs/zerolog"
	"howett.net/plist"
)

// Metadata is the subset of a manifest's _metadata dictionary the condition
// reporters act on.
type Metadata struct {
	// PrintQueues are kept as raw dictionaries so the reported condition
	// carries every key the manifest author set.
	PrintQueues                 []map[string]interface{}
	NestedAdminGroups           []string
	ExcludeAdminsFromDSConfigAD bool
}

// Tree is a manifests directory plus the preference files that name the
// computer manifest.
type Tree struct {
	dir        string
	prefsPaths []string
	logger     zerolog.Logger
}

// New returns a Tree. Empty arguments fall back to Munki's defaults.
func New(dir string, prefsPaths []string, logger zerolog.Logger) *Tree {
	if dir == "" {
		dir = constant.ManifestsPath
	}
	if len(prefsPaths) == 0 {
		prefsPaths = constant.ManagedInstallsPrefsPaths
	}
	return &Tree{dir: dir, prefsPaths: prefsPaths, logger: logger}
}

// Dir returns the manifests directory.
func (t *Tree) Dir() string {
	return t.dir
}

// ClientIdentifier returns ClientIdentifier from the highest priority
// ManagedInstalls.plist that sets one. Binary plists are read directly.
func (t *Tree) ClientIdentifier() string {
	for _, p := range t.prefsPaths {
		b, err := os.ReadFile(p)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				t.logger.Debug().Err(err).Str("path", p).Msg("read munki prefs")
			}
			continue
		}
		var prefs struct {
			ClientIdentifier string `plist:"ClientIdentifier"`
		}
		if _, err := plist.Unmarshal(b, &prefs); err != nil {
			t.logger.Debug().Err(err).Str("path", p).Msg("parse munki prefs")
			continue
		}
		if prefs.ClientIdentifier != "" {
			return prefs.ClientIdentifier
		}
	}
	return ""
}

// ComputerManifestName returns the computer manifest name relative to the
// manifests directory. The client identifier wins; otherwise a lone
// top-level manifest (ignoring SelfServeManifest and dot files) is used, which
// covers Munki 2.8's client_manifest.plist. It returns "" when neither rule
// applies.
func (t *Tree) ComputerManifestName() string {
	if _, err := os.Stat(t.dir); err != nil {
		return ""
	}
	if id := t.ClientIdentifier(); id != "" {
		return id
	}

	entries, err := os.ReadDir(t.dir)
	if err != nil {
		t.logger.Debug().Err(err).Str("dir", t.dir).Msg("list manifests")
		return ""
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || strings.EqualFold(name, constant.SelfServeManifestName) {
			continue
		}
		files = append(files, name)
	}
	if len(files) == 1 {
		return files[0]
	}
	return ""
}

// read decodes the named manifest. Missing or unparsable manifests are
// reported as nil.
func (t *Tree) read(name string) map[string]interface{} {
	if name == "" {
		return nil
	}
	path := filepath.Join(t.dir, name)
	b, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			t.logger.Debug().Err(err).Str("manifest", name).Msg("read manifest")
		}
		return nil
	}
	var m map[string]interface{}
	if _, err := plist.Unmarshal(b, &m); err != nil {
		t.logger.Debug().Err(err).Str("manifest", name).Msg("parse manifest")
		return nil
	}
	return m
}

// IncludedManifests returns the string entries of the manifest's
// included_manifests array.
func (t *Tree) IncludedManifests(name string) []string {
	return stringsOf(t.read(name)["included_manifests"])
}

// Applicable returns the computer manifest followed by every manifest
// reachable through included_manifests, breadth first, each name once.
// Included names that are not on disk are still listed.
func (t *Tree) Applicable() []string {
	start := t.ComputerManifestName()
	if start == "" {
		return nil
	}

	processed := []string{}
	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		processed = append(processed, name)

		for _, inc := range t.IncludedManifests(name) {
			if seen[inc] {
				continue
			}
			seen[inc] = true
			queue = append(queue, inc)
		}
	}
	return processed
}

// Metadata returns the reporter-relevant _metadata of the named manifest.
// Entries of the wrong type are skipped rather than failing the manifest.
func (t *Tree) Metadata(name string) Metadata {
	var md Metadata
	raw, ok := t.read(name)["_metadata"].(map[string]interface{})
	if !ok {
		return md
	}

	if queues, ok := raw["print_queues"].([]interface{}); ok {
		for _, q := range queues {
			if d, ok := q.(map[string]interface{}); ok {
				md.PrintQueues = append(md.PrintQueues, d)
			}
		}
	}
	md.NestedAdminGroups = stringsOf(raw["nested_admin_groups"])
	md.ExcludeAdminsFromDSConfigAD = Truthy(raw["exclude_admins_from_dsconfigad"])
	return md
}

func stringsOf(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Truthy reports whether a decoded plist value counts as set: true, a
// non-zero number, or a non-empty string, array or dict.
func Truthy(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b != ""
	case uint64:
		return b != 0
	case int64:
		return b != 0
	case int:
		return b != 0
	case float64:
		return b != 0
	case []interface{}:
		return len(b) > 0
	case map[string]interface{}:
		return len(b) > 0
	default:
		return false
	}
}
