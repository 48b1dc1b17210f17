// Package conditions merges facts into Munki's ConditionalItems.plist.
package conditions

import (
	"errors"
	"os"
	"sort"

	"github.com/fleetdm/munki-conditions/pkg/constant"
	"github.com/fleetdm/munki-conditions/pkg/secure"
	pkgerrors "github.com/pkg/errors"
	"howett.net/plist"
)

// Store is the read-modify-write view of a ConditionalItems.plist. Munki runs
// condition scripts one after another, so every script only ever adds or
// replaces its own keys.
type Store struct {
	Path string
}

// NewStore returns a Store for path, or the default Munki location when path
// is empty.
func NewStore(path string) *Store {
	if path == "" {
		path = constant.ConditionalItemsPath
	}
	return &Store{Path: path}
}

// Read returns the current conditions. A missing file is an empty set; a
// file that exists but does not parse is an error.
func (s *Store) Read() (map[string]interface{}, error) {
	b, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]interface{}{}, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "read conditions")
	}

	out := map[string]interface{}{}
	if len(b) == 0 {
		return out, nil
	}
	if _, err := plist.Unmarshal(b, &out); err != nil {
		return nil, pkgerrors.Wrap(err, "parse conditions")
	}
	return out, nil
}

// Write merges values over the existing conditions and saves the result as
// an XML plist. An unreadable existing file is replaced rather than blocking
// the write, matching Munki's own tolerance of a corrupt conditions file.
func (s *Store) Write(values map[string]interface{}) error {
	merged, err := s.Read()
	if err != nil {
		merged = map[string]interface{}{}
	}
	for k, v := range values {
		merged[k] = v
	}
	if len(merged) == 0 {
		return nil
	}

	b, err := plist.MarshalIndent(merged, plist.XMLFormat, "\t")
	if err != nil {
		return pkgerrors.Wrapf(err, "encode conditions %v", Keys(values))
	}
	if err := secure.WriteFileAtomic(s.Path, b, constant.DefaultWorldReadableFileMode); err != nil {
		return pkgerrors.Wrapf(err, "write conditions %v", Keys(values))
	}
	return nil
}

// Keys returns the sorted keys of m.
func Keys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
