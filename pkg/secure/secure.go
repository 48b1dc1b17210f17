//go:build !windows
// +build !windows

package secure

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// isMorePermissive reports whether want grants group or other more than the
// existing mode current does.
func isMorePermissive(current, want os.FileMode) bool {
	return want&0o070 > current&0o070 || want&0o007 > current&0o007
}

// checkPermPath finds the deepest existing directory on path and fails if
// perm would open up what that directory keeps closed. The filesystem root
// and the working directory are never checked.
func checkPermPath(path string, perm os.FileMode) error {
	for {
		info, err := os.Stat(path)
		if err == nil {
			if !info.IsDir() {
				return &os.PathError{Op: "mkdir", Path: path, Err: syscall.ENOTDIR}
			}
			if isMorePermissive(info.Mode(), perm) {
				return fmt.Errorf("path %s has mode %o, tighter than the requested %o", path, info.Mode().Perm(), perm.Perm())
			}
			return nil
		}

		parent := filepath.Dir(path)
		if parent == path || parent == "." || parent == string(filepath.Separator) {
			return nil
		}
		path = parent
	}
}

// MkdirAll is os.MkdirAll that refuses to create directories more
// permissive than the existing directory they are created in.
func MkdirAll(path string, perm os.FileMode) error {
	if err := checkPermPath(path, perm); err != nil {
		return err
	}
	return os.MkdirAll(path, perm)
}

// WriteFileAtomic writes data to a temporary file next to name and renames
// it into place, so readers never observe a partially written file. The
// parent directory must already exist.
func WriteFileAtomic(name string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(name)
	if _, statErr := os.Stat(dir); statErr != nil {
		return statErr
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(name)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), perm); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), name)
}

// RemoveIfExists deletes name, treating a missing file as success.
func RemoveIfExists(name string) error {
	if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
