//go:build linux

package resources

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// renameNoReplace atomically moves oldpath to newpath, failing with an error
// matching os.ErrExist if newpath already exists.
func renameNoReplace(oldpath, newpath string) error {
	err := unix.Renameat2(unix.AT_FDCWD, oldpath, unix.AT_FDCWD, newpath, unix.RENAME_NOREPLACE)
	if err == nil {
		return nil
	}

	// Filesystems without RENAME_NOREPLACE support (some overlay and network
	// filesystems) report EINVAL or ENOSYS.
	if errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENOSYS) {
		return linkThenRemove(oldpath, newpath)
	}

	return &os.LinkError{Op: "renameat2", Old: oldpath, New: newpath, Err: err}
}

func linkThenRemove(oldpath, newpath string) error {
	err := os.Link(oldpath, newpath)
	if err != nil {
		return err
	}

	return os.Remove(oldpath)
}
