//go:build !linux

package resources

import "os"

// renameNoReplace moves oldpath to newpath, failing with an error matching
// os.ErrExist if newpath already exists. os.Link refuses to overwrite.
func renameNoReplace(oldpath, newpath string) error {
	err := os.Link(oldpath, newpath)
	if err != nil {
		return err
	}

	return os.Remove(oldpath)
}
