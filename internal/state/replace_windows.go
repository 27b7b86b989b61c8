//go:build windows

package state

import "os"

// replaceFile removes dst first; os.Rename cannot overwrite on Windows.
func replaceFile(src, dst string) error {
	_ = os.Remove(dst)
	return os.Rename(src, dst)
}
