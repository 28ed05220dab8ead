package fileutil

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// renameNoReplace renames src to dst in one step, failing with EEXIST when
// dst exists. Kernels or filesystems without RENAME_NOREPLACE report
// errNoReplaceUnsupported.
func renameNoReplace(src, dst string) error {
	err := unix.Renameat2(unix.AT_FDCWD, src, unix.AT_FDCWD, dst, unix.RENAME_NOREPLACE)
	if err == nil {
		return nil
	}
	if errors.Is(err, unix.ENOSYS) || errors.Is(err, unix.EINVAL) {
		return errNoReplaceUnsupported
	}
	return &os.LinkError{Op: "renameat2", Old: src, New: dst, Err: err}
}
