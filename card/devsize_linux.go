//go:build linux

package card

import (
	"io"

	"golang.org/x/sys/unix"
)

// deviceSize returns the total addressable size of an open file or block
// device. Regular files and most block devices answer a plain seek to the
// end; devices that refuse to seek fall back to the BLKGETSIZE64 ioctl.
func deviceSize(f io.Seeker) (uint64, error) {
	size, err := f.Seek(0, io.SeekEnd)
	if err == nil {
		_, _ = f.Seek(0, io.SeekStart)
		return uint64(size), nil
	}

	fder, ok := f.(interface{ Fd() uintptr })
	if !ok {
		return 0, err
	}
	n, ierr := unix.IoctlGetInt(int(fder.Fd()), unix.BLKGETSIZE64)
	if ierr != nil {
		return 0, ierr
	}
	return uint64(n), nil
}
