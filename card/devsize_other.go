//go:build !linux

package card

import "io"

// deviceSize returns the total addressable size of an open file or device by
// seeking to its end. Platforms without a block-size ioctl get no fallback.
func deviceSize(f io.Seeker) (uint64, error) {
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	_, _ = f.Seek(0, io.SeekStart)
	return uint64(size), nil
}
