package card

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// CopyBufferSize is the default transfer chunk size.
const CopyBufferSize = 1 << 20

// Engine performs the chunked copy between a source and a destination stream.
// A single buffer is reused for the whole transfer; each chunk is fully read,
// then fully written, before the next read.
type Engine struct {
	// BufferSize overrides the chunk size. Zero means CopyBufferSize.
	BufferSize int
	Log        logrus.FieldLogger
}

// Copy moves totalToCopy bytes from src to dst, reporting cumulative bytes
// through rep after every flushed chunk. totalToCopy == 0 copies until src is
// exhausted. The destination must already be positioned; the engine never
// seeks. Returns the number of bytes written.
func (e *Engine) Copy(dst io.Writer, src io.Reader, totalToCopy uint64, rep ProgressReporter) (uint64, error) {
	if rep == nil {
		rep = NopReporter{}
	}
	size := e.BufferSize
	if size <= 0 {
		size = CopyBufferSize
	}
	buf := make([]byte, size)
	e.log().WithFields(logrus.Fields{"total": totalToCopy, "buffer": size}).Debug("starting copy")

	if err := rep.Report(0, totalToCopy); err != nil {
		return 0, err
	}

	var written uint64
	for totalToCopy == 0 || written < totalToCopy {
		chunk := buf
		if totalToCopy != 0 && totalToCopy-written < uint64(len(chunk)) {
			chunk = chunk[:totalToCopy-written]
		}

		n, err := src.Read(chunk)
		if n == 0 {
			if err == nil || errors.Is(err, io.EOF) {
				break
			}
			return written, fmt.Errorf("read: %w", err)
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return written, fmt.Errorf("read: %w", err)
		}

		if werr := writeFull(dst, chunk[:n]); werr != nil {
			return written, werr
		}
		written += uint64(n)

		if rerr := rep.Report(written, totalToCopy); rerr != nil {
			return written, rerr
		}
		if err != nil {
			// Read returned data alongside io.EOF.
			break
		}
	}

	rep.Done()
	return written, nil
}

// writeFull drains p into w, looping over partial writes and retrying writes
// interrupted by a signal with the remaining slice.
func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				p = p[n:]
				continue
			}
			return fmt.Errorf("write: %w", err)
		}
		p = p[n:]
	}
	return nil
}

func (e *Engine) log() logrus.FieldLogger {
	if e.Log != nil {
		return e.Log
	}
	return discardLog
}

// CapTotal computes the effective transfer length for a bounded source: the
// requested amount capped at the source size, or the whole source when no
// amount was requested.
func CapTotal(requested, sourceSize uint64) uint64 {
	if requested == 0 || sourceSize < requested {
		return sourceSize
	}
	return requested
}
