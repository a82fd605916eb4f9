package card

import (
	"bytes"
	"errors"
	"io"
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

// recordingReporter captures every report for later inspection.
type recordingReporter struct {
	dones    []uint64
	percents []int
	total    uint64
	done     bool
	err      error
}

func (r *recordingReporter) Report(done, total uint64) error {
	r.dones = append(r.dones, done)
	r.percents = append(r.percents, Percent(done, total))
	r.total = total
	return r.err
}

func (r *recordingReporter) Done() { r.done = true }

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 7)
	}
	return b
}

func TestCopyRoundTrip(t *testing.T) {
	const bufSize = 4096
	sizes := []int{0, 1, bufSize - 1, bufSize, bufSize + 1, 5*bufSize + 3}

	for _, size := range sizes {
		src := pattern(size)
		var dst bytes.Buffer
		e := &Engine{BufferSize: bufSize}

		n, err := e.Copy(&dst, bytes.NewReader(src), uint64(size), &recordingReporter{})
		if err != nil {
			t.Fatalf("size %d: copy failed: %v", size, err)
		}
		if n != uint64(size) {
			t.Fatalf("size %d: copied %d bytes", size, n)
		}
		if !bytes.Equal(dst.Bytes(), src) {
			t.Fatalf("size %d: destination content differs from source", size)
		}
	}
}

func TestCopyDefaultBuffer(t *testing.T) {
	src := pattern(CopyBufferSize + 1)
	var dst bytes.Buffer
	e := &Engine{}

	n, err := e.Copy(&dst, bytes.NewReader(src), uint64(len(src)), nil)
	if err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	if n != uint64(len(src)) || !bytes.Equal(dst.Bytes(), src) {
		t.Fatalf("copied %d bytes, content match %v", n, bytes.Equal(dst.Bytes(), src))
	}
}

// TestCopyRoundTripAtOffset plays both transfer directions against a file
// standing in for the block device: write N bytes at offset O, read N bytes
// back from O, and expect the original content.
func TestCopyRoundTripAtOffset(t *testing.T) {
	const offset = 1234
	src := pattern(5000)

	dev, err := os.CreateTemp(t.TempDir(), "card")
	if err != nil {
		t.Fatalf("temp device: %v", err)
	}
	defer dev.Close()

	e := &Engine{BufferSize: 512}

	if _, err := dev.Seek(offset, io.SeekStart); err != nil {
		t.Fatalf("seek for write: %v", err)
	}
	if _, err := e.Copy(dev, bytes.NewReader(src), uint64(len(src)), nil); err != nil {
		t.Fatalf("write to device: %v", err)
	}

	if _, err := dev.Seek(offset, io.SeekStart); err != nil {
		t.Fatalf("seek for read: %v", err)
	}
	var out bytes.Buffer
	n, err := e.Copy(&out, dev, uint64(len(src)), nil)
	if err != nil {
		t.Fatalf("read from device: %v", err)
	}
	if n != uint64(len(src)) || !bytes.Equal(out.Bytes(), src) {
		t.Fatalf("round trip at offset %d lost data (read %d bytes)", offset, n)
	}
}

func TestCopyBoundedStopsAtTotal(t *testing.T) {
	src := pattern(1000)
	var dst bytes.Buffer
	e := &Engine{BufferSize: 64}

	n, err := e.Copy(&dst, bytes.NewReader(src), 300, &recordingReporter{})
	if err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	if n != 300 {
		t.Fatalf("copied %d bytes, want 300", n)
	}
	if !bytes.Equal(dst.Bytes(), src[:300]) {
		t.Fatal("destination does not match the first 300 source bytes")
	}
}

func TestCopyUnboundedReadsUntilEOF(t *testing.T) {
	src := pattern(777)
	var dst bytes.Buffer
	rep := &recordingReporter{}
	e := &Engine{BufferSize: 128}

	n, err := e.Copy(&dst, bytes.NewReader(src), 0, rep)
	if err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	if n != 777 {
		t.Fatalf("copied %d bytes, want 777", n)
	}
	if rep.total != 0 {
		t.Fatalf("reporter saw total %d, want 0", rep.total)
	}
	if last := rep.dones[len(rep.dones)-1]; last != 777 {
		t.Fatalf("final reported byte count %d, want 777", last)
	}
}

func TestCopyProgressMonotoneEndsAtHundred(t *testing.T) {
	src := pattern(10_000)
	var dst bytes.Buffer
	rep := &recordingReporter{}
	e := &Engine{BufferSize: 512}

	if _, err := e.Copy(&dst, bytes.NewReader(src), uint64(len(src)), rep); err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	if rep.percents[0] != 0 {
		t.Fatalf("first report %d%%, want 0%%", rep.percents[0])
	}
	for i := 1; i < len(rep.percents); i++ {
		if rep.percents[i] < rep.percents[i-1] {
			t.Fatalf("progress went backwards: %v", rep.percents)
		}
	}
	if last := rep.percents[len(rep.percents)-1]; last != 100 {
		t.Fatalf("final report %d%%, want exactly 100%%", last)
	}
	if !rep.done {
		t.Fatal("Done was never called")
	}
}

// shortWriter accepts at most max bytes per Write call.
type shortWriter struct {
	buf bytes.Buffer
	max int
}

func (w *shortWriter) Write(p []byte) (int, error) {
	if len(p) > w.max {
		p = p[:w.max]
	}
	return w.buf.Write(p)
}

func TestCopySurvivesPartialWrites(t *testing.T) {
	src := pattern(1500)
	dst := &shortWriter{max: 7}
	e := &Engine{BufferSize: 256}

	n, err := e.Copy(dst, bytes.NewReader(src), uint64(len(src)), nil)
	if err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	if n != uint64(len(src)) || !bytes.Equal(dst.buf.Bytes(), src) {
		t.Fatalf("short-write destination differs from source (copied %d)", n)
	}
}

// eintrWriter fails every other Write with EINTR before accepting the data.
type eintrWriter struct {
	buf      bytes.Buffer
	attempts int
}

func (w *eintrWriter) Write(p []byte) (int, error) {
	w.attempts++
	if w.attempts%2 == 1 {
		return 0, unix.EINTR
	}
	return w.buf.Write(p)
}

func TestCopyRetriesInterruptedWrites(t *testing.T) {
	src := pattern(900)
	dst := &eintrWriter{}
	e := &Engine{BufferSize: 100}

	n, err := e.Copy(dst, bytes.NewReader(src), uint64(len(src)), nil)
	if err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	if n != uint64(len(src)) || !bytes.Equal(dst.buf.Bytes(), src) {
		t.Fatal("interrupted writes were not retried to completion")
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("device gone") }

func TestCopyWriteErrorIsFatal(t *testing.T) {
	e := &Engine{BufferSize: 64}
	if _, err := e.Copy(failingWriter{}, bytes.NewReader(pattern(128)), 128, nil); err == nil {
		t.Fatal("write error was swallowed")
	}
}

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) { return 0, errors.New("bad sector") }

func TestCopyReadErrorIsFatal(t *testing.T) {
	var dst bytes.Buffer
	e := &Engine{BufferSize: 64}
	if _, err := e.Copy(&dst, failingReader{}, 128, nil); err == nil {
		t.Fatal("read error was swallowed")
	}
}

func TestCopyReporterErrorAborts(t *testing.T) {
	var dst bytes.Buffer
	rep := &recordingReporter{err: io.ErrClosedPipe}
	e := &Engine{BufferSize: 64}

	n, err := e.Copy(&dst, bytes.NewReader(pattern(512)), 512, rep)
	if !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("err = %v, want reporter error", err)
	}
	if n != 0 {
		t.Fatalf("copied %d bytes after the initial report failed", n)
	}
}

func TestCapTotal(t *testing.T) {
	cases := []struct {
		requested, source, want uint64
	}{
		{0, 0, 0},
		{0, 1000, 1000},
		{500, 1000, 500},
		{1000, 1000, 1000},
		{2000, 1000, 1000},
	}
	for _, tc := range cases {
		if got := CapTotal(tc.requested, tc.source); got != tc.want {
			t.Fatalf("CapTotal(%d, %d) = %d, want %d", tc.requested, tc.source, got, tc.want)
		}
	}
}
