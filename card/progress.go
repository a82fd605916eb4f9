package card

import (
	"fmt"
	"io"
)

// ProgressReporter receives transfer progress. Report is called once before
// the first read and again after every flushed chunk; returning an error
// aborts the transfer. Done is called once after a successful copy so the
// reporter can finish its output line.
type ProgressReporter interface {
	Report(done, total uint64) error
	Done()
}

// NopReporter discards all progress. Used for --quiet and for reads that
// stream to stdout, where progress would stomp on the data.
type NopReporter struct{}

func (NopReporter) Report(done, total uint64) error { return nil }

func (NopReporter) Done() {}

// NumericReporter prints one bare percentage per report, for scripts and
// front ends that parse progress.
type NumericReporter struct {
	W io.Writer
}

func (r NumericReporter) Report(done, total uint64) error {
	_, err := fmt.Fprintf(r.W, "%d\n", Percent(done, total))
	return err
}

func (r NumericReporter) Done() {}

// ConsoleReporter overwrites a single line in place: a percentage when the
// total is known, otherwise the pretty byte count so far.
type ConsoleReporter struct {
	W io.Writer
}

func (r ConsoleReporter) Report(done, total uint64) error {
	if total > 0 {
		_, err := fmt.Fprintf(r.W, "\r%d%%", Percent(done, total))
		return err
	}
	_, err := fmt.Fprintf(r.W, "\r%s     ", PrettySize(done))
	return err
}

// Done terminates the overwritten progress line.
func (r ConsoleReporter) Done() {
	fmt.Fprintln(r.W)
}
