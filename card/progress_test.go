package card

import (
	"strings"
	"testing"
)

func TestNumericReporterOneLinePerReport(t *testing.T) {
	var b strings.Builder
	rep := NumericReporter{W: &b}

	for _, done := range []uint64{0, 50, 100} {
		if err := rep.Report(done, 100); err != nil {
			t.Fatalf("report failed: %v", err)
		}
	}
	rep.Done()

	if got := b.String(); got != "0\n50\n100\n" {
		t.Fatalf("numeric output = %q", got)
	}
}

func TestConsoleReporterPercentMode(t *testing.T) {
	var b strings.Builder
	rep := ConsoleReporter{W: &b}

	if err := rep.Report(25, 100); err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if got := b.String(); got != "\r25%" {
		t.Fatalf("console output = %q", got)
	}

	rep.Done()
	if !strings.HasSuffix(b.String(), "\n") {
		t.Fatal("Done did not terminate the progress line")
	}
}

func TestConsoleReporterFallsBackToByteCount(t *testing.T) {
	var b strings.Builder
	rep := ConsoleReporter{W: &b}

	if err := rep.Report(3*MiB, 0); err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if got := b.String(); !strings.Contains(got, "3.00 MiB") {
		t.Fatalf("console output = %q, want pretty byte count", got)
	}
}

func TestNopReporterIsSilent(t *testing.T) {
	rep := NopReporter{}
	if err := rep.Report(1, 2); err != nil {
		t.Fatalf("nop reporter returned error: %v", err)
	}
	rep.Done()
}
