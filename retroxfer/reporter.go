package retroxfer

import (
	"fmt"
	"time"
)

// Reporter adapts the UI to the transfer engine's progress contract: it is
// called with cumulative bytes after every flushed chunk and turns that into
// map cells and a status line. When the user has requested a stop it returns
// ErrInterrupted so the engine aborts.
type Reporter struct {
	ui        *UI
	chunkSize uint64
	total     uint64
	started   time.Time
}

// NewReporter sizes the UI's transfer map for total bytes moved in chunkSize
// pieces and returns the reporter driving it.
func NewReporter(ui *UI, total uint64, chunkSize int) *Reporter {
	ui.SetChunks(chunksFor(total, uint64(chunkSize)))
	return &Reporter{
		ui:        ui,
		chunkSize: uint64(chunkSize),
		total:     total,
		started:   time.Now(),
	}
}

func chunksFor(total, chunkSize uint64) int {
	if chunkSize == 0 {
		return 0
	}
	return int((total + chunkSize - 1) / chunkSize)
}

func (r *Reporter) Report(done, total uint64) error {
	if r.ui.IsStopped() {
		return ErrInterrupted
	}

	// A partial final chunk still fills its cell once those bytes are down.
	r.ui.MarkChunks(chunksFor(done, r.chunkSize))

	pct := 0
	if total > 0 {
		pct = int(100 * done / total)
	}
	elapsed := time.Since(r.started).Round(time.Second)
	status := fmt.Sprintf("%3d%%   %s / %s   elapsed %s", pct, human(done), human(total), elapsed)
	if secs := time.Since(r.started).Seconds(); secs > 0.5 && done > 0 {
		status += fmt.Sprintf("   %s/s", human(uint64(float64(done)/secs)))
	}
	r.ui.SetStatus(status)
	r.ui.Draw()
	return nil
}

// Done leaves the finished map on screen; the caller decides when to tear the
// terminal down.
func (r *Reporter) Done() {
	r.ui.Draw()
}
