// Package card implements the guarded raw-copy engine: heuristic detection of
// removable memory cards, unmounting of anything mounted from the target
// device, and the chunked transfer loop with progress accounting.
package card

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// DefaultMaxCardSize is the capacity ceiling above which a device is assumed
// to be a fixed internal disk rather than a removable card. It is a guess,
// which is why Detector lets callers override it.
const DefaultMaxCardSize = 32 * GiB

// maxCandidates bounds the detection scan. More passing devices than this
// means something is badly wrong with the host, so detection gives up rather
// than guess.
const maxCandidates = 64

// ErrNoCard is returned when no enumerated path passes the probe.
var ErrNoCard = errors.New("no memory cards found")

// Candidate is a block device that passed the probe.
type Candidate struct {
	Path string
	Size uint64
}

// AmbiguousError reports that more than one plausible card was found. The
// caller must list the candidates and require an explicit choice.
type AmbiguousError struct {
	Candidates []Candidate
}

func (e *AmbiguousError) Error() string {
	paths := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		paths[i] = c.Path
	}
	return fmt.Sprintf("%d possible memory cards found: %s", len(e.Candidates), strings.Join(paths, ", "))
}

// Enumerator yields the device paths worth probing on this platform.
type Enumerator interface {
	Paths() []string
}

// LinuxEnumerator lists the USB disk and SD controller naming ranges used on
// Linux. /dev/sda is skipped: it is the system boot disk in practice and
// never a card worth overwriting.
type LinuxEnumerator struct{}

func (LinuxEnumerator) Paths() []string {
	var paths []string
	for c := 'b'; c < 'z'; c++ {
		paths = append(paths, fmt.Sprintf("/dev/sd%c", c))
	}
	for i := 0; i < 16; i++ {
		paths = append(paths, fmt.Sprintf("/dev/mmcblk%d", i))
	}
	return paths
}

// Detector scans for plausible memory cards. Every call probes live system
// state; nothing is cached between calls.
type Detector struct {
	Fs   afero.Fs
	Enum Enumerator
	// MaxCardSize overrides the capacity ceiling. Zero means
	// DefaultMaxCardSize.
	MaxCardSize uint64
	Log         logrus.FieldLogger
}

// NewDetector returns a detector wired to the live system.
func NewDetector() *Detector {
	return &Detector{Fs: afero.NewOsFs(), Enum: LinuxEnumerator{}}
}

// Find returns the single detected card. Zero candidates yields ErrNoCard;
// more than one yields *AmbiguousError carrying the full list so the operator
// can pick explicitly next run.
func (d *Detector) Find() (Candidate, error) {
	candidates, err := d.List()
	if err != nil {
		return Candidate{}, err
	}
	switch len(candidates) {
	case 0:
		return Candidate{}, ErrNoCard
	case 1:
		return candidates[0], nil
	default:
		return Candidate{}, &AmbiguousError{Candidates: candidates}
	}
}

// List probes every enumerated path and returns all that look like cards.
func (d *Detector) List() ([]Candidate, error) {
	var candidates []Candidate
	for _, path := range d.Enum.Paths() {
		size, reason := d.Probe(path)
		if reason != "" {
			d.log().WithField("path", path).Debug(reason)
			continue
		}
		if len(candidates) == maxCandidates {
			return nil, fmt.Errorf("more than %d possible memory cards; refusing to guess", maxCandidates)
		}
		candidates = append(candidates, Candidate{Path: path, Size: size})
	}
	return candidates, nil
}

// Probe checks a single device path. A non-empty reason means the path is not
// a usable card.
func (d *Detector) Probe(path string) (size uint64, reason string) {
	f, err := d.Fs.Open(path)
	if err != nil {
		return 0, "not present"
	}
	defer f.Close()

	n, err := deviceSize(f)
	if err != nil {
		return 0, "size unreadable"
	}
	if n == 0 {
		return 0, "empty device"
	}
	max := d.MaxCardSize
	if max == 0 {
		max = DefaultMaxCardSize
	}
	if n > max {
		return 0, fmt.Sprintf("larger than %s, assuming fixed disk", PrettySize(max))
	}
	return n, ""
}

func (d *Detector) log() logrus.FieldLogger {
	if d.Log != nil {
		return d.Log
	}
	return discardLog
}
