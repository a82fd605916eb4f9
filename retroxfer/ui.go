// Package retroxfer paints a fullscreen, DOS-formatter style view of a raw
// card transfer: a map of the card with one glyph per transferred chunk plus
// live status lines. It knows nothing about devices or copying; the caller
// feeds it chunk counts and status text.
package retroxfer

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
)

// ErrInterrupted is returned when the user requests to stop the transfer.
var ErrInterrupted = errors.New("interrupted")

const (
	glyphDone    = '█'
	glyphPending = '░'
)

// UI is a terminal screen showing one transfer.
type UI struct {
	s        tcell.Screen
	stopChan chan struct{}
	once     sync.Once

	mu      sync.Mutex
	title   string
	summary []string
	legend  string
	chunks  int
	marked  int
	status  string
}

// NewUI creates the UI on the real terminal and starts the input loop.
func NewUI() (*UI, error) {
	s, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	return newUI(s)
}

// NewSimulationUI backs the UI with an off-screen simulation screen, for
// tests.
func NewSimulationUI() (*UI, tcell.SimulationScreen, error) {
	s := tcell.NewSimulationScreen("UTF-8")
	u, err := newUI(s)
	if err != nil {
		return nil, nil, err
	}
	return u, s, nil
}

func newUI(s tcell.Screen) (*UI, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}
	s.DisableMouse()
	u := &UI{
		s:        s,
		stopChan: make(chan struct{}),
	}
	go u.eventLoop()
	return u, nil
}

// Close restores the terminal. Safe to call more than once.
func (u *UI) Close() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.s == nil {
		return
	}
	u.s.Fini()
	u.s = nil
}

// RequestStop signals that the user wants to abort the transfer.
func (u *UI) RequestStop() {
	u.once.Do(func() {
		close(u.stopChan)
	})
}

// IsStopped reports whether a stop was requested.
func (u *UI) IsStopped() bool {
	select {
	case <-u.stopChan:
		return true
	default:
		return false
	}
}

// SetTitle sets the centered title bar text.
func (u *UI) SetTitle(t string) {
	u.mu.Lock()
	u.title = t
	u.mu.Unlock()
}

// SetSummary sets the info lines displayed below the title.
func (u *UI) SetSummary(lines []string) {
	u.mu.Lock()
	u.summary = append([]string(nil), lines...)
	u.mu.Unlock()
}

// SetLegend sets the legend line at the bottom of the screen.
func (u *UI) SetLegend(l string) {
	u.mu.Lock()
	u.legend = l
	u.mu.Unlock()
}

// SetChunks sets how many cells the transfer map holds in total.
func (u *UI) SetChunks(n int) {
	u.mu.Lock()
	u.chunks = n
	u.mu.Unlock()
}

// MarkChunks records how many cells have been transferred so far. Values are
// clamped to the map size and never move backwards.
func (u *UI) MarkChunks(done int) {
	u.mu.Lock()
	if done > u.chunks {
		done = u.chunks
	}
	if done > u.marked {
		u.marked = done
	}
	u.mu.Unlock()
}

// SetStatus sets the single status line under the transfer map.
func (u *UI) SetStatus(s string) {
	u.mu.Lock()
	u.status = s
	u.mu.Unlock()
}

func putStr(s tcell.Screen, x, y int, str string) {
	w, _ := s.Size()
	for i, r := range []rune(str) {
		pos := x + i
		if pos >= w {
			break
		}
		s.SetContent(pos, y, r, nil, tcell.StyleDefault)
	}
}

// Draw repaints the whole screen from the current state.
func (u *UI) Draw() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.s == nil {
		return
	}
	u.s.Clear()
	w, h := u.s.Size()
	if w <= 0 {
		w = 1
	}

	y := 0
	if u.title != "" {
		putStr(u.s, 0, y, strings.Repeat("═", w))
		putStr(u.s, (w-len(u.title))/2, y, u.title)
		y++
	}
	for _, line := range u.summary {
		if y >= h {
			break
		}
		putStr(u.s, 0, y, line)
		y++
	}
	y++

	// Transfer map: marked cells first, pending cells after, wrapped to the
	// screen width. Leave three rows for the status block and legend.
	if u.chunks > 0 {
		avail := h - y - 3
		if avail < 1 {
			avail = 1
		}
		var b strings.Builder
		for i := 0; i < u.chunks; i++ {
			if i < u.marked {
				b.WriteRune(glyphDone)
			} else {
				b.WriteRune(glyphPending)
			}
		}
		cells := []rune(b.String())
		for row := 0; row < avail && len(cells) > 0 && y < h; row++ {
			n := w
			if n > len(cells) {
				n = len(cells)
			}
			putStr(u.s, 0, y, string(cells[:n]))
			cells = cells[n:]
			y++
		}
	}

	if u.status != "" && y < h {
		putStr(u.s, 0, y, strings.Repeat("─", w))
		putStr(u.s, 2, y, " Status ")
		y++
		if y < h {
			putStr(u.s, 0, y, u.status)
			y++
		}
	}
	if u.legend != "" && h > 0 {
		putStr(u.s, 0, h-1, u.legend)
	}

	u.s.Show()
}

func (u *UI) eventLoop() {
	for {
		u.mu.Lock()
		s := u.s
		u.mu.Unlock()
		if s == nil {
			return
		}
		ev := s.PollEvent()
		switch ev := ev.(type) {
		case *tcell.EventKey:
			switch {
			case ev.Key() == tcell.KeyCtrlC, ev.Key() == tcell.KeyEscape:
				u.RequestStop()
			case ev.Key() == tcell.KeyRune && (ev.Rune() == 'q' || ev.Rune() == 'Q'):
				u.RequestStop()
			}
		case *tcell.EventResize:
			s.Sync()
			u.Draw()
		case nil:
			return
		}
	}
}

// human renders a byte count compactly for the status line.
func human(n uint64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.2fG", float64(n)/float64(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1fM", float64(n)/float64(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%dK", n>>10)
	default:
		return fmt.Sprintf("%dB", n)
	}
}
