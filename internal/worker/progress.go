package worker

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// renderInterval throttles the progress line. Seed runs can cover
// millions of tiles; rendering on every completion would flood stderr.
const renderInterval = 100 * time.Millisecond

const barWidth = 30

// Progress keeps the counters of a seed or cleanup run and renders a
// single-line display. The final state is always rendered regardless of
// the throttle.
type Progress struct {
	out     io.Writer
	start   time.Time
	enabled bool

	mu         sync.Mutex
	completed  int
	total      int
	failed     int
	lastRender time.Time
}

// NewProgress creates a tracker for total tiles. When enabled is false
// no output is produced and only the counters are kept.
func NewProgress(total int, enabled bool) *Progress {
	return &Progress{
		out:     os.Stderr,
		start:   time.Now(),
		enabled: enabled,
		total:   total,
	}
}

// Update records the counters after a task. It is the pool's progress
// callback and is invoked from a single goroutine.
func (p *Progress) Update(completed, total, failed int) {
	p.mu.Lock()
	p.completed, p.total, p.failed = completed, total, failed

	render := p.enabled && (completed == total || time.Since(p.lastRender) >= renderInterval)
	var line string
	if render {
		p.lastRender = time.Now()
		line = p.line()
	}
	p.mu.Unlock()

	if render {
		fmt.Fprint(p.out, "\r"+line)
	}
}

// Callback returns a ProgressFunc suitable for Pool.Config.
func (p *Progress) Callback() ProgressFunc {
	return p.Update
}

// line builds the display line. Callers hold the mutex.
func (p *Progress) line() string {
	var frac float64
	if p.total > 0 {
		frac = float64(p.completed) / float64(p.total)
	}
	filled := int(frac * barWidth)
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %3.0f%% %d/%d tiles", bar, frac*100, p.completed, p.total)
	if p.failed > 0 {
		fmt.Fprintf(&b, " (%d failed)", p.failed)
	}

	elapsed := time.Since(p.start)
	if p.completed > 0 && elapsed > 0 {
		rate := float64(p.completed) / elapsed.Seconds()
		fmt.Fprintf(&b, " %.1f tiles/sec", rate)
		if remaining := p.total - p.completed; remaining > 0 && rate > 0 {
			eta := time.Duration(float64(remaining)/rate) * time.Second
			fmt.Fprintf(&b, " ETA %s", formatDuration(eta))
		}
	}
	if p.completed == p.total && p.total > 0 {
		fmt.Fprintf(&b, " done in %s", formatDuration(elapsed))
	}

	// Trailing pad clears leftovers from a longer previous line.
	b.WriteString("        ")
	return b.String()
}

// Done renders the final state and terminates the line.
func (p *Progress) Done() {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	line := p.line()
	p.mu.Unlock()
	fmt.Fprint(p.out, "\r"+line+"\n")
}

// Summary returns the end-of-run log line.
func (p *Progress) Summary() string {
	p.mu.Lock()
	completed, total, failed := p.completed, p.total, p.failed
	start := p.start
	p.mu.Unlock()

	elapsed := time.Since(start)
	var rate float64
	if elapsed.Seconds() > 0 {
		rate = float64(completed) / elapsed.Seconds()
	}

	return fmt.Sprintf("Processed %d/%d tiles (%d failed) in %s (%.1f tiles/sec)",
		completed-failed, total, failed, formatDuration(elapsed), rate)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm%ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
