package log

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Progress renders a single-line progress bar for batch CLI work such as price imports.
// When the destination is not a terminal only the final line is written.
type Progress struct {
	mu      sync.Mutex
	out     io.Writer
	name    string
	total   int
	current int
	live    bool
	start   time.Time
	now     func() time.Time
}

// NewProgress creates a progress bar over total items. live enables in-place redraws.
func NewProgress(out io.Writer, name string, total int, live bool) *Progress {
	return &Progress{out: out, name: name, total: total, live: live, start: time.Now(), now: time.Now}
}

// Increment advances by one item and redraws with msg.
func (p *Progress) Increment(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current++
	if p.live {
		fmt.Fprint(p.out, "\r\033[K"+p.line(msg))
	}
}

// Finish writes the completion line.
func (p *Progress) Finish(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prefix := ""
	if p.live {
		prefix = "\r\033[K"
	}
	elapsed := p.now().Sub(p.start).Round(time.Millisecond)
	fmt.Fprintf(p.out, "%s%s: %s (%d/%d, %v)\n", prefix, p.name, msg, p.current, p.total, elapsed)
}

func (p *Progress) line(msg string) string {
	var b strings.Builder
	b.WriteString(p.name)

	if p.total > 0 {
		const width = 20
		filled := width * p.current / p.total
		if filled > width {
			filled = width
		}
		b.WriteString(" [")
		b.WriteString(strings.Repeat("█", filled))
		b.WriteString(strings.Repeat("░", width-filled))
		fmt.Fprintf(&b, "] %d/%d (%.1f%%)", p.current, p.total, float64(p.current)/float64(p.total)*100)

		if p.current > 0 && p.current < p.total {
			elapsed := p.now().Sub(p.start)
			eta := time.Duration(float64(elapsed) / float64(p.current) * float64(p.total-p.current))
			fmt.Fprintf(&b, " ETA: %v", eta.Round(time.Second))
		}
	}

	if msg != "" {
		b.WriteString(" - ")
		b.WriteString(msg)
	}
	return b.String()
}
