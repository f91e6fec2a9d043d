// Package progress shows how far a fetch has got.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

const barWidth = 30

// Bar redraws a single line on a terminal. Elsewhere it writes a line at
// each tenth of the total, so that redirected output stays readable.
type Bar struct {
	mu    sync.Mutex
	w     io.Writer
	tty   bool
	label string
	step  int
	drawn bool
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// New draws on f, as a bar only if f is a terminal.
func New(f *os.File, label string) *Bar {
	return NewWriter(f, IsTerminal(f), label)
}

func NewWriter(w io.Writer, tty bool, label string) *Bar {
	return &Bar{w: w, tty: tty, label: label}
}

// Update has the signature of the elevation client's progress hook.
func (b *Bar) Update(done, total int) {
	if total <= 0 {
		return
	}
	done = min(max(done, 0), total)
	b.mu.Lock()
	defer b.mu.Unlock()
	pct := 100 * done / total
	if b.tty {
		n := barWidth * done / total
		fmt.Fprintf(b.w, "\r%s [%s%s] %s/%s %3d%%", b.label,
			strings.Repeat("#", n), strings.Repeat(" ", barWidth-n),
			humanize.Comma(int64(done)), humanize.Comma(int64(total)), pct)
		b.drawn = true
		return
	}
	if step := pct / 10; step > b.step {
		b.step = step
		fmt.Fprintf(b.w, "%s: %s of %s (%d%%)\n", b.label,
			humanize.Comma(int64(done)), humanize.Comma(int64(total)), pct)
	}
}

// Finish ends the bar's line, if one was drawn.
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tty && b.drawn {
		fmt.Fprintln(b.w)
		b.drawn = false
	}
}
