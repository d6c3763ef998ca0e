package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// progressBar draws the batch percentage on a single terminal line. It is a
// no-op when the output is not a terminal.
type progressBar struct {
	out     io.Writer
	enabled bool
	started time.Time

	mu   sync.Mutex
	last int
}

func newProgressBar(out *os.File, enabled bool) *progressBar {
	return &progressBar{
		out:     out,
		enabled: enabled && term.IsTerminal(int(out.Fd())),
		started: time.Now(),
		last:    -1,
	}
}

// Update is the pipeline's progress sink.
func (b *progressBar) Update(percent int) {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if percent == b.last {
		return
	}
	b.last = percent
	fmt.Fprint(b.out, "\r"+renderBar(percent, time.Since(b.started)))
}

func (b *progressBar) Finish() {
	if !b.enabled {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last >= 0 {
		fmt.Fprintln(b.out)
	}
}

// renderBar formats: [=========>          ]  45% | Elapsed: 12s
func renderBar(percent int, elapsed time.Duration) string {
	const barWidth = 30
	percent = max(0, min(percent, 100))

	completedWidth := percent * barWidth / 100
	bar := strings.Repeat("=", completedWidth)
	if completedWidth < barWidth {
		bar += ">" + strings.Repeat(" ", barWidth-completedWidth-1)
	}

	return fmt.Sprintf("[%s] %3d%% | Elapsed: %-8s", bar, percent, elapsed.Truncate(time.Second))
}
