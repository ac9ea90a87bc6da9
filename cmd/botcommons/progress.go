package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// reporter counts resolved requests on a progress bar. Without a terminal
// it does nothing.
type reporter struct {
	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

func newReporter(w io.Writer, total int, enabled bool) *reporter {
	if !enabled || !isTerminal(w) {
		return &reporter{}
	}

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("dispatching"),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)

	return &reporter{bar: bar}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Add marks one request resolved. Callbacks call it concurrently.
func (r *reporter) Add() {
	if r.bar == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.bar.Add(1)
}

func (r *reporter) Finish() {
	if r.bar == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.bar.Finish()
}
