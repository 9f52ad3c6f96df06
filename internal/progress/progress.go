// Package progress renders terminal progress bars for long-running
// pipeline stages.
package progress

import (
	"os"

	"github.com/schollz/progressbar/v3"
)

// Bar tracks progress over a fixed number of steps. A nil *Bar is valid
// and does nothing, so callers do not have to branch on quiet mode.
type Bar struct {
	bar *progressbar.ProgressBar
}

// New returns a bar with max steps described by description. When quiet is
// true the bar renders nothing.
func New(max int, description string, quiet bool) *Bar {
	if quiet {
		return &Bar{bar: progressbar.DefaultSilent(int64(max))}
	}
	return &Bar{bar: progressbar.NewOptions(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
	)}
}

// Add advances the bar by n steps.
func (b *Bar) Add(n int) {
	if b == nil || b.bar == nil {
		return
	}
	_ = b.bar.Add(n)
}

// Finish completes the bar and clears it from the terminal.
func (b *Bar) Finish() {
	if b == nil || b.bar == nil {
		return
	}
	_ = b.bar.Finish()
}
