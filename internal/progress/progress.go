// Package progress reports file output progress on a terminal.
package progress

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// Bar counts written files. A nil *Bar is valid and reports nothing.
type Bar struct {
	bar *progressbar.ProgressBar
}

// New returns a bar for total steps written to w, or nil when w is nil.
func New(w io.Writer, total int, description string) *Bar {
	if w == nil {
		return nil
	}
	return &Bar{bar: progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetPredictTime(false),
	)}
}

func (b *Bar) Add(n int) {
	if b == nil {
		return
	}
	_ = b.bar.Add(n)
}

func (b *Bar) Describe(description string) {
	if b == nil {
		return
	}
	b.bar.Describe(description)
}

func (b *Bar) Finish() {
	if b == nil {
		return
	}
	_ = b.bar.Finish()
}
