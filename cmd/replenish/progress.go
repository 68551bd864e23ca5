package main

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// progressReporter draws one bar per batch phase. The orchestrator
// serializes calls, so no locking is needed here.
type progressReporter struct {
	out  io.Writer
	bars map[string]*progressbar.ProgressBar
}

func newProgressReporter(out io.Writer) *progressReporter {
	return &progressReporter{out: out, bars: map[string]*progressbar.ProgressBar{}}
}

func (p *progressReporter) Report(phase string, done, total int) {
	bar, ok := p.bars[phase]
	if !ok {
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(p.out),
			progressbar.OptionSetDescription(phase),
			progressbar.OptionShowCount(),
			progressbar.OptionOnCompletion(func() { _, _ = io.WriteString(p.out, "\n") }),
		)
		p.bars[phase] = bar
	}
	_ = bar.Set(done)
}
