package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressReporter_OneBarPerPhase(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressReporter(&buf)

	p.Report("forecast", 1, 2)
	p.Report("forecast", 2, 2)
	p.Report("optimize", 1, 1)

	assert.Len(t, p.bars, 2)
	assert.Contains(t, buf.String(), "forecast")
	assert.Contains(t, buf.String(), "optimize")
}
