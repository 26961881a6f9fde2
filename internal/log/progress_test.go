package log

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgress_Live(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, "import", 4, true)
	start := p.start
	p.now = func() time.Time { return start.Add(2 * time.Second) }

	p.Increment("VOO")
	assert.Contains(t, buf.String(), "import [█████░░░░░░░░░░░░░░░] 1/4 (25.0%)")
	assert.Contains(t, buf.String(), "ETA: 6s")
	assert.Contains(t, buf.String(), "- VOO")

	p.Finish("done")
	assert.Contains(t, buf.String(), "import: done (1/4, 2s)\n")
}

func TestProgress_NotLive(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, "import", 2, false)
	p.Increment("A")
	p.Increment("B")
	assert.Empty(t, buf.String())

	p.Finish("ok")
	assert.Contains(t, buf.String(), "import: ok (2/2,")
	assert.NotContains(t, buf.String(), "\r")
}
