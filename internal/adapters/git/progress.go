package git

import (
	"bytes"
	"strconv"
	"strings"
	"sync"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
)

// progressPhase weights one git transfer phase into a span of the single
// 0..100 scale reported upward. Receiving dominates because it moves the
// bytes; the bookkeeping phases get narrow spans.
type progressPhase struct {
	prefix string
	base   int
	span   int
}

var transferPhases = []progressPhase{
	{"Counting objects", 0, 5},
	{"Enumerating objects", 0, 5},
	{"Compressing objects", 5, 5},
	{"Receiving objects", 10, 70},
	{"Writing objects", 10, 80},
	{"Resolving deltas", 80, 15},
	{"Updating files", 95, 5},
	{"Checking out files", 95, 5},
}

// progressWriter parses `git --progress` stderr while teeing the raw
// bytes into a buffer for error mapping. Git redraws progress lines with
// carriage returns, so both \r and \n terminate a line. Reported percent
// never regresses even when phases interleave.
type progressWriter struct {
	fn  core.ProgressFunc
	buf *bytes.Buffer

	mu      sync.Mutex
	partial []byte
	last    int
}

func newProgressWriter(fn core.ProgressFunc, buf *bytes.Buffer) *progressWriter {
	return &progressWriter{fn: fn, buf: buf}
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for _, b := range p {
		if b == '\r' || b == '\n' {
			w.flushLine()
			continue
		}
		w.partial = append(w.partial, b)
	}
	return len(p), nil
}

// Flush parses any trailing unterminated line.
func (w *progressWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushLine()
}

func (w *progressWriter) flushLine() {
	if len(w.partial) == 0 {
		return
	}
	line := string(w.partial)
	w.partial = w.partial[:0]
	pct, ok := parseProgressLine(line)
	if !ok || pct <= w.last {
		return
	}
	w.last = pct
	if w.fn != nil {
		w.fn(pct)
	}
}

// parseProgressLine maps one stderr line onto the weighted 0..100 scale.
// Lines that are not progress output return ok=false.
func parseProgressLine(line string) (int, bool) {
	line = strings.TrimSpace(line)
	// Server-side counting arrives as "remote: Counting objects: ...".
	line = strings.TrimPrefix(line, "remote: ")
	for _, phase := range transferPhases {
		if !strings.HasPrefix(line, phase.prefix) {
			continue
		}
		rest := line[len(phase.prefix):]
		i := strings.IndexByte(rest, '%')
		if i < 0 {
			// Counting-style lines have no percentage; report the phase
			// floor so early activity still moves the bar.
			return phase.base, phase.base > 0
		}
		j := strings.LastIndexByte(rest[:i], ' ')
		pct, err := strconv.Atoi(strings.TrimSpace(rest[j+1 : i]))
		if err != nil || pct < 0 || pct > 100 {
			return 0, false
		}
		return phase.base + pct*phase.span/100, true
	}
	return 0, false
}
