package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{-3 * time.Second, "0s"},
		{42 * time.Second, "42s"},
		{90 * time.Second, "1m30s"},
		{65 * time.Minute, "1h05m"},
		{2*time.Hour + 7*time.Minute, "2h07m"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1536, "1.5 KiB"},
		{2048, "2.0 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
		{3 * 1024 * 1024 * 1024, "3.0 GiB"},
	}

	for _, tt := range tests {
		if got := formatBytes(tt.n); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestStatusIcon(t *testing.T) {
	tests := []struct {
		status core.TaskStatus
		want   string
	}{
		{core.TaskStatusQueued, "○"},
		{core.TaskStatusRunning, "●"},
		{core.TaskStatusCompleted, "✓"},
		{core.TaskStatusFailed, "✗"},
		{core.TaskStatusCancelled, "⊘"},
		{core.TaskStatusTimedOut, "⧗"},
		{core.TaskStatus("bogus"), "?"},
	}

	for _, tt := range tests {
		if got := statusIcon(tt.status); got != tt.want {
			t.Errorf("statusIcon(%q) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("0195c2f3-8a51-7c9e-b8f0-1a2b3c4d5e6f"); got != "0195c2f3" {
		t.Errorf("shortID = %q, want %q", got, "0195c2f3")
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID = %q, want %q", got, "abc")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"this is a long string", 10, "this is..."},
		{"ab", 2, "ab"},
		{"abcd", 3, "abc"},
	}

	for _, tt := range tests {
		if got := Truncate(tt.input, tt.width); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.input, tt.width, got, tt.want)
		}
	}
}

func TestRenderProgressBar(t *testing.T) {
	if got := renderProgressBar(0, 10); got != strings.Repeat("░", 10) {
		t.Errorf("empty bar = %q", got)
	}
	if got := renderProgressBar(50, 10); got != strings.Repeat("█", 5)+strings.Repeat("░", 5) {
		t.Errorf("half bar = %q", got)
	}
	if got := renderProgressBar(100, 10); got != strings.Repeat("█", 10) {
		t.Errorf("full bar = %q", got)
	}
	if got := renderProgressBar(150, 4); got != strings.Repeat("█", 4) {
		t.Errorf("overflow bar = %q", got)
	}
	if got := renderProgressBar(-5, 4); got != strings.Repeat("░", 4) {
		t.Errorf("underflow bar = %q", got)
	}
}
