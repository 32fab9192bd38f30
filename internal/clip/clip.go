// Package clip copies small values (task IDs, commit OIDs) to the user's
// clipboard with graceful degradation for headless and SSH sessions.
package clip

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	atotto "github.com/atotto/clipboard"
	osc52 "github.com/aymanbagabas/go-osc52/v2"
	"golang.org/x/term"
)

// Method is the mechanism that made the content copyable. MethodFile
// means no clipboard was reachable and the content landed in a temp file.
type Method string

const (
	MethodNative Method = "native" // OS clipboard via github.com/atotto/clipboard
	MethodOSC52  Method = "osc52"  // terminal clipboard escape, works over SSH
	MethodFile   Method = "file"   // temp file fallback
)

// Result reports how the content was delivered.
type Result struct {
	Method   Method
	FilePath string // only set when Method == MethodFile
}

// Injection points for tests.
var (
	nativeWriteAll = func(text string) error { return atotto.WriteAll(text) }
	osc52WriteAll  = writeAllOSC52
)

// WriteAll copies text, trying the native clipboard first, then the
// OSC52 terminal sequence (the only option inside a plain SSH session),
// then a temp file.
func WriteAll(text string) (Result, error) {
	if err := nativeWriteAll(text); err == nil {
		return Result{Method: MethodNative}, nil
	}

	if err := osc52WriteAll(text); err == nil {
		return Result{Method: MethodOSC52}, nil
	}

	path, err := writeTempFile(text)
	if err != nil {
		return Result{}, err
	}
	return Result{Method: MethodFile, FilePath: path}, nil
}

// Terminals enforce their own OSC52 payload ceilings; stay well under.
const osc52LimitBytes = 100_000

func writeAllOSC52(text string) error {
	if text == "" {
		return errors.New("empty clipboard text")
	}
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return errors.New("stderr is not a terminal")
	}
	if len(text) > osc52LimitBytes {
		return fmt.Errorf("text too large for OSC52 (%d bytes > %d)", len(text), osc52LimitBytes)
	}

	seq := osc52.New(text).Limit(osc52LimitBytes)
	if os.Getenv("TMUX") != "" {
		seq = seq.Tmux()
	} else if os.Getenv("STY") != "" {
		seq = seq.Screen()
	}

	// stderr: stdout may belong to a TUI renderer or a JSON consumer.
	_, err := seq.WriteTo(os.Stderr)
	return err
}

func writeTempFile(text string) (string, error) {
	f, err := os.CreateTemp("", fmt.Sprintf("gitmcp-clip-%d-*.txt", time.Now().UnixNano()))
	if err != nil {
		return "", err
	}
	path := f.Name()
	defer func() {
		_ = f.Close()
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	if _, err = f.WriteString(text); err != nil {
		return "", err
	}
	if err = f.Close(); err != nil {
		return "", err
	}
	return filepath.Clean(path), nil
}
