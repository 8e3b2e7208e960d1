package shell

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/term"

	"github.com/studiowebux/restsh/internal/history"
)

// lineReader returns one command line per call, showing prompt first.
// io.EOF ends the session.
type lineReader interface {
	readLine(prompt string) (string, error)
}

type scannerReader struct {
	scanner *bufio.Scanner
	out     io.Writer
}

func newScannerReader(in io.Reader, out io.Writer) *scannerReader {
	return &scannerReader{scanner: bufio.NewScanner(in), out: out}
}

func (r *scannerReader) readLine(prompt string) (string, error) {
	if prompt != "" {
		_, _ = io.WriteString(r.out, prompt)
	}
	if r.scanner.Scan() {
		return r.scanner.Text(), nil
	}
	if err := r.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// Terminal reads command lines with line editing. The up and down keys
// recall the shell history, including the lines loaded from the history
// store.
type Terminal struct {
	fd   int
	term *term.Terminal

	mu  sync.Mutex
	raw *term.State
}

// NewTerminal edits lines on rw. When fd is a terminal it is put in raw
// mode for the duration of each read; pass -1 when rw is not backed by one.
func NewTerminal(rw io.ReadWriter, fd int) *Terminal {
	return &Terminal{fd: fd, term: term.NewTerminal(rw, "")}
}

func (t *Terminal) readLine(prompt string) (string, error) {
	if t.fd >= 0 && term.IsTerminal(t.fd) {
		if err := t.makeRaw(); err != nil {
			return "", err
		}
		defer func() { _ = t.Close() }()
		if width, height, err := term.GetSize(t.fd); err == nil {
			_ = t.term.SetSize(width, height)
		}
	}
	t.term.SetPrompt(prompt)
	line, err := t.term.ReadLine()
	if errors.Is(err, term.ErrPasteIndicator) {
		err = nil
	}
	return line, err
}

func (t *Terminal) makeRaw() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, err := term.MakeRaw(t.fd)
	if err != nil {
		return fmt.Errorf("failed to set raw mode: %w", err)
	}
	t.raw = state
	return nil
}

// Close restores the terminal when it is left in raw mode by an
// interrupted read.
func (t *Terminal) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.raw == nil {
		return nil
	}
	err := term.Restore(t.fd, t.raw)
	t.raw = nil
	return err
}

func (t *Terminal) recall(buf *history.Buffer) {
	t.term.History = recallHistory{buf}
}

// recallHistory exposes the shell history to the line editor. Lines are
// recorded by the shell itself, so Add is a no-op.
type recallHistory struct {
	*history.Buffer
}

func (recallHistory) Add(string) {}
