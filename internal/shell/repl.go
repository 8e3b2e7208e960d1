package shell

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/studiowebux/restsh/internal/history"
	"github.com/studiowebux/restsh/internal/render"
)

// Start reads lines from in until it is exhausted, a quit command is
// entered or ctx is cancelled. Lines entered are recorded in the history
// and written to the history store on return.
func (s *Shell) Start(ctx context.Context, in io.Reader) error {
	return s.loop(ctx, newScannerReader(in, s.out))
}

// StartTerminal is Start with line editing and history recall on t.
func (s *Shell) StartTerminal(ctx context.Context, t *Terminal) error {
	t.recall(s.history)
	return s.loop(ctx, t)
}

type readResult struct {
	line string
	err  error
}

func (s *Shell) loop(ctx context.Context, r lineReader) error {
	s.loadHistory()
	defer s.saveHistory()

	// The reader only reads when asked, so nothing is consumed past a quit.
	done := make(chan struct{})
	defer close(done)
	prompts := make(chan string)
	results := make(chan readResult)
	go func() {
		for {
			select {
			case prompt := <-prompts:
				line, err := r.readLine(prompt)
				select {
				case results <- readResult{line: line, err: err}:
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		prompt := ""
		if s.interact {
			prompt = render.Prompt(s.state.Current, s.state.Options.Color)
		}
		select {
		case prompts <- prompt:
		case <-ctx.Done():
			s.endPrompt()
			return nil
		}

		select {
		case <-ctx.Done():
			s.endPrompt()
			return nil
		case res := <-results:
			if res.err != nil {
				s.endPrompt()
				if errors.Is(res.err, io.EOF) {
					return nil
				}
				return fmt.Errorf("failed to read input: %w", res.err)
			}
			s.history.Add(res.line)
			if outcome := s.RunLine(ctx, res.line); outcome.Quit {
				return nil
			}
		}
	}
}

func (s *Shell) endPrompt() {
	if s.interact {
		_, _ = io.WriteString(s.out, "\n")
	}
}

func (s *Shell) loadHistory() {
	if s.store == nil {
		return
	}
	entries, err := s.store.Load(history.MaxEntries)
	if err != nil {
		s.logger.Debug("history load failed", zap.Error(err))
		s.renderer.Warning("history unavailable: "+err.Error(), s.state.Options.Color)
		return
	}
	s.history.Seed(entries)
}

func (s *Shell) saveHistory() {
	if err := s.history.Flush(s.store); err != nil {
		s.logger.Debug("history flush failed", zap.Error(err))
		s.renderer.Warning("failed to save history: "+err.Error(), s.state.Options.Color)
	}
}
