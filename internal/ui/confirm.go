// Package ui asks the device holder to approve withdrawals.
package ui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/manifoldco/promptui"
	"github.com/rs/zerolog"

	"github.com/Klingon-tech/stbtc-signer/internal/log"
)

// Terminal confirms withdrawals with a y/N prompt on a terminal.
//
// A single goroutine owns reads from the input. Each prompt gets its own
// session over that stream, and a cancelled session reads EOF, so an
// abandoned prompt never eats keystrokes meant for the next one.
type Terminal struct {
	in  io.Reader
	out io.WriteCloser

	// run executes the prompt; replaced in tests.
	run func(p *promptui.Prompt) (string, error)

	mu sync.Mutex // one prompt at a time

	pumpOnce sync.Once
	input    chan []byte
	inErr    error

	readMu  sync.Mutex
	pending []byte
}

// NewTerminal returns a confirmer on stdin/stdout.
func NewTerminal() *Terminal {
	return NewTerminalIO(os.Stdin, os.Stdout)
}

// NewTerminalIO returns a confirmer reading from in and writing to out.
// in is never closed.
func NewTerminalIO(in io.Reader, out io.WriteCloser) *Terminal {
	return &Terminal{
		in:    in,
		out:   out,
		run:   func(p *promptui.Prompt) (string, error) { return p.Run() },
		input: make(chan []byte),
	}
}

type answer struct {
	ok  bool
	err error
}

// ConfirmWithdraw shows the amount and redeemer address and waits for y/N.
// Declining or interrupting the prompt returns false with no error. A
// cancelled ctx ends the prompt and returns the context error once the
// prompt has let go of the input.
func (t *Terminal) ConfirmWithdraw(ctx context.Context, amount, address string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return false, err
	}
	t.pumpOnce.Do(func() { go t.pump() })

	fmt.Fprintf(t.out, "\nWithdrawal request\n  Amount:   %s\n  Redeemer: %s\n\n", amount, address)
	sess := &session{t: t, done: make(chan struct{})}
	prompt := &promptui.Prompt{
		Label:     "Sign withdrawal",
		IsConfirm: true,
		Stdin:     sess,
		Stdout:    t.out,
	}

	done := make(chan answer, 1)
	go func() {
		res, err := t.run(prompt)
		done <- decide(res, err)
	}()

	select {
	case a := <-done:
		sess.Close()
		return a.ok, a.err
	case <-ctx.Done():
		sess.Close()
		<-done
		return false, ctx.Err()
	}
}

// pump copies the input into t.input until it fails. A chunk read while
// no prompt is up waits for the next session.
func (t *Terminal) pump() {
	buf := make([]byte, 256)
	for {
		n, err := t.in.Read(buf)
		if n > 0 {
			t.input <- bytes.Clone(buf[:n])
		}
		if err != nil {
			t.inErr = err
			close(t.input)
			return
		}
	}
}

// session is one prompt's view of the terminal input.
type session struct {
	t         *Terminal
	done      chan struct{}
	closeOnce sync.Once
}

func (s *session) Read(p []byte) (int, error) {
	s.t.readMu.Lock()
	defer s.t.readMu.Unlock()

	select {
	case <-s.done:
		return 0, io.EOF
	default:
	}
	if len(s.t.pending) == 0 {
		select {
		case b, ok := <-s.t.input:
			if !ok {
				return 0, s.t.inErr
			}
			s.t.pending = b
		case <-s.done:
			return 0, io.EOF
		}
	}
	n := copy(p, s.t.pending)
	s.t.pending = s.t.pending[n:]
	return n, nil
}

// Close ends the session. The terminal input stays open.
func (s *session) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func decide(res string, err error) answer {
	switch {
	case errors.Is(err, promptui.ErrAbort), errors.Is(err, promptui.ErrInterrupt), errors.Is(err, promptui.ErrEOF):
		return answer{}
	case err != nil:
		return answer{err: fmt.Errorf("confirmation prompt: %w", err)}
	}
	switch strings.ToLower(strings.TrimSpace(res)) {
	case "y", "yes":
		return answer{ok: true}
	default:
		return answer{}
	}
}

// AutoApprove approves every withdrawal without asking. It is meant for
// load tests; the redeemer address is still checked before it is asked.
type AutoApprove struct {
	logger zerolog.Logger
}

// NewAutoApprove returns an approving confirmer that logs each approval.
func NewAutoApprove() *AutoApprove {
	return &AutoApprove{logger: log.Withdraw}
}

// ConfirmWithdraw always returns true.
func (a *AutoApprove) ConfirmWithdraw(_ context.Context, amount, address string) (bool, error) {
	a.logger.Warn().Str("amount", amount).Str("redeemer", address).Msg("Withdrawal auto-approved")
	return true, nil
}
