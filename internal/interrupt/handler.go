// Package interrupt implements two-step Ctrl+C handling for a formatting run.
// The first signal cancels the run context so the chunks already formatted can
// be saved; a second signal within the window exits immediately.
package interrupt

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Decision is what to do with partial output after the first Ctrl+C.
type Decision int

const (
	// KeepPartial saves the chunks formatted before the interrupt.
	KeepPartial Decision = iota
	// Discard drops everything.
	Discard
)

// String returns the string representation of the Decision.
func (d Decision) String() string {
	switch d {
	case KeepPartial:
		return "KeepPartial"
	case Discard:
		return "Discard"
	default:
		return fmt.Sprintf("Decision(%d)", d)
	}
}

// ExitCode is the exit code for interrupt (130 = 128 + SIGINT).
const ExitCode = 130

// DefaultWindow is how long a second Ctrl+C counts as "abort".
const DefaultWindow = 2 * time.Second

const (
	firstNotice  = "\nInterrupted: stopping the run. Press Ctrl+C again to abort without saving."
	abortMessage = "\nAborted."
)

// Handler tracks interrupts for one run.
type Handler struct {
	mu             sync.Mutex
	firstInterrupt time.Time
	interrupted    bool
	aborted        bool
	stopped        bool
	cancel         context.CancelFunc
	abortCh        chan struct{} // closed on second interrupt
	done           chan struct{} // closed by Stop

	window   time.Duration
	exitFunc func(int)
	nowFunc  func() time.Time
	stderr   io.Writer
}

// Options holds injectable dependencies for testing.
type Options struct {
	SigCh    <-chan os.Signal
	ExitFunc func(int)
	NowFunc  func() time.Time
	// Stderr must be safe for concurrent writes. Defaults to os.Stderr.
	Stderr io.Writer
	// Window defaults to DefaultWindow.
	Window time.Duration
}

// NewHandler creates a handler that listens for SIGINT/SIGTERM.
// The returned context is canceled on the first interrupt.
func NewHandler(parent context.Context) (*Handler, context.Context) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return NewHandlerWithOptions(parent, Options{SigCh: sigCh})
}

// NewHandlerWithOptions creates a handler with injectable dependencies.
func NewHandlerWithOptions(parent context.Context, opts Options) (*Handler, context.Context) {
	ctx, cancel := context.WithCancel(parent)

	h := &Handler{
		cancel:   cancel,
		abortCh:  make(chan struct{}),
		done:     make(chan struct{}),
		window:   opts.Window,
		exitFunc: opts.ExitFunc,
		nowFunc:  opts.NowFunc,
		stderr:   opts.Stderr,
	}
	if h.window <= 0 {
		h.window = DefaultWindow
	}
	if h.exitFunc == nil {
		h.exitFunc = os.Exit
	}
	if h.nowFunc == nil {
		h.nowFunc = time.Now
	}
	if h.stderr == nil {
		h.stderr = os.Stderr
	}

	if opts.SigCh != nil {
		go h.listen(opts.SigCh)
	}
	return h, ctx
}

func (h *Handler) listen(sigCh <-chan os.Signal) {
	for {
		select {
		case <-h.done:
			return
		case _, ok := <-sigCh:
			if !ok {
				return
			}
			if h.handle() {
				return
			}
		}
	}
}

// handle processes one signal and reports whether listening should end.
func (h *Handler) handle() bool {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return true
	}
	now := h.nowFunc()

	if !h.interrupted {
		h.interrupted = true
		h.firstInterrupt = now
		h.cancel()
		h.mu.Unlock()
		fmt.Fprintln(h.stderr, firstNotice)
		return false
	}

	if now.Sub(h.firstInterrupt) > h.window {
		h.mu.Unlock()
		return false
	}

	h.aborted = true
	close(h.abortCh)
	h.mu.Unlock()

	fmt.Fprintln(h.stderr, abortMessage)
	h.exitFunc(ExitCode)
	return true
}

// Interrupted reports whether at least one interrupt was received.
func (h *Handler) Interrupted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interrupted
}

// Decide waits out the rest of the interrupt window and returns Discard if a
// second Ctrl+C arrives in it. Without a prior interrupt it returns KeepPartial
// immediately. message is shown while waiting.
func (h *Handler) Decide(message string) Decision {
	h.mu.Lock()
	if !h.interrupted {
		h.mu.Unlock()
		return KeepPartial
	}
	if h.aborted {
		h.mu.Unlock()
		return Discard
	}
	remaining := h.window - h.nowFunc().Sub(h.firstInterrupt)
	h.mu.Unlock()

	if remaining <= 0 {
		return KeepPartial
	}

	if message != "" {
		fmt.Fprintln(h.stderr, message)
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-h.abortCh:
		return Discard
	case <-timer.C:
		return KeepPartial
	}
}

// Stop releases the signal handler. Safe to call more than once.
func (h *Handler) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	h.mu.Unlock()

	signal.Reset(syscall.SIGINT, syscall.SIGTERM)
	close(h.done)
}
