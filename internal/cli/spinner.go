package cli

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// spinnerFrames is the 4-symbol cycle shown on interactive streams.
var spinnerFrames = []string{"|", "/", "-", "\\"}

// Spinner is a liveness indicator that runs concurrently with a long
// blocking operation. On interactive streams it cycles through a small
// frame set using a backspace-overwrite pattern; on non-interactive
// streams (pipes, log files) it degrades to a repeated dot.
//
// Cancellation is an explicit token: the spinner observes its context on
// every tick, so an external interrupt terminates it within one interval
// and is visible to the caller via Cancelled.
type Spinner struct {
	out         io.Writer
	interval    time.Duration
	interactive bool

	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc

	done    chan struct{}
	stopped chan struct{}

	mu    sync.Mutex
	wrote bool
}

// newSpinner creates a spinner writing to out on the given interval.
func newSpinner(out io.Writer, interval time.Duration) *Spinner {
	return newSpinnerWithContext(context.Background(), out, interval)
}

// newSpinnerWithContext creates a spinner that also stops when ctx is
// cancelled.
func newSpinnerWithContext(ctx context.Context, out io.Writer, interval time.Duration) *Spinner {
	if interval <= 0 {
		interval = progressInterval
	}
	spinnerCtx, cancel := context.WithCancel(ctx)
	return &Spinner{
		out:         out,
		interval:    interval,
		interactive: isInteractive(out),
		parent:      ctx,
		ctx:         spinnerCtx,
		cancel:      cancel,
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
}

// Start begins emitting progress glyphs on the spinner's own schedule.
// It never blocks the caller.
func (s *Spinner) Start() {
	go func() {
		defer close(s.stopped)
		defer s.finish()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		i := 0
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-s.done:
				return
			case <-ticker.C:
				s.tick(i)
				i++
			}
		}
	}()
}

// Stop signals the spinner and waits for its termination, so no glyph can
// interleave with output printed after Stop returns. Latency is bounded
// by one interval. Stop is idempotent.
func (s *Spinner) Stop() {
	s.cancel()
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	<-s.stopped
}

// Cancelled reports whether the spinner's parent context was cancelled,
// as opposed to an ordinary Stop.
func (s *Spinner) Cancelled() bool {
	return s.parent.Err() != nil
}

// tick writes one progress glyph and leaves the stream flushed (the
// writers used here are unbuffered).
func (s *Spinner) tick(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.interactive {
		fmt.Fprint(s.out, ".")
		s.wrote = true
		return
	}
	if s.wrote {
		fmt.Fprint(s.out, "\b")
	}
	fmt.Fprint(s.out, styleIconSpinner.Render(spinnerFrames[i%len(spinnerFrames)]))
	s.wrote = true
}

// finish terminates the display with a newline if anything was written.
func (s *Spinner) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wrote {
		fmt.Fprintln(s.out)
	}
}

// isInteractive reports whether w is a terminal supporting cursor control.
func isInteractive(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
