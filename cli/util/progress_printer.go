package util

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// ProgressPrinter draws a spinner after a message so that the operator knows
// a slow step, such as RSA key generation, isn't stalled.
type ProgressPrinter struct {
	out      io.Writer
	msg      string
	interval time.Duration
	stop     chan struct{}
	stopped  chan struct{}
}

// NewProgressPrinter creates a new ProgressPrinter that advances the spinner
// every interval.
func NewProgressPrinter(out io.Writer, msg string, interval time.Duration) ProgressPrinter {
	return ProgressPrinter{out, msg, interval, make(chan struct{}), make(chan struct{})}
}

var spinnerChars = []string{"/", "-", "\\", "|"}

// Run prints until Stop is called.
func (pp ProgressPrinter) Run() {
	defer close(pp.stopped)
	poll := time.NewTicker(pp.interval)
	defer poll.Stop()

	ticks := 0
	// Print an extra space for the spinner character to go.
	fmt.Fprint(pp.out, pp.msg+"  ")
	for {
		select {
		case <-pp.stop:
			return
		case <-poll.C:
			ticks++
			fmt.Fprint(pp.out, "\b"+spinnerChars[ticks%len(spinnerChars)])
		}
	}
}

// Stop stops printing. After it returns, ProgressPrinter won't print anything
// more.
func (pp ProgressPrinter) Stop() {
	close(pp.stop)
	<-pp.stopped
	fmt.Fprint(pp.out, "\b \n")
}

// WithProgress runs fn. If spin is set, a spinner is shown next to msg while
// fn runs; otherwise msg is printed on its own line first.
func WithProgress(out io.Writer, msg string, spin bool, fn func() error) error {
	if !spin {
		fmt.Fprintln(out, msg)
		return fn()
	}

	pp := NewProgressPrinter(out, msg, time.Second/4)
	go pp.Run()
	defer pp.Stop()
	return fn()
}

// IsTerminal reports whether w is a terminal, in which case spinners make
// sense.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
