package bots

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
)

// Supervisor ties the fleet to the process: it starts every bot, waits
// for a shutdown request and stops them all.
type Supervisor struct {
	manager       *Manager
	out           io.Writer
	exitWhenEmpty bool

	done chan struct{}
	once sync.Once
}

// NewSupervisor writes its progress lines to out. With exitWhenEmpty,
// Run returns right away when no bot is active; otherwise it keeps
// waiting so bots added later through the admin API can run.
func NewSupervisor(m *Manager, out io.Writer, exitWhenEmpty bool) *Supervisor {
	if out == nil {
		out = io.Discard
	}
	return &Supervisor{manager: m, out: out, exitWhenEmpty: exitWhenEmpty, done: make(chan struct{})}
}

// Shutdown asks Run to stop the fleet. Safe to call more than once and
// from any goroutine.
func (s *Supervisor) Shutdown() {
	s.once.Do(func() { close(s.done) })
}

// Done is closed once Shutdown has been called.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Run loads and starts the fleet, then blocks until Shutdown, SIGINT,
// SIGTERM or ctx cancellation, and stops every bot before returning.
func (s *Supervisor) Run(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			slog.Info("received signal", "signal", sig)
			s.Shutdown()
		case <-s.done:
		}
	}()

	rule := strings.Repeat("=", 50)
	fmt.Fprintln(s.out, rule)
	fmt.Fprintln(s.out, "🤖 Multi-Bot Platform")
	fmt.Fprintln(s.out, rule)

	s.manager.SetRunning(true)
	defer s.manager.SetRunning(false)
	defer s.manager.Drain()

	count, err := s.manager.Load(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "\n📦 Loaded %d bot(s) from database\n", count)

	if count == 0 {
		fmt.Fprintln(s.out, "⚠️ No active bots found. Add bots via the web dashboard.")
		if s.exitWhenEmpty {
			return nil
		}
	} else {
		fmt.Fprintln(s.out, "\n🚀 Starting all bots...")
		out := s.manager.StartAll(ctx)
		fmt.Fprintf(s.out, "\n%s\n%d/%d bot(s) running! Press Ctrl+C to stop.\n%s\n",
			rule, len(out.Succeeded()), len(out), rule)
	}

	select {
	case <-s.done:
	case <-ctx.Done():
	}

	fmt.Fprintln(s.out, "\n🛑 Shutting down...")
	s.manager.Drain()
	// ctx may already be cancelled; stopping needs its own deadline budget.
	s.manager.StopAll(context.WithoutCancel(ctx))
	fmt.Fprintln(s.out, "👋 All bots stopped. Goodbye!")
	return nil
}
