// Package bots runs the fleet of Telegram bots: one Instance per bot
// record, a Manager owning the registry and a Supervisor tying the fleet
// to the process lifetime.
package bots

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/botfleet/internal/messaging"
	"github.com/nextlevelbuilder/botfleet/internal/metrics"
	"github.com/nextlevelbuilder/botfleet/internal/store"
	"github.com/nextlevelbuilder/botfleet/internal/tracing"
)

// State is the lifecycle state of an instance.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

var tokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)

// ValidToken reports whether token has the Telegram "<digits>:<secret>"
// shape, the secret being one or more of [A-Za-z0-9_-]. No length is
// enforced and Telegram is not contacted.
func ValidToken(token string) bool {
	return tokenPattern.MatchString(token)
}

// defaultStopWait bounds how long Stop waits for the receive loop after
// closing the session.
const defaultStopWait = 10 * time.Second

// InstanceOption configures an Instance.
type InstanceOption func(*Instance)

// WithStopWait overrides how long Stop waits for the receive loop.
func WithStopWait(d time.Duration) InstanceOption {
	return func(i *Instance) { i.stopWait = d }
}

// WithStateHook registers a callback run after every state change,
// outside the instance locks.
func WithStateHook(fn func(*Instance)) InstanceOption {
	return func(i *Instance) { i.onChange = fn }
}

// Instance is one bot: its configuration, its session while running and
// its lifecycle state.
type Instance struct {
	cfg      store.BotConfig
	gateway  messaging.Gateway
	variant  Variant
	env      BotEnv
	stopWait time.Duration
	onChange func(*Instance)

	opMu sync.Mutex // serializes Start and Stop

	mu        sync.RWMutex
	state     State
	session   messaging.Session
	username  string
	lastErr   error
	cancel    context.CancelFunc
	done      chan struct{}
	retired   bool
	startedAt time.Time
}

// NewInstance validates cfg and binds it to the variant of its bot type.
// It performs no I/O.
func NewInstance(cfg store.BotConfig, gateway messaging.Gateway, variants *Variants, env BotEnv, opts ...InstanceOption) (*Instance, error) {
	if cfg.Token == "" {
		return nil, &ConfigurationError{BotID: cfg.ID, Reason: "token is empty"}
	}
	if !ValidToken(cfg.Token) {
		return nil, &ConfigurationError{BotID: cfg.ID, Reason: "token is not in <digits>:<secret> format"}
	}
	variant, ok := variants.Get(cfg.Type)
	if !ok {
		return nil, &ConfigurationError{BotID: cfg.ID, Reason: fmt.Sprintf("unknown bot type %q", cfg.Type)}
	}

	env.Config = cfg
	i := &Instance{
		cfg:      cfg,
		gateway:  gateway,
		variant:  variant,
		env:      env,
		stopWait: defaultStopWait,
		state:    StateStopped,
		username: cfg.Username,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

func (i *Instance) ID() int64    { return i.cfg.ID }
func (i *Instance) Name() string { return i.cfg.Name }
func (i *Instance) Type() string { return i.cfg.Type }

// Config returns the snapshot the instance was built from.
func (i *Instance) Config() store.BotConfig { return i.cfg }

// Username is the name Telegram reported on connect, or the configured
// one before the first successful connect.
func (i *Instance) Username() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.username
}

// State reports only stable states: a start in progress reads as
// stopped, a stop in progress as running.
func (i *Instance) State() State {
	i.mu.RLock()
	defer i.mu.RUnlock()
	switch i.state {
	case StateStarting:
		return StateStopped
	case StateStopping:
		return StateRunning
	}
	return i.state
}

// LastError is the error of the last failed start or of an unexpected
// end of the receive loop. A successful start clears it.
func (i *Instance) LastError() error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.lastErr
}

// Session returns the open session, or nil when not running.
func (i *Instance) Session() messaging.Session {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.state != StateRunning {
		return nil
	}
	return i.session
}

// StartedAt is the time of the last successful start.
func (i *Instance) StartedAt() time.Time {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.startedAt
}

// Start connects the bot and launches its receive loop. It is a no-op on
// a running instance. The receive loop outlives ctx; only Stop ends it.
func (i *Instance) Start(ctx context.Context) (err error) {
	i.opMu.Lock()
	defer i.opMu.Unlock()

	i.mu.Lock()
	if i.retired {
		i.mu.Unlock()
		return errRetired
	}
	if i.state == StateRunning {
		i.mu.Unlock()
		return nil
	}
	i.setState(StateStarting)
	i.mu.Unlock()

	ctx, span := tracing.Start(ctx, "bot.start", attribute.Int64("bot_id", i.cfg.ID), attribute.String("bot_type", i.cfg.Type))
	defer func() {
		metrics.ObserveBotStart(err)
		tracing.End(span, err)
		i.notify()
	}()

	sess, err := i.gateway.Connect(ctx, i.cfg.Token)
	if err != nil {
		if sess != nil {
			_ = sess.Close(ctx)
		}
		cerr := &ConnectionError{BotID: i.cfg.ID, Err: err}
		i.mu.Lock()
		i.lastErr = cerr
		i.setState(StateStopped)
		i.mu.Unlock()
		return cerr
	}

	sess.Handle(i.variant.Routes(i.env))

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	i.mu.Lock()
	i.session = sess
	i.username = sess.Username()
	i.cancel = cancel
	i.done = done
	i.lastErr = nil
	i.startedAt = time.Now()
	i.setState(StateRunning)
	i.mu.Unlock()

	go i.receive(loopCtx, sess, done)

	slog.Info("bot started", "bot_id", i.cfg.ID, "username", sess.Username(), "type", i.cfg.Type)
	return nil
}

// receive runs the session until Stop cancels ctx or the gateway drops
// the connection. In the latter case the instance falls back to stopped.
func (i *Instance) receive(ctx context.Context, sess messaging.Session, done chan struct{}) {
	defer close(done)

	err := sess.Receive(ctx)
	if ctx.Err() != nil {
		return
	}
	if err == nil {
		err = errors.New("receive loop ended")
	}

	i.mu.Lock()
	owned := i.session == sess && i.state == StateRunning
	if owned {
		i.lastErr = err
		i.session = nil
		i.cancel = nil
		i.setState(StateStopped)
	}
	i.mu.Unlock()
	if !owned {
		return
	}

	slog.Error("bot receive loop ended", "bot_id", i.cfg.ID, "error", err)
	closeCtx, cancel := context.WithTimeout(context.Background(), i.stopWait)
	defer cancel()
	if cerr := sess.Close(closeCtx); cerr != nil {
		slog.Warn("error closing bot session", "bot_id", i.cfg.ID, "error", cerr)
	}
	i.notify()
}

// Stop closes the session and waits for the receive loop. It always
// leaves the instance stopped; a close error is returned for information.
func (i *Instance) Stop(ctx context.Context) (err error) {
	i.opMu.Lock()
	defer i.opMu.Unlock()

	i.mu.Lock()
	if i.state != StateRunning {
		i.mu.Unlock()
		return nil
	}
	sess, cancel, done := i.session, i.cancel, i.done
	i.setState(StateStopping)
	i.mu.Unlock()

	ctx, span := tracing.Start(ctx, "bot.stop", attribute.Int64("bot_id", i.cfg.ID))
	defer func() {
		metrics.ObserveBotStop(err)
		tracing.End(span, err)
		i.notify()
	}()

	cancel()
	if cerr := sess.Close(ctx); cerr != nil {
		slog.Warn("error closing bot session", "bot_id", i.cfg.ID, "error", cerr)
		err = fmt.Errorf("close session: %w", cerr)
	}

	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("bot receive loop still running after stop deadline", "bot_id", i.cfg.ID)
	case <-time.After(i.stopWait):
		slog.Warn("bot receive loop did not exit within timeout", "bot_id", i.cfg.ID)
	}

	i.mu.Lock()
	i.session = nil
	i.cancel = nil
	i.done = nil
	i.setState(StateStopped)
	i.mu.Unlock()

	slog.Info("bot stopped", "bot_id", i.cfg.ID)
	return err
}

// retire marks the instance as removed from the registry, so a Start
// racing the removal fails instead of leaving an orphan running.
func (i *Instance) retire() {
	i.mu.Lock()
	i.retired = true
	i.mu.Unlock()
}

// setState must be called with mu held. It keeps the running gauge in
// step with instances that hold a live session.
func (i *Instance) setState(s State) {
	live := func(s State) bool { return s == StateRunning || s == StateStopping }
	switch {
	case !live(i.state) && live(s):
		metrics.BotRunning(1)
	case live(i.state) && !live(s):
		metrics.BotRunning(-1)
	}
	i.state = s
}

func (i *Instance) notify() {
	if i.onChange != nil {
		i.onChange(i)
	}
}
