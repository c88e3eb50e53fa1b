package bots

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/botfleet/internal/messaging"
	"github.com/nextlevelbuilder/botfleet/internal/store"
)

// ConfigSource provides bot records. Get returns store.ErrNotFound for an
// unknown id.
type ConfigSource interface {
	ListActive(ctx context.Context) ([]store.BotConfig, error)
	Get(ctx context.Context, id int64) (*store.BotConfig, error)
}

// Outcome maps each attempted bot id to its error (nil on success).
type Outcome map[int64]error

// Failed returns the ids that failed, sorted.
func (o Outcome) Failed() []int64 {
	return o.ids(func(err error) bool { return err != nil })
}

// Succeeded returns the ids that succeeded, sorted.
func (o Outcome) Succeeded() []int64 {
	return o.ids(func(err error) bool { return err == nil })
}

func (o Outcome) ids(keep func(error) bool) []int64 {
	out := []int64{}
	for id, err := range o {
		if keep(err) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

// BotStatus is the runtime view of one registered bot.
type BotStatus struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Name      string     `json:"name"`
	Type      string     `json:"type"`
	State     State      `json:"state"`
	LastError string     `json:"last_error,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// Status is a snapshot of the whole fleet.
type Status struct {
	Running  bool        `json:"running"`
	BotCount int         `json:"bot_count"`
	Bots     []BotStatus `json:"bots"`
}

// Bot returns the entry for id.
func (s Status) Bot(id int64) (BotStatus, bool) {
	for _, b := range s.Bots {
		if b.ID == id {
			return b, true
		}
	}
	return BotStatus{}, false
}

// SyncResult lists what a reconcile pass changed.
type SyncResult struct {
	Started   []int64 `json:"started"`
	Stopped   []int64 `json:"stopped"`
	Restarted []int64 `json:"restarted"`
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithStartTimeout bounds each connect attempt.
func WithStartTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.startTimeout = d }
}

// WithStopTimeout bounds each stop, session close included.
func WithStopTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.stopTimeout = d }
}

// WithMaxParallel caps concurrent starts and stops in StartAll/StopAll.
// Zero means unlimited.
func WithMaxParallel(n int) ManagerOption {
	return func(m *Manager) { m.maxParallel = n }
}

// Manager owns the registry of bot instances. All methods are safe for
// concurrent use; lifecycle calls run outside the registry lock.
type Manager struct {
	source   ConfigSource
	gateway  messaging.Gateway
	variants *Variants
	env      BotEnv

	startTimeout time.Duration
	stopTimeout  time.Duration
	maxParallel  int

	mu        sync.RWMutex
	instances map[int64]*Instance
	running   bool
	draining  bool

	subMu sync.Mutex
	subs  map[string]func(Status)
}

// NewManager creates an empty registry. env is the shared part of every
// bot's environment.
func NewManager(source ConfigSource, gateway messaging.Gateway, variants *Variants, env BotEnv, opts ...ManagerOption) *Manager {
	m := &Manager{
		source:       source,
		gateway:      gateway,
		variants:     variants,
		env:          env,
		startTimeout: 30 * time.Second,
		stopTimeout:  15 * time.Second,
		instances:    make(map[int64]*Instance),
		subs:         make(map[string]func(Status)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) newInstance(cfg store.BotConfig) (*Instance, error) {
	return NewInstance(cfg, m.gateway, m.variants, m.env,
		WithStopWait(m.stopTimeout),
		WithStateHook(func(*Instance) { m.publish() }),
	)
}

// Load registers an instance for every active bot record. Records that
// fail validation are logged and skipped; ids already registered are kept
// as they are. It returns the number of registered active bots.
func (m *Manager) Load(ctx context.Context) (int, error) {
	if m.Draining() {
		return 0, ErrDraining
	}
	cfgs, err := m.source.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active bots: %w", err)
	}

	count := 0
	for _, cfg := range cfgs {
		m.mu.RLock()
		_, exists := m.instances[cfg.ID]
		m.mu.RUnlock()
		if exists {
			count++
			continue
		}

		inst, err := m.newInstance(cfg)
		if err != nil {
			slog.Error("failed to load bot", "bot_id", cfg.ID, "error", err)
			continue
		}
		m.mu.Lock()
		if m.draining {
			m.mu.Unlock()
			return count, ErrDraining
		}
		if _, exists := m.instances[cfg.ID]; !exists {
			m.instances[cfg.ID] = inst
		}
		m.mu.Unlock()
		count++
	}

	slog.Info("bots loaded", "count", count)
	m.publish()
	return count, nil
}

// Add registers the bot with the given id without starting it. An id
// that is already registered returns the existing instance. Once Drain
// has been called it fails with ErrDraining.
func (m *Manager) Add(ctx context.Context, id int64) (*Instance, error) {
	if m.Draining() {
		return nil, ErrDraining
	}
	if inst, ok := m.Lookup(id); ok {
		return inst, nil
	}

	cfg, err := m.source.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bot %d: %w", id, err)
	}
	inst, err := m.newInstance(*cfg)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		return nil, ErrDraining
	}
	if existing, ok := m.instances[id]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.instances[id] = inst
	m.mu.Unlock()

	slog.Info("bot registered", "bot_id", id, "type", cfg.Type)
	m.publish()
	return inst, nil
}

// Lookup returns the registered instance for id.
func (m *Manager) Lookup(id int64) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[id]
	return inst, ok
}

// StartBot registers the bot if needed and starts it. Failures are
// logged and reported as false.
func (m *Manager) StartBot(ctx context.Context, id int64) bool {
	inst, err := m.Add(ctx, id)
	if err != nil {
		slog.Error("failed to start bot", "bot_id", id, "error", err)
		return false
	}
	return m.start(ctx, inst) == nil
}

func (m *Manager) start(ctx context.Context, inst *Instance) error {
	ctx, cancel := context.WithTimeout(ctx, m.startTimeout)
	defer cancel()
	if err := inst.Start(ctx); err != nil {
		slog.Error("failed to start bot", "bot_id", inst.ID(), "error", err)
		return err
	}
	return nil
}

func (m *Manager) stop(ctx context.Context, inst *Instance) error {
	ctx, cancel := context.WithTimeout(ctx, m.stopTimeout)
	defer cancel()
	err := inst.Stop(ctx)
	if err != nil {
		slog.Warn("error stopping bot", "bot_id", inst.ID(), "error", err)
	}
	return err
}

// StopBot stops the bot and removes it from the registry. It returns
// false only when the id is not registered; a failed session close still
// counts as stopped.
func (m *Manager) StopBot(ctx context.Context, id int64) bool {
	m.mu.Lock()
	inst, ok := m.instances[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	inst.retire()
	m.mu.Unlock()

	_ = m.stop(ctx, inst)

	m.mu.Lock()
	if m.instances[id] == inst {
		delete(m.instances, id)
	}
	m.mu.Unlock()

	slog.Info("bot removed", "bot_id", id)
	m.publish()
	return true
}

// RestartBot stops the bot, then starts it from a fresh copy of its
// record. The start is attempted even when the bot was not registered.
func (m *Manager) RestartBot(ctx context.Context, id int64) bool {
	if !m.StopBot(ctx, id) {
		slog.Warn("restart: bot was not registered", "bot_id", id)
	}
	return m.StartBot(ctx, id)
}

func (m *Manager) snapshot() []*Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		out = append(out, inst)
	}
	return out
}

// fanOut runs fn for every instance concurrently. fn errors are collected,
// never propagated, so one failure cannot cancel the others.
func (m *Manager) fanOut(instances []*Instance, fn func(*Instance) error) Outcome {
	out := make(Outcome, len(instances))
	var mu sync.Mutex
	var g errgroup.Group
	if m.maxParallel > 0 {
		g.SetLimit(m.maxParallel)
	}
	for _, inst := range instances {
		g.Go(func() error {
			err := fn(inst)
			mu.Lock()
			out[inst.ID()] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// StartAll starts every registered bot concurrently.
func (m *Manager) StartAll(ctx context.Context) Outcome {
	instances := m.snapshot()
	slog.Info("starting all bots", "count", len(instances))
	out := m.fanOut(instances, func(inst *Instance) error {
		return m.start(ctx, inst)
	})
	slog.Info("bots started", "ok", len(out.Succeeded()), "failed", len(out.Failed()))
	return out
}

// Drain puts the registry into its final state: from now on Load, Add,
// StartBot and Sync refuse, so nothing can come back up after StopAll.
// There is no way back.
func (m *Manager) Drain() {
	m.mu.Lock()
	m.draining = true
	m.mu.Unlock()
}

// Draining reports whether Drain has been called.
func (m *Manager) Draining() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.draining
}

// StopAll stops every registered bot concurrently and empties the
// registry.
func (m *Manager) StopAll(ctx context.Context) Outcome {
	m.mu.Lock()
	instances := make([]*Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		inst.retire()
		instances = append(instances, inst)
	}
	m.mu.Unlock()

	slog.Info("stopping all bots", "count", len(instances))
	out := m.fanOut(instances, func(inst *Instance) error {
		return m.stop(ctx, inst)
	})

	m.mu.Lock()
	for _, inst := range instances {
		if m.instances[inst.ID()] == inst {
			delete(m.instances, inst.ID())
		}
	}
	m.mu.Unlock()

	slog.Info("all bots stopped")
	m.publish()
	return out
}

// SetRunning records whether the supervisor considers the fleet up.
func (m *Manager) SetRunning(running bool) {
	m.mu.Lock()
	m.running = running
	m.mu.Unlock()
	m.publish()
}

// Status returns the registry view sorted by bot id. It reads memory only.
func (m *Manager) Status() Status {
	m.mu.RLock()
	st := Status{Running: m.running, BotCount: len(m.instances), Bots: make([]BotStatus, 0, len(m.instances))}
	for _, inst := range m.instances {
		b := BotStatus{
			ID:       inst.ID(),
			Username: inst.Username(),
			Name:     inst.Name(),
			Type:     inst.Type(),
			State:    inst.State(),
		}
		if err := inst.LastError(); err != nil {
			b.LastError = err.Error()
		}
		if b.State == StateRunning {
			t := inst.StartedAt()
			b.StartedAt = &t
		}
		st.Bots = append(st.Bots, b)
	}
	m.mu.RUnlock()

	sort.Slice(st.Bots, func(a, b int) bool { return st.Bots[a].ID < st.Bots[b].ID })
	return st
}

// Subscribe registers fn to receive a Status after every lifecycle change.
// fn runs on the goroutine that made the change and must not block.
func (m *Manager) Subscribe(id string, fn func(Status)) {
	m.subMu.Lock()
	m.subs[id] = fn
	m.subMu.Unlock()
}

func (m *Manager) Unsubscribe(id string) {
	m.subMu.Lock()
	delete(m.subs, id)
	m.subMu.Unlock()
}

func (m *Manager) publish() {
	m.subMu.Lock()
	if len(m.subs) == 0 {
		m.subMu.Unlock()
		return
	}
	fns := make([]func(Status), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subMu.Unlock()

	st := m.Status()
	for _, fn := range fns {
		fn(st)
	}
}

// Sync reconciles the registry with the database: new active bots are
// started, deactivated or deleted ones are stopped, and bots whose record
// changed since they were loaded are restarted.
func (m *Manager) Sync(ctx context.Context) (SyncResult, error) {
	var res SyncResult
	if m.Draining() {
		return res, ErrDraining
	}
	cfgs, err := m.source.ListActive(ctx)
	if err != nil {
		return res, fmt.Errorf("list active bots: %w", err)
	}

	active := make(map[int64]store.BotConfig, len(cfgs))
	for _, cfg := range cfgs {
		active[cfg.ID] = cfg
	}

	for _, inst := range m.snapshot() {
		cfg, ok := active[inst.ID()]
		switch {
		case !ok:
			if m.StopBot(ctx, inst.ID()) {
				res.Stopped = append(res.Stopped, inst.ID())
			}
		case cfg.UpdatedAt.After(inst.Config().UpdatedAt):
			if m.RestartBot(ctx, inst.ID()) {
				res.Restarted = append(res.Restarted, inst.ID())
			}
		}
	}

	for id := range active {
		if _, ok := m.Lookup(id); ok {
			continue
		}
		if m.StartBot(ctx, id) {
			res.Started = append(res.Started, id)
		}
	}

	for _, ids := range [][]int64{res.Started, res.Stopped, res.Restarted} {
		sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	}
	if len(res.Started)+len(res.Stopped)+len(res.Restarted) > 0 {
		slog.Info("fleet synced", "started", res.Started, "stopped", res.Stopped, "restarted", res.Restarted)
	}
	return res, nil
}

// SenderFor returns a Sender for the bot: the running session when the
// bot is up, otherwise a temporary connection that release closes.
func (m *Manager) SenderFor(ctx context.Context, cfg store.BotConfig) (messaging.Sender, func(), error) {
	if inst, ok := m.Lookup(cfg.ID); ok {
		if sess := inst.Session(); sess != nil {
			return sess, func() {}, nil
		}
	}
	sess, err := m.gateway.Connect(ctx, cfg.Token)
	if err != nil {
		return nil, nil, &ConnectionError{BotID: cfg.ID, Err: err}
	}
	release := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), m.stopTimeout)
		defer cancel()
		if err := sess.Close(closeCtx); err != nil {
			slog.Warn("error closing temporary session", "bot_id", cfg.ID, "error", err)
		}
	}
	return sess, release, nil
}
