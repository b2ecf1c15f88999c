package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Reachability reports whether the network can be used.
type Reachability interface {
	IsNetworkAvailable() bool
}

// Deps groups the collaborators of an Orchestrator.
type Deps struct {
	Source       WeatherSource
	Resolver     LocationResolver
	Storage      Storage
	Reachability Reachability   // nil means always reachable
	Notifier     Notifier       // nil disables notices
	Settings     SettingsReader // read once per refresh
	Logger       *zap.SugaredLogger
}

// Orchestrator is the entry point for refreshes. Trigger is fire-and-forget
// and idempotent while a refresh is in flight.
type Orchestrator struct {
	gate         *Gate
	worker       *Worker
	dispatcher   *Dispatcher
	storage      Storage
	reachability Reachability
	notifier     Notifier
	settings     SettingsReader
	logger       *zap.SugaredLogger

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewOrchestrator wires the gate, worker and dispatcher and starts the
// dispatcher goroutine. Call Close on shutdown.
func NewOrchestrator(deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	gate := NewGate()
	o := &Orchestrator{
		gate:         gate,
		worker:       NewWorker(deps.Resolver, deps.Source, logger),
		dispatcher:   NewDispatcher(gate, deps.Storage, deps.Notifier, logger),
		storage:      deps.Storage,
		reachability: deps.Reachability,
		notifier:     deps.Notifier,
		settings:     deps.Settings,
		logger:       logger,
	}
	o.dispatcher.OnDone(func(rc RunContext, out Outcome) {
		o.logger.Debugw("refresh finished", "run", rc.ID, "outcome", out.Kind.String(), "took", time.Since(rc.StartedAt))
		o.wg.Done()
	})
	o.dispatcher.Start()
	return o
}

// Trigger starts a refresh unless one is already running. verbose enables
// user-visible notices for this invocation. It never blocks on I/O and is
// ignored once Close has been called.
func (o *Orchestrator) Trigger(verbose bool) {
	rc := RunContext{
		ID:        uuid.NewString(),
		Verbose:   verbose,
		StartedAt: time.Now().UTC(),
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		o.logger.Debugw("orchestrator closed, trigger ignored", "run", rc.ID)
		return
	}
	o.wg.Add(1)
	o.mu.Unlock()

	go o.run(rc)
}

func (o *Orchestrator) run(rc RunContext) {
	// Refreshes are not cancellable once started.
	ctx := context.Background()

	if o.reachability != nil && !o.reachability.IsNetworkAvailable() {
		defer o.wg.Done()
		o.logger.Debugw("skipping update, no network", "run", rc.ID)
		if err := o.storage.UpdateTime(ctx); err != nil {
			o.logger.Errorw("failed to update time", "run", rc.ID, "error", err)
		}
		if rc.Verbose && o.notifier != nil {
			o.notifier.ShowNotice(noticeNoNetwork)
		}
		return
	}

	if !o.gate.TryAcquire() {
		o.logger.Debugw("refresh already running, trigger ignored", "run", rc.ID)
		o.wg.Done()
		return
	}

	// From here the dispatcher owns the release; until the hand-off we do.
	delivered := false
	defer func() {
		if delivered {
			return
		}
		if r := recover(); r != nil {
			o.logger.Errorw("refresh run panicked", "run", rc.ID, "panic", r)
		}
		o.gate.Release()
		o.wg.Done()
	}()

	if o.settings != nil {
		rc.Settings = o.settings.Settings()
	}
	out := o.worker.Run(ctx, rc)
	rc.Location = out.Location

	delivered = true
	o.dispatcher.Deliver(out, rc)
}

// Running reports whether a refresh is in flight.
func (o *Orchestrator) Running() bool {
	return o.gate.State() == Running
}

// State returns the gate state.
func (o *Orchestrator) State() State {
	return o.gate.State()
}

// Wait blocks until every triggered refresh has been fully dispatched.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close rejects further triggers, waits for in-flight refreshes and stops
// the dispatcher. It is safe to call more than once.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.Wait()
	o.dispatcher.Close()
}
