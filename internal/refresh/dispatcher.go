package refresh

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/i474232898/weather-notification/internal/weather"
)

const (
	noticeNoNetwork       = "No network, weather was not updated"
	noticeEmpty           = "Weather for %s is empty"
	noticeFailed          = "Failed to update weather: %s"
	noticeUnknownLocation = "Location is unknown, weather was not updated"
)

// Storage persists refresh results.
type Storage interface {
	// Save stores the weather and marks the update time.
	Save(ctx context.Context, w weather.Weather) error
	// UpdateTime marks the update time without touching the stored weather.
	UpdateTime(ctx context.Context) error
}

// Notifier shows user-visible notices. Only used for verbose runs.
type Notifier interface {
	ShowNotice(message string)
}

type delivery struct {
	outcome Outcome
	rc      RunContext
}

// Dispatcher applies outcomes one at a time, in delivery order, on its own
// goroutine: persist, notify, release the gate, then signal completion.
type Dispatcher struct {
	gate     *Gate
	storage  Storage
	notifier Notifier
	logger   *zap.SugaredLogger
	onDone   func(RunContext, Outcome)

	queue      chan delivery
	stopped    chan struct{}
	dispatchMu sync.Mutex

	mu      sync.Mutex
	started bool
	closed  bool
}

// NewDispatcher creates a dispatcher releasing gate after each outcome.
// notifier may be nil.
func NewDispatcher(gate *Gate, storage Storage, notifier Notifier, logger *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		gate:     gate,
		storage:  storage,
		notifier: notifier,
		logger:   logger,
		queue:    make(chan delivery, 8),
		stopped:  make(chan struct{}),
	}
}

// OnDone registers a hook called after the gate is released for each outcome.
// It must be set before Start.
func (d *Dispatcher) OnDone(fn func(RunContext, Outcome)) {
	d.onDone = fn
}

// Start launches the completion goroutine.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	go func() {
		defer close(d.stopped)
		for dl := range d.queue {
			d.Dispatch(context.Background(), dl.outcome, dl.rc)
		}
	}()
}

// Deliver hands an outcome to the completion goroutine. Once the dispatcher
// is closed the outcome is dispatched on the caller's goroutine instead, so
// the gate is released either way.
func (d *Dispatcher) Deliver(out Outcome, rc RunContext) {
	d.mu.Lock()
	if d.closed || !d.started {
		d.mu.Unlock()
		d.logger.Warnw("dispatcher not running, dispatching inline", "run", rc.ID)
		d.Dispatch(context.Background(), out, rc)
		return
	}
	// Sending under the lock keeps Close from closing the channel mid-send.
	d.queue <- delivery{outcome: out, rc: rc}
	d.mu.Unlock()
}

// Close stops accepting deliveries and waits for queued outcomes to be applied.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	started := d.started
	close(d.queue)
	d.mu.Unlock()

	if started {
		<-d.stopped
	}
}

// Dispatch applies a single outcome. The gate is released after persistence
// has finished, from a deferred call so that a panic cannot leave it held.
func (d *Dispatcher) Dispatch(ctx context.Context, out Outcome, rc RunContext) {
	d.dispatchMu.Lock()
	defer d.dispatchMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorw("outcome dispatch panicked", "run", rc.ID, "outcome", out.Kind.String(), "panic", r)
		}
		d.gate.Release()
		if d.onDone != nil {
			d.onDone(rc, out)
		}
	}()

	switch out.Kind {
	case KindSuccess:
		w := out.Weather
		d.logger.Infow("received weather", "run", rc.ID, "location", w.Location.Text(), "time", w.Timestamp)
		if err := d.storage.Save(ctx, w); err != nil {
			d.logger.Errorw("failed to save weather", "run", rc.ID, "error", err)
		}
		if rc.Verbose && w.IsEmpty() {
			d.notify(fmt.Sprintf(noticeEmpty, locationText(out, rc)))
		}

	case KindFailure:
		d.logger.Warnw("failed to update weather", "run", rc.ID, "error", out.Err)
		d.touch(ctx, rc)
		if rc.Verbose {
			d.notify(fmt.Sprintf(noticeFailed, errorMessage(out.Cause())))
		}

	case KindUnknownLocation:
		d.logger.Warnw("failed to get location", "run", rc.ID)
		d.touch(ctx, rc)
		if rc.Verbose {
			d.notify(noticeUnknownLocation)
		}

	default:
		d.logger.Errorw("unknown outcome", "run", rc.ID, "outcome", out.Kind.String())
	}
}

func (d *Dispatcher) touch(ctx context.Context, rc RunContext) {
	if err := d.storage.UpdateTime(ctx); err != nil {
		d.logger.Errorw("failed to update time", "run", rc.ID, "error", err)
	}
}

func (d *Dispatcher) notify(message string) {
	if d.notifier != nil {
		d.notifier.ShowNotice(message)
	}
}

func locationText(out Outcome, rc RunContext) string {
	if text := rc.Location.Text(); text != "" {
		return text
	}
	return out.Location.Text()
}

func errorMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
