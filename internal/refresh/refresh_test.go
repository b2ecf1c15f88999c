package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/i474232898/weather-notification/internal/location"
	"github.com/i474232898/weather-notification/internal/weather"
)

type fakeStorage struct {
	mu          sync.Mutex
	saved       []weather.Weather
	updateTimes int
	onSave      func()
	saveErr     error
}

func (s *fakeStorage) Save(ctx context.Context, w weather.Weather) error {
	if s.onSave != nil {
		s.onSave()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, w)
	return s.saveErr
}

func (s *fakeStorage) UpdateTime(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateTimes++
	return nil
}

func (s *fakeStorage) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved), s.updateTimes
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []string
}

func (n *fakeNotifier) ShowNotice(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, message)
}

func (n *fakeNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.notices...)
}

type fakeSource struct {
	weather weather.Weather
	err     error
	delay   time.Duration
	panics  bool

	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (s *fakeSource) Query(ctx context.Context, loc weather.Location) (weather.Weather, error) {
	s.calls.Add(1)
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		m := s.maxSeen.Load()
		if n <= m || s.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.panics {
		panic("source exploded")
	}
	if s.err != nil {
		return weather.Weather{}, s.err
	}
	w := s.weather
	w.Location = loc
	return w, nil
}

type fakeResolver struct {
	loc      weather.Location
	ok       bool
	gotAuto  bool
	gotManua string
}

func (r *fakeResolver) Resolve(ctx context.Context, useAuto bool, manualText string) (weather.Location, bool) {
	r.gotAuto = useAuto
	r.gotManua = manualText
	return r.loc, r.ok
}

type reachability bool

func (r reachability) IsNetworkAvailable() bool { return bool(r) }

func manualSettings(text string) SettingsReader {
	return SettingsFunc(func() Settings { return Settings{AutoLocation: false, Location: text} })
}

func TestGate(t *testing.T) {
	g := NewGate()
	assert.Equal(t, Idle, g.State())

	require.True(t, g.TryAcquire())
	assert.Equal(t, Running, g.State())
	assert.False(t, g.TryAcquire(), "second acquire must fail while running")

	g.Release()
	assert.Equal(t, Idle, g.State())
	assert.True(t, g.TryAcquire())
}

func TestGate_ConcurrentAcquire(t *testing.T) {
	g := NewGate()

	var (
		wg       sync.WaitGroup
		acquired atomic.Int32
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryAcquire() {
				acquired.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, acquired.Load())
}

func TestDispatch_SuccessReleasesAfterPersistence(t *testing.T) {
	gate := NewGate()
	require.True(t, gate.TryAcquire())

	var stateDuringSave State
	store := &fakeStorage{onSave: func() { stateDuringSave = gate.State() }}
	notifier := &fakeNotifier{}
	d := NewDispatcher(gate, store, notifier, zaptest.NewLogger(t).Sugar())

	var done int
	d.OnDone(func(RunContext, Outcome) {
		assert.Equal(t, Idle, gate.State(), "completion must follow release")
		done++
	})

	loc := weather.NewManualLocation("Paris")
	d.Dispatch(context.Background(), Success(loc, weather.Weather{Location: loc, Temperature: 3}), RunContext{Verbose: true, Location: loc})

	assert.Equal(t, Running, stateDuringSave, "gate released before persistence")
	assert.Equal(t, Idle, gate.State())
	saved, updates := store.counts()
	assert.Equal(t, 1, saved)
	assert.Equal(t, 0, updates)
	assert.Empty(t, notifier.all(), "non-empty weather produces no notice")
	assert.Equal(t, 1, done)
}

func TestDispatch_EmptyWeatherVerbose(t *testing.T) {
	gate := NewGate()
	require.True(t, gate.TryAcquire())
	store := &fakeStorage{}
	notifier := &fakeNotifier{}
	d := NewDispatcher(gate, store, notifier, zaptest.NewLogger(t).Sugar())

	loc := weather.NewManualLocation("Paris")
	d.Dispatch(context.Background(), Success(loc, weather.Weather{Location: loc, Empty: true}), RunContext{Verbose: true, Location: loc})

	saved, _ := store.counts()
	assert.Equal(t, 1, saved, "empty weather is still persisted")
	assert.Equal(t, []string{"Weather for Paris is empty"}, notifier.all())
}

func TestDispatch_FailureQuiet(t *testing.T) {
	gate := NewGate()
	require.True(t, gate.TryAcquire())
	store := &fakeStorage{}
	notifier := &fakeNotifier{}
	d := NewDispatcher(gate, store, notifier, zaptest.NewLogger(t).Sugar())

	d.Dispatch(context.Background(), Failure(weather.NewManualLocation("Paris"), errors.New("timeout")), RunContext{})

	saved, updates := store.counts()
	assert.Equal(t, 0, saved)
	assert.Equal(t, 1, updates)
	assert.Empty(t, notifier.all())
	assert.Equal(t, Idle, gate.State())
}

func TestDispatch_FailureVerbose(t *testing.T) {
	gate := NewGate()
	require.True(t, gate.TryAcquire())
	notifier := &fakeNotifier{}
	d := NewDispatcher(gate, &fakeStorage{}, notifier, zaptest.NewLogger(t).Sugar())

	d.Dispatch(context.Background(), Failure(weather.NewManualLocation("Paris"), errors.New("timeout")), RunContext{Verbose: true})

	assert.Equal(t, []string{"Failed to update weather: timeout"}, notifier.all())
}

func TestDispatch_UnknownLocation(t *testing.T) {
	gate := NewGate()
	require.True(t, gate.TryAcquire())
	store := &fakeStorage{}
	notifier := &fakeNotifier{}
	d := NewDispatcher(gate, store, notifier, zaptest.NewLogger(t).Sugar())

	d.Dispatch(context.Background(), UnknownLocation(), RunContext{Verbose: true})

	saved, updates := store.counts()
	assert.Equal(t, 0, saved)
	assert.Equal(t, 1, updates)
	assert.Equal(t, []string{noticeUnknownLocation}, notifier.all())
	assert.Equal(t, Idle, gate.State())
}

func TestDispatch_PanicStillReleases(t *testing.T) {
	gate := NewGate()
	require.True(t, gate.TryAcquire())
	store := &fakeStorage{onSave: func() { panic("disk on fire") }}
	d := NewDispatcher(gate, store, nil, zaptest.NewLogger(t).Sugar())

	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(), Success(weather.Location{}, weather.Weather{}), RunContext{})
	})
	assert.Equal(t, Idle, gate.State())
}

func TestDispatcher_DeliverAfterClose(t *testing.T) {
	gate := NewGate()
	require.True(t, gate.TryAcquire())
	store := &fakeStorage{}
	d := NewDispatcher(gate, store, nil, zaptest.NewLogger(t).Sugar())
	d.Start()
	d.Close()

	d.Deliver(UnknownLocation(), RunContext{})

	_, updates := store.counts()
	assert.Equal(t, 1, updates)
	assert.Equal(t, Idle, gate.State())
}

func TestDispatcher_SerializesInOrder(t *testing.T) {
	gate := NewGate()
	var (
		mu    sync.Mutex
		order []string
	)
	d := NewDispatcher(gate, &fakeStorage{}, nil, zaptest.NewLogger(t).Sugar())
	d.OnDone(func(rc RunContext, _ Outcome) {
		mu.Lock()
		order = append(order, rc.ID)
		mu.Unlock()
	})
	d.Start()

	for _, id := range []string{"a", "b", "c"} {
		d.Deliver(UnknownLocation(), RunContext{ID: id})
	}
	d.Close()

	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestWorker_Outcomes(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	loc := weather.NewManualLocation("Paris")

	out := NewWorker(&fakeResolver{}, &fakeSource{}, logger).Run(context.Background(), RunContext{})
	assert.Equal(t, KindUnknownLocation, out.Kind)
	assert.ErrorIs(t, out.Err, ErrUnknownLocation)

	cause := errors.New("parse error")
	out = NewWorker(&fakeResolver{loc: loc, ok: true}, &fakeSource{err: cause}, logger).Run(context.Background(), RunContext{})
	assert.Equal(t, KindFailure, out.Kind)
	assert.ErrorIs(t, out.Err, cause)
	var qe *QueryError
	assert.ErrorAs(t, out.Err, &qe)
	assert.Equal(t, cause, out.Cause())
	assert.Equal(t, "Paris", out.Location.Text())

	out = NewWorker(&fakeResolver{loc: loc, ok: true}, &fakeSource{weather: weather.Weather{Temperature: 9}}, logger).Run(context.Background(), RunContext{})
	assert.Equal(t, KindSuccess, out.Kind)
	assert.Equal(t, 9.0, out.Weather.Temperature)

	out = NewWorker(&fakeResolver{loc: loc, ok: true}, &fakeSource{panics: true}, logger).Run(context.Background(), RunContext{})
	assert.Equal(t, KindFailure, out.Kind)
}

func TestWorker_UsesSettingsSnapshot(t *testing.T) {
	r := &fakeResolver{}
	NewWorker(r, &fakeSource{}, zaptest.NewLogger(t).Sugar()).
		Run(context.Background(), RunContext{Settings: Settings{AutoLocation: true, Location: "Lyon"}})

	assert.True(t, r.gotAuto)
	assert.Equal(t, "Lyon", r.gotManua)
}

func newTestOrchestrator(t *testing.T, source *fakeSource, store *fakeStorage, notifier *fakeNotifier, reach Reachability, settings SettingsReader) *Orchestrator {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()
	o := NewOrchestrator(Deps{
		Source:       source,
		Resolver:     location.NewResolver(location.NewLastKnown(0), nil, logger),
		Storage:      store,
		Reachability: reach,
		Notifier:     notifier,
		Settings:     settings,
		Logger:       logger,
	})
	t.Cleanup(o.Close)
	return o
}

func TestOrchestrator_Success(t *testing.T) {
	source := &fakeSource{weather: weather.Weather{Temperature: 21}}
	store := &fakeStorage{}
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(t, source, store, notifier, reachability(true), manualSettings("Paris"))

	o.Trigger(true)
	o.Wait()

	saved, updates := store.counts()
	require.Equal(t, 1, saved)
	assert.Equal(t, 0, updates)
	assert.Equal(t, "Paris", store.saved[0].Location.Text())
	assert.Empty(t, notifier.all())
	assert.False(t, o.Running())
}

func TestOrchestrator_NoNetwork(t *testing.T) {
	source := &fakeSource{}
	store := &fakeStorage{}
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(t, source, store, notifier, reachability(false), manualSettings("Paris"))

	// Holding the gate proves the no-network path never looks at it.
	require.True(t, o.gate.TryAcquire())
	o.Trigger(true)
	o.Wait()
	o.gate.Release()

	saved, updates := store.counts()
	assert.Equal(t, 0, saved)
	assert.Equal(t, 1, updates)
	assert.EqualValues(t, 0, source.calls.Load())
	assert.Equal(t, []string{noticeNoNetwork}, notifier.all())
}

func TestOrchestrator_NoNetworkQuiet(t *testing.T) {
	notifier := &fakeNotifier{}
	store := &fakeStorage{}
	o := newTestOrchestrator(t, &fakeSource{}, store, notifier, reachability(false), manualSettings("Paris"))

	o.Trigger(false)
	o.Wait()

	_, updates := store.counts()
	assert.Equal(t, 1, updates)
	assert.Empty(t, notifier.all())
	assert.Equal(t, Idle, o.State())
}

func TestOrchestrator_TriggerWhileRunningIsNoop(t *testing.T) {
	source := &fakeSource{}
	store := &fakeStorage{}
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(t, source, store, notifier, reachability(true), manualSettings("Paris"))

	require.True(t, o.gate.TryAcquire())
	for i := 0; i < 5; i++ {
		o.Trigger(true)
	}
	o.Wait()

	saved, updates := store.counts()
	assert.Equal(t, 0, saved)
	assert.Equal(t, 0, updates)
	assert.EqualValues(t, 0, source.calls.Load())
	assert.Empty(t, notifier.all())
	assert.True(t, o.Running(), "no-op triggers must not release a gate they do not hold")
	o.gate.Release()
}

func TestOrchestrator_AtMostOneRunAtATime(t *testing.T) {
	source := &fakeSource{delay: 2 * time.Millisecond}
	store := &fakeStorage{}
	o := newTestOrchestrator(t, source, store, nil, reachability(true), manualSettings("Paris"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.Trigger(false)
		}()
	}
	wg.Wait()
	o.Wait()

	assert.EqualValues(t, 1, source.maxSeen.Load())
	saved, _ := store.counts()
	assert.EqualValues(t, source.calls.Load(), saved, "every run is persisted exactly once")
	assert.False(t, o.Running())
}

func TestOrchestrator_QueryErrorReturnsToIdle(t *testing.T) {
	store := &fakeStorage{}
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(t, &fakeSource{err: errors.New("503")}, store, notifier, reachability(true), manualSettings("Paris"))

	o.Trigger(false)
	o.Wait()

	saved, updates := store.counts()
	assert.Equal(t, 0, saved)
	assert.Equal(t, 1, updates)
	assert.Empty(t, notifier.all())
	assert.Equal(t, Idle, o.State())

	// The gate is free again: the next trigger runs.
	o.Trigger(false)
	o.Wait()
	_, updates = store.counts()
	assert.Equal(t, 2, updates)
}

func TestOrchestrator_SourcePanicReturnsToIdle(t *testing.T) {
	store := &fakeStorage{}
	o := newTestOrchestrator(t, &fakeSource{panics: true}, store, nil, reachability(true), manualSettings("Paris"))

	o.Trigger(false)
	o.Wait()

	_, updates := store.counts()
	assert.Equal(t, 1, updates)
	assert.Equal(t, Idle, o.State())
}

func TestOrchestrator_AutoLocationUnknown(t *testing.T) {
	source := &fakeSource{}
	store := &fakeStorage{}
	notifier := &fakeNotifier{}
	auto := SettingsFunc(func() Settings { return Settings{AutoLocation: true} })
	o := newTestOrchestrator(t, source, store, notifier, reachability(true), auto)

	o.Trigger(true)
	o.Wait()

	saved, updates := store.counts()
	assert.Equal(t, 0, saved)
	assert.Equal(t, 1, updates)
	assert.EqualValues(t, 0, source.calls.Load())
	assert.Equal(t, []string{noticeUnknownLocation}, notifier.all())
}

func TestOrchestrator_SettingsReadPerTrigger(t *testing.T) {
	source := &fakeSource{}
	store := &fakeStorage{}
	text := "Paris"
	o := newTestOrchestrator(t, source, store, nil, reachability(true),
		SettingsFunc(func() Settings { return Settings{Location: text} }))

	o.Trigger(false)
	o.Wait()
	text = "Berlin"
	o.Trigger(false)
	o.Wait()

	require.Len(t, store.saved, 2)
	assert.Equal(t, "Paris", store.saved[0].Location.Text())
	assert.Equal(t, "Berlin", store.saved[1].Location.Text())
}

func TestOrchestrator_TriggerAfterCloseIgnored(t *testing.T) {
	source := &fakeSource{}
	store := &fakeStorage{}
	o := newTestOrchestrator(t, source, store, nil, reachability(true), manualSettings("Paris"))

	o.Close()
	o.Trigger(true)
	o.Wait()

	saved, updates := store.counts()
	assert.Zero(t, saved)
	assert.Zero(t, updates)
	assert.Zero(t, source.calls.Load())
}

func TestOrchestrator_TriggerDuringClose(t *testing.T) {
	source := &fakeSource{delay: time.Millisecond}
	store := &fakeStorage{}
	o := newTestOrchestrator(t, source, store, nil, reachability(true), manualSettings("Paris"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				o.Trigger(false)
			}
		}()
	}
	o.Close()
	wg.Wait()

	saved, _ := store.counts()
	time.Sleep(20 * time.Millisecond)
	after, _ := store.counts()
	assert.Equal(t, saved, after)
	assert.False(t, o.Running())
}
