package refresh

import "sync"

// State is the refresh state guarded by a Gate.
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Gate is a single-flight gate: at most one holder at a time, extra
// acquisition attempts fail immediately instead of waiting.
type Gate struct {
	mu    sync.Mutex
	state State
}

// NewGate returns an idle gate.
func NewGate() *Gate {
	return &Gate{}
}

// TryAcquire moves the gate from Idle to Running and reports whether it did.
// A false result means a refresh is already in flight and the caller must not start work.
func (g *Gate) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == Running {
		return false
	}
	g.state = Running
	return true
}

// Release moves the gate back to Idle. It must be called exactly once for
// every successful TryAcquire, on every completion path.
func (g *Gate) Release() {
	g.mu.Lock()
	g.state = Idle
	g.mu.Unlock()
}

// State returns the current state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}
