package driver

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/blockberries/evmloader"
)

// State is a state of the execution state machine.
type State uint32

const (
	// StateNotStarted: BeginPartial has not been issued.
	StateNotStarted State = iota
	// StateRunning: BeginPartial succeeded and no Return record has
	// been observed. Continue is the only valid call.
	StateRunning
	// StateCompleted: a Return record was observed. No further calls.
	StateCompleted
	// StateFailed: a begin or continue call failed. The run is
	// unrecoverable; start over with a fresh storage account.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "NotStarted"
	case StateRunning:
		return "Running"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// runGuard enforces the state machine. Calls are sequential: the
// storage account admits a single writer, so a second caller blocks
// until the in-flight call has settled the state.
type runGuard struct {
	state atomic.Uint32
	seqMu sync.Mutex
}

func (g *runGuard) load() State { return State(g.state.Load()) }

// acquireBegin transitions NotStarted → Running and holds the guard
// until release.
func (g *runGuard) acquireBegin() error {
	g.seqMu.Lock()
	if s := g.load(); s != StateNotStarted {
		g.seqMu.Unlock()
		return fmt.Errorf("%w (state %s)", evmloader.ErrAlreadyStarted, s)
	}
	g.state.Store(uint32(StateRunning))
	return nil
}

// acquireStep holds the guard for one continue call. Only valid in
// Running.
func (g *runGuard) acquireStep() error {
	g.seqMu.Lock()
	switch s := g.load(); s {
	case StateRunning:
		return nil
	case StateCompleted:
		g.seqMu.Unlock()
		return evmloader.ErrCompleted
	default:
		g.seqMu.Unlock()
		return fmt.Errorf("%w (state %s)", evmloader.ErrNotRunning, s)
	}
}

// release settles the state reached by the held call.
func (g *runGuard) release(next State) {
	g.state.Store(uint32(next))
	g.seqMu.Unlock()
}
