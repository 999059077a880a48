package game

import "time"

// CancelFunc stops a scheduled callback. It reports whether the timer was
// stopped before firing.
type CancelFunc func() bool

// Scheduler is the timer seam. Production code uses the wall clock; tests
// substitute a manual implementation and fire callbacks deterministically.
type Scheduler interface {
	After(d time.Duration, fn func()) CancelFunc
}

type wallScheduler struct{}

func (wallScheduler) After(d time.Duration, fn func()) CancelFunc {
	t := time.AfterFunc(d, fn)
	return t.Stop
}

// NewWallScheduler returns a Scheduler backed by time.AfterFunc.
func NewWallScheduler() Scheduler {
	return wallScheduler{}
}

// Guard decides at fire time whether a deferred mutation is still valid.
// Timers outlive the state they were armed in; a false guard neutralizes the
// stale callback without side effects.
type Guard func(*State) bool

// guardStillTurnOf captures the acting player index at arm time and checks it
// has not moved on when the timer fires.
func guardStillTurnOf(playerIndex int) Guard {
	return func(s *State) bool {
		return s.CurrentPlayerIndex == playerIndex && s.Phase != PhaseGameOver
	}
}

// guardPhase passes only while the game is still in the given phase.
func guardPhase(phase GamePhase) Guard {
	return func(s *State) bool {
		return s.Phase == phase
	}
}

func guardAlways(*State) bool { return true }
