package cluster

import "sync"

// SharedState is the small, coarse-grained state shared between the
// Supervisor and Housekeeper goroutines. The Supervisor exclusively owns
// every field; the Housekeeper only ever reads a consistent snapshot.
type SharedState struct {
	mu sync.RWMutex

	childPID int
	running  bool
	runOld   bool
	me       *Member
}

// NewSharedState returns an empty SharedState.
func NewSharedState() *SharedState {
	return &SharedState{}
}

// SetChild records the child process pid and whether it is currently
// running. Called only by the Supervisor.
func (s *SharedState) SetChild(pid int, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.childPID = pid
	s.running = running
}

// SetRunOld records whether the Supervisor is currently running the
// previous-version binary.
func (s *SharedState) SetRunOld(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runOld = v
}

// SetMe records the latest resolved identity of this node.
func (s *SharedState) SetMe(me *Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.me = me
}

// StateSnapshot is a point-in-time, read-only copy of the shared state, safe for
// the Housekeeper to read without holding any lock.
type StateSnapshot struct {
	ChildPID int
	Running  bool
	RunOld   bool
	Me       *Member
}

// Snapshot returns a copy of the current state.
func (s *SharedState) Snapshot() StateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StateSnapshot{
		ChildPID: s.childPID,
		Running:  s.running,
		RunOld:   s.runOld,
		Me:       s.me,
	}
}
