package slideshow

import "fmt"

// State is the phase of one pipeline run.
type State string

const (
	StateIdle             State = "idle"
	StateProbingDurations State = "probing_durations"
	StateBuildingClips    State = "building_clips"
	StateMerging          State = "merging"
	StateCaptioning       State = "captioning"
	StateDone             State = "done"
	StateFailed           State = "failed"
)

var stateTransitions = map[State][]State{
	StateIdle:             {StateProbingDurations},
	StateProbingDurations: {StateBuildingClips},
	StateBuildingClips:    {StateMerging},
	StateMerging:          {StateCaptioning, StateDone},
	StateCaptioning:       {StateDone},
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// CanTransition reports whether a run may move from s to next. Failed is
// reachable from every non-terminal state.
func (s State) CanTransition(next State) bool {
	if s.Terminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	for _, allowed := range stateTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// stateMachine tracks the current state and notifies an optional observer.
type stateMachine struct {
	current  State
	observer func(State)
}

func newStateMachine(observer func(State)) *stateMachine {
	return &stateMachine{current: StateIdle, observer: observer}
}

func (m *stateMachine) enter(next State) {
	if !m.current.CanTransition(next) {
		panic(fmt.Sprintf("slideshow: illegal state transition %s -> %s", m.current, next))
	}
	m.current = next
	if m.observer != nil {
		m.observer(next)
	}
}
