// Package engine orchestrates the full trade execution pipeline: compliance
// and risk gating, ledger reservation, broker placement and polling, commit
// or rollback, and persistence.
package engine

import "fmt"

// State is one step in a trade attempt's lifecycle.
type State string

const (
	StateProposed        State = "PROPOSED"
	StateRiskChecked     State = "RISK_CHECKED"
	StateReserved        State = "RESERVED"
	StatePlaced          State = "PLACED"
	StatePolling         State = "POLLING"
	StateFilled          State = "FILLED"
	StatePartiallyFilled State = "PARTIALLY_FILLED"
	StateRejected        State = "REJECTED"
	StateTimedOut        State = "TIMED_OUT"
	StateCommitted       State = "COMMITTED"
	StateRolledBack      State = "ROLLED_BACK"
	StatePersisted       State = "PERSISTED"
)

// Event drives transitions between attempt states.
type Event string

const (
	EventRiskApproved   Event = "RISK_APPROVED"
	EventRejected       Event = "REJECTED"
	EventReserved       Event = "RESERVED"
	EventPlaced         Event = "PLACED"
	EventPlaceFailed    Event = "PLACE_FAILED"
	EventPollStarted    Event = "POLL_STARTED"
	EventFilled         Event = "FILLED"
	EventPartialFill    Event = "PARTIAL_FILL"
	EventBrokerRejected Event = "BROKER_REJECTED"
	EventTimedOut       Event = "TIMED_OUT"
	EventCommitted      Event = "COMMITTED"
	EventRolledBack     Event = "ROLLED_BACK"
	EventPersisted      Event = "PERSISTED"
)

// transitions is the complete legal state graph. The driver performs
// effects; this table only encodes which moves are allowed, which keeps
// the lifecycle unit-testable without a broker.
var transitions = map[State]map[Event]State{
	StateProposed: {
		EventRiskApproved: StateRiskChecked,
		EventRejected:     StateRejected,
	},
	StateRiskChecked: {
		EventReserved: StateReserved,
		EventRejected: StateRejected,
	},
	StateReserved: {
		EventPlaced:      StatePlaced,
		EventPlaceFailed: StateRolledBack,
		EventRejected:    StateRolledBack,
	},
	StatePlaced: {
		EventPollStarted: StatePolling,
	},
	StatePolling: {
		EventFilled:         StateFilled,
		EventPartialFill:    StatePartiallyFilled,
		EventBrokerRejected: StateRolledBack,
		EventTimedOut:       StateTimedOut,
	},
	StateFilled: {
		EventCommitted:  StateCommitted,
		EventRolledBack: StateRolledBack,
	},
	StatePartiallyFilled: {
		EventCommitted:  StateCommitted,
		EventRolledBack: StateRolledBack,
	},
	StateTimedOut: {
		EventPartialFill: StatePartiallyFilled,
		EventRolledBack:  StateRolledBack,
	},
	StateCommitted: {
		EventPersisted: StatePersisted,
	},
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case StateRejected, StateRolledBack, StatePersisted:
		return true
	}
	return false
}

// Machine tracks one trade attempt through the lifecycle.
type Machine struct {
	state   State
	history []State
}

// NewMachine starts a machine in StateProposed.
func NewMachine() *Machine {
	return &Machine{state: StateProposed, history: []State{StateProposed}}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// History returns every state visited in order.
func (m *Machine) History() []State {
	out := make([]State, len(m.history))
	copy(out, m.history)
	return out
}

// Apply transitions the machine. An illegal event for the current state is
// a programming error in the driver.
func (m *Machine) Apply(ev Event) error {
	next, err := Next(m.state, ev)
	if err != nil {
		return err
	}
	m.state = next
	m.history = append(m.history, next)
	return nil
}

// Next is the pure transition function.
func Next(s State, ev Event) (State, error) {
	legal, ok := transitions[s]
	if !ok {
		return s, fmt.Errorf("state %s is terminal, cannot apply %s", s, ev)
	}
	next, ok := legal[ev]
	if !ok {
		return s, fmt.Errorf("event %s is not legal in state %s", ev, s)
	}
	return next, nil
}
