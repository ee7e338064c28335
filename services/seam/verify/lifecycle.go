// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package verify

import "fmt"

// State is a stage in an opportunity's lifecycle.
type State int

const (
	// StateDiscovered means the classifier emitted the opportunity.
	StateDiscovered State = iota

	// StatePlanned means a plan (possibly a no-op) exists for it.
	StatePlanned

	// StateVerified means the plan passed all verification checks.
	StateVerified

	// StateApplied means the plan was recorded in the ledger. Terminal.
	StateApplied

	// StateRejected means verification failed or the ledger refused the
	// plan. Terminal.
	StateRejected
)

var stateNames = map[State]string{
	StateDiscovered: "discovered",
	StatePlanned:    "planned",
	StateVerified:   "verified",
	StateApplied:    "applied",
	StateRejected:   "rejected",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// validTransitions maps each state to the states it may advance to. No
// stage may be skipped, and applied/rejected are terminal.
var validTransitions = map[State][]State{
	StateDiscovered: {StatePlanned},
	StatePlanned:    {StateVerified, StateRejected},
	StateVerified:   {StateApplied, StateRejected},
}

// Lifecycle tracks one opportunity through its stages.
//
// Thread Safety:
//
//	Not safe for concurrent use; each opportunity's lifecycle is owned by
//	the pipeline stage processing it.
type Lifecycle struct {
	state State
}

// NewLifecycle starts a lifecycle at discovered.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateDiscovered}
}

// State returns the current state.
func (l *Lifecycle) State() State { return l.state }

// Advance moves to the next state, rejecting skips and transitions out of
// a terminal state.
func (l *Lifecycle) Advance(to State) error {
	for _, allowed := range validTransitions[l.state] {
		if allowed == to {
			l.state = to
			return nil
		}
	}
	return fmt.Errorf("invalid lifecycle transition %s -> %s", l.state, to)
}

// Terminal reports whether the lifecycle has reached applied or rejected.
func (l *Lifecycle) Terminal() bool {
	return l.state == StateApplied || l.state == StateRejected
}
