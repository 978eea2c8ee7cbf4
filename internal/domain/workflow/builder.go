package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// GuardFunc evaluates whether a transition may proceed. A non-nil error is the refusal reason.
type GuardFunc func(ctx context.Context) error

// StateMachineBuilder builds a configured state machine
type StateMachineBuilder[S Status] interface {
	// Configure returns a state configuration for the given state
	Configure(state S) StateConfiguration[S]

	// Build creates a new state machine instance with the given initial state
	Build(initialState S) StateMachine[S]
}

// StateConfiguration configures transitions for a specific state
type StateConfiguration[S Status] interface {
	// Permit allows an action to transition to the target state
	Permit(action Action, toState S) StateConfiguration[S]

	// PermitIf allows an action to transition to the target state if the guard passes
	PermitIf(action Action, toState S, guard GuardFunc) StateConfiguration[S]

	// Forbid refuses an action from this state with a specific reason
	Forbid(action Action, reason error) StateConfiguration[S]
}

type transition[S Status] struct {
	toState S
	guard   GuardFunc
}

type stateConfig[S Status] struct {
	fromState   S
	transitions map[Action][]transition[S]
	forbidden   map[Action]error
}

type stateMachineBuilder[S Status] struct {
	configurations map[S]*stateConfig[S]
}

type stateMachine[S Status] struct {
	currentState   S
	configurations map[S]*stateConfig[S]
}

// NewBuilder creates a new state machine builder
func NewBuilder[S Status]() StateMachineBuilder[S] {
	return &stateMachineBuilder[S]{
		configurations: make(map[S]*stateConfig[S]),
	}
}

// Configure returns a state configuration for the given state
func (b *stateMachineBuilder[S]) Configure(state S) StateConfiguration[S] {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}

	config, exists := b.configurations[state]
	if !exists {
		config = &stateConfig[S]{
			fromState:   state,
			transitions: make(map[Action][]transition[S]),
			forbidden:   make(map[Action]error),
		}
		b.configurations[state] = config
	}

	return config
}

// Build creates a new state machine instance with the given initial state.
// The configuration table is copied so later builder calls do not affect it.
func (b *stateMachineBuilder[S]) Build(initialState S) StateMachine[S] {
	if !initialState.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initialState))
	}

	configsCopy := make(map[S]*stateConfig[S], len(b.configurations))
	for state, config := range b.configurations {
		transitionsCopy := make(map[Action][]transition[S], len(config.transitions))
		for action, transitions := range config.transitions {
			transitionsCopy[action] = append([]transition[S]{}, transitions...)
		}
		forbiddenCopy := make(map[Action]error, len(config.forbidden))
		for action, reason := range config.forbidden {
			forbiddenCopy[action] = reason
		}
		configsCopy[state] = &stateConfig[S]{
			fromState:   state,
			transitions: transitionsCopy,
			forbidden:   forbiddenCopy,
		}
	}

	return &stateMachine[S]{
		currentState:   initialState,
		configurations: configsCopy,
	}
}

// Permit allows an action to transition to the target state
func (c *stateConfig[S]) Permit(action Action, toState S) StateConfiguration[S] {
	return c.PermitIf(action, toState, nil)
}

// PermitIf allows an action to transition to the target state if the guard passes
func (c *stateConfig[S]) PermitIf(action Action, toState S, guard GuardFunc) StateConfiguration[S] {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}
	if _, forbidden := c.forbidden[action]; forbidden {
		panic(fmt.Sprintf("action %s is both permitted and forbidden from %s", action, c.fromState))
	}

	c.transitions[action] = append(c.transitions[action], transition[S]{
		toState: toState,
		guard:   guard,
	})

	return c
}

// Forbid refuses an action from this state with a specific reason
func (c *stateConfig[S]) Forbid(action Action, reason error) StateConfiguration[S] {
	if _, permitted := c.transitions[action]; permitted {
		panic(fmt.Sprintf("action %s is both permitted and forbidden from %s", action, c.fromState))
	}
	c.forbidden[action] = reason
	return c
}

// State returns the current state
func (m *stateMachine[S]) State() S {
	return m.currentState
}

// CanFire returns true if the action has a transition configured from the current state.
// Guards are not evaluated.
func (m *stateMachine[S]) CanFire(action Action) bool {
	config, exists := m.configurations[m.currentState]
	if !exists {
		return false
	}
	return len(config.transitions[action]) > 0
}

// Fire attempts to execute the action, transitioning to the new state if allowed
func (m *stateMachine[S]) Fire(ctx context.Context, action Action) error {
	config, exists := m.configurations[m.currentState]
	if !exists {
		return m.refuse(action, fmt.Errorf("%w: no configuration for state", ErrInvalidTransition))
	}

	if reason, forbidden := config.forbidden[action]; forbidden {
		return m.refuse(action, reason)
	}

	transitions := config.transitions[action]
	if len(transitions) == 0 {
		return m.refuse(action, ErrInvalidTransition)
	}

	// First passing guard wins; the first refusal is reported if none pass
	var firstRefusal error
	for _, t := range transitions {
		if t.guard == nil {
			m.currentState = t.toState
			return nil
		}
		err := t.guard(ctx)
		if err == nil {
			m.currentState = t.toState
			return nil
		}
		if firstRefusal == nil {
			firstRefusal = err
		}
	}

	// Guards that failed to evaluate keep their own classification
	if Reason(firstRefusal) == nil && !errors.Is(firstRefusal, ErrGuardFailed) {
		return m.refuse(action, firstRefusal)
	}
	return m.refuse(action, fmt.Errorf("%w: %w", ErrGuardFailed, firstRefusal))
}

func (m *stateMachine[S]) refuse(action Action, err error) error {
	return &TransitionError{
		Action: action,
		From:   m.currentState.String(),
		Err:    err,
	}
}

// PermittedActions returns all actions with a transition configured from the current state
func (m *stateMachine[S]) PermittedActions() []Action {
	config, exists := m.configurations[m.currentState]
	if !exists {
		return []Action{}
	}

	actions := make([]Action, 0, len(config.transitions))
	for action := range config.transitions {
		actions = append(actions, action)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })

	return actions
}
