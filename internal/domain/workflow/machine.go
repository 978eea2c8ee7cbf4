package workflow

import "context"

// StateMachine tracks a current status and validates transitions against a configured table
type StateMachine[S Status] interface {
	// State returns the current state
	State() S

	// CanFire returns true if the action has a permitted transition from the current state
	CanFire(action Action) bool

	// Fire attempts to execute the action, transitioning to the new state if allowed
	Fire(ctx context.Context, action Action) error

	// PermittedActions returns all actions with a permitted transition from the current state
	PermittedActions() []Action
}
