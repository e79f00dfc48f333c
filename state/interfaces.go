// state/interfaces.go
package state

// StateMachine is the transition surface the platform relies on.
type StateMachine[S ~string] interface {
	AddTransition(from, to S, condition func() bool) error
	CanTransition(from, to S) bool
	ChangeState(current *S, next S) error
}

var (
	_ StateMachine[string] = (*Lifecycle[string])(nil)
)
