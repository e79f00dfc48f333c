package state

import (
	"errors"
	"fmt"
	"sync"

	"github.com/wfunc/arenaledger/models"
)

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// Lifecycle 状态转换表. Only registered transitions are legal; a state with
// no outgoing transitions is terminal.
type Lifecycle[S ~string] struct {
	name        string
	transitions map[S]map[S]func() bool // fromState -> toState -> condition
	mutex       sync.RWMutex
}

func NewLifecycle[S ~string](name string) *Lifecycle[S] {
	return &Lifecycle[S]{
		name:        name,
		transitions: make(map[S]map[S]func() bool),
	}
}

func (l *Lifecycle[S]) AddTransition(from, to S, condition func() bool) error {
	if from == to {
		return fmt.Errorf("%s: self transition %q", l.name, from)
	}
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if _, exists := l.transitions[from]; !exists {
		l.transitions[from] = make(map[S]func() bool)
	}
	l.transitions[from][to] = condition
	return nil
}

// CanTransition checks the table and the transition condition.
func (l *Lifecycle[S]) CanTransition(from, to S) bool {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	conditions, exists := l.transitions[from]
	if !exists {
		return false
	}
	condition, exists := conditions[to]
	if !exists {
		return false
	}
	return condition == nil || condition()
}

// ChangeState moves *current to next or leaves it untouched.
func (l *Lifecycle[S]) ChangeState(current *S, next S) error {
	if !l.CanTransition(*current, next) {
		return fmt.Errorf("%w: %s %s -> %s", ErrTransitionNotAllowed, l.name, *current, next)
	}
	*current = next
	return nil
}

// IsTerminal reports whether s has no outgoing transitions.
func (l *Lifecycle[S]) IsTerminal(s S) bool {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return len(l.transitions[s]) == 0
}

// NewSessionLifecycle: started -> finished.
func NewSessionLifecycle() *Lifecycle[models.SessionStatus] {
	l := NewLifecycle[models.SessionStatus]("session")
	_ = l.AddTransition(models.SessionStarted, models.SessionFinished, nil)
	return l
}

// NewTournamentLifecycle: active -> finished.
func NewTournamentLifecycle() *Lifecycle[models.TournamentStatus] {
	l := NewLifecycle[models.TournamentStatus]("tournament")
	_ = l.AddTransition(models.TournamentActive, models.TournamentFinished, nil)
	return l
}
