package statemachine

import "context"

// Guard reports whether a transition may proceed for the given runtime data.
type Guard[S, E comparable, D any] func(ctx context.Context, from S, event E, data D) bool

// Transition is a single edge of the table.
type Transition[S, E comparable, D any] struct {
	From   S
	To     S
	Event  E
	Guards []Guard[S, E, D] // all must pass
}

// Table maps (state, event) pairs to candidate transitions.
// Build it with Add before sharing it between goroutines.
type Table[S, E comparable, D any] struct {
	transitions map[S]map[E][]Transition[S, E, D]
}

// New returns an empty transition table.
func New[S, E comparable, D any]() *Table[S, E, D] {
	return &Table[S, E, D]{transitions: make(map[S]map[E][]Transition[S, E, D])}
}

// Add registers a transition and returns the table for chaining.
// Nil guards are dropped.
func (t *Table[S, E, D]) Add(from, to S, event E, guards ...Guard[S, E, D]) *Table[S, E, D] {
	clean := make([]Guard[S, E, D], 0, len(guards))
	for _, g := range guards {
		if g != nil {
			clean = append(clean, g)
		}
	}

	if _, ok := t.transitions[from]; !ok {
		t.transitions[from] = make(map[E][]Transition[S, E, D])
	}
	t.transitions[from][event] = append(t.transitions[from][event], Transition[S, E, D]{
		From:   from,
		To:     to,
		Event:  event,
		Guards: clean,
	})
	return t
}

// Next resolves the target state for event fired in state from.
func (t *Table[S, E, D]) Next(ctx context.Context, from S, event E, data D) (S, error) {
	candidates := t.transitions[from][event]
	if len(candidates) == 0 {
		return from, &NoTransitionError{State: from, Event: event}
	}

	for _, tr := range candidates {
		if passes(ctx, tr, data) {
			return tr.To, nil
		}
	}
	return from, &RejectedError{State: from, Event: event}
}

func passes[S, E comparable, D any](ctx context.Context, tr Transition[S, E, D], data D) bool {
	for _, g := range tr.Guards {
		if !g(ctx, tr.From, tr.Event, data) {
			return false
		}
	}
	return true
}
