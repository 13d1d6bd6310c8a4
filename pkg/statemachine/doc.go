// Package statemachine provides a small, type-safe transition table for
// finite-state machines whose current state lives outside the process.
//
// Records such as subscriptions keep their state in a database row, so the
// table itself is stateless: callers pass the current state, the event and
// any runtime data, and receive the next state or a typed error. The table
// is built once at start-up and is safe for concurrent use afterwards.
//
// # Usage
//
//	type Status string
//	type Event string
//
//	table := statemachine.New[Status, Event, *Order]().
//	    Add("pending", "paid", "pay").
//	    Add("paid", "shipped", "ship", hasAddress)
//
//	next, err := table.Next(ctx, "paid", "ship", order)
//
// # Guards
//
// A transition may carry guards. When several transitions are registered for
// the same state and event the first one whose guards all pass wins, which
// allows guard-based branching with explicit priority.
//
// # Errors
//
// Next returns *NoTransitionError when nothing is registered for the state
// and event pair, and *RejectedError when transitions exist but every one was
// vetoed by a guard. IsNoTransition and IsRejected classify them.
package statemachine
