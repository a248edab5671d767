// Package enrich holds the enrichment agents run against resolved operators:
// decision-maker lookup, POS system detection and expansion signals. Agents
// never return errors to the caller; failures are reported in the Result.
package enrich

// Outcome classifies what an agent produced.
type Outcome string

const (
	OutcomeFound    Outcome = "found"
	OutcomeNoSignal Outcome = "no_signal"
	OutcomeFailed   Outcome = "failed"
)

// Result is the outcome of one agent call.
type Result[T any] struct {
	Value   T
	Outcome Outcome
	Err     error
}

// Found reports whether the agent produced a usable value.
func (r Result[T]) Found() bool { return r.Outcome == OutcomeFound }

func found[T any](v T) Result[T] {
	return Result[T]{Value: v, Outcome: OutcomeFound}
}

func noSignal[T any](v T) Result[T] {
	return Result[T]{Value: v, Outcome: OutcomeNoSignal}
}

func failed[T any](err error) Result[T] {
	return Result[T]{Outcome: OutcomeFailed, Err: err}
}
