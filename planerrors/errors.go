// Package planerrors defines the error taxonomy of the planner (spec §7):
// sentinel values identifying the category of a failure, wrapped with
// fmt.Errorf for context, matching the teacher's plain error-wrapping
// style rather than a custom error-struct hierarchy.
package planerrors

import "errors"

var (
	// ErrInputMissing: a required file/directory is absent. Fatal, abort
	// before search begins.
	ErrInputMissing = errors.New("planerrors: required input missing")

	// ErrInputAmbiguous: multiple candidate files when one was expected.
	// Default behavior is to log and pick the first; callers may choose
	// to promote this to fatal.
	ErrInputAmbiguous = errors.New("planerrors: ambiguous input")

	// ErrDomainInvariantViolation: a propagation step collapsed a domain
	// to a non-IDL singleton. Logged with context; the rollout continues
	// best-effort but the event is surfaced to the caller.
	ErrDomainInvariantViolation = errors.New("planerrors: domain invariant violation")

	// ErrConstraintBreach: storage or energy observed outside its legal
	// range during post-run verification. Fatal for the verifier.
	ErrConstraintBreach = errors.New("planerrors: constraint breach")

	// ErrExhaustedTree: select found no unexplored leaf. Not itself an
	// error condition for the worker. The engine does not return this
	// value; it reports exhaustion through Engine.Exhausted.
	ErrExhaustedTree = errors.New("planerrors: tree exhausted")

	// ErrWorkerCrash: a worker goroutine failed; the pool proceeds with
	// the remaining workers' results.
	ErrWorkerCrash = errors.New("planerrors: worker crashed")
)
