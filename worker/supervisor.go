package worker

import (
	"context"
	"fmt"
	"log"

	"github.com/richardlevinson/dshield-planner/planerrors"
	"github.com/richardlevinson/dshield-planner/rollout"
)

// Supervisor starts the pool, waits for completion, and publishes the
// winning state exactly once. Grounded on
// _examples/original_source/supervisor.py's supervisorMsgHandler, which
// plays the same single-process role around Python's multiprocessing
// pool: start it, join it, republish bestPlanState.
type Supervisor struct {
	Pool   *Pool
	Logger *log.Logger

	// published is set once Run has republished a winner, so a second
	// call is a programmer error rather than a silent double-publish.
	published bool
}

// NewSupervisor constructs a Supervisor around pool. A nil logger uses
// log.Default().
func NewSupervisor(pool *Pool, logger *log.Logger) *Supervisor {
	if logger == nil {
		logger = log.Default()
	}
	return &Supervisor{Pool: pool, Logger: logger}
}

// Run starts the pool, waits for every worker to finish (or the context
// to be cancelled), and returns the globally best result.
func (s *Supervisor) Run(ctx context.Context) (*Result, error) {
	if s.published {
		return nil, fmt.Errorf("worker: supervisor already published a result")
	}

	if s.Pool.Logger == nil {
		s.Pool.Logger = s.Logger
	}

	s.Logger.Printf("supervisor: starting pool of %d workers, rolloutLimit=%d", s.Pool.Config.ProcessCount, s.Pool.Config.RolloutLimit)

	result, err := s.Pool.Run(ctx)
	if err != nil {
		s.Logger.Printf("supervisor: pool run failed: %v", err)
		return nil, fmt.Errorf("supervisor: %w", err)
	}

	logViolations(s.Logger, result.Violations)

	s.published = true
	s.Logger.Printf("supervisor: worker %d published the winning plan, score=%.3f", result.WorkerID, result.BestScore)
	return result, nil
}

// logViolations logs each domain-invariant violation in violations (spec
// §4.2/§7: "the event is surfaced", "log with full context"), with the
// variable and collapsed domain that triggered it. Run passes the winning
// worker's violations only; other workers' violations are not logged.
func logViolations(logger *log.Logger, violations []rollout.Violation) {
	for _, v := range violations {
		logger.Printf("supervisor: %v: variable=%s domain=%v", planerrors.ErrDomainInvariantViolation, v.Variable, v.Domain)
	}
}
