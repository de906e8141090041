// Package worker implements the Worker Pool and Supervisor of spec
// §4.5/§5: it spawns P parallel rollout drivers, each with its own
// engine (or a shared tree), and consolidates the globally best plan.
// Grounded on reinforcement/learning.go's goroutine-per-agent +
// channerics.Merge fan-in, generalized to the rollout/mcts domain.
package worker

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"

	"github.com/richardlevinson/dshield-planner/atomicfloat"
	"github.com/richardlevinson/dshield-planner/mcts"
	"github.com/richardlevinson/dshield-planner/planerrors"
	"github.com/richardlevinson/dshield-planner/planmodel"
	"github.com/richardlevinson/dshield-planner/rollout"
	"github.com/richardlevinson/dshield-planner/satstate"
)

// Config is the planner's {planner: ...} configuration section (spec §6).
type Config struct {
	RolloutLimit int
	ProcessCount int
	Greedy       bool
	AllGreedy    bool
	TimeLimit    time.Duration // zero means unbounded
	SharedTree   bool
}

// RootChildSummary reports one root-level move's accumulated statistics,
// part of a worker's published result (spec §4.5).
type RootChildSummary struct {
	Move        string
	VisitCount  int
	AvgReward   float64
}

// Result is one worker's published outcome.
type Result struct {
	WorkerID         int
	BestScore        float64
	BestStates       map[string]*satstate.State
	RandomPct        float64
	RootChildSummary []RootChildSummary

	// Violations collects every domain-invariant violation (spec §4.2/§7)
	// observed across this worker's rollouts, for the supervisor to log.
	Violations []rollout.Violation
}

// ProgressSample is a live per-rollout update, consumed by progress/.
type ProgressSample struct {
	WorkerID  int
	Rollout   int
	BestScore float64
	RandomPct float64
}

// Pool runs ProcessCount parallel rollout drivers against a shared,
// immutable plan-variable scaffolding.
type Pool struct {
	Build      *planmodel.BuildResult
	Satellites map[string]rollout.SatelliteConfig
	ValueOf    satstate.ValueFunc
	Sorter     mcts.Sorter
	Config     Config

	// Progress, if non-nil, receives a sample after every rollout. Sends
	// are non-blocking: a full channel drops the sample rather than
	// stalling a worker.
	Progress chan<- ProgressSample

	// BestScoreGauge, if non-nil, is raised (never lowered) with every
	// rollout's objective across all workers, without taking the tree
	// lock — the cross-worker "best score so far" published live.
	BestScoreGauge *atomicfloat.Float64

	// Logger receives one line per worker crash. Nil uses log.Default().
	Logger *log.Logger
}

// Run spawns Config.ProcessCount workers and returns the globally best
// result: the entry with the maximum BestScore across every worker that
// completed (the pool-max law of spec §8). Per spec §7's WorkerCrash
// handling, a single worker's failure terminates only that worker — it is
// logged and its slot left out of pickBest, while the remaining workers'
// rollouts proceed undisturbed. Run only fails outright if every worker
// crashed, leaving no result to publish.
func (p *Pool) Run(ctx context.Context) (*Result, error) {
	if p.Config.ProcessCount <= 0 {
		return nil, fmt.Errorf("worker: ProcessCount must be positive")
	}

	logger := p.Logger
	if logger == nil {
		logger = log.Default()
	}

	var sharedTree *mcts.Tree
	var sharedLock *sync.Mutex
	if p.Config.SharedTree {
		sharedTree = mcts.NewTree()
		sharedLock = &sync.Mutex{}
	}

	results := make([]*Result, p.Config.ProcessCount)
	g, gctx := errgroup.WithContext(ctx)

	// Each worker publishes its own progress channel; channerics.Merge
	// fans them into one stream, exactly as learning.go's agent_worker
	// channels are merged for its estimator goroutine. A single drain
	// goroutine forwards merged samples to p.Progress (if set) so a slow
	// or absent consumer never stalls a worker.
	workerChans := make([]chan ProgressSample, p.Config.ProcessCount)
	recvChans := make([]<-chan ProgressSample, p.Config.ProcessCount)
	for i := range workerChans {
		workerChans[i] = make(chan ProgressSample, 16)
		recvChans[i] = workerChans[i]
	}
	merged := channerics.Merge(ctx.Done(), recvChans...)
	go func() {
		for sample := range merged {
			if p.Progress == nil {
				continue
			}
			select {
			case p.Progress <- sample:
			default:
			}
		}
	}()

	for i := 0; i < p.Config.ProcessCount; i++ {
		i := i
		progressCh := workerChans[i]
		g.Go(func() error {
			defer close(progressCh)
			res, err := p.runWorker(gctx, i, sharedTree, sharedLock, progressCh)
			if err != nil {
				logger.Printf("worker %d: %v: %v", i, planerrors.ErrWorkerCrash, err)
				return nil
			}
			results[i] = res
			return nil
		})
	}

	// g.Wait() never returns a non-nil error: every worker's failure is
	// caught and logged above, leaving its results[i] slot nil rather than
	// aborting its siblings.
	_ = g.Wait()

	winner := pickBest(results)
	if winner == nil {
		return nil, fmt.Errorf("worker: %w: every worker crashed", planerrors.ErrWorkerCrash)
	}
	return winner, nil
}

func (p *Pool) runWorker(ctx context.Context, workerID int, sharedTree *mcts.Tree, sharedLock *sync.Mutex, progressCh chan<- ProgressSample) (*Result, error) {
	pct := randomChoicePct(workerID, p.Config.ProcessCount, p.Config.Greedy, p.Config.AllGreedy)

	tree := sharedTree
	if tree == nil {
		tree = mcts.NewTree()
	}

	rng := rand.New(rand.NewSource(int64(workerID) + 1))
	sim := rollout.New(p.Build, p.Satellites)

	bestScore := math.Inf(-1)
	var bestStates map[string]*satstate.State
	var lastEngine *mcts.Engine
	var violations []rollout.Violation

	var deadline time.Time
	if p.Config.TimeLimit > 0 {
		deadline = time.Now().Add(p.Config.TimeLimit)
	}

	for r := 0; r < p.Config.RolloutLimit; r++ {
		if ctx.Err() != nil {
			break
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			break
		}

		engine := mcts.NewEngine(tree, p.Sorter, pct, rng, sharedLock)
		engine.StartRollout()
		if engine.Exhausted {
			break
		}

		result, err := sim.Run(engine, p.ValueOf)
		if err != nil {
			return nil, err
		}
		engine.Backpropagate(result.Objective)
		lastEngine = engine
		violations = append(violations, result.Violations...)

		if result.Objective > bestScore {
			bestScore = result.Objective
			bestStates = result.States
		}
		if p.BestScoreGauge != nil {
			p.BestScoreGauge.RaiseMax(result.Objective)
		}
		sample := ProgressSample{WorkerID: workerID, Rollout: r, BestScore: bestScore, RandomPct: engine.RandomChoiceRate() * 100}
		select {
		case progressCh <- sample:
		default:
		}
	}

	randomPct := pct
	if lastEngine != nil {
		randomPct = lastEngine.RandomChoiceRate() * 100
	}

	return &Result{
		WorkerID:         workerID,
		BestScore:        bestScore,
		BestStates:       bestStates,
		RandomPct:        randomPct,
		RootChildSummary: summarizeRoot(tree),
		Violations:       violations,
	}, nil
}

// randomChoicePct assigns a worker's simulate-stage random-sampling
// probability, per spec §4.5: monotonically increasing across workers
// when greedy && !allGreedy, else constant 100 for pure random or 0 for
// pure greedy.
func randomChoicePct(workerID, total int, greedy, allGreedy bool) float64 {
	switch {
	case greedy && !allGreedy:
		if total <= 1 {
			return 0
		}
		return float64(workerID) / float64(total-1) * 100
	case allGreedy:
		return 0
	default:
		return 100
	}
}

func summarizeRoot(tree *mcts.Tree) []RootChildSummary {
	root := tree.Node(tree.Root())
	summary := make([]RootChildSummary, 0, len(root.Children))
	for _, id := range root.Children {
		n := tree.Node(id)
		summary = append(summary, RootChildSummary{
			Move:       n.PriorMove,
			VisitCount: n.VisitCount,
			AvgReward:  n.AvgReward,
		})
	}
	return summary
}

// pickBest returns the entry with the maximum BestScore, the pool-max
// law of spec §8. Nil entries (a worker that crashed) are skipped.
func pickBest(results []*Result) *Result {
	var winner *Result
	for _, r := range results {
		if r == nil {
			continue
		}
		if winner == nil || r.BestScore > winner.BestScore {
			winner = r
		}
	}
	return winner
}
