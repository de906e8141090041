package mcts

import (
	"math/rand"
	"sync"

	"github.com/richardlevinson/dshield-planner/planerrors"
	"github.com/richardlevinson/dshield-planner/planmodel"
	"github.com/richardlevinson/dshield-planner/satstate"
)

// Stage is the MCTS engine's position within one rollout's
// select/replay/expand/simulate sequence. Per Design Note 9, this is
// threaded explicitly through ChooseValue rather than driven by
// coroutine/generator control flow.
type Stage int

const (
	StageReplay Stage = iota
	StageExpand
	StageSimulate
)

// maxSelectDepth bounds the select stage's tree descent. The descent
// always stops at a node without children, so this bound is reached only
// by a tree more than maxSelectDepth levels deep; StartRollout then sets
// Exhausted.
const maxSelectDepth = 1 << 20

// Engine drives one worker's MCTS search over a shared (or exclusive)
// Tree. One Engine exists per worker; StartRollout/ChooseValue/
// Backpropagate together implement the stage machine of spec §4.3.
type Engine struct {
	tree   *Tree
	lock   *sync.Mutex // nil unless the tree is shared across workers
	sorter Sorter      // nil => uniform random simulate/expand

	randomChoicePct float64 // 0-100; simulate-stage random-sampling probability
	rng             *rand.Rand

	stage      Stage
	replayPlan []string
	replayIdx  int
	current    int // node id the next node-mutating call will operate on/from

	locked bool // whether this rollout currently holds e.lock

	// Exhausted is set by StartRollout only when the descent exceeds
	// maxSelectDepth. A tree in which every plan is already enumerated is
	// not detected: select then returns a terminal leaf, and the rollout
	// replays an existing plan without adding a node.
	Exhausted bool

	randomChoiceCount int
	totalChoiceCount  int
}

// NewEngine constructs an engine over tree. sorter may be nil for pure
// random simulate/expand. lock is non-nil only in shared-tree mode.
func NewEngine(tree *Tree, sorter Sorter, randomChoicePct float64, rng *rand.Rand, lock *sync.Mutex) *Engine {
	return &Engine{
		tree:            tree,
		lock:            lock,
		sorter:          sorter,
		randomChoicePct: randomChoicePct,
		rng:             rng,
	}
}

// StartRollout performs the select stage: descend from root via
// BestChild while the current node has children and no unexplored
// choices remain, per spec §4.3. Must be called once before driving a
// rollout through rollout.Simulator.Run with this engine as the Policy.
func (e *Engine) StartRollout() {
	if e.lock != nil {
		e.lock.Lock()
		e.locked = true
	}

	node := e.tree.Root()
	path := make([]string, 0)
	depth := 0
	for {
		n := e.tree.Node(node)
		if len(n.Children) == 0 || !n.FullyExpanded() {
			break
		}
		depth++
		if depth > maxSelectDepth {
			e.Exhausted = true
			break
		}
		child := e.tree.BestChild(node)
		path = append(path, e.tree.Node(child).PriorMove)
		node = child
	}

	e.current = e.tree.Root()
	e.replayPlan = path
	e.replayIdx = 0

	if len(path) == 0 {
		e.stage = StageExpand
	} else {
		e.stage = StageReplay
	}
}

// ChooseValue implements rollout.Policy: it is called once per active
// plan variable, in chronological order, for the duration of one
// rollout.
func (e *Engine) ChooseValue(v planmodel.Variable, choices planmodel.Domain, state *satstate.State) (string, error) {
	switch e.stage {
	case StageReplay:
		return e.chooseReplay(v, choices)
	case StageExpand:
		return e.chooseExpand(v, choices, state)
	default:
		return e.chooseSimulate(v, choices, state)
	}
}

func (e *Engine) chooseReplay(v planmodel.Variable, choices planmodel.Domain) (string, error) {
	cmd := e.replayPlan[e.replayIdx]
	e.replayIdx++

	// Record the choices of the node this edge leaves on its first visit,
	// then advance the descend pointer to the child reached by this edge.
	// The child's own choices belong to the next variable and are recorded
	// when it is expanded.
	cur := e.tree.Node(e.current)
	if cur.Status == StatusInit {
		cur.UnexploredChoices = choices.Clone()
		cur.Status = StatusOpen
	}
	next := 0
	for _, childID := range cur.Children {
		if e.tree.Node(childID).PriorMove == cmd {
			next = childID
			break
		}
	}
	if next != 0 {
		e.current = next
	}

	if e.replayIdx >= len(e.replayPlan) {
		e.stage = StageExpand
	}
	return cmd, nil
}

func (e *Engine) chooseExpand(v planmodel.Variable, choices planmodel.Domain, state *satstate.State) (string, error) {
	defer e.unlockAfterExpand()

	node := e.tree.Node(e.current)
	if node.Status == StatusInit {
		node.UnexploredChoices = choices.Clone()
		node.Status = StatusOpen
	}

	choice := e.pickUnexplored(v, node, state)
	node.UnexploredChoices = node.UnexploredChoices.Without(choice)
	if len(node.UnexploredChoices) == 0 {
		node.Status = StatusExhausted
	}

	child := e.tree.NewChild(e.current, choice, v)
	e.current = child
	e.stage = StageSimulate
	return choice, nil
}

func (e *Engine) pickUnexplored(v planmodel.Variable, node *Node, state *satstate.State) string {
	if e.sorter != nil {
		ranked := e.sorter.Rank(v, node.UnexploredChoices, state)
		if len(ranked) > 0 {
			return ranked[0]
		}
	}
	return e.uniform(node.UnexploredChoices)
}

func (e *Engine) chooseSimulate(v planmodel.Variable, choices planmodel.Domain, state *satstate.State) (string, error) {
	e.totalChoiceCount++

	if e.sorter == nil {
		e.randomChoiceCount++
		return e.uniform(choices), nil
	}
	if e.rng.Float64()*100 < e.randomChoicePct {
		e.randomChoiceCount++
		return e.uniform(choices), nil
	}
	ranked := e.sorter.Rank(v, choices, state)
	if len(ranked) == 0 {
		return "", planerrors.ErrDomainInvariantViolation
	}
	return ranked[0], nil
}

func (e *Engine) uniform(choices planmodel.Domain) string {
	if len(choices) == 0 {
		return planmodel.CmdIdle
	}
	return choices[e.rng.Intn(len(choices))]
}

func (e *Engine) unlockAfterExpand() {
	if e.locked {
		e.lock.Unlock()
		e.locked = false
	}
}

// Backpropagate walks from the node created during this rollout's expand
// stage up to the root, incrementing VisitCount and adding score to
// TotalReward at every node, per spec §4.3. Must be called exactly once
// per rollout, after rollout.Simulator.Run returns.
func (e *Engine) Backpropagate(score float64) {
	// A rollout whose replay covered every decision never reaches expand,
	// so the lock taken at select may still be held here.
	e.unlockAfterExpand()
	if e.lock != nil {
		e.lock.Lock()
		defer e.lock.Unlock()
	}
	id := e.current
	for id != noParent {
		n := e.tree.Node(id)
		n.VisitCount++
		n.TotalReward += score
		n.AvgReward = n.TotalReward / float64(n.VisitCount)
		id = n.Parent
	}
}

// RandomChoiceRate reports the fraction of this engine's simulate-stage
// picks that were random rather than heuristic, per the per-worker
// random-choice-rate accounting supplemented from dshieldPlanner.py.
func (e *Engine) RandomChoiceRate() float64 {
	if e.totalChoiceCount == 0 {
		return 0
	}
	return float64(e.randomChoiceCount) / float64(e.totalChoiceCount)
}
