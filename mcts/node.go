// Package mcts implements the Monte Carlo Tree Search engine: a node
// arena, the select/replay/expand/simulate/backpropagate stage machine,
// rank-normalized UCB selection, and the heuristic sorter. Grounded on
// _examples/original_source/mctsNode.py (node shape) and dshieldPlanner.py
// (stage behavior), reimplemented per Design Note 9 as an explicit state
// object threaded through Policy.ChooseValue rather than the source's
// generator-style control flow.
package mcts

import (
	"math"
	"sort"

	"github.com/richardlevinson/dshield-planner/planmodel"
)

// Status is a node's expansion state.
type Status int

const (
	// StatusInit marks a freshly created node whose choices have not yet
	// been established.
	StatusInit Status = iota
	// StatusOpen marks a node that has been visited and has at least one
	// unexplored choice remaining.
	StatusOpen
	// StatusExhausted marks a node with no unexplored choices left; the
	// select stage only descends past exhausted nodes.
	StatusExhausted
)

// noParent is the sentinel parent id for the root node. Node ids start
// at 1 (arena index id-1), so 0 is never a valid node id.
const noParent = 0

// Node is one vertex of the search tree: the move that led to it
// (PriorMove, on the variable Name), its accumulated statistics, and its
// still-unexplored choices.
type Node struct {
	ID       int
	Parent   int
	Children []int

	// PriorMove is the command on the edge from Parent to this node; the
	// root's PriorMove is empty.
	PriorMove string
	// Name is the plan variable for which PriorMove was chosen; the
	// zero value for the root.
	Name planmodel.Variable

	VisitCount  int
	TotalReward float64
	AvgReward   float64

	Status            Status
	UnexploredChoices planmodel.Domain
	Depth             int
}

// Tree is the node arena. Ids are dense (arena index = id-1); children
// are referenced by id rather than pointer, per Design Note 9.
type Tree struct {
	nodes []Node
}

// NewTree constructs a tree with a single root node.
func NewTree() *Tree {
	t := &Tree{}
	t.nodes = append(t.nodes, Node{ID: 1, Parent: noParent, Status: StatusInit, Depth: 0})
	return t
}

// Root returns the root node's id, always 1.
func (t *Tree) Root() int { return 1 }

// Node returns a pointer into the arena for id. The pointer is valid
// only until the next call to NewChild (which may grow the backing
// slice); callers needing to hold a reference across NewChild calls
// should re-fetch by id.
func (t *Tree) Node(id int) *Node {
	return &t.nodes[id-1]
}

// NewChild creates a child of parent labeled with (priorMove, name) and
// returns its id.
func (t *Tree) NewChild(parent int, priorMove string, name planmodel.Variable) int {
	id := len(t.nodes) + 1
	depth := t.Node(parent).Depth + 1
	t.nodes = append(t.nodes, Node{
		ID:        id,
		Parent:    parent,
		PriorMove: priorMove,
		Name:      name,
		Status:    StatusInit,
		Depth:     depth,
	})
	t.Node(parent).Children = append(t.Node(parent).Children, id)
	return id
}

// Size returns the number of nodes in the arena, including the root.
func (t *Tree) Size() int { return len(t.nodes) }

// BestChild selects nodeID's child with the greatest rank-normalized UCB
// score, per spec §4.3. Children are ranked ascending by AvgReward
// (children with equal AvgReward share a rank); each rank is normalized by
// the sum of ranks 1..K; the exploration term uses c=√2. Ties are broken
// by insertion (children-slice) order.
func (t *Tree) BestChild(nodeID int) int {
	node := t.Node(nodeID)
	children := node.Children
	if len(children) == 0 {
		return 0
	}

	byReward := append([]int(nil), children...)
	sort.SliceStable(byReward, func(i, j int) bool {
		return t.Node(byReward[i]).AvgReward < t.Node(byReward[j]).AvgReward
	})
	rankOf := make(map[int]int, len(byReward))
	for i, id := range byReward {
		rank := i + 1
		if i > 0 && t.Node(id).AvgReward == t.Node(byReward[i-1]).AvgReward {
			rank = rankOf[byReward[i-1]]
		}
		rankOf[id] = rank
	}
	k := len(byReward)
	sumRanks := float64(k*(k+1)) / 2

	parentVisits := math.Max(1, float64(node.VisitCount))

	best := 0
	bestUCT := math.Inf(-1)
	for _, id := range children {
		child := t.Node(id)
		normScore := float64(rankOf[id]) / sumRanks
		exploration := math.Sqrt2 * math.Sqrt(2*math.Log(parentVisits)/math.Max(1, float64(child.VisitCount)))
		uct := normScore + exploration
		if uct > bestUCT {
			bestUCT = uct
			best = id
		}
	}
	return best
}

// FullyExpanded reports whether a node has no unexplored choices left,
// i.e. it is not a candidate for expansion.
func (n *Node) FullyExpanded() bool {
	return n.Status == StatusExhausted
}
