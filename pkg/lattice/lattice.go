// Package lattice builds the word lattice from a search's backpointer
// table and implements best-path rescoring, forward/backward posterior
// computation, and A* N-best extraction (§4.6), plus forced-alignment
// output (§4.7).
package lattice

import (
	"sort"

	"github.com/ReadAlongs/soundswallower-go/pkg/fsg"
	"github.com/ReadAlongs/soundswallower-go/pkg/logmath"
	"github.com/ReadAlongs/soundswallower-go/pkg/search"
)

// NodeID indexes into a [Lattice]'s Nodes slice.
type NodeID int32

// LinkID indexes into a [Lattice]'s Links slice.
type LinkID int32

// Node is a lattice node keyed by (word, start frame) (§3 "Word lattice").
type Node struct {
	Word       fsg.WordID
	StartFrame int
	In, Out    []LinkID
	pruned     bool
}

// Link is one lattice edge, carrying the acoustic score of traversing it
// and, after the posterior pass, its forward/backward log-probabilities.
//
// Alpha and Beta are deliberately asymmetric: Alpha is the forward score of
// reaching this edge's destination node via this edge (lk.From's node alpha
// plus this edge's own scaled score), while Beta is the backward score of
// this edge's destination node itself, excluding this edge's own score.
// Together, posterior(e) = Alpha + Beta - Z folds in the edge's own score
// exactly once (§8 invariant 4, "α(e) + β(e) ≤ Z with equality holding on
// at least one edge").
type Link struct {
	From, To  NodeID
	AScore    int32
	EndFrame  int
	PathScore int32 // set by BestPath
	Alpha     int32
	Beta      int32
	pruned    bool
}

// Lattice is the DAG of word hypotheses produced from a search's
// backpointer table (§3 "Word lattice").
type Lattice struct {
	Nodes []Node
	Links []Link
	Start NodeID
	End   NodeID
}

// FillerClassifier reports whether a word id is the global silence word or
// a filler word, and the corresponding per-link penalty to apply
// (§4.5 "Insert a silence-penalty offset on filler-word links").
type FillerClassifier func(w fsg.WordID) (penalty int32, isFillerOrSilence bool)

// Build walks bp in table order, start to end (pred < self, so a single
// forward pass suffices), and produces the corresponding [Lattice]:
// each distinct (word, start-frame) pair becomes a node, each backpointer
// entry becomes a link from its predecessor's node (§4.5 "Lattice
// construction"). finalEntry is the backpointer index accepted by
// [search.Search.End] as the 1-best endpoint; nodes not co-reachable from
// it are deleted.
func Build(bp []search.BackpointerEntry, finalEntry int32, filler FillerClassifier) *Lattice {
	l := &Lattice{}
	nodeIndex := make(map[[2]int]NodeID)
	getNode := func(word fsg.WordID, start int) NodeID {
		key := [2]int{int(word), start}
		if id, ok := nodeIndex[key]; ok {
			return id
		}
		id := NodeID(len(l.Nodes))
		l.Nodes = append(l.Nodes, Node{Word: word, StartFrame: start})
		nodeIndex[key] = id
		return id
	}
	root := getNode(fsg.Epsilon, 0)
	l.Start = root

	nodeOfEntry := make([]NodeID, len(bp))
	for i, e := range bp {
		startFrame := 0
		predNode := root
		predAScore := int32(0)
		if e.Predecessor >= 0 {
			p := bp[e.Predecessor]
			startFrame = p.Frame
			predNode = nodeOfEntry[e.Predecessor]
			predAScore = p.AScore
		}
		target := getNode(e.Word, startFrame)
		ascore := e.AScore - predAScore
		if pen, ok := filler(e.Word); ok {
			ascore += pen
		}
		link := Link{From: predNode, To: target, AScore: ascore, EndFrame: e.Frame}
		idx := LinkID(len(l.Links))
		l.Links = append(l.Links, link)
		l.Nodes[predNode].Out = append(l.Nodes[predNode].Out, idx)
		l.Nodes[target].In = append(l.Nodes[target].In, idx)
		nodeOfEntry[i] = target
	}

	if finalEntry >= 0 && int(finalEntry) < len(bp) {
		l.End = nodeOfEntry[finalEntry]
	}
	l.pruneNotCoReachable()
	return l
}

// pruneNotCoReachable deletes nodes (and their links) that cannot reach
// l.End, keeping the invariant "every node is reachable from the start and
// co-reachable to the end after pruning" (§3 "Word lattice").
func (l *Lattice) pruneNotCoReachable() {
	coreach := make([]bool, len(l.Nodes))
	coreach[l.End] = true
	changed := true
	for changed {
		changed = false
		for i, n := range l.Nodes {
			if coreach[i] {
				continue
			}
			for _, lk := range n.Out {
				if coreach[l.Links[lk].To] {
					coreach[i] = true
					changed = true
					break
				}
			}
		}
	}
	for i := range l.Nodes {
		if !coreach[i] {
			l.Nodes[i].pruned = true
		}
	}
	for i, lk := range l.Links {
		if l.Nodes[lk.From].pruned || l.Nodes[lk.To].pruned {
			l.Links[i].pruned = true
		}
	}
}

// topoOrder returns unpruned link indices sorted by ascending link end
// frame, the order used for forward relaxation; the lattice is acyclic by
// construction (frames only increase). The sort is not stable: links with
// equal end frames come in no fixed order.
func (l *Lattice) topoOrder() []LinkID {
	order := make([]LinkID, 0, len(l.Links))
	for i, lk := range l.Links {
		if lk.pruned {
			continue
		}
		order = append(order, LinkID(i))
	}
	sort.Slice(order, func(a, b int) bool {
		return l.Links[order[a]].EndFrame < l.Links[order[b]].EndFrame
	})
	return order
}

// BestPath relaxes edges in forward topological order, accumulating
// path_score = max(predecessor path_score) + edge.ascr (§4.6 "Best-path
// rescoring", §8 invariant 3), and returns the best path score into the
// end node.
func (l *Lattice) BestPath() int32 {
	bestIntoNode := make(map[NodeID]int32)
	bestIntoNode[l.Start] = 0
	var best int32 = search.MinScore
	for _, li := range l.topoOrder() {
		lk := &l.Links[li]
		pred, ok := bestIntoNode[lk.From]
		if !ok {
			pred = search.MinScore
		}
		ps := pred + lk.AScore
		lk.PathScore = ps
		if cur, ok := bestIntoNode[lk.To]; !ok || ps > cur {
			bestIntoNode[lk.To] = ps
		}
		if lk.To == l.End && ps > best {
			best = ps
		}
	}
	return best
}

// Posterior computes forward (alpha) and backward (beta) log-probabilities
// over every link using lm for log-add, scaling acoustic scores by
// ascaleInv (the configured inverse acoustic scale, §6 "ascale"), then
// prunes links whose posterior falls below beam (§4.6 "Posterior
// computation"). If Z (alpha at the end node) is degenerately small — at
// or below the representable floor plus beam — pruning is skipped and the
// caller should log a warning (§9 open question resolution).
func (l *Lattice) Posterior(lm *logmath.Table, ascaleInv float64, beam int32) (z int32, skippedDegenerate bool) {
	alpha := make(map[NodeID]int32)
	alpha[l.Start] = 0
	for _, li := range l.topoOrder() {
		lk := &l.Links[li]
		scaled := int32(float64(lk.AScore) / ascaleInv)
		a, ok := alpha[lk.From]
		if !ok {
			a = lm.Zero()
		}
		cand := a + scaled
		lk.Alpha = cand
		if cur, ok := alpha[lk.To]; ok {
			alpha[lk.To] = lm.Add(cur, cand)
		} else {
			alpha[lk.To] = cand
		}
	}
	z = alpha[l.End]

	worstFloor := lm.Zero()
	if z <= worstFloor+beam {
		return z, true
	}

	beta := make(map[NodeID]int32)
	beta[l.End] = 0
	order := l.topoOrder()
	for i := len(order) - 1; i >= 0; i-- {
		lk := &l.Links[order[i]]
		scaled := int32(float64(lk.AScore) / ascaleInv)
		b, ok := beta[lk.To]
		if !ok {
			b = lm.Zero()
		}
		cand := b + scaled
		// Beta stores the node-level backward score of lk.To, not cand
		// (which already folds in this edge's own scaled score): the
		// posterior below adds lk.Alpha (which *does* fold in this edge's
		// score, via lk.From's node alpha) to lk.Beta, so folding the edge's
		// score into both would double-count it.
		lk.Beta = b
		if cur, ok := beta[lk.From]; ok {
			beta[lk.From] = lm.Add(cur, cand)
		} else {
			beta[lk.From] = cand
		}
	}

	for i := range l.Links {
		lk := &l.Links[i]
		if lk.pruned {
			continue
		}
		posterior := lk.Alpha + lk.Beta - z
		if posterior < beam {
			lk.pruned = true
		}
	}
	return z, false
}

// WordSegment is one word of a 1-best or N-best segmentation (§6
// "seg_iter").
type WordSegment struct {
	Word       fsg.WordID
	StartFrame int
	EndFrame   int
	AScore     int32
	Posterior  int32
}

// Segments walks the best-scoring path from Start to End and returns its
// word segmentation in order.
func (l *Lattice) Segments() []WordSegment {
	// Rebuild predecessor links along the best path by re-running the
	// relaxation and recording argmax predecessors.
	bestLink := make(map[NodeID]LinkID, len(l.Nodes))
	bestScore := make(map[NodeID]int32, len(l.Nodes))
	bestScore[l.Start] = 0
	for _, li := range l.topoOrder() {
		lk := l.Links[li]
		pred, ok := bestScore[lk.From]
		if !ok {
			continue
		}
		cand := pred + lk.AScore
		if cur, ok := bestScore[lk.To]; !ok || cand > cur {
			bestScore[lk.To] = cand
			bestLink[lk.To] = li
		}
	}

	var chain []LinkID
	cur := l.End
	for cur != l.Start {
		li, ok := bestLink[cur]
		if !ok {
			break
		}
		chain = append(chain, li)
		cur = l.Links[li].From
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	out := make([]WordSegment, 0, len(chain))
	for _, li := range chain {
		lk := l.Links[li]
		out = append(out, WordSegment{
			Word:       l.Nodes[lk.To].Word,
			StartFrame: l.Nodes[lk.To].StartFrame,
			EndFrame:   lk.EndFrame,
			AScore:     lk.AScore,
			Posterior:  lk.Alpha + lk.Beta,
		})
	}
	return out
}
