package lattice

import "container/heap"

// nbestAgendaCap bounds the A* agenda; overflow is rejected and freed at
// the tail rather than grown without limit (§4.6 "N-best extraction").
const nbestAgendaCap = 500

// path is one partial or complete A* hypothesis.
type path struct {
	node  NodeID
	g     int32 // exact score from start
	h     int32 // admissible best-remaining estimate
	chain []LinkID
}

func (p *path) priority() int64 { return int64(p.g) + int64(p.h) }

// pathAgenda is a max-heap on g+h, capped at [nbestAgendaCap].
type pathAgenda []*path

func (a pathAgenda) Len() int            { return len(a) }
func (a pathAgenda) Less(i, j int) bool  { return a[i].priority() > a[j].priority() }
func (a pathAgenda) Swap(i, j int)       { a[i], a[j] = a[j], a[i] }
func (a *pathAgenda) Push(x interface{}) { *a = append(*a, x.(*path)) }
func (a *pathAgenda) Pop() interface{} {
	old := *a
	n := len(old)
	item := old[n-1]
	*a = old[:n-1]
	return item
}

// heuristic precomputes, per node, the best-remaining acoustic score to the
// end node via backward relaxation over acoustic scores alone (§4.6
// "h is the admissible 'best remaining' score precomputed by backward
// relaxation over acoustic scores alone").
func (l *Lattice) heuristic() map[NodeID]int32 {
	h := make(map[NodeID]int32)
	h[l.End] = 0
	order := l.topoOrder()
	for i := len(order) - 1; i >= 0; i-- {
		lk := l.Links[order[i]]
		rest, ok := h[lk.To]
		if !ok {
			continue
		}
		cand := rest + lk.AScore
		if cur, ok := h[lk.From]; !ok || cand > cur {
			h[lk.From] = cand
		}
	}
	return h
}

// NBestHypothesis is one complete A*-extracted hypothesis.
type NBestHypothesis struct {
	Score    int32
	Segments []WordSegment
}

// NBest extracts up to n complete hypotheses in descending score order via
// A* search over partial paths, ordered by g+h (§4.6 "N-best extraction
// (A*)"). Each popped path whose node is l.End is a complete hypothesis;
// extraction stops when n hypotheses have been found or the agenda empties.
func (l *Lattice) NBest(n int) []NBestHypothesis {
	h := l.heuristic()
	agenda := &pathAgenda{}
	heap.Init(agenda)
	start := &path{node: l.Start, g: 0, h: h[l.Start]}
	heap.Push(agenda, start)

	var results []NBestHypothesis
	for agenda.Len() > 0 && len(results) < n {
		p := heap.Pop(agenda).(*path)
		if p.node == l.End {
			results = append(results, NBestHypothesis{Score: p.g, Segments: l.segmentsFromChain(p.chain)})
			continue
		}
		for _, li := range l.Nodes[p.node].Out {
			lk := l.Links[li]
			if lk.pruned {
				continue
			}
			rest, ok := h[lk.To]
			if !ok {
				continue
			}
			next := &path{
				node:  lk.To,
				g:     p.g + lk.AScore,
				h:     rest,
				chain: append(append([]LinkID(nil), p.chain...), li),
			}
			if agenda.Len() >= nbestAgendaCap {
				// Reject-and-free overflow at the tail: only replace the
				// current worst entry if the new path is better.
				worst := 0
				for i := 1; i < agenda.Len(); i++ {
					if (*agenda)[i].priority() < (*agenda)[worst].priority() {
						worst = i
					}
				}
				if next.priority() <= (*agenda)[worst].priority() {
					continue
				}
				heap.Remove(agenda, worst)
			}
			heap.Push(agenda, next)
		}
	}
	return results
}

func (l *Lattice) segmentsFromChain(chain []LinkID) []WordSegment {
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
