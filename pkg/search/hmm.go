// Package search implements the per-frame HMM evaluator (§4.4) and the
// FSG token-passing Viterbi search built on top of it (§4.5).
package search

import (
	"math"

	"github.com/ReadAlongs/soundswallower-go/pkg/acoustic"
	"github.com/ReadAlongs/soundswallower-go/pkg/model"
)

// MinScore is the saturating floor for path scores: "impossible", used both
// as the initial score of an unseeded state and as the clamp target when a
// computation would otherwise overflow (§4.4 "the arithmetic saturates
// rather than wraps on extreme inputs").
const MinScore int32 = math.MinInt32 / 2

// numEmitting is the count of emitting states in the left-to-right HMM
// topology (§3 "HMM instance": "3 emitting states plus one non-emitting
// exit state").
const numEmitting = 3

// HMMInstance is a context-dependent triphone attached to one search-graph
// arc (§3 "HMM instance"). Senones holds the resolved senone id for each
// emitting state, looked up once from the senone-sequence table at
// instance-creation time.
type HMMInstance struct {
	ArcID    int // caller-defined identity of the owning FSG arc
	Senones  [numEmitting]model.SenoneID
	TMat     *model.TransitionMatrix

	Score    [numEmitting]int32
	Backptr  [numEmitting]int32 // backpointer-table index each state's history traces to
	HistWord int32              // carried word id of the active history, propagated unchanged

	ExitScore   int32
	ExitBackptr int32

	active bool
}

// NewHMMInstance seeds a fresh instance with state 0 at entryScore and
// every other state at [MinScore] (§3 "state 0 is the only entry").
func NewHMMInstance(arcID int, senones [numEmitting]model.SenoneID, tmat *model.TransitionMatrix, entryScore int32, entryBackptr int32, histWord int32) *HMMInstance {
	h := &HMMInstance{ArcID: arcID, Senones: senones, TMat: tmat, HistWord: histWord, active: true}
	for i := range h.Score {
		h.Score[i] = MinScore
		h.Backptr[i] = entryBackptr
	}
	h.Score[0] = entryScore
	h.ExitScore = MinScore
	h.ExitBackptr = entryBackptr
	return h
}

// saturateSub subtracts b from a, clamping at [MinScore] instead of
// wrapping or overflowing.
func saturateSub(a int32, b int32) int32 {
	if a <= MinScore {
		return MinScore
	}
	r := int64(a) - int64(b)
	if r < int64(MinScore) {
		return MinScore
	}
	if r > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(r)
}

// saturateAdd adds b to a, clamping at [MinScore]/MaxInt32 instead of
// wrapping or overflowing (§4.4 "the arithmetic saturates").
func saturateAdd(a int32, b int32) int32 {
	if a <= MinScore {
		return MinScore
	}
	r := int64(a) + int64(b)
	if r < int64(MinScore) {
		return MinScore
	}
	if r > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(r)
}

// Update runs one frame of the 3-emitting-state Viterbi recursion (§4.4):
//
//  1. compute new state scores from incoming previous-state scores plus
//     transition cost, keeping the winning (tie-broken-to-self-loop)
//     predecessor's backpointer;
//  2. add the senone acoustic cost to each emitting state;
//  3. update the exit-state score from state 2's post-acoustic score.
//
// senCost supplies the acoustic cost (0 = best) for a state's senone, and
// reports false if that senone was not scored this frame; such a state
// drops to [MinScore].
func (h *HMMInstance) Update(senCost func(sen model.SenoneID) (acoustic.Cost, bool)) {
	var newScore [numEmitting]int32
	var newBackptr [numEmitting]int32

	for d := 0; d < numEmitting; d++ {
		best := MinScore
		bestPred := d
		lo := d - 2
		if lo < 0 {
			lo = 0
		}
		for s := lo; s <= d; s++ {
			cost := h.TMat.Costs[s][d]
			if cost == model.ImpossibleCost {
				continue
			}
			if h.Score[s] <= MinScore {
				continue
			}
			cand := saturateSub(h.Score[s], int32(cost))
			if cand > best || (cand == best && s == d) {
				best = cand
				bestPred = s
			}
		}
		newScore[d] = best
		newBackptr[d] = h.Backptr[bestPred]
	}

	for d := 0; d < numEmitting; d++ {
		if newScore[d] <= MinScore {
			continue
		}
		if c, ok := senCost(h.Senones[d]); ok {
			newScore[d] = saturateSub(newScore[d], int32(c))
		} else {
			newScore[d] = MinScore
		}
	}

	h.Score = newScore
	h.Backptr = newBackptr

	// Exit-state update: best score leaving state 2 into the non-emitting
	// sink (§4.4 step 3).
	exitCost := h.TMat.Costs[numEmitting-1][numEmitting]
	if exitCost == model.ImpossibleCost || h.Score[numEmitting-1] <= MinScore {
		h.ExitScore = MinScore
	} else {
		h.ExitScore = saturateSub(h.Score[numEmitting-1], int32(exitCost))
		h.ExitBackptr = h.Backptr[numEmitting-1]
	}
}

// BestEmittingScore returns the best of the three emitting-state scores
// (§8 invariant 1: "every active HMM's exit-state score <= its best
// emitting-state score").
func (h *HMMInstance) BestEmittingScore() int32 {
	best := h.Score[0]
	for _, s := range h.Score[1:] {
		if s > best {
			best = s
		}
	}
	return best
}
