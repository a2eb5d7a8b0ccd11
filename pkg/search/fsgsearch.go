package search

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ReadAlongs/soundswallower-go/pkg/acoustic"
	"github.com/ReadAlongs/soundswallower-go/pkg/fsg"
	"github.com/ReadAlongs/soundswallower-go/pkg/model"
)

// State is the search object's lifecycle state (§4.5 "State machine of the
// search object: Idle -> Started -> Active -> Finished -> Idle").
type State int

const (
	Idle State = iota
	Started
	Active
	Finished
)

// StateError reports an operation invoked in a state that does not permit
// it (§7 "State error").
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("search: %s: invalid in state %v", e.Op, e.State)
}

// ErrUnknownWord is returned by [Search.attachArc] when the arc resolver
// cannot provide an HMM chain for the arc's word (§6 "set_fsg... arc refers
// to unknown word").
var ErrUnknownWord = errors.New("search: arc refers to unknown word")

// BackpointerEntry records one word exit (§3 "Backpointer entry").
type BackpointerEntry struct {
	Word        fsg.WordID
	Frame       int
	Predecessor int32 // index into the table; -1 denotes the utterance root
	AScore      int32
	State       fsg.State // FSG state this entry's arc terminates in
}

// Beams holds the three configured beam widths plus the adaptive HMM cap
// from §6 "Search".
type Beams struct {
	HMM             int32 // beam
	WordExit        int32 // wbeam
	PhoneTransition int32 // pbeam
	MaxHMMPF        int   // maxhmmpf
	WordInsertion   int32 // wip, added at every word exit
}

// DefaultBeams returns fixed score-domain beams of 2^20 for the HMM,
// word-exit and phone-transition beams, no word-insertion penalty, and
// §6's maxhmmpf of 30000. It does not derive widths from the
// configuration's probability defaults.
func DefaultBeams() Beams {
	return Beams{HMM: 1 << 20, WordExit: 1 << 20, PhoneTransition: 1 << 20, MaxHMMPF: 30000}
}

// ArcResolver supplies the per-arc HMM parameters (senone triple and
// transition matrix) the search needs to instantiate an [HMMInstance] for a
// non-epsilon FSG arc. The core does not parse dictionaries or phonetic
// context itself (§1 "Out of scope"); the decoder wires this from
// [model.Tables].
type ArcResolver func(arc fsg.Arc) (senones [numEmitting]model.SenoneID, tmat *model.TransitionMatrix, ok bool)

// Search is the FSG token-passing Viterbi search (§4.5).
type Search struct {
	graph    *fsg.Graph
	resolver ArcResolver
	beams    Beams

	state State
	frame int

	active     map[int]*HMMInstance // keyed by a stable arc identity
	arcKey     map[int]fsg.Arc
	backptr    []BackpointerEntry
	frameStart []int

	bestScore     int32
	bestExitScore int32
}

// NewSearch installs graph (already epsilon-closed by the caller via
// [fsg.Graph.CloseEpsilons]) as the active grammar.
func NewSearch(graph *fsg.Graph, resolver ArcResolver, beams Beams) *Search {
	return &Search{graph: graph, resolver: resolver, beams: beams, active: make(map[int]*HMMInstance), arcKey: make(map[int]fsg.Arc)}
}

// State reports the current lifecycle state.
func (s *Search) State() State { return s.state }

// Start resets per-utterance state and seeds HMMs on every non-epsilon arc
// leaving the grammar's start state (§4.5, §3 "Invariant... state 0 is the
// only entry"). Accepted from [Idle] or [Finished] only.
func (s *Search) Start() error {
	if s.state != Idle && s.state != Finished {
		return &StateError{Op: "start", State: s.state}
	}
	s.state = Started
	s.frame = 0
	s.backptr = s.backptr[:0]
	s.frameStart = s.frameStart[:0]
	for k := range s.active {
		delete(s.active, k)
	}
	for k := range s.arcKey {
		delete(s.arcKey, k)
	}
	s.bestScore = MinScore
	s.bestExitScore = MinScore

	root := int32(-1)
	for _, arc := range s.graph.Out(s.graph.Start) {
		s.seedArc(arc, 0, root, 0)
	}
	return nil
}

// arcIdentity derives a stable integer key for an arc so repeated arrivals
// at the same arc address the same HMM instance slot.
func arcIdentity(a fsg.Arc) int {
	return int(a.From)<<40 ^ int(a.To)<<20 ^ int(a.Word)<<4 ^ a.PronIdx
}

// sortedActiveKeys returns s.active's keys in ascending arcIdentity order,
// giving the word-exit and arc-propagation steps a stable enumeration
// order across runs instead of Go's randomized map iteration (§4.5(d)
// "the enumeration order is stable across runs").
func (s *Search) sortedActiveKeys() []int {
	keys := make([]int, 0, len(s.active))
	for k := range s.active {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func (s *Search) seedArc(arc fsg.Arc, score int32, pred int32, histWord int32) {
	if arc.Word == fsg.Epsilon {
		return
	}
	senones, tmat, ok := s.resolver(arc)
	if !ok {
		return
	}
	key := arcIdentity(arc)
	if existing, found := s.active[key]; found {
		if existing.Score[0] >= score {
			return // better-wins invariant (§4.5(d))
		}
		existing.Score[0] = score
		existing.Backptr[0] = pred
		existing.HistWord = histWord
		return
	}
	h := NewHMMInstance(key, senones, tmat, score, pred, histWord)
	s.active[key] = h
	s.arcKey[key] = arc
}

// StepFrame runs one frame of the main search loop (§4.5 steps a-e).
// senCost resolves the acoustic cost for a senone this frame; it must have
// been computed by the acoustic scorer over exactly the senones this
// search's active HMMs need. Accepted only in [Started] (which
// transitions to [Active] on the first call) or [Active].
func (s *Search) StepFrame(senCost func(model.SenoneID) (acoustic.Cost, bool)) error {
	if s.state != Started && s.state != Active {
		return &StateError{Op: "step", State: s.state}
	}
	s.state = Active
	s.frameStart = append(s.frameStart, len(s.backptr))

	// (a) HMM update.
	s.bestScore = MinScore
	s.bestExitScore = MinScore
	for _, h := range s.active {
		h.Update(senCost)
		if best := h.BestEmittingScore(); best > s.bestScore {
			s.bestScore = best
		}
		if h.ExitScore > s.bestExitScore {
			s.bestExitScore = h.ExitScore
		}
	}

	// (b) Beam prune (general HMM beam), with adaptive narrowing under
	// maxhmmpf.
	threshold := s.bestScore - s.beams.HMM
	if s.beams.MaxHMMPF > 0 && len(s.active) > s.beams.MaxHMMPF {
		threshold = s.tightenForCap(threshold)
	}
	for key, h := range s.active {
		if h.BestEmittingScore() < threshold {
			delete(s.active, key)
			delete(s.arcKey, key)
		}
	}

	// (c) Word exits.
	exitThresh := s.bestExitScore - s.beams.WordExit
	type exit struct {
		entryIdx int32
		arc      fsg.Arc
	}
	var exits []exit
	for _, key := range s.sortedActiveKeys() {
		h := s.active[key]
		if h.ExitScore < exitThresh {
			continue
		}
		arc := s.arcKey[key]
		entry := BackpointerEntry{
			Word:        arc.Word,
			Frame:       s.frame,
			Predecessor: h.ExitBackptr,
			AScore:      h.ExitScore,
			State:       arc.To,
		}
		idx := int32(len(s.backptr))
		s.backptr = append(s.backptr, entry)
		exits = append(exits, exit{entryIdx: idx, arc: arc})
	}

	// (d) Arc propagation.
	for _, ex := range exits {
		entry := s.backptr[ex.entryIdx]
		for _, next := range s.graph.Out(ex.arc.To) {
			// score = exiting score + arc log-probability + word-insertion
			// penalty (§4.5(d)).
			seedScore := saturateAdd(saturateAdd(entry.AScore, next.LogProb), s.beams.WordInsertion)
			s.seedArc(next, seedScore, ex.entryIdx, int32(entry.Word))
		}
	}

	// (e) Phone-transition prune: reapply the general beam against the
	// best score among HMMs that reached their exit state this frame,
	// narrowed by pbeam, to newly seeded states.
	phoneThresh := s.bestExitScore - s.beams.PhoneTransition
	for key, h := range s.active {
		if h.Score[0] < phoneThresh && h.BestEmittingScore() == h.Score[0] {
			delete(s.active, key)
			delete(s.arcKey, key)
		}
	}

	s.frame++
	return nil
}

// tightenForCap raises (narrows) threshold until the active set would fall
// at or below MaxHMMPF, implementing "a hard cap... enforced by raising
// the beam adaptively if exceeded" (§4.5(b)).
func (s *Search) tightenForCap(threshold int32) int32 {
	for {
		count := 0
		for _, h := range s.active {
			if h.BestEmittingScore() >= threshold {
				count++
			}
		}
		if count <= s.beams.MaxHMMPF {
			return threshold
		}
		threshold += 1 // narrow by one score unit per iteration; bounded by active count shrinking monotonically
	}
}

// ActiveSenones returns the senone ids referenced by every currently active
// HMM instance, deduplicated and sorted, for the acoustic scorer to build
// this frame's active-senone list from: "passing the current frame's
// senone scores (with only the states these HMMs need marked active)"
// (§4.5(a)).
func (s *Search) ActiveSenones() []model.SenoneID {
	seen := make(map[model.SenoneID]bool, len(s.active)*numEmitting)
	for _, h := range s.active {
		for _, sen := range h.Senones {
			seen[sen] = true
		}
	}
	ids := make([]model.SenoneID, 0, len(seen))
	for sen := range seen {
		ids = append(ids, sen)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Frame returns the number of frames processed so far.
func (s *Search) Frame() int { return s.frame }

// Backpointers exposes the backpointer table built so far.
func (s *Search) Backpointers() []BackpointerEntry { return s.backptr }

// End forces every active HMM to exit (regardless of the word-exit beam),
// then restricts admissible accepting paths to those whose final FSG state
// is accepting (§4.5 "Finish"). Accepted from [Active] or [Started].
func (s *Search) End() (bestIdx int32, err error) {
	if s.state != Active && s.state != Started {
		return -1, &StateError{Op: "end", State: s.state}
	}
	bestIdx = -1
	best := MinScore
	for key, h := range s.active {
		arc := s.arcKey[key]
		entry := BackpointerEntry{
			Word:        arc.Word,
			Frame:       s.frame,
			Predecessor: h.ExitBackptr,
			AScore:      h.ExitScore,
			State:       arc.To,
		}
		idx := int32(len(s.backptr))
		s.backptr = append(s.backptr, entry)
		if s.graph.IsFinal(arc.To) && h.ExitScore > best {
			best = h.ExitScore
			bestIdx = idx
		}
	}
	s.state = Finished
	return bestIdx, nil
}
