package search

import (
	"testing"

	"github.com/ReadAlongs/soundswallower-go/pkg/acoustic"
	"github.com/ReadAlongs/soundswallower-go/pkg/fsg"
	"github.com/ReadAlongs/soundswallower-go/pkg/model"
)

func flatTMat() *model.TransitionMatrix {
	tm := &model.TransitionMatrix{NumSrc: 3, NumDst: 4}
	tm.Costs = [][]uint8{
		{10, 20, 30, 255},
		{255, 10, 20, 30},
		{255, 255, 10, 20},
	}
	return tm
}

func zeroCost(model.SenoneID) (acoustic.Cost, bool) { return 0, true }

func TestHMMInstance_TieBreaksTowardSelfLoop(t *testing.T) {
	tm := flatTMat()
	tm.Costs[0][1] = 10
	tm.Costs[1][1] = 10 // equal-cost self-loop vs incoming arc into state 1
	h := NewHMMInstance(0, [3]model.SenoneID{0, 1, 2}, tm, 0, -1, 0)
	h.Score = [3]int32{100, 100, MinScore}
	h.Backptr = [3]int32{7, 9, 0}
	h.Update(zeroCost)
	if h.Backptr[1] != 9 {
		t.Fatalf("expected tie-break toward self-loop's backpointer 9, got %d", h.Backptr[1])
	}
}

func TestHMMInstance_ExitNeverExceedsBestEmitting(t *testing.T) {
	tm := flatTMat()
	h := NewHMMInstance(0, [3]model.SenoneID{0, 1, 2}, tm, 0, -1, 0)
	for i := 0; i < 5; i++ {
		h.Update(zeroCost)
	}
	if h.ExitScore > h.BestEmittingScore() {
		t.Fatalf("exit score %d exceeds best emitting score %d", h.ExitScore, h.BestEmittingScore())
	}
}

func resolver(arc fsg.Arc) (senones [3]model.SenoneID, tmat *model.TransitionMatrix, ok bool) {
	if arc.Word == fsg.Epsilon {
		return senones, nil, false
	}
	return [3]model.SenoneID{model.SenoneID(arc.Word) * 3, model.SenoneID(arc.Word)*3 + 1, model.SenoneID(arc.Word)*3 + 2}, flatTMat(), true
}

func linearGraph() *fsg.Graph {
	g := fsg.New("lin", 3, 0)
	g.AddTransition(0, 1, 0, 1)
	g.AddTransition(1, 2, 0, 2)
	g.SetFinal(2)
	g.CloseEpsilons()
	return g
}

func TestSearch_StateMachine(t *testing.T) {
	s := NewSearch(linearGraph(), resolver, DefaultBeams())
	if err := s.StepFrame(zeroCost); err == nil {
		t.Fatal("expected StateError calling StepFrame before Start")
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.State() != Started {
		t.Fatalf("expected Started, got %v", s.State())
	}
	if err := s.StepFrame(zeroCost); err != nil {
		t.Fatalf("StepFrame: %v", err)
	}
	if s.State() != Active {
		t.Fatalf("expected Active after first StepFrame, got %v", s.State())
	}
	if _, err := s.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	if s.State() != Finished {
		t.Fatalf("expected Finished, got %v", s.State())
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start after Finished: %v", err)
	}
}

func TestSearch_BackpointerOrderingInvariant(t *testing.T) {
	s := NewSearch(linearGraph(), resolver, DefaultBeams())
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 20; i++ {
		if err := s.StepFrame(zeroCost); err != nil {
			t.Fatalf("StepFrame %d: %v", i, err)
		}
	}
	if _, err := s.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	for i, b := range s.Backpointers() {
		if b.Predecessor >= int32(i) {
			t.Fatalf("entry %d: predecessor %d violates pred < self", i, b.Predecessor)
		}
	}
}
