package lattice

import (
	"testing"

	"github.com/ReadAlongs/soundswallower-go/pkg/fsg"
	"github.com/ReadAlongs/soundswallower-go/pkg/logmath"
	"github.com/ReadAlongs/soundswallower-go/pkg/search"
)

func noFiller(fsg.WordID) (int32, bool) { return 0, false }

func sampleBackpointers() []search.BackpointerEntry {
	return []search.BackpointerEntry{
		{Word: 1, Frame: 10, Predecessor: -1, AScore: -100, State: 1},
		{Word: 2, Frame: 20, Predecessor: 0, AScore: -250, State: 2},
		{Word: 3, Frame: 30, Predecessor: 1, AScore: -450, State: 3},
	}
}

func TestBuild_SingleStartAndEndNode(t *testing.T) {
	l := Build(sampleBackpointers(), 2, noFiller)
	if len(l.Nodes) == 0 {
		t.Fatal("expected at least one node")
	}
	if l.Start != 0 {
		t.Fatalf("expected start node 0, got %d", l.Start)
	}
}

func TestBuild_PrunesNonCoReachable(t *testing.T) {
	bp := sampleBackpointers()
	// Add a dead-end entry that does not lead to the accepted final.
	bp = append(bp, search.BackpointerEntry{Word: 9, Frame: 15, Predecessor: 0, AScore: -999, State: 9})
	l := Build(bp, 2, noFiller)
	for i, n := range l.Nodes {
		if n.Word == 9 && !n.pruned {
			t.Fatalf("node %d for dead-end word 9 should have been pruned", i)
		}
	}
}

func TestBestPath_SatisfiesPathScoreRecurrence(t *testing.T) {
	l := Build(sampleBackpointers(), 2, noFiller)
	l.BestPath()
	bestIntoNode := make(map[NodeID]int32)
	bestIntoNode[l.Start] = 0
	for _, li := range l.topoOrder() {
		lk := l.Links[li]
		pred := bestIntoNode[lk.From]
		want := pred + lk.AScore
		if lk.PathScore != want {
			t.Fatalf("link %d: path_score %d != ascr(%d)+pred(%d)=%d", li, lk.PathScore, lk.AScore, pred, want)
		}
		if cur, ok := bestIntoNode[lk.To]; !ok || want > cur {
			bestIntoNode[lk.To] = want
		}
	}
}

func TestPosterior_ZAtLeastAnyLinkPosterior(t *testing.T) {
	l := Build(sampleBackpointers(), 2, noFiller)
	lm := logmath.Default()
	z, _ := l.Posterior(lm, 20.0, lm.Zero())
	for _, lk := range l.Links {
		if lk.pruned {
			continue
		}
		if lk.Alpha+lk.Beta > z+1 { // small slack for integer rounding
			t.Fatalf("alpha+beta %d exceeds Z %d", lk.Alpha+lk.Beta, z)
		}
	}
}

// TestPosterior_EqualityHoldsOnBestPath exercises the other half of §8
// invariant 4 that TestPosterior_ZAtLeastAnyLinkPosterior does not: every
// edge of a single linear chain lies on the only (hence best) path, so
// alpha(e)+beta(e) must equal Z exactly on every edge, not just be bounded
// by it.
func TestPosterior_EqualityHoldsOnBestPath(t *testing.T) {
	l := Build(sampleBackpointers(), 2, noFiller)
	lm := logmath.Default()
	z, skipped := l.Posterior(lm, 20.0, lm.Zero())
	if skipped {
		t.Fatal("expected posterior pruning to run, not be skipped as degenerate")
	}
	for i, lk := range l.Links {
		if lk.pruned {
			continue
		}
		if got := lk.Alpha + lk.Beta; got != z {
			t.Fatalf("link %d: alpha+beta = %d, want exactly Z = %d", i, got, z)
		}
	}
}

func TestNBest_ReturnsAtMostRequestedCount(t *testing.T) {
	l := Build(sampleBackpointers(), 2, noFiller)
	got := l.NBest(5)
	if len(got) == 0 {
		t.Fatal("expected at least one hypothesis")
	}
	if len(got) > 5 {
		t.Fatalf("expected at most 5 hypotheses, got %d", len(got))
	}
}

func TestAlignment_BuildsPhoneHierarchyPerWord(t *testing.T) {
	l := Build(sampleBackpointers(), 2, noFiller)
	segs := l.Segments()
	phonesForWord := func(w fsg.WordID, start, end int) []PhoneAlignment {
		return []PhoneAlignment{
			{Phone: "AA", StartFrame: start, Duration: end - start, AScore: -10, DurationScore: -10 / float64(end-start+1)},
		}
	}
	aligned := Alignment(segs, phonesForWord)
	if len(aligned) != len(segs) {
		t.Fatalf("expected %d aligned words, got %d", len(segs), len(aligned))
	}
	for i, wa := range aligned {
		if wa.Word != segs[i].Word || wa.StartFrame != segs[i].StartFrame || wa.EndFrame != segs[i].EndFrame {
			t.Fatalf("word alignment %d does not match its segment: %+v vs %+v", i, wa, segs[i])
		}
		if len(wa.Phones) != 1 {
			t.Fatalf("expected one phone per word in this fixture, got %d", len(wa.Phones))
		}
	}
}

func TestSegments_OrderedByFrame(t *testing.T) {
	l := Build(sampleBackpointers(), 2, noFiller)
	segs := l.Segments()
	for i := 1; i < len(segs); i++ {
		if segs[i].StartFrame < segs[i-1].StartFrame {
			t.Fatalf("segments not frame-ordered: %+v", segs)
		}
	}
}
