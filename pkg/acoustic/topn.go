package acoustic

// Cost is a scaled negative-log score in the scorer's "non-positive is
// better" convention flipped to a non-negative cost: 0 is the best possible
// cost and larger is less likely, matching the transition-matrix convention
// of [model.ImpossibleCost] as "worst". Within a codebook's top-N the best
// density of the frame is normalized to 0; senone costs are not
// renormalized per frame, so the best senone of a frame may have a cost
// above 0.
type Cost int32

// topNEntry is one codeword's cost within a codebook's top-N cache.
type topNEntry struct {
	Codeword int
	Cost     Cost
}

// topN maintains the N best (lowest-cost) codewords for one codebook/
// stream, sorted ascending by cost (§8 invariant 5: "top_n[i] <= top_n[i+1]").
type topN struct {
	n       int
	entries []topNEntry
}

func newTopN(n int) *topN {
	return &topN{n: n, entries: make([]topNEntry, 0, n)}
}

// worst returns the cost of the current worst (last) entry, or the maximum
// possible cost if the array is not yet full — used as the pruning
// threshold against remaining codewords (§4.3 step 2).
func (t *topN) worst() Cost {
	if len(t.entries) < t.n {
		return 1<<31 - 1
	}
	return t.entries[len(t.entries)-1].Cost
}

// insert performs an insertion-sort of (codeword, cost) into the array,
// dropping the worst entry if the array is already full and the new cost
// does not improve on it.
func (t *topN) insert(codeword int, cost Cost) {
	if len(t.entries) >= t.n && cost >= t.worst() {
		return
	}
	i := len(t.entries)
	if i < t.n {
		t.entries = append(t.entries, topNEntry{})
	} else {
		i = t.n - 1
	}
	for i > 0 && t.entries[i-1].Cost > cost {
		t.entries[i] = t.entries[i-1]
		i--
	}
	t.entries[i] = topNEntry{Codeword: codeword, Cost: cost}
}

func (t *topN) reset() { t.entries = t.entries[:0] }

// best returns the lowest cost currently held, or the max cost if empty.
func (t *topN) best() Cost {
	if len(t.entries) == 0 {
		return 1<<31 - 1
	}
	return t.entries[0].Cost
}
