package lattice

import "github.com/ReadAlongs/soundswallower-go/pkg/fsg"

// PhoneAlignment is one phone within a word's forced alignment, carrying
// the per-phone duration score recovered from `ps_alignment.c` (SPEC_FULL
// §3 item 2: "the original additionally tracks a per-phone duration
// score... used by forced-alignment callers for confidence gating").
type PhoneAlignment struct {
	Phone         string
	StartFrame    int
	Duration      int
	AScore        int32
	DurationScore float64 // ascore normalized by duration, for confidence gating
}

// WordAlignment is one word of a forced-alignment result, with its phone
// breakdown (§4.7 "a hierarchical structure of (word -> phones -> states)
// is emitted from the backpointer table").
type WordAlignment struct {
	Word       fsg.WordID
	StartFrame int
	EndFrame   int
	Phones     []PhoneAlignment
}

// Alignment builds the word/phone hierarchy for a forced-alignment search:
// a degenerate linear-chain FSG decode where the unique accepting
// backpointer chain is the alignment (§4.7). No lattice is built; phones is
// supplied by the caller per word (resolved from the dictionary/phonetic
// model, since this package does not itself parse either).
func Alignment(segments []WordSegment, phonesForWord func(fsg.WordID, int, int) []PhoneAlignment) []WordAlignment {
	out := make([]WordAlignment, 0, len(segments))
	for _, seg := range segments {
		out = append(out, WordAlignment{
			Word:       seg.Word,
			StartFrame: seg.StartFrame,
			EndFrame:   seg.EndFrame,
			Phones:     phonesForWord(seg.Word, seg.StartFrame, seg.EndFrame),
		})
	}
	return out
}
