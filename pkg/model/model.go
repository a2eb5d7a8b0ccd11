// Package model defines the immutable, shared acoustic and lexical tables
// consumed by the decoding pipeline (§3 "Model tables", §6 "on-disk model
// formats"). The core never mutates these tables at runtime; it only reads
// them, so a single loaded [Tables] value can be shared by reference across
// many concurrently-running decoders (§5 "Sharing").
//
// Reading the s3 binary model-file family (means/variances, mixture
// weights, transition matrices, phonetic model definitions) is a parsing
// concern, not a decoding concern — the core's contract is "a byte range
// plus a byte-swap flag, with cursor-based typed reads" (design note). That
// contract lives in [Reader]; callers who already have parsed tables (e.g.
// from a test fixture, or a different storage format) can construct a
// [Tables] value directly without going through a [Reader] at all.
package model

import "fmt"

// SenoneID identifies a leaf clustered-state distribution (§3 "Senone").
type SenoneID int32

// CodebookID identifies a Gaussian codebook: one per base phone in the PTM
// scorer, or the single shared codebook in the semi-continuous scorer.
type CodebookID int32

// TransitionMatrixID identifies a phone's 3x4 (3 emitting sources, 3
// emitting + exit destinations) HMM
// transition matrix, shared across all triphones of that base phone.
type TransitionMatrixID int32

// SenSeqID identifies a senone-sequence: the tuple of senone ids for the
// states of one HMM topology, shared across identical triphones (§3 "HMM
// instance").
type SenSeqID int32

// GaussianParams holds the mean/variance (diagonal-covariance Gaussian)
// parameters for every density of every codebook, plus the precomputed
// normalizing constant (log determinant term) used by the Mahalanobis
// distance computation in §4.3 step 2.
type GaussianParams struct {
	NumCodebooks int
	NumStreams   int
	NumDensities int
	// VecLen[s] is the feature-vector length of stream s.
	VecLen []int
	// Mean[cb][stream][density] is a VecLen[stream]-length vector.
	Mean [][][][]float32
	Var  [][][][]float32
	// Det[cb][stream][density] is the precomputed -0.5*(sum(log(var)) + veclen*log(2pi)).
	Det [][][]float32
}

// MixtureWeights holds, per senone, per stream, the scaled negative-log
// 8-bit mixture weight of every density in that senone's codebook (§6
// "Mixture weights").
type MixtureWeights struct {
	NumSenones int
	NumStreams int
	NumDensity int
	// W[senone][stream][density] is an 8-bit scaled negative-log weight.
	W [][][]uint8
	// SenCodebook[senone] gives the codebook a senone draws from: the PTM
	// variant maps many senones to a codebook per base phone; the
	// semi-continuous variant maps every senone to codebook 0.
	SenCodebook []CodebookID
}

// TransitionMatrix holds the per-phone 8-bit quantized transition costs
// (§4.4 "transition costs are 8-bit quantized (capped at 255... impossible").
// Indexing is Costs[srcState][dstState], one matrix per entry of
// [Tables].TMats; topology is strictly
// upper-triangular with single-step-skip-only arcs enforced at load time
// (§7 "Model error... topology violation").
type TransitionMatrix struct {
	NumSrc int
	NumDst int
	Costs  [][]uint8
}

// ImpossibleCost is the sentinel transition cost meaning "no such arc"
// (§6 "capped at 255").
const ImpossibleCost uint8 = 255

// PhoneticModelDef maps (base, left-context, right-context, word-position)
// triphone tuples to a senone-sequence id and a transition-matrix id (§3
// "HMM instance").
type PhoneticModelDef struct {
	BasePhones []string
	// Triphones maps a context key to (SenSeqID, TransitionMatrixID).
	Triphones map[TriphoneKey]TriphoneEntry
	// CISenSeq maps a base-phone index to its context-independent
	// (fallback) senone-sequence, used when no specific triphone context
	// matches (word-boundary silence, fillers).
	CISenSeq []SenSeqID
	// SenSeq resolves a senone-sequence id to the 3 emitting-state senone
	// ids an [HMMInstance] is built from (§3 "a reference to a senone-
	// sequence id, shared across identical triphones").
	SenSeq [][3]SenoneID
	// CITMat maps a base-phone index to its context-independent transition
	// matrix id, the fallback paired with CISenSeq.
	CITMat []TransitionMatrixID
}

// BaseIndex returns the index of phone in BasePhones, or -1 if not found.
func (d *PhoneticModelDef) BaseIndex(phone string) int {
	for i, p := range d.BasePhones {
		if p == phone {
			return i
		}
	}
	return -1
}

// Resolve returns the senone-sequence and transition-matrix to use for one
// triphone occurrence, preferring an exact context match and falling back
// to the base phone's context-independent entry (§3 "CISenSeq... used when
// no specific triphone context matches").
func (d *PhoneticModelDef) Resolve(key TriphoneKey) (senones [3]SenoneID, tmat TransitionMatrixID, ok bool) {
	if e, found := d.Triphones[key]; found {
		if int(e.SenSeq) < len(d.SenSeq) {
			return d.SenSeq[e.SenSeq], e.TMat, true
		}
	}
	base := d.BaseIndex(key.Base)
	if base < 0 || base >= len(d.CISenSeq) {
		return senones, 0, false
	}
	seq := d.CISenSeq[base]
	if int(seq) >= len(d.SenSeq) {
		return senones, 0, false
	}
	tm := TransitionMatrixID(0)
	if base < len(d.CITMat) {
		tm = d.CITMat[base]
	}
	return d.SenSeq[seq], tm, true
}

// TriphoneKey identifies one context-dependent phone instance.
type TriphoneKey struct {
	Base, Left, Right string
	WordPos           WordPosition
}

// WordPosition enumerates where in a word a triphone instance occurs.
type WordPosition int

const (
	WordPosInternal WordPosition = iota
	WordPosBegin
	WordPosEnd
	WordPosSingle
)

// TriphoneEntry is the resolved (senone-sequence, transition-matrix) pair
// for a triphone context.
type TriphoneEntry struct {
	SenSeq SenSeqID
	TMat   TransitionMatrixID
}

// Dictionary holds one or more pronunciations per word (§6 "Dictionary").
// Alternate pronunciations of a word ("word(2)") share the base word's
// index for lattice/search purposes but carry distinct phone strings.
type Dictionary struct {
	// Phones maps a word to its list of pronunciations, each a
	// space-separated list of phones already split into a slice.
	Phones map[string][][]string
	// order preserves insertion order for deterministic iteration
	// (e.g. when rebuilding FSG alternate-pronunciation arcs).
	order []string
}

// NewDictionary returns an empty Dictionary ready for [Dictionary.AddWord].
func NewDictionary() *Dictionary {
	return &Dictionary{Phones: make(map[string][][]string)}
}

// reservedWords must not appear explicitly in a loaded dictionary file —
// they are synthesized from the filler dictionary (§6 "Dictionary").
var reservedWords = map[string]bool{"<s>": true, "</s>": true, "<sil>": true}

// AddWord adds a pronunciation for word, split into phones. It takes no
// update flag and only records the pronunciation; it rebuilds no derived
// search table.
//
// Returns a [LexiconError] if word is reserved, or if phones exactly
// duplicates an existing pronunciation already recorded for word (§3
// SPEC_FULL, duplicate-pronunciation check recovered from dict.c).
func (d *Dictionary) AddWord(word string, phones []string) error {
	if reservedWords[word] {
		return &LexiconError{Word: word, Msg: fmt.Sprintf("word %q is reserved and inserted implicitly from the filler dictionary", word)}
	}
	if len(phones) == 0 {
		return &LexiconError{Word: word, Msg: "pronunciation must have at least one phone"}
	}
	existing := d.Phones[word]
	for _, pron := range existing {
		if stringsEqual(pron, phones) {
			return &LexiconError{Word: word, Msg: "duplicate pronunciation for word"}
		}
	}
	if existing == nil {
		d.order = append(d.order, word)
	}
	d.Phones[word] = append(existing, phones)
	return nil
}

// AddFillerWord adds a pronunciation to a filler dictionary, where the
// words [AddWord] rejects as reserved ("<s>", "</s>", "<sil>") are expected
// rather than an error (§6 "inserted implicitly from the filler
// dictionary").
func (d *Dictionary) AddFillerWord(word string, phones []string) error {
	if len(phones) == 0 {
		return &LexiconError{Word: word, Msg: "pronunciation must have at least one phone"}
	}
	existing := d.Phones[word]
	for _, pron := range existing {
		if stringsEqual(pron, phones) {
			return &LexiconError{Word: word, Msg: "duplicate pronunciation for word"}
		}
	}
	if existing == nil {
		d.order = append(d.order, word)
	}
	d.Phones[word] = append(existing, phones)
	return nil
}

// Pronunciations returns every pronunciation recorded for word, or nil if
// the word is unknown.
func (d *Dictionary) Pronunciations(word string) [][]string {
	return d.Phones[word]
}

// Words returns every distinct base word in insertion order.
func (d *Dictionary) Words() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// LexiconError is returned by [Dictionary.AddWord] (§7 "Lexicon error").
type LexiconError struct {
	Word string
	Msg  string
}

func (e *LexiconError) Error() string { return fmt.Sprintf("model: word %q: %s", e.Word, e.Msg) }

// ModelError reports a malformed model file or a topology violation (§7
// "Model error... fatal at load").
type ModelError struct {
	Msg string
}

func (e *ModelError) Error() string { return "model: " + e.Msg }

// Tables bundles every immutable table the decoder needs and is the unit of
// reference-counted sharing described in §3 "Ownership" and the design
// note on retain/free semantics.
type Tables struct {
	Gaussians  *GaussianParams
	MixWeights *MixtureWeights
	TMats      []*TransitionMatrix
	PhoneDef   *PhoneticModelDef
	Dict       *Dictionary
	FillerDict *Dictionary

	refs *int32
}

// NewTables wraps already-parsed tables into a ref-counted [Tables] handle
// with an initial reference count of 1.
func NewTables(g *GaussianParams, mw *MixtureWeights, tmats []*TransitionMatrix, pd *PhoneticModelDef, dict, filler *Dictionary) *Tables {
	one := int32(1)
	return &Tables{
		Gaussians:  g,
		MixWeights: mw,
		TMats:      tmats,
		PhoneDef:   pd,
		Dict:       dict,
		FillerDict: filler,
		refs:       &one,
	}
}

// Retain increments the reference count and returns the same handle, so
// that `t = t.Retain()` reads naturally at call sites (design note
// "Reference counting (retain/free returning new count) — keep exactly
// this semantics").
func (t *Tables) Retain() *Tables {
	if t == nil {
		return nil
	}
	*t.refs++
	return t
}

// Release decrements the reference count and returns the count remaining.
// Tables carry no per-instance resources beyond Go-GC'd memory (no mmap
// handle is held directly here — see [Reader]), so reaching zero is purely
// informational for callers mirroring the C lifecycle.
func (t *Tables) Release() int32 {
	if t == nil {
		return 0
	}
	*t.refs--
	return *t.refs
}
