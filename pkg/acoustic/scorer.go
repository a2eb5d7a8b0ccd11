// Package acoustic implements the PTM and semi-continuous Gaussian
// scorers (§4.3): feature vector + active-senone list in, integer
// negative-log cost per active senone out.
package acoustic

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/ReadAlongs/soundswallower-go/pkg/model"
)

// Scorer is the shared contract of the two concrete variants (§9 "Virtual-
// table polymorphism for Gaussian scorers... represent as a trait/interface
// with two concrete implementations; the decoder holds it behind a single
// handle").
type Scorer interface {
	// ScoreFrame scores one feature-stream frame against the senones named
	// in active, returning a non-negative cost per senone (0 = best).
	ScoreFrame(feat [][]float64, active ActiveList) (map[model.SenoneID]Cost, error)
	// Reset clears top-N cache state, called at utterance start.
	Reset()
}

var (
	_ Scorer = (*PTMScorer)(nil)
	_ Scorer = (*SemiContinuousScorer)(nil)
)

// Config holds the recognized scoring options from §6.
type Config struct {
	TopN       int // default 4
	Downsample int // ds, default 1
	AcousticWeightInv float64 // aw, default 1
}

// DefaultConfig matches §6's scoring defaults.
func DefaultConfig() Config {
	return Config{TopN: 4, Downsample: 1, AcousticWeightInv: 1}
}

// base holds the state shared by both scorer variants: the top-N cache per
// (codebook, stream), frame counter for downsampling, and a cached previous
// frame's result to replay on skipped frames (§4.3 step 5).
type base struct {
	tables *model.Tables
	cfg    Config

	topN      [][]*topN // topN[codebook][stream]
	lastCosts map[model.SenoneID]Cost
	frame     int
}

func newBase(tables *model.Tables, cfg Config, numCodebooks int) base {
	g := tables.Gaussians
	tn := make([][]*topN, numCodebooks)
	for cb := range tn {
		tn[cb] = make([]*topN, g.NumStreams)
		for s := range tn[cb] {
			tn[cb][s] = newTopN(cfg.TopN)
		}
	}
	return base{tables: tables, cfg: cfg, topN: tn}
}

func (b *base) reset() {
	for _, perStream := range b.topN {
		for _, t := range perStream {
			t.reset()
		}
	}
	b.frame = 0
	b.lastCosts = nil
}

// mahalanobisCost computes the (unnormalized) negative-log-likelihood cost
// of feature vector x against one Gaussian density, using the precomputed
// determinant term (§4.3 step 2 "Mahalanobis distance is computed in
// feature-stream-major order; precomputed determinants are subtracted").
// diff and varFloor are caller-owned scratch of len(x), reused across
// densities by evaluateCodebook to avoid a per-density allocation.
func mahalanobisCost(g *model.GaussianParams, cb, stream, density int, x, diff, varFloor []float64) float64 {
	mean := g.Mean[cb][stream][density]
	vr := g.Var[cb][stream][density]
	for i, xi := range x {
		diff[i] = xi - float64(mean[i])
		v := float64(vr[i])
		if v < 1e-6 {
			v = 1e-6
		}
		varFloor[i] = v
	}
	floats.Mul(diff, diff)     // diff[i] = diff[i]^2
	floats.Div(diff, varFloor) // diff[i] /= varFloor[i]
	sum := floats.Sum(diff)
	return 0.5*sum - float64(g.Det[cb][stream][density])
}

// evaluateCodebook scores every density of codebook cb against x for
// stream s, refreshing t's top-N, pruning remaining codewords once t is
// full and a candidate exceeds the current worst-of-top-N threshold.
func evaluateCodebook(g *model.GaussianParams, cb, stream int, x []float64, t *topN) {
	t.reset()
	diff := make([]float64, g.VecLen[stream])
	varFloor := make([]float64, g.VecLen[stream])
	for d := 0; d < g.NumDensities; d++ {
		cost := mahalanobisCost(g, cb, stream, d, x, diff, varFloor)
		c := clampCost(cost)
		if len(t.entries) >= t.n && c >= t.worst() {
			continue
		}
		t.insert(d, c)
	}
}

// normalizeAndClamp subtracts the best (lowest) cost in t from every entry
// and clamps to an 8-bit range, matching §4.3 step 3.
func normalizeAndClamp(t *topN) {
	best := t.best()
	for i := range t.entries {
		c := t.entries[i].Cost - best
		if c > 255 {
			c = 255
		}
		t.entries[i].Cost = c
	}
}

func clampCost(f float64) Cost {
	if f < 0 {
		f = 0
	}
	const maxCost = float64(1<<30 - 1)
	if f > maxCost {
		f = maxCost
	}
	return Cost(f)
}

// combineSenoneCost log-adds (in the cost domain: min-plus is the cost
// analogue of log-add over likelihoods with very small contributions
// dropped) the top-N codeword costs of a senone's codebook/stream,
// weighted by the senone's mixture weight, then sums across streams and
// applies the inverse acoustic scale (§4.3 step 4).
func combineSenoneCost(mw *model.MixtureWeights, sen model.SenoneID, streamTopN []*topN, awInv float64) Cost {
	var total float64
	for s, t := range streamTopN {
		var streamCost float64 = math.MaxFloat64
		for _, e := range t.entries {
			w := float64(mw.W[sen][s][e.Codeword%len(mw.W[sen][s])])
			c := float64(e.Cost) + w
			if c < streamCost {
				streamCost = c
			}
		}
		if streamCost == math.MaxFloat64 {
			streamCost = 255
		}
		total += streamCost
	}
	total /= awInv
	if total > 32767 {
		total = 32767
	}
	if total < 0 {
		total = 0
	}
	return Cost(total)
}

// PTMScorer implements the phonetic-tied-mixture variant: one Gaussian
// codebook per context-independent phone (§4.3 "Phonetic-tied-mixture
// (PTM) variant").
type PTMScorer struct {
	base
	phoneOfCodebook []int // unused placeholder for future phone-active pruning
}

// NewPTMScorer builds a PTM scorer over tables, with one codebook per
// context-independent phone as recorded in tables.Gaussians.
func NewPTMScorer(tables *model.Tables, cfg Config) (*PTMScorer, error) {
	if tables == nil || tables.Gaussians == nil || tables.MixWeights == nil {
		return nil, fmt.Errorf("acoustic: PTM scorer requires loaded Gaussian and mixture-weight tables")
	}
	return &PTMScorer{base: newBase(tables, cfg, tables.Gaussians.NumCodebooks)}, nil
}

func (s *PTMScorer) Reset() { s.reset() }

// ScoreFrame implements [Scorer] for the PTM variant.
func (s *PTMScorer) ScoreFrame(feat [][]float64, active ActiveList) (map[model.SenoneID]Cost, error) {
	s.frame++
	if s.cfg.Downsample > 1 && (s.frame%s.cfg.Downsample) != 0 {
		if s.lastCosts != nil {
			return s.lastCosts, nil
		}
	}

	g := s.tables.Gaussians
	mw := s.tables.MixWeights
	ids := active.SenoneIDs()

	touched := make(map[int]bool)
	for _, sen := range ids {
		touched[int(mw.SenCodebook[sen])] = true
	}
	for cb := range touched {
		for st := 0; st < g.NumStreams && st < len(feat); st++ {
			evaluateCodebook(g, cb, st, feat[st], s.topN[cb][st])
		}
	}
	for cb := range touched {
		for st := range s.topN[cb] {
			normalizeAndClamp(s.topN[cb][st])
		}
	}

	out := make(map[model.SenoneID]Cost, len(ids))
	for _, sen := range ids {
		cb := int(mw.SenCodebook[sen])
		out[sen] = combineSenoneCost(mw, sen, s.topN[cb], s.cfg.AcousticWeightInv)
	}
	s.lastCosts = out
	return out, nil
}

// SemiContinuousScorer implements the semi-continuous variant: one shared
// Gaussian codebook for every senone (§4.3 "Semi-continuous variant").
type SemiContinuousScorer struct {
	base
}

// NewSemiContinuousScorer builds a scorer over a single shared codebook
// (tables.Gaussians.NumCodebooks must be 1).
func NewSemiContinuousScorer(tables *model.Tables, cfg Config) (*SemiContinuousScorer, error) {
	if tables == nil || tables.Gaussians == nil || tables.MixWeights == nil {
		return nil, fmt.Errorf("acoustic: semi-continuous scorer requires loaded Gaussian and mixture-weight tables")
	}
	return &SemiContinuousScorer{base: newBase(tables, cfg, tables.Gaussians.NumCodebooks)}, nil
}

func (s *SemiContinuousScorer) Reset() { s.reset() }

// ScoreFrame implements [Scorer] for the semi-continuous variant: the
// single codebook is evaluated unconditionally every frame (no active-
// codebook pruning), and every active senone iterates mixture weights
// against that one codebook.
func (s *SemiContinuousScorer) ScoreFrame(feat [][]float64, active ActiveList) (map[model.SenoneID]Cost, error) {
	s.frame++
	if s.cfg.Downsample > 1 && (s.frame%s.cfg.Downsample) != 0 {
		if s.lastCosts != nil {
			return s.lastCosts, nil
		}
	}

	g := s.tables.Gaussians
	mw := s.tables.MixWeights
	const cb = 0
	for st := 0; st < g.NumStreams && st < len(feat); st++ {
		evaluateCodebook(g, cb, st, feat[st], s.topN[cb][st])
	}
	for st := range s.topN[cb] {
		normalizeAndClamp(s.topN[cb][st])
	}

	ids := active.SenoneIDs()
	out := make(map[model.SenoneID]Cost, len(ids))
	for _, sen := range ids {
		out[sen] = combineSenoneCost(mw, sen, s.topN[cb], s.cfg.AcousticWeightInv)
	}
	s.lastCosts = out
	return out, nil
}
