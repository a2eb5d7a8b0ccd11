// Package decoder wires the log-semiring, model tables, feature extractor,
// dynamic-feature composer, acoustic scorer, FSG search and word lattice
// into the lifecycle API of §6: init/reinit, set_fsg/set_jsgf/add_word,
// start/process/end, and hyp/seg_iter/nbest/lattice retrieval.
//
// The core owns no global state: every call hangs off a *Decoder value
// built by [New], following design note "Global log/error sink -> replace
// with a callback registered on the decoder."
package decoder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ReadAlongs/soundswallower-go/internal/observe"
	"github.com/ReadAlongs/soundswallower-go/pkg/acoustic"
	"github.com/ReadAlongs/soundswallower-go/pkg/config"
	"github.com/ReadAlongs/soundswallower-go/pkg/feature"
	"github.com/ReadAlongs/soundswallower-go/pkg/feature/dynamic"
	"github.com/ReadAlongs/soundswallower-go/pkg/fsg"
	"github.com/ReadAlongs/soundswallower-go/pkg/jsgf"
	"github.com/ReadAlongs/soundswallower-go/pkg/lattice"
	"github.com/ReadAlongs/soundswallower-go/pkg/logmath"
	"github.com/ReadAlongs/soundswallower-go/pkg/model"
	"github.com/ReadAlongs/soundswallower-go/pkg/search"
)

// lifecycle tracks the decoder-level state machine of §6, distinct from
// [search.State]: it governs which operations are callable, not how far the
// search has progressed within an utterance.
type lifecycle int

const (
	lifecycleUnconfigured lifecycle = iota
	lifecycleConfigured
	lifecycleStarted
	lifecycleEnded
)

// Decoder is the top-level handle a caller drives through init/start/
// process/end, matching the lifecycle of §6.
type Decoder struct {
	logger  *slog.Logger
	metrics *observe.Metrics

	cfg config.Config
	lm  *logmath.Table

	tables   *model.Tables
	featX    *feature.Extractor
	composer *dynamic.Composer
	scorer   acoustic.Scorer

	wordGraph      *fsg.Graph
	phoneGraph     *fsg.Graph
	resolver       map[arcKey]phoneBinding
	syntheticWords map[fsg.WordID]bool

	nextWordID fsg.WordID
	wordNames  map[fsg.WordID]string
	nameToID   map[string]fsg.WordID

	srch  *search.Search
	beams search.Beams

	state lifecycle
	frame int

	utteranceStart time.Time
	utteranceID    uuid.UUID

	lastLattice *lattice.Lattice
	lastBestIdx int32
	haveHyp     bool
}

// New creates a [Decoder] with no configuration applied; [Decoder.Init] must
// be called before [Decoder.Start] (§6 "start... fails if not configured").
func New(logger *slog.Logger, metrics *observe.Metrics) *Decoder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Decoder{
		logger:    logger,
		metrics:   metrics,
		wordNames: make(map[fsg.WordID]string),
		nameToID:  make(map[string]fsg.WordID),
	}
}

// Init applies cfg, loading model tables and building the feature pipeline
// and acoustic scorer (§6 "init"). Equivalent to constructing a fresh
// Decoder and calling Reinit.
func (d *Decoder) Init(cfg config.Config) error {
	return d.Reinit(cfg)
}

// Reinit re-applies cfg from scratch, discarding any installed grammar and
// loaded tables (§6 "reinit... re-applies config in a fixed order"). Model
// tables and feature stages are (re)loaded concurrently via an errgroup,
// joined before this returns (SPEC_FULL §2 "bounding the background
// model-load goroutine").
func (d *Decoder) Reinit(cfg config.Config) error {
	lm, err := logmath.New(cfg.LogBase, 0)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	tables, stages, err := loadAll(cfg, lm)
	if err != nil {
		return err
	}
	scorer, err := buildScorer(tables, cfg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModel, err)
	}

	if cfg.MLLR != "" {
		d.logger.Warn("mllr adaptation transform requested but not applied", "mllr", cfg.MLLR)
	}
	if cfg.LDA != "" {
		d.logger.Warn("lda projection requested but not applied", "lda", cfg.LDA)
	}

	d.cfg = cfg
	d.lm = lm
	d.tables = tables
	d.featX = stages.extractor
	d.composer = stages.composer
	d.scorer = scorer
	d.beams = buildBeams(cfg, lm)

	d.wordGraph = nil
	d.phoneGraph = nil
	d.resolver = nil
	d.syntheticWords = nil
	d.srch = nil
	d.nextWordID = 0
	d.wordNames = make(map[fsg.WordID]string)
	d.nameToID = make(map[string]fsg.WordID)
	d.internDictionary()

	d.state = lifecycleConfigured
	d.haveHyp = false
	d.lastLattice = nil

	if cfg.FSG != "" {
		if err := d.loadFSGFile(cfg.FSG); err != nil {
			return err
		}
	}
	if cfg.JSGF != "" {
		if err := d.loadJSGFFile(cfg.JSGF, cfg.TopRule); err != nil {
			return err
		}
	}
	return nil
}

// internDictionary interns every word in the main and filler dictionaries in
// a fixed, deterministic order (insertion order of the parsed dictionary
// files), so a raw text FSG's numeric word ids (§6, fsg.ReadText) line up
// with a caller-supplied grammar authored against the same dictionary.
func (d *Decoder) internDictionary() {
	for _, w := range d.tables.Dict.Words() {
		d.internWord(w)
	}
	for _, w := range d.tables.FillerDict.Words() {
		d.internWord(w)
	}
}

// ReinitFeat rebuilds only the feature extractor and dynamic-feature
// composer from cfg, leaving loaded model tables, the scorer, and any
// installed grammar untouched (§6 "reinit_feat... rebuild only feature
// stages").
func (d *Decoder) ReinitFeat(cfg config.Config) error {
	if d.state == lifecycleUnconfigured {
		return fmt.Errorf("%w: reinit_feat: decoder not configured", ErrState)
	}
	stages, err := buildFeatureStages(cfg)
	if err != nil {
		return err
	}
	d.featX = stages.extractor
	d.composer = stages.composer
	d.cfg.SampRate, d.cfg.FrameRate, d.cfg.WLen = cfg.SampRate, cfg.FrameRate, cfg.WLen
	d.cfg.Transform, d.cfg.CMN, d.cfg.CMNInit, d.cfg.CepLen = cfg.Transform, cfg.CMN, cfg.CMNInit, cfg.CepLen
	return nil
}

// SetFSG installs text in the text FSG format (§6 "set_fsg") as the active
// grammar, expanding it to phone granularity and (re)installing the search.
// Word ids referenced by the FSG text must already be interned from the
// dictionary in file order (see [Decoder.internDictionary]).
func (d *Decoder) SetFSG(text string) error {
	if d.state == lifecycleUnconfigured {
		return fmt.Errorf("%w: set_fsg: decoder not configured", ErrState)
	}
	g, err := fsg.ReadText(strings.NewReader(text))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLexicon, err)
	}
	return d.installWordGraph(g)
}

// loadFSGFile reads an FSG text file from disk and installs it.
func (d *Decoder) loadFSGFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return d.SetFSG(string(b))
}

// SetJSGF compiles text as JSGF (§6 "set_jsgf") against the decoder's
// interned word table, then installs the resulting grammar the same way as
// [Decoder.SetFSG].
func (d *Decoder) SetJSGF(text, topRule string) error {
	if d.state == lifecycleUnconfigured {
		return fmt.Errorf("%w: set_jsgf: decoder not configured", ErrState)
	}
	g, err := jsgf.Compile(text, topRule, d)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLexicon, err)
	}
	return d.installWordGraph(g)
}

func (d *Decoder) loadJSGFFile(path, topRule string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return d.SetJSGF(string(b), topRule)
}

// AddWord adds a pronunciation to the live dictionary (§6 "add_word"),
// interning the word if new. update mirrors the add_word update flag: when
// true and a grammar is already installed, the grammar is re-expanded and
// re-installed so the new word becomes reachable immediately.
func (d *Decoder) AddWord(word string, phones []string, update bool) error {
	if d.state == lifecycleUnconfigured {
		return fmt.Errorf("%w: add_word: decoder not configured", ErrState)
	}
	if err := d.tables.Dict.AddWord(word, phones); err != nil {
		return fmt.Errorf("%w: %v", ErrLexicon, err)
	}
	d.internWord(word)
	if update && d.wordGraph != nil {
		return d.installWordGraph(d.wordGraph)
	}
	return nil
}

// installWordGraph finalizes a word-level grammar (self-loops, alternate
// pronunciations, epsilon closure), expands it to phone granularity, and
// (re)creates the search over the expanded graph.
func (d *Decoder) installWordGraph(g *fsg.Graph) error {
	if d.cfg.FSGUseFiller {
		fillerIDs, fillerLogProbs := d.fillerSelfLoops()
		g.InsertSelfLoops(fillerIDs, fillerLogProbs)
	}
	if d.cfg.FSGUseAltPron {
		g.ExpandAlternatePronunciations(d.numProns)
	}
	g.CloseEpsilons()
	d.wordGraph = g

	pip := d.lm.Log(d.cfg.PIP)
	phoneGraph, resolver, err := d.expandToPhoneGraph(g, d.cfg.LW, pip)
	if err != nil {
		return err
	}
	d.phoneGraph = phoneGraph
	d.resolver = resolver

	d.srch = search.NewSearch(d.phoneGraph, d.arcResolver, d.beams)
	return nil
}

// fillerSelfLoops builds the self-loop word/log-probability lists for
// [fsg.Graph.InsertSelfLoops]: silence at cfg.SilProb, every other filler
// dictionary word at cfg.FillProb (§6 "silprob"/"fillprob").
func (d *Decoder) fillerSelfLoops() ([]fsg.WordID, []int32) {
	silLog := d.lm.Log(d.cfg.SilProb)
	fillLog := d.lm.Log(d.cfg.FillProb)
	var ids []fsg.WordID
	var logProbs []int32
	for _, w := range d.tables.FillerDict.Words() {
		id := d.internWord(w)
		ids = append(ids, id)
		if w == "<sil>" {
			logProbs = append(logProbs, silLog)
		} else {
			logProbs = append(logProbs, fillLog)
		}
	}
	return ids, logProbs
}

// arcResolver adapts the decoder's resolver map to [search.ArcResolver].
func (d *Decoder) arcResolver(arc fsg.Arc) (senones [3]model.SenoneID, tmat *model.TransitionMatrix, ok bool) {
	b, found := d.resolver[arcKey{From: arc.From, To: arc.To, Word: arc.Word}]
	if !found {
		return senones, nil, false
	}
	return b.senones, b.tmat, true
}

// Start begins a new utterance (§6 "start"): resets the feature pipeline,
// scorer, and search. Fails if no grammar has been installed.
func (d *Decoder) Start() error {
	if d.state == lifecycleUnconfigured {
		return fmt.Errorf("%w: start: decoder not configured", ErrState)
	}
	if d.srch == nil {
		return fmt.Errorf("%w: start: no grammar installed", ErrState)
	}
	d.featX.Start()
	d.composer.Start()
	d.scorer.Reset()
	if err := d.srch.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrState, err)
	}
	d.state = lifecycleStarted
	d.frame = 0
	d.haveHyp = false
	d.lastLattice = nil
	d.utteranceStart = startClock()
	d.utteranceID = uuid.New()
	d.logger.Debug("utterance started", "utterance_id", d.utteranceID)
	return nil
}

// startClock is a thin seam over time.Now so tests can avoid depending on
// wall-clock behavior if ever needed; production code always uses it as-is.
func startClock() time.Time { return time.Now() }

// Process feeds samples through the feature extractor, dynamic-feature
// composer, acoustic scorer, and search (§6 "process"). fullUtterance
// should be true only on the final call of an utterance; it is passed to
// [dynamic.Composer.Process], which in batch-CMN mode emits nothing until
// it is set ([feature.Extractor.Process] ignores it).
func (d *Decoder) Process(ctx context.Context, samples []float32, fullUtterance bool) error {
	if d.state != lifecycleStarted {
		return fmt.Errorf("%w: process: decoder not started", ErrState)
	}
	static, err := d.featX.Process(samples, fullUtterance)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSaturation, err)
	}
	return d.runFrames(ctx, static, fullUtterance)
}

// runFrames pushes static frames through the composer and, for every
// composed feature vector produced, scores and steps the search one frame.
func (d *Decoder) runFrames(ctx context.Context, static [][]float64, fullUtterance bool) error {
	feats, err := d.composer.Process(static, fullUtterance)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSaturation, err)
	}
	for _, fv := range feats {
		if err := d.stepOneFrame(fv); err != nil {
			return err
		}
	}
	d.metrics.FramesProcessed.Add(ctx, int64(len(feats)))
	return nil
}

// stepOneFrame scores the active senones for one composed feature vector and
// advances the search by one frame.
func (d *Decoder) stepOneFrame(fv []float64) error {
	active := d.activeSenoneList()
	costs, err := d.scorer.ScoreFrame(splitStreams(fv, d.cfg.CepLen), active)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModel, err)
	}
	senCost := func(sen model.SenoneID) (acoustic.Cost, bool) {
		c, ok := costs[sen]
		return c, ok
	}
	if err := d.srch.StepFrame(senCost); err != nil {
		return fmt.Errorf("%w: %v", ErrState, err)
	}
	d.frame++
	return nil
}

// activeSenoneList builds this frame's active-senone list from the senones
// the search's currently active HMMs actually reference, not the whole
// installed resolver: "passing the current frame's senone scores (with
// only the states these HMMs need marked active)" (§4.5(a)).
func (d *Decoder) activeSenoneList() acoustic.ActiveList {
	return acoustic.BuildActiveList(d.srch.ActiveSenones())
}

// splitStreams reshapes a single concatenated feature vector into the
// per-stream layout [acoustic.Scorer.ScoreFrame] expects. The "feat"
// default of "1s_c_d_dd" (§6) names a single stream carrying static+delta+
// double-delta concatenated, matching tables.Gaussians.NumStreams == 1, so
// the whole composed vector is stream 0.
func splitStreams(fv []float64, ceplen int) [][]float64 {
	return [][]float64{fv}
}

// End finalizes the utterance (§6 "end"): flushes the feature pipeline and
// composer, forces every active HMM to exit, builds the word lattice from
// the resulting backpointer table, and computes the best path.
func (d *Decoder) End(ctx context.Context) error {
	if d.state != lifecycleStarted {
		return fmt.Errorf("%w: end: decoder not started", ErrState)
	}
	static, err := d.featX.End()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSaturation, err)
	}
	if err := d.runFrames(ctx, static, true); err != nil {
		return err
	}
	tailFeats, err := d.composer.End()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSaturation, err)
	}
	for _, fv := range tailFeats {
		if err := d.stepOneFrame(fv); err != nil {
			return err
		}
	}

	bestIdx, err := d.srch.End()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrState, err)
	}
	d.lastBestIdx = bestIdx
	d.lastLattice = lattice.Build(d.srch.Backpointers(), bestIdx, d.classifyFiller)
	if bestIdx >= 0 {
		d.haveHyp = true
	}

	ascaleInv := d.cfg.AScale
	if ascaleInv == 0 {
		ascaleInv = 1
	}
	beamWidth := d.beams.WordExit
	z, skipped := d.lastLattice.Posterior(d.lm, ascaleInv, -beamWidth)
	if skipped {
		d.logger.Warn("posterior Z degenerately small, pruning skipped", "utterance_id", d.utteranceID, "z", z)
	}

	d.metrics.BackpointerTableSize.Record(ctx, int64(len(d.srch.Backpointers())))
	d.metrics.LatticeNodes.Record(ctx, int64(len(d.lastLattice.Nodes)))
	d.metrics.UtteranceDuration.Record(ctx, time.Since(d.utteranceStart).Seconds())
	d.logger.Debug("utterance ended", "utterance_id", d.utteranceID, "frames", d.frame, "nodes", len(d.lastLattice.Nodes))

	d.state = lifecycleEnded
	return nil
}

// classifyFiller reports whether w is the silence word or a filler word,
// for [lattice.Build]. The penalty it reports is always 0, so Build adds
// no silence or filler offset to any link. Synthetic interior-phone word ids are never passed
// to this classifier in a way that matters for scoring, since they are
// filtered out of any caller-visible hypothesis by [Decoder.filterSynthetic].
func (d *Decoder) classifyFiller(w fsg.WordID) (int32, bool) {
	name := d.wordName(w)
	if name == "" {
		return 0, false
	}
	if name == "<sil>" {
		return 0, true
	}
	for _, f := range d.tables.FillerDict.Words() {
		if f == name && f != "<sil>" {
			return 0, true
		}
	}
	return 0, false
}

// Hyp returns the current best hypothesis text: a live partial hypothesis
// while the search is still active ([lifecycleStarted]), or the final
// hypothesis after [Decoder.End] ([lifecycleEnded]) (§6 "hyp").
func (d *Decoder) Hyp() (string, error) {
	switch d.state {
	case lifecycleStarted:
		return d.partialHyp(), nil
	case lifecycleEnded:
		if !d.haveHyp {
			return "", fmt.Errorf("%w: hyp: no hypothesis yet", ErrState)
		}
		return d.wordsToText(d.lastLattice.Segments()), nil
	default:
		return "", fmt.Errorf("%w: hyp: no hypothesis yet", ErrState)
	}
}

// partialHyp renders the best-scoring backpointer chain reached so far,
// without waiting for [Decoder.End] to build the full lattice.
func (d *Decoder) partialHyp() string {
	bp := d.srch.Backpointers()
	if len(bp) == 0 {
		return ""
	}
	bestIdx := -1
	var best int32 = search.MinScore
	for i, e := range bp {
		if e.AScore > best {
			best = e.AScore
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return ""
	}
	var words []fsg.WordID
	for i := bestIdx; i >= 0; {
		e := bp[i]
		words = append(words, e.Word)
		i = int(e.Predecessor)
	}
	for i, j := 0, len(words)-1; i < j; i, j = i+1, j-1 {
		words[i], words[j] = words[j], words[i]
	}
	return d.wordsToTextIDs(words)
}

// wordsToText renders a lattice segmentation as space-separated words,
// dropping synthetic interior-phone-chain ids and the sentence markers.
func (d *Decoder) wordsToText(segs []lattice.WordSegment) string {
	ids := make([]fsg.WordID, len(segs))
	for i, s := range segs {
		ids[i] = s.Word
	}
	return d.wordsToTextIDs(ids)
}

func (d *Decoder) wordsToTextIDs(ids []fsg.WordID) string {
	var b strings.Builder
	for _, id := range ids {
		if d.syntheticWords[id] {
			continue
		}
		name := d.wordName(id)
		if name == "" || name == "<s>" || name == "</s>" || name == "<sil>" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(name)
	}
	return b.String()
}

// SegIter returns the 1-best word segmentation (§6 "seg_iter"), filtering
// out synthetic interior-phone-chain words and sentence markers.
func (d *Decoder) SegIter() ([]lattice.WordSegment, error) {
	if d.state != lifecycleEnded || !d.haveHyp {
		return nil, fmt.Errorf("%w: seg_iter: no hypothesis yet", ErrState)
	}
	return d.filterSynthetic(d.lastLattice.Segments()), nil
}

// filterSynthetic drops segments whose word id is a synthetic interior-
// phone-chain id or a sentence marker, from a lattice segmentation.
func (d *Decoder) filterSynthetic(in []lattice.WordSegment) []lattice.WordSegment {
	out := make([]lattice.WordSegment, 0, len(in))
	for _, s := range in {
		if d.syntheticWords[s.Word] {
			continue
		}
		name := d.wordName(s.Word)
		if name == "<s>" || name == "</s>" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// NBest returns up to n complete alternate hypotheses (§6 "nbest"), each
// filtered the same way as [Decoder.SegIter].
func (d *Decoder) NBest(n int) ([]lattice.NBestHypothesis, error) {
	if d.state != lifecycleEnded {
		return nil, fmt.Errorf("%w: nbest: no lattice", ErrState)
	}
	raw := d.lastLattice.NBest(n)
	out := make([]lattice.NBestHypothesis, len(raw))
	for i, h := range raw {
		out[i] = lattice.NBestHypothesis{Score: h.Score, Segments: d.filterSynthetic(h.Segments)}
	}
	return out, nil
}

// Lattice returns the word lattice built by the last [Decoder.End] call
// (§6 "lattice").
func (d *Decoder) Lattice() (*lattice.Lattice, error) {
	if d.state != lifecycleEnded {
		return nil, fmt.Errorf("%w: lattice: no lattice", ErrState)
	}
	return d.lastLattice, nil
}

// Align returns the 1-best word segmentation's phone hierarchy (§4.7,
// SPEC_FULL §3 item 2), dividing each word's frame span evenly across its
// dictionary pronunciation's phones and reporting each phone's acoustic
// score normalized by its duration, for confidence gating. No per-phone
// backpointer is retained by the search, so this reports the nominal
// pronunciation's phones rather than a forced re-alignment of which
// phone-chain variant actually fired.
func (d *Decoder) Align() ([]lattice.WordAlignment, error) {
	if d.state != lifecycleEnded || !d.haveHyp {
		return nil, fmt.Errorf("%w: align: no hypothesis yet", ErrState)
	}
	segs := d.filterSynthetic(d.lastLattice.Segments())
	ascores := make(map[int]int32, len(segs))
	for _, s := range segs {
		ascores[s.StartFrame] = s.AScore
	}
	phonesForWord := func(w fsg.WordID, start, end int) []lattice.PhoneAlignment {
		return d.phonesForSegment(w, start, end, ascores[start])
	}
	return lattice.Alignment(segs, phonesForWord), nil
}

// phonesForSegment divides a word segment's frame span, and its total
// acoustic score, evenly across its dictionary pronunciation's phones.
func (d *Decoder) phonesForSegment(w fsg.WordID, start, end int, wordAScore int32) []lattice.PhoneAlignment {
	name := d.wordName(w)
	prons := d.pronunciations(name)
	if len(prons) == 0 {
		return nil
	}
	phones := prons[0]
	if len(phones) == 0 {
		return nil
	}
	span := end - start
	if span < 0 {
		span = 0
	}
	per := span / len(phones)
	out := make([]lattice.PhoneAlignment, len(phones))
	cur := start
	for i, ph := range phones {
		dur := per
		if i == len(phones)-1 {
			dur = end - cur
		}
		ascore := wordAScore / int32(len(phones))
		durScore := float64(ascore)
		if dur > 0 {
			durScore = float64(ascore) / float64(dur)
		}
		out[i] = lattice.PhoneAlignment{
			Phone:         ph,
			StartFrame:    cur,
			Duration:      dur,
			AScore:        ascore,
			DurationScore: durScore,
		}
		cur += dur
	}
	return out
}
