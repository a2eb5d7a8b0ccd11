package decoder

import (
	"context"
	"strings"
	"testing"

	"github.com/ReadAlongs/soundswallower-go/pkg/acoustic"
	"github.com/ReadAlongs/soundswallower-go/pkg/config"
	"github.com/ReadAlongs/soundswallower-go/pkg/feature"
	"github.com/ReadAlongs/soundswallower-go/pkg/feature/dynamic"
	"github.com/ReadAlongs/soundswallower-go/pkg/logmath"
	"github.com/ReadAlongs/soundswallower-go/pkg/model"
)

// buildTestTables constructs a minimal two-phone (AA, SIL) acoustic and
// lexical model entirely in memory, standing in for the on-disk model
// files [loadModelTables] would otherwise parse.
func buildTestTables(t *testing.T) *model.Tables {
	t.Helper()

	pd := &model.PhoneticModelDef{
		BasePhones: []string{"AA", "SIL"},
		Triphones:  map[model.TriphoneKey]model.TriphoneEntry{},
		CISenSeq:   []model.SenSeqID{0, 1},
		SenSeq: [][3]model.SenoneID{
			{0, 1, 2},
			{3, 4, 5},
		},
		CITMat: []model.TransitionMatrixID{0, 0},
	}

	tm := &model.TransitionMatrix{NumSrc: 3, NumDst: 4}
	tm.Costs = [][]uint8{
		{10, 20, 30, 255},
		{255, 10, 20, 30},
		{255, 255, 10, 20},
	}

	const vecLen = 6
	gauss := &model.GaussianParams{
		NumCodebooks: 1,
		NumStreams:   1,
		NumDensities: 1,
		VecLen:       []int{vecLen},
	}
	mean := make([]float32, vecLen)
	vr := make([]float32, vecLen)
	for i := range vr {
		vr[i] = 1.0
	}
	gauss.Mean = make([][][][]float32, 1)
	gauss.Mean[0] = make([][][]float32, 1)
	gauss.Mean[0][0] = make([][]float32, 1)
	gauss.Mean[0][0][0] = mean
	gauss.Var = make([][][][]float32, 1)
	gauss.Var[0] = make([][][]float32, 1)
	gauss.Var[0][0] = make([][]float32, 1)
	gauss.Var[0][0][0] = vr
	gauss.Det = make([][][]float32, 1)
	gauss.Det[0] = make([][]float32, 1)
	gauss.Det[0][0] = make([]float32, 1)

	mw := &model.MixtureWeights{
		NumSenones:  6,
		NumStreams:  1,
		NumDensity:  1,
		W:           make([][][]uint8, 6),
		SenCodebook: make([]model.CodebookID, 6),
	}
	for i := range mw.W {
		mw.W[i] = [][]uint8{{0}}
	}

	dict := model.NewDictionary()
	if err := dict.AddWord("hi", []string{"AA", "SIL"}); err != nil {
		t.Fatalf("AddWord: %v", err)
	}

	filler := model.NewDictionary()
	for _, w := range []struct {
		word   string
		phones []string
	}{
		{"<sil>", []string{"SIL"}},
		{"<s>", []string{"SIL"}},
		{"</s>", []string{"SIL"}},
	} {
		if err := filler.AddFillerWord(w.word, w.phones); err != nil {
			t.Fatalf("AddFillerWord(%q): %v", w.word, err)
		}
	}

	return model.NewTables(gauss, mw, []*model.TransitionMatrix{tm}, pd, dict, filler)
}

// newTestDecoder builds a [Decoder] wired entirely from in-memory tables,
// bypassing [Decoder.Reinit]'s on-disk model loading.
func newTestDecoder(t *testing.T) *Decoder {
	t.Helper()
	cfg := config.Default()
	cfg.CepLen = 2
	cfg.NCep = 2
	cfg.FSGUseFiller = false // keep the grammar minimal for these tests
	cfg.FSGUseAltPron = false

	lm := logmath.Default()

	fcfg := feature.DefaultConfig()
	fcfg.NumCep = cfg.NCep
	fx, err := feature.New(fcfg)
	if err != nil {
		t.Fatalf("feature.New: %v", err)
	}

	dcfg := dynamic.Config{CepLen: cfg.CepLen, CMN: dynamic.CMNNone, GrowBuffer: true}
	comp, err := dynamic.New(dcfg)
	if err != nil {
		t.Fatalf("dynamic.New: %v", err)
	}

	tables := buildTestTables(t)
	scorer, err := acoustic.NewSemiContinuousScorer(tables, acoustic.DefaultConfig())
	if err != nil {
		t.Fatalf("NewSemiContinuousScorer: %v", err)
	}

	d := New(nil, nil)
	d.cfg = cfg
	d.lm = lm
	d.tables = tables
	d.featX = fx
	d.composer = comp
	d.scorer = scorer
	d.beams = buildBeams(cfg, lm)
	d.state = lifecycleConfigured
	d.internDictionary()
	return d
}

// testFSGText builds a two-state linear grammar over the single
// dictionary word "hi", whose interned id is 0 (the only main-dictionary
// word, interned before any filler word by [Decoder.internDictionary]).
const testFSGText = `FSG_BEGIN hi
NUM_STATES 2
START_STATE 0
FINAL_STATE 1
TRANSITION 0 1 0 0
FSG_END
`

func TestDecoder_LifecycleFailureModes(t *testing.T) {
	d := New(nil, nil)
	if err := d.Start(); err == nil {
		t.Fatal("expected error starting an unconfigured decoder")
	}
	if _, err := d.Hyp(); err == nil {
		t.Fatal("expected error calling Hyp before any utterance")
	}

	d2 := newTestDecoder(t)
	if err := d2.Start(); err == nil {
		t.Fatal("expected error starting with no grammar installed")
	}
	if err := d2.SetFSG(testFSGText); err != nil {
		t.Fatalf("SetFSG: %v", err)
	}
	if err := d2.Process(context.Background(), make([]float32, 100), false); err == nil {
		t.Fatal("expected error calling Process before Start")
	}
}

func TestDecoder_FullUtteranceProducesHypothesis(t *testing.T) {
	d := newTestDecoder(t)
	if err := d.SetFSG(testFSGText); err != nil {
		t.Fatalf("SetFSG: %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// One second (16000 samples at 16 kHz) of silence-like audio, enough to
	// traverse both phones of "hi" at 100 frames/sec.
	samples := make([]float32, 16000)
	ctx := context.Background()
	if err := d.Process(ctx, samples, false); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if err := d.End(ctx); err != nil {
		t.Fatalf("End: %v", err)
	}

	hyp, err := d.Hyp()
	if err != nil {
		t.Fatalf("Hyp: %v", err)
	}
	if !strings.Contains(hyp, "hi") {
		t.Fatalf("expected hypothesis to contain %q, got %q", "hi", hyp)
	}

	segs, err := d.SegIter()
	if err != nil {
		t.Fatalf("SegIter: %v", err)
	}
	if len(segs) == 0 {
		t.Fatal("expected at least one word segment")
	}

	if _, err := d.NBest(5); err != nil {
		t.Fatalf("NBest: %v", err)
	}
	if _, err := d.Lattice(); err != nil {
		t.Fatalf("Lattice: %v", err)
	}

	aligned, err := d.Align()
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	if len(aligned) == 0 {
		t.Fatal("expected at least one aligned word")
	}
	for _, wa := range aligned {
		if len(wa.Phones) == 0 {
			t.Fatalf("expected phones for aligned word %v", wa.Word)
		}
	}
}

func TestDecoder_AddWordInternsBeforeGrammarInstall(t *testing.T) {
	d := newTestDecoder(t)
	if err := d.AddWord("bye", []string{"SIL", "AA"}, false); err != nil {
		t.Fatalf("AddWord: %v", err)
	}
	if _, ok := d.nameToID["bye"]; !ok {
		t.Fatal("expected AddWord to intern the new word")
	}
}

func TestDecoder_ReinitFeatRequiresConfiguration(t *testing.T) {
	d := New(nil, nil)
	if err := d.ReinitFeat(config.Default()); err == nil {
		t.Fatal("expected error calling ReinitFeat before Init/Reinit")
	}
}
