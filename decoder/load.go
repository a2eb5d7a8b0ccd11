package decoder

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ReadAlongs/soundswallower-go/pkg/acoustic"
	"github.com/ReadAlongs/soundswallower-go/pkg/config"
	"github.com/ReadAlongs/soundswallower-go/pkg/feature"
	"github.com/ReadAlongs/soundswallower-go/pkg/feature/dynamic"
	"github.com/ReadAlongs/soundswallower-go/pkg/logmath"
	"github.com/ReadAlongs/soundswallower-go/pkg/model"
	"github.com/ReadAlongs/soundswallower-go/pkg/search"
)

// resolvePath honors an explicit per-file override, falling back to
// defaultName under the hmm directory (§6 "individual overrides mdef,
// mean, var, tmat, mixw, sendump, featparams, mllr, senmgau, fdict").
func resolvePath(hmmDir, override, defaultName string) string {
	if override != "" {
		return override
	}
	if hmmDir == "" {
		return ""
	}
	return filepath.Join(hmmDir, defaultName)
}

// featureStages bundles the two feature-pipeline objects that reinit_feat
// rebuilds without touching the acoustic model (§6 "reinit_feat... rebuild
// only feature stages").
type featureStages struct {
	extractor *feature.Extractor
	composer  *dynamic.Composer
}

// buildFeatureStages validates and constructs the feature extractor and
// dynamic-feature composer from cfg. It has no dependency on loaded model
// tables, so [loadAll] runs it concurrently with model-table loading.
func buildFeatureStages(cfg config.Config) (*featureStages, error) {
	fcfg := feature.DefaultConfig()
	fcfg.SampRate = cfg.SampRate
	fcfg.FrameRate = cfg.FrameRate
	fcfg.WindowLen = cfg.WLen
	fcfg.NFFT = cfg.NFFT
	fcfg.Alpha = cfg.Alpha
	fcfg.NumCep = cfg.NCep
	fcfg.NumFilt = cfg.NFilt
	fcfg.LowerF = cfg.LowerF
	fcfg.UpperF = cfg.UpperF
	fcfg.RemoveDC = cfg.RemoveDC
	switch cfg.Transform {
	case "", "legacy":
		fcfg.Transform = feature.TransformLegacy
	case "dct":
		fcfg.Transform = feature.TransformDCT
	case "htk":
		fcfg.Transform = feature.TransformHTK
	default:
		return nil, fmt.Errorf("%w: unrecognized transform %q", ErrConfiguration, cfg.Transform)
	}

	extractor, err := feature.New(fcfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	dcfg := dynamic.Config{CepLen: cfg.CepLen, GrowBuffer: true}
	switch cfg.CMN {
	case "", "live":
		dcfg.CMN = dynamic.CMNLive
	case "batch":
		dcfg.CMN = dynamic.CMNBatch
	case "none":
		dcfg.CMN = dynamic.CMNNone
	default:
		return nil, fmt.Errorf("%w: unrecognized cmn mode %q", ErrConfiguration, cfg.CMN)
	}
	if cfg.CMNInit != "" {
		inits, err := parseFloatList(cfg.CMNInit)
		if err != nil {
			return nil, fmt.Errorf("%w: cmninit: %v", ErrConfiguration, err)
		}
		dcfg.CMNInit = inits
	}

	composer, err := dynamic.New(dcfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return &featureStages{extractor: extractor, composer: composer}, nil
}

func parseFloatList(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// loadAll loads the acoustic/lexical model tables and rebuilds the feature
// stages concurrently, joining both before returning (SPEC_FULL §2:
// "bounding the background model-load goroutine... so model-table loading
// and feature-stage rebuild proceed concurrently, joined before init
// returns").
func loadAll(cfg config.Config, lm *logmath.Table) (*model.Tables, *featureStages, error) {
	var tables *model.Tables
	var stages *featureStages

	g := new(errgroup.Group)
	g.Go(func() error {
		t, err := loadModelTables(cfg, lm)
		if err != nil {
			return err
		}
		tables = t
		return nil
	})
	g.Go(func() error {
		s, err := buildFeatureStages(cfg)
		if err != nil {
			return err
		}
		stages = s
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return tables, stages, nil
}

// loadModelTables reads every on-disk model file named by cfg (§6 "on-disk
// model formats") into an immutable [model.Tables] handle.
func loadModelTables(cfg config.Config, lm *logmath.Table) (*model.Tables, error) {
	if cfg.HMM == "" && cfg.Mean == "" {
		return nil, fmt.Errorf("%w: hmm (or explicit mean/var/tmat/mdef overrides) is required", ErrConfiguration)
	}
	if cfg.Dict == "" {
		return nil, fmt.Errorf("%w: dict is required", ErrConfiguration)
	}
	if cfg.Sendump != "" {
		// The sendump compressed mixture-weight format (titled header block
		// plus an optional cluster codebook and packed per-stream indices,
		// §6) has no reader in this module; only the flat mixture_weights
		// format does (model.ReadMixtureWeights). Documented in DESIGN.md.
		return nil, fmt.Errorf("%w: sendump compressed mixture weights are not supported, use mixw", ErrModel)
	}

	meanPath := resolvePath(cfg.HMM, cfg.Mean, "means")
	varPath := resolvePath(cfg.HMM, cfg.Var, "variances")
	tmatPath := resolvePath(cfg.HMM, cfg.TMat, "transition_matrices")
	mixwPath := resolvePath(cfg.HMM, cfg.Mixw, "mixture_weights")
	mdefPath := resolvePath(cfg.HMM, cfg.MDef, "mdef")
	fdictPath := resolvePath(cfg.HMM, cfg.FDict, "noisedict")

	meanSrc, err := model.SlurpFile(meanPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModel, err)
	}
	varSrc, err := model.SlurpFile(varPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModel, err)
	}
	meanR, err := model.OpenS3(meanSrc)
	if err != nil {
		return nil, fmt.Errorf("%w: means header: %v", ErrModel, err)
	}
	varR, err := model.OpenS3(varSrc)
	if err != nil {
		return nil, fmt.Errorf("%w: variances header: %v", ErrModel, err)
	}
	gauss, err := model.ReadGaussianParams(meanR, varR)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModel, err)
	}

	tmatSrc, err := model.SlurpFile(tmatPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModel, err)
	}
	tmatR, err := model.OpenS3(tmatSrc)
	if err != nil {
		return nil, fmt.Errorf("%w: transition-matrix header: %v", ErrModel, err)
	}
	tmats, err := model.ReadTransitionMatrix(tmatR)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModel, err)
	}

	mdefFile, err := os.Open(mdefPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModel, err)
	}
	pd, err := model.ReadPhoneticModelDefText(bufio.NewReader(mdefFile))
	mdefFile.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModel, err)
	}

	senCodebook := deriveSenoneCodebooks(pd, gauss.NumCodebooks)
	mixwSrc, err := model.SlurpFile(mixwPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModel, err)
	}
	mixwR, err := model.OpenS3(mixwSrc)
	if err != nil {
		return nil, fmt.Errorf("%w: mixture-weight header: %v", ErrModel, err)
	}
	mw, err := model.ReadMixtureWeights(mixwR, lm, float32(cfg.MixwFloor), senCodebook)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModel, err)
	}

	dictFile, err := os.Open(cfg.Dict)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModel, err)
	}
	dict, err := model.ParseDictionary(dictFile)
	dictFile.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModel, err)
	}

	filler := model.NewDictionary()
	if fdictPath != "" {
		if f, ferr := os.Open(fdictPath); ferr == nil {
			filler, err = model.ParseFillerDictionary(f)
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrModel, err)
			}
		}
	}
	ensureDefaultFillers(filler)

	return model.NewTables(gauss, mw, tmats, pd, dict, filler), nil
}

// ensureDefaultFillers guarantees the three words the search's silence/
// filler self-loops and end-of-grammar epsilon closure assume are always
// resolvable, even when the caller's fdict omits them.
func ensureDefaultFillers(filler *model.Dictionary) {
	defaults := []struct {
		word   string
		phones []string
	}{
		{"<sil>", []string{"SIL"}},
		{"<s>", []string{"SIL"}},
		{"</s>", []string{"SIL"}},
	}
	for _, d := range defaults {
		if len(filler.Pronunciations(d.word)) == 0 {
			_ = filler.AddFillerWord(d.word, d.phones)
		}
	}
}

// deriveSenoneCodebooks builds the per-senone codebook assignment
// [model.ReadMixtureWeights] needs. The semi-continuous variant shares one
// codebook across every senone; the PTM variant ties senones to the
// codebook of the base phone whose CI or triphone entry in pd references
// their senone-sequence.
func deriveSenoneCodebooks(pd *model.PhoneticModelDef, numCodebooks int) []model.CodebookID {
	numSenones := 0
	for _, seq := range pd.SenSeq {
		for _, s := range seq {
			if int(s)+1 > numSenones {
				numSenones = int(s) + 1
			}
		}
	}
	out := make([]model.CodebookID, numSenones)
	if numCodebooks <= 1 {
		return out // every entry defaults to codebook 0
	}
	assign := func(seq model.SenSeqID, base int) {
		if int(seq) >= len(pd.SenSeq) {
			return
		}
		for _, s := range pd.SenSeq[seq] {
			if int(s) < len(out) {
				out[s] = model.CodebookID(base)
			}
		}
	}
	for base, seq := range pd.CISenSeq {
		assign(seq, base)
	}
	for key, e := range pd.Triphones {
		assign(e.SenSeq, pd.BaseIndex(key.Base))
	}
	return out
}

// buildBeams converts the probability-domain beam widths of §6 into the
// score-domain widths [search.Search] operates on.
func buildBeams(cfg config.Config, lm *logmath.Table) search.Beams {
	return search.Beams{
		HMM:             -lm.Log(cfg.Beam),
		WordExit:        -lm.Log(cfg.WBeam),
		PhoneTransition: -lm.Log(cfg.PBeam),
		MaxHMMPF:        cfg.MaxHMMPF,
		WordInsertion:   lm.Log(cfg.WIP),
	}
}

// buildScorer selects the PTM or semi-continuous scorer variant based on
// the loaded Gaussian codebook count (§4.3, §9 "Virtual-table polymorphism
// for Gaussian scorers").
func buildScorer(tables *model.Tables, cfg config.Config) (acoustic.Scorer, error) {
	acfg := acoustic.Config{TopN: cfg.TopN, Downsample: cfg.DS, AcousticWeightInv: cfg.AW}
	if tables.Gaussians.NumCodebooks <= 1 {
		return acoustic.NewSemiContinuousScorer(tables, acfg)
	}
	return acoustic.NewPTMScorer(tables, acfg)
}
