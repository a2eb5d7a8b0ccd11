// Package config holds the decoder's configuration record and its
// relaxed-JSON codec (§6 "Configuration"). Parsing tolerates unquoted
// keys, a trailing comma before the closing brace, and a missing enclosing
// brace pair; commas between entries are still required. Serialization
// always emits strict, valid JSON (§6, §8 scenario S6).
package config

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Config is every recognized option from §6, with the defaults named
// there.
type Config struct {
	// Feature
	SampRate  float64 `opt:"samprate"`
	FrameRate float64 `opt:"frate"`
	WLen      float64 `opt:"wlen"`
	NFFT      int     `opt:"nfft"`
	Alpha     float64 `opt:"alpha"`
	NCep      int     `opt:"ncep"`
	NFilt     int     `opt:"nfilt"`
	LowerF    float64 `opt:"lowerf"`
	UpperF    float64 `opt:"upperf"`
	Transform string  `opt:"transform"`
	Dither    bool    `opt:"dither"`
	Seed      int     `opt:"seed"`
	RemoveDC  bool    `opt:"remove_dc"`
	WarpType  string  `opt:"warp_type"`
	WarpParams string `opt:"warp_params"`

	// Dynamic-feature composer
	Feat    string `opt:"feat"`
	CepLen  int    `opt:"ceplen"`
	CMN     string `opt:"cmn"`
	CMNInit string `opt:"cmninit"`
	VarNorm bool   `opt:"varnorm"`
	LDA     string `opt:"lda"`
	LDADim  int    `opt:"ldadim"`
	SVSpec  string `opt:"svspec"`

	// Acoustic model location
	HMM        string `opt:"hmm"`
	MDef       string `opt:"mdef"`
	Mean       string `opt:"mean"`
	Var        string `opt:"var"`
	TMat       string `opt:"tmat"`
	Mixw       string `opt:"mixw"`
	Sendump    string `opt:"sendump"`
	FeatParams string `opt:"featparams"`
	MLLR       string `opt:"mllr"`
	SenMgau    string `opt:"senmgau"`
	FDict      string `opt:"fdict"`
	TMatFloor  float64 `opt:"tmatfloor"`
	VarFloor   float64 `opt:"varfloor"`
	MixwFloor  float64 `opt:"mixwfloor"`

	// Scoring
	DS       int     `opt:"ds"`
	TopN     int     `opt:"topn"`
	TopNBeam float64 `opt:"topn_beam"`
	AW       float64 `opt:"aw"`
	MMap     bool    `opt:"mmap"`
	CIOnly   bool    `opt:"cionly"`
	LogBase  float64 `opt:"logbase"`

	// Search
	Beam       float64 `opt:"beam"`
	WBeam      float64 `opt:"wbeam"`
	PBeam      float64 `opt:"pbeam"`
	MaxHMMPF   int     `opt:"maxhmmpf"`
	BestPath   bool    `opt:"bestpath"`
	CompAllSen bool    `opt:"compallsen"`
	Backtrace  bool    `opt:"backtrace"`

	// Grammar / lexicon
	Dict          string  `opt:"dict"`
	DictCase      bool    `opt:"dictcase"`
	FSG           string  `opt:"fsg"`
	JSGF          string  `opt:"jsgf"`
	TopRule       string  `opt:"toprule"`
	FSGUseAltPron bool    `opt:"fsgusealtpron"`
	FSGUseFiller  bool    `opt:"fsgusefiller"`
	LW            float64 `opt:"lw"`
	AScale        float64 `opt:"ascale"`
	WIP           float64 `opt:"wip"`
	PIP           float64 `opt:"pip"`
	SilProb       float64 `opt:"silprob"`
	FillProb      float64 `opt:"fillprob"`
}

// Default returns the configuration with every default named in §6.
func Default() Config {
	return Config{
		SampRate: 16000, FrameRate: 100, WLen: 0.025625, Alpha: 0.97,
		NCep: 13, NFilt: 40, LowerF: 133.33, UpperF: 6855.5, Transform: "legacy",

		Feat: "1s_c_d_dd", CepLen: 13, CMN: "live",

		TMatFloor: 1e-4, VarFloor: 1e-4, MixwFloor: 1e-7,

		DS: 1, TopN: 4, AW: 1, LogBase: 1.0001,

		Beam: 1e-48, WBeam: 7e-29, PBeam: 1e-48, MaxHMMPF: 30000, BestPath: true,

		FSGUseAltPron: true, FSGUseFiller: true,
		LW: 6.5, AScale: 20.0, WIP: 0.65, PIP: 1.0, SilProb: 0.005, FillProb: 1e-8,
	}
}

// ConfigError reports an unknown option or an out-of-range value (§7
// "Configuration error").
type ConfigError struct{ Msg string }

func (e *ConfigError) Error() string { return "config: " + e.Msg }

// ParseRelaxedJSON parses text as a slightly-relaxed JSON object (§6:
// unquoted keys, optional trailing commas, no required enclosing braces)
// into a fresh [Config] starting from [Default].
func ParseRelaxedJSON(text string) (*Config, error) {
	normalized, err := normalizeRelaxedJSON(text)
	if err != nil {
		return nil, err
	}
	if !gjson.Valid(normalized) {
		return nil, &ConfigError{Msg: "malformed JSON after relaxed-syntax normalization"}
	}
	cfg := Default()
	result := gjson.Parse(normalized)
	var parseErr error
	result.ForEach(func(key, value gjson.Result) bool {
		if err := setField(&cfg, key.String(), value); err != nil {
			parseErr = err
			return false
		}
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return &cfg, nil
}

// normalizeRelaxedJSON wraps the text in braces if missing and quotes bare
// (unquoted) object keys, a tolerant pass sufficient for the subset of
// relaxations §6 names.
func normalizeRelaxedJSON(text string) (string, error) {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "{") {
		t = "{" + t
	}
	if !strings.HasSuffix(t, "}") {
		t = t + "}"
	}
	var out strings.Builder
	inString := false
	for i := 0; i < len(t); i++ {
		c := t[i]
		if c == '"' && (i == 0 || t[i-1] != '\\') {
			inString = !inString
			out.WriteByte(c)
			continue
		}
		if !inString && (isIdentStart(c)) && (i == 0 || isKeyPosition(t, i)) {
			j := i
			for j < len(t) && isIdentChar(t[j]) {
				j++
			}
			out.WriteByte('"')
			out.WriteString(t[i:j])
			out.WriteByte('"')
			i = j - 1
			continue
		}
		out.WriteByte(c)
	}
	// Strip trailing commas before a closing brace, another common
	// relaxation (§6 "optional trailing commas").
	s := out.String()
	s = strings.ReplaceAll(s, ",}", "}")
	s = strings.ReplaceAll(s, ", }", "}")
	return s, nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// isKeyPosition is a heuristic: the character before an unquoted
// identifier, skipping whitespace, must be '{' or ',' for that identifier
// to be a JSON object key rather than a bare string value.
func isKeyPosition(t string, i int) bool {
	j := i - 1
	for j >= 0 && (t[j] == ' ' || t[j] == '\t' || t[j] == '\n' || t[j] == '\r') {
		j--
	}
	if j < 0 {
		return true
	}
	return t[j] == '{' || t[j] == ','
}

// setField applies one parsed JSON field to cfg, matching the field whose
// `opt` struct tag equals key. Returns a [ConfigError] for an unrecognized
// option.
func setField(cfg *Config, key string, value gjson.Result) error {
	field, ok := optFields[key]
	if !ok {
		return &ConfigError{Msg: fmt.Sprintf("unknown option %q", key)}
	}
	switch field.kind {
	case fieldFloat:
		*field.float(cfg) = value.Float()
	case fieldInt:
		*field.int(cfg) = int(value.Int())
	case fieldBool:
		*field.bool(cfg) = value.Bool()
	case fieldString:
		*field.str(cfg) = value.String()
	}
	return nil
}

// Serialize always emits strict, valid JSON (§6 "the serializer always
// emits valid JSON"), built incrementally via sjson.Set over the schema so
// every recognized option round-trips (§8 scenario S6).
func Serialize(cfg *Config) (string, error) {
	json := "{}"
	var err error
	for _, name := range SchemaNames() {
		field := optFields[name]
		switch field.kind {
		case fieldFloat:
			json, err = sjson.Set(json, name, *field.float(cfg))
		case fieldInt:
			json, err = sjson.Set(json, name, *field.int(cfg))
		case fieldBool:
			json, err = sjson.Set(json, name, *field.bool(cfg))
		case fieldString:
			json, err = sjson.Set(json, name, *field.str(cfg))
		}
		if err != nil {
			return "", fmt.Errorf("config: serialize %q: %w", name, err)
		}
	}
	return json, nil
}
