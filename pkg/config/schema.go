package config

// fieldKind is the scalar type of one schema entry's value.
type fieldKind int

const (
	fieldFloat fieldKind = iota
	fieldInt
	fieldBool
	fieldString
)

// fieldAccessor binds a schema option name to the Config field it reads and
// writes, without reflection. Only one of the four accessor funcs is
// non-nil, selected by kind.
type fieldAccessor struct {
	kind  fieldKind
	float func(*Config) *float64
	int   func(*Config) *int
	bool  func(*Config) *bool
	str   func(*Config) *string
}

// optFields is the schema table (SPEC_FULL §3 item 3, recovered from
// cmdln_macro.h): every recognized option name, its kind, and the Config
// field it binds to. It is the single source of truth for parsing,
// serialization, and introspection (IsKnownOption); SchemaNames and
// Serialize enumerate it in schemaOrder's order.
var optFields = map[string]fieldAccessor{
	"samprate":    {kind: fieldFloat, float: func(c *Config) *float64 { return &c.SampRate }},
	"frate":       {kind: fieldFloat, float: func(c *Config) *float64 { return &c.FrameRate }},
	"wlen":        {kind: fieldFloat, float: func(c *Config) *float64 { return &c.WLen }},
	"nfft":        {kind: fieldInt, int: func(c *Config) *int { return &c.NFFT }},
	"alpha":       {kind: fieldFloat, float: func(c *Config) *float64 { return &c.Alpha }},
	"ncep":        {kind: fieldInt, int: func(c *Config) *int { return &c.NCep }},
	"nfilt":       {kind: fieldInt, int: func(c *Config) *int { return &c.NFilt }},
	"lowerf":      {kind: fieldFloat, float: func(c *Config) *float64 { return &c.LowerF }},
	"upperf":      {kind: fieldFloat, float: func(c *Config) *float64 { return &c.UpperF }},
	"transform":   {kind: fieldString, str: func(c *Config) *string { return &c.Transform }},
	"dither":      {kind: fieldBool, bool: func(c *Config) *bool { return &c.Dither }},
	"seed":        {kind: fieldInt, int: func(c *Config) *int { return &c.Seed }},
	"remove_dc":   {kind: fieldBool, bool: func(c *Config) *bool { return &c.RemoveDC }},
	"warp_type":   {kind: fieldString, str: func(c *Config) *string { return &c.WarpType }},
	"warp_params": {kind: fieldString, str: func(c *Config) *string { return &c.WarpParams }},

	"feat":    {kind: fieldString, str: func(c *Config) *string { return &c.Feat }},
	"ceplen":  {kind: fieldInt, int: func(c *Config) *int { return &c.CepLen }},
	"cmn":     {kind: fieldString, str: func(c *Config) *string { return &c.CMN }},
	"cmninit": {kind: fieldString, str: func(c *Config) *string { return &c.CMNInit }},
	"varnorm": {kind: fieldBool, bool: func(c *Config) *bool { return &c.VarNorm }},
	"lda":     {kind: fieldString, str: func(c *Config) *string { return &c.LDA }},
	"ldadim":  {kind: fieldInt, int: func(c *Config) *int { return &c.LDADim }},
	"svspec":  {kind: fieldString, str: func(c *Config) *string { return &c.SVSpec }},

	"hmm":        {kind: fieldString, str: func(c *Config) *string { return &c.HMM }},
	"mdef":       {kind: fieldString, str: func(c *Config) *string { return &c.MDef }},
	"mean":       {kind: fieldString, str: func(c *Config) *string { return &c.Mean }},
	"var":        {kind: fieldString, str: func(c *Config) *string { return &c.Var }},
	"tmat":       {kind: fieldString, str: func(c *Config) *string { return &c.TMat }},
	"mixw":       {kind: fieldString, str: func(c *Config) *string { return &c.Mixw }},
	"sendump":    {kind: fieldString, str: func(c *Config) *string { return &c.Sendump }},
	"featparams": {kind: fieldString, str: func(c *Config) *string { return &c.FeatParams }},
	"mllr":       {kind: fieldString, str: func(c *Config) *string { return &c.MLLR }},
	"senmgau":    {kind: fieldString, str: func(c *Config) *string { return &c.SenMgau }},
	"fdict":      {kind: fieldString, str: func(c *Config) *string { return &c.FDict }},
	"tmatfloor":  {kind: fieldFloat, float: func(c *Config) *float64 { return &c.TMatFloor }},
	"varfloor":   {kind: fieldFloat, float: func(c *Config) *float64 { return &c.VarFloor }},
	"mixwfloor":  {kind: fieldFloat, float: func(c *Config) *float64 { return &c.MixwFloor }},

	"ds":        {kind: fieldInt, int: func(c *Config) *int { return &c.DS }},
	"topn":      {kind: fieldInt, int: func(c *Config) *int { return &c.TopN }},
	"topn_beam": {kind: fieldFloat, float: func(c *Config) *float64 { return &c.TopNBeam }},
	"aw":        {kind: fieldFloat, float: func(c *Config) *float64 { return &c.AW }},
	"mmap":      {kind: fieldBool, bool: func(c *Config) *bool { return &c.MMap }},
	"cionly":    {kind: fieldBool, bool: func(c *Config) *bool { return &c.CIOnly }},
	"logbase":   {kind: fieldFloat, float: func(c *Config) *float64 { return &c.LogBase }},

	"beam":       {kind: fieldFloat, float: func(c *Config) *float64 { return &c.Beam }},
	"wbeam":      {kind: fieldFloat, float: func(c *Config) *float64 { return &c.WBeam }},
	"pbeam":      {kind: fieldFloat, float: func(c *Config) *float64 { return &c.PBeam }},
	"maxhmmpf":   {kind: fieldInt, int: func(c *Config) *int { return &c.MaxHMMPF }},
	"bestpath":   {kind: fieldBool, bool: func(c *Config) *bool { return &c.BestPath }},
	"compallsen": {kind: fieldBool, bool: func(c *Config) *bool { return &c.CompAllSen }},
	"backtrace":  {kind: fieldBool, bool: func(c *Config) *bool { return &c.Backtrace }},

	"dict":          {kind: fieldString, str: func(c *Config) *string { return &c.Dict }},
	"dictcase":      {kind: fieldBool, bool: func(c *Config) *bool { return &c.DictCase }},
	"fsg":           {kind: fieldString, str: func(c *Config) *string { return &c.FSG }},
	"jsgf":          {kind: fieldString, str: func(c *Config) *string { return &c.JSGF }},
	"toprule":       {kind: fieldString, str: func(c *Config) *string { return &c.TopRule }},
	"fsgusealtpron": {kind: fieldBool, bool: func(c *Config) *bool { return &c.FSGUseAltPron }},
	"fsgusefiller":  {kind: fieldBool, bool: func(c *Config) *bool { return &c.FSGUseFiller }},
	"lw":            {kind: fieldFloat, float: func(c *Config) *float64 { return &c.LW }},
	"ascale":        {kind: fieldFloat, float: func(c *Config) *float64 { return &c.AScale }},
	"wip":           {kind: fieldFloat, float: func(c *Config) *float64 { return &c.WIP }},
	"pip":           {kind: fieldFloat, float: func(c *Config) *float64 { return &c.PIP }},
	"silprob":       {kind: fieldFloat, float: func(c *Config) *float64 { return &c.SilProb }},
	"fillprob":      {kind: fieldFloat, float: func(c *Config) *float64 { return &c.FillProb }},
}

// schemaOrder fixes an enumeration order for SchemaNames and Serialize,
// grouped the way §6 groups its option list.
var schemaOrder = []string{
	"samprate", "frate", "wlen", "nfft", "alpha", "ncep", "nfilt", "lowerf", "upperf",
	"transform", "dither", "seed", "remove_dc", "warp_type", "warp_params",

	"feat", "ceplen", "cmn", "cmninit", "varnorm", "lda", "ldadim", "svspec",

	"hmm", "mdef", "mean", "var", "tmat", "mixw", "sendump", "featparams",
	"mllr", "senmgau", "fdict", "tmatfloor", "varfloor", "mixwfloor",

	"ds", "topn", "topn_beam", "aw", "mmap", "cionly", "logbase",

	"beam", "wbeam", "pbeam", "maxhmmpf", "bestpath", "compallsen", "backtrace",

	"dict", "dictcase", "fsg", "jsgf", "toprule", "fsgusealtpron", "fsgusefiller",
	"lw", "ascale", "wip", "pip", "silprob", "fillprob",
}

// SchemaNames returns every recognized option name, in a stable order.
func SchemaNames() []string {
	out := make([]string, len(schemaOrder))
	copy(out, schemaOrder)
	return out
}

// IsKnownOption reports whether name is a recognized configuration option.
func IsKnownOption(name string) bool {
	_, ok := optFields[name]
	return ok
}
