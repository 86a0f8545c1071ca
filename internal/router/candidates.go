package router

// Candidate names a provider/model pair the router may dispatch to.
type Candidate struct {
	Provider string
	Model    string
}

func (c Candidate) Key() string {
	return c.Provider + ":" + c.Model
}

// Candidate tiers, ordered by preference within each tier.
var (
	cheapCandidates = []Candidate{
		{Provider: "googleai", Model: "gemini-2.0-flash-lite"},
		{Provider: "openai", Model: "gpt-4o-mini"},
	}

	fastCodeCandidates = []Candidate{
		{Provider: "googleai", Model: "gemini-2.0-flash"},
		{Provider: "openai", Model: "gpt-4o-mini"},
	}

	qualityCandidates = []Candidate{
		{Provider: "googleai", Model: "gemini-2.5-pro"},
		{Provider: "openai", Model: "gpt-4o"},
	}

	highContextCandidates = []Candidate{
		{Provider: "googleai", Model: "gemini-2.5-pro"},
		{Provider: "googleai", Model: "gemini-2.0-flash"},
	}
)

// costPerToken is an approximate blended USD cost per token, used for
// cost accounting and the cost prioritization strategy. Values are
// static; live pricing is out of scope.
var costPerToken = map[string]float64{
	"googleai:gemini-2.0-flash-lite": 0.000000075,
	"googleai:gemini-2.0-flash":      0.0000001,
	"googleai:gemini-2.5-pro":        0.00000125,
	"openai:gpt-4o-mini":             0.00000015,
	"openai:gpt-4o":                  0.0000025,
}

// Request carries the routing signals for a single invocation.
type Request struct {
	Intent  string
	Length  int
	Persona string
}

// Intents recognized by the selection rules.
const (
	IntentCode     = "code"
	IntentAnalysis = "analysis"
	IntentQA       = "qa"
	IntentLong     = "long"
)

const (
	shortCodeLimit   = 2000
	longPromptLimit  = 4000
	shortPromptLimit = 1000
)

// analysisPersonas get the quality tier for analysis work.
var analysisPersonas = map[string]bool{
	"philosopher":      true,
	"comprehensive-ai": true,
}

// selectTier applies the routing rules in order and returns the first
// matching candidate tier.
func selectTier(req Request) []Candidate {
	switch {
	case req.Intent == IntentCode && req.Length < shortCodeLimit:
		return fastCodeCandidates
	case req.Intent == IntentLong || req.Length > longPromptLimit:
		return highContextCandidates
	case req.Intent == IntentAnalysis && analysisPersonas[req.Persona]:
		return qualityCandidates
	case req.Persona == "comprehensive-ai" && req.Intent == IntentQA:
		return qualityCandidates
	case req.Intent == IntentQA && req.Length < shortPromptLimit:
		return cheapCandidates
	default:
		// Everything else gets the single default cheap pair.
		return cheapCandidates[:1]
	}
}
