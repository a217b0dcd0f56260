package agent

// Rate is the price per million tokens for one model.
type Rate struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// defaultRate applies to model identifiers missing from the table, so an
// unknown model degrades the cost estimate rather than failing the call.
var defaultRate = Rate{InputPerMTok: 3.00, OutputPerMTok: 15.00}

// pricing maps model identifiers to their published per-million-token rates.
var pricing = map[string]Rate{
	"claude-sonnet-4-20250514":   {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-3-5-sonnet-20241022": {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-3-5-haiku-20241022":  {InputPerMTok: 0.80, OutputPerMTok: 4.00},
	"gpt-4o":                     {InputPerMTok: 2.50, OutputPerMTok: 10.00},
	"gpt-4o-mini":                {InputPerMTok: 0.15, OutputPerMTok: 0.60},
}

// RateFor returns the rate for a model, falling back to the default.
func RateFor(model string) Rate {
	if rate, ok := pricing[model]; ok {
		return rate
	}
	return defaultRate
}

// CalculateCost derives the USD cost of a call from its token totals.
func CalculateCost(model string, inputTokens, outputTokens int) float64 {
	rate := RateFor(model)
	return float64(inputTokens)/1_000_000*rate.InputPerMTok +
		float64(outputTokens)/1_000_000*rate.OutputPerMTok
}
