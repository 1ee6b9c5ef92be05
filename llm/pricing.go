package llm

import "strings"

// modelPricing is the USD cost per million tokens.
type modelPricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// pricingTable covers the models the pipeline is commonly run with.
// Unknown models price at zero so cost tracking degrades to token counting.
var pricingTable = map[string]modelPricing{
	"gpt-4o":                 {InputPerMillion: 2.50, OutputPerMillion: 10.00},
	"gpt-4o-mini":            {InputPerMillion: 0.15, OutputPerMillion: 0.60},
	"gpt-4.1":                {InputPerMillion: 2.00, OutputPerMillion: 8.00},
	"gpt-4.1-mini":           {InputPerMillion: 0.40, OutputPerMillion: 1.60},
	"o3-mini":                {InputPerMillion: 1.10, OutputPerMillion: 4.40},
	"deepseek-chat":          {InputPerMillion: 0.27, OutputPerMillion: 1.10},
	"deepseek-reasoner":      {InputPerMillion: 0.55, OutputPerMillion: 2.19},
	"claude-sonnet-4-5":      {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-haiku-4-5":       {InputPerMillion: 1.00, OutputPerMillion: 5.00},
	"text-embedding-3-small": {InputPerMillion: 0.02},
	"text-embedding-3-large": {InputPerMillion: 0.13},
}

// lookupPricing resolves a model name to its pricing, matching on prefix
// so dated snapshots like gpt-4o-2024-11-20 resolve to their family.
func lookupPricing(model string) (modelPricing, bool) {
	if p, ok := pricingTable[model]; ok {
		return p, true
	}
	var best string
	for name := range pricingTable {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return modelPricing{}, false
	}
	return pricingTable[best], true
}

// CostOf prices a call against the pricing table. Unknown models cost zero.
func CostOf(model string, usage Usage) float64 {
	p, ok := lookupPricing(model)
	if !ok {
		return 0
	}
	return float64(usage.InputTokens)/1e6*p.InputPerMillion +
		float64(usage.OutputTokens)/1e6*p.OutputPerMillion
}
