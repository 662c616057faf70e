package cost

import "strings"

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Calculator computes estimated inference cost for run reports.
type Calculator struct {
	rates map[string]ModelRate
}

// NewCalculator creates a Calculator with the given per-model rates.
func NewCalculator(rates map[string]ModelRate) *Calculator {
	return &Calculator{rates: rates}
}

// Tokens computes the cost of one call. Dated model snapshots fall back to
// their base name ("claude-sonnet-4-5-20250929" uses the
// "claude-sonnet-4-5" rate); unknown models cost 0.
func (c *Calculator) Tokens(model string, input, output int) float64 {
	rate, ok := c.rates[model]
	if !ok {
		// Longest matching prefix wins so "gpt-5.2-mini-..." never picks
		// up the "gpt-5.2" rate.
		best := ""
		for name, r := range c.rates {
			if strings.HasPrefix(model, name) && len(name) > len(best) {
				rate, ok, best = r, true, name
			}
		}
	}
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// DefaultRates returns the default pricing table.
func DefaultRates() map[string]ModelRate {
	return map[string]ModelRate{
		"claude-haiku-4-5":  {Input: 0.80, Output: 4.00},
		"claude-sonnet-4-5": {Input: 3.00, Output: 15.00},
		"claude-opus-4-6":   {Input: 15.00, Output: 75.00},
		"gpt-5.2":           {Input: 1.25, Output: 10.00},
		"gpt-5.2-mini":      {Input: 0.25, Output: 2.00},
	}
}
