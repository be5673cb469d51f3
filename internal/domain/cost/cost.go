// Package cost defines the model rate table and analytics rollup types.
package cost

import "strings"

// perTokenUSD maps model families to their per-token USD rate.
var perTokenUSD = map[string]float64{
	"claude-opus":   0.000045,
	"claude-sonnet": 0.000009,
	"claude-haiku":  0.0000008,
	"gpt-4o":        0.00001,
	"gpt-4o-mini":   0.0000006,
}

// defaultRate is a conservative blended rate used when the model is
// unrecognized, so unknown models overestimate rather than hide cost.
const defaultRate = 0.00001

// RateFor returns the per-token USD rate for a model. Lookup is by exact
// name first, then by the longest matching family prefix.
func RateFor(model string) float64 {
	if r, ok := perTokenUSD[model]; ok {
		return r
	}
	rate, matched := defaultRate, 0
	for family, r := range perTokenUSD {
		if strings.HasPrefix(model, family) && len(family) > matched {
			rate, matched = r, len(family)
		}
	}
	return rate
}

// TaskCost returns the USD cost of a task that used the given token count.
func TaskCost(model string, tokens int64) float64 {
	return float64(tokens) * RateFor(model)
}

// DailyStat is one calendar day's bucket in the analytics rollup.
type DailyStat struct {
	Date        string  `json:"date"` // YYYY-MM-DD
	Requests    int     `json:"requests"`
	Tokens      int64   `json:"tokens"`
	CostUSD     float64 `json:"cost_usd"`
	Errors      int     `json:"errors"`
	AvgLatency  float64 `json:"avg_latency"` // seconds
	Placeholder bool    `json:"placeholder,omitempty"`
}
