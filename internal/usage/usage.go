// Package usage turns raw token counts into usage records with cost estimates.
package usage

import (
	"fmt"
	"sort"
	"strings"
)

// Counts are the token counts reported by the upstream for one sub-turn.
// InputTokens includes CachedTokens; OutputTokens includes ReasoningTokens.
type Counts struct {
	InputTokens     int
	OutputTokens    int
	CachedTokens    int
	ReasoningTokens int
	TotalTokens     int
}

// Record is a normalized usage record. Records are derived through Calculate
// and combined through Add, never built by hand.
type Record struct {
	PromptTokens     int      `json:"prompt_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
	TotalTokens      int      `json:"total_tokens"`
	CachedTokens     int      `json:"cached_tokens"`
	ThinkingTokens   int      `json:"thinking_tokens"`
	CostUSD          *float64 `json:"cost_usd,omitempty"`
}

// Pricing is the price of a model in USD per million tokens.
type Pricing struct {
	Input  float64
	Output float64
	// CacheDiscount is the fraction of the input price charged for cached
	// input tokens.
	CacheDiscount float64
}

const defaultCacheDiscount = 0.1

// prices is keyed by model-name prefix; the longest matching prefix wins.
var prices = map[string]Pricing{
	"gpt-5":        {Input: 1.25, Output: 10.00, CacheDiscount: 0.1},
	"gpt-5-mini":   {Input: 0.25, Output: 2.00, CacheDiscount: 0.1},
	"gpt-5-nano":   {Input: 0.05, Output: 0.40, CacheDiscount: 0.1},
	"gpt-5-pro":    {Input: 15.00, Output: 120.00},
	"gpt-4.1":      {Input: 2.00, Output: 8.00, CacheDiscount: 0.25},
	"gpt-4.1-mini": {Input: 0.40, Output: 1.60, CacheDiscount: 0.25},
	"gpt-4.1-nano": {Input: 0.10, Output: 0.40, CacheDiscount: 0.25},
	"gpt-4o":       {Input: 2.50, Output: 10.00, CacheDiscount: 0.5},
	"gpt-4o-mini":  {Input: 0.15, Output: 0.60, CacheDiscount: 0.5},
	"o1":           {Input: 15.00, Output: 60.00, CacheDiscount: 0.5},
	"o1-pro":       {Input: 150.00, Output: 600.00},
	"o3":           {Input: 2.00, Output: 8.00, CacheDiscount: 0.25},
	"o3-mini":      {Input: 1.10, Output: 4.40, CacheDiscount: 0.5},
	"o3-pro":       {Input: 20.00, Output: 80.00},
	"o4-mini":      {Input: 1.10, Output: 4.40, CacheDiscount: 0.25},
}

// sortedPrefixes lists price-table keys longest first.
var sortedPrefixes = func() []string {
	keys := make([]string, 0, len(prices))
	for k := range prices {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()

// Lookup returns the pricing for a model by longest prefix match.
func Lookup(model string) (Pricing, bool) {
	m := strings.ToLower(strings.TrimSpace(model))
	if p, ok := prices[m]; ok {
		return p, true
	}
	for _, prefix := range sortedPrefixes {
		if strings.HasPrefix(m, prefix+"-") {
			return prices[prefix], true
		}
	}
	return Pricing{}, false
}

// Calculate maps raw counts for a model to a Record. It returns nil when no
// counts were reported. Unknown models get token counts but no cost.
func Calculate(model string, c *Counts) *Record {
	if c == nil {
		return nil
	}
	total := c.TotalTokens
	if total == 0 {
		total = c.InputTokens + c.OutputTokens
	}
	rec := &Record{
		PromptTokens:     c.InputTokens,
		CompletionTokens: c.OutputTokens,
		TotalTokens:      total,
		CachedTokens:     c.CachedTokens,
		ThinkingTokens:   c.ReasoningTokens,
	}

	p, ok := Lookup(model)
	if !ok {
		return rec
	}
	discount := p.CacheDiscount
	if discount == 0 {
		discount = defaultCacheDiscount
	}
	cached := min(c.CachedTokens, c.InputTokens)
	uncached := c.InputTokens - cached
	cost := (float64(uncached)*p.Input +
		float64(cached)*p.Input*discount +
		float64(c.OutputTokens)*p.Output) / 1_000_000
	rec.CostUSD = &cost
	return rec
}

// Add returns the sum of r and other. Either may be nil. The cost is summed
// when at least one side has one.
func (r *Record) Add(other *Record) *Record {
	if r == nil && other == nil {
		return nil
	}
	var out Record
	for _, rec := range []*Record{r, other} {
		if rec == nil {
			continue
		}
		out.PromptTokens += rec.PromptTokens
		out.CompletionTokens += rec.CompletionTokens
		out.TotalTokens += rec.TotalTokens
		out.CachedTokens += rec.CachedTokens
		out.ThinkingTokens += rec.ThinkingTokens
		if rec.CostUSD != nil {
			sum := *rec.CostUSD
			if out.CostUSD != nil {
				sum += *out.CostUSD
			}
			out.CostUSD = &sum
		}
	}
	return &out
}

// FormatCost renders the cost, or "n/a" when unknown.
func (r *Record) FormatCost() string {
	if r == nil || r.CostUSD == nil {
		return "n/a"
	}
	return fmt.Sprintf("$%.6f", *r.CostUSD)
}
