package cost

// Rates holds per-provider pricing configuration.
type Rates struct {
	// Generation maps provider name to per-model token pricing.
	Generation map[string]map[string]ModelRate `yaml:"generation" mapstructure:"generation"`
	Serper     SerperRate                      `yaml:"serper" mapstructure:"serper"`
	Geocode    GeocodeRate                     `yaml:"geocode" mapstructure:"geocode"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// SerperRate holds Serper image search pricing.
type SerperRate struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// GeocodeRate holds geocoding pricing.
type GeocodeRate struct {
	PerRequest float64 `yaml:"per_request" mapstructure:"per_request"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Generation computes the cost of a generation call. Unknown providers or
// models cost 0.
func (c *Calculator) Generation(provider, model string, input, output int64) float64 {
	rate, ok := c.rates.Generation[provider][model]
	if !ok {
		return 0
	}
	inCost := (float64(input) / 1e6) * rate.Input
	outCost := (float64(output) / 1e6) * rate.Output
	return inCost + outCost
}

// ImageSearch returns the cost of n image lookups.
func (c *Calculator) ImageSearch(n int) float64 {
	return float64(n) * c.rates.Serper.PerQuery
}

// Geocode returns the cost of n geocoding requests.
func (c *Calculator) Geocode(n int) float64 {
	return float64(n) * c.rates.Geocode.PerRequest
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Generation: map[string]map[string]ModelRate{
			"groq": {
				"llama-3.3-70b-versatile": {Input: 0.59, Output: 0.79},
				"llama-3.1-8b-instant":    {Input: 0.05, Output: 0.08},
			},
			"openai": {
				"gpt-4o-mini": {Input: 0.15, Output: 0.60},
				"gpt-4.1":     {Input: 2.00, Output: 8.00},
			},
			"anthropic": {
				"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
				"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
			},
			"gemini": {
				"gemini-2.0-flash": {Input: 0.10, Output: 0.40},
				"gemini-2.5-flash": {Input: 0.30, Output: 2.50},
			},
		},
		Serper:  SerperRate{PerQuery: 0.001},
		Geocode: GeocodeRate{PerRequest: 0.005},
	}
}
