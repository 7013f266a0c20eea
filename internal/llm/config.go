package llm

// ModelTier represents the complexity/capability level of a model.
type ModelTier string

const (
	// TierLite is for high-volume simple tasks: skim labeling.
	TierLite ModelTier = "lite"
	// TierStandard is for structured generation: sketches.
	TierStandard ModelTier = "standard"
	// TierAdvanced is for careful rewriting: refinement.
	TierAdvanced ModelTier = "advanced"
)

// Provider represents an LLM provider.
type Provider string

const (
	// ProviderGemini is the Google Gemini provider.
	ProviderGemini Provider = "gemini"
)

// Config holds the model configuration for the application.
type Config struct {
	Provider Provider
	Models   map[ModelTier]string
}

// DefaultConfig returns the default configuration (currently Gemini).
func DefaultConfig() *Config {
	return DefaultGeminiConfig()
}

// DefaultGeminiConfig returns the default Gemini configuration.
func DefaultGeminiConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-pro",
		},
	}
}

// tierPrices holds USD list prices per million tokens, keyed by tier.
var tierPrices = map[ModelTier]struct{ In, Out float64 }{
	TierLite:     {In: 0.10, Out: 0.40},
	TierStandard: {In: 0.30, Out: 2.50},
	TierAdvanced: {In: 1.25, Out: 10.00},
}

// EstimateCost converts token counts into USD for a tier. Unknown tiers
// price as standard.
func EstimateCost(tier ModelTier, tokensIn, tokensOut int) float64 {
	p, ok := tierPrices[tier]
	if !ok {
		p = tierPrices[TierStandard]
	}
	return (float64(tokensIn)*p.In + float64(tokensOut)*p.Out) / 1e6
}

// GetModel returns the model name for a given tier, falling back to
// standard and then lite when the tier is unconfigured.
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	if model, ok := c.Models[TierStandard]; ok {
		return model
	}
	if model, ok := c.Models[TierLite]; ok {
		return model
	}
	return ""
}
