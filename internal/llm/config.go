// Package llm wraps the external document-understanding collaborator behind
// an injected interface, keeping the deterministic core testable offline.
package llm

// ModelTier represents the capability level requested for one call.
type ModelTier string

const (
	// TierFast is the single-pass configuration used by FAST mode.
	TierFast ModelTier = "fast"
	// TierPrimary is the default configuration for MULTI_AGENT stages.
	TierPrimary ModelTier = "primary"
	// TierFallback is the secondary configuration tried once after a
	// malformed or failed primary response.
	TierFallback ModelTier = "fallback"
)

// Provider represents a reasoning provider.
type Provider string

const (
	// ProviderGemini is the Google Gemini provider.
	ProviderGemini Provider = "gemini"
)

// Config holds the model configuration for the process.
type Config struct {
	Provider Provider
	Models   map[ModelTier]string
}

// DefaultConfig returns the default Gemini configuration.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierFast:     "gemini-2.5-flash-lite",
			TierPrimary:  "gemini-2.5-flash",
			TierFallback: "gemini-2.5-pro",
		},
	}
}

// GetModel returns the model name for a tier, falling back to the primary
// configuration when the tier is not set.
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	if model, ok := c.Models[TierPrimary]; ok {
		return model
	}
	return ""
}

// WithModel returns a copy of the config with one tier overridden.
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	out := &Config{Provider: c.Provider, Models: make(map[ModelTier]string, len(c.Models))}
	for k, v := range c.Models {
		out.Models[k] = v
	}
	out.Models[tier] = model
	return out
}
