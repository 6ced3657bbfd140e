package unifiedllm

import "slices"

// ModelInfo describes a known model.
type ModelInfo struct {
	ID            string   `json:"id"`
	Provider      string   `json:"provider"`
	DisplayName   string   `json:"display_name"`
	ContextWindow int      `json:"context_window"`
	MaxOutput     int      `json:"max_output,omitempty"`
	SupportsTools bool     `json:"supports_tools"`
	SupportsJSON  bool     `json:"supports_json"`
	TokenEncoding string   `json:"token_encoding,omitempty"`
	Aliases       []string `json:"aliases,omitempty"`
}

// Models is the built-in catalog. Within a provider, entries are ordered from
// the preferred default down.
var Models = []ModelInfo{
	// OpenAI
	{
		ID: "gpt-4o-mini", Provider: "openai", DisplayName: "GPT-4o mini",
		ContextWindow: 128000, MaxOutput: 16384,
		SupportsTools: true, SupportsJSON: true, TokenEncoding: "o200k_base",
		Aliases: []string{"4o-mini"},
	},
	{
		ID: "gpt-4o", Provider: "openai", DisplayName: "GPT-4o",
		ContextWindow: 128000, MaxOutput: 16384,
		SupportsTools: true, SupportsJSON: true, TokenEncoding: "o200k_base",
		Aliases: []string{"4o"},
	},
	{
		ID: "gpt-4.1", Provider: "openai", DisplayName: "GPT-4.1",
		ContextWindow: 1047576, MaxOutput: 32768,
		SupportsTools: true, SupportsJSON: true, TokenEncoding: "o200k_base",
	},
	{
		ID: "gpt-3.5-turbo", Provider: "openai", DisplayName: "GPT-3.5 Turbo",
		ContextWindow: 16385, MaxOutput: 4096,
		SupportsTools: true, SupportsJSON: true, TokenEncoding: "cl100k_base",
	},

	// Anthropic
	{
		ID: "claude-sonnet-4-5", Provider: "anthropic", DisplayName: "Claude Sonnet 4.5",
		ContextWindow: 200000, MaxOutput: 16384,
		SupportsTools: true,
		Aliases:       []string{"sonnet", "claude-sonnet"},
	},
	{
		ID: "claude-opus-4-6", Provider: "anthropic", DisplayName: "Claude Opus 4.6",
		ContextWindow: 200000, MaxOutput: 32768,
		SupportsTools: true,
		Aliases:       []string{"opus", "claude-opus"},
	},
}

// GetModelInfo returns the catalog entry for a model id or alias, or nil.
func GetModelInfo(modelID string) *ModelInfo {
	for i := range Models {
		if Models[i].ID == modelID || slices.Contains(Models[i].Aliases, modelID) {
			return &Models[i]
		}
	}
	return nil
}

// ListModels returns all known models, optionally filtered by provider.
func ListModels(provider string) []ModelInfo {
	if provider == "" {
		return slices.Clone(Models)
	}
	var result []ModelInfo
	for _, m := range Models {
		if m.Provider == provider {
			result = append(result, m)
		}
	}
	return result
}

// GetLatestModel returns the preferred model of a provider, optionally
// requiring a capability ("tools" or "json").
func GetLatestModel(provider, capability string) *ModelInfo {
	for i := range Models {
		m := &Models[i]
		if m.Provider != provider {
			continue
		}
		switch capability {
		case "":
			return m
		case "tools":
			if m.SupportsTools {
				return m
			}
		case "json":
			if m.SupportsJSON {
				return m
			}
		}
	}
	return nil
}

// ContextWindow returns the context size of a known model.
func ContextWindow(modelID string) (int, bool) {
	info := GetModelInfo(modelID)
	if info == nil || info.ContextWindow == 0 {
		return 0, false
	}
	return info.ContextWindow, true
}
