package models

import "strings"

// AIProvider selects the external classifier backing a run.
type AIProvider string

const (
	AIProviderOpenAI AIProvider = "openai"
	AIProviderClaude AIProvider = "claude"
	AIProviderGemini AIProvider = "gemini"
	AIProviderNone   AIProvider = "none"
)

// ParseAIProvider normalises a provider name. Unknown names yield false.
func ParseAIProvider(s string) (AIProvider, bool) {
	switch p := AIProvider(strings.ToLower(strings.TrimSpace(s))); p {
	case AIProviderOpenAI, AIProviderClaude, AIProviderGemini, AIProviderNone:
		return p, true
	case "":
		return AIProviderNone, true
	default:
		return "", false
	}
}

// ValueCount is a distinct column value with its occurrence count.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// ValueMapping assigns one distinct value to a root-to-leaf name path.
type ValueMapping struct {
	Value string   `json:"value"`
	Path  []string `json:"path"`
}

// BatchMapping is the classifier response for one batch of values.
type BatchMapping struct {
	Mappings []ValueMapping `json:"mappings"`
}
