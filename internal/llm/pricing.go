package llm

import (
	"regexp"
	"strings"
)

// ModelCost is USD per million tokens.
type ModelCost struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// Cost returns the USD cost of a call with the given token counts.
func (c ModelCost) Cost(inputTokens, outputTokens int) float64 {
	return (float64(inputTokens)*c.InputPerMTok + float64(outputTokens)*c.OutputPerMTok) / 1e6
}

// Pricing per model family. Dated snapshots ("claude-haiku-4-5-20251001",
// "gpt-4o-2024-08-06") resolve to their family.
var modelCosts = map[string]ModelCost{
	"claude-haiku-4-5":  {1, 5},
	"claude-sonnet-4-5": {3, 15},
	"claude-sonnet-4":   {3, 15},
	"claude-opus-4-5":   {5, 25},
	"claude-opus-4-1":   {15, 75},
	"claude-3-5-haiku":  {0.8, 4},
	"claude-3-7-sonnet": {3, 15},

	"gpt-4o":       {2.5, 10},
	"gpt-4o-mini":  {0.15, 0.6},
	"gpt-4.1":      {2, 8},
	"gpt-4.1-mini": {0.4, 1.6},
	"gpt-4.1-nano": {0.1, 0.4},
	"gpt-5":        {1.25, 10},
	"gpt-5-mini":   {0.25, 2},
	"gpt-5-nano":   {0.05, 0.4},
	"o4-mini":      {1.1, 4.4},

	"gemini-2.0-flash":      {0.1, 0.4},
	"gemini-2.5-flash":      {0.3, 2.5},
	"gemini-2.5-flash-lite": {0.1, 0.4},
	"gemini-2.5-pro":        {1.25, 10},
	"gemini-3-pro-preview":  {2, 12},
}

var snapshotSuffix = regexp.MustCompile(`-(\d{8}|\d{4}-\d{2}-\d{2}|latest)$`)

// LookupCost returns pricing for a model, or nil when it is unknown.
// Friendly aliases, dated snapshots and OpenRouter vendor prefixes
// ("anthropic/claude-sonnet-4.5") are all accepted.
func LookupCost(model string) *ModelCost {
	for _, id := range costCandidates(model) {
		if c, ok := modelCosts[id]; ok {
			return &c
		}
	}
	return nil
}

func costCandidates(model string) []string {
	ids := []string{model}
	if _, name, ok := strings.Cut(model, "/"); ok {
		model = name
		ids = []string{name, strings.ReplaceAll(name, ".", "-")}
	}
	for _, aliases := range []map[string]string{anthropicModels, openaiModels, geminiModels} {
		if id, ok := aliases[model]; ok {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		if family := snapshotSuffix.ReplaceAllString(id, ""); family != id {
			ids = append(ids, family)
		}
	}
	return ids
}
