package concept

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/oceanbase/powermem-recall/pkg/llm"
	"github.com/oceanbase/powermem-recall/pkg/logging"
)

const conceptPrompt = `You extract the key concepts from a short memory or query.

Rules:
- Return single words or short noun phrases, lower-cased.
- Skip filler words, pronouns and verbs that carry no topic.
- At most 10 concepts, most important first.
- Return JSON: {"concepts": ["concept1", "concept2"]}
- If there are no concepts, return {"concepts": []}`

// LLMExtractor extracts concepts with an LLM and falls back to the rule
// extractor when the LLM fails or returns something unparsable. Expansion and
// similarity are always rule-based.
//
// Example usage:
//
//	extractor := concept.NewLLMExtractor(provider, nil)
//	concepts, _ := extractor.Extract(ctx, "Booked a cardiologist appointment")
type LLMExtractor struct {
	llm      llm.Provider
	fallback *RuleExtractor
	logger   logging.Logger
}

// NewLLMExtractor creates an LLM-backed extractor. A nil logger discards
// fallback warnings.
func NewLLMExtractor(provider llm.Provider, logger logging.Logger) *LLMExtractor {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &LLMExtractor{
		llm:      provider,
		fallback: NewRuleExtractor(),
		logger:   logger,
	}
}

// Extract asks the LLM for concepts, using the rule extractor on failure.
func (e *LLMExtractor) Extract(ctx context.Context, text string) ([]string, error) {
	if e.llm == nil || strings.TrimSpace(text) == "" {
		return e.fallback.Extract(ctx, text)
	}

	response, err := e.llm.GenerateWithMessages(ctx, []llm.Message{
		{Role: "system", Content: conceptPrompt},
		{Role: "user", Content: fmt.Sprintf("Input:\n%s", text)},
	}, llm.WithTemperature(0))
	if err != nil {
		e.logger.Warn("llm concept extraction failed, using rules", "error", err)
		return e.fallback.Extract(ctx, text)
	}

	concepts, err := parseConcepts(response)
	if err != nil {
		e.logger.Warn("unparsable llm concept response, using rules", "error", err)
		return e.fallback.Extract(ctx, text)
	}
	return concepts, nil
}

// Expand delegates to the rule extractor.
func (e *LLMExtractor) Expand(ctx context.Context, concepts []string) ([]string, error) {
	return e.fallback.Expand(ctx, concepts)
}

// Similarity delegates to the rule extractor.
func (e *LLMExtractor) Similarity(a, b string) float64 {
	return e.fallback.Similarity(a, b)
}

func parseConcepts(response string) ([]string, error) {
	var result struct {
		Concepts []string `json:"concepts"`
	}
	if err := json.Unmarshal([]byte(llm.ExtractJSON(response)), &result); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}

	seen := make(map[string]struct{}, len(result.Concepts))
	concepts := make([]string, 0, len(result.Concepts))
	for _, c := range result.Concepts {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		concepts = append(concepts, c)
	}
	return concepts, nil
}
