package llm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oceanbase/powermem-recall/pkg/llm"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{"plain", `{"summary":"x"}`, `{"summary":"x"}`},
		{"fenced", "```json\n{\"concepts\": [\"a\"]}\n```", `{"concepts": ["a"]}`},
		{"with prose", `Sure! Here it is: {"a": {"b": 1}} hope that helps`, `{"a": {"b": 1}}`},
		{"no object", "  nothing here ", "nothing here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, llm.ExtractJSON(tt.response))
		})
	}
}

func TestApplyGenerateOptions(t *testing.T) {
	defaults := llm.ApplyGenerateOptions(nil)
	assert.InDelta(t, 0.3, defaults.Temperature, 1e-12)
	assert.Equal(t, 512, defaults.MaxTokens)

	opts := llm.ApplyGenerateOptions([]llm.GenerateOption{llm.WithTemperature(0), llm.WithMaxTokens(64)})
	assert.Zero(t, opts.Temperature)
	assert.Equal(t, 64, opts.MaxTokens)
}
