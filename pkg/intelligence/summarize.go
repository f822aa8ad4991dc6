package intelligence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/oceanbase/powermem-recall/pkg/llm"
	"github.com/oceanbase/powermem-recall/pkg/types"
)

// Summary tags and metadata keys.
const (
	TagSummarized    = "summarized"
	TagAutoGenerated = "auto-generated"

	MetaOriginalCount = "original_count"
	MetaTimeRange     = "time_range"
	MetaConcepts      = "concepts"
	MetaOriginalIDs   = "original_ids"
	MetaMethod        = "summarization_method"
)

// excerptRunes caps each member excerpt in a template summary.
const excerptRunes = 80

const summaryPrompt = `You condense a group of related memories into one memory.

Rules:
- Write one or two sentences in the third person.
- Keep names, dates, numbers and decisions; drop repetition.
- Do not invent facts that are not in the memories.
- Return JSON: {"summary": "..."}`

// Summarize condenses a cluster into one summary record.
//
// The framing follows the summarization method: the policy's method when
// set, otherwise the one matching the cluster's strategy (temporal clusters
// get a date-range framing, embedding clusters a theme framing, concept
// clusters a top-three-concept framing). When the policy enables LLM
// summaries and the manager has an LLM, the text is synthesized by the LLM,
// falling back to the template on failure.
//
// The summary's importance is the maximum of its members and its metadata
// lists the original ids. Embedding clusters lend the summary their centroid
// as its embedding; other summaries are left without one for the caller to
// embed. Members are never removed.
func (m *Manager) Summarize(ctx context.Context, cluster *types.MemoryCluster, policy *types.PolicyConfig) (*types.SummarizedMemory, error) {
	if cluster == nil || len(cluster.Memories) == 0 {
		return nil, types.NewMemoryError("Summarize", fmt.Errorf("%w: empty cluster", types.ErrInvalidInput))
	}
	p := m.resolve(policy)

	method := p.SummarizationMethod
	if method == "" {
		method = methodFor(cluster.Strategy)
	}

	members := make([]*types.MemoryRecord, 0, len(cluster.Memories))
	for _, r := range cluster.Memories {
		if r != nil {
			members = append(members, r)
		}
	}
	if len(members) == 0 {
		return nil, types.NewMemoryError("Summarize", fmt.Errorf("%w: cluster has no records", types.ErrInvalidInput))
	}

	content := templateSummary(method, cluster, members)
	if p.UseLLMSummaries && m.llm != nil {
		synthesized, err := m.llmSummary(ctx, members)
		if err != nil {
			if ctx.Err() != nil {
				return nil, types.NewMemoryError("Summarize", ctx.Err())
			}
			m.logger.Warn("llm summary failed, using template", "cluster_id", cluster.ID, "error", err)
		} else {
			content = synthesized
		}
	}

	ids := make([]string, len(members))
	importance := 0.0
	totalLen := 0
	for i, r := range members {
		ids[i] = r.ID
		if r.Importance > importance {
			importance = r.Importance
		}
		totalLen += utf8.RuneCountInString(r.Content)
	}

	ratio := 0.0
	if totalLen > 0 {
		ratio = float64(utf8.RuneCountInString(content)) / float64(totalLen)
	}

	var embedding []float64
	if len(cluster.Centroid) > 0 {
		embedding = append([]float64(nil), cluster.Centroid...)
	}

	concepts := append([]string(nil), cluster.Concepts...)
	record := types.MemoryRecord{
		ID:         m.newID("summary"),
		AgentID:    members[0].AgentID,
		Type:       types.TypeReflection,
		Content:    content,
		Embedding:  embedding,
		Importance: importance,
		CreatedAt:  m.now(),
		Tags:       []string{TagSummarized, string(method), TagAutoGenerated},
		Duration:   types.DurationLongTerm,
		Metadata: map[string]interface{}{
			MetaOriginalCount: len(members),
			MetaTimeRange: map[string]interface{}{
				"start": cluster.TimeRange.Start,
				"end":   cluster.TimeRange.End,
			},
			MetaConcepts:    concepts,
			MetaOriginalIDs: ids,
			MetaMethod:      string(method),
		},
	}

	return &types.SummarizedMemory{
		MemoryRecord:      record,
		OriginalMemoryIDs: append([]string(nil), ids...),
		Method:            method,
		CompressionRatio:  ratio,
	}, nil
}

func methodFor(strategy types.ClusterStrategy) types.SummarizationMethod {
	switch strategy {
	case types.ClusterEmbedding:
		return types.SummarizeClustering
	case types.ClusterConcept:
		return types.SummarizeConcept
	default:
		return types.SummarizeTemporal
	}
}

func templateSummary(method types.SummarizationMethod, cluster *types.MemoryCluster, members []*types.MemoryRecord) string {
	var b strings.Builder
	switch method {
	case types.SummarizeClustering:
		theme := "related topics"
		if len(cluster.Concepts) > 0 {
			theme = strings.Join(firstN(cluster.Concepts, 3), ", ")
		}
		fmt.Fprintf(&b, "%d memories about %s: ", len(members), theme)
	case types.SummarizeConcept:
		concepts := "shared concepts"
		if len(cluster.Concepts) > 0 {
			concepts = strings.Join(firstN(cluster.Concepts, 3), ", ")
		}
		fmt.Fprintf(&b, "Key concepts %s across %d memories: ", concepts, len(members))
	default:
		start, end := cluster.TimeRange.Start, cluster.TimeRange.End
		if start.IsZero() {
			start, end = members[0].CreatedAt, members[len(members)-1].CreatedAt
		}
		fmt.Fprintf(&b, "Between %s and %s, %d memories: ",
			start.Format("2006-01-02 15:04"), end.Format("2006-01-02 15:04"), len(members))
	}

	for i, r := range members {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(excerpt(r.Content, excerptRunes))
	}
	b.WriteString(".")
	return b.String()
}

func (m *Manager) llmSummary(ctx context.Context, members []*types.MemoryRecord) (string, error) {
	var input strings.Builder
	for _, r := range members {
		fmt.Fprintf(&input, "- [%s] %s\n", r.CreatedAt.Format("2006-01-02 15:04"), r.Content)
	}

	response, err := m.llm.GenerateWithMessages(ctx, []llm.Message{
		{Role: "system", Content: summaryPrompt},
		{Role: "user", Content: fmt.Sprintf("Memories:\n%s", input.String())},
	}, llm.WithTemperature(0.2))
	if err != nil {
		return "", err
	}

	var result struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(llm.ExtractJSON(response)), &result); err != nil {
		return "", fmt.Errorf("invalid JSON response: %w", err)
	}
	summary := strings.TrimSpace(result.Summary)
	if summary == "" {
		return "", fmt.Errorf("empty summary in response")
	}
	return summary, nil
}

func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n])) + "..."
}

func firstN(s []string, n int) []string {
	if len(s) < n {
		return s
	}
	return s[:n]
}
