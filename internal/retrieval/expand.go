package retrieval

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/ragcore/ragcore/internal/modelclient"
)

const defaultExpansionCount = 3

// expandQueries generates N paraphrases of the query in a single LLM call
// when requested, always returning the original query first. It degrades
// to just the original query if expansion is disabled, no LLMClient is
// configured, or the call fails — query expansion is a recall aid, never
// a hard dependency.
func expandQueries(ctx context.Context, llm modelclient.LLMClient, req Request) []string {
	queries := []string{req.Query}
	if !req.ExpandQuery || llm == nil {
		return queries
	}
	n := req.ExpansionCount
	if n <= 0 {
		n = defaultExpansionCount
	}

	prompt := "Rewrite the following search query as " + strconv.Itoa(n) + " alternate phrasings that preserve its meaning. " +
		"Respond with a JSON array of strings only, no other text.\n\nQuery: " + req.Query

	result, err := llm.Complete(ctx, []modelclient.Message{
		{Role: modelclient.RoleUser, Content: prompt},
	}, modelclient.CompletionOpts{MaxTokens: 512, Temperature: 0.3})
	if err != nil {
		return queries
	}

	var paraphrases []string
	content := strings.TrimSpace(result.Content)
	if err := json.Unmarshal([]byte(content), &paraphrases); err != nil {
		return queries
	}
	return append(queries, paraphrases...)
}
