package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ragcore/ragcore/internal/domain"
	"github.com/ragcore/ragcore/internal/modelclient"
	"github.com/ragcore/ragcore/internal/retrieval"
)

// runtimes maps each Role to its stateless implementation. Registered once
// at package init, never mutated, so lookups need no locking.
var runtimes = map[Role]runtime{
	RoleSemanticSearcher:  searchRuntime(retrieval.ModeSemantic),
	RoleHybridSearcher:    searchRuntime(retrieval.ModeHybrid),
	RoleGraphSearcher:     searchRuntime(retrieval.ModeGraph),
	RoleAnswerSynthesizer: synthesizeRuntime,
	RoleQualityAssessor:   assessRuntime,
	RoleCoordinator:       coordinateRuntime,
}

// searchRuntime closes over a retrieval.Mode, grounded on the Python
// SemanticSearchAgent/HybridSearchAgent/GraphSearchAgent, which differ only
// in which retrieval strategy they invoke, everything downstream of that
// being identical.
func searchRuntime(mode retrieval.Mode) runtime {
	return func(ctx context.Context, in Input, resolved StepOutput, decl Declaration, deps Deps) (StepOutput, error) {
		if deps.Retrieval == nil {
			return StepOutput{}, fmt.Errorf("agent: no retrieval engine configured for %s", mode)
		}
		query := resolved.Text
		if strings.TrimSpace(query) == "" {
			query = in.Query
		}
		resp, err := deps.Retrieval.Search(ctx, retrieval.Request{
			Query:           query,
			KnowledgeBaseID: in.KnowledgeBaseID,
			Mode:            mode,
		})
		if err != nil {
			return StepOutput{}, err
		}
		return searchResponseToStepOutput(resp), nil
	}
}

func searchResponseToStepOutput(resp retrieval.Response) StepOutput {
	var sb strings.Builder
	sources := make([]domain.SourceRef, 0, len(resp.Chunks))
	for i, c := range resp.Chunks {
		fmt.Fprintf(&sb, "[source %d] %s\n\n", i+1, c.Content)
		sources = append(sources, domain.SourceRef{
			ChunkID:    c.ChunkID,
			DocumentID: c.DocumentID,
			Score:      c.Score,
		})
	}
	return StepOutput{
		Text:    sb.String(),
		Sources: sources,
		Meta:    map[string]string{"result_count": fmt.Sprintf("%d", len(resp.Chunks))},
	}
}

// coordinateRuntime is the shared decomposition agent behind extracting
// compared subjects, splitting a question into sub-questions, and pulling
// out individually-checkable claims — the three jobs the original service
// never separated out of its ConversableAgent subclasses. Which job it
// does is entirely determined by the step's Declaration.PromptTemplate;
// the runtime itself is generic.
func coordinateRuntime(ctx context.Context, in Input, resolved StepOutput, decl Declaration, deps Deps) (StepOutput, error) {
	query := resolved.Text
	if strings.TrimSpace(query) == "" {
		query = in.Query
	}
	if deps.LLM == nil {
		return StepOutput{Text: query, Meta: map[string]string{"item_0": query}}, nil
	}
	n := decl.maxItems()
	prompt := decl.PromptTemplate + "\n\nRespond with a JSON array of at most " +
		fmt.Sprintf("%d", n) + " short strings, no other text.\n\nInput: " + query

	result, err := deps.LLM.Complete(ctx, []modelclient.Message{
		{Role: modelclient.RoleUser, Content: prompt},
	}, modelclient.CompletionOpts{MaxTokens: 512, Temperature: 0.1})
	if err != nil {
		return StepOutput{Text: query, Meta: map[string]string{"item_0": query}}, nil
	}

	var items []string
	if jsonErr := json.Unmarshal([]byte(strings.TrimSpace(result.Content)), &items); jsonErr != nil || len(items) == 0 {
		return StepOutput{Text: query, Meta: map[string]string{"item_0": query}}, nil
	}
	if len(items) > n {
		items = items[:n]
	}

	meta := make(map[string]string, len(items))
	for i, item := range items {
		meta[fmt.Sprintf("item_%d", i)] = item
	}
	return StepOutput{Text: strings.Join(items, "; "), Meta: meta}, nil
}

// synthesizeRuntime fuses source-tagged context from every dependency into
// one answer, generalizing AnswerFusionAgent's _fuse_answers prompt.
func synthesizeRuntime(ctx context.Context, in Input, resolved StepOutput, decl Declaration, deps Deps) (StepOutput, error) {
	contextText := resolved.Text
	if strings.TrimSpace(contextText) == "" {
		return StepOutput{Text: "I couldn't find relevant information to answer this.", Sources: resolved.Sources}, nil
	}
	if deps.LLM == nil {
		return StepOutput{Text: contextText, Sources: resolved.Sources}, nil
	}

	result, err := deps.LLM.Complete(ctx, []modelclient.Message{
		{Role: modelclient.RoleUser, Content: synthesisPrompt(in.Query, contextText)},
	}, modelclient.CompletionOpts{MaxTokens: 1024, Temperature: 0.3})
	if err != nil {
		return StepOutput{}, err
	}
	return StepOutput{Text: result.Content, Sources: resolved.Sources}, nil
}
