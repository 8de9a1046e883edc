package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragcore/ragcore/internal/modelclient"
	"github.com/ragcore/ragcore/internal/retrieval"
	"github.com/ragcore/ragcore/internal/store/vector"
)

type fakeVectors struct {
	hits []vector.SearchHit
	err  error
}

func (f *fakeVectors) SearchDense(ctx context.Context, collection string, embedding []float32, topK int, filter vector.Filter) ([]vector.SearchHit, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func (f *fakeVectors) SearchSparse(ctx context.Context, collection string, terms map[uint32]float32, topK int, filter vector.Filter) ([]vector.SearchHit, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type fakeLLM struct {
	content string
	err     error
}

func (f *fakeLLM) Complete(ctx context.Context, msgs []modelclient.Message, opts modelclient.CompletionOpts) (modelclient.CompletionResult, error) {
	if f.err != nil {
		return modelclient.CompletionResult{}, f.err
	}
	return modelclient.CompletionResult{Content: f.content}, nil
}

func (f *fakeLLM) CompleteStream(ctx context.Context, msgs []modelclient.Message, opts modelclient.CompletionOpts) (<-chan modelclient.TokenChunk, error) {
	ch := make(chan modelclient.TokenChunk)
	close(ch)
	return ch, nil
}

func baseDeps(vectors *fakeVectors, llm modelclient.LLMClient) Deps {
	engine := retrieval.New(retrieval.Deps{
		Embedder: fakeEmbedder{},
		Vectors:  vectors,
		LLM:      llm,
	})
	return Deps{Retrieval: engine, LLM: llm}
}

func hit(id, doc, content string) vector.SearchHit {
	return vector.SearchHit{ID: id, DocumentID: doc, Content: content, Score: 0.9}
}

func TestOrchestratorRun_SimpleQA(t *testing.T) {
	vectors := &fakeVectors{hits: []vector.SearchHit{hit("c1", "d1", "the sky is blue")}}
	llm := &fakeLLM{content: "The sky is blue [source 1]."}
	o := NewOrchestrator(baseDeps(vectors, llm), nil)

	result, err := o.Run(context.Background(), SimpleQA, Input{Query: "why is the sky blue", KnowledgeBaseID: "kb1"})
	require.NoError(t, err)
	assert.Equal(t, "The sky is blue [source 1].", result.Answer)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "c1", result.Sources[0].ChunkID)
	assert.Equal(t, "completed", string(result.Execution.Status))
	assert.NotNil(t, result.Execution.FinishedAt)
	assert.Greater(t, result.Quality.Confidence, 0.0)
}

func TestOrchestratorRun_ComplexResearchMergesBranches(t *testing.T) {
	vectors := &fakeVectors{hits: []vector.SearchHit{hit("c1", "d1", "alpha"), hit("c2", "d1", "beta")}}
	llm := &fakeLLM{content: "fused answer"}
	o := NewOrchestrator(baseDeps(vectors, llm), nil)

	result, err := o.Run(context.Background(), ComplexResearch, Input{Query: "deep dive", KnowledgeBaseID: "kb1"})
	require.NoError(t, err)
	assert.Equal(t, "fused answer", result.Answer)
	assert.NotEmpty(t, result.Quality.Assessment)
}

func TestOrchestratorRun_ComparativeAnalysisBindsExtractedSubjects(t *testing.T) {
	subjects, _ := json.Marshal([]string{"cats", "dogs"})
	vectors := &fakeVectors{hits: []vector.SearchHit{hit("c1", "d1", "animals")}}
	llm := &sequencedLLM{responses: []string{string(subjects), "cats vs dogs answer"}}
	o := NewOrchestrator(baseDeps(vectors, llm), nil)

	result, err := o.Run(context.Background(), ComparativeAnalysis, Input{Query: "cats vs dogs", KnowledgeBaseID: "kb1"})
	require.NoError(t, err)
	assert.Equal(t, "cats vs dogs answer", result.Answer)
}

func TestOrchestratorRun_MultiStepReasoningAggregatesSubAnswers(t *testing.T) {
	subquestions, _ := json.Marshal([]string{"a", "b", "c"})
	vectors := &fakeVectors{hits: []vector.SearchHit{hit("c1", "d1", "fact")}}
	llm := &sequencedLLM{responses: []string{string(subquestions), "aggregated answer"}}
	o := NewOrchestrator(baseDeps(vectors, llm), nil)

	result, err := o.Run(context.Background(), MultiStepReasoning, Input{Query: "why how and what", KnowledgeBaseID: "kb1"})
	require.NoError(t, err)
	assert.Equal(t, "aggregated answer", result.Answer)
}

func TestOrchestratorRun_FactCheckingProducesVerdict(t *testing.T) {
	claims, _ := json.Marshal([]string{"claim one", "claim two"})
	vectors := &fakeVectors{hits: []vector.SearchHit{hit("c1", "d1", "evidence")}}
	llm := &sequencedLLM{responses: []string{string(claims)}}
	o := NewOrchestrator(baseDeps(vectors, llm), nil)

	result, err := o.Run(context.Background(), FactChecking, Input{Query: "is it true that X causes Y", KnowledgeBaseID: "kb1"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Quality.Assessment)
}

func TestOrchestratorRun_AbortPolicyFailsWholeRun(t *testing.T) {
	wf := Workflow{
		Name: "broken",
		Steps: []Step{
			{Name: "search", Role: RoleSemanticSearcher, OnFailure: OnFailureAbort},
		},
	}
	deps := Deps{Retrieval: nil} // no retrieval engine configured -> runtime error
	o := NewOrchestrator(deps, nil)

	result, err := o.Run(context.Background(), wf, Input{Query: "q", KnowledgeBaseID: "kb1"})
	require.Error(t, err)
	assert.Equal(t, "failed", string(result.Execution.Status))
}

func TestOrchestratorRun_SkipPolicyToleratesFailureAndDependentsGetEmptyInput(t *testing.T) {
	wf := Workflow{
		Name: "partial",
		Steps: []Step{
			{Name: "search", Role: RoleSemanticSearcher, OnFailure: OnFailureSkip},
			{Name: "answer", Role: RoleAnswerSynthesizer, DependsOn: []string{"search"}, OnFailure: OnFailureAbort},
		},
	}
	deps := Deps{Retrieval: nil, LLM: &fakeLLM{content: "shouldn't be reached"}}
	o := NewOrchestrator(deps, nil)

	result, err := o.Run(context.Background(), wf, Input{Query: "q", KnowledgeBaseID: "kb1"})
	require.NoError(t, err)
	assert.Equal(t, "I couldn't find relevant information to answer this.", result.Answer)
}

func TestOrchestratorRun_SynthesizerErrorAbortsRun(t *testing.T) {
	wf := Workflow{
		Name: "broken-synthesis",
		Steps: []Step{
			{Name: "search", Role: RoleSemanticSearcher, OnFailure: OnFailureSkip},
			{Name: "answer", Role: RoleAnswerSynthesizer, DependsOn: []string{"search"}, OnFailure: OnFailureAbort},
		},
	}
	vectors := &fakeVectors{hits: []vector.SearchHit{hit("c1", "d1", "some content")}}
	llm := &fakeLLM{err: errors.New("llm unavailable")}
	o := NewOrchestrator(baseDeps(vectors, llm), nil)

	result, err := o.Run(context.Background(), wf, Input{Query: "q", KnowledgeBaseID: "kb1"})
	require.Error(t, err)
	assert.Equal(t, "failed", string(result.Execution.Status))
}

func TestTopoLevels_OrdersByDependency(t *testing.T) {
	levels, err := topoLevels(ComplexResearch.Steps)
	require.NoError(t, err)
	require.Len(t, levels, 3)
	names := func(steps []Step) []string {
		var out []string
		for _, s := range steps {
			out = append(out, s.Name)
		}
		return out
	}
	assert.ElementsMatch(t, []string{"semantic", "graph"}, names(levels[0]))
	assert.Equal(t, []string{"answer"}, names(levels[1]))
	assert.Equal(t, []string{"quality"}, names(levels[2]))
}

func TestTopoLevels_DetectsCycle(t *testing.T) {
	steps := []Step{
		{Name: "a", DependsOn: []string{"b"}},
		{Name: "b", DependsOn: []string{"a"}},
	}
	_, err := topoLevels(steps)
	assert.Error(t, err)
}

func TestRecommendWorkflow(t *testing.T) {
	assert.Equal(t, WorkflowComparativeAnalysis, RecommendWorkflow("python vs go for backend services"))
	assert.Equal(t, WorkflowFactChecking, RecommendWorkflow("please fact check this claim about the product"))
	assert.Equal(t, WorkflowSimpleQA, RecommendWorkflow("what is the capital of France"))
	assert.Equal(t, WorkflowSimpleQA, RecommendWorkflow(""))
}

func TestAssessQuality_PenalizesEmptySourcesAndShortAnswers(t *testing.T) {
	rich := assessQuality("a fully formed answer citing evidence", 3, 0.9)
	poor := assessQuality("", 0, 0)
	assert.Greater(t, rich.Confidence, poor.Confidence)
}

// sequencedLLM returns each entry in responses in order across successive
// Complete calls, for tests that exercise more than one LLM-backed step.
type sequencedLLM struct {
	responses []string
	i         int
}

func (s *sequencedLLM) Complete(ctx context.Context, msgs []modelclient.Message, opts modelclient.CompletionOpts) (modelclient.CompletionResult, error) {
	if s.i >= len(s.responses) {
		return modelclient.CompletionResult{Content: s.responses[len(s.responses)-1]}, nil
	}
	r := s.responses[s.i]
	s.i++
	return modelclient.CompletionResult{Content: r}, nil
}

func (s *sequencedLLM) CompleteStream(ctx context.Context, msgs []modelclient.Message, opts modelclient.CompletionOpts) (<-chan modelclient.TokenChunk, error) {
	ch := make(chan modelclient.TokenChunk)
	close(ch)
	return ch, nil
}
