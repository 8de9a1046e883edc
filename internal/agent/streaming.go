package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ragcore/ragcore/internal/domain"
	"github.com/ragcore/ragcore/internal/modelclient"
)

// RunStreaming executes every step of wf up to (not including) its
// answer_synthesizer step exactly as Run does, then hands the caller a live
// TokenChunk channel for that step's own LLM call instead of blocking until
// the whole answer is assembled — the conversation layer forwards chunks as
// SSE events while they arrive. The caller must drain the channel and then
// call FinalizeStreaming to persist the execution's terminal state.
func (o *Orchestrator) RunStreaming(ctx context.Context, wf Workflow, in Input) (domain.WorkflowExecution, StepOutput, <-chan modelclient.TokenChunk, error) {
	var synth Step
	found := false
	preSteps := make([]Step, 0, len(wf.Steps))
	for _, s := range wf.Steps {
		if s.Role == RoleAnswerSynthesizer && !found {
			synth = s
			found = true
			continue
		}
		preSteps = append(preSteps, s)
	}
	if !found {
		return domain.WorkflowExecution{}, StepOutput{}, nil, fmt.Errorf("agent: workflow %q has no answer_synthesizer step to stream", wf.Name)
	}

	exec := domain.WorkflowExecution{
		ID:             uuid.NewString(),
		WorkflowName:   wf.Name,
		ConversationID: in.ConversationID,
		Status:         domain.WorkflowRunning,
		StepResults:    make(map[string]string),
		StartedAt:      time.Now(),
	}
	o.setExecution(ctx, exec)
	o.deps.Metrics.WorkflowStarted(ctx)

	byName := make(map[string]Step, len(wf.Steps))
	for _, s := range wf.Steps {
		byName[s.Name] = s
	}

	levels, err := topoLevels(preSteps)
	if err != nil {
		o.deps.Metrics.WorkflowFinished(ctx)
		return exec, StepOutput{}, nil, err
	}

	var resultsMu sync.Mutex
	results := make(map[string]StepOutput, len(preSteps))

	for _, level := range levels {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.deps.maxParallel())

		for _, step := range level {
			step := step
			g.Go(func() error {
				resultsMu.Lock()
				resolved := resolveInput(step, in, results, byName)
				resultsMu.Unlock()

				sctx, cancel := context.WithTimeout(gctx, stepTimeout(step))
				defer cancel()

				out, stepErr := runStep(sctx, step, in, resolved, o.deps)

				resultsMu.Lock()
				if stepErr == nil {
					results[step.Name] = out
				}
				resultsMu.Unlock()

				if stepErr != nil && step.OnFailure == OnFailureAbort {
					return fmt.Errorf("agent: step %q failed: %w", step.Name, stepErr)
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			o.failExecution(ctx, &exec, err)
			return exec, StepOutput{}, nil, err
		}

		resultsMu.Lock()
		for name, out := range results {
			exec.StepResults[name] = out.Text
		}
		resultsMu.Unlock()
		o.setExecution(ctx, exec)
	}

	resolved := resolveInput(synth, in, results, byName)
	if o.deps.LLM == nil || strings.TrimSpace(resolved.Text) == "" {
		text := resolved.Text
		if strings.TrimSpace(text) == "" {
			text = "I couldn't find relevant information to answer this."
		}
		ch := make(chan modelclient.TokenChunk, 1)
		ch <- modelclient.TokenChunk{Delta: text, Finish: modelclient.FinishStop}
		close(ch)
		return exec, resolved, ch, nil
	}

	tokens, err := o.deps.LLM.CompleteStream(ctx, []modelclient.Message{
		{Role: modelclient.RoleUser, Content: synthesisPrompt(in.Query, resolved.Text)},
	}, modelclient.CompletionOpts{MaxTokens: 1024, Temperature: 0.3})
	if err != nil {
		o.failExecution(ctx, &exec, err)
		return exec, resolved, nil, err
	}
	return exec, resolved, tokens, nil
}

func (o *Orchestrator) failExecution(ctx context.Context, exec *domain.WorkflowExecution, err error) {
	now := time.Now()
	exec.Status = domain.WorkflowFailed
	exec.FinishedAt = &now
	o.setExecution(ctx, *exec)
	o.deps.Metrics.WorkflowFinished(ctx)
	o.deps.Metrics.RecordWorkflow(ctx, exec.StartedAt, exec.WorkflowName, string(domain.WorkflowFailed))
}

// FinalizeStreaming persists exec's terminal state once the caller has
// drained RunStreaming's token channel (or cancelled it mid-stream),
// scoring the accumulated answer the same way Run's quality_assessor step
// would have.
func (o *Orchestrator) FinalizeStreaming(ctx context.Context, exec domain.WorkflowExecution, resolved StepOutput, answer string, cancelled bool) Result {
	now := time.Now()
	exec.FinishedAt = &now
	if cancelled {
		exec.Status = domain.WorkflowCancelled
	} else {
		exec.Status = domain.WorkflowCompleted
	}
	exec.StepResults["answer"] = answer
	o.setExecution(ctx, exec)
	o.deps.Metrics.WorkflowFinished(ctx)
	o.deps.Metrics.RecordWorkflow(ctx, exec.StartedAt, exec.WorkflowName, string(exec.Status))

	var total float64
	for _, s := range resolved.Sources {
		total += s.Score
	}
	avg := 0.0
	if len(resolved.Sources) > 0 {
		avg = total / float64(len(resolved.Sources))
	}
	quality := assessQuality(answer, len(resolved.Sources), avg)

	return Result{Execution: exec, Answer: answer, Sources: resolved.Sources, Quality: quality}
}

// synthesisPrompt mirrors synthesizeRuntime's prompt construction so a
// streamed answer is worded identically to a non-streamed one.
func synthesisPrompt(query, contextText string) string {
	return fmt.Sprintf(
		"Answer the user's question using only the information below. Cite sources using [source N]. "+
			"If the information is insufficient, say so.\n\nQuestion: %s\n\nInformation:\n%s",
		query, contextText,
	)
}
