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
)

const defaultStepTimeout = 30 * time.Second

// Orchestrator runs Workflows against one set of Deps, keeping every
// in-flight WorkflowExecution's state in an in-process map guarded by a
// single mutex it owns, mirrored to Redis for cross-process visibility.
// Agent runtimes never touch this state directly.
type Orchestrator struct {
	deps   Deps
	mirror ExecutionMirror

	mu         sync.Mutex
	executions map[string]domain.WorkflowExecution
}

// NewOrchestrator builds an Orchestrator. mirror may be nil, which disables
// cross-process visibility but not execution itself.
func NewOrchestrator(deps Deps, mirror ExecutionMirror) *Orchestrator {
	return &Orchestrator{
		deps:       deps,
		mirror:     mirror,
		executions: make(map[string]domain.WorkflowExecution),
	}
}

// Execution returns the last known state of a run this process started.
func (o *Orchestrator) Execution(id string) (domain.WorkflowExecution, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	exec, ok := o.executions[id]
	return exec, ok
}

func (o *Orchestrator) setExecution(ctx context.Context, exec domain.WorkflowExecution) {
	o.mu.Lock()
	o.executions[exec.ID] = exec
	o.mu.Unlock()
	mirrorExecution(ctx, o.mirror, exec)
}

// Run executes wf against in to completion, cancelling every in-flight step
// the moment ctx is cancelled — there are no goroutines outliving ctx.
func (o *Orchestrator) Run(ctx context.Context, wf Workflow, in Input) (Result, error) {
	start := time.Now()
	status := string(domain.WorkflowCompleted)
	o.deps.Metrics.WorkflowStarted(ctx)
	defer func() {
		o.deps.Metrics.WorkflowFinished(ctx)
		o.deps.Metrics.RecordWorkflow(ctx, start, wf.Name, status)
	}()

	levels, err := topoLevels(wf.Steps)
	if err != nil {
		status = string(domain.WorkflowFailed)
		return Result{}, err
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

	byName := make(map[string]Step, len(wf.Steps))
	for _, s := range wf.Steps {
		byName[s.Name] = s
	}

	var resultsMu sync.Mutex
	results := make(map[string]StepOutput, len(wf.Steps))

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

				out, err := runStep(sctx, step, in, resolved, o.deps)

				resultsMu.Lock()
				if err == nil {
					results[step.Name] = out
				}
				resultsMu.Unlock()

				if err != nil {
					if step.OnFailure == OnFailureAbort {
						return fmt.Errorf("agent: step %q failed: %w", step.Name, err)
					}
					return nil
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			now := time.Now()
			exec.Status = domain.WorkflowFailed
			exec.FinishedAt = &now
			o.setExecution(ctx, exec)
			status = string(domain.WorkflowFailed)
			return Result{Execution: exec}, err
		}

		resultsMu.Lock()
		for name, out := range results {
			exec.StepResults[name] = out.Text
		}
		resultsMu.Unlock()
		o.setExecution(ctx, exec)
	}

	answer, sources := finalAnswer(wf, results)
	quality := finalQuality(wf, results)

	now := time.Now()
	exec.Status = domain.WorkflowCompleted
	exec.FinishedAt = &now
	o.setExecution(ctx, exec)

	return Result{
		Execution: exec,
		Answer:    answer,
		Sources:   sources,
		Quality:   quality,
	}, nil
}

func runStep(ctx context.Context, step Step, in Input, resolved StepOutput, deps Deps) (StepOutput, error) {
	fn, ok := runtimes[step.Role]
	if !ok {
		return StepOutput{}, fmt.Errorf("agent: no runtime registered for role %q", step.Role)
	}
	return fn(ctx, in, resolved, step.Declaration, deps)
}

func stepTimeout(step Step) time.Duration {
	if step.Timeout > 0 {
		return step.Timeout
	}
	if step.Declaration.Timeout > 0 {
		return step.Declaration.Timeout
	}
	return defaultStepTimeout
}

// topoLevels groups a Workflow's Steps into waves that can run
// concurrently: every step in a wave has all its DependsOn satisfied by
// earlier waves.
func topoLevels(steps []Step) ([][]Step, error) {
	done := make(map[string]bool, len(steps))
	remaining := len(steps)
	var levels [][]Step

	for remaining > 0 {
		var level []Step
		for _, s := range steps {
			if done[s.Name] {
				continue
			}
			ready := true
			for _, dep := range s.DependsOn {
				if !done[dep] {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, s)
			}
		}
		if len(level) == 0 {
			return nil, fmt.Errorf("agent: workflow has an unresolvable dependency cycle")
		}
		for _, s := range level {
			done[s.Name] = true
			remaining--
		}
		levels = append(levels, level)
	}
	return levels, nil
}

// resolveInput turns a Step's input binding into the StepOutput its runtime
// receives, defaulting to a merge of every dependency's output when no
// explicit binding is set, and to the workflow's root query for steps with
// no dependencies at all.
func resolveInput(step Step, in Input, results map[string]StepOutput, byName map[string]Step) StepOutput {
	if step.Input != "" && step.Input != "{query}" {
		return resolveBinding(step.Input, results)
	}
	if len(step.DependsOn) == 0 {
		return StepOutput{Text: in.Query}
	}
	return mergeStepOutputs(step.DependsOn, results, byName)
}

func resolveBinding(expr string, results map[string]StepOutput) StepOutput {
	inner := strings.TrimSuffix(strings.TrimPrefix(expr, "{"), "}")
	inner = strings.TrimPrefix(inner, "step.")
	parts := strings.SplitN(inner, ".", 3)

	out, ok := results[parts[0]]
	if !ok {
		return StepOutput{}
	}
	if len(parts) == 3 && parts[1] == "meta" {
		return StepOutput{Text: out.Meta[parts[2]]}
	}
	return out
}

// mergeStepOutputs combines several dependencies' outputs into one,
// scaling each dependency's source scores by that step's Weight (default
// 1.0) so a Workflow can favor one branch over another when they're fused,
// e.g. weighting a graph branch lower than a semantic one.
func mergeStepOutputs(names []string, results map[string]StepOutput, byName map[string]Step) StepOutput {
	var texts []string
	var sources []domain.SourceRef
	meta := make(map[string]string)
	for _, name := range names {
		out, ok := results[name]
		if !ok {
			continue
		}
		if strings.TrimSpace(out.Text) != "" {
			texts = append(texts, out.Text)
		}
		weight := 1.0
		if s, ok := byName[name]; ok && s.Weight > 0 {
			weight = s.Weight
		}
		for _, src := range out.Sources {
			src.Score *= weight
			sources = append(sources, src)
		}
		for k, v := range out.Meta {
			meta[name+"."+k] = v
		}
	}
	return StepOutput{Text: strings.Join(texts, "\n\n"), Sources: sources, Meta: meta}
}

// finalAnswer returns the last answer_synthesizer step's output, since a
// well-formed Workflow has exactly one.
func finalAnswer(wf Workflow, results map[string]StepOutput) (string, []domain.SourceRef) {
	var answer string
	var sources []domain.SourceRef
	for _, s := range wf.Steps {
		if s.Role != RoleAnswerSynthesizer {
			continue
		}
		if out, ok := results[s.Name]; ok {
			answer = out.Text
			sources = out.Sources
		}
	}
	return answer, sources
}

// finalQuality returns the last quality_assessor step's scores, falling
// back to a deterministic assessment of the final answer when a Workflow
// has no quality_assessor step or it was skipped.
func finalQuality(wf Workflow, results map[string]StepOutput) Quality {
	for i := len(wf.Steps) - 1; i >= 0; i-- {
		s := wf.Steps[i]
		if s.Role != RoleQualityAssessor {
			continue
		}
		out, ok := results[s.Name]
		if !ok {
			continue
		}
		return Quality{
			Completeness: parseScore(out.Meta["completeness"]),
			Accuracy:     parseScore(out.Meta["accuracy"]),
			Clarity:      parseScore(out.Meta["clarity"]),
			Consistency:  parseScore(out.Meta["consistency"]),
			Confidence:   parseScore(out.Meta["confidence"]),
			Assessment:   out.Text,
		}
	}

	answer, sources := finalAnswer(wf, results)
	var total float64
	for _, s := range sources {
		total += s.Score
	}
	avg := 0.0
	if len(sources) > 0 {
		avg = total / float64(len(sources))
	}
	return assessQuality(answer, len(sources), avg)
}
