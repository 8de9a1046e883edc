// Package agent implements the multi-agent orchestration layer: stateless
// per-role agent runtimes composed into typed workflow DAGs, executed with
// bounded parallelism, producing a source-tagged, quality-assessed answer.
package agent

import (
	"context"
	"time"

	"github.com/ragcore/ragcore/internal/domain"
	"github.com/ragcore/ragcore/internal/modelclient"
	"github.com/ragcore/ragcore/internal/obs"
	"github.com/ragcore/ragcore/internal/retrieval"
)

// Role identifies an agent's responsibility within a Workflow. Unlike the
// Python ConversableAgent subclasses this is generalized from, a Role
// carries no LLM config or runtime state of its own — it only selects
// which stateless runtime function a Step invokes.
type Role string

const (
	RoleSemanticSearcher  Role = "semantic_searcher"
	RoleHybridSearcher    Role = "hybrid_searcher"
	RoleGraphSearcher     Role = "graph_searcher"
	RoleAnswerSynthesizer Role = "answer_synthesizer"
	RoleQualityAssessor   Role = "quality_assessor"
	RoleCoordinator       Role = "coordinator"
)

// Declaration is an immutable description of an agent: what it's for, the
// prompt template it fills when it calls an LLM, and how long it is given
// to run. It carries no connection handles or mutable fields, so one
// Declaration is safely shared across concurrent workflow runs.
type Declaration struct {
	Role           Role
	PromptTemplate string
	Timeout        time.Duration
	// MaxItems bounds how many items a coordinator Declaration extracts
	// (sub-questions, claims, compared subjects). Zero defaults to 3.
	MaxItems int
}

func (d Declaration) maxItems() int {
	if d.MaxItems > 0 {
		return d.MaxItems
	}
	return 3
}

// FailurePolicy controls what a workflow does when a Step's runtime
// returns an error.
type FailurePolicy string

const (
	OnFailureAbort           FailurePolicy = "abort"
	OnFailureSkip            FailurePolicy = "skip"
	OnFailureContinuePartial FailurePolicy = "continue_with_partial"
)

// Step is one node of a Workflow's DAG. It references a Role rather than a
// string agent name, so a typo in a workflow definition is a compile error,
// not a runtime lookup miss.
type Step struct {
	Name        string
	Role        Role
	Declaration Declaration
	DependsOn   []string
	Timeout     time.Duration
	OnFailure   FailurePolicy
	Weight      float64
	// Input is an input binding: "" or "{query}" for the workflow's root
	// query, "{step.NAME}" for a prior step's Text, or
	// "{step.NAME.meta.KEY}" for a prior step's Meta value.
	Input string
}

// Workflow is a fixed, statically-built DAG of Steps. The five predefined
// workflows are Go values, not parsed from configuration.
type Workflow struct {
	Name  string
	Steps []Step
}

// Input is what a caller hands the orchestrator to start a workflow run.
type Input struct {
	Query           string
	KnowledgeBaseID string
	ConversationID  string
	RecentMessages  []domain.Message
	ImageRefs       []string
}

// StepOutput is what one agent runtime produces.
type StepOutput struct {
	Text    string
	Sources []domain.SourceRef
	Meta    map[string]string
}

// Result is the final, fused output of a whole workflow run.
type Result struct {
	Execution domain.WorkflowExecution
	Answer    string
	Sources   []domain.SourceRef
	Quality   Quality
}

// Quality is the four-sub-score assessment plus overall confidence
// produced for every workflow run, grounded on AnswerFusionAgent's
// responsibilities translated into a deterministic-plus-LLM function.
type Quality struct {
	Completeness float64
	Accuracy     float64
	Clarity      float64
	Consistency  float64
	Confidence   float64
	Assessment   string
}

// Deps bundles every external dependency an agent runtime or the
// orchestrator needs. Runtimes never reach past this struct for I/O.
type Deps struct {
	Retrieval *retrieval.Engine
	LLM       modelclient.LLMClient
	Metrics   *obs.Metrics
	// MaxParallelAgents bounds concurrent steps within one parallel group,
	// defaulting to 4 when unset.
	MaxParallelAgents int
}

func (d Deps) maxParallel() int {
	if d.MaxParallelAgents > 0 {
		return d.MaxParallelAgents
	}
	return 4
}

// runtime is the stateless shape every agent role implements: given the
// workflow's root Input, this step's resolved input (either a bound prior
// step's output or, for dependency-free steps, {Text: in.Query}), its own
// Declaration, and the shared Deps, it produces one StepOutput.
type runtime func(ctx context.Context, in Input, resolved StepOutput, decl Declaration, deps Deps) (StepOutput, error)
