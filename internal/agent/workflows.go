package agent

import "strings"

const (
	WorkflowSimpleQA            = "simple_qa"
	WorkflowComplexResearch     = "complex_research"
	WorkflowComparativeAnalysis = "comparative_analysis"
	WorkflowMultiStepReasoning  = "multi_step_reasoning"
	WorkflowFactChecking        = "fact_checking"
)

// SimpleQA is one searcher feeding straight into synthesis, for a query
// that doesn't need decomposition or cross-checking.
var SimpleQA = Workflow{
	Name: WorkflowSimpleQA,
	Steps: []Step{
		{Name: "search", Role: RoleHybridSearcher, OnFailure: OnFailureAbort},
		{Name: "answer", Role: RoleAnswerSynthesizer, DependsOn: []string{"search"}, OnFailure: OnFailureAbort},
	},
}

// ComplexResearch runs semantic and graph search in parallel, fuses their
// union, then assesses the resulting answer's quality.
var ComplexResearch = Workflow{
	Name: WorkflowComplexResearch,
	Steps: []Step{
		{Name: "semantic", Role: RoleSemanticSearcher, OnFailure: OnFailureSkip},
		{Name: "graph", Role: RoleGraphSearcher, OnFailure: OnFailureSkip},
		{Name: "answer", Role: RoleAnswerSynthesizer, DependsOn: []string{"semantic", "graph"}, OnFailure: OnFailureAbort},
		{Name: "quality", Role: RoleQualityAssessor, DependsOn: []string{"semantic", "graph", "answer"}, OnFailure: OnFailureSkip},
	},
}

// ComparativeAnalysis extracts the two subjects being compared, searches
// each independently, then asks the synthesizer to contrast them.
var ComparativeAnalysis = Workflow{
	Name: WorkflowComparativeAnalysis,
	Steps: []Step{
		{
			Name: "extract_subjects",
			Role: RoleCoordinator,
			Declaration: Declaration{
				PromptTemplate: "Identify the two subjects being compared in the following question.",
				MaxItems:       2,
			},
			OnFailure: OnFailureAbort,
		},
		{
			Name:      "search_subject_a",
			Role:      RoleSemanticSearcher,
			DependsOn: []string{"extract_subjects"},
			Input:     "{step.extract_subjects.meta.item_0}",
			OnFailure: OnFailureSkip,
		},
		{
			Name:      "search_subject_b",
			Role:      RoleSemanticSearcher,
			DependsOn: []string{"extract_subjects"},
			Input:     "{step.extract_subjects.meta.item_1}",
			OnFailure: OnFailureSkip,
		},
		{
			Name:      "answer",
			Role:      RoleAnswerSynthesizer,
			DependsOn: []string{"search_subject_a", "search_subject_b"},
			OnFailure: OnFailureAbort,
		},
	},
}

// MultiStepReasoning decomposes the query into up to three sub-questions,
// answers each independently, then aggregates into a final answer.
var MultiStepReasoning = Workflow{
	Name: WorkflowMultiStepReasoning,
	Steps: []Step{
		{
			Name: "decompose",
			Role: RoleCoordinator,
			Declaration: Declaration{
				PromptTemplate: "Break the following question into up to three simpler sub-questions needed to answer it.",
				MaxItems:       3,
			},
			OnFailure: OnFailureAbort,
		},
		{
			Name:      "sub_answer_1",
			Role:      RoleHybridSearcher,
			DependsOn: []string{"decompose"},
			Input:     "{step.decompose.meta.item_0}",
			OnFailure: OnFailureContinuePartial,
		},
		{
			Name:      "sub_answer_2",
			Role:      RoleHybridSearcher,
			DependsOn: []string{"decompose"},
			Input:     "{step.decompose.meta.item_1}",
			OnFailure: OnFailureSkip,
		},
		{
			Name:      "sub_answer_3",
			Role:      RoleHybridSearcher,
			DependsOn: []string{"decompose"},
			Input:     "{step.decompose.meta.item_2}",
			OnFailure: OnFailureSkip,
		},
		{
			Name:      "answer",
			Role:      RoleAnswerSynthesizer,
			DependsOn: []string{"sub_answer_1", "sub_answer_2", "sub_answer_3"},
			OnFailure: OnFailureAbort,
		},
	},
}

// FactChecking searches broadly, extracts up to three checkable claims,
// re-searches each independently, and scores the result for consistency.
var FactChecking = Workflow{
	Name: WorkflowFactChecking,
	Steps: []Step{
		{Name: "search", Role: RoleSemanticSearcher, OnFailure: OnFailureAbort},
		{
			Name: "extract_claims",
			Role: RoleCoordinator,
			Declaration: Declaration{
				PromptTemplate: "List up to three distinct, independently checkable factual claims implied by the following.",
				MaxItems:       3,
			},
			DependsOn: []string{"search"},
			OnFailure: OnFailureAbort,
		},
		{
			Name:      "check_claim_1",
			Role:      RoleHybridSearcher,
			DependsOn: []string{"extract_claims"},
			Input:     "{step.extract_claims.meta.item_0}",
			OnFailure: OnFailureSkip,
		},
		{
			Name:      "check_claim_2",
			Role:      RoleHybridSearcher,
			DependsOn: []string{"extract_claims"},
			Input:     "{step.extract_claims.meta.item_1}",
			OnFailure: OnFailureSkip,
		},
		{
			Name:      "check_claim_3",
			Role:      RoleHybridSearcher,
			DependsOn: []string{"extract_claims"},
			Input:     "{step.extract_claims.meta.item_2}",
			OnFailure: OnFailureSkip,
		},
		{
			Name:      "quality",
			Role:      RoleQualityAssessor,
			DependsOn: []string{"check_claim_1", "check_claim_2", "check_claim_3"},
			OnFailure: OnFailureSkip,
		},
	},
}

// Predefined is every workflow known to the orchestrator, keyed by name.
var Predefined = map[string]Workflow{
	WorkflowSimpleQA:            SimpleQA,
	WorkflowComplexResearch:     ComplexResearch,
	WorkflowComparativeAnalysis: ComparativeAnalysis,
	WorkflowMultiStepReasoning:  MultiStepReasoning,
	WorkflowFactChecking:        FactChecking,
}

var comparisonKeywords = []string{" vs ", " versus ", "compare", "difference between", "better than"}

var questionWords = []string{"why", "how", "what causes", "explain"}

// RecommendWorkflow picks a default workflow for a raw query using the same
// signals the original coordinator used implicitly through its mode list:
// query length, comparison language, and open-ended question words.
func RecommendWorkflow(query string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return WorkflowSimpleQA
	}

	for _, kw := range comparisonKeywords {
		if strings.Contains(q, kw) {
			return WorkflowComparativeAnalysis
		}
	}

	if strings.Contains(q, "fact check") || strings.Contains(q, "is it true") || strings.Contains(q, "verify") {
		return WorkflowFactChecking
	}

	wordCount := len(strings.Fields(q))
	for _, w := range questionWords {
		if strings.Contains(q, w) && wordCount > 12 {
			return WorkflowComplexResearch
		}
	}

	if strings.Count(q, "?") > 1 || wordCount > 25 {
		return WorkflowMultiStepReasoning
	}

	return WorkflowSimpleQA
}
