package agent

import (
	"context"
	"strconv"
	"strings"
)

// assessQuality scores a synthesized answer deterministically, generalizing
// QualityAssessmentAgent / _assess_quality's heuristics: a base score lifted
// by enough supporting sources and by those sources' own confidence, plus
// clarity/consistency checks that don't need an LLM call.
func assessQuality(answer string, sourceCount int, avgSourceScore float64) Quality {
	completeness := 0.8
	if sourceCount >= 3 {
		completeness += 0.1
	}
	if sourceCount == 0 {
		completeness = 0.3
	}

	accuracy := 0.9
	if avgSourceScore > 0 {
		accuracy = min1(0.9 + avgSourceScore*0.05)
	}

	trimmed := strings.TrimSpace(answer)
	clarity := 0.85
	switch {
	case trimmed == "":
		clarity = 0.0
	case len(trimmed) < 20:
		clarity = 0.5
	}

	consistency := 0.85
	if strings.Contains(strings.ToLower(trimmed), "couldn't find") || strings.Contains(strings.ToLower(trimmed), "insufficient") {
		consistency = 0.6
	}

	confidence := min1((completeness + accuracy + clarity + consistency) / 4)

	assessment := "answer quality is good"
	if confidence <= 0.7 {
		assessment = "answer quality is mediocre, consider a broader search"
	}

	return Quality{
		Completeness: completeness,
		Accuracy:     accuracy,
		Clarity:      clarity,
		Consistency:  consistency,
		Confidence:   confidence,
		Assessment:   assessment,
	}
}

func min1(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	return v
}

// assessRuntime wraps assessQuality as a workflow Step so quality
// assessment can be composed into a DAG like any other agent, its resolved
// input carrying whatever upstream Sources/Text the workflow wired in.
func assessRuntime(ctx context.Context, in Input, resolved StepOutput, decl Declaration, deps Deps) (StepOutput, error) {
	var total float64
	for _, s := range resolved.Sources {
		total += s.Score
	}
	avg := 0.0
	if len(resolved.Sources) > 0 {
		avg = total / float64(len(resolved.Sources))
	}
	q := assessQuality(resolved.Text, len(resolved.Sources), avg)

	return StepOutput{
		Text: q.Assessment,
		Meta: map[string]string{
			"completeness": formatScore(q.Completeness),
			"accuracy":     formatScore(q.Accuracy),
			"clarity":      formatScore(q.Clarity),
			"consistency":  formatScore(q.Consistency),
			"confidence":   formatScore(q.Confidence),
		},
	}, nil
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func parseScore(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
