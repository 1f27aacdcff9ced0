package decompose

import (
	"strings"

	"kittycore/internal/task"
)

var complexityRank = map[task.Complexity]int{
	task.ComplexitySimple:   0,
	task.ComplexityMedium:   1,
	task.ComplexityHigh:     2,
	task.ComplexityVeryHigh: 3,
}

// ParseComplexity maps a free-form grade string onto a known complexity,
// reporting false for anything unrecognized.
func ParseComplexity(value string) (task.Complexity, bool) {
	c := task.Complexity(strings.ToLower(strings.TrimSpace(value)))
	_, ok := complexityRank[c]
	return c, ok
}

// Stricter returns the higher of two complexity grades. Used to let a model's
// assessment raise, but never lower, the deterministic estimate.
func Stricter(a, b task.Complexity) task.Complexity {
	if complexityRank[b] > complexityRank[a] {
		return b
	}
	return a
}

// structural markers that suggest a request bundles several pieces of work.
var multiPartMarkers = []string{" and ", " then ", " with ", ";", "\n- ", "\n1."}

var heavyKeywords = []string{
	"system", "platform", "service", "pipeline", "full", "complete",
	"database", "deploy", "integration",
}

// EstimateComplexity grades a task description. The estimator is heuristic
// and deterministic: word count plus structural signals. It errs toward the
// lower grade so trivial requests are not decomposed at all.
func EstimateComplexity(description string) task.Complexity {
	normalized := " " + strings.ToLower(strings.TrimSpace(description)) + " "
	words := len(strings.Fields(normalized))

	parts := 0
	for _, marker := range multiPartMarkers {
		parts += strings.Count(normalized, marker)
	}
	heavy := 0
	for _, keyword := range heavyKeywords {
		if strings.Contains(normalized, keyword) {
			heavy++
		}
	}

	switch {
	case words <= 12 && parts == 0 && heavy == 0:
		return task.ComplexitySimple
	case words <= 30 && heavy <= 1:
		return task.ComplexityMedium
	case words <= 60 || heavy <= 3:
		return task.ComplexityHigh
	default:
		return task.ComplexityVeryHigh
	}
}
