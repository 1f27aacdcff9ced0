package task

import "kittycore/internal/kerrors"

// Result is the stable shape every producer returns. Detectors and validators
// consume this one struct instead of reflecting on arbitrary attributes.
type Result struct {
	Success  bool              `json:"success"`
	Data     string            `json:"data"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Meta returns the metadata value for key, or "" when absent.
func (r Result) Meta(key string) string {
	if r.Metadata == nil {
		return ""
	}
	return r.Metadata[key]
}

// ValidationVerdict is the structured judgment of whether a produced result
// satisfies the task's expected outcome. Immutable once created; improvement
// attempts produce new verdicts instead of mutating old ones.
type ValidationVerdict struct {
	IsValid         bool     `json:"is_valid"`
	Score           float64  `json:"score"`
	Verdict         string   `json:"verdict"`
	Issues          []string `json:"issues,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
	ExpectedResult  string   `json:"expected_result,omitempty"`
}

// IndicatorType classifies the evidence behind a fake-result indicator.
type IndicatorType string

const (
	IndicatorPattern        IndicatorType = "pattern"
	IndicatorMissingKey     IndicatorType = "missing_key"
	IndicatorNoSideEffect   IndicatorType = "no_side_effect"
	IndicatorSuspiciousData IndicatorType = "suspicious_data"
)

// Severity grades how damning an indicator is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// FakeIndicator is evidence that a result is a stand-in rather than genuine
// work product.
type FakeIndicator struct {
	Type        IndicatorType `json:"type"`
	Severity    Severity      `json:"severity"`
	Description string        `json:"description"`
	Confidence  float64       `json:"confidence"`
}

// ExecutionStepResult records one agent run for one subtask. When the
// improver supersedes a result, the first verdict is kept under
// OriginalValidation for audit.
type ExecutionStepResult struct {
	StepID              string             `json:"step_id"`
	AgentID             string             `json:"agent_id"`
	RawOutput           string             `json:"raw_output"`
	Result              Result             `json:"result"`
	FilesCreated        []string           `json:"files_created,omitempty"`
	Status              Status             `json:"status"`
	FailureReason       string             `json:"failure_reason,omitempty"`
	FailureKind         kerrors.Kind       `json:"failure_kind,omitempty"`
	Validation          *ValidationVerdict `json:"validation,omitempty"`
	OriginalValidation  *ValidationVerdict `json:"original_validation,omitempty"`
	FakeIndicators      []FakeIndicator    `json:"fake_indicators,omitempty"`
	HonestyScore        float64            `json:"honesty_score"`
	IterativelyImproved bool               `json:"iteratively_improved,omitempty"`
	ImprovementAttempts int                `json:"improvement_attempts,omitempty"`
}
