package team

import (
	"context"
	"fmt"
	"strings"

	"kittycore/internal/logging"
	"kittycore/internal/task"
	"kittycore/internal/validator"
)

// ImproverConfig configures the improvement loop.
type ImproverConfig struct {
	Validator *validator.Validator
	Logger    logging.Logger
	// TargetScore is the validation score below which improvement triggers
	// and at which it stops (default 0.6).
	TargetScore float64
	// MaxAttempts bounds the retry loop (default 3).
	MaxAttempts int
}

// Improver retries poorly validated steps with the validator's feedback fed
// back into the worker's prompt. The loop is bounded and keeps the best
// attempt seen, never a worse one.
type Improver struct {
	validator   *validator.Validator
	logger      logging.Logger
	targetScore float64
	maxAttempts int
}

// Attempt records one improvement retry for audit.
type Attempt struct {
	Number    int
	RawOutput string
	Result    task.Result
	Files     []string
	Verdict   task.ValidationVerdict
}

// NewImprover constructs the improvement loop.
func NewImprover(cfg ImproverConfig) (*Improver, error) {
	if cfg.Validator == nil {
		return nil, fmt.Errorf("improver requires a validator")
	}
	if cfg.TargetScore <= 0 {
		cfg.TargetScore = 0.6
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Improver{
		validator:   cfg.Validator,
		logger:      logging.OrNop(cfg.Logger),
		targetScore: cfg.TargetScore,
		maxAttempts: cfg.MaxAttempts,
	}, nil
}

// Needed reports whether the step's verdict is bad enough to retry.
func (im *Improver) Needed(step task.ExecutionStepResult) bool {
	return step.Validation != nil && step.Validation.Score < im.targetScore
}

// Improve retries the step up to the attempt cap. Every retry is judged under
// the same profile that produced the failing verdict, so attempts compete on
// equal terms. The step is updated in place with the best attempt; the first
// verdict is preserved under OriginalValidation, and every attempt made is
// returned for audit even when none of them won.
func (im *Improver) Improve(ctx context.Context, agent *Agent, st task.Subtask, depOutputs map[string]string, profile validator.Profile, taskDescription string, step *task.ExecutionStepResult) ([]Attempt, error) {
	if !im.Needed(*step) {
		return nil, nil
	}

	original := *step.Validation
	step.OriginalValidation = &original

	bestScore := step.Validation.Score
	// Feedback always carries the most recent verdict, even when that attempt
	// scored worse than the best one kept so far.
	lastVerdict := *step.Validation
	var attempts []Attempt

	for attempt := 1; attempt <= im.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempts, err
		}

		feedback := im.feedback(lastVerdict)
		retry := agent.Refine(ctx, st, depOutputs, feedback)
		if retry.Status == task.StatusFailed {
			im.logger.Warn("improvement attempt %d for %s failed to execute: %s",
				attempt, st.ID, retry.FailureReason)
			attempts = append(attempts, Attempt{Number: attempt, RawOutput: retry.RawOutput, Result: retry.Result})
			step.ImprovementAttempts = attempt
			continue
		}

		verdict, err := im.validator.ValidateWithProfile(ctx, profile, taskDescription, retry.Result, retry.FilesCreated)
		if err != nil {
			return attempts, err
		}
		lastVerdict = verdict

		attempts = append(attempts, Attempt{
			Number:    attempt,
			RawOutput: retry.RawOutput,
			Result:    retry.Result,
			Files:     retry.FilesCreated,
			Verdict:   verdict,
		})
		step.ImprovementAttempts = attempt

		if verdict.Score > bestScore {
			bestScore = verdict.Score
			step.RawOutput = retry.RawOutput
			step.Result = retry.Result
			step.FilesCreated = retry.FilesCreated
			v := verdict
			step.Validation = &v
			step.IterativelyImproved = true
			im.logger.Info("subtask %s improved to score %.2f on attempt %d", st.ID, verdict.Score, attempt)
		}

		if bestScore >= im.targetScore {
			break
		}
	}

	return attempts, nil
}

// feedback flattens a failing verdict into retry instructions.
func (im *Improver) feedback(verdict task.ValidationVerdict) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Verdict: %s (score %.2f)\n", verdict.Verdict, verdict.Score)
	if verdict.ExpectedResult != "" {
		fmt.Fprintf(&b, "Expected result: %s\n", verdict.ExpectedResult)
	}
	for _, issue := range verdict.Issues {
		fmt.Fprintf(&b, "- issue: %s\n", issue)
	}
	for _, rec := range verdict.Recommendations {
		fmt.Fprintf(&b, "- recommendation: %s\n", rec)
	}
	return b.String()
}
