// Package orchestrator drives a task through its full lifecycle: analyze,
// decompose, execute with a team of agents, screen for fake results, judge
// with the validator, improve what scored poorly, and persist everything to
// the vault.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kittycore/internal/decompose"
	"kittycore/internal/detector"
	"kittycore/internal/jsonx"
	"kittycore/internal/kerrors"
	"kittycore/internal/llm"
	"kittycore/internal/logging"
	"kittycore/internal/memory"
	"kittycore/internal/task"
	"kittycore/internal/team"
	"kittycore/internal/validator"
	"kittycore/internal/vault"
)

// Outcome status values beyond the task lifecycle states.
const (
	StatusLLMUnavailable = "failed_llm_unavailable"
)

// Dependencies wires the orchestrator's collaborators. LLM, Decomposer,
// Executor, Detector, and Validator are required; Improver, Vault, Memory,
// and Metrics are optional and degrade to no-ops when absent.
type Dependencies struct {
	LLM        llm.Client
	Decomposer *decompose.Decomposer
	Executor   *team.Executor
	Improver   *team.Improver
	Detector   *detector.Detector
	Validator  *validator.Validator
	Vault      *vault.Vault
	Memory     *memory.Index
	Metrics    *Metrics
	Logger     logging.Logger
}

// Outcome is the end-to-end result of solving one task.
type Outcome struct {
	TaskID       string
	Status       string
	Duration     time.Duration
	CreatedFiles []string
	QualityScore float64
	Issues       []string
	ErrorKind    kerrors.Kind
	Message      string
	Trace        []task.ExecutionStepResult
}

// Orchestrator coordinates the whole pipeline for one task at a time.
// Instances are safe for sequential reuse; concurrent SolveTask calls get
// independent tasks and workspaces.
type Orchestrator struct {
	deps    Dependencies
	logger  logging.Logger
	metrics *Metrics
}

// New validates the dependency set and constructs an orchestrator.
func New(deps Dependencies) (*Orchestrator, error) {
	if deps.Decomposer == nil {
		return nil, fmt.Errorf("orchestrator requires a decomposer")
	}
	if deps.Executor == nil {
		return nil, fmt.Errorf("orchestrator requires an executor")
	}
	if deps.Detector == nil {
		return nil, fmt.Errorf("orchestrator requires a fake-result detector")
	}
	if deps.Validator == nil {
		return nil, fmt.Errorf("orchestrator requires a validator")
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = defaultMetrics()
	}
	return &Orchestrator{
		deps:    deps,
		logger:  logging.OrNop(deps.Logger),
		metrics: metrics,
	}, nil
}

// SolveTask runs the full pipeline for one task description. It returns a
// non-nil Outcome for every input, including failures; the error return is
// reserved for context cancellation and infrastructure breakage.
func (o *Orchestrator) SolveTask(ctx context.Context, description string) (*Outcome, error) {
	start := time.Now()
	o.metrics.IncActiveTasks()
	defer o.metrics.DecActiveTasks()

	t := task.New(description)
	o.logger.Info("task %s accepted: %s", t.ID, truncate(description, 120))
	o.saveTaskNote(ctx, t, "")

	// No model, no pipeline. The task is diagnosed and fails fast instead of
	// wandering into decomposition with nothing to call.
	if err := llm.Preflight(o.deps.LLM); err != nil {
		_ = t.Transition(task.StatusFailed)
		o.saveTaskNote(ctx, t, "language model unavailable: "+err.Error())
		o.metrics.IncStepFailure(string(kerrors.KindLLMUnavailable))
		return &Outcome{
			TaskID:    t.ID,
			Status:    StatusLLMUnavailable,
			Duration:  time.Since(start),
			ErrorKind: kerrors.KindLLMUnavailable,
			Message:   err.Error(),
			Issues:    []string{"language model is not configured; set an API key and model"},
		}, nil
	}

	// Analyze. The heuristic estimate is the floor; the model may raise the
	// grade but never lower it.
	stageStart := time.Now()
	_ = t.Transition(task.StatusAnalyzing)
	t.Complexity = decompose.EstimateComplexity(description)
	expected, modelComplexity := o.analyzeExpectedOutcome(ctx, description)
	t.ExpectedOutcome = expected
	if modelComplexity != "" {
		t.Complexity = decompose.Stricter(t.Complexity, modelComplexity)
	}
	o.metrics.ObserveStage("analyzing", "ok", time.Since(stageStart))
	o.saveTaskNote(ctx, t, "")
	o.logger.Info("task %s analyzed: complexity=%s result_type=%s",
		t.ID, t.Complexity, t.ExpectedOutcome.ResultType)

	// Decompose.
	stageStart = time.Now()
	subtasks, err := o.deps.Decomposer.Decompose(ctx, t, t.Complexity)
	if err != nil {
		o.metrics.ObserveStage("decomposing", "failed", time.Since(stageStart))
		return o.failTask(ctx, t, start, err), nil
	}
	_ = t.Transition(task.StatusDecomposed)
	o.metrics.ObserveStage("decomposing", "ok", time.Since(stageStart))
	o.saveTaskNote(ctx, t, "")
	o.saveSubtaskNotes(ctx, subtasks)
	o.logger.Info("task %s decomposed into %d subtasks", t.ID, len(subtasks))

	// Execute.
	stageStart = time.Now()
	_ = t.Transition(task.StatusExecuting)
	o.saveTaskNote(ctx, t, "")
	steps, agents, err := o.deps.Executor.Execute(ctx, subtasks)
	if err != nil {
		o.metrics.ObserveStage("executing", "failed", time.Since(stageStart))
		return nil, err
	}
	o.metrics.ObserveStage("executing", "ok", time.Since(stageStart))
	o.saveAgentNotes(ctx, t.ID, agents)

	// Validate, then improve what scored poorly.
	stageStart = time.Now()
	_ = t.Transition(task.StatusValidating)
	profile := validator.ProfileFor(t.ExpectedOutcome.ResultType)
	if err := o.validateSteps(ctx, t, profile, subtasks, steps); err != nil {
		o.metrics.ObserveStage("validating", "failed", time.Since(stageStart))
		return nil, err
	}
	o.metrics.ObserveStage("validating", "ok", time.Since(stageStart))

	outcome := o.aggregate(t, start, steps)
	o.persistRun(ctx, t, steps, outcome)
	return outcome, nil
}

// analyzeExpectedOutcome asks the model what a finished task should look like
// and how complex it judges the request to be. Best effort: on any failure a
// generic expectation and an empty complexity come back.
func (o *Orchestrator) analyzeExpectedOutcome(ctx context.Context, description string) (task.ExpectedOutcome, task.Complexity) {
	fallback := task.ExpectedOutcome{
		ResultType:        "generic",
		SuccessCriteria:   []string{"the requested work product exists and matches the request"},
		ValidationMethods: []string{"llm_judge"},
	}

	resp, err := o.deps.LLM.Complete(ctx, llm.Request{
		Prompt: fmt.Sprintf(`For the task below, state what a finished result looks like.
Task: %s

Respond with JSON:
{"result_type": "<application|content|analysis|generic>", "complexity": "<simple|medium|high|very_high>", "success_criteria": ["..."], "validation_methods": ["..."]}`, description),
		Temperature: 0,
	})
	if err != nil {
		o.logger.Warn("expected-outcome analysis failed, using generic expectation: %v", err)
		return fallback, ""
	}

	var decoded struct {
		task.ExpectedOutcome
		Complexity string `json:"complexity"`
	}
	payload := resp.Content
	if idx := strings.Index(payload, "{"); idx >= 0 {
		payload = payload[idx:]
	}
	if err := jsonx.Unmarshal([]byte(payload), &decoded); err != nil || decoded.ResultType == "" {
		o.logger.Warn("expected-outcome analysis was not parseable, using generic expectation")
		return fallback, ""
	}
	if complexity, ok := decompose.ParseComplexity(decoded.Complexity); ok {
		return decoded.ExpectedOutcome, complexity
	}
	return decoded.ExpectedOutcome, ""
}

// validateSteps screens every completed step with the detector, judges it
// with the validator, and hands poorly scored steps to the improver. Steps
// that failed during execution keep their failure untouched.
func (o *Orchestrator) validateSteps(ctx context.Context, t *task.Task, profile validator.Profile, subtasks []task.Subtask, steps []task.ExecutionStepResult) error {
	subtaskByID := make(map[string]task.Subtask, len(subtasks))
	for _, st := range subtasks {
		subtaskByID[st.ID] = st
	}
	depOutputs := func(st task.Subtask) map[string]string {
		outputs := make(map[string]string, len(st.Dependencies))
		for i := range steps {
			for _, dep := range st.Dependencies {
				if steps[i].StepID == dep && steps[i].Status == task.StatusCompleted {
					outputs[dep] = steps[i].Result.Data
				}
			}
		}
		return outputs
	}

	for i := range steps {
		step := &steps[i]
		if step.Status == task.StatusFailed {
			o.metrics.IncStepFailure(string(step.FailureKind))
			continue
		}
		st := subtaskByID[step.StepID]

		verdict, err := o.deps.Validator.ValidateWithProfile(ctx, profile, st.Description, step.Result, step.FilesCreated)
		if err != nil {
			// The judge itself broke. The step cannot be trusted either way.
			step.Status = task.StatusFailed
			step.FailureReason = err.Error()
			step.FailureKind = kerrors.KindValidation
			o.metrics.IncStepFailure(string(kerrors.KindValidation))
			o.logger.Error("validation of step %s failed: %v", step.StepID, err)
			continue
		}
		step.Validation = &verdict
		isFake := o.screenStep(st, step)

		if o.deps.Improver != nil && o.deps.Improver.Needed(*step) {
			if err := o.improveStep(ctx, t, profile, st, depOutputs(st), step); err != nil {
				return err
			}
			// The winning attempt gets the same scrutiny as the original;
			// an improvement cannot launder a fake result.
			isFake = o.screenStep(st, step)
		}

		// A critical indicator that survived improvement means the result
		// claims work that cannot have happened. The step never completes.
		if isFake && step.Status != task.StatusFailed {
			if ind, ok := criticalIndicator(step.FakeIndicators); ok {
				step.Status = task.StatusFailed
				step.FailureKind = kerrors.KindFakeDetected
				step.FailureReason = kerrors.NewTaskError(kerrors.KindFakeDetected, ind.Description, nil).Error()
				o.logger.Error("step %s failed fake screening: %s", step.StepID, ind.Description)
			}
		}
	}
	return nil
}

// screenStep runs the fake-result checks on the step's current result and
// overrides the judge's verdict when the checks flag it. Returns whether the
// result was judged fake.
func (o *Orchestrator) screenStep(st task.Subtask, step *task.ExecutionStepResult) bool {
	isFake, indicators := o.deps.Detector.Detect(step.AgentID, st.Description, step.Result)
	step.FakeIndicators = indicators
	step.HonestyScore = detector.HonestyScore(indicators)
	if !isFake || step.Validation == nil {
		return isFake
	}
	step.Validation.IsValid = false
	if step.Validation.Score > 0.2 {
		step.Validation.Score = 0.2
	}
	step.Validation.Issues = append(step.Validation.Issues, "result was flagged as fake by deterministic checks")
	o.metrics.IncStepFailure(string(kerrors.KindFakeDetected))
	return isFake
}

// criticalIndicator returns the first critical-severity indicator, if any.
func criticalIndicator(indicators []task.FakeIndicator) (task.FakeIndicator, bool) {
	for _, ind := range indicators {
		if ind.Severity == task.SeverityCritical {
			return ind, true
		}
	}
	return task.FakeIndicator{}, false
}

// improveStep runs the bounded retry loop for one step, moving the task
// through improving → executing for each round trip.
func (o *Orchestrator) improveStep(ctx context.Context, t *task.Task, profile validator.Profile, st task.Subtask, depOutputs map[string]string, step *task.ExecutionStepResult) error {
	_ = t.Transition(task.StatusImproving)
	defer func() {
		_ = t.Transition(task.StatusExecuting)
		_ = t.Transition(task.StatusValidating)
	}()

	agent := team.NewAgent(o.deps.LLM, o.logger, o.deps.Executor.Workspace(), st)
	attempts, err := o.deps.Improver.Improve(ctx, agent, st, depOutputs, profile, st.Description, step)
	if err != nil {
		if kerrors.IsKind(err, kerrors.KindValidation) {
			step.Status = task.StatusFailed
			step.FailureReason = err.Error()
			step.FailureKind = kerrors.KindValidation
			o.metrics.IncStepFailure(string(kerrors.KindValidation))
			return nil
		}
		return err
	}

	outcome := "unchanged"
	if step.IterativelyImproved {
		outcome = "improved"
	}
	for range attempts {
		o.metrics.IncImprovement(outcome)
	}
	o.saveAttemptNotes(ctx, t.ID, step.StepID, attempts)
	return nil
}

// aggregate folds the per-step results into the task outcome. The task
// completes only when every step completed; any failed step fails the task,
// but the surviving steps' artifacts are still reported.
func (o *Orchestrator) aggregate(t *task.Task, start time.Time, steps []task.ExecutionStepResult) *Outcome {
	outcome := &Outcome{
		TaskID: t.ID,
		Trace:  steps,
	}

	var scoreSum float64
	var scored int
	failed := 0
	for _, step := range steps {
		outcome.CreatedFiles = append(outcome.CreatedFiles, step.FilesCreated...)
		if step.Validation != nil {
			scoreSum += step.Validation.Score
			scored++
			outcome.Issues = append(outcome.Issues, step.Validation.Issues...)
		}
		if step.Status == task.StatusFailed {
			failed++
			if step.FailureReason != "" {
				outcome.Issues = append(outcome.Issues, fmt.Sprintf("%s: %s", step.StepID, step.FailureReason))
			}
		}
	}
	if scored > 0 {
		outcome.QualityScore = scoreSum / float64(scored)
	}

	if failed == 0 && len(steps) > 0 {
		_ = t.Transition(task.StatusCompleted)
		outcome.Status = string(task.StatusCompleted)
		outcome.Message = fmt.Sprintf("%d/%d subtasks completed", len(steps), len(steps))
	} else {
		_ = t.Transition(task.StatusFailed)
		outcome.Status = string(task.StatusFailed)
		outcome.Message = fmt.Sprintf("%d/%d subtasks failed", failed, len(steps))
		outcome.ErrorKind = dominantKind(steps)
	}
	outcome.Duration = time.Since(start)

	o.logger.Info("task %s finished: status=%s quality=%.2f files=%d in %s",
		t.ID, outcome.Status, outcome.QualityScore, len(outcome.CreatedFiles), outcome.Duration)
	return outcome
}

// dominantKind picks the error kind reported on the outcome when steps failed.
// Upstream skips are symptoms, so a root-cause kind wins when present.
func dominantKind(steps []task.ExecutionStepResult) kerrors.Kind {
	present := make(map[kerrors.Kind]bool)
	for _, step := range steps {
		if step.Status == task.StatusFailed {
			present[step.FailureKind] = true
		}
	}
	for _, kind := range []kerrors.Kind{
		kerrors.KindFakeDetected,
		kerrors.KindValidation,
		kerrors.KindProvider,
		kerrors.KindUpstreamDependency,
	} {
		if present[kind] {
			return kind
		}
	}
	return kerrors.KindProvider
}

func (o *Orchestrator) failTask(ctx context.Context, t *task.Task, start time.Time, err error) *Outcome {
	kind := kerrors.KindOf(err)
	_ = t.Transition(task.StatusFailed)
	o.saveTaskNote(ctx, t, err.Error())
	o.metrics.IncStepFailure(string(kind))
	o.logger.Error("task %s failed: %v", t.ID, err)
	return &Outcome{
		TaskID:    t.ID,
		Status:    string(task.StatusFailed),
		Duration:  time.Since(start),
		ErrorKind: kind,
		Message:   err.Error(),
		Issues:    []string{err.Error()},
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
