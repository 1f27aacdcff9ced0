package team

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"kittycore/internal/kerrors"
	"kittycore/internal/llm"
	"kittycore/internal/logging"
	"kittycore/internal/task"
)

// ExecutorConfig configures the workflow executor.
type ExecutorConfig struct {
	LLM    llm.Client
	Logger logging.Logger
	// Workspace is the root directory agents write artifacts under.
	Workspace string
	// MaxConcurrency caps simultaneous agents (default 4).
	MaxConcurrency int
}

// Executor runs a subtask set in dependency order, one agent per subtask.
// Subtasks in the same ready wave run concurrently up to the concurrency cap.
type Executor struct {
	llm            llm.Client
	logger         logging.Logger
	workspace      string
	maxConcurrency int
}

// NewExecutor constructs an executor.
func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	if cfg.LLM == nil {
		return nil, fmt.Errorf("executor requires an LLM client")
	}
	if cfg.Workspace == "" {
		return nil, fmt.Errorf("executor requires a workspace directory")
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	return &Executor{
		llm:            cfg.LLM,
		logger:         logging.OrNop(cfg.Logger),
		workspace:      cfg.Workspace,
		maxConcurrency: cfg.MaxConcurrency,
	}, nil
}

// Workspace returns the root directory agents write artifacts under, so
// retry agents can be pointed at the same tree.
func (e *Executor) Workspace() string {
	return e.workspace
}

// Execute runs every subtask whose dependencies all completed, wave by wave.
// A failed subtask does not abort the run: subtasks that depend on it are
// marked failed with an upstream-dependency reason, while independent
// subtasks keep executing. Results come back in the input order.
func (e *Executor) Execute(ctx context.Context, subtasks []task.Subtask) ([]task.ExecutionStepResult, []task.AgentRecord, error) {
	if len(subtasks) == 0 {
		return nil, nil, nil
	}

	byID := make(map[string]task.Subtask, len(subtasks))
	for _, st := range subtasks {
		if _, dup := byID[st.ID]; dup {
			return nil, nil, fmt.Errorf("duplicate subtask id %s", st.ID)
		}
		byID[st.ID] = st
	}

	var (
		mu      sync.Mutex
		steps   = make(map[string]task.ExecutionStepResult, len(subtasks))
		agents  = make([]task.AgentRecord, 0, len(subtasks))
		pending = make(map[string]task.Subtask, len(subtasks))
	)
	for _, st := range subtasks {
		pending[st.ID] = st
	}

	for len(pending) > 0 {
		ready, blocked := e.partition(pending, steps, byID)

		// Nothing runnable and nothing newly blocked means a dependency
		// cycle or a reference to an unknown subtask.
		if len(ready) == 0 && len(blocked) == 0 {
			for id := range pending {
				steps[id] = unresolvableStep(pending[id])
				delete(pending, id)
			}
			break
		}

		for _, st := range blocked {
			steps[st.ID] = upstreamFailedStep(st, e.failedDeps(st, steps))
			delete(pending, st.ID)
		}

		if len(ready) == 0 {
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.maxConcurrency)
		for _, st := range ready {
			st := st
			delete(pending, st.ID)
			g.Go(func() error {
				agent := NewAgent(e.llm, e.logger, e.workspace, st)
				depOutputs := e.collectDepOutputs(st, steps, &mu)

				step := agent.Run(gctx, st, depOutputs)

				mu.Lock()
				steps[st.ID] = step
				agents = append(agents, agent.Record())
				mu.Unlock()

				e.logger.Info("subtask %s finished with status %s", st.ID, step.Status)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
	}

	ordered := make([]task.ExecutionStepResult, 0, len(subtasks))
	for _, st := range subtasks {
		ordered = append(ordered, steps[st.ID])
	}
	sort.Slice(agents, func(i, j int) bool {
		return agents[i].AssignedSubtaskID < agents[j].AssignedSubtaskID
	})
	return ordered, agents, nil
}

// partition splits the pending set into subtasks ready to run (all deps
// completed) and subtasks permanently blocked (some dep failed).
func (e *Executor) partition(pending map[string]task.Subtask, steps map[string]task.ExecutionStepResult, byID map[string]task.Subtask) (ready, blocked []task.Subtask) {
	for _, st := range pending {
		runnable := true
		failed := false
		for _, dep := range st.Dependencies {
			if _, known := byID[dep]; !known {
				failed = true
				break
			}
			done, ok := steps[dep]
			if !ok {
				// Dependency has not run yet; wait for a later wave.
				runnable = false
				continue
			}
			if done.Status == task.StatusFailed {
				failed = true
				break
			}
		}
		switch {
		case failed:
			blocked = append(blocked, st)
		case runnable:
			ready = append(ready, st)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].ID < ready[j].ID })
	sort.Slice(blocked, func(i, j int) bool { return blocked[i].ID < blocked[j].ID })
	return ready, blocked
}

func (e *Executor) collectDepOutputs(st task.Subtask, steps map[string]task.ExecutionStepResult, mu *sync.Mutex) map[string]string {
	outputs := make(map[string]string, len(st.Dependencies))
	mu.Lock()
	defer mu.Unlock()
	for _, dep := range st.Dependencies {
		if done, ok := steps[dep]; ok && done.Status == task.StatusCompleted {
			outputs[dep] = done.Result.Data
		}
	}
	return outputs
}

func (e *Executor) failedDeps(st task.Subtask, steps map[string]task.ExecutionStepResult) []string {
	var failed []string
	for _, dep := range st.Dependencies {
		if done, ok := steps[dep]; ok && done.Status == task.StatusFailed {
			failed = append(failed, dep)
		} else if !ok {
			failed = append(failed, dep)
		}
	}
	sort.Strings(failed)
	return failed
}

// upstreamFailedStep records a subtask skipped because a prerequisite failed.
// The subtask is never executed; its failure reason names the culprits.
func upstreamFailedStep(st task.Subtask, failedDeps []string) task.ExecutionStepResult {
	err := kerrors.NewTaskError(kerrors.KindUpstreamDependency,
		fmt.Sprintf("skipped: dependencies failed: %s", strings.Join(failedDeps, ", ")), nil)
	return task.ExecutionStepResult{
		StepID:        st.ID,
		Status:        task.StatusFailed,
		FailureReason: err.Error(),
		FailureKind:   kerrors.KindUpstreamDependency,
		Result:        task.Result{Success: false},
	}
}

func unresolvableStep(st task.Subtask) task.ExecutionStepResult {
	err := kerrors.NewTaskError(kerrors.KindUpstreamDependency,
		"skipped: unresolvable dependency graph", nil)
	return task.ExecutionStepResult{
		StepID:        st.ID,
		Status:        task.StatusFailed,
		FailureReason: err.Error(),
		FailureKind:   kerrors.KindUpstreamDependency,
		Result:        task.Result{Success: false},
	}
}
