// Package team executes a decomposed task: one worker agent per subtask,
// scheduled in dependency order, with an improvement loop for results that
// validate poorly.
package team

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"kittycore/internal/id"
	"kittycore/internal/kerrors"
	"kittycore/internal/llm"
	"kittycore/internal/logging"
	"kittycore/internal/task"
)

// fileBlock matches the artifact convention workers are prompted to use:
//
//	FILE: relative/path.ext
//	```lang
//	<content>
//	```
var fileBlock = regexp.MustCompile("FILE:[ \t]*(\\S+)[ \t]*\r?\n```\\w*\r?\n(?s:(.*?))```")

// Agent is one worker bound to one subtask for its whole lifetime.
type Agent struct {
	record    task.AgentRecord
	llm       llm.Client
	logger    logging.Logger
	workspace string
}

// NewAgent binds a fresh worker to st. Artifacts it produces land under
// workspace.
func NewAgent(client llm.Client, logger logging.Logger, workspace string, st task.Subtask) *Agent {
	role := "generalist"
	if len(st.RequiredSkills) > 0 {
		role = strings.Join(st.RequiredSkills, "+")
	}
	return &Agent{
		record: task.AgentRecord{
			ID:                id.NewAgentID(),
			Role:              role,
			AssignedSubtaskID: st.ID,
			Status:            task.AgentActive,
		},
		llm:       client,
		logger:    logging.OrNop(logger),
		workspace: workspace,
	}
}

// Record returns the agent's bookkeeping record.
func (a *Agent) Record() task.AgentRecord {
	return a.record
}

// Run executes the subtask. depOutputs carries the textual output of every
// completed dependency, keyed by subtask id, so the worker can build on
// upstream work.
func (a *Agent) Run(ctx context.Context, st task.Subtask, depOutputs map[string]string) task.ExecutionStepResult {
	return a.run(ctx, st, depOutputs, "")
}

// Refine re-executes the subtask with validator feedback appended to the
// prompt. Used by the improvement loop.
func (a *Agent) Refine(ctx context.Context, st task.Subtask, depOutputs map[string]string, feedback string) task.ExecutionStepResult {
	return a.run(ctx, st, depOutputs, feedback)
}

func (a *Agent) run(ctx context.Context, st task.Subtask, depOutputs map[string]string, feedback string) task.ExecutionStepResult {
	step := task.ExecutionStepResult{
		StepID:  st.ID,
		AgentID: a.record.ID,
		Status:  task.StatusExecuting,
	}

	resp, err := a.llm.Complete(ctx, llm.Request{
		Prompt: a.prompt(st, depOutputs, feedback),
		System: "You are a diligent worker agent. Do the work, do not describe a plan. " +
			"Emit every file you produce as a FILE block.",
	})
	if err != nil {
		a.record.Status = task.AgentFailed
		step.Status = task.StatusFailed
		step.FailureReason = err.Error()
		step.FailureKind = kerrors.KindProvider
		step.Result = task.Result{Success: false, Data: ""}
		return step
	}

	step.RawOutput = resp.Content
	files, cleaned, writeErr := a.materialize(st.ID, resp.Content)
	if writeErr != nil {
		a.record.Status = task.AgentFailed
		step.Status = task.StatusFailed
		step.FailureReason = fmt.Sprintf("writing artifacts: %v", writeErr)
		step.FailureKind = kerrors.KindProvider
		step.Result = task.Result{Success: false, Data: cleaned}
		return step
	}

	step.FilesCreated = files
	step.Result = task.Result{
		Success:  true,
		Data:     cleaned,
		Metadata: map[string]string{},
	}
	if len(files) > 0 {
		step.Result.Metadata["file_path"] = strings.Join(files, ",")
	}
	a.record.Status = task.AgentCompleted
	step.Status = task.StatusCompleted
	return step
}

func (a *Agent) prompt(st task.Subtask, depOutputs map[string]string, feedback string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Subtask: %s\n", st.Description)
	if len(st.RequiredSkills) > 0 {
		fmt.Fprintf(&b, "Required skills: %s\n", strings.Join(st.RequiredSkills, ", "))
	}

	for _, dep := range st.Dependencies {
		if out, ok := depOutputs[dep]; ok && strings.TrimSpace(out) != "" {
			fmt.Fprintf(&b, "\nOutput of prerequisite %s:\n%s\n", dep, out)
		}
	}

	if feedback != "" {
		fmt.Fprintf(&b, "\nYour previous attempt was rejected. Fix these problems:\n%s\n", feedback)
	}

	b.WriteString(`
Produce the actual deliverable now. For every file, emit:
FILE: relative/path.ext
` + "```" + `
<full file content>
` + "```" + `
Any text outside FILE blocks is treated as your summary.`)
	return b.String()
}

// materialize writes the output's FILE blocks under the agent's workspace and
// returns the written paths plus the output with the blocks stripped. Paths
// are confined to the workspace; an escaping path fails the whole step.
func (a *Agent) materialize(stepID, output string) (files []string, cleaned string, err error) {
	cleaned = output
	matches := fileBlock.FindAllStringSubmatchIndex(output, -1)
	if len(matches) == 0 {
		return nil, strings.TrimSpace(cleaned), nil
	}

	root := filepath.Join(a.workspace, stepID)
	for _, m := range matches {
		rel := output[m[2]:m[3]]
		content := output[m[4]:m[5]]

		clean := filepath.Clean(rel)
		if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return nil, cleaned, fmt.Errorf("artifact path %q escapes the workspace", rel)
		}

		dst := filepath.Join(root, clean)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return nil, cleaned, err
		}
		if err := os.WriteFile(dst, []byte(content), 0o644); err != nil {
			return nil, cleaned, err
		}
		files = append(files, dst)
		a.logger.Debug("agent %s wrote %s", a.record.ID, dst)
	}

	cleaned = strings.TrimSpace(fileBlock.ReplaceAllString(output, ""))
	return files, cleaned, nil
}
