package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"kittycore/internal/task"
	"kittycore/internal/team"
	"kittycore/internal/vault"
)

// Persistence is best effort throughout: a vault or memory failure is logged
// and the pipeline keeps going, because losing a note must never lose a task.

func (o *Orchestrator) saveTaskNote(ctx context.Context, t *task.Task, failure string) {
	if o.deps.Vault == nil {
		return
	}
	note := &vault.Note{
		ID:     t.ID,
		Folder: vault.FolderTasks,
		Title:  truncate(t.Description, 80),
		Fields: map[string]string{
			"status":     string(t.Status),
			"complexity": string(t.Complexity),
		},
		CreatedAt: t.CreatedAt,
		Body:      t.Description,
	}
	if t.ExpectedOutcome.ResultType != "" {
		note.Fields["result_type"] = t.ExpectedOutcome.ResultType
	}
	if failure != "" {
		note.Fields["failure"] = failure
	}
	if _, err := o.deps.Vault.Save(ctx, note); err != nil {
		o.logger.Warn("saving task note %s: %v", t.ID, err)
	}
}

func (o *Orchestrator) saveSubtaskNotes(ctx context.Context, subtasks []task.Subtask) {
	if o.deps.Vault == nil {
		return
	}
	for _, st := range subtasks {
		note := &vault.Note{
			ID:     st.ID,
			Folder: vault.FolderSubtasks,
			Title:  truncate(st.Description, 80),
			Fields: map[string]string{
				"parent_task": st.ParentTaskID,
				"status":      string(st.Status),
			},
			Body: st.Description,
		}
		if len(st.Dependencies) > 0 {
			note.Fields["dependencies"] = strings.Join(st.Dependencies, ",")
		}
		if len(st.RequiredSkills) > 0 {
			note.Fields["required_skills"] = strings.Join(st.RequiredSkills, ",")
		}
		if _, err := o.deps.Vault.Save(ctx, note); err != nil {
			o.logger.Warn("saving subtask note %s: %v", st.ID, err)
		}
	}
}

func (o *Orchestrator) saveAgentNotes(ctx context.Context, taskID string, agents []task.AgentRecord) {
	if o.deps.Vault == nil {
		return
	}
	for _, agent := range agents {
		note := &vault.Note{
			ID:     agent.ID,
			Folder: vault.FolderAgents,
			Title:  fmt.Sprintf("%s (%s)", agent.ID, agent.Role),
			Fields: map[string]string{
				"task":    taskID,
				"subtask": agent.AssignedSubtaskID,
				"role":    agent.Role,
				"status":  string(agent.Status),
			},
		}
		if _, err := o.deps.Vault.Save(ctx, note); err != nil {
			o.logger.Warn("saving agent note %s: %v", agent.ID, err)
		}
	}
}

// saveAttemptNotes records every improvement attempt, winners and losers
// alike, so a failed run can be audited afterwards.
func (o *Orchestrator) saveAttemptNotes(ctx context.Context, taskID, stepID string, attempts []team.Attempt) {
	if o.deps.Vault == nil {
		return
	}
	for _, attempt := range attempts {
		note := &vault.Note{
			ID:     fmt.Sprintf("%s-attempt-%02d", stepID, attempt.Number),
			Folder: vault.FolderResults,
			Title:  fmt.Sprintf("improvement attempt %d for %s", attempt.Number, stepID),
			Fields: map[string]string{
				"task":    taskID,
				"step":    stepID,
				"attempt": strconv.Itoa(attempt.Number),
				"score":   fmt.Sprintf("%.2f", attempt.Verdict.Score),
				"valid":   strconv.FormatBool(attempt.Verdict.IsValid),
			},
			Body: attempt.Result.Data,
		}
		if _, err := o.deps.Vault.Save(ctx, note); err != nil {
			o.logger.Warn("saving attempt note for %s: %v", stepID, err)
		}
	}
}

// persistRun writes per-step result notes, a run summary note, and feeds the
// summary into semantic memory.
func (o *Orchestrator) persistRun(ctx context.Context, t *task.Task, steps []task.ExecutionStepResult, outcome *Outcome) {
	o.saveTaskNote(ctx, t, "")

	if o.deps.Vault != nil {
		for _, step := range steps {
			note := &vault.Note{
				ID:     step.StepID + "-result",
				Folder: vault.FolderResults,
				Title:  fmt.Sprintf("result of %s", step.StepID),
				Fields: map[string]string{
					"task":    t.ID,
					"step":    step.StepID,
					"agent":   step.AgentID,
					"status":  string(step.Status),
					"honesty": fmt.Sprintf("%.2f", step.HonestyScore),
				},
				Body: step.Result.Data,
			}
			if step.Validation != nil {
				note.Fields["score"] = fmt.Sprintf("%.2f", step.Validation.Score)
				note.Fields["valid"] = strconv.FormatBool(step.Validation.IsValid)
			}
			if step.IterativelyImproved {
				note.Fields["improved"] = "true"
				note.Fields["attempts"] = strconv.Itoa(step.ImprovementAttempts)
			}
			if len(step.FilesCreated) > 0 {
				note.Fields["files"] = strings.Join(step.FilesCreated, ",")
			}
			if _, err := o.deps.Vault.Save(ctx, note); err != nil {
				o.logger.Warn("saving result note for %s: %v", step.StepID, err)
			}
		}

		summary := &vault.Note{
			ID:     t.ID + "-summary",
			Folder: vault.FolderSystem,
			Title:  fmt.Sprintf("run summary for %s", t.ID),
			Fields: map[string]string{
				"task":     t.ID,
				"status":   outcome.Status,
				"quality":  fmt.Sprintf("%.2f", outcome.QualityScore),
				"duration": outcome.Duration.String(),
				"files":    strconv.Itoa(len(outcome.CreatedFiles)),
			},
			Tags: []string{"run-summary"},
			Body: o.summaryBody(t, outcome),
		}
		if _, err := o.deps.Vault.Save(ctx, summary); err != nil {
			o.logger.Warn("saving run summary for %s: %v", t.ID, err)
		}
	}

	if o.deps.Memory != nil {
		_, err := o.deps.Memory.Remember(ctx,
			fmt.Sprintf("task %q finished %s with quality %.2f", t.Description, outcome.Status, outcome.QualityScore),
			map[string]string{"task_id": t.ID, "status": outcome.Status},
			[]string{"run-summary"},
		)
		if err != nil {
			o.logger.Warn("remembering run %s: %v", t.ID, err)
		}
	}
}

func (o *Orchestrator) summaryBody(t *task.Task, outcome *Outcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", truncate(t.Description, 120))
	fmt.Fprintf(&b, "- status: %s\n- quality: %.2f\n- duration: %s\n",
		outcome.Status, outcome.QualityScore, outcome.Duration)
	if len(outcome.CreatedFiles) > 0 {
		b.WriteString("\n## Artifacts\n")
		for _, f := range outcome.CreatedFiles {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	if len(outcome.Issues) > 0 {
		b.WriteString("\n## Issues\n")
		for _, issue := range outcome.Issues {
			fmt.Fprintf(&b, "- %s\n", issue)
		}
	}
	return b.String()
}
