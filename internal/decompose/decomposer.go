// Package decompose turns one task into an ordered set of subtasks with
// dependencies, sized to the task's estimated complexity.
package decompose

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"kittycore/internal/jsonx"
	"kittycore/internal/kerrors"
	"kittycore/internal/llm"
	"kittycore/internal/logging"
	"kittycore/internal/task"
)

// Config configures the decomposer.
type Config struct {
	LLM    llm.Client
	Logger logging.Logger
	// MaxSubtasks bounds the breakdown size (default 8).
	MaxSubtasks int
}

// Decomposer splits task descriptions into subtasks.
type Decomposer struct {
	llm         llm.Client
	logger      logging.Logger
	maxSubtasks int
}

// New constructs a decomposer.
func New(cfg Config) (*Decomposer, error) {
	if cfg.LLM == nil {
		return nil, fmt.Errorf("decomposer requires an LLM client")
	}
	if cfg.MaxSubtasks <= 0 {
		cfg.MaxSubtasks = 8
	}
	return &Decomposer{
		llm:         cfg.LLM,
		logger:      logging.OrNop(cfg.Logger),
		maxSubtasks: cfg.MaxSubtasks,
	}, nil
}

// Decompose produces the subtask breakdown for t. Simple tasks map to a
// single subtask mirroring the task itself; anything higher asks the model
// for an ordered breakdown. An unparsable model response is a hard
// decomposition failure, never a silent single-subtask default.
func (d *Decomposer) Decompose(ctx context.Context, t *task.Task, complexity task.Complexity) ([]task.Subtask, error) {
	description := strings.TrimSpace(t.Description)
	if description == "" {
		return nil, kerrors.NewTaskError(kerrors.KindDecomposition, "task description is empty", nil)
	}

	if complexity == task.ComplexitySimple {
		return []task.Subtask{{
			ID:           subtaskID(t.ID, 0),
			ParentTaskID: t.ID,
			Description:  description,
			Status:       task.StatusPending,
		}}, nil
	}

	resp, err := d.llm.Complete(ctx, llm.Request{
		Prompt:      d.prompt(description, complexity),
		System:      "You are a planning assistant. Respond with a single JSON array and nothing else.",
		Temperature: 0.2,
	})
	if err != nil {
		return nil, kerrors.NewTaskError(kerrors.KindDecomposition, "breakdown call failed", err)
	}

	proposals, err := d.parse(resp.Content)
	if err != nil {
		return nil, kerrors.NewTaskError(kerrors.KindDecomposition,
			"model response could not be parsed as a subtask breakdown", err)
	}
	if len(proposals) > d.maxSubtasks {
		proposals = proposals[:d.maxSubtasks]
	}

	return d.assemble(t.ID, proposals), nil
}

func (d *Decomposer) prompt(description string, complexity task.Complexity) string {
	return fmt.Sprintf(`Break the following task into 2-%d ordered subtasks.
Task complexity: %s
Task: %s

Respond with a JSON array:
[
  {"description": "<subtask>", "depends_on": [<1-based indices of prerequisite subtasks>], "required_skills": ["<skill>"]}
]
Use "depends_on": [] for subtasks with no prerequisites.`, d.maxSubtasks, complexity, description)
}

type proposal struct {
	Description    string   `json:"description"`
	DependsOn      []int    `json:"depends_on"`
	RequiredSkills []string `json:"required_skills"`
}

// parse decodes the model's breakdown: JSON first, repaired JSON second, a
// markdown list as the last resort.
func (d *Decomposer) parse(response string) ([]proposal, error) {
	payload := extractJSONArray(response)
	if payload != "" {
		var proposals []proposal
		if err := jsonx.Unmarshal([]byte(payload), &proposals); err == nil && len(proposals) > 0 {
			return proposals, nil
		}
		if repaired, err := jsonrepair.JSONRepair(payload); err == nil {
			var proposals []proposal
			if err := jsonx.Unmarshal([]byte(repaired), &proposals); err == nil && len(proposals) > 0 {
				d.logger.Debug("breakdown JSON required repair")
				return proposals, nil
			}
		}
	}

	if proposals := parseMarkdownList(response); len(proposals) > 0 {
		d.logger.Debug("breakdown parsed from markdown fallback")
		return proposals, nil
	}

	return nil, fmt.Errorf("no subtasks found in response")
}

var markdownItem = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*])\s+(.+)$`)

func parseMarkdownList(response string) []proposal {
	var proposals []proposal
	for _, line := range strings.Split(response, "\n") {
		if m := markdownItem.FindStringSubmatch(line); m != nil {
			text := strings.TrimSpace(m[1])
			if text == "" {
				continue
			}
			proposals = append(proposals, proposal{Description: text})
		}
	}
	return proposals
}

// assemble converts proposals into subtask records with sequential ids,
// carrying explicit dependencies through and defaulting to a linear chain
// when the model omitted the dependency graph entirely.
func (d *Decomposer) assemble(parentID string, proposals []proposal) []task.Subtask {
	hasExplicitDeps := false
	for _, p := range proposals {
		if len(p.DependsOn) > 0 {
			hasExplicitDeps = true
			break
		}
	}

	subtasks := make([]task.Subtask, 0, len(proposals))
	for i, p := range proposals {
		st := task.Subtask{
			ID:             subtaskID(parentID, i),
			ParentTaskID:   parentID,
			Description:    strings.TrimSpace(p.Description),
			RequiredSkills: p.RequiredSkills,
			Status:         task.StatusPending,
		}
		if hasExplicitDeps {
			for _, dep := range p.DependsOn {
				// Model indices are 1-based; drop self and out-of-range refs.
				idx := dep - 1
				if idx < 0 || idx >= len(proposals) || idx == i {
					continue
				}
				st.Dependencies = append(st.Dependencies, subtaskID(parentID, idx))
			}
		} else if i > 0 {
			st.Dependencies = []string{subtaskID(parentID, i-1)}
		}
		subtasks = append(subtasks, st)
	}
	return subtasks
}

func subtaskID(parentID string, index int) string {
	return fmt.Sprintf("%s-sub-%02d", parentID, index+1)
}

// extractJSONArray returns the first balanced top-level JSON array in text.
func extractJSONArray(text string) string {
	start := strings.Index(text, "[")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return text[start:]
}
