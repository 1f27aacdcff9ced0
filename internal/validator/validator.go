// Package validator judges whether a produced result actually satisfies a
// task. An LLM acts as the judge; deterministic authenticity checks run on
// the produced files regardless of the judge's opinion, and a failed
// authenticity check is a hard rejection.
package validator

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"kittycore/internal/jsonx"
	"kittycore/internal/kerrors"
	"kittycore/internal/llm"
	"kittycore/internal/logging"
	"kittycore/internal/task"
)

const (
	// maxFileChars caps how much of each file is shown to the judge.
	maxFileChars = 2000
	unknownTask  = "unknown task"
)

// Config configures the validator.
type Config struct {
	LLM    llm.Client
	Logger logging.Logger
}

// Validator is the LLM-driven result judge.
type Validator struct {
	llm    llm.Client
	logger logging.Logger
}

// New constructs a validator. The LLM client is required: validation without
// a working judge is a hard failure by design.
func New(cfg Config) (*Validator, error) {
	if cfg.LLM == nil {
		return nil, fmt.Errorf("validator requires an LLM client")
	}
	return &Validator{
		llm:    cfg.LLM,
		logger: logging.OrNop(cfg.Logger),
	}, nil
}

// Validate judges the result with the generic profile.
func (v *Validator) Validate(ctx context.Context, taskDescription string, result task.Result, createdFiles []string) (task.ValidationVerdict, error) {
	return v.ValidateWithProfile(ctx, GenericProfile(), taskDescription, result, createdFiles)
}

// ValidateWithProfile judges the result under a specific outcome profile.
// Improvement retries must reuse the profile that produced the failing
// verdict so every attempt is judged by the same rules.
func (v *Validator) ValidateWithProfile(ctx context.Context, profile Profile, taskDescription string, result task.Result, createdFiles []string) (task.ValidationVerdict, error) {
	files := v.readFiles(createdFiles)

	inferred := false
	taskDescription = strings.TrimSpace(taskDescription)
	if taskDescription == "" || strings.EqualFold(taskDescription, "unknown") || strings.EqualFold(taskDescription, unknownTask) {
		taskDescription, inferred = v.inferTask(ctx, files)
	}

	prompt := v.judgmentPrompt(taskDescription, result, files)
	resp, err := v.llm.Complete(ctx, llm.Request{
		Prompt:      prompt,
		System:      "You are a strict result validator. Respond with a single JSON object and nothing else.",
		Temperature: 0,
	})
	if err != nil {
		// Validation without a working judge is fatal for the step.
		return task.ValidationVerdict{}, kerrors.NewTaskError(kerrors.KindValidation,
			"judge call failed", err)
	}

	verdict, usedFallback := v.parseVerdict(resp.Content)
	if usedFallback {
		v.logger.Warn("judge response was not parseable JSON, using keyword heuristic")
	}
	if inferred {
		verdict.Verdict = strings.TrimSpace(verdict.Verdict + " (confidence: low — task inferred from files)")
	}

	v.applyDeterministicChecks(profile, taskDescription, result, files, &verdict)

	if verdict.Score < 0 {
		verdict.Score = 0
	}
	if verdict.Score > 1 {
		verdict.Score = 1
	}
	return verdict, nil
}

type fileSnippet struct {
	Path     string
	Content  string
	Readable bool
}

// readFiles loads a capped prefix of every created file. Unreadable files are
// included with an explicit placeholder rather than silently skipped.
func (v *Validator) readFiles(paths []string) []fileSnippet {
	snippets := make([]fileSnippet, 0, len(paths))
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			snippets = append(snippets, fileSnippet{
				Path:    path,
				Content: fmt.Sprintf("[could not read file: %v]", err),
			})
			continue
		}
		content := string(raw)
		if len(content) > maxFileChars {
			content = content[:maxFileChars]
		}
		snippets = append(snippets, fileSnippet{Path: path, Content: content, Readable: true})
	}
	return snippets
}

// inferTask asks the judge what task the files were probably produced for.
// Best effort: failure degrades to the unknown-task sentinel.
func (v *Validator) inferTask(ctx context.Context, files []fileSnippet) (string, bool) {
	if len(files) == 0 {
		return unknownTask, true
	}

	var b strings.Builder
	b.WriteString("Given the following files, state in one sentence the most likely task they were produced for.\n")
	for _, f := range files {
		fmt.Fprintf(&b, "\n--- %s ---\n%s\n", f.Path, f.Content)
	}

	resp, err := v.llm.Complete(ctx, llm.Request{Prompt: b.String(), Temperature: 0})
	if err != nil || strings.TrimSpace(resp.Content) == "" {
		return unknownTask, true
	}
	return strings.TrimSpace(resp.Content), true
}

func (v *Validator) judgmentPrompt(taskDescription string, result task.Result, files []fileSnippet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\n", taskDescription)
	fmt.Fprintf(&b, "Producer reported success=%t with output:\n%s\n", result.Success, result.Data)

	if len(files) > 0 {
		b.WriteString("\nCreated files:\n")
		for _, f := range files {
			fmt.Fprintf(&b, "\n--- %s ---\n%s\n", f.Path, f.Content)
		}
	} else {
		b.WriteString("\nNo files were created.\n")
	}

	b.WriteString(`
First state the ideal expected result for this task. Then compare the actual
output and files against that ideal. Respond with JSON:
{
  "expected_result": "<what a complete result would look like>",
  "score": <0.0-1.0>,
  "is_valid": <true|false>,
  "verdict": "<one sentence>",
  "issues": ["<problem>", ...],
  "recommendations": ["<improvement>", ...]
}`)
	return b.String()
}

// parseVerdict decodes the judge's JSON, repairing it when malformed and
// falling back to a conservative keyword heuristic as a last resort. The
// fallback verdict is tagged "(auto-analysis)" so callers treat it with
// lower trust.
func (v *Validator) parseVerdict(response string) (task.ValidationVerdict, bool) {
	payload := extractJSONObject(response)

	var decoded struct {
		ExpectedResult  string   `json:"expected_result"`
		Score           float64  `json:"score"`
		IsValid         bool     `json:"is_valid"`
		Verdict         string   `json:"verdict"`
		Issues          []string `json:"issues"`
		Recommendations []string `json:"recommendations"`
	}

	parsed := false
	if payload != "" {
		if err := jsonx.Unmarshal([]byte(payload), &decoded); err == nil {
			parsed = true
		} else if repaired, repairErr := jsonrepair.JSONRepair(payload); repairErr == nil {
			parsed = jsonx.Unmarshal([]byte(repaired), &decoded) == nil
		}
	}
	if !parsed {
		return keywordHeuristic(response), true
	}

	return task.ValidationVerdict{
		IsValid:         decoded.IsValid,
		Score:           decoded.Score,
		Verdict:         decoded.Verdict,
		Issues:          decoded.Issues,
		Recommendations: decoded.Recommendations,
		ExpectedResult:  decoded.ExpectedResult,
	}, false
}

// keywordHeuristic is the documented conservative fallback: affirmative words
// without negative qualifiers score 0.8, anything else 0.2.
func keywordHeuristic(response string) task.ValidationVerdict {
	lower := strings.ToLower(response)
	affirmative := containsAny(lower, "ready", "works", "working", "complete", "success")
	negative := containsAny(lower, "plan", "description", "todo", "will be", "not yet")

	if affirmative && !negative {
		return task.ValidationVerdict{
			IsValid: true,
			Score:   0.8,
			Verdict: "judge response suggests the result works (auto-analysis)",
		}
	}
	return task.ValidationVerdict{
		IsValid: false,
		Score:   0.2,
		Verdict: "judge response is inconclusive (auto-analysis)",
		Issues:  []string{"validator could not parse a structured verdict from the judge"},
	}
}

// applyDeterministicChecks layers the profile's authenticity rules on top of
// the judge's verdict. Authenticity failures are penalized harder than
// missing nice-to-haves: each one is a hard rejection, not a discount.
func (v *Validator) applyDeterministicChecks(profile Profile, taskDescription string, result task.Result, files []fileSnippet, verdict *task.ValidationVerdict) {
	if profile.RequireDeliverable && result.Success && len(files) == 0 {
		verdict.IsValid = false
		if verdict.Score > 0.3 {
			verdict.Score = 0.3
		}
		verdict.Issues = append(verdict.Issues,
			"no deliverable artifact was produced, only a textual claim of completion")
	}

	lowerData := strings.ToLower(result.Data)
	for _, phrase := range profile.ReportPhrases {
		if strings.Contains(lowerData, phrase) {
			verdict.IsValid = false
			verdict.Score -= profile.FakeFilePenalty
			verdict.Issues = append(verdict.Issues,
				fmt.Sprintf("result text contains report-template phrase %q", phrase))
		}
	}

	for _, f := range files {
		if !f.Readable {
			continue
		}
		violations := checkAuthenticity(profile, f.Path, f.Content, taskDescription)
		for _, violation := range violations {
			verdict.IsValid = false
			verdict.Score -= profile.FakeFilePenalty
			verdict.Issues = append(verdict.Issues, violation)
		}
	}
}

// extractJSONObject returns the first balanced top-level JSON object in text.
func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	// Unbalanced: return the tail so the repair pass can try to close it.
	return text[start:]
}
