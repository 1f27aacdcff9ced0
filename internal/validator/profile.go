package validator

import "strings"

// Profile names the deterministic checks that run alongside the LLM judgment
// for one outcome category. One parameterized validator replaces per-category
// validator subclasses; only the knobs below differ between categories.
type Profile struct {
	Name string
	// RequireDeliverable fails results that claim success but produced no files.
	RequireDeliverable bool
	// FakeFilePenalty is subtracted from the score per inauthentic file.
	FakeFilePenalty float64
	// ReportPhrases are template phrases that mark a report pretending to be
	// a deliverable. Checked against both the result text and file contents.
	ReportPhrases []string
}

var defaultReportPhrases = []string{
	"generated by",
	"result of task execution",
	"report on the completed task",
	"plan for creating",
	"will be implemented",
}

// GenericProfile covers file-producing outcomes with no category-specific rules.
func GenericProfile() Profile {
	return Profile{
		Name:               "generic",
		RequireDeliverable: true,
		FakeFilePenalty:    0.25,
		ReportPhrases:      defaultReportPhrases,
	}
}

// ApplicationProfile covers code/application outcomes.
func ApplicationProfile() Profile {
	p := GenericProfile()
	p.Name = "application"
	return p
}

// ContentProfile covers site/document/content outcomes.
func ContentProfile() Profile {
	p := GenericProfile()
	p.Name = "content"
	return p
}

// AnalysisProfile covers text-only outcomes where no file artifact is expected.
func AnalysisProfile() Profile {
	return Profile{
		Name:            "analysis",
		FakeFilePenalty: 0.25,
		ReportPhrases:   defaultReportPhrases,
	}
}

// ProfileFor picks the validation profile for an expected result type.
func ProfileFor(resultType string) Profile {
	switch strings.ToLower(strings.TrimSpace(resultType)) {
	case "application", "app", "code", "script":
		return ApplicationProfile()
	case "content", "site", "document":
		return ContentProfile()
	case "analysis", "answer", "text", "report":
		return AnalysisProfile()
	default:
		return GenericProfile()
	}
}
