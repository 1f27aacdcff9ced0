package validator

import (
	"fmt"
	"path/filepath"
	"strings"

	"kittycore/internal/jsonx"
)

// checkAuthenticity applies deterministic per-extension checks to one file
// and returns the violations found. These run independently of the LLM's
// opinion: a file failing them is rejected no matter what the judge says.
func checkAuthenticity(profile Profile, path, content, taskDescription string) []string {
	var violations []string
	lower := strings.ToLower(content)
	lowerTask := strings.ToLower(taskDescription)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".py":
		if !containsAny(content, "def ", "import ", "print(", "class ", "=") {
			violations = append(violations, fmt.Sprintf("%s has no recognizable Python syntax", path))
		}
		if containsAny(lower, "<html", "<!doctype") {
			violations = append(violations, fmt.Sprintf("%s is a Python file containing HTML boilerplate", path))
		}
		if strings.Contains(lowerTask, "hello world") {
			if !strings.Contains(lower, "print(") || !strings.Contains(lower, "hello") {
				violations = append(violations, fmt.Sprintf("%s does not print the expected greeting", path))
			}
		}

	case ".html", ".htm":
		if !containsAny(lower, "<!doctype", "<html") {
			violations = append(violations, fmt.Sprintf("%s is missing an HTML document structure", path))
		} else if !containsAny(lower, "<head", "<body") {
			violations = append(violations, fmt.Sprintf("%s has no head or body section", path))
		}

	case ".json":
		var decoded any
		if err := jsonx.Unmarshal([]byte(content), &decoded); err != nil {
			violations = append(violations, fmt.Sprintf("%s does not parse as JSON: %v", path, err))
		}
	}

	for _, phrase := range profile.ReportPhrases {
		if strings.Contains(lower, phrase) {
			violations = append(violations, fmt.Sprintf("%s contains report-template phrase %q", path, phrase))
		}
	}

	return violations
}

func containsAny(haystack string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}
