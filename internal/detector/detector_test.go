package detector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kittycore/internal/task"
)

func newDetector(t *testing.T, mutate func(*Config)) *Detector {
	t.Helper()
	cfg := DefaultConfig()
	// Credential lookups must not depend on the test machine's environment.
	cfg.LookupEnv = func(string) (string, bool) { return "", false }
	if mutate != nil {
		mutate(&cfg)
	}
	d, err := New(cfg)
	require.NoError(t, err)
	return d
}

func TestDetectStubPhrases(t *testing.T) {
	d := newDetector(t, nil)

	isFake, indicators := d.Detect("agent-1", "write summary", task.Result{
		Success: true,
		Data:    "This is a demo with placeholder content until the real version ships.",
	})

	assert.True(t, isFake, "two stub phrases should push the confidence sum past the cutoff")
	var patterns int
	for _, ind := range indicators {
		if ind.Type == task.IndicatorPattern {
			patterns++
			assert.Equal(t, task.SeverityHigh, ind.Severity)
		}
	}
	assert.Equal(t, 2, patterns)
}

func TestDetectMissingCredentialIsCritical(t *testing.T) {
	d := newDetector(t, nil)

	isFake, indicators := d.Detect("agent-1", "send email to all customers", task.Result{
		Success: true,
		Data:    "All 250 customers were notified by email about the upcoming maintenance window.",
	})

	assert.True(t, isFake, "a single critical indicator decides the verdict on its own")
	found := false
	for _, ind := range indicators {
		if ind.Type == task.IndicatorMissingKey {
			found = true
			assert.Equal(t, task.SeverityCritical, ind.Severity)
			assert.Contains(t, ind.Description, "SMTP_PASSWORD")
		}
	}
	assert.True(t, found, "expected a missing_key indicator")
}

func TestDetectClaimedFileMustExist(t *testing.T) {
	d := newDetector(t, nil)

	real := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(real, []byte("quarterly figures, fully written out"), 0o644))

	isFake, indicators := d.Detect("agent-1", "write report file", task.Result{
		Success:  true,
		Data:     "Wrote the quarterly report with revenue, costs and a short outlook section.",
		Metadata: map[string]string{"file_path": real},
	})
	assert.False(t, isFake)
	assert.Empty(t, indicators)

	isFake, indicators = d.Detect("agent-1", "write report file", task.Result{
		Success:  true,
		Data:     "Wrote the quarterly report with revenue, costs and a short outlook section.",
		Metadata: map[string]string{"file_path": filepath.Join(t.TempDir(), "missing.txt")},
	})
	assert.True(t, isFake, "a claimed file that does not exist is a critical indicator")
	require.Len(t, indicators, 1)
	assert.Equal(t, task.IndicatorNoSideEffect, indicators[0].Type)
	assert.Equal(t, task.SeverityCritical, indicators[0].Severity)
}

func TestDetectTinyPayloadIsOnlySuspicious(t *testing.T) {
	d := newDetector(t, nil)

	isFake, indicators := d.Detect("agent-1", "summarize", task.Result{Success: true, Data: "ok"})
	assert.False(t, isFake, "one medium indicator alone must not flip the verdict")
	require.Len(t, indicators, 1)
	assert.Equal(t, task.IndicatorSuspiciousData, indicators[0].Type)
}

func TestHonestyScore(t *testing.T) {
	assert.Equal(t, 1.0, HonestyScore(nil))

	critical := []task.FakeIndicator{{Severity: task.SeverityCritical, Confidence: 1.0}}
	assert.Equal(t, 0.0, HonestyScore(critical))

	one := []task.FakeIndicator{{Severity: task.SeverityHigh, Confidence: 0.9}}
	two := append(one, task.FakeIndicator{Severity: task.SeverityMedium, Confidence: 0.6})
	assert.Less(t, HonestyScore(two), HonestyScore(one),
		"adding an indicator must never raise the score")
	assert.InDelta(t, 1.0-0.4*0.9, HonestyScore(one), 1e-9)
}
