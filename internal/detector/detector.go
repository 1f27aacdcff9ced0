// Package detector scans producer results for signs that they are stand-ins
// rather than genuine work product: stub phrases, claims made without the
// credentials they would require, claimed side effects that left no evidence,
// and suspiciously shaped payloads.
package detector

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"kittycore/internal/logging"
	"kittycore/internal/task"
)

// Default stub phrases. Matched case-insensitively against the stringified
// result. The list intentionally includes non-English placeholders seen in
// the wild.
var defaultPatterns = []string{
	"demo",
	"placeholder",
	"coming soon",
	"todo",
	"lorem ipsum",
	"example output",
	"not implemented",
	"заглушка",
	"для примера",
}

// defaultCredentials maps a capability to the environment credential its real
// use would require. A success claim without the credential present cannot be
// genuine.
var defaultCredentials = map[string]string{
	"email":      "SMTP_PASSWORD",
	"telegram":   "TELEGRAM_BOT_TOKEN",
	"web_search": "SEARCH_API_KEY",
	"payment":    "PAYMENT_API_KEY",
}

// Severity penalties used by HonestyScore.
var severityPenalties = map[task.Severity]float64{
	task.SeverityCritical: 1.0,
	task.SeverityHigh:     0.4,
	task.SeverityMedium:   0.2,
	task.SeverityLow:      0.1,
}

// Config tunes the detector. The constants are policy, not invariants, so
// they live here rather than being baked into the checks.
type Config struct {
	Patterns    []string
	Credentials map[string]string
	// MinPayloadBytes is the threshold below which a payload is suspicious.
	MinPayloadBytes int
	// RoundSizes are payload lengths typical of templated stub output.
	RoundSizes []int
	// FakeConfidenceSum is the total-confidence cutoff for the verdict rule.
	FakeConfidenceSum float64
	// MaxHighIndicators is how many high-severity indicators are tolerated.
	MaxHighIndicators int
	// LookupEnv overrides credential lookup (tests inject their own).
	LookupEnv func(string) (string, bool)
	Logger    logging.Logger
}

// DefaultConfig returns the documented default policy.
func DefaultConfig() Config {
	return Config{
		Patterns:          defaultPatterns,
		Credentials:       defaultCredentials,
		MinPayloadBytes:   10,
		RoundSizes:        []int{50, 100, 200, 500, 1000},
		FakeConfidenceSum: 1.5,
		MaxHighIndicators: 2,
	}
}

// Detector applies the four independent fake-result checks.
type Detector struct {
	cfg      Config
	patterns []*regexp.Regexp
	logger   logging.Logger
}

// New compiles the configured patterns and returns a detector.
func New(cfg Config) (*Detector, error) {
	if len(cfg.Patterns) == 0 {
		cfg.Patterns = defaultPatterns
	}
	if cfg.Credentials == nil {
		cfg.Credentials = defaultCredentials
	}
	if cfg.MinPayloadBytes <= 0 {
		cfg.MinPayloadBytes = 10
	}
	if len(cfg.RoundSizes) == 0 {
		cfg.RoundSizes = []int{50, 100, 200, 500, 1000}
	}
	if cfg.FakeConfidenceSum <= 0 {
		cfg.FakeConfidenceSum = 1.5
	}
	if cfg.MaxHighIndicators <= 0 {
		cfg.MaxHighIndicators = 2
	}
	if cfg.LookupEnv == nil {
		cfg.LookupEnv = os.LookupEnv
	}

	patterns := make([]*regexp.Regexp, 0, len(cfg.Patterns))
	for _, p := range cfg.Patterns {
		re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(p))
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}

	return &Detector{
		cfg:      cfg,
		patterns: patterns,
		logger:   logging.OrNop(cfg.Logger),
	}, nil
}

// Detect runs all checks against the result and returns the fakeness verdict
// with every indicator found.
func (d *Detector) Detect(producer, action string, result task.Result) (bool, []task.FakeIndicator) {
	var indicators []task.FakeIndicator

	indicators = append(indicators, d.checkPatterns(result)...)
	indicators = append(indicators, d.checkCredentials(action, result)...)
	indicators = append(indicators, d.checkSideEffects(action, result)...)
	indicators = append(indicators, d.checkPayloadSize(result)...)

	isFake := d.verdict(indicators)
	if isFake {
		d.logger.Warn("fake result from %s (action=%s): %d indicators", producer, action, len(indicators))
	}
	return isFake, indicators
}

// verdict applies the fakeness rule: any critical indicator, a total
// confidence above the cutoff, or too many high-severity indicators.
func (d *Detector) verdict(indicators []task.FakeIndicator) bool {
	confidenceSum := 0.0
	highCount := 0
	for _, ind := range indicators {
		if ind.Severity == task.SeverityCritical {
			return true
		}
		if ind.Severity == task.SeverityHigh {
			highCount++
		}
		confidenceSum += ind.Confidence
	}
	return confidenceSum > d.cfg.FakeConfidenceSum || highCount > d.cfg.MaxHighIndicators
}

func (d *Detector) checkPatterns(result task.Result) []task.FakeIndicator {
	text := result.Data
	var indicators []task.FakeIndicator
	for i, re := range d.patterns {
		if re.MatchString(text) {
			indicators = append(indicators, task.FakeIndicator{
				Type:        task.IndicatorPattern,
				Severity:    task.SeverityHigh,
				Description: fmt.Sprintf("output contains stub phrase %q", d.cfg.Patterns[i]),
				Confidence:  0.9,
			})
		}
	}
	return indicators
}

func (d *Detector) checkCredentials(action string, result task.Result) []task.FakeIndicator {
	if !result.Success {
		return nil
	}
	lowerAction := strings.ToLower(action)
	var indicators []task.FakeIndicator
	for capability, envName := range d.cfg.Credentials {
		if !strings.Contains(lowerAction, capability) {
			continue
		}
		if value, ok := d.cfg.LookupEnv(envName); !ok || strings.TrimSpace(value) == "" {
			indicators = append(indicators, task.FakeIndicator{
				Type:     task.IndicatorMissingKey,
				Severity: task.SeverityCritical,
				Description: fmt.Sprintf("claims successful %s but required credential %s is not set",
					capability, envName),
				Confidence: 1.0,
			})
		}
	}
	return indicators
}

// checkSideEffects verifies that claimed effects left observable evidence.
func (d *Detector) checkSideEffects(action string, result task.Result) []task.FakeIndicator {
	if !result.Success {
		return nil
	}
	var indicators []task.FakeIndicator

	// A claimed created file must exist on disk.
	if paths := result.Meta("file_path"); paths != "" {
		for _, p := range strings.Split(paths, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if _, err := os.Stat(p); err != nil {
				indicators = append(indicators, task.FakeIndicator{
					Type:        task.IndicatorNoSideEffect,
					Severity:    task.SeverityCritical,
					Description: fmt.Sprintf("claimed file %s does not exist", p),
					Confidence:  1.0,
				})
			}
		}
	} else if strings.Contains(strings.ToLower(action), "file") {
		indicators = append(indicators, task.FakeIndicator{
			Type:        task.IndicatorNoSideEffect,
			Severity:    task.SeverityHigh,
			Description: "file action reported success but no file path was recorded",
			Confidence:  0.8,
		})
	}

	// A claimed sent message must have hit an outbox artifact.
	if strings.Contains(strings.ToLower(action), "email") {
		outbox := result.Meta("outbox_path")
		if outbox == "" {
			indicators = append(indicators, task.FakeIndicator{
				Type:        task.IndicatorNoSideEffect,
				Severity:    task.SeverityHigh,
				Description: "email action reported success but left no outbox artifact",
				Confidence:  0.8,
			})
		} else if _, err := os.Stat(outbox); err != nil {
			indicators = append(indicators, task.FakeIndicator{
				Type:        task.IndicatorNoSideEffect,
				Severity:    task.SeverityCritical,
				Description: fmt.Sprintf("claimed outbox artifact %s does not exist", outbox),
				Confidence:  1.0,
			})
		}
	}

	return indicators
}

func (d *Detector) checkPayloadSize(result task.Result) []task.FakeIndicator {
	size := len(result.Data)
	if size < d.cfg.MinPayloadBytes {
		return []task.FakeIndicator{{
			Type:        task.IndicatorSuspiciousData,
			Severity:    task.SeverityMedium,
			Description: fmt.Sprintf("payload is only %d bytes", size),
			Confidence:  0.6,
		}}
	}
	for _, round := range d.cfg.RoundSizes {
		if size == round {
			return []task.FakeIndicator{{
				Type:        task.IndicatorSuspiciousData,
				Severity:    task.SeverityLow,
				Description: fmt.Sprintf("payload is exactly %d bytes, typical of templated output", size),
				Confidence:  0.4,
			}}
		}
	}
	return nil
}

// HonestyScore aggregates indicators into a 0–1 confidence that the result is
// genuine. Used to rank producers, not to gate below the Detect rule.
func HonestyScore(indicators []task.FakeIndicator) float64 {
	score := 1.0
	for _, ind := range indicators {
		score -= severityPenalties[ind.Severity] * ind.Confidence
	}
	if score < 0 {
		return 0
	}
	return score
}
