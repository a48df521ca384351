package services

import (
	"strings"
	"testing"

	"github.com/alibot/reviewdash/internal/models"
)

func TestStripMarkdownFences(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{
			name:     "json fence",
			content:  "```json\n{\"a\": 1}\n```",
			expected: `{"a": 1}`,
		},
		{
			name:     "plain fence",
			content:  "```\n{\"a\": 1}\n```",
			expected: `{"a": 1}`,
		},
		{
			name:     "no fence",
			content:  `{"a": 1}`,
			expected: `{"a": 1}`,
		},
		{
			name:     "surrounding whitespace",
			content:  "  \n{\"a\": 1}\n  ",
			expected: `{"a": 1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stripMarkdownFences(tt.content)
			if got != tt.expected {
				t.Errorf("stripMarkdownFences() = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestDecodeAnalysisContent_ValidJSON(t *testing.T) {
	payload, err := decodeAnalysisContent(`{"metrics": {"score": 82}}`)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if payload.Metrics == nil || payload.Metrics.Score != 82 {
		t.Errorf("Metrics.Score = %+v, expected 82", payload.Metrics)
	}
}

func TestDecodeAnalysisContent_JSONEmbeddedInProse(t *testing.T) {
	content := "Here is my analysis:\n{\"analysis\": {\"summary\": \"ok\"}}\nHope that helps!"

	payload, err := decodeAnalysisContent(content)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if payload.Analysis == nil || payload.Analysis.Summary != "ok" {
		t.Errorf("embedded object not extracted, got %+v", payload.Analysis)
	}
}

func TestDecodeAnalysisContent_Invalid(t *testing.T) {
	for _, content := range []string{"", "no json here", "{broken"} {
		if _, err := decodeAnalysisContent(content); err == nil {
			t.Errorf("decodeAnalysisContent(%q) should fail", content)
		}
	}
}

func TestNormalizeResult_EmptyPayloadGetsDefaults(t *testing.T) {
	p := &ResultsPayload{}
	normalizeResult(p)

	if p.Analysis == nil || p.Metrics == nil {
		t.Fatal("sub-documents should be created")
	}
	if p.Analysis.Summary != "Code analysis completed" {
		t.Errorf("Summary = %q, expected default", p.Analysis.Summary)
	}
	if len(p.Analysis.Strengths) == 0 || len(p.Analysis.Improvements) == 0 {
		t.Error("strengths and improvements should get defaults")
	}
	for _, key := range models.RecognizedCategories {
		cat, ok := p.Analysis.Categories[key]
		if !ok {
			t.Errorf("category %q missing after normalization", key)
			continue
		}
		if cat.Score != 6 {
			t.Errorf("category %q score = %d, expected default 6", key, cat.Score)
		}
	}
	if p.Metrics.Score != 70 || p.Metrics.Complexity != 2.0 || p.Metrics.MaintainabilityIndex != 70.0 {
		t.Errorf("metric defaults not applied: %+v", p.Metrics)
	}
}

func TestNormalizeResult_ClampsMetricRanges(t *testing.T) {
	p := &ResultsPayload{
		Metrics: &MetricsDoc{
			Score:                150,
			Complexity:           0.2,
			MaintainabilityIndex: 120,
		},
	}
	normalizeResult(p)

	if p.Metrics.Score != 100 {
		t.Errorf("Score = %v, expected clamp to 100", p.Metrics.Score)
	}
	if p.Metrics.Complexity != 1 {
		t.Errorf("Complexity = %v, expected clamp to 1", p.Metrics.Complexity)
	}
	if p.Metrics.MaintainabilityIndex != 100 {
		t.Errorf("MaintainabilityIndex = %v, expected clamp to 100", p.Metrics.MaintainabilityIndex)
	}
}

func TestNormalizeResult_IssueCoercions(t *testing.T) {
	p := &ResultsPayload{
		Issues: []IssueDoc{
			{Severity: "critical", Column: 7},
			{Severity: models.SeverityLow, Line: 5, ColumnNumber: 3},
			{},
		},
	}
	normalizeResult(p)

	if p.Issues[0].Severity != models.SeverityMedium {
		t.Errorf("unknown severity should coerce to medium, got %q", p.Issues[0].Severity)
	}
	if p.Issues[0].ColumnNumber != 7 || p.Issues[0].Column != 7 {
		t.Errorf("legacy column should merge into column_number, got %d/%d",
			p.Issues[0].ColumnNumber, p.Issues[0].Column)
	}
	if p.Issues[1].Severity != models.SeverityLow {
		t.Errorf("valid severity should be preserved, got %q", p.Issues[1].Severity)
	}
	for i, issue := range p.Issues {
		if issue.ID != i+1 {
			t.Errorf("issue %d id = %d, expected sequential", i, issue.ID)
		}
		if issue.Line < 1 || issue.ColumnNumber < 1 {
			t.Errorf("issue %d has zero position: line=%d col=%d", i, issue.Line, issue.ColumnNumber)
		}
		if issue.Title == "" || issue.Message == "" || issue.Suggestion == "" {
			t.Errorf("issue %d missing text defaults: %+v", i, issue)
		}
	}
}

func TestNormalizeResult_SynthesizesCategoryIssues(t *testing.T) {
	p := &ResultsPayload{
		Analysis: &AnalysisDoc{
			Categories: map[string]models.CategoryScore{
				"security":    {Score: 4, Issues: 2},
				"performance": {Score: 8, Issues: 0},
			},
		},
	}
	normalizeResult(p)

	if len(p.Issues) != 1 {
		t.Fatalf("expected one synthesized issue, got %d", len(p.Issues))
	}
	if p.Issues[0].Type != "security" {
		t.Errorf("synthesized issue type = %q, expected security", p.Issues[0].Type)
	}
	if p.Issues[0].Severity != models.SeverityMedium {
		t.Errorf("synthesized issue severity = %q, expected medium", p.Issues[0].Severity)
	}
	if !strings.HasPrefix(p.Issues[0].Title, "Security") {
		t.Errorf("synthesized title should name the category, got %q", p.Issues[0].Title)
	}
}

func TestFallbackPayload(t *testing.T) {
	p := fallbackPayload("line1\nline2\nline3", errDecode{})

	if p.Analysis == nil || p.Metrics == nil || len(p.Issues) == 0 {
		t.Fatal("fallback payload must populate all three groups")
	}
	if p.Metrics.Score != 50 {
		t.Errorf("fallback score = %v, expected 50", p.Metrics.Score)
	}
	if !strings.Contains(p.Analysis.Summary, "3 lines") {
		t.Errorf("summary should mention the line count, got %q", p.Analysis.Summary)
	}
}

type errDecode struct{}

func (errDecode) Error() string { return "bad model output" }

func TestBuildAnalysisPrompt(t *testing.T) {
	prompt := buildAnalysisPrompt("func main() {}", "go")

	if !strings.Contains(prompt, "func main() {}") {
		t.Error("prompt should embed the code")
	}
	if !strings.Contains(prompt, "```go") {
		t.Error("prompt should fence the code with its language")
	}
	if !strings.Contains(prompt, "valid JSON object") {
		t.Error("prompt should demand a JSON response")
	}
}

func TestDeriveMetrics(t *testing.T) {
	p := &ResultsPayload{
		Metrics: &MetricsDoc{Score: 85},
		Issues: []IssueDoc{
			{Severity: models.SeverityHigh},
			{Severity: models.SeverityHigh},
			{Severity: models.SeverityMedium},
			{Severity: models.SeverityLow},
		},
	}
	code := "package main\n\nfunc main() {\n}\n"

	d := DeriveMetrics(p, code)

	if d.LinesOfCode != 5 {
		t.Errorf("LinesOfCode = %d, expected 5", d.LinesOfCode)
	}
	if d.NonEmptyLines != 3 {
		t.Errorf("NonEmptyLines = %d, expected 3", d.NonEmptyLines)
	}
	if d.TotalIssues != 4 {
		t.Errorf("TotalIssues = %d, expected 4", d.TotalIssues)
	}
	if d.HighSeverity != 2 || d.MediumSeverity != 1 {
		t.Errorf("severity tally = %d high / %d medium, expected 2/1", d.HighSeverity, d.MediumSeverity)
	}
	if d.ImprovementRate != 85 {
		t.Errorf("ImprovementRate = %v, expected 85", d.ImprovementRate)
	}
}

func TestDeriveMetrics_ClampsImprovementRate(t *testing.T) {
	d := DeriveMetrics(&ResultsPayload{Metrics: &MetricsDoc{Score: 140}}, "x")
	if d.ImprovementRate != 100 {
		t.Errorf("ImprovementRate = %v, expected clamp to 100", d.ImprovementRate)
	}
}
