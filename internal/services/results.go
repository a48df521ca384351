package services

import (
	"bytes"
	"encoding/json"

	"github.com/alibot/reviewdash/internal/models"
	"gorm.io/datatypes"
)

// ResultsState tags the outcome of decoding a submission's results blob.
// Every call site must handle all three outcomes; a malformed blob degrades
// the affected field groups, it never fails the whole aggregation.
type ResultsState int

const (
	ResultsAbsent ResultsState = iota
	ResultsOK
	ResultsMalformed
)

// AnalysisDoc is the analysis sub-document as exposed to the dashboard.
type AnalysisDoc struct {
	Summary      string                          `json:"summary"`
	Strengths    []string                        `json:"strengths"`
	Improvements []string                        `json:"improvements"`
	Categories   map[string]models.CategoryScore `json:"categories"`
}

// MetricsDoc is the metrics sub-document. Score is the raw 0-100 quality
// score produced by the analysis worker; it never overrides Review.Score.
type MetricsDoc struct {
	Score                float64  `json:"score,omitempty"`
	Complexity           float64  `json:"complexity"`
	MaintainabilityIndex float64  `json:"maintainability_index"`
	CyclomaticComplexity float64  `json:"cyclomatic_complexity"`
	CognitiveComplexity  float64  `json:"cognitive_complexity"`
	DuplicatedLines      int      `json:"duplicated_lines"`
	TestCoverage         *float64 `json:"test_coverage,omitempty"`
}

// IssueDoc is one code issue. Column is a legacy alias for ColumnNumber kept
// for payloads written by the old pipeline.
type IssueDoc struct {
	ID           int    `json:"id"`
	Type         string `json:"type"`
	Severity     string `json:"severity"`
	Line         int    `json:"line"`
	ColumnNumber int    `json:"column_number"`
	Column       int    `json:"column,omitempty"`
	Title        string `json:"title"`
	Message      string `json:"message"`
	Suggestion   string `json:"suggestion"`
	CodeSnippet  string `json:"code_snippet"`
	FixedCode    string `json:"fixed_code"`
}

// ResultsPayload is the embedded results blob with its three optional
// sub-documents.
type ResultsPayload struct {
	Analysis *AnalysisDoc `json:"analysis,omitempty"`
	Metrics  *MetricsDoc  `json:"metrics,omitempty"`
	Issues   []IssueDoc   `json:"issues,omitempty"`
}

// ParsedResults is the tagged decode outcome. Payload is non-nil only when
// State is ResultsOK.
type ParsedResults struct {
	State   ResultsState
	Payload *ResultsPayload
	Err     error
}

// ParseResults decodes a submission's results blob. The blob may be absent,
// a structured JSON object, a JSON string containing an encoded object (the
// legacy write path double-encoded), or garbage. Pure transform, no side
// effects.
func ParseResults(raw datatypes.JSON) ParsedResults {
	data := bytes.TrimSpace([]byte(raw))
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return ParsedResults{State: ResultsAbsent}
	}

	// Stringified payload: unquote first, then decode the inner document.
	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return ParsedResults{State: ResultsMalformed, Err: err}
		}
		data = bytes.TrimSpace([]byte(inner))
		if len(data) == 0 {
			return ParsedResults{State: ResultsAbsent}
		}
	}

	var payload ResultsPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return ParsedResults{State: ResultsMalformed, Err: err}
	}
	return ParsedResults{State: ResultsOK, Payload: &payload}
}
