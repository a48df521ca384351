package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Review lifecycle states. Status lives on the reviews table only; no other
// table may drive it.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Issue severity levels.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// RecognizedCategories is the fixed analysis category set.
var RecognizedCategories = []string{"performance", "security", "maintainability", "style"}

// Review is the authoritative root record for one code-review request.
type Review struct {
	ID               string     `gorm:"primaryKey;size:36" json:"id"`
	UserID           string     `gorm:"size:64;index;not null" json:"user_id"`
	Title            string     `gorm:"size:255" json:"title"`
	Description      string     `gorm:"type:text" json:"description"`
	Language         string     `gorm:"size:50;index" json:"language"`
	ReviewType       string     `gorm:"size:50;default:general" json:"review_type"`
	Status           string     `gorm:"size:20;default:pending;index" json:"status"`
	Score            *float64   `json:"score"` // 0-10, meaningful only when completed
	LinesOfCode      int        `json:"lines_of_code"`
	IssuesCount      int        `json:"issues_count"`
	SuggestionsCount int        `json:"suggestions_count"`
	ImprovementRate  float64    `json:"improvement_rate"`
	GithubRepo       string     `gorm:"size:500" json:"github_repo"`
	GithubPath       string     `gorm:"size:500" json:"github_path"`
	CreatedAt        time.Time  `gorm:"index" json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at"` // set iff status = completed
}

// CodeSubmission holds the submitted code for a review. Results is a legacy
// blob that may duplicate analysis/metrics/issues in loose shape, possibly
// double-encoded as a JSON string; consumers must tolerate garbage.
type CodeSubmission struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	ReviewID  string         `gorm:"size:36;index" json:"review_id"`
	UserID    string         `gorm:"size:64;index" json:"user_id"`
	Language  string         `gorm:"size:50" json:"language"`
	Code      string         `gorm:"type:text" json:"code"`
	Results   datatypes.JSON `json:"results,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// CategoryScore is a per-category analysis rating.
type CategoryScore struct {
	Score       int `json:"score"`
	Issues      int `json:"issues"`
	Suggestions int `json:"suggestions"`
}

// UnmarshalJSON tolerates the loose category shapes older payloads carry: a
// bare number is treated as the score, anything else decodes to the zero value
// so downstream normalization can apply defaults.
func (c *CategoryScore) UnmarshalJSON(data []byte) error {
	type plain CategoryScore
	var p plain
	if err := json.Unmarshal(data, &p); err == nil {
		*c = CategoryScore(p)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*c = CategoryScore{Score: int(n)}
		return nil
	}
	*c = CategoryScore{}
	return nil
}

// AiAnalysis holds the structured AI analysis for a review (0 or 1 per review).
type AiAnalysis struct {
	ID           uint                                         `gorm:"primaryKey" json:"id"`
	ReviewID     string                                       `gorm:"size:36;uniqueIndex;not null" json:"review_id"`
	Summary      string                                       `gorm:"type:text" json:"summary"`
	Strengths    datatypes.JSONSlice[string]                  `json:"strengths"`
	Improvements datatypes.JSONSlice[string]                  `json:"improvements"`
	Categories   datatypes.JSONType[map[string]CategoryScore] `json:"categories"`
	CreatedAt    time.Time                                    `json:"created_at"`
}

// QualityMetrics holds computed code quality metrics (0 or 1 per review).
type QualityMetrics struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	ReviewID             string    `gorm:"size:36;uniqueIndex;not null" json:"review_id"`
	Complexity           float64   `json:"complexity"`
	MaintainabilityIndex float64   `json:"maintainability_index"`
	CyclomaticComplexity float64   `json:"cyclomatic_complexity"`
	CognitiveComplexity  float64   `json:"cognitive_complexity"`
	DuplicatedLines      int       `json:"duplicated_lines"`
	TestCoverage         *float64  `json:"test_coverage"`
	CreatedAt            time.Time `json:"created_at"`
}

// ReviewIssue is one extracted code issue (0..N per review).
type ReviewIssue struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ReviewID     string    `gorm:"size:36;index;not null" json:"review_id"`
	Type         string    `gorm:"size:50;default:general" json:"type"`
	Severity     string    `gorm:"size:20;default:medium" json:"severity"` // high, medium, low
	Line         int       `json:"line"`
	ColumnNumber int       `json:"column_number"`
	Title        string    `gorm:"size:255" json:"title"`
	Message      string    `gorm:"type:text" json:"message"`
	Suggestion   string    `gorm:"type:text" json:"suggestion"`
	CodeSnippet  string    `gorm:"type:text" json:"code_snippet"`
	FixedCode    string    `gorm:"type:text" json:"fixed_code"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName overrides
func (Review) TableName() string         { return "reviews" }
func (CodeSubmission) TableName() string { return "code_submissions" }
func (AiAnalysis) TableName() string     { return "ai_analysis" }
func (QualityMetrics) TableName() string { return "quality_metrics" }
func (ReviewIssue) TableName() string    { return "review_issues" }

// IsTerminal reports whether the review reached a terminal status.
func (r *Review) IsTerminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}
