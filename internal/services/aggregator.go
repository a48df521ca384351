package services

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/alibot/reviewdash/internal/models"
	"github.com/alibot/reviewdash/pkg/logger"
	"gorm.io/gorm"
)

// Sentinel errors for root-entity failures. Everything else degrades to a
// missing field group instead of failing the call.
var (
	ErrReviewNotFound  = errors.New("review not found")
	ErrReviewForbidden = errors.New("review belongs to another user")
)

// Field group provenance markers.
const (
	SourceTable   = "table"   // dedicated linked table won
	SourcePayload = "payload" // embedded results blob fallback won
	SourceNone    = "none"    // group unresolved
)

// Provenance records which source satisfied each field group.
type Provenance struct {
	Code     string `json:"code"`
	Analysis string `json:"analysis"`
	Metrics  string `json:"metrics"`
	Issues   string `json:"issues"`
}

// Display carries the derived presentation flags. The persisted status is the
// sole driver; stale analysis rows from earlier attempts stay in the raw
// result but are not shown while a review is pending or in progress.
type Display struct {
	ShowScore    bool `json:"show_score"`
	ShowAnalysis bool `json:"show_analysis"`
}

// ReviewDetail is the aggregated detailed-review view. Status and all
// descriptive fields come verbatim from the reviews table.
type ReviewDetail struct {
	models.Review
	Code       string       `json:"code"`
	Analysis   *AnalysisDoc `json:"ai_analysis,omitempty"`
	Metrics    *MetricsDoc  `json:"metrics,omitempty"`
	Issues     []IssueDoc   `json:"issues"`
	Provenance Provenance   `json:"provenance"`
	Display    Display      `json:"display"`
}

type ReviewService struct {
	db *gorm.DB
}

func NewReviewService(db *gorm.DB) *ReviewService {
	return &ReviewService{db: db}
}

// resolveGroup applies the two-tier priority rule shared by all field groups:
// the dedicated table wins, the embedded payload is the fallback, nil means
// unresolved.
func resolveGroup[T any](primary, fallback *T) (*T, string) {
	if primary != nil {
		return primary, SourceTable
	}
	if fallback != nil {
		return fallback, SourcePayload
	}
	return nil, SourceNone
}

// resolveIssues is the slice variant. An empty list is a valid terminal state
// for a clean review, so the zero value is [] rather than unresolved.
func resolveIssues(primary, fallback []IssueDoc) ([]IssueDoc, string) {
	if len(primary) > 0 {
		return primary, SourceTable
	}
	if len(fallback) > 0 {
		return fallback, SourcePayload
	}
	return []IssueDoc{}, SourceNone
}

// findReview loads the root review by its id, falling back to lookup via a
// submission row id (the legacy frontend navigates by it), and enforces
// ownership. Only these failures are fatal to an aggregation.
func findReview(db *gorm.DB, id, callerUserID string) (*models.Review, error) {
	var review models.Review
	err := db.Where("id = ?", id).First(&review).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		var sub models.CodeSubmission
		if subErr := db.Where("id = ?", id).First(&sub).Error; subErr != nil || sub.ReviewID == "" {
			return nil, ErrReviewNotFound
		}
		err = db.Where("id = ?", sub.ReviewID).First(&review).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReviewNotFound
		}
	}
	if err != nil {
		return nil, err
	}
	if review.UserID != callerUserID {
		return nil, ErrReviewForbidden
	}
	return &review, nil
}

// Get assembles one consistent detailed-review view out of the five tables.
// Each field group resolves independently so partial data never blocks the
// rest: a failed secondary fetch or an undecodable results blob only leaves
// that group unresolved.
func (s *ReviewService) Get(ctx context.Context, reviewID, callerUserID string) (*ReviewDetail, error) {
	review, err := findReview(s.db.WithContext(ctx), reviewID, callerUserID)
	if err != nil {
		return nil, err
	}

	// Secondary sources are read-only and independent; fetch them concurrently.
	var (
		wg sync.WaitGroup

		sub    *models.CodeSubmission
		subErr error

		analysisRow *models.AiAnalysis
		analysisErr error

		metricsRow *models.QualityMetrics
		metricsErr error

		issueRows []models.ReviewIssue
		issuesErr error
	)

	wg.Add(4)
	go func() {
		defer wg.Done()
		var row models.CodeSubmission
		if err := s.db.WithContext(ctx).Where("review_id = ?", review.ID).Order("created_at DESC").First(&row).Error; err != nil {
			subErr = err
			return
		}
		sub = &row
	}()
	go func() {
		defer wg.Done()
		var row models.AiAnalysis
		if err := s.db.WithContext(ctx).Where("review_id = ?", review.ID).First(&row).Error; err != nil {
			analysisErr = err
			return
		}
		analysisRow = &row
	}()
	go func() {
		defer wg.Done()
		var row models.QualityMetrics
		if err := s.db.WithContext(ctx).Where("review_id = ?", review.ID).First(&row).Error; err != nil {
			metricsErr = err
			return
		}
		metricsRow = &row
	}()
	go func() {
		defer wg.Done()
		issuesErr = s.db.WithContext(ctx).Where("review_id = ?", review.ID).Find(&issueRows).Error
	}()
	wg.Wait()

	for _, fetch := range []struct {
		group string
		err   error
	}{
		{"code", subErr},
		{"analysis", analysisErr},
		{"metrics", metricsErr},
		{"issues", issuesErr},
	} {
		if fetch.err != nil && !errors.Is(fetch.err, gorm.ErrRecordNotFound) {
			logger.Warn().Err(fetch.err).
				Str("review_id", review.ID).
				Str("group", fetch.group).
				Msg("secondary fetch failed, field group degraded")
		}
	}

	// Decode the legacy embedded results blob, if any. Malformed content
	// degrades to no payload.
	var payload *ResultsPayload
	code := ""
	codeSource := SourceNone
	if sub != nil {
		code = sub.Code
		codeSource = SourceTable
		parsed := ParseResults(sub.Results)
		switch parsed.State {
		case ResultsOK:
			payload = parsed.Payload
		case ResultsMalformed:
			logger.Warn().Err(parsed.Err).
				Str("review_id", review.ID).
				Msg("results blob undecodable, payload fallback unavailable")
		}
	}

	var payloadAnalysis *AnalysisDoc
	var payloadMetrics *MetricsDoc
	var payloadIssues []IssueDoc
	if payload != nil {
		payloadAnalysis = payload.Analysis
		payloadMetrics = payload.Metrics
		payloadIssues = payload.Issues
	}

	analysis, analysisSource := resolveGroup(analysisDocFromRow(analysisRow), payloadAnalysis)
	metrics, metricsSource := resolveGroup(metricsDocFromRow(metricsRow), payloadMetrics)
	issues, issuesSource := resolveIssues(issueDocsFromRows(issueRows), payloadIssues)
	sortIssuesBySeverity(issues)

	detail := &ReviewDetail{
		Review:   *review,
		Code:     code,
		Analysis: analysis,
		Metrics:  metrics,
		Issues:   issues,
		Provenance: Provenance{
			Code:     codeSource,
			Analysis: analysisSource,
			Metrics:  metricsSource,
			Issues:   issuesSource,
		},
		Display: displayFor(review, analysis),
	}
	return detail, nil
}

// displayFor derives the read-only presentation flags from the persisted
// status. Completed reviews missing a score or analysis render as a degraded
// shell with the sections omitted silently.
func displayFor(review *models.Review, analysis *AnalysisDoc) Display {
	if review.Status == models.StatusCompleted && review.Score != nil && analysis != nil {
		return Display{ShowScore: true, ShowAnalysis: true}
	}
	return Display{}
}

func analysisDocFromRow(row *models.AiAnalysis) *AnalysisDoc {
	if row == nil {
		return nil
	}
	return &AnalysisDoc{
		Summary:      row.Summary,
		Strengths:    []string(row.Strengths),
		Improvements: []string(row.Improvements),
		Categories:   row.Categories.Data(),
	}
}

func metricsDocFromRow(row *models.QualityMetrics) *MetricsDoc {
	if row == nil {
		return nil
	}
	return &MetricsDoc{
		Complexity:           row.Complexity,
		MaintainabilityIndex: row.MaintainabilityIndex,
		CyclomaticComplexity: row.CyclomaticComplexity,
		CognitiveComplexity:  row.CognitiveComplexity,
		DuplicatedLines:      row.DuplicatedLines,
		TestCoverage:         row.TestCoverage,
	}
}

func issueDocsFromRows(rows []models.ReviewIssue) []IssueDoc {
	if len(rows) == 0 {
		return nil
	}
	docs := make([]IssueDoc, 0, len(rows))
	for i, row := range rows {
		docs = append(docs, IssueDoc{
			ID:           i + 1,
			Type:         row.Type,
			Severity:     row.Severity,
			Line:         row.Line,
			ColumnNumber: row.ColumnNumber,
			Title:        row.Title,
			Message:      row.Message,
			Suggestion:   row.Suggestion,
			CodeSnippet:  row.CodeSnippet,
			FixedCode:    row.FixedCode,
		})
	}
	return docs
}

var severityRank = map[string]int{
	models.SeverityHigh:   0,
	models.SeverityMedium: 1,
	models.SeverityLow:    2,
}

func sortIssuesBySeverity(issues []IssueDoc) {
	sort.SliceStable(issues, func(i, j int) bool {
		ri, ok := severityRank[issues[i].Severity]
		if !ok {
			ri = len(severityRank)
		}
		rj, ok := severityRank[issues[j].Severity]
		if !ok {
			rj = len(severityRank)
		}
		if ri != rj {
			return ri < rj
		}
		return issues[i].Line < issues[j].Line
	})
}
