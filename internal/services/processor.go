package services

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/alibot/reviewdash/internal/models"
	"github.com/alibot/reviewdash/pkg/logger"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Cap on stored issues per review, matching the extractor's write limit.
const maxStoredIssues = 20

// AnalysisProcessor runs queued analysis tasks: calls the model, fans the
// normalized payload out into the result tables, and finalizes the review.
// Storage failures for any single result group are absorbed so one bad write
// never loses the rest; only the analysis call itself fails a review.
type AnalysisProcessor struct {
	db *gorm.DB
	ai *AnalysisService
}

func NewAnalysisProcessor(db *gorm.DB, ai *AnalysisService) *AnalysisProcessor {
	return &AnalysisProcessor{db: db, ai: ai}
}

// Process handles one analysis task end to end.
func (p *AnalysisProcessor) Process(ctx context.Context, task *AnalysisTask) error {
	logger.Infof("[Processor] Starting analysis for review %s", task.ReviewID)

	payload, err := p.ai.Analyze(ctx, task.Code, task.Language)
	if err != nil {
		logger.Errorf("[Processor] Analysis failed for review %s: %v", task.ReviewID, err)
		p.markFailed(task.ReviewID)
		return err
	}

	derived := DeriveMetrics(payload, task.Code)

	if err := p.storeAnalysis(task.ReviewID, payload.Analysis); err != nil {
		logger.Warn().Err(err).Str("review_id", task.ReviewID).Msg("failed to store ai analysis")
	}
	if err := p.storeMetrics(task.ReviewID, payload.Metrics); err != nil {
		logger.Warn().Err(err).Str("review_id", task.ReviewID).Msg("failed to store metrics")
	}
	if err := p.storeIssues(task.ReviewID, payload.Issues); err != nil {
		logger.Warn().Err(err).Str("review_id", task.ReviewID).Msg("failed to store issues")
	}
	if err := p.updateSubmissionResults(task.SubmissionID, payload); err != nil {
		logger.Warn().Err(err).Str("review_id", task.ReviewID).Msg("failed to update submission results")
	}

	if err := p.completeReview(task.ReviewID, payload, derived); err != nil {
		logger.Errorf("[Processor] Failed to finalize review %s: %v", task.ReviewID, err)
		return err
	}

	logger.Infof("[Processor] Analysis completed for review %s: %d issues", task.ReviewID, derived.TotalIssues)
	return nil
}

func (p *AnalysisProcessor) storeAnalysis(reviewID string, doc *AnalysisDoc) error {
	if doc == nil {
		return nil
	}
	row := models.AiAnalysis{
		ReviewID:     reviewID,
		Summary:      doc.Summary,
		Strengths:    datatypes.NewJSONSlice(doc.Strengths),
		Improvements: datatypes.NewJSONSlice(doc.Improvements),
		Categories:   datatypes.NewJSONType(doc.Categories),
		CreatedAt:    time.Now().UTC(),
	}
	return p.db.Create(&row).Error
}

func (p *AnalysisProcessor) storeMetrics(reviewID string, doc *MetricsDoc) error {
	if doc == nil {
		return nil
	}
	row := models.QualityMetrics{
		ReviewID:             reviewID,
		Complexity:           doc.Complexity,
		MaintainabilityIndex: doc.MaintainabilityIndex,
		CyclomaticComplexity: doc.CyclomaticComplexity,
		CognitiveComplexity:  doc.CognitiveComplexity,
		DuplicatedLines:      doc.DuplicatedLines,
		TestCoverage:         doc.TestCoverage,
		CreatedAt:            time.Now().UTC(),
	}
	return p.db.Create(&row).Error
}

func (p *AnalysisProcessor) storeIssues(reviewID string, issues []IssueDoc) error {
	if len(issues) == 0 {
		return nil
	}
	if len(issues) > maxStoredIssues {
		issues = issues[:maxStoredIssues]
	}

	rows := make([]models.ReviewIssue, 0, len(issues))
	for _, issue := range issues {
		rows = append(rows, models.ReviewIssue{
			ReviewID:     reviewID,
			Type:         issue.Type,
			Severity:     issue.Severity,
			Line:         issue.Line,
			ColumnNumber: issue.ColumnNumber,
			Title:        truncate(issue.Title, 255),
			Message:      issue.Message,
			Suggestion:   issue.Suggestion,
			CodeSnippet:  issue.CodeSnippet,
			FixedCode:    issue.FixedCode,
			CreatedAt:    time.Now().UTC(),
		})
	}
	return p.db.Create(&rows).Error
}

// updateSubmissionResults mirrors the payload onto the submission row, the
// legacy location older dashboard builds still read from.
func (p *AnalysisProcessor) updateSubmissionResults(submissionID string, payload *ResultsPayload) error {
	if submissionID == "" {
		return nil
	}
	blob, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.db.Model(&models.CodeSubmission{}).
		Where("id = ?", submissionID).
		Update("results", datatypes.JSON(blob)).Error
}

// completeReview performs the single terminal transition to completed. The
// guard on status keeps terminal reviews immutable even if a task is
// redelivered.
func (p *AnalysisProcessor) completeReview(reviewID string, payload *ResultsPayload, derived DerivedMetrics) error {
	score := 0.0
	if payload.Metrics != nil {
		score = clamp(math.Round(payload.Metrics.Score)/10, 0, 10)
	}
	suggestions := 0
	if payload.Analysis != nil {
		suggestions = len(payload.Analysis.Improvements)
	}

	now := time.Now().UTC()
	return p.db.Model(&models.Review{}).
		Where("id = ? AND status IN ?", reviewID, []string{models.StatusPending, models.StatusInProgress}).
		Updates(map[string]interface{}{
			"status":            models.StatusCompleted,
			"completed_at":      now,
			"score":             score,
			"lines_of_code":     derived.LinesOfCode,
			"issues_count":      derived.TotalIssues,
			"suggestions_count": suggestions,
			"improvement_rate":  derived.ImprovementRate,
		}).Error
}

func (p *AnalysisProcessor) markFailed(reviewID string) {
	err := p.db.Model(&models.Review{}).
		Where("id = ? AND status IN ?", reviewID, []string{models.StatusPending, models.StatusInProgress}).
		Updates(map[string]interface{}{
			"status":       models.StatusFailed,
			"completed_at": nil,
		}).Error
	if err != nil {
		logger.Errorf("[Processor] Failed to mark review %s as failed: %v", reviewID, err)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
