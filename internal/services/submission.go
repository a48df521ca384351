package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alibot/reviewdash/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SubmissionService owns the submit-side write path: creating the review
// record, storing the code, and handing analysis off to the queue.
type SubmissionService struct {
	db    *gorm.DB
	queue TaskQueue
}

func NewSubmissionService(db *gorm.DB, queue TaskQueue) *SubmissionService {
	return &SubmissionService{db: db, queue: queue}
}

type SubmitRequest struct {
	Code        string `json:"code" binding:"required"`
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Language    string `json:"language" binding:"required"`
	ReviewType  string `json:"reviewType"`
	UserID      string `json:"user_id" binding:"required"`
	GithubRepo  string `json:"github_repo"`
	GithubPath  string `json:"github_path"`
}

// SubmitResponse mirrors what the frontend expects: review_id is the
// submission row id it navigates by, actual_review_id the root record.
type SubmitResponse struct {
	ReviewID       string `json:"review_id"`
	ActualReviewID string `json:"actual_review_id"`
	Status         string `json:"status"`
	Message        string `json:"message"`
}

// Submit creates the review and submission records, queues the analysis, and
// returns immediately.
func (s *SubmissionService) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	reviewType := req.ReviewType
	if reviewType == "" {
		reviewType = "general"
	}

	review := models.Review{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		Title:       req.Title,
		Description: req.Description,
		Language:    req.Language,
		ReviewType:  reviewType,
		Status:      models.StatusPending,
		GithubRepo:  req.GithubRepo,
		GithubPath:  req.GithubPath,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&review).Error; err != nil {
		return nil, fmt.Errorf("failed to create review record: %w", err)
	}

	sub := models.CodeSubmission{
		ID:        uuid.NewString(),
		ReviewID:  review.ID,
		UserID:    req.UserID,
		Language:  req.Language,
		Code:      req.Code,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&sub).Error; err != nil {
		return nil, fmt.Errorf("failed to store code: %w", err)
	}

	// Transition to in_progress before handing the task off. A fast worker
	// can reach a terminal status during Enqueue, and a write after the
	// handoff would overwrite it; terminal transitions must stick.
	lines := len(strings.Split(req.Code, "\n"))
	if err := s.db.WithContext(ctx).Model(&models.Review{}).
		Where("id = ? AND status = ?", review.ID, models.StatusPending).
		Updates(map[string]interface{}{
			"status":        models.StatusInProgress,
			"lines_of_code": lines,
		}).Error; err != nil {
		return nil, err
	}

	if err := s.queue.Enqueue(&AnalysisTask{
		ReviewID:     review.ID,
		SubmissionID: sub.ID,
		Code:         req.Code,
		Language:     req.Language,
	}); err != nil {
		return nil, fmt.Errorf("failed to enqueue analysis: %w", err)
	}

	return &SubmitResponse{
		ReviewID:       sub.ID,
		ActualReviewID: review.ID,
		Status:         models.StatusInProgress,
		Message:        "Code submitted successfully. Analysis in progress.",
	}, nil
}

type StatusResponse struct {
	ReviewID    string     `json:"review_id"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// Status reports the analysis progress for a review. Accepts either the
// review id or a submission row id, same as the detail lookup.
func (s *SubmissionService) Status(ctx context.Context, reviewID, callerUserID string) (*StatusResponse, error) {
	review, err := findReview(s.db.WithContext(ctx), reviewID, callerUserID)
	if err != nil {
		return nil, err
	}

	return &StatusResponse{
		ReviewID:    review.ID,
		Status:      review.Status,
		Progress:    progressFor(review.Status),
		CreatedAt:   review.CreatedAt,
		CompletedAt: review.CompletedAt,
	}, nil
}

func progressFor(status string) int {
	switch status {
	case models.StatusPending:
		return 10
	case models.StatusInProgress:
		return 50
	case models.StatusCompleted:
		return 100
	default:
		return 0
	}
}
