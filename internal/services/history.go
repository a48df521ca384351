package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/alibot/reviewdash/internal/models"
	"gorm.io/gorm"
)

const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 50

	SortNewest = "newest"
	SortOldest = "oldest"
)

// ReviewSummary is one history row, carrying enough fields to filter
// client-side without a second fetch.
type ReviewSummary struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Language    string    `json:"language"`
	Status      string    `json:"status"`
	Code        string    `json:"code,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type HistoryRequest struct {
	UserID   string `form:"user_id" binding:"required"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	Limit    int    `form:"limit" binding:"omitempty,min=1,max=50"`
	Language string `form:"language"`
	Status   string `form:"status"`
	Search   string `form:"search"`
	Sort     string `form:"sort"` // newest (default), oldest
}

type HistoryResponse struct {
	Total int             `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
	Items []ReviewSummary `json:"items"`
}

// SummaryFilter holds the pure in-memory filters applied to a fetched list.
type SummaryFilter struct {
	Search   string // case-insensitive substring over language, title, code
	Language string // exact match
	Status   string // exact match
}

type HistoryService struct {
	db *gorm.DB
}

func NewHistoryService(db *gorm.DB) *HistoryService {
	return &HistoryService{db: db}
}

// List fetches all of a user's reviews with their submission code and applies
// filter, sort, and pagination in memory.
func (s *HistoryService) List(ctx context.Context, req *HistoryRequest) (*HistoryResponse, error) {
	page := req.Page
	if page == 0 {
		page = 1
	}
	limit := req.Limit
	if limit == 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	var reviews []models.Review
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", req.UserID).
		Order("created_at DESC").
		Find(&reviews).Error; err != nil {
		return nil, err
	}

	summaries := make([]ReviewSummary, 0, len(reviews))
	if len(reviews) > 0 {
		ids := make([]string, 0, len(reviews))
		for _, r := range reviews {
			ids = append(ids, r.ID)
		}

		var subs []models.CodeSubmission
		if err := s.db.WithContext(ctx).
			Select("review_id", "code").
			Where("review_id IN ?", ids).
			Find(&subs).Error; err != nil {
			return nil, err
		}
		codeByReview := make(map[string]string, len(subs))
		for _, sub := range subs {
			codeByReview[sub.ReviewID] = sub.Code
		}

		for _, r := range reviews {
			summaries = append(summaries, ReviewSummary{
				ID:          r.ID,
				Title:       r.Title,
				Language:    r.Language,
				Status:      r.Status,
				Code:        codeByReview[r.ID],
				Description: r.Description,
				CreatedAt:   r.CreatedAt,
			})
		}
	}

	filtered := FilterSummaries(summaries, SummaryFilter{
		Search:   req.Search,
		Language: req.Language,
		Status:   req.Status,
	})

	sorted := SortSummaries(filtered, req.Sort)

	total := len(sorted)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return &HistoryResponse{
		Total: total,
		Page:  page,
		Limit: limit,
		Items: sorted[start:end],
	}, nil
}

// FilterSummaries returns the summaries matching the filter. The input slice
// is never mutated; applying the same filter twice yields the same result.
func FilterSummaries(items []ReviewSummary, filter SummaryFilter) []ReviewSummary {
	out := make([]ReviewSummary, 0, len(items))
	search := strings.ToLower(filter.Search)
	for _, item := range items {
		if filter.Language != "" && item.Language != filter.Language {
			continue
		}
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(item.Language), search) &&
			!strings.Contains(strings.ToLower(item.Title), search) &&
			!strings.Contains(strings.ToLower(item.Code), search) {
			continue
		}
		out = append(out, item)
	}
	return out
}

// SortSummaries returns a stably sorted copy ordered by creation time.
// order is "oldest" for ascending; anything else sorts newest first.
func SortSummaries(items []ReviewSummary, order string) []ReviewSummary {
	out := make([]ReviewSummary, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		if order == SortOldest {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
