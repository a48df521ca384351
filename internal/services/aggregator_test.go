package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alibot/reviewdash/internal/models"
	"gorm.io/datatypes"
)

func TestResolveGroup_TableWins(t *testing.T) {
	table := &MetricsDoc{Complexity: 3}
	payload := &MetricsDoc{Complexity: 9}

	got, source := resolveGroup(table, payload)
	if got != table {
		t.Error("dedicated table row should win over the payload")
	}
	if source != SourceTable {
		t.Errorf("source = %q, expected %q", source, SourceTable)
	}
}

func TestResolveGroup_PayloadFallback(t *testing.T) {
	payload := &AnalysisDoc{Summary: "from blob"}

	got, source := resolveGroup(nil, payload)
	if got != payload {
		t.Error("payload should be used when no table row exists")
	}
	if source != SourcePayload {
		t.Errorf("source = %q, expected %q", source, SourcePayload)
	}
}

func TestResolveGroup_Unresolved(t *testing.T) {
	got, source := resolveGroup[AnalysisDoc](nil, nil)
	if got != nil {
		t.Error("both sources missing should resolve to nil")
	}
	if source != SourceNone {
		t.Errorf("source = %q, expected %q", source, SourceNone)
	}
}

func TestResolveIssues_EmptyIsValid(t *testing.T) {
	issues, source := resolveIssues(nil, nil)
	if issues == nil {
		t.Fatal("issues should be an empty slice, not nil")
	}
	if len(issues) != 0 {
		t.Errorf("expected no issues, got %d", len(issues))
	}
	if source != SourceNone {
		t.Errorf("source = %q, expected %q", source, SourceNone)
	}
}

func TestSortIssuesBySeverity(t *testing.T) {
	issues := []IssueDoc{
		{Severity: models.SeverityLow, Line: 1},
		{Severity: models.SeverityHigh, Line: 30},
		{Severity: "weird", Line: 2},
		{Severity: models.SeverityMedium, Line: 20},
		{Severity: models.SeverityHigh, Line: 10},
	}

	sortIssuesBySeverity(issues)

	want := []struct {
		severity string
		line     int
	}{
		{models.SeverityHigh, 10},
		{models.SeverityHigh, 30},
		{models.SeverityMedium, 20},
		{models.SeverityLow, 1},
		{"weird", 2},
	}
	for i, w := range want {
		if issues[i].Severity != w.severity || issues[i].Line != w.line {
			t.Errorf("position %d = %s/%d, expected %s/%d",
				i, issues[i].Severity, issues[i].Line, w.severity, w.line)
		}
	}
}

func TestReviewService_Get_NotFound(t *testing.T) {
	db := setupTestDB(t)
	svc := NewReviewService(db)

	_, err := svc.Get(context.Background(), "no-such-review", "user-1")
	if !errors.Is(err, ErrReviewNotFound) {
		t.Errorf("expected ErrReviewNotFound, got %v", err)
	}
}

func TestReviewService_Get_ForbiddenForOtherUser(t *testing.T) {
	db := setupTestDB(t)
	mustCreate(t, db, &models.Review{
		ID:     "rev-owned",
		UserID: "owner",
		Status: models.StatusCompleted,
	})
	svc := NewReviewService(db)

	_, err := svc.Get(context.Background(), "rev-owned", "intruder")
	if !errors.Is(err, ErrReviewForbidden) {
		t.Errorf("expected ErrReviewForbidden, got %v", err)
	}
}

func TestReviewService_Get_LinkedTablesWin(t *testing.T) {
	db := setupTestDB(t)
	now := time.Now().UTC()
	mustCreate(t, db, &models.Review{
		ID:          "rev-1",
		UserID:      "user-1",
		Title:       "refactor parser",
		Status:      models.StatusCompleted,
		Score:       floatPtr(8.5),
		CreatedAt:   now.Add(-time.Hour),
		CompletedAt: &now,
	})
	mustCreate(t, db, &models.CodeSubmission{
		ID:       "sub-1",
		ReviewID: "rev-1",
		UserID:   "user-1",
		Code:     "def parse(): pass",
		Results: datatypes.JSON(`{
			"analysis": {"summary": "stale payload summary"},
			"metrics": {"complexity": 9.9},
			"issues": [{"type": "style", "severity": "low", "line": 99}]
		}`),
	})
	mustCreate(t, db, &models.AiAnalysis{
		ReviewID:     "rev-1",
		Summary:      "current summary",
		Strengths:    datatypes.NewJSONSlice([]string{"small functions"}),
		Improvements: datatypes.NewJSONSlice([]string{"add docstrings"}),
		Categories: datatypes.NewJSONType(map[string]models.CategoryScore{
			"style": {Score: 9, Issues: 0, Suggestions: 1},
		}),
	})
	mustCreate(t, db, &models.QualityMetrics{
		ReviewID:             "rev-1",
		Complexity:           3.2,
		MaintainabilityIndex: 75,
	})
	mustCreate(t, db, &models.ReviewIssue{
		ReviewID: "rev-1",
		Type:     "performance",
		Severity: models.SeverityHigh,
		Line:     12,
		Title:    "n+1 query",
	})

	svc := NewReviewService(db)
	detail, err := svc.Get(context.Background(), "rev-1", "user-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if detail.Status != models.StatusCompleted {
		t.Errorf("Status = %q, expected completed", detail.Status)
	}
	if detail.Code != "def parse(): pass" {
		t.Errorf("Code = %q, expected submitted code", detail.Code)
	}
	if detail.Analysis == nil || detail.Analysis.Summary != "current summary" {
		t.Errorf("Analysis should come from the linked table, got %+v", detail.Analysis)
	}
	if detail.Metrics == nil || detail.Metrics.Complexity != 3.2 {
		t.Errorf("Metrics should come from the linked table, got %+v", detail.Metrics)
	}
	if len(detail.Issues) != 1 || detail.Issues[0].Title != "n+1 query" {
		t.Errorf("Issues should come from the linked table, got %+v", detail.Issues)
	}

	want := Provenance{Code: SourceTable, Analysis: SourceTable, Metrics: SourceTable, Issues: SourceTable}
	if detail.Provenance != want {
		t.Errorf("Provenance = %+v, expected %+v", detail.Provenance, want)
	}
	if !detail.Display.ShowScore || !detail.Display.ShowAnalysis {
		t.Errorf("completed review with score and analysis should display both, got %+v", detail.Display)
	}
}

func TestReviewService_Get_PayloadFillsMissingGroups(t *testing.T) {
	db := setupTestDB(t)
	now := time.Now().UTC()
	mustCreate(t, db, &models.Review{
		ID:          "rev-2",
		UserID:      "user-1",
		Status:      models.StatusCompleted,
		Score:       floatPtr(7),
		CreatedAt:   now.Add(-time.Hour),
		CompletedAt: &now,
	})
	mustCreate(t, db, &models.CodeSubmission{
		ID:       "sub-2",
		ReviewID: "rev-2",
		Code:     "SELECT 1",
		Results: datatypes.JSON(`{
			"analysis": {"summary": "payload summary"},
			"issues": [{"type": "bug", "severity": "high", "line": 3}]
		}`),
	})
	mustCreate(t, db, &models.QualityMetrics{
		ReviewID:   "rev-2",
		Complexity: 1.5,
	})

	svc := NewReviewService(db)
	detail, err := svc.Get(context.Background(), "rev-2", "user-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if detail.Analysis == nil || detail.Analysis.Summary != "payload summary" {
		t.Errorf("Analysis should fall back to the payload, got %+v", detail.Analysis)
	}
	if detail.Provenance.Analysis != SourcePayload {
		t.Errorf("Provenance.Analysis = %q, expected %q", detail.Provenance.Analysis, SourcePayload)
	}
	if detail.Metrics == nil || detail.Metrics.Complexity != 1.5 {
		t.Errorf("Metrics should still come from the table, got %+v", detail.Metrics)
	}
	if detail.Provenance.Metrics != SourceTable {
		t.Errorf("Provenance.Metrics = %q, expected %q", detail.Provenance.Metrics, SourceTable)
	}
	if len(detail.Issues) != 1 || detail.Issues[0].Type != "bug" {
		t.Errorf("Issues should fall back to the payload, got %+v", detail.Issues)
	}
	if detail.Provenance.Issues != SourcePayload {
		t.Errorf("Provenance.Issues = %q, expected %q", detail.Provenance.Issues, SourcePayload)
	}
}

func TestReviewService_Get_MalformedBlobDegrades(t *testing.T) {
	db := setupTestDB(t)
	mustCreate(t, db, &models.Review{
		ID:     "rev-3",
		UserID: "user-1",
		Status: models.StatusCompleted,
		Score:  floatPtr(6),
	})
	mustCreate(t, db, &models.CodeSubmission{
		ID:       "sub-3",
		ReviewID: "rev-3",
		Code:     "print('hi')",
		Results:  datatypes.JSON(`{"analysis": {broken`),
	})

	svc := NewReviewService(db)
	detail, err := svc.Get(context.Background(), "rev-3", "user-1")
	if err != nil {
		t.Fatalf("a malformed blob must not fail the aggregation: %v", err)
	}

	if detail.Code != "print('hi')" {
		t.Errorf("Code should survive a malformed blob, got %q", detail.Code)
	}
	if detail.Analysis != nil {
		t.Errorf("Analysis should be unresolved, got %+v", detail.Analysis)
	}
	if detail.Metrics != nil {
		t.Errorf("Metrics should be unresolved, got %+v", detail.Metrics)
	}
	if detail.Issues == nil || len(detail.Issues) != 0 {
		t.Errorf("Issues should be an empty list, got %+v", detail.Issues)
	}
	if detail.Provenance.Analysis != SourceNone || detail.Provenance.Metrics != SourceNone {
		t.Errorf("degraded groups should report no source, got %+v", detail.Provenance)
	}
}

func TestReviewService_Get_SecondarySourceUnavailable(t *testing.T) {
	db := setupTestDB(t)
	mustCreate(t, db, &models.Review{
		ID:     "rev-deg",
		UserID: "user-1",
		Status: models.StatusCompleted,
		Score:  floatPtr(7),
	})
	mustCreate(t, db, &models.CodeSubmission{
		ID:       "sub-deg",
		ReviewID: "rev-deg",
		Code:     "y = 2",
	})
	mustCreate(t, db, &models.AiAnalysis{
		ReviewID: "rev-deg",
		Summary:  "fine",
	})

	// Break one secondary source; only its field group may degrade.
	if err := db.Migrator().DropTable(&models.QualityMetrics{}); err != nil {
		t.Fatalf("failed to drop table: %v", err)
	}

	svc := NewReviewService(db)
	detail, err := svc.Get(context.Background(), "rev-deg", "user-1")
	if err != nil {
		t.Fatalf("an unavailable secondary source must not fail the aggregation: %v", err)
	}

	if detail.Metrics != nil {
		t.Errorf("Metrics should be unresolved, got %+v", detail.Metrics)
	}
	if detail.Provenance.Metrics != SourceNone {
		t.Errorf("Provenance.Metrics = %q, expected %q", detail.Provenance.Metrics, SourceNone)
	}
	if detail.Code != "y = 2" {
		t.Errorf("Code group should be intact, got %q", detail.Code)
	}
	if detail.Analysis == nil || detail.Analysis.Summary != "fine" {
		t.Errorf("Analysis group should be intact, got %+v", detail.Analysis)
	}
	if detail.Provenance.Code != SourceTable || detail.Provenance.Analysis != SourceTable {
		t.Errorf("intact groups should keep their source, got %+v", detail.Provenance)
	}
}

func TestReviewService_Get_MissingSubmission(t *testing.T) {
	db := setupTestDB(t)
	mustCreate(t, db, &models.Review{
		ID:     "rev-4",
		UserID: "user-1",
		Status: models.StatusFailed,
	})

	svc := NewReviewService(db)
	detail, err := svc.Get(context.Background(), "rev-4", "user-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if detail.Code != "" {
		t.Errorf("Code = %q, expected empty for a missing submission", detail.Code)
	}
	if detail.Provenance.Code != SourceNone {
		t.Errorf("Provenance.Code = %q, expected %q", detail.Provenance.Code, SourceNone)
	}
	if detail.Status != models.StatusFailed {
		t.Errorf("Status = %q, expected failed verbatim", detail.Status)
	}
}

func TestReviewService_Get_DisplaySuppressedWhileInProgress(t *testing.T) {
	db := setupTestDB(t)
	mustCreate(t, db, &models.Review{
		ID:     "rev-5",
		UserID: "user-1",
		Status: models.StatusInProgress,
		Score:  floatPtr(9), // stale from an earlier attempt
	})
	mustCreate(t, db, &models.AiAnalysis{
		ReviewID: "rev-5",
		Summary:  "stale analysis from a previous run",
	})

	svc := NewReviewService(db)
	detail, err := svc.Get(context.Background(), "rev-5", "user-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if detail.Analysis == nil {
		t.Error("raw analysis data should still be present in the aggregate")
	}
	if detail.Display.ShowScore || detail.Display.ShowAnalysis {
		t.Errorf("non-completed review must not display score or analysis, got %+v", detail.Display)
	}
}

func TestReviewService_Get_BySubmissionID(t *testing.T) {
	db := setupTestDB(t)
	mustCreate(t, db, &models.Review{
		ID:     "rev-6",
		UserID: "user-1",
		Status: models.StatusCompleted,
		Score:  floatPtr(5),
	})
	mustCreate(t, db, &models.CodeSubmission{
		ID:       "sub-6",
		ReviewID: "rev-6",
		Code:     "x = 1",
	})

	svc := NewReviewService(db)
	detail, err := svc.Get(context.Background(), "sub-6", "user-1")
	if err != nil {
		t.Fatalf("lookup by submission id failed: %v", err)
	}
	if detail.ID != "rev-6" {
		t.Errorf("resolved review id = %q, expected rev-6", detail.ID)
	}
}
