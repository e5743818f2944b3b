package query

import (
	"testing"

	"github.com/star-labs/logscanner/internal/models"
)

func TestPaginate(t *testing.T) {
	tests := []struct {
		name    string
		page    int
		size    int
		total   int64
		fetched int
		want    PaginationInfo
	}{
		{
			name: "single page", page: 0, size: 50, total: 2, fetched: 2,
			want: PaginationInfo{
				CurrentPage: 0, PageSize: 50, TotalElements: 2, TotalPages: 1,
				HasNext: false, HasPrevious: false, FirstElement: 0, LastElement: 1,
			},
		},
		{
			name: "middle page", page: 1, size: 10, total: 35, fetched: 10,
			want: PaginationInfo{
				CurrentPage: 1, PageSize: 10, TotalElements: 35, TotalPages: 4,
				HasNext: true, HasPrevious: true, FirstElement: 10, LastElement: 19,
			},
		},
		{
			name: "last partial page", page: 3, size: 10, total: 35, fetched: 5,
			want: PaginationInfo{
				CurrentPage: 3, PageSize: 10, TotalElements: 35, TotalPages: 4,
				HasNext: false, HasPrevious: true, FirstElement: 30, LastElement: 34,
			},
		},
		{
			name: "empty result", page: 0, size: 50, total: 0, fetched: 0,
			want: PaginationInfo{
				CurrentPage: 0, PageSize: 50, TotalElements: 0, TotalPages: 0,
				HasNext: false, HasPrevious: false, FirstElement: 0, LastElement: 0,
			},
		},
		{
			name: "exact multiple", page: 1, size: 10, total: 20, fetched: 10,
			want: PaginationInfo{
				CurrentPage: 1, PageSize: 10, TotalElements: 20, TotalPages: 2,
				HasNext: false, HasPrevious: true, FirstElement: 10, LastElement: 19,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := paginate(tt.page, tt.size, tt.total, tt.fetched)
			if got != tt.want {
				t.Errorf("paginate() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestApplyProjectionInclude(t *testing.T) {
	entry := &models.LogEntry{
		ID:         "e1",
		JobID:      "job-1",
		LineNumber: 42,
		Level:      models.LevelError,
		Message:    "disk failure",
		RawLine:    "2024-01-15 ERROR disk failure",
		Logger:     "com.example.Disk",
		StackTrace: "java.io.IOException",
		HasError:   true,
	}

	applyProjection([]*models.LogEntry{entry}, []string{"message", "level"}, nil)

	if entry.Message != "disk failure" || entry.Level != models.LevelError {
		t.Errorf("included fields were cleared: %+v", entry)
	}
	if entry.RawLine != "" || entry.Logger != "" || entry.StackTrace != "" {
		t.Errorf("excluded fields survived: %+v", entry)
	}
	// Identity fields always survive.
	if entry.ID != "e1" || entry.JobID != "job-1" || entry.LineNumber != 42 || !entry.HasError {
		t.Errorf("identity fields were cleared: %+v", entry)
	}
}

func TestApplyProjectionExclude(t *testing.T) {
	entry := &models.LogEntry{
		ID:       "e1",
		Message:  "boom",
		RawLine:  "raw",
		Metadata: map[string]any{"k": "v"},
	}

	applyProjection([]*models.LogEntry{entry}, nil, []string{"rawLine", "metadata"})

	if entry.RawLine != "" || entry.Metadata != nil {
		t.Errorf("excluded fields survived: %+v", entry)
	}
	if entry.Message != "boom" {
		t.Errorf("message should survive, got %q", entry.Message)
	}
}

func TestApplyProjectionNoop(t *testing.T) {
	entry := &models.LogEntry{Message: "keep", Logger: "l"}
	applyProjection([]*models.LogEntry{entry}, nil, nil)
	if entry.Message != "keep" || entry.Logger != "l" {
		t.Errorf("entry modified without a projection: %+v", entry)
	}
}
