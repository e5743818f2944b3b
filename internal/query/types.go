package query

import (
	"github.com/star-labs/logscanner/internal/models"
)

// PaginationInfo describes the page window of a search response.
type PaginationInfo struct {
	CurrentPage   int   `json:"currentPage"`
	PageSize      int   `json:"pageSize"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int64 `json:"totalPages"`
	HasNext       bool  `json:"hasNext"`
	HasPrevious   bool  `json:"hasPrevious"`
	FirstElement  int64 `json:"firstElement"`
	LastElement   int64 `json:"lastElement"`
}

// ValueCount is one bucket of a terms aggregation.
type ValueCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// FilterSummary aggregates the entries matching a request.
type FilterSummary struct {
	TotalCount      int64            `json:"totalCount"`
	LevelCounts     map[string]int64 `json:"levelCounts"`
	ErrorCount      int64            `json:"errorCount"`
	StackTraceCount int64            `json:"stackTraceCount"`

	EarliestTimestamp *models.Timestamp `json:"earliestTimestamp,omitempty"`
	LatestTimestamp   *models.Timestamp `json:"latestTimestamp,omitempty"`

	TopLoggers []ValueCount `json:"topLoggers"`
	TopThreads []ValueCount `json:"topThreads"`
	TopSources []ValueCount `json:"topSources"`

	UniqueLoggerCount int64 `json:"uniqueLoggerCount"`
	UniqueThreadCount int64 `json:"uniqueThreadCount"`
	UniqueSourceCount int64 `json:"uniqueSourceCount"`
}

// Response is a search result page.
type Response struct {
	Entries    []*models.LogEntry             `json:"entries"`
	Pagination PaginationInfo                 `json:"pagination"`
	Summary    *FilterSummary                 `json:"summary,omitempty"`
	Highlights map[string]map[string][]string `json:"highlights,omitempty"`

	QueryTimeMs int64 `json:"queryTimeMs"`
}

// TimelineBucket is one histogram interval.
type TimelineBucket struct {
	Timestamp  models.Timestamp `json:"timestamp"`
	Count      int64            `json:"count"`
	ErrorCount int64            `json:"errorCount"`
	WarnCount  int64            `json:"warnCount"`
}

// TimelineData is the full date histogram for a job.
type TimelineData struct {
	Interval string           `json:"interval"`
	Buckets  []TimelineBucket `json:"buckets"`
}

// JobSummary composes job metadata with the aggregate view of its
// entries.
type JobSummary struct {
	JobID    string `json:"jobId"`
	FileName string `json:"fileName,omitempty"`
	FileSize int64  `json:"fileSize,omitempty"`

	StartedAt   models.Timestamp  `json:"startedAt"`
	CompletedAt *models.Timestamp `json:"completedAt,omitempty"`

	TotalLines      int64 `json:"totalLines"`
	SuccessfulLines int64 `json:"successfulLines"`
	FailedLines     int64 `json:"failedLines"`

	ProcessingTimeMs int64   `json:"processingTimeMs,omitempty"`
	LinesPerSecond   float64 `json:"linesPerSecond,omitempty"`

	TotalEntries    int64            `json:"totalEntries"`
	LevelCounts     map[string]int64 `json:"levelCounts"`
	ErrorCount      int64            `json:"errorCount"`
	WarningCount    int64            `json:"warningCount"`
	StackTraceCount int64            `json:"stackTraceCount"`

	EarliestTimestamp *models.Timestamp `json:"earliestTimestamp,omitempty"`
	LatestTimestamp   *models.Timestamp `json:"latestTimestamp,omitempty"`
	TimeSpanSeconds   int64             `json:"timeSpanSeconds"`

	TopLoggers []ValueCount `json:"topLoggers"`
	TopThreads []ValueCount `json:"topThreads"`
	TopSources []ValueCount `json:"topSources"`

	UniqueLoggerCount int64 `json:"uniqueLoggerCount"`
	UniqueThreadCount int64 `json:"uniqueThreadCount"`
	UniqueSourceCount int64 `json:"uniqueSourceCount"`
}

// BuildJobSummary merges job metadata with a filter summary.
func BuildJobSummary(job *models.JobStatus, summary *FilterSummary) *JobSummary {
	js := &JobSummary{
		JobID:            job.JobID,
		FileName:         job.FileName,
		FileSize:         job.FileSize,
		StartedAt:        job.StartedAt,
		CompletedAt:      job.CompletedAt,
		TotalLines:       job.TotalLines,
		SuccessfulLines:  job.SuccessfulLines,
		FailedLines:      job.FailedLines,
		ProcessingTimeMs: job.ProcessingTimeMs,
		LinesPerSecond:   job.LinesPerSecond,
	}

	if summary == nil {
		return js
	}

	js.TotalEntries = summary.TotalCount
	js.LevelCounts = summary.LevelCounts
	js.ErrorCount = summary.ErrorCount
	js.WarningCount = summary.LevelCounts[string(models.LevelWarn)]
	js.StackTraceCount = summary.StackTraceCount
	js.EarliestTimestamp = summary.EarliestTimestamp
	js.LatestTimestamp = summary.LatestTimestamp
	js.TopLoggers = summary.TopLoggers
	js.TopThreads = summary.TopThreads
	js.TopSources = summary.TopSources
	js.UniqueLoggerCount = summary.UniqueLoggerCount
	js.UniqueThreadCount = summary.UniqueThreadCount
	js.UniqueSourceCount = summary.UniqueSourceCount

	if summary.EarliestTimestamp != nil && summary.LatestTimestamp != nil {
		js.TimeSpanSeconds = int64(summary.LatestTimestamp.Sub(summary.EarliestTimestamp.Time).Seconds())
	}

	return js
}
