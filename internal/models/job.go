package models

// JobState is the lifecycle state of an ingestion job.
type JobState string

const (
	JobQueued     JobState = "QUEUED"
	JobProcessing JobState = "PROCESSING"
	JobCompleted  JobState = "COMPLETED"
	JobFailed     JobState = "FAILED"
)

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// CanTransition reports whether the state machine permits moving to next.
// Transitions are strictly monotone: QUEUED -> PROCESSING -> {COMPLETED, FAILED}.
func (s JobState) CanTransition(next JobState) bool {
	switch s {
	case JobQueued:
		return next == JobProcessing || next == JobFailed
	case JobProcessing:
		return next == JobCompleted || next == JobFailed
	default:
		return false
	}
}

// JobStatus is the observable state of one upload-to-indexed lifecycle.
// The owning worker is the only writer for a given job; readers see
// whole-record snapshots.
type JobStatus struct {
	JobID    string   `json:"jobId"`
	Status   JobState `json:"status"`
	Progress int      `json:"progress"`
	Message  string   `json:"message,omitempty"`
	Error    string   `json:"error,omitempty"`

	FileName        string `json:"fileName,omitempty"`
	FileSize        int64  `json:"fileSize,omitempty"`
	TimestampFormat string `json:"timestampFormat,omitempty"`

	StartedAt   Timestamp  `json:"startedAt"`
	UpdatedAt   Timestamp  `json:"updatedAt"`
	CompletedAt *Timestamp `json:"completedAt,omitempty"`

	TotalLines      int64 `json:"totalLines"`
	ProcessedLines  int64 `json:"processedLines"`
	SuccessfulLines int64 `json:"successfulLines"`
	FailedLines     int64 `json:"failedLines"`

	ProcessingTimeMs int64   `json:"processingTimeMs,omitempty"`
	LinesPerSecond   float64 `json:"linesPerSecond,omitempty"`

	// LevelCounts holds the per-level entry distribution, populated at
	// completion.
	LevelCounts map[string]int64 `json:"levelCounts,omitempty"`
}

// Clone returns a copy safe to hand to readers.
func (j *JobStatus) Clone() *JobStatus {
	c := *j
	if j.CompletedAt != nil {
		ts := *j.CompletedAt
		c.CompletedAt = &ts
	}
	if j.LevelCounts != nil {
		c.LevelCounts = make(map[string]int64, len(j.LevelCounts))
		for k, v := range j.LevelCounts {
			c.LevelCounts[k] = v
		}
	}
	return &c
}
