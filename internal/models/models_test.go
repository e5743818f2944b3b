package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNormalizeLevel(t *testing.T) {
	tests := []struct {
		input string
		want  LogLevel
	}{
		{"warn", LevelWarn},
		{"WARNING", LevelWarn},
		{"severe", LevelError},
		{"FATAL", LevelError},
		{"CRITICAL", LevelError},
		{"ALERT", LevelError},
		{"EMERGENCY", LevelError},
		{"fine", LevelDebug},
		{"FINEST", LevelDebug},
		{"verbose", LevelDebug},
		{"DBG", LevelDebug},
		{"config", LevelInfo},
		{"NOTICE", LevelInfo},
		{"INFORMATIONAL", LevelInfo},
		{"trc", LevelTrace},
		{"TRACE", LevelTrace},
		{"error", LevelError},
		{"info", LevelInfo},
		{"", LevelInfo},
		{"CUSTOM", LogLevel("CUSTOM")},
		{"custom", LogLevel("CUSTOM")},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeLevel(tt.input); got != tt.want {
				t.Errorf("NormalizeLevel(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSetLevelTracksHasError(t *testing.T) {
	e := &LogEntry{}

	e.SetLevel(LevelError)
	if !e.HasError {
		t.Error("expected HasError after SetLevel(ERROR)")
	}

	e.SetLevel(LevelInfo)
	if e.HasError {
		t.Error("expected HasError cleared after SetLevel(INFO)")
	}
}

func TestSetStackTraceTracksFlag(t *testing.T) {
	e := &LogEntry{}

	e.SetStackTrace("at com.example.Svc.run(Svc.java:12)")
	if !e.HasStackTrace {
		t.Error("expected HasStackTrace after SetStackTrace")
	}

	e.SetStackTrace("")
	if e.HasStackTrace {
		t.Error("expected HasStackTrace cleared for empty trace")
	}
}

func TestTimestampWireFormat(t *testing.T) {
	ts := NewTimestamp(time.Date(2024, 1, 15, 10, 30, 45, 123_000_000, time.Local))

	data, err := json.Marshal(ts)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"2024-01-15T10:30:45.123"` {
		t.Errorf("got %s, want 2024-01-15T10:30:45.123", data)
	}

	var back Timestamp
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Equal(ts.Time) {
		t.Errorf("round-trip mismatch: %v != %v", back.Time, ts.Time)
	}
}

func TestTimestampUnmarshalOffsets(t *testing.T) {
	var ts Timestamp
	if err := json.Unmarshal([]byte(`"2024-01-15T10:30:45.123Z"`), &ts); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := time.Date(2024, 1, 15, 10, 30, 45, 123_000_000, time.UTC)
	if !ts.Equal(want) {
		t.Errorf("got %v, want %v", ts.Time, want)
	}
}

func TestTimestampZeroMarshalsNull(t *testing.T) {
	data, err := json.Marshal(Timestamp{})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != "null" {
		t.Errorf("got %s, want null", data)
	}
}

func TestJobStateTransitions(t *testing.T) {
	tests := []struct {
		from, to JobState
		want     bool
	}{
		{JobQueued, JobProcessing, true},
		{JobQueued, JobFailed, true},
		{JobQueued, JobCompleted, false},
		{JobProcessing, JobCompleted, true},
		{JobProcessing, JobFailed, true},
		{JobProcessing, JobQueued, false},
		{JobCompleted, JobFailed, false},
		{JobFailed, JobProcessing, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestJobStatusJSONFieldNames(t *testing.T) {
	st := &JobStatus{
		JobID:      "j1",
		Status:     JobCompleted,
		Progress:   100,
		TotalLines: 10,
	}

	data, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, field := range []string{`"jobId"`, `"status"`, `"progress"`, `"totalLines"`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("missing %s in %s", field, data)
		}
	}
}
