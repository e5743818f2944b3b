package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/star-labs/logscanner/internal/models"
	"github.com/star-labs/logscanner/internal/query"
)

func sampleEntry() *models.LogEntry {
	return &models.LogEntry{
		ID:         "e1",
		JobID:      "job-1",
		LineNumber: 42,
		Timestamp:  models.NewTimestamp(time.Date(2024, 1, 15, 10, 30, 0, 0, time.Local)),
		Level:      models.LevelError,
		Message:    `disk failure, retrying "now"`,
		Logger:     "com.example.Disk",
		Thread:     "worker-1",
		FileName:   "app.log",
		HasError:   true,
	}
}

func exportRequest(format Format) *Request {
	return &Request{
		Query:  &query.Request{JobID: "job-1"},
		Format: format,
	}
}

func TestRequestNormalizeDefaults(t *testing.T) {
	r := &Request{Query: &query.Request{JobID: "job-1"}}
	r.Normalize()

	if r.Format != FormatCSV {
		t.Errorf("format = %q, want csv", r.Format)
	}
	if r.MaxRecords != DefaultMaxRecords {
		t.Errorf("maxRecords = %d, want %d", r.MaxRecords, DefaultMaxRecords)
	}
	if r.Delimiter != "," {
		t.Errorf("delimiter = %q, want comma", r.Delimiter)
	}
	if len(r.Fields) != len(defaultFields) || r.Fields[0] != "timestamp" {
		t.Errorf("fields = %v", r.Fields)
	}
	if !r.WithHeaders() {
		t.Error("headers should default to true")
	}
}

func TestRequestNormalizeCapsRecords(t *testing.T) {
	r := exportRequest(FormatCSV)
	r.MaxRecords = MaxRecordsCap + 1
	r.Normalize()
	if r.MaxRecords != MaxRecordsCap {
		t.Errorf("maxRecords = %d, want cap %d", r.MaxRecords, MaxRecordsCap)
	}
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Request)
		wantErr bool
	}{
		{"valid", func(r *Request) {}, false},
		{"missing query", func(r *Request) { r.Query = nil }, true},
		{"bad format", func(r *Request) { r.Format = "xml" }, true},
		{"multi-char delimiter", func(r *Request) { r.Delimiter = ";;" }, true},
		{"unknown field", func(r *Request) { r.Fields = []string{"metadata"} }, true},
		{"tab delimiter", func(r *Request) { r.Delimiter = "\t" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := exportRequest(FormatCSV)
			r.Normalize()
			tt.mutate(r)
			err := r.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatCSV, false},
		{"csv", FormatCSV, false},
		{"JSON", FormatJSON, false},
		{"ndjson", FormatNDJSON, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidExport) {
				t.Errorf("ParseFormat(%q) err = %v, want ErrInvalidExport", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestFormatContentType(t *testing.T) {
	if ct := FormatCSV.ContentType(); ct != "text/csv" {
		t.Errorf("csv content type = %q", ct)
	}
	if ct := FormatNDJSON.ContentType(); ct != "application/x-ndjson" {
		t.Errorf("ndjson content type = %q", ct)
	}
	if ext := FormatNDJSON.Extension(); ext != "ndjson" {
		t.Errorf("ndjson extension = %q", ext)
	}
}

func TestCSVFormat(t *testing.T) {
	req := exportRequest(FormatCSV)
	req.Normalize()

	var buf bytes.Buffer
	fw, err := newFormatWriter(&buf, req)
	if err != nil {
		t.Fatalf("newFormatWriter: %v", err)
	}
	if err := fw.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := fw.Write(sampleEntry()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := fw.End(); err != nil {
		t.Fatalf("End: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want header plus one record", len(lines))
	}
	if lines[0] != "timestamp,level,logger,thread,message,lineNumber,fileName" {
		t.Errorf("header = %q", lines[0])
	}
	// The comma and quotes in the message must be escaped.
	if !strings.Contains(lines[1], `"disk failure, retrying ""now"""`) {
		t.Errorf("record = %q", lines[1])
	}
	if !strings.Contains(lines[1], "2024-01-15T10:30:00.000") {
		t.Errorf("record missing wire timestamp: %q", lines[1])
	}
}

func TestCSVFormatNoHeaders(t *testing.T) {
	req := exportRequest(FormatCSV)
	noHeaders := false
	req.IncludeHeaders = &noHeaders
	req.Fields = []string{"level", "lineNumber"}
	req.Normalize()

	var buf bytes.Buffer
	fw, _ := newFormatWriter(&buf, req)
	fw.Begin()
	fw.Write(sampleEntry())
	fw.End()

	if got := strings.TrimRight(buf.String(), "\n"); got != "ERROR,42" {
		t.Errorf("output = %q, want ERROR,42", got)
	}
}

func TestCSVFormatCustomDelimiter(t *testing.T) {
	req := exportRequest(FormatCSV)
	req.Delimiter = ";"
	req.Fields = []string{"level", "thread"}
	req.Normalize()

	var buf bytes.Buffer
	fw, _ := newFormatWriter(&buf, req)
	fw.Begin()
	fw.Write(sampleEntry())
	fw.End()

	if !strings.Contains(buf.String(), "ERROR;worker-1") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestJSONFormat(t *testing.T) {
	req := exportRequest(FormatJSON)
	req.Fields = []string{"level", "lineNumber", "hasError", "timestamp"}
	req.Normalize()

	var buf bytes.Buffer
	fw, _ := newFormatWriter(&buf, req)
	fw.Begin()
	fw.Write(sampleEntry())
	fw.Write(sampleEntry())
	fw.End()

	var records []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &records); err != nil {
		t.Fatalf("output is not a JSON array: %v\n%s", err, buf.String())
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0]["level"] != "ERROR" {
		t.Errorf("level = %v", records[0]["level"])
	}
	if records[0]["lineNumber"] != float64(42) {
		t.Errorf("lineNumber = %v, want numeric 42", records[0]["lineNumber"])
	}
	if records[0]["hasError"] != true {
		t.Errorf("hasError = %v, want bool true", records[0]["hasError"])
	}
	if records[0]["timestamp"] != "2024-01-15T10:30:00.000" {
		t.Errorf("timestamp = %v", records[0]["timestamp"])
	}
}

func TestJSONFormatEmpty(t *testing.T) {
	req := exportRequest(FormatJSON)
	req.Normalize()

	var buf bytes.Buffer
	fw, _ := newFormatWriter(&buf, req)
	fw.Begin()
	fw.End()

	var records []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &records); err != nil {
		t.Fatalf("empty export is not a JSON array: %v\n%s", err, buf.String())
	}
	if len(records) != 0 {
		t.Errorf("records = %d, want 0", len(records))
	}
}

func TestNDJSONFormat(t *testing.T) {
	req := exportRequest(FormatNDJSON)
	req.Fields = []string{"level", "message"}
	req.Normalize()

	var buf bytes.Buffer
	fw, _ := newFormatWriter(&buf, req)
	fw.Begin()
	fw.Write(sampleEntry())
	fw.Write(sampleEntry())
	fw.End()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	for _, line := range lines {
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			t.Fatalf("line is not JSON: %v\n%s", err, line)
		}
		if record["level"] != "ERROR" {
			t.Errorf("level = %v", record["level"])
		}
	}
}

func TestFieldString(t *testing.T) {
	entry := sampleEntry()
	tests := []struct {
		field string
		want  string
	}{
		{"id", "e1"},
		{"jobId", "job-1"},
		{"lineNumber", "42"},
		{"level", "ERROR"},
		{"hasError", "true"},
		{"hasStackTrace", "false"},
		{"stackTrace", ""},
		{"timestamp", "2024-01-15T10:30:00.000"},
		{"bogus", ""},
	}
	for _, tt := range tests {
		if got := fieldString(entry, tt.field); got != tt.want {
			t.Errorf("fieldString(%q) = %q, want %q", tt.field, got, tt.want)
		}
	}
}
