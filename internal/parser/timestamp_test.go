package parser

import (
	"testing"
	"time"
)

func TestParseTimestampLayouts(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{
			"iso with zone",
			"2024-01-15T10:30:45.123Z",
			time.Date(2024, 1, 15, 10, 30, 45, 123_000_000, time.UTC),
		},
		{
			"log4j dotted millis",
			"2024-01-15 10:30:45.123",
			time.Date(2024, 1, 15, 10, 30, 45, 123_000_000, time.Local),
		},
		{
			"log4j comma millis",
			"2024-01-15 10:30:45,123",
			time.Date(2024, 1, 15, 10, 30, 45, 123_000_000, time.Local),
		},
		{
			"slash date",
			"2024/01/15 10:30:45",
			time.Date(2024, 1, 15, 10, 30, 45, 0, time.Local),
		},
		{
			"epoch millis",
			"1705314645123",
			time.UnixMilli(1705314645123),
		},
		{
			"epoch seconds",
			"1705314645",
			time.Unix(1705314645, 0),
		},
		{
			"apache with zone",
			"15/Jan/2024:10:30:45 +0000",
			time.Date(2024, 1, 15, 10, 30, 45, 0, time.Local),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.raw, "")
			if !ok {
				t.Fatalf("ParseTimestamp(%q) failed", tt.raw)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseTimestampSyslogYear(t *testing.T) {
	got, ok := ParseTimestamp("Jan 15 10:30:45", "")
	if !ok {
		t.Fatal("expected syslog timestamp to parse")
	}
	if got.Year() != time.Now().Year() {
		t.Errorf("year = %d, want current year", got.Year())
	}
	if got.Month() != time.January || got.Day() != 15 || got.Hour() != 10 {
		t.Errorf("unexpected fields: %v", got)
	}
}

func TestParseTimestampUserFormat(t *testing.T) {
	got, ok := ParseTimestamp("15.01.2024 10-30-45", "dd.MM.yyyy HH-mm-ss")
	if !ok {
		t.Fatal("expected user format to parse")
	}
	want := time.Date(2024, 1, 15, 10, 30, 45, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseTimestampUnparseable(t *testing.T) {
	for _, raw := range []string{"", "   ", "not a time"} {
		if _, ok := ParseTimestamp(raw, ""); ok {
			t.Errorf("ParseTimestamp(%q) = ok, want failure", raw)
		}
	}
}

func TestJavaLayout(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{"yyyy-MM-dd HH:mm:ss.SSS", "2006-01-02 15:04:05.000"},
		{"yyyy-MM-dd'T'HH:mm:ss.SSS", "2006-01-02T15:04:05.000"},
		{"dd/MMM/yyyy:HH:mm:ss Z", "02/Jan/2006:15:04:05 -0700"},
		{"MMM dd, yyyy hh:mm:ss a", "Jan 02, 2006 03:04:05 PM"},
		{"yyyy-MM-dd'T'HH:mm:ssXXX", "2006-01-02T15:04:05Z07:00"},
	}

	for _, tt := range tests {
		if got := javaLayout(tt.pattern); got != tt.want {
			t.Errorf("javaLayout(%q) = %q, want %q", tt.pattern, got, tt.want)
		}
	}
}
