package reader

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func collect(t *testing.T, path string, opts Options) ([]string, *Stats) {
	t.Helper()
	r, err := Open(path, opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	var lines []string
	stats, err := r.Lines(context.Background(), func(line string, n int64) error {
		lines = append(lines, line)
		return nil
	})
	if err != nil {
		t.Fatalf("lines: %v", err)
	}
	return lines, stats
}

func TestLinesPlainFile(t *testing.T) {
	path := writeFile(t, "app.log", []byte("first\nsecond\nthird\n"))

	lines, stats := collect(t, path, Options{})
	if len(lines) != 3 {
		t.Fatalf("len = %d, want 3", len(lines))
	}
	if lines[0] != "first" || lines[2] != "third" {
		t.Errorf("lines = %v", lines)
	}
	if stats.TotalLines != 3 {
		t.Errorf("total = %d, want 3", stats.TotalLines)
	}
	if stats.BytesRead == 0 {
		t.Error("expected bytes counted")
	}
}

func TestLinesGzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte("compressed line one\ncompressed line two\n")); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	path := writeFile(t, "app.log.gz", buf.Bytes())

	lines, _ := collect(t, path, Options{})
	if len(lines) != 2 {
		t.Fatalf("len = %d, want 2", len(lines))
	}
	if lines[0] != "compressed line one" {
		t.Errorf("line = %q", lines[0])
	}
}

func TestLinesGzipByMagicBytes(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write([]byte("hidden gzip\n"))
	gz.Close()
	path := writeFile(t, "app.log", buf.Bytes())

	lines, _ := collect(t, path, Options{})
	if len(lines) != 1 || lines[0] != "hidden gzip" {
		t.Errorf("lines = %v", lines)
	}
}

func TestLinesStripsUTF8BOM(t *testing.T) {
	path := writeFile(t, "bom.log", []byte("\xef\xbb\xbfhello\nworld\n"))

	lines, _ := collect(t, path, Options{})
	if len(lines) != 2 {
		t.Fatalf("len = %d, want 2", len(lines))
	}
	if lines[0] != "hello" {
		t.Errorf("line = %q, BOM not stripped", lines[0])
	}
}

func TestLinesDecodesUTF16LE(t *testing.T) {
	data := []byte{0xff, 0xfe}
	for _, r := range "hi\nok\n" {
		data = append(data, byte(r), 0)
	}
	path := writeFile(t, "utf16.log", data)

	lines, _ := collect(t, path, Options{})
	if len(lines) != 2 {
		t.Fatalf("len = %d, want 2", len(lines))
	}
	if lines[0] != "hi" || lines[1] != "ok" {
		t.Errorf("lines = %v", lines)
	}
}

func TestLinesTruncatesOversizedLine(t *testing.T) {
	huge := strings.Repeat("x", 2*MaxLineCapacity)
	path := writeFile(t, "app.log", []byte(huge+"\ngood line\n"))

	lines, stats := collect(t, path, Options{})
	if len(lines) != 2 {
		t.Fatalf("len = %d, want 2", len(lines))
	}
	if len(lines[0]) != MaxLineCapacity {
		t.Errorf("truncated line length = %d, want %d", len(lines[0]), MaxLineCapacity)
	}
	if lines[1] != "good line" {
		t.Errorf("line after oversized one = %q, want %q", lines[1], "good line")
	}
	if stats.TotalLines != 2 {
		t.Errorf("total = %d, want 2", stats.TotalLines)
	}
}

func TestLinesCRLF(t *testing.T) {
	path := writeFile(t, "app.log", []byte("alpha\r\nbeta\r\n"))

	lines, _ := collect(t, path, Options{})
	if len(lines) != 2 {
		t.Fatalf("len = %d, want 2", len(lines))
	}
	if lines[0] != "alpha" || lines[1] != "beta" {
		t.Errorf("lines = %v", lines)
	}
}

func TestLinesStartLine(t *testing.T) {
	path := writeFile(t, "app.log", []byte("one\ntwo\nthree\nfour\n"))

	lines, stats := collect(t, path, Options{StartLine: 3})
	if len(lines) != 2 {
		t.Fatalf("len = %d, want 2", len(lines))
	}
	if lines[0] != "three" {
		t.Errorf("resumed at %q, want three", lines[0])
	}
	if stats.TotalLines != 4 {
		t.Errorf("total = %d, want 4 (skipped lines still counted)", stats.TotalLines)
	}
}

func TestLinesProgress(t *testing.T) {
	content := strings.Repeat("line\n", 25)
	path := writeFile(t, "app.log", []byte(content))

	var calls []int64
	opts := Options{
		ProgressEvery: 10,
		Progress:      func(n int64) { calls = append(calls, n) },
	}
	_, stats := collect(t, path, opts)

	if stats.TotalLines != 25 {
		t.Fatalf("total = %d, want 25", stats.TotalLines)
	}
	if len(calls) != 2 || calls[0] != 10 || calls[1] != 20 {
		t.Errorf("progress calls = %v, want [10 20]", calls)
	}
}

func TestLinesContextCancel(t *testing.T) {
	path := writeFile(t, "app.log", []byte("one\ntwo\n"))
	r, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Lines(ctx, func(string, int64) error { return nil }); err == nil {
		t.Error("expected context error")
	}
}

func TestCountLines(t *testing.T) {
	path := writeFile(t, "app.log", []byte("a\nb\nc\n"))

	n, err := CountLines(context.Background(), path)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
}

func TestReadSampleLineLimit(t *testing.T) {
	content := strings.Repeat("sample line\n", 50)
	path := writeFile(t, "app.log", []byte(content))

	sample, err := ReadSample(path, 10, 4096)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if got := len(strings.Split(sample, "\n")); got != 10 {
		t.Errorf("sample lines = %d, want 10", got)
	}
}

func TestReadSampleCharLimit(t *testing.T) {
	path := writeFile(t, "app.log", []byte(strings.Repeat("x", 10000)+"\n"))

	sample, err := ReadSample(path, 10, 100)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if len(sample) != 100 {
		t.Errorf("sample length = %d, want 100", len(sample))
	}
}

func TestTrimCompression(t *testing.T) {
	tests := []struct{ in, want string }{
		{"app.log.gz", "app.log"},
		{"app.LOG.GZ", "app.LOG"},
		{"app.log", "app.log"},
		{"data.json", "data.json"},
	}

	for _, tt := range tests {
		if got := TrimCompression(tt.in); got != tt.want {
			t.Errorf("TrimCompression(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "nope.log"), Options{}); err == nil {
		t.Error("expected error for missing file")
	}
}
