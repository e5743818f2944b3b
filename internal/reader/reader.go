// Package reader streams uploaded log files line by line. It handles
// gzip-compressed uploads transparently, decodes UTF-8 and UTF-16 byte
// order marks, and reports read progress for long files.
package reader

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	// DefaultBufferSize is the read buffer when none is configured.
	DefaultBufferSize = 8192
	// MinBufferSize is the smallest accepted buffer.
	MinBufferSize = 1024
	// MaxLineCapacity bounds a single line; the tail of a longer line
	// is discarded and the kept prefix is delivered.
	MaxLineCapacity = 1024 * 1024
	// DefaultProgressEvery is how many lines pass between progress calls.
	DefaultProgressEvery = 1000
)

// LineFunc receives each line with its 1-based line number. Returning an
// error stops the read.
type LineFunc func(line string, lineNumber int64) error

// Options configures a read pass over a file.
type Options struct {
	// BufferSize is the read buffer. Values below MinBufferSize are
	// raised to it; zero means DefaultBufferSize.
	BufferSize int
	// StartLine skips lines with a number below it, for resumed jobs.
	// Zero or one reads from the beginning.
	StartLine int64
	// Progress, when set, is called every ProgressEvery lines with the
	// current line number.
	Progress func(lineNumber int64)
	// ProgressEvery defaults to DefaultProgressEvery.
	ProgressEvery int64
}

// Stats summarizes a completed read pass.
type Stats struct {
	TotalLines     int64
	BytesRead      int64
	Elapsed        time.Duration
	LinesPerSecond float64
}

var errSampleDone = errors.New("sample complete")

// LogReader reads one log file sequentially. Not safe for concurrent use.
type LogReader struct {
	path string
	file *os.File
	gz   *gzip.Reader
	br   *bufio.Reader
	opts Options
}

// Open prepares a reader for the file. Gzip files (by .gz extension or
// magic bytes) are decompressed on the fly; a leading BOM selects the
// UTF-16 decoder and is stripped.
func Open(path string, opts Options) (*LogReader, error) {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	} else if opts.BufferSize < MinBufferSize {
		opts.BufferSize = MinBufferSize
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = DefaultProgressEvery
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	r := &LogReader{path: path, file: file, opts: opts}

	var src io.Reader = bufio.NewReaderSize(file, opts.BufferSize)
	if isGzip(path, src.(*bufio.Reader)) {
		gz, err := gzip.NewReader(src)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("open gzip %s: %w", path, err)
		}
		r.gz = gz
		src = gz
	}

	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	r.br = bufio.NewReaderSize(transform.NewReader(src, decoder), opts.BufferSize)

	return r, nil
}

// Close releases the underlying file.
func (r *LogReader) Close() error {
	if r.gz != nil {
		r.gz.Close()
	}
	return r.file.Close()
}

// isGzip checks the extension, then peeks at the magic bytes.
func isGzip(path string, br *bufio.Reader) bool {
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		return true
	}
	magic, err := br.Peek(2)
	return err == nil && magic[0] == 0x1f && magic[1] == 0x8b
}

// TrimCompression strips a trailing .gz so parser selection sees the
// inner file name.
func TrimCompression(fileName string) string {
	if strings.HasSuffix(strings.ToLower(fileName), ".gz") {
		return fileName[:len(fileName)-3]
	}
	return fileName
}

// readLine assembles the next line without its terminator. A line
// longer than MaxLineCapacity is cut at that size and the rest of it
// is drained; truncated reports when that happened.
func (r *LogReader) readLine() (line string, truncated bool, err error) {
	var buf []byte
	for {
		chunk, isPrefix, rerr := r.br.ReadLine()
		if rerr != nil {
			// A prefix followed by EOF is an unterminated final line.
			if len(buf) > 0 && errors.Is(rerr, io.EOF) {
				break
			}
			return "", false, rerr
		}
		if !truncated {
			if room := MaxLineCapacity - len(buf); len(chunk) > room {
				chunk = chunk[:room]
				truncated = true
			}
			buf = append(buf, chunk...)
		}
		if !isPrefix {
			break
		}
	}
	if n := len(buf); n > 0 && buf[n-1] == '\r' && !truncated {
		buf = buf[:n-1]
	}
	return string(buf), truncated, nil
}

// Lines iterates the file, invoking fn for each line at or past
// StartLine. It stops on context cancellation, a read error, or an
// error from fn, and always returns the stats accumulated so far.
// Oversized lines are truncated, never fatal.
func (r *LogReader) Lines(ctx context.Context, fn LineFunc) (*Stats, error) {
	start := time.Now()
	stats := &Stats{}

	var lineNumber int64
	for {
		line, truncated, err := r.readLine()
		if err != nil {
			r.finish(stats, start)
			if errors.Is(err, io.EOF) {
				return stats, nil
			}
			return stats, fmt.Errorf("read %s: %w", r.path, err)
		}

		select {
		case <-ctx.Done():
			r.finish(stats, start)
			return stats, ctx.Err()
		default:
		}

		lineNumber++
		stats.TotalLines = lineNumber
		stats.BytesRead += int64(len(line)) + 1
		if truncated {
			log.Printf("%s: line %d exceeds %d bytes, truncated", r.path, lineNumber, MaxLineCapacity)
		}

		if r.opts.Progress != nil && lineNumber%r.opts.ProgressEvery == 0 {
			r.opts.Progress(lineNumber)
		}

		if r.opts.StartLine > 1 && lineNumber < r.opts.StartLine {
			continue
		}

		if err := fn(line, lineNumber); err != nil {
			r.finish(stats, start)
			return stats, err
		}
	}
}

func (r *LogReader) finish(stats *Stats, start time.Time) {
	stats.Elapsed = time.Since(start)
	if secs := stats.Elapsed.Seconds(); secs > 0 {
		stats.LinesPerSecond = float64(stats.TotalLines) / secs
	}
}

// CountLines runs a counting pass over the file.
func CountLines(ctx context.Context, path string) (int64, error) {
	r, err := Open(path, Options{})
	if err != nil {
		return 0, err
	}
	defer r.Close()

	stats, err := r.Lines(ctx, func(string, int64) error { return nil })
	if err != nil {
		return 0, err
	}
	return stats.TotalLines, nil
}

// ReadSample returns up to maxLines lines or maxChars characters from
// the start of the file, for parser detection.
func ReadSample(path string, maxLines, maxChars int) (string, error) {
	r, err := Open(path, Options{})
	if err != nil {
		return "", err
	}
	defer r.Close()

	var sb strings.Builder

	_, err = r.Lines(context.Background(), func(line string, n int64) error {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		remaining := maxChars - sb.Len()
		if remaining <= 0 {
			return errSampleDone
		}
		if len(line) > remaining {
			line = line[:remaining]
		}
		sb.WriteString(line)
		if n >= int64(maxLines) || sb.Len() >= maxChars {
			return errSampleDone
		}
		return nil
	})
	if err != nil && !errors.Is(err, errSampleDone) {
		return "", err
	}
	return sb.String(), nil
}
