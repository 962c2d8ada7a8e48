package runner

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// linePrefixFormat is the timestamp prefix on every sink line.
const linePrefixFormat = "2006-01-02 15:04:05"

// Line is one completed output line with its origin metadata.
type Line struct {
	Time   time.Time
	Stream Stream
	Label  string
	Text   string
}

// LineSink consumes completed lines from the runner. Implementations must
// keep writes line-atomic: stages interleave on shared sinks.
type LineSink interface {
	WriteLine(line Line)
}

// fanoutSink forwards every line to each wrapped sink.
type fanoutSink []LineSink

// Fanout combines sinks into one. Additional consumers (job log, terminal,
// dashboard) attach here rather than changing the runner.
func Fanout(sinks ...LineSink) LineSink {
	out := make(fanoutSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (f fanoutSink) WriteLine(line Line) {
	for _, s := range f {
		s.WriteLine(line)
	}
}

// formatLine renders the canonical "YYYY-MM-DD HH:MM:SS [label] text" form.
func formatLine(line Line) string {
	if line.Label == "" {
		return fmt.Sprintf("%s %s\n", line.Time.Format(linePrefixFormat), line.Text)
	}
	return fmt.Sprintf("%s [%s] %s\n", line.Time.Format(linePrefixFormat), line.Label, line.Text)
}

// JobLog is the append-only per-job log file sink.
type JobLog struct {
	mu   sync.Mutex
	file *os.File
}

// OpenJobLog creates or appends to the job log at path, creating parent
// directories as needed.
func OpenJobLog(path string) (*JobLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating job log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening job log: %w", err)
	}
	return &JobLog{file: file}, nil
}

func (l *JobLog) WriteLine(line Line) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.file.WriteString(formatLine(line))
}

// Close flushes and closes the underlying file.
func (l *JobLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// TerminalSink tees lines to the controlling terminal. Best effort:
// interleaving across stages is acceptable.
type TerminalSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTerminalSink writes timestamped lines to w (normally os.Stderr).
func NewTerminalSink(w io.Writer) *TerminalSink {
	return &TerminalSink{w: w}
}

func (t *TerminalSink) WriteLine(line Line) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = io.WriteString(t.w, formatLine(line))
}
