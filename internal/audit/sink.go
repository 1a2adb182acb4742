// Package audit implements the append-only record of every tool call.
// Writes are on the critical path and fail closed: a call whose audit
// record cannot be written does not return its envelope.
package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/opsgate/opsgate/internal/security"
)

// Record is one audit line. Input is stored redacted; results are
// summarised, never inlined.
type Record struct {
	Timestamp     time.Time      `json:"timestamp"`
	Status        string         `json:"status"`
	Tool          string         `json:"tool"`
	Action        string         `json:"action,omitempty"`
	TraceID       string         `json:"trace_id"`
	SpanID        string         `json:"span_id"`
	ParentSpanID  string         `json:"parent_span_id,omitempty"`
	InvokedAs     string         `json:"invoked_as,omitempty"`
	Input         map[string]any `json:"input,omitempty"`
	ResultSummary map[string]any `json:"result_summary,omitempty"`
	DurationMS    int64          `json:"duration_ms"`
	ErrorKind     string         `json:"error_kind,omitempty"`
	ErrorCode     string         `json:"error_code,omitempty"`
	ArtifactURIs  []string       `json:"artifact_uris,omitempty"`
}

// Statuses for Record.Status.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Sink receives audit records. Append returning an error means the call
// must fail.
type Sink interface {
	Append(rec Record) error
}

// Indexer receives a copy of every appended record for query surfaces.
// Index failures never fail the call; the JSONL file is authoritative.
type Indexer interface {
	IndexAudit(rec Record, file string) error
}

// FileSinkConfig configures a FileSink.
type FileSinkConfig struct {
	// Dir is the directory holding one <yyyy-mm-dd>.log file per day.
	Dir string

	// Redactor, if non-nil, is applied to Input values before writing.
	Redactor *security.Redactor

	// Indexer, if non-nil, receives every record after the JSONL write.
	Indexer Indexer

	// Logger receives index-failure warnings. Defaults to slog.Default.
	Logger *slog.Logger

	// Now overrides time.Now for testing.
	Now func() time.Time
}

// FileSink appends JSONL records to daily files. Single writer at a
// time; the mutex also keeps record order consistent with append order.
type FileSink struct {
	dir      string
	redactor *security.Redactor
	indexer  Indexer
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	file     *os.File
	fileName string
}

// NewFileSink creates the sink, ensuring the directory exists.
func NewFileSink(cfg FileSinkConfig) (*FileSink, error) {
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating audit dir: %w", err)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSink{
		dir:      cfg.Dir,
		redactor: cfg.Redactor,
		indexer:  cfg.Indexer,
		logger:   logger,
		now:      now,
	}, nil
}

// Append writes one record. The timestamp is set here; Input is
// replaced with a redacted copy. Any write error is returned to the
// caller, which must withhold the envelope.
func (s *FileSink) Append(rec Record) error {
	rec.Timestamp = s.now().UTC()
	if s.redactor != nil && rec.Input != nil {
		rec.Input = s.redactor.RedactValue(rec.Input).(map[string]any)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := rec.Timestamp.Format("2006-01-02") + ".log"
	if s.file == nil || s.fileName != name {
		if s.file != nil {
			s.file.Close()
		}
		f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		s.file = f
		s.fileName = name
	}

	if err := json.NewEncoder(s.file).Encode(rec); err != nil {
		return fmt.Errorf("writing audit record: %w", err)
	}

	if s.indexer != nil {
		if err := s.indexer.IndexAudit(rec, s.fileName); err != nil {
			s.logger.Warn("audit index write failed", "error", err)
		}
	}
	return nil
}

// Close releases the current log file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}
