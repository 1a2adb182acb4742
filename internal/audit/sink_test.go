package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opsgate/opsgate/internal/security"
)

type recordingIndexer struct {
	recs  []Record
	files []string
	fail  bool
}

func (i *recordingIndexer) IndexAudit(rec Record, file string) error {
	if i.fail {
		return errors.New("index down")
	}
	i.recs = append(i.recs, rec)
	i.files = append(i.files, file)
	return nil
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func readLines(t *testing.T, path string) []Record {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var recs []Record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		recs = append(recs, rec)
	}
	return recs
}

func TestFileSink_AppendWritesDailyJSONL(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sink, err := NewFileSink(FileSinkConfig{Dir: dir, Now: fixedNow(at)})
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	defer sink.Close()

	rec := Record{
		Status:  StatusOK,
		Tool:    "mcp_http",
		Action:  "get",
		TraceID: "trace-1",
		SpanID:  "span-1",
		Input:   map[string]any{"url": "https://x/health"},
	}
	if err := sink.Append(rec); err != nil {
		t.Fatalf("append: %v", err)
	}

	recs := readLines(t, filepath.Join(dir, "2025-06-01.log"))
	if len(recs) != 1 {
		t.Fatalf("wrote %d records, want 1", len(recs))
	}
	got := recs[0]
	if !got.Timestamp.Equal(at) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, at)
	}
	if got.Status != StatusOK || got.Tool != "mcp_http" || got.TraceID != "trace-1" {
		t.Errorf("record = %+v", got)
	}
}

func TestFileSink_RedactsInput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sink, err := NewFileSink(FileSinkConfig{
		Dir:      dir,
		Redactor: security.NewRedactor(),
		Now:      fixedNow(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	defer sink.Close()

	input := map[string]any{"host": "db1", "password": "hunter2"}
	if err := sink.Append(Record{Status: StatusOK, Tool: "pg", Input: input}); err != nil {
		t.Fatalf("append: %v", err)
	}

	recs := readLines(t, filepath.Join(dir, "2025-06-01.log"))
	if recs[0].Input["password"] != "<redacted>" {
		t.Errorf("password = %v, want masked", recs[0].Input["password"])
	}
	if recs[0].Input["host"] != "db1" {
		t.Errorf("host = %v, want untouched", recs[0].Input["host"])
	}
	if input["password"] != "hunter2" {
		t.Error("caller's map was mutated")
	}
}

func TestFileSink_RotatesByDay(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	now := time.Date(2025, 6, 1, 23, 59, 0, 0, time.UTC)
	sink, err := NewFileSink(FileSinkConfig{Dir: dir, Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	defer sink.Close()

	if err := sink.Append(Record{Status: StatusOK, Tool: "a"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if err := sink.Append(Record{Status: StatusOK, Tool: "b"}); err != nil {
		t.Fatalf("append after midnight: %v", err)
	}

	if recs := readLines(t, filepath.Join(dir, "2025-06-01.log")); len(recs) != 1 {
		t.Errorf("day one has %d records, want 1", len(recs))
	}
	if recs := readLines(t, filepath.Join(dir, "2025-06-02.log")); len(recs) != 1 || recs[0].Tool != "b" {
		t.Errorf("day two records = %+v", recs)
	}
}

func TestFileSink_IndexerReceivesRecords(t *testing.T) {
	t.Parallel()

	idx := &recordingIndexer{}
	sink, err := NewFileSink(FileSinkConfig{
		Dir:     t.TempDir(),
		Indexer: idx,
		Now:     fixedNow(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	defer sink.Close()

	if err := sink.Append(Record{Status: StatusError, Tool: "ssh", ErrorCode: "ssh_dial"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(idx.recs) != 1 || idx.recs[0].ErrorCode != "ssh_dial" {
		t.Errorf("indexed = %+v", idx.recs)
	}
	if idx.files[0] != "2025-06-01.log" {
		t.Errorf("indexed file = %q", idx.files[0])
	}
}

func TestFileSink_IndexFailureDoesNotFailAppend(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sink, err := NewFileSink(FileSinkConfig{
		Dir:     dir,
		Indexer: &recordingIndexer{fail: true},
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:     fixedNow(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	defer sink.Close()

	if err := sink.Append(Record{Status: StatusOK, Tool: "echo"}); err != nil {
		t.Fatalf("append should survive an index failure: %v", err)
	}
	// The JSONL file stays authoritative.
	if recs := readLines(t, filepath.Join(dir, "2025-06-01.log")); len(recs) != 1 {
		t.Errorf("file has %d records, want 1", len(recs))
	}
}
