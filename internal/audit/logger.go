package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/opsloom/codeterm/internal/store"
)

// Logger writes audit records with parameter redaction. Each record is
// appended as one JSON line to <dataDir>/audit/<YYYY-MM-DD>.jsonl — the
// durable, authoritative log — and additionally indexed into the sqlite
// store so admin queries can filter without scanning JSONL files.
type Logger struct {
	dataDir string
	store   store.AuditStore
	bus     *Bus

	mu sync.Mutex // serializes JSONL appends
}

// NewLogger creates an audit Logger. store and bus are both nil-safe.
func NewLogger(dataDir string, auditStore store.AuditStore, bus *Bus) *Logger {
	return &Logger{dataDir: dataDir, store: auditStore, bus: bus}
}

// Record redacts sensitive parameters, appends the record to the day's
// JSONL file, indexes it in the store, and publishes it to the bus.
func (l *Logger) Record(ctx context.Context, rec *store.AuditRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if len(rec.ParamsRedacted) > 0 {
		rec.ParamsRedacted = Redact(rec.ParamsRedacted)
	}

	if err := l.appendJSONL(rec); err != nil {
		return fmt.Errorf("append audit jsonl: %w", err)
	}

	if l.store != nil {
		if err := l.store.InsertAuditRecord(ctx, rec); err != nil {
			return fmt.Errorf("insert audit record: %w", err)
		}
	}
	if l.bus != nil {
		l.bus.Publish(rec)
	}
	return nil
}

func (l *Logger) appendJSONL(rec *store.AuditRecord) error {
	if l.dataDir == "" {
		return nil
	}

	dir := filepath.Join(l.dataDir, "audit")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	path := filepath.Join(dir, rec.Timestamp.Format("2006-01-02")+".jsonl")

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(line)
	return err
}
