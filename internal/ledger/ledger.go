// Package ledger implements the Provenance Ledger: an append-only,
// in-memory event log finalized atomically to disk at the end of each
// run. Grounded on the teacher's session-scoped sync.RWMutex-guarded
// append idiom and on the atomic-write pattern in its init/scan
// command (write to "<path>.tmp", fsync, os.Rename over the
// destination).
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"codenerd/internal/logging"
)

// EventKind tags one Provenance Event variant (spec.md §3).
type EventKind string

const (
	EventModelUse          EventKind = "model_use"
	EventSafetyCheck       EventKind = "safety_check"
	EventFileModification  EventKind = "file_modification"
	EventConditionRevision EventKind = "condition_revision"
	EventError             EventKind = "error"
)

// Event is one entry in the ledger, carrying a monotonically increasing
// index within the run.
type Event struct {
	Index     int                    `json:"index"`
	Kind      EventKind              `json:"kind"`
	Timestamp int64                  `json:"timestamp"`
	Fields    map[string]interface{} `json:"fields"`
}

// RunRecord is the single top-level object persisted per run (spec.md
// §6, "Ledger format").
type RunRecord struct {
	RunID              string                   `json:"run_id"`
	IssueDescription   string                   `json:"issue_description"`
	TimestampStart     int64                    `json:"timestamp_start"`
	TimestampEnd       int64                    `json:"timestamp_end"`
	DurationSeconds    float64                  `json:"duration_seconds"`
	ModelsUsed         []map[string]interface{} `json:"models_used"`
	SafetyChecks       []map[string]interface{} `json:"safety_checks"`
	FileModifications  []map[string]interface{} `json:"file_modifications"`
	Config             map[string]interface{}   `json:"config"`
	Success            bool                     `json:"success"`
	Errors             []string                 `json:"errors"`
	Metadata           map[string]interface{}   `json:"metadata"`
}

// Ledger accumulates Events for one run under a mutex, matching the
// teacher's concurrent-append-safe collector pattern.
type Ledger struct {
	mu               sync.RWMutex
	runID            string
	issueDescription string
	start            time.Time
	events           []Event
	nextIndex        int
}

// New starts a ledger for one run. The run id is a sortable,
// time-prefixed string, mirroring the teacher's session-id convention.
func New(issueDescription string) *Ledger {
	return &Ledger{
		runID:            newRunID(),
		issueDescription: issueDescription,
		start:            time.Now(),
	}
}

func newRunID() string {
	return fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102T150405.000Z"), uuid.NewString())
}

// RunID returns the run identifier assigned at construction.
func (l *Ledger) RunID() string {
	return l.runID
}

// Append records one event and returns its assigned index.
func (l *Ledger) Append(kind EventKind, fields map[string]interface{}) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.nextIndex
	l.nextIndex++
	l.events = append(l.events, Event{
		Index:     idx,
		Kind:      kind,
		Timestamp: time.Now().UnixMilli(),
		Fields:    fields,
	})
	logging.LedgerDebug("event #%d kind=%s", idx, kind)
	return idx
}

// ModelUse records one model_use event.
func (l *Ledger) ModelUse(phase, modelName, purpose string, inputTokens, outputTokens int, elapsedMs int64) int {
	return l.Append(EventModelUse, map[string]interface{}{
		"phase":         phase,
		"model_name":    modelName,
		"purpose":       purpose,
		"input_tokens":  inputTokens,
		"output_tokens": outputTokens,
		"elapsed_ms":    elapsedMs,
	})
}

// SafetyCheck records one safety_check event.
func (l *Ledger) SafetyCheck(kind string, passed bool, detail string) int {
	return l.Append(EventSafetyCheck, map[string]interface{}{
		"kind":      kind,
		"passed":    passed,
		"detail":    detail,
		"timestamp": time.Now().UnixMilli(),
	})
}

// FileModification records one file_modification event with before/after
// hashes, computed by the caller via crypto/sha256.
func (l *Ledger) FileModification(path, hashBefore, hashAfter string, linesAdded, linesRemoved int) int {
	return l.Append(EventFileModification, map[string]interface{}{
		"path":          path,
		"hash_before":   hashBefore,
		"hash_after":    hashAfter,
		"lines_added":   linesAdded,
		"lines_removed": linesRemoved,
	})
}

// ConditionRevision records one condition_revision event, emitted every
// time C5 rewrites the Condition on a retry.
func (l *Ledger) ConditionRevision(attempt int, diagnostic string) int {
	return l.Append(EventConditionRevision, map[string]interface{}{
		"attempt":    attempt,
		"diagnostic": diagnostic,
	})
}

// Error records one error event.
func (l *Ledger) Error(message string) int {
	return l.Append(EventError, map[string]interface{}{"message": message})
}

// Finalize builds the RunRecord, marshals it to JSON, and writes it
// atomically under artifactsDir as artifact_metadata_<run_id>.json (or
// the _failed suffix when success is false), per spec.md §6.
func (l *Ledger) Finalize(artifactsDir string, success bool, config map[string]interface{}) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	end := time.Now()
	record := RunRecord{
		RunID:            l.runID,
		IssueDescription: l.issueDescription,
		TimestampStart:   l.start.UnixMilli(),
		TimestampEnd:     end.UnixMilli(),
		DurationSeconds:  end.Sub(l.start).Seconds(),
		Config:           config,
		Success:          success,
		Metadata:         map[string]interface{}{},
	}

	for _, e := range l.events {
		entry := map[string]interface{}{"index": e.Index, "timestamp": e.Timestamp}
		for k, v := range e.Fields {
			entry[k] = v
		}
		switch e.Kind {
		case EventModelUse:
			record.ModelsUsed = append(record.ModelsUsed, entry)
		case EventSafetyCheck:
			record.SafetyChecks = append(record.SafetyChecks, entry)
		case EventFileModification:
			record.FileModifications = append(record.FileModifications, entry)
		case EventError:
			if msg, ok := e.Fields["message"].(string); ok {
				record.Errors = append(record.Errors, msg)
			}
		case EventConditionRevision:
			record.Metadata[fmt.Sprintf("condition_revision_%d", e.Index)] = entry
		}
	}

	suffix := ""
	if !success {
		suffix = "_failed"
	}
	filename := fmt.Sprintf("artifact_metadata_%s%s.json", l.runID, suffix)
	destPath := filepath.Join(artifactsDir, filename)

	if err := writeAtomic(destPath, record); err != nil {
		return "", err
	}
	logging.Ledger("finalized run %s success=%v path=%s", l.runID, success, destPath)
	return destPath, nil
}

// writeAtomic serializes v to JSON and writes it to path via a
// temp-file-plus-rename sequence so a crash mid-write never leaves the
// destination partially written (spec.md §8, "Atomic ledger write").
func writeAtomic(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create artifacts dir: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}

	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("open temp ledger file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write temp ledger file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("fsync temp ledger file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp ledger file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename ledger file into place: %w", err)
	}
	return nil
}
