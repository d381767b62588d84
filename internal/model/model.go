// Package model defines the core domain models for drivetidy.
package model

import (
	"time"
)

// FileRecord is a snapshot of one remote file taken at fetch time.
// Records are never mutated after the Fetcher creates them.
type FileRecord struct {
	ID          string `json:"id"`
	Fingerprint string `json:"content_fingerprint"`
	Name        string `json:"display_name"`
	ViewLink    string `json:"view_link"`
	SizeBytes   int64  `json:"size_bytes"` // quota bytes used, not raw content size
}

// DuplicateSet is two or more records sharing one content fingerprint.
// Members keep the order they were encountered in; Members[0] is retained.
type DuplicateSet struct {
	Fingerprint string       `json:"content_fingerprint"`
	Members     []FileRecord `json:"members"`
}

// Representative returns the member that is kept.
func (s DuplicateSet) Representative() FileRecord {
	return s.Members[0]
}

// Extras returns the members that would be removed.
func (s DuplicateSet) Extras() []FileRecord {
	if len(s.Members) < 2 {
		return nil
	}
	return s.Members[1:]
}

// PhotoRecord is an image file with the timestamps needed for date fixing.
type PhotoRecord struct {
	ID           string    `json:"id"`
	Name         string    `json:"display_name"`
	ViewLink     string    `json:"view_link"`
	CaptureTime  string    `json:"capture_time,omitempty"` // raw EXIF "2006:01:02 15:04:05"
	ModifiedTime time.Time `json:"modified_time"`
}

// DatePatch moves a photo's modification time to its capture time.
type DatePatch struct {
	FileID string    `json:"file_id"`
	Name   string    `json:"display_name"`
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`
}

// RunKind identifies which command produced a ledger run.
type RunKind string

const (
	RunKindDedupe  RunKind = "dedupe"
	RunKindDateFix RunKind = "datefix"
)

// RunState represents the state of a ledger run.
type RunState string

const (
	RunStatePending   RunState = "pending"
	RunStateDeclined  RunState = "declined"
	RunStateCompleted RunState = "completed"
	RunStatePartial   RunState = "partial"
	RunStateFailed    RunState = "failed"
)

// RunSummary holds the counters reported at the end of a run.
type RunSummary struct {
	Sets             int   `json:"sets"`
	Targets          int   `json:"targets"`
	ReclaimableBytes int64 `json:"reclaimable_bytes"`
	BatchesAttempted int   `json:"batches_attempted"`
	BatchesSucceeded int   `json:"batches_succeeded"`
	Succeeded        int   `json:"succeeded"`
	Failed           int   `json:"failed"`
	Skipped          int   `json:"skipped"`
}

// Run is one recorded invocation of dedupe or datefix.
type Run struct {
	ID         string     `json:"id"` // UUID
	Kind       RunKind    `json:"kind"`
	Provider   string     `json:"provider"`
	State      RunState   `json:"state"`
	Summary    RunSummary `json:"summary"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// OperationState is the recorded result of one remote operation.
type OperationState string

const (
	OperationStateSucceeded OperationState = "succeeded"
	OperationStateFailed    OperationState = "failed"
)

// OperationRecord is the ledger row for one remote operation.
type OperationRecord struct {
	ID         int64          `json:"id"`
	RunID      string         `json:"run_id"`
	BatchIndex int            `json:"batch_index"`
	FileID     string         `json:"file_id"`
	Name       string         `json:"display_name"`
	State      OperationState `json:"state"`
	Error      string         `json:"error,omitempty"`
	RecordedAt time.Time      `json:"recorded_at"`
}
