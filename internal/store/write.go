package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/attrsync/internal/ir"
)

// RunOutcome is the final state recorded in run_metadata.
type RunOutcome string

const (
	RunRunning   RunOutcome = "running"
	RunCompleted RunOutcome = "completed"
	RunAborted   RunOutcome = "aborted"
)

// RunMetadata is one row of run_metadata. FinishedAt is zero while the
// run is in progress.
type RunMetadata struct {
	RunID       string         `json:"run_id" yaml:"run_id"`
	StartedAt   time.Time      `json:"started_at" yaml:"started_at"`
	FinishedAt  time.Time      `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	APIFunction ir.APIFunction `json:"api_function" yaml:"api_function"`
	DryRun      bool           `json:"dry_run" yaml:"dry_run"`
	Outcome     RunOutcome     `json:"outcome" yaml:"outcome"`
	Message     string         `json:"message,omitempty" yaml:"message,omitempty"`
}

// WriteConflictSet stores every conflicting id with its fingerprint count,
// in id order, in one transaction. The table must already be recreated.
func (s *Store) WriteConflictSet(ctx context.Context, conflicts *ir.ConflictSet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write conflict set: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO conflict_set (asset_id, fingerprint_count)
		VALUES (?, ?)
	`)
	if err != nil {
		return fmt.Errorf("write conflict set: prepare: %w", err)
	}
	defer stmt.Close()

	for _, id := range conflicts.IDs() {
		if _, err := stmt.ExecContext(ctx, id, conflicts.FingerprintCount(id)); err != nil {
			return fmt.Errorf("write conflict set: insert %q: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write conflict set: commit: %w", err)
	}
	return nil
}

// StartRun records a run as running. run_metadata is created on first use
// and keeps one row per run.
func (s *Store) StartRun(ctx context.Context, run RunMetadata) error {
	if err := s.Ensure(ctx, TableRunMetadata); err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_metadata (run_id, started_at, api_function, dry_run, outcome, message)
		VALUES (?, ?, ?, ?, ?, '')
	`,
		run.RunID,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		string(run.APIFunction),
		boolToInt(run.DryRun),
		string(RunRunning),
	)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// FinishRun sets the end time, outcome and message of a run.
func (s *Store) FinishRun(ctx context.Context, runID string, outcome RunOutcome, message string, finishedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE run_metadata
		SET finished_at = ?, outcome = ?, message = ?
		WHERE run_id = ?
	`,
		finishedAt.UTC().Format(time.RFC3339Nano),
		string(outcome),
		message,
		runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %q: %w", runID, ErrRunNotFound)
	}
	return nil
}
