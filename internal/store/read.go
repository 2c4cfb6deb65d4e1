package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/attrsync/internal/ir"
)

// ErrRunNotFound is returned when run_metadata has no row for a run id.
var ErrRunNotFound = errors.New("run not found")

// ErrMalformedPayload marks a transformed_payloads row whose request body
// is not valid JSON.
var ErrMalformedPayload = errors.New("payload is not valid JSON")

// RowError reports one stored row that could not be decoded. Readers that
// return RowErrors skip the row and keep going.
type RowError struct {
	Table Table
	RowID int64
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s row %d: %v", e.Table, e.RowID, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// ReadAssetRecords returns the rows of asset_records, duplicate_records or
// clean_records in write order.
//
// Returns an empty slice (not nil) if the table has no rows.
func (s *Store) ReadAssetRecords(ctx context.Context, table Table) ([]ir.AssetRecord, error) {
	switch table {
	case TableAssetRecords, TableDuplicateRecords, TableCleanRecords:
	default:
		return nil, fmt.Errorf("read asset records: %w: %q holds no asset records", ErrUnknownTable, table)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT asset_id, attributes FROM "+string(table)+" ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	records := []ir.AssetRecord{}
	for rows.Next() {
		var id, attrsJSON string
		if err := rows.Scan(&id, &attrsJSON); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		attrs, err := unmarshalAttributes(attrsJSON)
		if err != nil {
			return nil, fmt.Errorf("read %s %q: %w", table, id, err)
		}
		records = append(records, ir.AssetRecord{AssetID: id, Attributes: attrs})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return records, nil
}

// ReadConflictSet loads conflict_set.
func (s *Store) ReadConflictSet(ctx context.Context) (*ir.ConflictSet, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT asset_id, fingerprint_count FROM conflict_set ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("query conflict_set: %w", err)
	}
	defer rows.Close()

	conflicts := ir.NewConflictSet()
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan conflict_set: %w", err)
		}
		conflicts.Add(id, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conflict_set: %w", err)
	}
	return conflicts, nil
}

// ReadGroups returns grouped_batches in group order.
func (s *Store) ReadGroups(ctx context.Context) ([]ir.Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT group_number, asset_ids, attributes, fingerprint
		FROM grouped_batches
		ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("query grouped_batches: %w", err)
	}
	defer rows.Close()

	groups := []ir.Group{}
	for rows.Next() {
		var g ir.Group
		var ids, attrsJSON, fp string
		if err := rows.Scan(&g.Number, &ids, &attrsJSON, &fp); err != nil {
			return nil, fmt.Errorf("scan grouped_batches: %w", err)
		}
		if g.Attributes, err = unmarshalAttributes(attrsJSON); err != nil {
			return nil, fmt.Errorf("read group %d: %w", g.Number, err)
		}
		if g.Fingerprint, err = parseFingerprint(fp); err != nil {
			return nil, fmt.Errorf("read group %d: %w", g.Number, err)
		}
		g.AssetIDs = splitIDs(ids)
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grouped_batches: %w", err)
	}
	return groups, nil
}

// batchScanner reads the batch columns shared by split_batches,
// transformed_payloads and execution_log.
type batchScanner struct {
	rowID     int64
	batch     ir.Batch
	ids       string
	attrsJSON string
	fp        string
}

func (b *batchScanner) dest() []any {
	return []any{&b.rowID, &b.batch.GroupNumber, &b.batch.BatchNumber, &b.ids, &b.attrsJSON, &b.fp}
}

func (b *batchScanner) decode() (ir.Batch, error) {
	attrs, err := unmarshalAttributes(b.attrsJSON)
	if err != nil {
		return ir.Batch{}, err
	}
	fp, err := parseFingerprint(b.fp)
	if err != nil {
		return ir.Batch{}, err
	}
	batch := b.batch
	batch.AssetIDs = splitIDs(b.ids)
	batch.Attributes = attrs
	batch.Fingerprint = fp
	return batch, nil
}

const batchSelect = "rowid, group_number, batch_number, asset_ids, attributes, fingerprint"

// ReadSplitBatches returns split_batches in write order. Rows whose
// attributes or fingerprint do not decode are skipped and reported as
// RowErrors.
func (s *Store) ReadSplitBatches(ctx context.Context) ([]ir.Batch, []*RowError, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+batchSelect+" FROM split_batches ORDER BY rowid")
	if err != nil {
		return nil, nil, fmt.Errorf("query split_batches: %w", err)
	}
	defer rows.Close()

	batches := []ir.Batch{}
	var skipped []*RowError
	for rows.Next() {
		var sc batchScanner
		if err := rows.Scan(sc.dest()...); err != nil {
			return nil, nil, fmt.Errorf("scan split_batches: %w", err)
		}
		batch, err := sc.decode()
		if err != nil {
			skipped = append(skipped, &RowError{Table: TableSplitBatches, RowID: sc.rowID, Err: err})
			continue
		}
		batches = append(batches, batch)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate split_batches: %w", err)
	}
	return batches, skipped, nil
}

// ReadTransformedPayloads returns transformed_payloads in write order,
// skipping undecodable rows like ReadSplitBatches. A row whose payload is
// not valid JSON is skipped too; it is never sent.
func (s *Store) ReadTransformedPayloads(ctx context.Context) ([]TransformedPayload, []*RowError, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+batchSelect+", payload, payload_digest FROM transformed_payloads ORDER BY rowid")
	if err != nil {
		return nil, nil, fmt.Errorf("query transformed_payloads: %w", err)
	}
	defer rows.Close()

	payloads := []TransformedPayload{}
	var skipped []*RowError
	for rows.Next() {
		var sc batchScanner
		var payload, digest string
		if err := rows.Scan(append(sc.dest(), &payload, &digest)...); err != nil {
			return nil, nil, fmt.Errorf("scan transformed_payloads: %w", err)
		}
		batch, err := sc.decode()
		if err != nil {
			skipped = append(skipped, &RowError{Table: TableTransformedPayloads, RowID: sc.rowID, Err: err})
			continue
		}
		if !json.Valid([]byte(payload)) {
			skipped = append(skipped, &RowError{Table: TableTransformedPayloads, RowID: sc.rowID, Err: ErrMalformedPayload})
			continue
		}
		payloads = append(payloads, TransformedPayload{Batch: batch, Payload: []byte(payload), Digest: digest})
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate transformed_payloads: %w", err)
	}
	return payloads, skipped, nil
}

// ReadExecutionLog returns execution_log in write order, which is batch
// order.
func (s *Store) ReadExecutionLog(ctx context.Context) ([]ir.ExecutionRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+batchSelect+
		", payload, api_function, status, attempts, execution_log, run_id FROM execution_log ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("query execution_log: %w", err)
	}
	defer rows.Close()

	records := []ir.ExecutionRecord{}
	for rows.Next() {
		var sc batchScanner
		var rec ir.ExecutionRecord
		var fn, status string
		dest := append(sc.dest(), &rec.Payload, &fn, &status, &rec.Attempts, &rec.Log, &rec.RunID)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan execution_log: %w", err)
		}
		if rec.Batch, err = sc.decode(); err != nil {
			return nil, fmt.Errorf("read execution_log row %d: %w", sc.rowID, err)
		}
		rec.APIFunction = ir.APIFunction(fn)
		rec.Status = ir.Status(status)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate execution_log: %w", err)
	}
	return records, nil
}

// ReadRun returns the run_metadata row of one run.
func (s *Store) ReadRun(ctx context.Context, runID string) (RunMetadata, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, started_at, finished_at, api_function, dry_run, outcome, message
		FROM run_metadata
		WHERE run_id = ?
	`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunMetadata{}, fmt.Errorf("read run %q: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return RunMetadata{}, fmt.Errorf("read run %q: %w", runID, err)
	}
	return run, nil
}

// ReadRuns returns every recorded run, oldest first.
func (s *Store) ReadRuns(ctx context.Context) ([]RunMetadata, error) {
	exists, err := s.TableExists(ctx, TableRunMetadata)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []RunMetadata{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, started_at, finished_at, api_function, dry_run, outcome, message
		FROM run_metadata
		ORDER BY started_at ASC, run_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query run_metadata: %w", err)
	}
	defer rows.Close()

	runs := []RunMetadata{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("read run_metadata: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run_metadata: %w", err)
	}
	return runs, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunMetadata, error) {
	var run RunMetadata
	var started, fn, outcome string
	var finished sql.NullString
	var dryRun int
	if err := row.Scan(&run.RunID, &started, &finished, &fn, &dryRun, &outcome, &run.Message); err != nil {
		return RunMetadata{}, err
	}

	var err error
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return RunMetadata{}, fmt.Errorf("parse started_at: %w", err)
	}
	if finished.Valid {
		if run.FinishedAt, err = time.Parse(time.RFC3339Nano, finished.String); err != nil {
			return RunMetadata{}, fmt.Errorf("parse finished_at: %w", err)
		}
	}
	run.APIFunction = ir.APIFunction(fn)
	run.DryRun = dryRun != 0
	run.Outcome = RunOutcome(outcome)
	return run, nil
}
