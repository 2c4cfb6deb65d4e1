package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/attrsync/internal/ir"
)

// DefaultFlushInterval is the number of rows committed per transaction
// when a writer is created with a non-positive interval.
const DefaultFlushInterval = 1000

// Writer buffers rows of one table and commits them in one transaction
// per flush. Rows are inserted in Append order, so rowid order is write
// order.
//
// Not safe for concurrent use.
type Writer[T any] struct {
	db         *sql.DB
	table      Table
	insert     string
	encode     func(T) ([]any, error)
	flushEvery int
	pending    [][]any
	written    int
}

func newWriter[T any](s *Store, table Table, columns []string, flushEvery int, encode func(T) ([]any, error)) *Writer[T] {
	if flushEvery <= 0 {
		flushEvery = DefaultFlushInterval
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	return &Writer[T]{
		db:         s.db,
		table:      table,
		insert:     fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), placeholders),
		encode:     encode,
		flushEvery: flushEvery,
	}
}

// Append buffers one row and flushes when the interval is reached.
func (w *Writer[T]) Append(ctx context.Context, v T) error {
	args, err := w.encode(v)
	if err != nil {
		return fmt.Errorf("append %s: %w", w.table, err)
	}
	w.pending = append(w.pending, args)
	if len(w.pending) >= w.flushEvery {
		return w.Flush(ctx)
	}
	return nil
}

// Flush commits every buffered row. A failed flush keeps the buffer so
// the caller may retry.
func (w *Writer[T]) Flush(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("flush %s: begin tx: %w", w.table, err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, w.insert)
	if err != nil {
		return fmt.Errorf("flush %s: prepare: %w", w.table, err)
	}
	defer stmt.Close()

	for _, args := range w.pending {
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("flush %s: insert: %w", w.table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("flush %s: commit: %w", w.table, err)
	}

	w.written += len(w.pending)
	w.pending = w.pending[:0]
	return nil
}

// Written returns the number of committed rows.
func (w *Writer[T]) Written() int {
	return w.written
}

// Pending returns the number of buffered rows not yet committed.
func (w *Writer[T]) Pending() int {
	return len(w.pending)
}

// Candidate is the single-asset payload rendered for one normalized record.
type Candidate struct {
	Record  ir.AssetRecord
	Payload []byte
}

// TransformedPayload is one batch with its rendered request body.
type TransformedPayload struct {
	Batch   ir.Batch
	Payload []byte
	Digest  string
}

var (
	recordColumns = []string{"asset_id", "attributes", "fingerprint"}
	batchColumns  = []string{"group_number", "batch_number", "asset_ids", "attributes", "fingerprint", "count_asset_ids"}
)

// NewRecordWriter returns a writer for asset_records, duplicate_records or
// clean_records.
func (s *Store) NewRecordWriter(table Table, flushEvery int) (*Writer[ir.AssetRecord], error) {
	switch table {
	case TableAssetRecords, TableDuplicateRecords, TableCleanRecords:
	default:
		return nil, fmt.Errorf("record writer: %w: %q holds no asset records", ErrUnknownTable, table)
	}
	return newWriter(s, table, recordColumns, flushEvery, encodeRecord), nil
}

// NewCandidateWriter returns a writer for payload_candidates.
func (s *Store) NewCandidateWriter(flushEvery int) *Writer[Candidate] {
	columns := []string{"asset_id", "payload", "payload_custom_attributes", "fingerprint"}
	return newWriter(s, TablePayloadCandidates, columns, flushEvery, encodeCandidate)
}

// NewGroupWriter returns a writer for grouped_batches.
func (s *Store) NewGroupWriter(flushEvery int) *Writer[ir.Group] {
	columns := []string{"group_number", "asset_ids", "attributes", "fingerprint", "count_asset_ids"}
	return newWriter(s, TableGroupedBatches, columns, flushEvery, encodeGroup)
}

// NewSplitWriter returns a writer for split_batches.
func (s *Store) NewSplitWriter(flushEvery int) *Writer[ir.Batch] {
	return newWriter(s, TableSplitBatches, batchColumns, flushEvery, encodeBatch)
}

// NewPayloadWriter returns a writer for transformed_payloads.
func (s *Store) NewPayloadWriter(flushEvery int) *Writer[TransformedPayload] {
	columns := append(append([]string{}, batchColumns...), "payload", "payload_digest")
	return newWriter(s, TableTransformedPayloads, columns, flushEvery, encodePayload)
}

// NewExecutionLogWriter returns a writer for execution_log. It satisfies
// the executor's record sink.
func (s *Store) NewExecutionLogWriter(flushEvery int) *Writer[ir.ExecutionRecord] {
	columns := append(append([]string{}, batchColumns...),
		"payload", "payload_digest", "api_function", "status", "attempts", "execution_log", "run_id")
	return newWriter(s, TableExecutionLog, columns, flushEvery, encodeExecution)
}

func encodeRecord(rec ir.AssetRecord) ([]any, error) {
	attrs, err := marshalAttributes(rec.Attributes)
	if err != nil {
		return nil, err
	}
	return []any{rec.AssetID, attrs, rec.Fingerprint().String()}, nil
}

func encodeCandidate(c Candidate) ([]any, error) {
	custom, err := marshalAttributes(c.Record.Attributes.Clean().NonEmpty())
	if err != nil {
		return nil, err
	}
	return []any{c.Record.AssetID, string(c.Payload), custom, c.Record.Fingerprint().String()}, nil
}

func encodeGroup(g ir.Group) ([]any, error) {
	attrs, err := marshalAttributes(g.Attributes)
	if err != nil {
		return nil, err
	}
	return []any{g.Number, joinIDs(g.AssetIDs), attrs, g.Fingerprint.String(), g.Count()}, nil
}

func encodeBatch(b ir.Batch) ([]any, error) {
	attrs, err := marshalAttributes(b.Attributes)
	if err != nil {
		return nil, err
	}
	return []any{b.GroupNumber, b.BatchNumber, joinIDs(b.AssetIDs), attrs, b.Fingerprint.String(), b.Count()}, nil
}

func encodePayload(p TransformedPayload) ([]any, error) {
	args, err := encodeBatch(p.Batch)
	if err != nil {
		return nil, err
	}
	digest := p.Digest
	if digest == "" {
		digest = ir.PayloadDigest(p.Payload)
	}
	return append(args, string(p.Payload), digest), nil
}

func encodeExecution(rec ir.ExecutionRecord) ([]any, error) {
	if !rec.APIFunction.Valid() {
		return nil, fmt.Errorf("invalid api function %q", rec.APIFunction)
	}
	args, err := encodeBatch(rec.Batch)
	if err != nil {
		return nil, err
	}
	return append(args,
		rec.Payload,
		ir.PayloadDigest([]byte(rec.Payload)),
		string(rec.APIFunction),
		string(rec.Status),
		rec.Attempts,
		rec.Log,
		rec.RunID,
	), nil
}
