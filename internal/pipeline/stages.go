package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/attrsync/internal/executor"
	"github.com/roach88/attrsync/internal/reconcile"
	"github.com/roach88/attrsync/internal/store"
)

// normalize streams the input into asset_records and renders each
// record's single-asset payload into payload_candidates.
func (p *Pipeline) normalize(ctx context.Context, r *run) (int, error) {
	if err := p.recreate(ctx, store.TableAssetRecords, store.TablePayloadCandidates); err != nil {
		return 0, err
	}

	records, err := p.store.NewRecordWriter(store.TableAssetRecords, p.cfg.FlushInterval)
	if err != nil {
		return 0, err
	}
	candidates := p.store.NewCandidateWriter(p.cfg.FlushInterval)

	for {
		rec, err := r.input.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return records.Written(), err
		}

		if err := records.Append(ctx, rec); err != nil {
			return records.Written(), err
		}

		payload, err := reconcile.MaterializeRecord(rec, p.cfg.Executor.APIFunction)
		if err != nil {
			return records.Written(), err
		}
		body, err := payload.Encode()
		if err != nil {
			return records.Written(), err
		}
		if err := candidates.Append(ctx, store.Candidate{Record: rec, Payload: body}); err != nil {
			return records.Written(), err
		}
	}

	if err := records.Flush(ctx); err != nil {
		return records.Written(), err
	}
	if err := candidates.Flush(ctx); err != nil {
		return records.Written(), err
	}

	r.summary.InputRows = r.input.Rows()
	r.summary.Records = records.Written()
	return records.Written(), nil
}

// detectConflicts writes conflict_set from asset_records.
func (p *Pipeline) detectConflicts(ctx context.Context, r *run) (int, error) {
	records, err := p.store.ReadAssetRecords(ctx, store.TableAssetRecords)
	if err != nil {
		return 0, err
	}

	conflicts := reconcile.DetectConflicts(records)
	if err := p.recreate(ctx, store.TableConflictSet); err != nil {
		return 0, err
	}
	if err := p.store.WriteConflictSet(ctx, conflicts); err != nil {
		return 0, err
	}

	if conflicts.Len() > 0 {
		p.logger.Warn("conflicting asset ids excluded from the run",
			"run_id", r.id,
			"conflicts", conflicts.Len(),
			"table", string(store.TableConflictSet),
		)
	}
	r.summary.Conflicts = conflicts.Len()
	return conflicts.Len(), nil
}

// deduplicate splits asset_records into clean_records and
// duplicate_records using the stored conflict_set.
func (p *Pipeline) deduplicate(ctx context.Context, r *run) (int, error) {
	records, err := p.store.ReadAssetRecords(ctx, store.TableAssetRecords)
	if err != nil {
		return 0, err
	}
	conflicts, err := p.store.ReadConflictSet(ctx)
	if err != nil {
		return 0, err
	}

	clean, dropped := reconcile.Deduplicate(records, conflicts)
	if err := p.recreate(ctx, store.TableDuplicateRecords, store.TableCleanRecords); err != nil {
		return 0, err
	}

	dupWriter, err := p.store.NewRecordWriter(store.TableDuplicateRecords, p.cfg.FlushInterval)
	if err != nil {
		return 0, err
	}
	for _, rec := range dropped {
		if err := dupWriter.Append(ctx, rec); err != nil {
			return 0, err
		}
	}
	if err := dupWriter.Flush(ctx); err != nil {
		return 0, err
	}

	cleanWriter, err := p.store.NewRecordWriter(store.TableCleanRecords, p.cfg.FlushInterval)
	if err != nil {
		return 0, err
	}
	for _, rec := range clean {
		if err := cleanWriter.Append(ctx, rec); err != nil {
			return 0, err
		}
	}
	if err := cleanWriter.Flush(ctx); err != nil {
		return 0, err
	}

	r.summary.Duplicates = len(dropped)
	r.summary.Clean = len(clean)
	return len(clean), nil
}

// group writes one grouped_batches row per distinct attribute set of
// clean_records.
func (p *Pipeline) group(ctx context.Context, r *run) (int, error) {
	records, err := p.store.ReadAssetRecords(ctx, store.TableCleanRecords)
	if err != nil {
		return 0, err
	}

	groups := reconcile.Group(records)
	if err := p.recreate(ctx, store.TableGroupedBatches); err != nil {
		return 0, err
	}

	w := p.store.NewGroupWriter(p.cfg.FlushInterval)
	for _, g := range groups {
		if err := w.Append(ctx, g); err != nil {
			return 0, err
		}
	}
	if err := w.Flush(ctx); err != nil {
		return 0, err
	}

	r.summary.Groups = len(groups)
	return len(groups), nil
}

// split cuts each stored group into batches of at most MaxBatchSize ids.
func (p *Pipeline) split(ctx context.Context, r *run) (int, error) {
	groups, err := p.store.ReadGroups(ctx)
	if err != nil {
		return 0, err
	}

	batches, err := reconcile.SplitAll(groups, p.cfg.MaxBatchSize)
	if err != nil {
		return 0, err
	}
	if err := p.recreate(ctx, store.TableSplitBatches); err != nil {
		return 0, err
	}

	w := p.store.NewSplitWriter(p.cfg.FlushInterval)
	for _, b := range batches {
		if err := w.Append(ctx, b); err != nil {
			return 0, err
		}
	}
	if err := w.Flush(ctx); err != nil {
		return 0, err
	}

	r.summary.Batches = len(batches)
	return len(batches), nil
}

// materialize renders the request body of every split batch into
// transformed_payloads. A row that cannot be decoded is skipped with a
// warning.
func (p *Pipeline) materialize(ctx context.Context, r *run) (int, error) {
	batches, skipped, err := p.store.ReadSplitBatches(ctx)
	if err != nil {
		return 0, err
	}
	p.warnSkipped(r, skipped)

	if err := p.recreate(ctx, store.TableTransformedPayloads); err != nil {
		return 0, err
	}

	w := p.store.NewPayloadWriter(p.cfg.FlushInterval)
	for _, b := range batches {
		payload, err := reconcile.Materialize(b, p.cfg.Executor.APIFunction)
		if err != nil {
			return w.Written(), err
		}
		body, err := payload.Encode()
		if err != nil {
			return w.Written(), err
		}
		if err := w.Append(ctx, store.TransformedPayload{Batch: b, Payload: body}); err != nil {
			return w.Written(), err
		}
	}
	if err := w.Flush(ctx); err != nil {
		return w.Written(), err
	}
	return w.Written(), nil
}

// execute delivers every transformed payload and writes execution_log.
func (p *Pipeline) execute(ctx context.Context, r *run) (int, error) {
	payloads, skipped, err := p.store.ReadTransformedPayloads(context.WithoutCancel(ctx))
	if err != nil {
		return 0, err
	}
	p.warnSkipped(r, skipped)

	if err := p.recreate(context.WithoutCancel(ctx), store.TableExecutionLog); err != nil {
		return 0, err
	}

	items := make([]executor.Item, len(payloads))
	for i, tp := range payloads {
		items[i] = executor.Item{Batch: tp.Batch, Payload: tp.Payload}
	}

	cfg := p.cfg.Executor
	cfg.RunID = r.id
	opts := append([]executor.Option{
		executor.WithLogger(p.logger.With("run_id", r.id)),
		executor.WithMetrics(p.metrics),
	}, p.execOpts...)

	sink := p.store.NewExecutionLogWriter(p.cfg.FlushInterval)
	summary, err := executor.New(cfg, opts...).Execute(ctx, items, sink)
	r.summary.Execution = summary
	if err != nil {
		return summary.Batches, err
	}
	return summary.Batches, nil
}

func (p *Pipeline) recreate(ctx context.Context, tables ...store.Table) error {
	for _, table := range tables {
		if err := p.store.Recreate(ctx, table); err != nil {
			return fmt.Errorf("prepare stage table: %w", err)
		}
	}
	return nil
}

func (p *Pipeline) warnSkipped(r *run, skipped []*store.RowError) {
	for _, rowErr := range skipped {
		p.logger.Warn("skipping undecodable row",
			"run_id", r.id,
			"table", string(rowErr.Table),
			"row", rowErr.RowID,
			"error", rowErr.Err,
		)
	}
	r.summary.Skipped += len(skipped)
}
