package harness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/attrsync/internal/store"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Type: EventCall, Seq: 1, Group: 1, Batch: 1, Status: "429", Attempt: 1},
		{Type: EventCall, Seq: 2, Group: 1, Batch: 1, Status: "200", Attempt: 2},
		{Type: EventRecord, Seq: 3, Group: 1, Batch: 1, Status: "200", Attempts: 2, AssetIDs: []string{"1"}},
		{Type: EventCall, Seq: 4, Group: 2, Batch: 1, Status: "200", Attempt: 1},
		{Type: EventRecord, Seq: 5, Group: 2, Batch: 1, Status: "200", Attempts: 1, AssetIDs: []string{"2"}},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceContains(trace, Assertion{Event: EventCall, Status: "429"}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Event: EventRecord, Group: 2}))

	err := assertTraceContains(trace, Assertion{Event: EventRecord, Status: "429"})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertTraceContains, ae.Type)
	assert.Equal(t, "event=record status=429", ae.Expected)
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Order: []string{"1/1", "2/1"}}))

	err := assertTraceOrder(trace, Assertion{Order: []string{"2/1", "1/1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2/1 (seq 5) should be before 1/1 (seq 3)")

	err = assertTraceOrder(trace, Assertion{Order: []string{"1/1", "3/1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing record: 3/1")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Event: EventCall, Count: 3}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Event: EventCall, Group: 1, Batch: 1, Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Status: "500", Count: 0}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Count: 5}))

	err := assertTraceCount(trace, Assertion{Event: EventRecord, Count: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 events")
}

func TestAssertDelays(t *testing.T) {
	delays := []time.Duration{30 * time.Second, 165 * time.Second}

	assert.NoError(t, assertDelays(delays, Assertion{Delays: []time.Duration{30 * time.Second, 165 * time.Second}}))
	assert.NoError(t, assertDelays(nil, Assertion{}))
	assert.NoError(t, assertDelays([]time.Duration{}, Assertion{}))
	assert.Error(t, assertDelays(delays, Assertion{Delays: []time.Duration{30 * time.Second}}))
	assert.Error(t, assertDelays(nil, Assertion{Delays: []time.Duration{time.Second}}))
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceCount,
		Expected: "3 events",
		Actual:   "2 events",
		Trace:    sampleTrace()[:1],
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: trace_count")
	assert.Contains(t, msg, "Expected: 3 events")
	assert.Contains(t, msg, "Actual: 2 events")
	assert.Contains(t, msg, "[1] call 1/1 status=429")
}

func TestBuildWhereClause(t *testing.T) {
	sql, args, err := buildWhereClause(nil)
	require.NoError(t, err)
	assert.Empty(t, sql)
	assert.Nil(t, args)

	sql, args, err = buildWhereClause(map[string]any{"status": "200", "batch_number": 2, "group_number": 1})
	require.NoError(t, err)
	assert.Equal(t, "batch_number = ? AND group_number = ? AND status = ?", sql)
	assert.Equal(t, []any{2, 1, "200"}, args)
}

func TestBuildWhereClause_NoInterpolation(t *testing.T) {
	sql, args, err := buildWhereClause(map[string]any{"asset_id": "1' OR '1'='1"})
	require.NoError(t, err)
	assert.Equal(t, "asset_id = ?", sql)
	assert.Equal(t, []any{"1' OR '1'='1"}, args)
}

func TestBuildWhereClause_InvalidColumnName(t *testing.T) {
	_, _, err := buildWhereClause(map[string]any{"id; DROP TABLE x": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid column name")
}

func TestToSQLValue(t *testing.T) {
	assert.Equal(t, "x", toSQLValue("x"))
	assert.Equal(t, 3, toSQLValue(3))
	assert.Equal(t, 1, toSQLValue(true))
	assert.Equal(t, 0, toSQLValue(false))
	assert.Equal(t, "[a]", toSQLValue([]string{"a"}))
}

func TestFormatWhereClause(t *testing.T) {
	assert.Equal(t, "(no conditions)", formatWhereClause(nil))
	assert.Equal(t, "a=1 AND b=x", formatWhereClause(map[string]any{"b": "x", "a": 1}))
}

func TestStateValuesEqual(t *testing.T) {
	assert.True(t, stateValuesEqual("200", "200"))
	assert.True(t, stateValuesEqual("200", []byte("200")))
	assert.False(t, stateValuesEqual("200", int64(200)))
	assert.True(t, stateValuesEqual(3, int64(3)))
	assert.False(t, stateValuesEqual(3, int64(4)))
	assert.True(t, stateValuesEqual(true, int64(1)))
	assert.True(t, stateValuesEqual(false, int64(0)))
	assert.True(t, stateValuesEqual(nil, nil))
	assert.False(t, stateValuesEqual(nil, "x"))
	assert.False(t, stateValuesEqual("x", nil))
}

// seededStore returns an in-memory store holding a two-row execution log.
func seededStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	require.NoError(t, st.Recreate(ctx, store.TableConflictSet))
	_, err = st.DB().ExecContext(ctx,
		"INSERT INTO conflict_set (asset_id, fingerprint_count) VALUES ('3', 2), ('7', 3)")
	require.NoError(t, err)
	return st
}

func TestAssertFinalState(t *testing.T) {
	st := seededStore(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		assertion Assertion
		wantErr   string
	}{
		{
			name:      "row found",
			assertion: Assertion{Table: "conflict_set", Where: map[string]any{"asset_id": "3"}, Expect: map[string]any{"fingerprint_count": 2}},
		},
		{
			name:      "row not found",
			assertion: Assertion{Table: "conflict_set", Where: map[string]any{"asset_id": "9"}, Expect: map[string]any{"fingerprint_count": 2}},
			wantErr:   "row not found",
		},
		{
			name:      "ambiguous",
			assertion: Assertion{Table: "conflict_set", Expect: map[string]any{"fingerprint_count": 2}},
			wantErr:   "multiple rows matched",
		},
		{
			name:      "value mismatch",
			assertion: Assertion{Table: "conflict_set", Where: map[string]any{"asset_id": "7"}, Expect: map[string]any{"fingerprint_count": 2}},
			wantErr:   `field "fingerprint_count" = 3`,
		},
		{
			name:      "missing column",
			assertion: Assertion{Table: "conflict_set", Where: map[string]any{"asset_id": "7"}, Expect: map[string]any{"status": "200"}},
			wantErr:   `field "status" not present`,
		},
		{
			name:      "missing table",
			assertion: Assertion{Table: "execution_log", Expect: map[string]any{"status": "200"}},
			wantErr:   "query error",
		},
		{
			name:      "invalid table name",
			assertion: Assertion{Table: "conflict_set; DROP TABLE conflict_set", Expect: map[string]any{"a": 1}},
			wantErr:   "invalid table name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertFinalState(ctx, st, tt.assertion)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAssertRowCount(t *testing.T) {
	st := seededStore(t)
	ctx := context.Background()

	assert.NoError(t, assertRowCount(ctx, st, Assertion{Table: "conflict_set", Count: 2}))
	assert.NoError(t, assertRowCount(ctx, st, Assertion{Table: "execution_log", Count: 0}))

	err := assertRowCount(ctx, st, Assertion{Table: "conflict_set", Count: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 rows")
}

func TestEvaluateAssertions(t *testing.T) {
	st := seededStore(t)
	result := NewResult()
	result.Trace = sampleTrace()
	actx := &AssertionContext{Store: st, Ctx: context.Background(), Delays: []time.Duration{time.Second}}

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceCount, Event: EventRecord, Count: 2},
		{Type: AssertDelays, Delays: []time.Duration{time.Second}},
		{Type: AssertRowCount, Table: "conflict_set", Count: 2},
		{Type: AssertFinalState, Table: "conflict_set", Where: map[string]any{"asset_id": "3"}, Expect: map[string]any{"fingerprint_count": 2}},
	}, actx)
	assert.Empty(t, errs)

	errs = EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceCount, Event: EventRecord, Count: 1},
		{Type: "trace_magic"},
	}, actx)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[1], `unknown assertion type "trace_magic"`)

	errs = EvaluateAssertions(result, []Assertion{{Type: AssertRowCount, Table: "conflict_set"}}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "requires database context")
}
