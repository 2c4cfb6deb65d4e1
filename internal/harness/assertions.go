package harness

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/roach88/attrsync/internal/store"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Identifiers cannot be bound as parameters, so they are checked against
// this pattern before interpolation.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s status=%s\n", event.Seq, event.Type, event.Label(), event.Status)
		}
	}

	return buf.String()
}

// matchEvent reports whether event passes the assertion's filter.
func matchEvent(event TraceEvent, a Assertion) bool {
	if a.Event != "" && event.Type != a.Event {
		return false
	}
	if a.Group != 0 && event.Group != a.Group {
		return false
	}
	if a.Batch != 0 && event.Batch != a.Batch {
		return false
	}
	if a.Status != "" && event.Status != a.Status {
		return false
	}
	return true
}

func describeFilter(a Assertion) string {
	var parts []string
	if a.Event != "" {
		parts = append(parts, "event="+a.Event)
	}
	if a.Group != 0 {
		parts = append(parts, fmt.Sprintf("group=%d", a.Group))
	}
	if a.Batch != 0 {
		parts = append(parts, fmt.Sprintf("batch=%d", a.Batch))
	}
	if a.Status != "" {
		parts = append(parts, "status="+a.Status)
	}
	if len(parts) == 0 {
		return "any event"
	}
	return strings.Join(parts, " ")
}

// assertTraceContains checks that some event matches the filter.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if matchEvent(event, a) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: describeFilter(a),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the listed records appear in order.
// Records need not be consecutive.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for _, event := range trace {
		if event.Type != EventRecord {
			continue
		}
		if _, seen := positions[event.Label()]; !seen {
			positions[event.Label()] = event.Seq
		}
	}

	for _, label := range a.Order {
		if positions[label] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("records present: %v", a.Order),
				Actual:   fmt.Sprintf("missing record: %s", label),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Order); i++ {
		prev, curr := a.Order[i-1], a.Order[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("records in order: %v", a.Order),
				Actual: fmt.Sprintf("%s (seq %d) should be before %s (seq %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks that exactly Count events match the filter.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if matchEvent(event, a) {
			count++
		}
	}

	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d events matching %s", a.Count, describeFilter(a)),
			Actual:   fmt.Sprintf("%d events", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertDelays checks the retry delays in request order.
func assertDelays(actual []time.Duration, a Assertion) error {
	if slices.Equal(actual, a.Delays) || (len(actual) == 0 && len(a.Delays) == 0) {
		return nil
	}
	return &AssertionError{
		Type:     AssertDelays,
		Expected: fmt.Sprintf("%v", a.Delays),
		Actual:   fmt.Sprintf("%v", actual),
	}
}

// assertRowCount checks the number of rows in a table. A table that was
// never created holds zero rows.
func assertRowCount(ctx context.Context, st *store.Store, a Assertion) error {
	table := store.Table(a.Table)
	exists, err := st.TableExists(ctx, table)
	if err != nil {
		return err
	}

	count := 0
	if exists {
		if count, err = st.CountRows(ctx, table); err != nil {
			return err
		}
	}

	if count != a.Count {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows in %s", a.Count, a.Table),
			Actual:   fmt.Sprintf("%d rows", count),
		}
	}
	return nil
}

// assertFinalState checks that exactly one row of the table matches Where
// and that it carries the Expect values (subset semantics).
//
// Values are always bound as parameters. Table and column names are
// validated against validIdentifier.
func assertFinalState(ctx context.Context, st *store.Store, a Assertion) error {
	if a.Table == "" {
		return fmt.Errorf("final_state assertion requires table name")
	}

	if !validIdentifier.MatchString(a.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", a.Table, validIdentifier.String())
	}

	whereSQL, whereArgs, err := buildWhereClause(a.Where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT * FROM %s", a.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := st.DB().QueryContext(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", a.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", a.Table, formatWhereClause(a.Where)),
			Actual:   "row not found",
		}
	}

	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", a.Table, formatWhereClause(a.Where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actualRow := make(map[string]any, len(columns))
	for i, col := range columns {
		actualRow[col] = values[i]
	}

	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		expectedValue := a.Expect[key]
		actualValue, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}

		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}

	return nil
}

// buildWhereClause constructs a parameterized WHERE clause. Keys are
// sorted for determinism.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))

	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		clauses = append(clauses, fmt.Sprintf("%s = ?", key))
		args = append(args, toSQLValue(where[key]))
	}

	return strings.Join(clauses, " AND "), args, nil
}

// toSQLValue converts a YAML scalar to a SQL-compatible value.
func toSQLValue(v any) any {
	switch val := v.(type) {
	case string, int, int64, float64:
		return val
	case bool:
		if val {
			return 1
		}
		return 0
	default:
		return fmt.Sprintf("%v", val)
	}
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares a YAML value with a SQLite column value.
// SQLite returns integers as int64, text as string or []byte, and stores
// booleans as 0/1.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil && actual == nil {
		return true
	}
	if expected == nil || actual == nil {
		return false
	}

	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}

	switch exp := expected.(type) {
	case string:
		if actualStr, ok := actual.(string); ok {
			return exp == actualStr
		}
		return false
	case int:
		if actualInt, ok := actual.(int64); ok {
			return int64(exp) == actualInt
		}
		if actualInt, ok := actual.(int); ok {
			return exp == actualInt
		}
		return false
	case int64:
		if actualInt, ok := actual.(int64); ok {
			return exp == actualInt
		}
		return false
	case bool:
		if actualBool, ok := actual.(bool); ok {
			return exp == actualBool
		}
		if actualInt, ok := actual.(int64); ok {
			return exp == (actualInt != 0)
		}
		return false
	}

	return reflect.DeepEqual(expected, actual)
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store  *store.Store
	Ctx    context.Context
	Delays []time.Duration
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for table assertions and
// the recorded delays.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertDelays:
			if actx == nil {
				err = fmt.Errorf("assertion[%d]: delays requires an assertion context", i)
			} else {
				err = assertDelays(actx.Delays, assertion)
			}
		case AssertFinalState, AssertRowCount:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires database context", i, assertion.Type)
			} else if assertion.Type == AssertFinalState {
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			} else {
				err = assertRowCount(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	return errs
}
