package reconcile

import (
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/attrsync/internal/ir"
)

func rec(id string, kv ...string) ir.AssetRecord {
	attrs := make(ir.Attributes, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		attrs = append(attrs, ir.Attribute{Key: kv[i], Value: kv[i+1]})
	}
	return ir.AssetRecord{AssetID: id, Attributes: attrs}
}

func ids(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%03d", prefix, i+1)
	}
	return out
}

func TestDetectConflictsDivergentAttributes(t *testing.T) {
	records := []ir.AssetRecord{
		rec("A1", "Business", "X"),
		rec("A1", "Business", "Y"),
		rec("B1", "Business", "X"),
	}

	conflicts := DetectConflicts(records)
	assert.True(t, conflicts.Contains("A1"))
	assert.False(t, conflicts.Contains("B1"))
	assert.Equal(t, 2, conflicts.FingerprintCount("A1"))

	clean, dropped := Deduplicate(records, conflicts)
	assert.Len(t, dropped, 2)

	for _, g := range Group(clean) {
		assert.NotContains(t, g.AssetIDs, "A1")
	}
}

func TestDetectConflictsIdenticalRepeatIsNotConflict(t *testing.T) {
	records := []ir.AssetRecord{
		rec("A1", "Business", "X", "SLA", "Gold"),
		rec(" A1", "SLA", " Gold", "Business", "X"),
	}

	assert.Equal(t, 0, DetectConflicts(records).Len())
}

func TestDetectConflictsBOMNormalized(t *testing.T) {
	records := []ir.AssetRecord{
		rec("\ufeffA1", "Business", "X"),
		rec("A1", "Business", "Y"),
	}

	conflicts := DetectConflicts(records)
	assert.Equal(t, []string{"A1"}, conflicts.IDs())
}

func TestDetectConflictsEmptyInput(t *testing.T) {
	conflicts := DetectConflicts(nil)
	require.NotNil(t, conflicts)
	assert.Equal(t, 0, conflicts.Len())
}

func TestDeduplicateKeepsOrder(t *testing.T) {
	records := []ir.AssetRecord{
		rec("C", "k", "1"),
		rec("A", "k", "1"),
		rec("B", "k", "2"),
		rec("A", "k", "3"),
	}

	clean, dropped := Deduplicate(records, DetectConflicts(records))
	assert.Equal(t, []ir.AssetRecord{records[0], records[2]}, clean)
	assert.Equal(t, []ir.AssetRecord{records[1], records[3]}, dropped)
}

func TestDeduplicateNilConflicts(t *testing.T) {
	records := []ir.AssetRecord{rec("A", "k", "1")}
	clean, dropped := Deduplicate(records, nil)
	assert.Equal(t, records, clean)
	assert.Empty(t, dropped)
}

func TestConflictExclusionIsTotal(t *testing.T) {
	records := []ir.AssetRecord{
		rec("1", "k", "a"), rec("2", "k", "a"), rec("3", "k", "b"),
		rec("2", "k", "b"), rec("4", "k", ""), rec("3", "k", "c"),
		rec("5", "k", "a"), rec("1", "k", "a"),
	}

	conflicts := DetectConflicts(records)
	assert.Equal(t, []string{"2", "3"}, conflicts.IDs())

	clean, _ := Deduplicate(records, conflicts)
	for _, g := range Group(clean) {
		for _, id := range g.AssetIDs {
			assert.False(t, conflicts.Contains(id), "conflicting id %s reached group %d", id, g.Number)
		}
	}
}

func TestGroupFirstSeenOrder(t *testing.T) {
	records := []ir.AssetRecord{
		rec("1", "Business", "X"),
		rec("2", "Business", "Y"),
		rec("3", "Business", "X"),
		rec("4", "Business", "Y"),
		rec("5", "Business", "Z"),
	}

	groups := Group(records)
	require.Len(t, groups, 3)

	assert.Equal(t, 1, groups[0].Number)
	assert.Equal(t, []string{"1", "3"}, groups[0].AssetIDs)
	assert.Equal(t, 2, groups[1].Number)
	assert.Equal(t, []string{"2", "4"}, groups[1].AssetIDs)
	assert.Equal(t, 3, groups[2].Number)
	assert.Equal(t, []string{"5"}, groups[2].AssetIDs)
	assert.Equal(t, 2, groups[0].Count())
}

func TestGroupRepeatedIDListedOnce(t *testing.T) {
	records := []ir.AssetRecord{
		rec("1", "Business", "X"),
		rec("1", "Business", "X"),
		rec("2", "Business", "X"),
	}

	groups := Group(records)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"1", "2"}, groups[0].AssetIDs)
}

func TestGroupOrderIndependentAttributes(t *testing.T) {
	records := []ir.AssetRecord{
		rec("1", "Business", "X", "SLA", "Gold"),
		rec("2", "SLA", "Gold", "Business", "X"),
	}

	groups := Group(records)
	require.Len(t, groups, 1)
	assert.Equal(t, ir.Attributes{{Key: "Business", Value: "X"}, {Key: "SLA", Value: "Gold"}}, groups[0].Attributes)
}

func TestGroupEmptyValuesAreSignificant(t *testing.T) {
	records := []ir.AssetRecord{
		rec("1", "Business", "", "SLA", ""),
		rec("2", "Business", "", "SLA", ""),
		rec("3", "Business", "X", "SLA", ""),
	}

	groups := Group(records)
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"1", "2"}, groups[0].AssetIDs)
	assert.Equal(t, []string{"3"}, groups[1].AssetIDs)
}

func TestGroupEmptyInput(t *testing.T) {
	assert.Empty(t, Group(nil))
}

func TestSplit250(t *testing.T) {
	group := ir.Group{Number: 4, AssetIDs: ids("A", 250)}

	batches, err := Split(group, 100)
	require.NoError(t, err)
	require.Len(t, batches, 3)

	for i, want := range []int{100, 100, 50} {
		assert.Equal(t, i+1, batches[i].BatchNumber)
		assert.Equal(t, 4, batches[i].GroupNumber)
		assert.Equal(t, want, batches[i].Count())
	}
}

func TestSplitRoundTrip(t *testing.T) {
	for _, n := range []int{1, 2, 7, 99, 100, 101, 299} {
		for _, size := range []int{1, 3, 50, 100, 1000} {
			t.Run(fmt.Sprintf("n=%d/size=%d", n, size), func(t *testing.T) {
				group := ir.Group{Number: 1, AssetIDs: ids("X", n)}

				batches, err := Split(group, size)
				require.NoError(t, err)

				var joined []string
				for i, b := range batches {
					assert.Equal(t, i+1, b.BatchNumber)
					assert.LessOrEqual(t, b.Count(), size)
					if i < len(batches)-1 {
						assert.Equal(t, size, b.Count())
					}
					joined = append(joined, b.AssetIDs...)
				}
				assert.Equal(t, group.AssetIDs, joined)
			})
		}
	}
}

func TestSplitEmptyGroup(t *testing.T) {
	fp := ir.FingerprintOf(ir.Attributes{{Key: "k", Value: ""}})
	batches, err := Split(ir.Group{Number: 2, Fingerprint: fp, AssetIDs: []string{}}, 100)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, 1, batches[0].BatchNumber)
	assert.Equal(t, 2, batches[0].GroupNumber)
	assert.Empty(t, batches[0].AssetIDs)
	assert.Equal(t, fp, batches[0].Fingerprint)
}

func TestSplitInvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		_, err := Split(ir.Group{Number: 1, AssetIDs: []string{"a"}}, size)
		require.ErrorIs(t, err, ErrInvalidBatchSize)
	}
}

func TestSplitAllNumbersPerGroup(t *testing.T) {
	groups := []ir.Group{
		{Number: 1, AssetIDs: ids("A", 3)},
		{Number: 2, AssetIDs: ids("B", 2)},
	}

	batches, err := SplitAll(groups, 2)
	require.NoError(t, err)
	require.Len(t, batches, 3)

	assert.Equal(t, [2]int{1, 1}, [2]int{batches[0].GroupNumber, batches[0].BatchNumber})
	assert.Equal(t, [2]int{1, 2}, [2]int{batches[1].GroupNumber, batches[1].BatchNumber})
	assert.Equal(t, [2]int{2, 1}, [2]int{batches[2].GroupNumber, batches[2].BatchNumber})

	_, err = SplitAll(groups, 0)
	require.ErrorIs(t, err, ErrInvalidBatchSize)
}

func TestMaterializeGolden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	batch := ir.Batch{
		GroupNumber: 1,
		BatchNumber: 1,
		AssetIDs:    []string{"101", "102"},
		Attributes: ir.Attributes{
			{Key: "Business", Value: "X"},
			{Key: "Division", Value: ""},
			{Key: "SLA", Value: "Gold"},
		},
	}
	payload, err := Materialize(batch, ir.APIFunctionUpdate)
	require.NoError(t, err)
	body, err := payload.Encode()
	require.NoError(t, err)
	g.Assert(t, "payload_update", body)

	empty := ir.Batch{AssetIDs: []string{"7"}, Attributes: ir.Attributes{{Key: "Business", Value: ""}}}
	payload, err = Materialize(empty, ir.APIFunctionRemove)
	require.NoError(t, err)
	body, err = payload.Encode()
	require.NoError(t, err)
	g.Assert(t, "payload_all_empty", body)
}

func TestMaterializeIdempotent(t *testing.T) {
	batch := ir.Batch{
		AssetIDs:   ids("A", 5),
		Attributes: ir.Attributes{{Key: "B", Value: "1"}, {Key: "A", Value: ""}, {Key: "C", Value: "3"}},
	}

	first, err := Materialize(batch, ir.APIFunctionAdd)
	require.NoError(t, err)
	second, err := Materialize(batch, ir.APIFunctionAdd)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	b1, err := first.Encode()
	require.NoError(t, err)
	b2, err := second.Encode()
	require.NoError(t, err)
	assert.Equal(t, b1, b2)

	decoded, err := ir.DecodePayload(b1)
	require.NoError(t, err)
	set := decoded.ServiceRequest.Data.Asset.CustomAttributes[ir.APIFunctionAdd]
	for _, attr := range set.CustomAttribute {
		assert.NotEmpty(t, attr.Value, "empty attribute %q rendered", attr.Key)
	}
	_, hasA := set.CustomAttribute.Get("A")
	assert.False(t, hasA)
}

func TestMaterializeFilterSelectsBatchIDs(t *testing.T) {
	batch := ir.Batch{AssetIDs: []string{"9", "3", "5"}}

	payload, err := Materialize(batch, ir.APIFunctionUpdate)
	require.NoError(t, err)

	criteria := payload.ServiceRequest.Filters.Criteria
	require.Len(t, criteria, 1)
	assert.Equal(t, ir.Criterion{Field: "id", Operator: "IN", Value: "9,3,5"}, criteria[0])

	fn, ok := payload.Function()
	require.True(t, ok)
	assert.Equal(t, ir.APIFunctionUpdate, fn)
}

func TestMaterializeInvalidFunction(t *testing.T) {
	_, err := Materialize(ir.Batch{GroupNumber: 1, BatchNumber: 2}, ir.APIFunction("delete"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api function")
}

func TestMaterializeRecord(t *testing.T) {
	payload, err := MaterializeRecord(rec("42", "Business", "X", "SLA", ""), ir.APIFunctionAdd)
	require.NoError(t, err)

	assert.Equal(t, "42", payload.ServiceRequest.Filters.Criteria[0].Value)
	assert.Equal(t, ir.Attributes{{Key: "Business", Value: "X"}},
		payload.ServiceRequest.Data.Asset.CustomAttributes[ir.APIFunctionAdd].CustomAttribute)
}
