package store

// Table names one staging table. Each table is owned by exactly one stage,
// which drops and recreates it on every run.
type Table string

const (
	TableAssetRecords        Table = "asset_records"
	TablePayloadCandidates   Table = "payload_candidates"
	TableConflictSet         Table = "conflict_set"
	TableDuplicateRecords    Table = "duplicate_records"
	TableCleanRecords        Table = "clean_records"
	TableGroupedBatches      Table = "grouped_batches"
	TableSplitBatches        Table = "split_batches"
	TableTransformedPayloads Table = "transformed_payloads"
	TableExecutionLog        Table = "execution_log"
	TableRunMetadata         Table = "run_metadata"
)

// ColumnInfo describes one column for the tables reference.
type ColumnInfo struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description" yaml:"description"`
}

// TableInfo describes one staging table.
type TableInfo struct {
	Name    Table        `json:"name" yaml:"name"`
	Stage   string       `json:"stage" yaml:"stage"`
	Purpose string       `json:"purpose" yaml:"purpose"`
	Columns []ColumnInfo `json:"columns" yaml:"columns"`
}

var (
	colAssetID     = ColumnInfo{"asset_id", "TEXT", "Asset id, trimmed and BOM-stripped."}
	colAttributes  = ColumnInfo{"attributes", "TEXT", "Ordered attribute list as JSON [{key, value}]."}
	colFingerprint = ColumnInfo{"fingerprint", "TEXT", "128-bit attribute fingerprint, 32 hex digits."}
	colGroup       = ColumnInfo{"group_number", "INTEGER", "Equivalence group, numbered from 1 by first-seen fingerprint."}
	colBatch       = ColumnInfo{"batch_number", "INTEGER", "Batch within the group, numbered from 1."}
	colAssetIDs    = ColumnInfo{"asset_ids", "TEXT", "Comma separated asset ids."}
	colCount       = ColumnInfo{"count_asset_ids", "INTEGER", "Number of ids in asset_ids."}
	colPayload     = ColumnInfo{"payload", "TEXT", "ServiceRequest JSON body."}
	colDigest      = ColumnInfo{"payload_digest", "TEXT", "SHA-256 digest of payload."}
)

// Tables lists every staging table in pipeline order.
var Tables = []TableInfo{
	{
		Name:    TableAssetRecords,
		Stage:   "normalize",
		Purpose: "One row per asset id read from the input CSV. Rows with several ids are expanded, and cells are cleaned (newline runs become commas, BOM removed, trimmed).",
		Columns: []ColumnInfo{colAssetID, colAttributes, colFingerprint},
	},
	{
		Name:    TablePayloadCandidates,
		Stage:   "normalize",
		Purpose: "The single-asset payload each record would produce on its own, kept for audit before grouping.",
		Columns: []ColumnInfo{
			colAssetID,
			colPayload,
			{"payload_custom_attributes", "TEXT", "Non-empty attributes as JSON [{key, value}]."},
			colFingerprint,
		},
	},
	{
		Name:    TableConflictSet,
		Stage:   "conflicts",
		Purpose: "Asset ids that appear with more than one distinct attribute set. These ids are excluded from every later stage.",
		Columns: []ColumnInfo{
			colAssetID,
			{"fingerprint_count", "INTEGER", "Number of distinct fingerprints seen for the id."},
		},
	},
	{
		Name:    TableDuplicateRecords,
		Stage:   "deduplicate",
		Purpose: "Every record dropped because its asset id is in conflict_set.",
		Columns: []ColumnInfo{colAssetID, colAttributes, colFingerprint},
	},
	{
		Name:    TableCleanRecords,
		Stage:   "deduplicate",
		Purpose: "Records whose asset id is not in conflict_set. Input to grouping.",
		Columns: []ColumnInfo{colAssetID, colAttributes, colFingerprint},
	},
	{
		Name:    TableGroupedBatches,
		Stage:   "group",
		Purpose: "One row per distinct attribute set, with every asset id that carries it.",
		Columns: []ColumnInfo{colGroup, colAssetIDs, colAttributes, colFingerprint, colCount},
	},
	{
		Name:    TableSplitBatches,
		Stage:   "split",
		Purpose: "Groups cut into batches of at most max_batch_size ids. One remote call per row.",
		Columns: []ColumnInfo{colGroup, colBatch, colAssetIDs, colAttributes, colFingerprint, colCount},
	},
	{
		Name:    TableTransformedPayloads,
		Stage:   "materialize",
		Purpose: "The request body for each batch: an id IN filter and the non-empty attributes keyed by api function.",
		Columns: []ColumnInfo{colGroup, colBatch, colAssetIDs, colAttributes, colFingerprint, colCount, colPayload, colDigest},
	},
	{
		Name:    TableExecutionLog,
		Stage:   "execute",
		Purpose: "Delivery outcome for each batch, in batch order. Written once per batch and flushed periodically.",
		Columns: []ColumnInfo{
			colGroup, colBatch, colAssetIDs, colAttributes, colFingerprint, colCount, colPayload, colDigest,
			{"api_function", "TEXT", "add, update or remove."},
			{"status", "TEXT", "HTTP status code, not-attempted (dry run) or transport-error."},
			{"attempts", "INTEGER", "Number of calls made for the batch."},
			{"execution_log", "TEXT", "Last response body or error, on one line."},
			{"run_id", "TEXT", "Run that wrote the row."},
		},
	},
	{
		Name:    TableRunMetadata,
		Stage:   "run",
		Purpose: "Start, end and outcome of the run that produced the other tables.",
		Columns: []ColumnInfo{
			{"run_id", "TEXT", "UUIDv7 run id."},
			{"started_at", "TEXT", "RFC 3339 start time."},
			{"finished_at", "TEXT", "RFC 3339 end time, NULL while running."},
			{"api_function", "TEXT", "add, update or remove."},
			{"dry_run", "INTEGER", "1 when no calls were made."},
			{"outcome", "TEXT", "running, completed or aborted."},
			{"message", "TEXT", "Abort cause, empty on success."},
		},
	},
}
