package config

import (
	"time"

	"github.com/roach88/attrsync/internal/executor"
	"github.com/roach88/attrsync/internal/store"
)

// Configuration keys, as used in the YAML config file.
const (
	KeyCSVFile       = "csv_file"
	KeyDatabaseFile  = "database_file"
	KeyLogFile       = "log_file"
	KeyAPIFQDN       = "api_fqdn"
	KeyAPIScheme     = "api_scheme"
	KeyAPIEndpoint   = "api_endpoint"
	KeyAPIFunction   = "api_function"
	KeyUsername      = "username"
	KeyPassword      = "password"
	KeyMaxBatchSize  = "max_batch_size"
	KeyDryRun        = "dry_run"
	KeyFlushInterval = "flush_interval"
	KeyClientID      = "client_id"
	KeyContractFile  = "contract_file"
	KeyMetricsFile   = "metrics_file"
	KeyMaxRetries    = "retry.max_retries"
	KeyMinDelay      = "retry.min_delay"
	KeyMaxDelay      = "retry.max_delay"
)

// Defaults that do not depend on the start time.
const (
	DefaultCSVFile      = "./data/input.csv"
	DefaultMaxBatchSize = 100
)

// timestampLayout names the default database and log files.
const timestampLayout = "20060102_150405"

// binding ties a key to its environment variables, in lookup order.
type binding struct {
	key  string
	envs []string
}

var bindings = []binding{
	{KeyCSVFile, []string{"ATTRSYNC_CSV_FILE", "q_csv_file"}},
	{KeyDatabaseFile, []string{"ATTRSYNC_DATABASE_FILE"}},
	{KeyLogFile, []string{"ATTRSYNC_LOG_FILE"}},
	{KeyAPIFQDN, []string{"ATTRSYNC_API_FQDN", "q_api_fqdn"}},
	{KeyAPIScheme, []string{"ATTRSYNC_API_SCHEME"}},
	{KeyAPIEndpoint, []string{"ATTRSYNC_API_ENDPOINT"}},
	{KeyAPIFunction, []string{"ATTRSYNC_API_FUNCTION", "q_api_function"}},
	{KeyUsername, []string{"ATTRSYNC_USERNAME", "q_username"}},
	{KeyPassword, []string{"ATTRSYNC_PASSWORD", "q_password"}},
	{KeyMaxBatchSize, []string{"ATTRSYNC_MAX_BATCH_SIZE"}},
	{KeyDryRun, []string{"ATTRSYNC_DRY_RUN"}},
	{KeyFlushInterval, []string{"ATTRSYNC_FLUSH_INTERVAL"}},
	{KeyClientID, []string{"ATTRSYNC_CLIENT_ID"}},
	{KeyContractFile, []string{"ATTRSYNC_CONTRACT_FILE"}},
	{KeyMetricsFile, []string{"ATTRSYNC_METRICS_FILE"}},
	{KeyMaxRetries, []string{"ATTRSYNC_RETRY_MAX_RETRIES"}},
	{KeyMinDelay, []string{"ATTRSYNC_RETRY_MIN_DELAY"}},
	{KeyMaxDelay, []string{"ATTRSYNC_RETRY_MAX_DELAY"}},
}

// defaults returns the default of every key. File names carry the start
// time so consecutive runs never share a database.
func defaults(now time.Time) map[string]any {
	ts := now.Format(timestampLayout)
	return map[string]any{
		KeyCSVFile:       DefaultCSVFile,
		KeyDatabaseFile:  "attrsync_sqlite_" + ts + ".db",
		KeyLogFile:       "attrsync_log_" + ts + ".log",
		KeyAPIFQDN:       executor.DefaultFQDN,
		KeyAPIScheme:     executor.DefaultScheme,
		KeyAPIEndpoint:   executor.DefaultEndpoint,
		KeyAPIFunction:   "add",
		KeyUsername:      "",
		KeyPassword:      "",
		KeyMaxBatchSize:  DefaultMaxBatchSize,
		KeyDryRun:        false,
		KeyFlushInterval: store.DefaultFlushInterval,
		KeyClientID:      executor.DefaultClientID,
		KeyContractFile:  "",
		KeyMetricsFile:   "",
		KeyMaxRetries:    executor.DefaultMaxRetries,
		KeyMinDelay:      executor.DefaultMinDelay,
		KeyMaxDelay:      executor.DefaultMaxDelay,
	}
}

// EnvNames returns every environment variable Load reads, in binding order.
func EnvNames() []string {
	var names []string
	for _, b := range bindings {
		names = append(names, b.envs...)
	}
	return names
}
