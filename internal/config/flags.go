package config

import (
	"github.com/spf13/pflag"
)

// flagKeys maps run flag names to configuration keys.
var flagKeys = map[string]string{
	"csv-file":       KeyCSVFile,
	"database-file":  KeyDatabaseFile,
	"log-file":       KeyLogFile,
	"api-fqdn":       KeyAPIFQDN,
	"api-scheme":     KeyAPIScheme,
	"api-endpoint":   KeyAPIEndpoint,
	"api-function":   KeyAPIFunction,
	"max-batch-size": KeyMaxBatchSize,
	"dry-run":        KeyDryRun,
	"flush-interval": KeyFlushInterval,
	"client-id":      KeyClientID,
	"contract":       KeyContractFile,
	"metrics-file":   KeyMetricsFile,
	"max-retries":    KeyMaxRetries,
	"min-delay":      KeyMinDelay,
	"max-delay":      KeyMaxDelay,
}

// RegisterFlags adds the run flags to fs. Credentials have no flags; they
// are read from the environment only. Flag defaults are not used: an
// unset flag falls through to the environment, .env files, the config
// file and the defaults, in that order.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("csv-file", "c", "", "input CSV file (default "+DefaultCSVFile+")")
	fs.String("database-file", "", "SQLite database file (default attrsync_sqlite_<timestamp>.db)")
	fs.String("log-file", "", "run log file (default attrsync_log_<timestamp>.log)")
	fs.StringP("api-fqdn", "a", "", "remote API host name")
	fs.String("api-scheme", "", "remote API scheme (default https)")
	fs.String("api-endpoint", "", "remote API update endpoint")
	fs.StringP("api-function", "f", "", "attribute operation: add, update or remove (default add)")
	fs.Int("max-batch-size", 0, "maximum asset ids per call (default 100)")
	fs.BoolP("dry-run", "d", false, "build every table but make no remote calls")
	fs.Int("flush-interval", 0, "rows committed per transaction (default 1000)")
	fs.String("client-id", "", "X-Requested-With client id")
	fs.String("contract", "", "CUE data contract file (default: built-in contract)")
	fs.String("metrics-file", "", "write Prometheus metrics to this textfile at the end of the run")
	fs.Int("max-retries", 0, "attempts per batch (default 10)")
	fs.Duration("min-delay", 0, "delay after the first failed attempt (default 30s)")
	fs.Duration("max-delay", 0, "longest delay between attempts (default 5m0s)")
}
