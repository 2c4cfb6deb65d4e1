package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/attrsync/internal/executor"
	"github.com/roach88/attrsync/internal/ir"
)

// DefaultEnvFiles are read when Options.EnvFiles is nil. A value in an
// earlier file wins over the same variable in a later one.
var DefaultEnvFiles = []string{".env.local", ".env"}

// Options controls where Load looks for values.
type Options struct {
	// ConfigFile is an optional YAML file. Empty means none.
	ConfigFile string

	// EnvFiles are .env files to read. Missing files are skipped.
	EnvFiles []string

	// Flags holds parsed run flags registered with RegisterFlags. Only
	// flags set on the command line take effect.
	Flags *pflag.FlagSet

	// Now stamps the default database and log file names.
	// Default: time.Now.
	Now func() time.Time
}

// Config is the immutable configuration of one run. It is built once by
// Load and passed down by value.
type Config struct {
	CSVFile      string
	DatabaseFile string
	LogFile      string
	ContractFile string
	MetricsFile  string

	APIScheme   string
	APIFQDN     string
	APIEndpoint string
	APIFunction ir.APIFunction
	ClientID    string

	Username string
	Password string

	MaxBatchSize  int
	FlushInterval int
	DryRun        bool
	Retry         executor.RetryPolicy

	// ConfigFileUsed is the YAML file that was read, if any.
	ConfigFileUsed string
}

// Target returns the remote endpoint.
func (c Config) Target() executor.Target {
	return executor.Target{Scheme: c.APIScheme, FQDN: c.APIFQDN, Endpoint: c.APIEndpoint}
}

// Credentials returns the basic auth credentials.
func (c Config) Credentials() executor.Credentials {
	return executor.Credentials{Username: c.Username, Password: c.Password}
}

// Executor returns the delivery configuration. The run id is left empty.
func (c Config) Executor() executor.Config {
	return executor.Config{
		Target:      c.Target(),
		Credentials: c.Credentials(),
		ClientID:    c.ClientID,
		APIFunction: c.APIFunction,
		DryRun:      c.DryRun,
		Policy:      c.Retry,
	}
}

// Load resolves every key and validates the result. It returns a *Error
// listing all problems at once.
func Load(opts Options) (Config, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	// A private instance keeps repeated loads (and tests) independent.
	v := viper.New()
	for key, value := range defaults(now()) {
		v.SetDefault(key, value)
	}
	for _, b := range bindings {
		if err := v.BindEnv(append([]string{b.key}, b.envs...)...); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", b.key, err)
		}
	}
	if err := bindFlags(v, opts.Flags); err != nil {
		return Config{}, err
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, &Error{Problems: []string{fmt.Sprintf("read config file %s: %v", opts.ConfigFile, err)}}
		}
	}

	envFiles := opts.EnvFiles
	if envFiles == nil {
		envFiles = DefaultEnvFiles
	}
	dotenv, err := readEnvFiles(envFiles)
	if err != nil {
		return Config{}, &Error{Problems: []string{err.Error()}}
	}
	// .env values sit between the environment and the config file.
	if err := v.MergeConfigMap(dotenvConfig(dotenv)); err != nil {
		return Config{}, fmt.Errorf("merge .env values: %w", err)
	}

	cfg := Config{
		CSVFile:      v.GetString(KeyCSVFile),
		DatabaseFile: v.GetString(KeyDatabaseFile),
		LogFile:      v.GetString(KeyLogFile),
		ContractFile: v.GetString(KeyContractFile),
		MetricsFile:  v.GetString(KeyMetricsFile),

		APIScheme:   strings.ToLower(strings.TrimSpace(v.GetString(KeyAPIScheme))),
		APIFQDN:     strings.TrimSpace(v.GetString(KeyAPIFQDN)),
		APIEndpoint: v.GetString(KeyAPIEndpoint),
		ClientID:    v.GetString(KeyClientID),

		Username: v.GetString(KeyUsername),
		Password: v.GetString(KeyPassword),

		MaxBatchSize:  v.GetInt(KeyMaxBatchSize),
		FlushInterval: v.GetInt(KeyFlushInterval),
		DryRun:        v.GetBool(KeyDryRun),
		Retry: executor.RetryPolicy{
			MaxRetries: v.GetInt(KeyMaxRetries),
		},

		ConfigFileUsed: v.ConfigFileUsed(),
	}

	var problems []string
	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{KeyMinDelay, &cfg.Retry.MinDelay},
		{KeyMaxDelay, &cfg.Retry.MaxDelay},
	} {
		delay, err := parseDelay(v.Get(d.key))
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", d.key, err))
			continue
		}
		*d.dst = delay
	}

	fn, err := ir.ParseAPIFunction(v.GetString(KeyAPIFunction))
	if err != nil {
		problems = append(problems, fmt.Sprintf("%v; set --api-function or q_api_function", err))
	}
	cfg.APIFunction = fn

	problems = append(problems, cfg.validate()...)
	if len(problems) > 0 {
		return Config{}, &Error{Problems: problems}
	}
	return cfg, nil
}

// validate checks everything but the api function.
func (c Config) validate() []string {
	var problems []string

	if !c.DryRun {
		if c.Username == "" {
			problems = append(problems, "missing username; set q_username or ATTRSYNC_USERNAME to your API user id")
		}
		if c.Password == "" {
			problems = append(problems, "missing password; set q_password or ATTRSYNC_PASSWORD to your API password")
		}
	}

	if st, err := os.Stat(c.CSVFile); err != nil || st.IsDir() {
		problems = append(problems, fmt.Sprintf("csv file %s does not exist; set --csv-file or q_csv_file", c.CSVFile))
	}
	if c.ContractFile != "" {
		if _, err := os.Stat(c.ContractFile); err != nil {
			problems = append(problems, fmt.Sprintf("contract file %s does not exist", c.ContractFile))
		}
	}

	for _, f := range []struct{ name, path string }{
		{"database file", c.DatabaseFile},
		{"log file", c.LogFile},
		{"metrics file", c.MetricsFile},
	} {
		if f.path == "" {
			if f.name != "metrics file" {
				problems = append(problems, f.name+" must not be empty")
			}
			continue
		}
		if err := checkWritableDir(filepath.Dir(f.path)); err != nil {
			problems = append(problems, fmt.Sprintf("%s %s: parent directory is not writable: %v", f.name, f.path, err))
		}
	}

	switch c.APIScheme {
	case "http", "https":
	default:
		problems = append(problems, fmt.Sprintf("api scheme %q must be http or https", c.APIScheme))
	}
	if c.APIFQDN == "" && !c.DryRun {
		problems = append(problems, "api fqdn must not be empty")
	}
	if !strings.HasPrefix(c.APIEndpoint, "/") {
		problems = append(problems, fmt.Sprintf("api endpoint %q must start with /", c.APIEndpoint))
	}

	if c.MaxBatchSize <= 0 {
		problems = append(problems, fmt.Sprintf("max batch size must be positive (got %d)", c.MaxBatchSize))
	}
	if c.FlushInterval <= 0 {
		problems = append(problems, fmt.Sprintf("flush interval must be positive (got %d)", c.FlushInterval))
	}
	if err := c.Retry.Validate(); err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			problems = append(problems, "retry: "+line)
		}
	}

	return problems
}

// parseDelay reads a retry delay. A bare number is seconds; anything else
// must carry a unit ("30s", "5m").
func parseDelay(raw any) (time.Duration, error) {
	switch x := raw.(type) {
	case time.Duration:
		return x, nil
	case int:
		return time.Duration(x) * time.Second, nil
	case int64:
		return time.Duration(x) * time.Second, nil
	case float64:
		return time.Duration(x * float64(time.Second)), nil
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return time.Duration(n * float64(time.Second)), nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid delay %q; use seconds or a duration like 30s", x)
		}
		return d, nil
	default:
		return 0, fmt.Errorf("invalid delay %v", raw)
	}
}

// bindFlags binds every registered run flag present in fs.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	if fs == nil {
		return nil
	}
	for name, key := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// readEnvFiles reads .env files without touching the process environment.
// A variable keeps the value from the first file that sets it.
func readEnvFiles(files []string) (map[string]string, error) {
	out := make(map[string]string)
	for _, file := range files {
		values, err := godotenv.Read(file)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read env file %s: %w", file, err)
		}
		for k, val := range values {
			if _, ok := out[k]; !ok {
				out[k] = val
			}
		}
	}
	return out, nil
}

// dotenvConfig turns .env variables into a nested config map, using the
// same variable names and lookup order as the environment bindings.
func dotenvConfig(env map[string]string) map[string]any {
	out := make(map[string]any)
	for _, b := range bindings {
		for _, name := range b.envs {
			val, ok := env[name]
			if !ok {
				continue
			}
			setNested(out, strings.Split(b.key, "."), val)
			break
		}
	}
	return out
}

func setNested(m map[string]any, path []string, val string) {
	if len(path) == 1 {
		m[path[0]] = val
		return
	}
	child, ok := m[path[0]].(map[string]any)
	if !ok {
		child = make(map[string]any)
		m[path[0]] = child
	}
	setNested(child, path[1:], val)
}

// checkWritableDir reports whether a file can be created in dir.
func checkWritableDir(dir string) error {
	f, err := os.CreateTemp(dir, ".attrsync-write-check-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
