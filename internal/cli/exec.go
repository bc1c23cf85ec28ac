package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/vvka-141/txwrap/internal/config"
	"github.com/vvka-141/txwrap/internal/db"
	"github.com/vvka-141/txwrap/internal/logging"
	"github.com/vvka-141/txwrap/internal/services"
	"github.com/vvka-141/txwrap/pkg/txwrap"
)

// DefaultTimeout bounds a whole run, connection included.
const DefaultTimeout = 5 * time.Minute

type execOptions struct {
	connection, configPath, envFile string
	name                            string
	command, file                   string

	authMethod, awsRegion, googleInstance string
	azureTenantID, azureClientID          string

	lockTable, lockKeyColumn, lockKey string

	timeout time.Duration
	asJSON  bool
}

// wrapperFlags are the flags that map onto wrapper configuration keys,
// "--outside-retriable-errors" onto "outside_retriable_errors" and so on.
var wrapperFlags = []string{
	"rescued-errors",
	"prepared-errors",
	"retriable-errors",
	"reraisable-errors",
	"num-retry-attempts",
	"outside-rescued-errors",
	"outside-prepared-errors",
	"outside-retriable-errors",
	"outside-reraisable-errors",
	"outside-num-retry-attempts",
	"lock",
	"requires-new",
	"isolation",
	"joinable",
}

func newExecCmd() *cobra.Command {
	opts := &execOptions{}

	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Run SQL inside a wrapped transaction",
		Long: `Exec runs SQL (from --command or --file) inside a transaction and prints the
result. Errors are dispatched by the first list that matches, in this order:
reraisable, retriable, rescued and prepared, rescued.

Configuration sources (later ones override earlier ones):
  1. txwrap.yaml in the current directory, or --config
  2. Command-line flags

Connection string precedence:
  --connection > connection.url in txwrap.yaml > $TXWRAP_DATABASE_URL > $DATABASE_URL
A .env file in the current directory (or --env-file) is loaded first.

Examples:
  # Retry serialization failures once more than the default
  txwrap exec -c "UPDATE accounts SET balance = balance - 10 WHERE id = 1" \
    --isolation serializable \
    --retriable-errors SerializationFailure --num-retry-attempts 3

  # Lock the row first; a missing row ends in a failing result instead of an error
  txwrap exec -f debit.sql --lock --lock-table accounts --lock-key 1 \
    --outside-rescued-errors RecordNotFound

  # Machine-readable output
  txwrap exec -f seed.sql --outside-rescued-errors RecordNotUnique --json`,
		Args: usageArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(cmd, opts)
		},
	}

	f := cmd.Flags()

	f.StringVarP(&opts.command, "command", "c", "", "SQL to run")
	f.StringVarP(&opts.file, "file", "f", "", "File with the SQL to run (- reads stdin)")
	f.StringVar(&opts.name, "name", "",
		"Owner name used in log lines and configuration errors (default \"txwrap\")")
	f.StringVar(&opts.configPath, "config", "",
		"Path to txwrap.yaml, or a directory containing it (default: ./txwrap.yaml if present)")
	f.StringVar(&opts.envFile, "env-file", "", "Load environment variables from this file instead of ./.env")
	f.DurationVar(&opts.timeout, "timeout", DefaultTimeout,
		"Upper bound for the whole run, connection included\n"+
			"For statement-level timeouts, use SET statement_timeout in SQL")
	f.BoolVar(&opts.asJSON, "json", false, "Print the result as JSON")

	// Connection flags
	f.StringVar(&opts.connection, "connection", "", "PostgreSQL connection string (URI or keyword/value)")
	f.StringVar(&opts.authMethod, "auth-method", "",
		"Authentication: standard|aws-iam|google-iam|azure-entra (default standard)")
	f.StringVar(&opts.awsRegion, "aws-region", "", "AWS region for IAM auth (overrides $AWS_REGION)")
	f.StringVar(&opts.googleInstance, "google-instance", "", "Cloud SQL instance (project:region:instance)")
	f.StringVar(&opts.azureTenantID, "azure-tenant-id", "", "Azure AD tenant ID (overrides $AZURE_TENANT_ID)")
	f.StringVar(&opts.azureClientID, "azure-client-id", "", "Azure AD client ID (overrides $AZURE_CLIENT_ID)")

	// Lock target flags
	f.StringVar(&opts.lockTable, "lock-table", "", "Table of the row to lock (may be schema-qualified)")
	f.StringVar(&opts.lockKeyColumn, "lock-key-column", "id", "Key column of the row to lock")
	f.StringVar(&opts.lockKey, "lock-key", "", "Key value of the row to lock")

	// Wrapper configuration flags
	kindsHelp := " (kind names, see `txwrap kinds`)"
	f.StringSlice("rescued-errors", nil, "Inside kinds that end in a failing result recorded on the target"+kindsHelp)
	f.StringSlice("prepared-errors", nil, "Inside rescued kinds the raising SQL already recorded"+kindsHelp)
	f.StringSlice("retriable-errors", nil, "Inside kinds retried in the same transaction"+kindsHelp)
	f.StringSlice("reraisable-errors", nil, "Inside kinds that abort the run"+kindsHelp)
	f.Int("num-retry-attempts", 0, "Inside attempt bound (default 2)")
	f.StringSlice("outside-rescued-errors", nil, "Outside kinds that end in a failing result (RecordInvalid always)"+kindsHelp)
	f.StringSlice("outside-prepared-errors", nil, "Outside rescued kinds already recorded (RecordInvalid always)"+kindsHelp)
	f.StringSlice("outside-retriable-errors", nil, "Outside kinds retried with a new transaction"+kindsHelp)
	f.StringSlice("outside-reraisable-errors", nil, "Outside kinds that abort the run"+kindsHelp)
	f.Int("outside-num-retry-attempts", 0, "Outside attempt bound (default 2)")
	f.Bool("lock", false, "Run under a row lock on the lock target instead of a plain transaction")
	f.Bool("requires-new", false, "Always open a new (nested) transaction")
	f.String("isolation", "", "Isolation level: serializable|repeatable_read|read_committed|read_uncommitted")
	f.Bool("joinable", true, "Let transactions nested in this one join it (false gives each its own savepoint)")

	return cmd
}

func runExec(cmd *cobra.Command, opts *execOptions) error {
	verbose := getVerboseFlag(cmd)

	if err := loadEnv(opts.envFile); err != nil {
		return err
	}

	fileCfg, err := loadFileConfig(opts.configPath)
	if err != nil {
		return err
	}

	sqlText, err := readSQL(cmd, opts)
	if err != nil {
		return err
	}

	name := firstNonEmpty(opts.name, fileName(fileCfg), txwrap.DefaultName)
	wrapperCfg, err := buildWrapperConfig(cmd, name, fileCfg)
	if err != nil {
		return err
	}

	connConfig, err := resolveConnection(opts, fileCfg)
	if err != nil {
		return err
	}

	timeout, err := resolveTimeout(cmd, opts, fileCfg)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	logger := logging.NewConsoleLogger(verbose).WithPrefix("[" + runID[:8] + "]")
	logger.Verbose("Run %s: auth=%s lock=%t timeout=%s", runID, connConfig.AuthMethod, wrapperCfg.Lock, timeout)

	// Interrupts cancel the run; the open transaction is rolled back.
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	connector, err := db.NewConnector(connConfig)
	if err != nil {
		return err
	}
	if closer, ok := connector.(io.Closer); ok {
		defer closer.Close()
	}

	pool, err := connector.Connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	transactor := db.NewPgTransactor(pool)
	target := buildTarget(transactor, opts, fileCfg, wrapperCfg.Lock)
	svc := services.NewTransactionService(name, transactor, logger)

	res, err := svc.TransactionWrapper(ctx, target, wrapperCfg, func(ctx context.Context, isRetry bool) error {
		if isRetry {
			logger.Verbose("Running the SQL again")
		}
		_, err := transactor.Querier(ctx).Exec(ctx, sqlText)
		return err
	})
	if err != nil {
		return err
	}

	printer := resultPrinter{
		out:    cmd.OutOrStdout(),
		asJSON: opts.asJSON,
		styles: newStyles(!opts.asJSON && cmd.OutOrStdout() == os.Stdout && isTerminal(os.Stdout)),
	}
	if err := printer.print(runID, res, recordedErrors(target)); err != nil {
		return err
	}

	if res.Fail() {
		return fmt.Errorf("%w: %s", txwrap.ErrExecutionFailed, res.ErrorMessage)
	}
	return nil
}

// loadEnv loads ./.env when present, or path, which must exist.
func loadEnv(path string) error {
	if path == "" {
		_ = godotenv.Load()
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("%w: failed to load env file %s: %w", txwrap.ErrInvalidConfig, path, err)
	}
	return nil
}

// loadFileConfig returns nil when no path is given and ./txwrap.yaml does not exist.
func loadFileConfig(path string) (*config.FileConfig, error) {
	explicit := path != ""
	if !explicit {
		path = "."
	}

	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, config.ErrConfigNotFound) && !explicit {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %w", txwrap.ErrInvalidConfig, err)
	}
	return cfg, nil
}

func readSQL(cmd *cobra.Command, opts *execOptions) (string, error) {
	switch {
	case opts.command != "" && opts.file != "":
		return "", fmt.Errorf("%w: --command and --file are mutually exclusive", txwrap.ErrUsage)
	case opts.command != "":
		return opts.command, nil
	case opts.file == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read SQL from stdin: %w", err)
		}
		return string(data), nil
	case opts.file != "":
		data, err := os.ReadFile(opts.file)
		if err != nil {
			return "", fmt.Errorf("failed to read SQL file: %w", err)
		}
		return string(data), nil
	}
	return "", fmt.Errorf("%w: one of --command or --file is required", txwrap.ErrUsage)
}

// flagOverrides returns the wrapper flags set on the command line, keyed by
// configuration key.
func flagOverrides(cmd *cobra.Command) (map[string]any, error) {
	overrides := make(map[string]any)

	flags := cmd.Flags()
	for _, name := range wrapperFlags {
		flag := flags.Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		key := strings.ReplaceAll(name, "-", "_")

		var value any
		var err error
		switch flag.Value.Type() {
		case "stringSlice":
			value, err = flags.GetStringSlice(name)
		case "int":
			value, err = flags.GetInt(name)
		case "bool":
			value, err = flags.GetBool(name)
		default:
			value = flag.Value.String()
		}
		if err != nil {
			return nil, fmt.Errorf("%w: --%s: %w", txwrap.ErrUsage, name, err)
		}
		overrides[key] = value
	}
	return overrides, nil
}

// buildWrapperConfig parses and validates the wrapper section of the
// configuration file with the flags laid over it, so configuration errors
// surface before connecting.
func buildWrapperConfig(cmd *cobra.Command, name string, fileCfg *config.FileConfig) (txwrap.Config, error) {
	overrides, err := flagOverrides(cmd)
	if err != nil {
		return txwrap.Config{}, err
	}
	return fileCfg.WrapperConfig(name, txwrap.DefaultKinds(), overrides)
}

// connectionStringFromEnv returns the first non-empty connection string from
// TXWRAP_DATABASE_URL or DATABASE_URL environment variables.
func connectionStringFromEnv() string {
	if s := os.Getenv("TXWRAP_DATABASE_URL"); s != "" {
		return s
	}
	return os.Getenv("DATABASE_URL")
}

// resolveConnection merges flags, the configuration file and the environment.
// Flags win over the file, the file over the environment.
func resolveConnection(opts *execOptions, fileCfg *config.FileConfig) (*db.ConnectionConfig, error) {
	var fc config.ConnectionConfig
	if fileCfg != nil {
		fc = fileCfg.Connection
	}

	connString := firstNonEmpty(opts.connection, fc.URL, connectionStringFromEnv())
	if connString == "" {
		return nil, fmt.Errorf("%w: no connection string\n\nTip: use --connection, connection.url in %s, or $DATABASE_URL",
			txwrap.ErrInvalidConfig, config.ConfigFileName)
	}

	method, err := db.ParseAuthMethod(firstNonEmpty(opts.authMethod, fc.AuthMethod))
	if err != nil {
		return nil, err
	}

	return &db.ConnectionConfig{
		ConnString:        connString,
		AuthMethod:        method,
		AWSRegion:         firstNonEmpty(opts.awsRegion, fc.AWSRegion, os.Getenv("AWS_REGION")),
		GoogleInstance:    firstNonEmpty(opts.googleInstance, fc.GoogleInstance),
		AzureTenantID:     firstNonEmpty(opts.azureTenantID, fc.AzureTenantID, os.Getenv("AZURE_TENANT_ID")),
		AzureClientID:     firstNonEmpty(opts.azureClientID, fc.AzureClientID, os.Getenv("AZURE_CLIENT_ID")),
		AzureClientSecret: os.Getenv("AZURE_CLIENT_SECRET"),
	}, nil
}

// resolveTimeout applies the file's timeout unless --timeout was set.
func resolveTimeout(cmd *cobra.Command, opts *execOptions, fileCfg *config.FileConfig) (time.Duration, error) {
	if fileCfg == nil || fileCfg.Timeout == "" || cmd.Flags().Changed("timeout") {
		return opts.timeout, nil
	}
	d, err := time.ParseDuration(fileCfg.Timeout)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid timeout in %s: %w", txwrap.ErrInvalidConfig, config.ConfigFileName, err)
	}
	return d, nil
}

// buildTarget returns the row to lock when one is configured. Without one, a
// locking run gets no target at all and a plain run gets the script target.
func buildTarget(transactor *db.PgTransactor, opts *execOptions, fileCfg *config.FileConfig, lock bool) txwrap.Target {
	table, keyColumn, key := opts.lockTable, opts.lockKeyColumn, opts.lockKey
	if table == "" && fileCfg != nil && fileCfg.Lock != nil {
		table, key = fileCfg.Lock.Table, fileCfg.Lock.Key
		if fileCfg.Lock.KeyColumn != "" {
			keyColumn = fileCfg.Lock.KeyColumn
		}
	}

	if table != "" {
		return db.NewRecord(transactor, table, keyColumn, parseKey(key))
	}
	if lock {
		return nil
	}
	return &script{}
}

// parseKey passes integer keys as integers so they bind to integer columns.
func parseKey(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}

// script is the target of a run without a row to lock.
type script struct {
	errs txwrap.RecordErrors
}

func (s *script) Errors() txwrap.ErrorCollection     { return &s.errs }
func (s *script) RecordErrors() *txwrap.RecordErrors { return &s.errs }
func (s *script) EntityName() string                 { return "Script" }

func recordedErrors(target txwrap.Target) []txwrap.ErrorEntry {
	if r, ok := target.(interface{ RecordErrors() *txwrap.RecordErrors }); ok {
		return r.RecordErrors().All()
	}
	return nil
}

func fileName(fileCfg *config.FileConfig) string {
	if fileCfg == nil {
		return ""
	}
	return fileCfg.Name
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
