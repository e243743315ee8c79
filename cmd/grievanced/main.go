// grievanced is the grievance intake and retrieval service.
//
// It exposes an HTTP chat surface backed by a model gateway, a complaint
// store, and a slot-filling dialogue orchestrator.
package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/opengrievance/grievanced/internal/api"
	"github.com/opengrievance/grievanced/internal/flow"
	"github.com/opengrievance/grievanced/internal/genai"
	"github.com/opengrievance/grievanced/internal/store"
	"github.com/opengrievance/grievanced/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for grievanced state data
	DefaultStateDir = "/var/lib/grievanced"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "grievanced.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// Build module options
	storeOpts := buildStoreOptions(flags)
	genaiOpts := buildGenAIOptions(flags, config)
	apiOpts := buildAPIOptions(flags, config)

	// Start the service
	slog.Info("Bootstrapping grievanced with configured modules")
	slog.Debug("Module options counts", "store", len(storeOpts), "genai", len(genaiOpts), "api", len(apiOpts))
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr)
	if err := api.Run(storeOpts, genaiOpts, apiOpts); err != nil {
		slog.Error("grievanced failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("grievanced exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL          string
	StateDir             string
	OpenAIKey            string
	OpenAIBaseURL        string
	Model                string
	APIAddr              string
	SweepCron            string
	SweepEnabled         bool
	SessionTTL           time.Duration
	GatewayTimeout       time.Duration
	MaxInconclusiveTurns int
}

// Flags holds command line flag values
type Flags struct {
	stateDir  *string
	dbDSN     *string
	openaiKey *string
	apiAddr   *string
	sweepCron *string
}

// initializeLogger sets up structured logging, with the level taken from
// $LOG_LEVEL (debug, info, warn, error; default info).
func initializeLogger() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		StateDir:             os.Getenv("GRIEVANCED_STATE_DIR"),
		OpenAIKey:            os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:        os.Getenv("OPENAI_BASE_URL"),
		Model:                os.Getenv("GRIEVANCE_MODEL"),
		APIAddr:              os.Getenv("API_ADDR"),
		SweepCron:            os.Getenv("SESSION_SWEEP_CRON"),
		SweepEnabled:         util.ParseBoolEnv("SESSION_SWEEP_ENABLED", true),
		SessionTTL:           util.ParseDurationEnv("SESSION_TTL", api.DefaultSessionTTL),
		GatewayTimeout:       util.ParseDurationEnv("GATEWAY_TIMEOUT", genai.DefaultTimeout),
		MaxInconclusiveTurns: util.ParseIntEnv("MAX_INCONCLUSIVE_TURNS", flow.DefaultMaxInconclusiveTurns),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No GRIEVANCED_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	} else {
		slog.Debug("GRIEVANCED_STATE_DIR found in environment", "state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"GRIEVANCED_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_BASE_URL_SET", config.OpenAIBaseURL != "",
		"GRIEVANCE_MODEL", config.Model,
		"API_ADDR", config.APIAddr,
		"SESSION_SWEEP_CRON", config.SweepCron,
		"SESSION_SWEEP_ENABLED", config.SweepEnabled,
		"SESSION_TTL", config.SessionTTL,
		"GATEWAY_TIMEOUT", config.GatewayTimeout,
		"MAX_INCONCLUSIVE_TURNS", config.MaxInconclusiveTurns)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:  flag.String("state-dir", config.StateDir, "state directory for grievanced data (overrides $GRIEVANCED_STATE_DIR)"),
		dbDSN:     flag.String("db-dsn", config.DatabaseURL, "database DSN for the complaint store (overrides $DATABASE_URL)"),
		openaiKey: flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:   flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		sweepCron: flag.String("sweep-cron", config.SweepCron, "cron schedule for the stale-session sweep (overrides $SESSION_SWEEP_CRON)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"sweepCron", *flags.sweepCron)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "dsn_updated", true, "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	// Ensure state directory exists if we're using a file-based DSN
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	} else {
		slog.Debug("No database DSN provided, will use in-memory store")
	}
	return storeOpts
}

// buildGenAIOptions constructs model gateway configuration options
func buildGenAIOptions(flags Flags, config Config) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if config.OpenAIBaseURL != "" {
		genaiOpts = append(genaiOpts, genai.WithBaseURL(config.OpenAIBaseURL))
	}
	if config.Model != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(config.Model))
	}
	genaiOpts = append(genaiOpts, genai.WithTimeout(config.GatewayTimeout))
	return genaiOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags, config Config) []api.Option {
	flowCfg := flow.DefaultConfig()
	flowCfg.MaxInconclusiveTurns = config.MaxInconclusiveTurns

	apiOpts := []api.Option{
		api.WithSessionTTL(config.SessionTTL),
		api.WithFlowConfig(flowCfg),
	}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if !config.SweepEnabled {
		// An empty cron expression disables the sweep job.
		apiOpts = append(apiOpts, api.WithSweepCron(""))
	} else if *flags.sweepCron != "" {
		apiOpts = append(apiOpts, api.WithSweepCron(*flags.sweepCron))
	}
	return apiOpts
}
