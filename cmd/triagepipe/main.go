package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/connectedhealth/triagepipe/internal/api"
	"github.com/connectedhealth/triagepipe/internal/backend"
	"github.com/connectedhealth/triagepipe/internal/flow"
	"github.com/connectedhealth/triagepipe/internal/genai"
	"github.com/connectedhealth/triagepipe/internal/knowledge"
	"github.com/connectedhealth/triagepipe/internal/lockfile"
	"github.com/connectedhealth/triagepipe/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for TriagePipe state data
	DefaultStateDir = "/var/lib/triagepipe"
	// DefaultDBFileName is the default SQLite knowledge database filename
	DefaultDBFileName = "triagepipe.db"
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
	backendOpts := buildBackendOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	knowledgeOpts := buildKnowledgeOptions(flags)
	flowOpts, err := buildFlowOptions(flags)
	if err != nil {
		slog.Error("Failed to load triage rules", "error", err)
		os.Exit(1)
	}
	apiOpts := buildAPIOptions(flags)

	// Guard the state directory against concurrent instances when using a
	// file-based knowledge store
	var lock *lockfile.Lock
	if knowledge.DetectDSNType(*flags.dbDSN) == "sqlite" && *flags.dbDSN != ":memory:" {
		lock, err = lockfile.Acquire(*flags.stateDir)
		if err != nil {
			slog.Error("Failed to acquire state directory lock", "error", err)
			os.Exit(1)
		}
		defer lock.Release()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start the service
	slog.Info("Bootstrapping TriagePipe with configured modules")
	slog.Debug("Module options counts", "backend", len(backendOpts), "genai", len(genaiOpts), "knowledge", len(knowledgeOpts), "flow", len(flowOpts), "api", len(apiOpts))
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr)
	if err := api.Run(ctx, backendOpts, genaiOpts, knowledgeOpts, flowOpts, apiOpts); err != nil {
		slog.Error("TriagePipe failed to run", "error", err)
		if lock != nil {
			lock.Release()
		}
		os.Exit(1)
	}
	slog.Info("TriagePipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	BackendURL  string
	DatabaseURL string
	StateDir    string
	OpenAIKey   string
	FastModel   string
	SmartModel  string
	RulesPath   string
	APIAddr     string
	HealthCron  string
}

// Flags holds command line flag values
type Flags struct {
	backendURL *string
	stateDir   *string
	dbDSN      *string
	openaiKey  *string
	fastModel  *string
	smartModel *string
	rulesPath  *string
	apiAddr    *string
	healthCron *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
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
		BackendURL:  os.Getenv("BACKEND_URL"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("TRIAGEPIPE_STATE_DIR"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		FastModel:   os.Getenv("OPENAI_MODEL_FAST"),
		SmartModel:  os.Getenv("OPENAI_MODEL_SMART"),
		RulesPath:   os.Getenv("TRIAGE_RULES_PATH"),
		APIAddr:     os.Getenv("API_ADDR"),
		HealthCron:  os.Getenv("HEALTH_CRON"),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No TRIAGEPIPE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	} else {
		slog.Debug("TRIAGEPIPE_STATE_DIR found in environment", "state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"BACKEND_URL", config.BackendURL,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"TRIAGEPIPE_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_MODEL_FAST", config.FastModel,
		"OPENAI_MODEL_SMART", config.SmartModel,
		"TRIAGE_RULES_PATH", config.RulesPath,
		"API_ADDR", config.APIAddr,
		"HEALTH_CRON", config.HealthCron)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		backendURL: flag.String("backend-url", config.BackendURL, "health backend base URL (overrides $BACKEND_URL)"),
		stateDir:   flag.String("state-dir", config.StateDir, "state directory for TriagePipe data (overrides $TRIAGEPIPE_STATE_DIR)"),
		dbDSN:      flag.String("db-dsn", config.DatabaseURL, "knowledge database DSN (overrides $DATABASE_URL)"),
		openaiKey:  flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		fastModel:  flag.String("fast-model", config.FastModel, "fast model name (overrides $OPENAI_MODEL_FAST)"),
		smartModel: flag.String("smart-model", config.SmartModel, "smart model name (overrides $OPENAI_MODEL_SMART)"),
		rulesPath:  flag.String("triage-rules", config.RulesPath, "path to a triage rule table JSON file (overrides $TRIAGE_RULES_PATH)"),
		apiAddr:    flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		healthCron: flag.String("health-cron", config.HealthCron, "cron schedule for the backend health watch (overrides $HEALTH_CRON)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"backendURL", *flags.backendURL,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"fastModel", *flags.fastModel,
		"smartModel", *flags.smartModel,
		"rulesPath", *flags.rulesPath,
		"apiAddr", *flags.apiAddr,
		"healthCron", *flags.healthCron)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "dsn_updated", true, "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if knowledge.DetectDSNType(*flags.dbDSN) == "sqlite" && *flags.dbDSN != ":memory:" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
		slog.Debug("State directory created successfully", "state_dir", stateDir)
	}
	return nil
}

// buildBackendOptions constructs health backend client options
func buildBackendOptions(flags Flags) []backend.Option {
	var backendOpts []backend.Option
	if *flags.backendURL != "" {
		backendOpts = append(backendOpts, backend.WithBaseURL(*flags.backendURL))
	}
	return backendOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.fastModel != "" {
		genaiOpts = append(genaiOpts, genai.WithFastModel(*flags.fastModel))
	}
	if *flags.smartModel != "" {
		genaiOpts = append(genaiOpts, genai.WithSmartModel(*flags.smartModel))
	}
	return genaiOpts
}

// buildKnowledgeOptions constructs knowledge store configuration options
func buildKnowledgeOptions(flags Flags) []knowledge.Option {
	var knowledgeOpts []knowledge.Option
	if *flags.dbDSN != "" {
		slog.Debug("Configuring knowledge store", "dsn_type", knowledge.DetectDSNType(*flags.dbDSN), "dsn_set", true)
		knowledgeOpts = append(knowledgeOpts, knowledge.WithDSN(*flags.dbDSN))
	}
	return knowledgeOpts
}

// buildFlowOptions constructs pipeline configuration options
func buildFlowOptions(flags Flags) ([]flow.Option, error) {
	var flowOpts []flow.Option
	if *flags.rulesPath != "" {
		rules, err := flow.LoadRuleTable(*flags.rulesPath)
		if err != nil {
			return nil, err
		}
		slog.Debug("Loaded triage rule table", "path", *flags.rulesPath, "rules", len(rules.Rules))
		flowOpts = append(flowOpts, flow.WithRules(rules))
	}
	if topK := util.ParseIntEnv("RETRIEVAL_TOP_K", 0); topK > 0 {
		flowOpts = append(flowOpts, flow.WithRetrievalTopK(topK))
	}
	return flowOpts, nil
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.healthCron != "" {
		apiOpts = append(apiOpts, api.WithHealthCron(*flags.healthCron))
	}
	return apiOpts
}
