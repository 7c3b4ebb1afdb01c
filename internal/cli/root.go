package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ppiankov/bluebridge/internal/logging"
	"github.com/ppiankov/bluebridge/internal/model"
	"github.com/ppiankov/bluebridge/internal/pipeline"
)

const version = "bluebridge v0.1.0"

var (
	cfgFile  string
	verbose  bool
	logLevel string
)

// envKeys are the config keys settable through BLUEBRIDGE_* variables
var envKeys = []string{
	"registry.template_path", "registry.evidence_path",
	"provenance.backend", "provenance.path", "provenance.max_lineage_depth",
	"doi.live_resolution", "doi.timeout", "doi.cache_dir", "doi.user_agent",
	"doi.http_proxy", "doi.https_proxy", "doi.no_proxy",
	"llm.provider", "llm.model", "llm.timeout", "llm.max_tokens",
	"logging.level", "logging.development",
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "bluebridge",
	Short: "bluebridge - provenance-first answers about marine ecosystem services",
	Long: `bluebridge translates ecological measurements into service and financial
values through documented bridge axioms, and checks generated answers
against the evidence they were built from.

Every number is traced to a DOI-backed source. Answers that cannot be traced
are flagged, down-weighted, or withheld.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.bluebridge/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig loads .env files, then the config file and BLUEBRIDGE_* variables
func initConfig() {
	envFile := os.Getenv("BLUEBRIDGE_ENV")
	if envFile == "" {
		envFile = ".env"
	}
	// missing files are fine
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		viper.AddConfigPath(filepath.Join(home, ".bluebridge"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("BLUEBRIDGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Unmarshal only sees env values for keys viper knows about
	for _, key := range envKeys {
		_ = viper.BindEnv(key)
	}
	// provider conventions, checked after BLUEBRIDGE_LLM_*
	_ = viper.BindEnv("llm.api_key", "BLUEBRIDGE_LLM_API_KEY", "OPENAI_API_KEY")
	_ = viper.BindEnv("llm.base_url", "BLUEBRIDGE_LLM_BASE_URL", "OLLAMA_BASE_URL")

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig overlays the config file and environment on the defaults
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the command logger from config and flags
func newLogger(cfg *model.Config) (*zap.Logger, error) {
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	if logLevel != "" {
		level = logLevel
	}
	return logging.New(level, cfg.Logging.Development)
}

// openPipeline loads config and builds the pipeline. The returned func
// releases resources and flushes the logger.
func openPipeline() (*pipeline.Pipeline, *zap.Logger, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	p, err := pipeline.New(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, nil, err
	}
	cleanup := func() {
		if err := p.Close(); err != nil {
			logger.Warn("close pipeline", zap.Error(err))
		}
		_ = logger.Sync()
	}
	return p, logger, cleanup, nil
}

// printJSON writes v to stdout as indented JSON
func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
