package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/bluebridge/internal/model"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage bluebridge configuration",
	Long: `Manage bluebridge configuration files and settings.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (BLUEBRIDGE_*, OPENAI_API_KEY, OLLAMA_BASE_URL)
3. Config file (~/.bluebridge/config.yaml)
4. Defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if configFile := viper.ConfigFileUsed(); configFile != "" {
			fmt.Fprintf(os.Stderr, "Configuration file: %s\n\n", configFile)
		} else {
			fmt.Fprintf(os.Stderr, "No configuration file found (using defaults)\n\n")
		}

		yamlData, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(yamlData)
		if err == nil && cfg.LLM.APIKey != "" {
			fmt.Fprintf(os.Stderr, "\nllm.api_key is set (hidden)\n")
		}
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long:  `Create ~/.bluebridge/config.yaml (or the --config path) holding every option at its default.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := cfgFile
		if configPath == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("find home directory: %w", err)
			}
			configPath = filepath.Join(home, ".bluebridge", "config.yaml")
		}

		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("config file already exists: %s\nUse 'bluebridge config show' to view it, or delete it first to recreate", configPath)
		}
		if err := writeDefaultConfig(configPath); err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "✓ Created default configuration: %s\n", configPath)
		fmt.Fprintf(os.Stderr, "\nTo view the configuration:\n  bluebridge config show\n")
		return nil
	},
}

const configHeader = `# bluebridge configuration
#
# Configuration hierarchy (highest to lowest priority):
#   1. CLI flags
#   2. Environment variables (BLUEBRIDGE_*, e.g. BLUEBRIDGE_LLM_PROVIDER)
#   3. This config file
#   4. Built-in defaults
#
# API keys belong in the environment:
#   export OPENAI_API_KEY=sk-...
#   export OLLAMA_BASE_URL=http://localhost:11434

`

// writeDefaultConfig writes the default config as commented YAML
func writeDefaultConfig(path string) error {
	yamlData, err := yaml.Marshal(model.DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(configHeader), yamlData...), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
