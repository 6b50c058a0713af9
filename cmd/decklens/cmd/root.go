// Package cmd implements the decklens command-line interface.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/decklens/decklens/internal/config"
	"github.com/decklens/decklens/internal/pipeline"
	"github.com/decklens/decklens/internal/version"
)

var (
	// Global configuration loader.
	configLoader *config.Loader
	// Global configuration.
	globalConfig *config.Config
	// Configuration file path.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "decklens",
	Short: "Decklist OCR for trading card game tournament photos",
	Long: `decklens extracts structured decklists from photographed decklist sheets.

It segments each image into a metadata band and card sections, recognizes
the text with an ONNX recognition model, parses the line items into deck
sections, and resolves every card name against the bundled card catalog.

Examples:
  decklens scan decklist.jpg
  decklens batch photos/*.jpg --parallel --workers 4
  decklens serve --port 8000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, _ := cmd.PersistentFlags().GetBool("version")
		if v {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "decklens version %s\n", version.Version)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Commit: %s\n", version.GitCommit)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Date: %s\n", version.BuildDate)
			return nil
		}
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetRootCommand returns the root command for testing purposes.
func GetRootCommand() *cobra.Command {
	return rootCmd
}

// GetConfig returns the global configuration, loading it on first use.
func GetConfig() *config.Config {
	if globalConfig == nil {
		initConfig()
	}
	return globalConfig
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is search in ., $HOME, $HOME/.config/decklens, /etc/decklens)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("model", "", "path to the ONNX recognition model")
	rootCmd.PersistentFlags().String("dict", "", "path to the recognition character dictionary")
	rootCmd.PersistentFlags().String("cards", "", "card catalog CSV (default is the embedded dataset)")
	rootCmd.PersistentFlags().String("aliases", "", "optional YAML alias overlay for the card catalog")
	rootCmd.PersistentFlags().Bool("version", false, "print version information and exit")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("pipeline.recognizer.model_path", rootCmd.PersistentFlags().Lookup("model"))
	_ = viper.BindPFlag("pipeline.recognizer.dict_path", rootCmd.PersistentFlags().Lookup("dict"))
	_ = viper.BindPFlag("pipeline.catalog.dataset_path", rootCmd.PersistentFlags().Lookup("cards"))
	_ = viper.BindPFlag("pipeline.catalog.alias_path", rootCmd.PersistentFlags().Lookup("aliases"))

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if globalConfig == nil {
			initConfig()
		}

		var logLevel slog.Level
		if globalConfig.Verbose {
			logLevel = slog.LevelDebug
		} else {
			switch globalConfig.LogLevel {
			case "debug":
				logLevel = slog.LevelDebug
			case "warn":
				logLevel = slog.LevelWarn
			case "error":
				logLevel = slog.LevelError
			default:
				logLevel = slog.LevelInfo
			}
		}

		logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		}))
		slog.SetDefault(logger)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	configLoader = config.NewLoader()

	var err error
	if cfgFile != "" {
		globalConfig, err = configLoader.LoadWithFile(cfgFile)
	} else {
		globalConfig, err = configLoader.Load()
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
}

// buildPipeline constructs the decklist pipeline from the global config.
func buildPipeline() (*pipeline.Pipeline, error) {
	cfg := GetConfig()
	return pipeline.NewBuilder().
		WithConfig(cfg.ToPipelineConfig()).
		WithLogger(slog.Default()).
		Build()
}
