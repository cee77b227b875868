// Package main provides the entry point for the workbench CLI.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/streamsql/workbench/cmd/workbench/config"
)

var (
	// Version information (set by build flags)
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "workbench",
	Short: "SQL gateway workbench",
	Long: `A terminal workbench for a SQL gateway.

Workbench submits SQL statements to a gateway session, pages through bounded
and unbounded results, and browses catalogs and running jobs.`,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().String("state", config.DefaultStatePath(), "state file path")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Duration("execution-timeout", time.Minute, "statement execution timeout sent to the gateway")
	rootCmd.PersistentFlags().Int("max-buffer-rows", 1000, "streaming result window size")
	rootCmd.PersistentFlags().Int("max-display-rows", 100, "maximum rows rendered per result")
	rootCmd.PersistentFlags().Bool("metrics", false, "enable Prometheus metrics")
	rootCmd.PersistentFlags().String("metrics-address", ":9090", "metrics server address")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		panic(fmt.Errorf("failed to bind flags: %w", err))
	}
	viper.SetEnvPrefix("WORKBENCH")
	viper.AutomaticEnv()

	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(connectionsCmd)
	rootCmd.AddCommand(catalogsCmd)
	rootCmd.AddCommand(jobsCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Workbench\n")
			fmt.Printf("Version:    %s\n", version)
			fmt.Printf("Commit:     %s\n", commit)
			fmt.Printf("Build Date: %s\n", buildDate)
		},
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &config.Config{
		StatePath:         viper.GetString("state"),
		LogLevel:          viper.GetString("log-level"),
		ExecutionTimeout:  viper.GetDuration("execution-timeout"),
		MaxBufferRows:     viper.GetInt("max-buffer-rows"),
		MaxDisplayRows:    viper.GetInt("max-display-rows"),
		SessionProperties: viper.GetStringMapString("session_properties"),
		Metadata: config.MetadataConfig{
			TTL: viper.GetDuration("metadata.ttl"),
		},
		Metrics: config.MetricsConfig{
			Enabled: viper.GetBool("metrics"),
			Address: viper.GetString("metrics-address"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setupLogging(level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond

	var logLevel zerolog.Level
	switch level {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "info":
		logLevel = zerolog.InfoLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	// Logs go to stderr so result rendering owns stdout.
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(logLevel).
		With().
		Timestamp().
		Str("service", "workbench")

	if logLevel == zerolog.DebugLevel {
		logger = logger.Caller()
	}

	return logger.Logger()
}
