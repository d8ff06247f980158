package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/marketlens/marketlens/internal/config"
	"github.com/marketlens/marketlens/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display comprehensive environment, configuration, and version information.",
	Run: func(cmd *cobra.Command, args []string) {
		version := crucible.GetVersion()

		observability.CLILogger.Info("=== MarketLens Environment Information ===")
		observability.CLILogger.Info("")

		// Application Info
		identity := GetAppIdentity()
		observability.CLILogger.Info("Application:")
		observability.CLILogger.Info("  Name:       " + identity.BinaryName)
		observability.CLILogger.Info("  Version:    " + versionInfo.Version)
		observability.CLILogger.Info("  Commit:     " + versionInfo.Commit)
		observability.CLILogger.Info("  Built:      " + versionInfo.BuildDate)
		observability.CLILogger.Info("")

		// SSOT Info
		observability.CLILogger.Info("SSOT:")
		observability.CLILogger.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		observability.CLILogger.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		observability.CLILogger.Info("")

		// Runtime Info
		observability.CLILogger.Info("Runtime:")
		observability.CLILogger.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		observability.CLILogger.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		observability.CLILogger.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		observability.CLILogger.Info(fmt.Sprintf("  NumCPU:     %d", runtime.NumCPU()), zap.Int("num_cpu", runtime.NumCPU()))
		observability.CLILogger.Info("")

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			observability.CLILogger.Warn("Config load failed", zap.Error(err))
			return
		}

		// Configuration
		observability.CLILogger.Info("Configuration:")
		observability.CLILogger.Info("  Server Host:    "+cfg.Server.Host, zap.String("host", cfg.Server.Host))
		observability.CLILogger.Info(fmt.Sprintf("  Server Port:    %d", cfg.Server.Port), zap.Int("port", cfg.Server.Port))
		observability.CLILogger.Info("  Log Level:      "+cfg.Logging.Level, zap.String("log_level", cfg.Logging.Level))
		observability.CLILogger.Info("  Log Profile:    "+cfg.Logging.Profile, zap.String("log_profile", cfg.Logging.Profile))
		observability.CLILogger.Info("  DB Driver:      "+cfg.Store.Driver, zap.String("db_driver", cfg.Store.Driver))
		if strings.TrimSpace(cfg.Store.URL) != "" {
			observability.CLILogger.Info("  DB URL:         "+cfg.Store.URL, zap.String("db_url", cfg.Store.URL))
		} else {
			observability.CLILogger.Info("  DB Path:        "+cfg.Store.Path, zap.String("db_path", cfg.Store.Path))
		}
		observability.CLILogger.Info(fmt.Sprintf("  Metrics Port:   %d", cfg.Metrics.Port), zap.Int("metrics_port", cfg.Metrics.Port))
		observability.CLILogger.Info("  Config File:    "+config.DefaultConfigPath(), zap.String("config_file", config.DefaultConfigPath()))
		observability.CLILogger.Info("")

		// Rate Limit Configuration
		observability.CLILogger.Info("Rate Limits:")
		for _, name := range sortedBucketNames(cfg.RateLimit.Buckets) {
			bucket := cfg.RateLimit.Buckets[name]
			observability.CLILogger.Info(fmt.Sprintf("  %s: capacity=%.1f refill=%.4f/s quota=%.0f/day reset_hour=%02d:00 UTC",
				name, bucket.Capacity, bucket.RefillRate, bucket.DailyQuota, bucket.ResetHour))
		}
		observability.CLILogger.Info(fmt.Sprintf("  Window:         enabled=%t max_admits=%d span=%s",
			cfg.RateLimit.Window.Enabled, cfg.RateLimit.Window.MaxAdmits, cfg.RateLimit.Window.Span))
		observability.CLILogger.Info("")

		// Retry Configuration
		observability.CLILogger.Info("Retry:")
		observability.CLILogger.Info(fmt.Sprintf("  Max Attempts:   %d", cfg.Retry.MaxAttempts))
		observability.CLILogger.Info("  Base Delay:     " + cfg.Retry.BaseDelay.String())
		observability.CLILogger.Info("  Max Delay:      " + cfg.Retry.MaxDelay.String())
		observability.CLILogger.Info(fmt.Sprintf("  Multiplier:     %.1f", cfg.Retry.Multiplier))
		observability.CLILogger.Info(fmt.Sprintf("  Breaker:        enabled=%t threshold=%d cooldown=%s",
			cfg.Retry.Breaker.Enabled, cfg.Retry.Breaker.FailureThreshold, cfg.Retry.Breaker.Cooldown))
		observability.CLILogger.Info("")

		// Upstream News API Configuration
		observability.CLILogger.Info("News API:")
		observability.CLILogger.Info("  Base URL:       " + cfg.News.BaseURL)
		observability.CLILogger.Info("  Timeout:        " + cfg.News.Timeout.String())
		if strings.TrimSpace(cfg.News.APIKey) != "" {
			observability.CLILogger.Info("  API Key:        (set)")
		} else {
			observability.CLILogger.Info("  API Key:        (not set)")
		}
		observability.CLILogger.Info("")

		observability.CLILogger.Info("=== End Environment Information ===")
	},
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
