package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aweris/locstore"
	"github.com/aweris/locstore/internal/legacy"
	"github.com/aweris/locstore/internal/replicated"
)

var rootCmd = &cobra.Command{
	Use:   "locstore",
	Short: "Content location index CLI",
	Long:  "CLI for the dual-backend content location index: serve the HTTP API or run operations directly.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ~/.config/locstore/config.yaml)")
	rootCmd.PersistentFlags().String("read-backends", "", "backends serving reads (comma-separated: legacy,replicated)")
	rootCmd.PersistentFlags().String("write-backends", "", "backends serving writes (comma-separated: legacy,replicated)")
	rootCmd.PersistentFlags().String("redis-addr", "", "shared store address for the legacy backend")

	viper.BindPFlag("mode.read", rootCmd.PersistentFlags().Lookup("read-backends"))
	viper.BindPFlag("mode.write", rootCmd.PersistentFlags().Lookup("write-backends"))
	viper.BindPFlag("redis.addr", rootCmd.PersistentFlags().Lookup("redis-addr"))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("LOCSTORE")
	viper.AutomaticEnv()
	viper.SetDefault("mode.read", "legacy")
	viper.SetDefault("mode.write", "legacy,replicated")
	viper.SetDefault("redis.addr", "127.0.0.1:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("ttl", "24h")
	viper.SetDefault("max_blob_size", locstore.DefaultMaxBlobSize)
	viper.SetDefault("batch_size", locstore.DefaultBatchSize)
	viper.SetDefault("listen", ":8585")
	viper.SetDefault("log_level", "info")

	viper.ReadInConfig()
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "locstore")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "locstore")
	}
	return ".locstore"
}

// buildLogger builds the process logger from config.
func buildLogger() *zap.Logger {
	level, err := zapcore.ParseLevel(viper.GetString("log_level"))
	if err != nil {
		level = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	log, err := cfg.Build()
	if err != nil {
		log = zap.NewNop()
	}
	return log
}

// buildRouter assembles backends and router from config. Backends outside
// the configured mode are still constructed only when the mode needs them.
func buildRouter(log *zap.Logger) (*locstore.Router, error) {
	readSet, err := locstore.ParseBackendSet(viper.GetString("mode.read"))
	if err != nil {
		return nil, fmt.Errorf("mode.read: %w", err)
	}
	writeSet, err := locstore.ParseBackendSet(viper.GetString("mode.write"))
	if err != nil {
		return nil, fmt.Errorf("mode.write: %w", err)
	}
	mode := locstore.NewModeSet(readSet, writeSet)

	ttl, err := time.ParseDuration(viper.GetString("ttl"))
	if err != nil {
		return nil, fmt.Errorf("ttl: %w", err)
	}

	var legacyBackend locstore.Backend
	if mode.ReadOrWriteIncludes(locstore.Legacy) {
		l, err := legacy.New(viper.GetString("redis.addr"), viper.GetInt("redis.db"), ttl, log)
		if err != nil {
			return nil, err
		}
		legacyBackend = l
	}
	var replicatedBackend locstore.Backend
	if mode.ReadOrWriteIncludes(locstore.Replicated) {
		replicatedBackend = replicated.New(ttl, log)
	}

	return locstore.New(mode, legacyBackend, replicatedBackend,
		locstore.WithMaxBlobSize(viper.GetInt64("max_blob_size")),
		locstore.WithBatchSize(viper.GetInt("batch_size")),
		locstore.WithLogger(log),
	), nil
}
