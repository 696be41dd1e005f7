package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/tordrt/wshealth"
	"github.com/tordrt/wshealth/internal/config"
	"github.com/tordrt/wshealth/internal/logging"
)

var (
	cfgFile      string
	logLevel     string
	metadataURL  string
	metadataFile string
)

// errUnhealthy makes the process exit 1 without printing an error.
var errUnhealthy = errors.New("workspace is not healthy")

var rootCmd = &cobra.Command{
	Use:   "wshealth",
	Short: "Check and repair workspace schemas against their metadata",
	Long: `wshealth compares the tables of a workspace with the objects, fields and
relations declared in its metadata, reports every divergence and can plan and
run the migrations that fix them.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: "+config.DefaultPath+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&metadataURL, "metadata-url", "", "PostgreSQL metadata database url (overrides config)")
	rootCmd.PersistentFlags().StringVar(&metadataFile, "metadata-file", "", "YAML metadata file (overrides config)")

	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(metadataCmd)
}

// loadConfig reads the config file and applies flag overrides. A missing
// default config file is not an error.
func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx, cfgFile)
	if err != nil {
		if cfgFile != "" || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		cfg = config.Default()
	}

	if metadataURL != "" || metadataFile != "" {
		cfg.Metadata.URL = metadataURL
		cfg.Metadata.File = metadataFile
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg *config.Config) hclog.Logger {
	return logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
}

func engineOptions(cfg *config.Config, logger hclog.Logger) *wshealth.Options {
	return &wshealth.Options{
		MetadataURL:    cfg.Metadata.URL,
		MetadataFile:   config.ExpandHome(cfg.Metadata.File),
		MaxConnections: cfg.Metadata.MaxConnections,
		RedisAddr:      cfg.Redis.Addr,
		RedisPassword:  cfg.Redis.Password,
		RedisDB:        cfg.Redis.DB,
		LockTTL:        cfg.Health.LockTTL,
		Concurrency:    cfg.Health.Concurrency,
		Logger:         logger,
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errUnhealthy) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}
