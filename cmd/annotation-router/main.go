package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/annotation-router/internal/config"
	"github.com/fpang/annotation-router/internal/logging"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

// Persistent flags shared by all subcommands.
var (
	backendFlag     string
	storageRootFlag string
)

// rootCmd is the main Cobra command for the annotation-router CLI.
var rootCmd = &cobra.Command{
	Use:   "annotation-router",
	Short: "Route Label Studio classification outputs into per-class buckets",
	Long: `Annotation Router moves images annotated in Label Studio into per-class
directories of destination buckets, and triggers Label Studio's storage
connectors so new tasks and exports show up.

Configuration comes from the environment (MINIO_ENDPOINT, ROUTING_RULES,
LABEL_STUDIO_URL, ...); flags override the storage backend.

Examples:
  annotation-router route
  annotation-router route --source randomsampled --dry-run
  annotation-router route --backend dir --storage-root /data/minio
  annotation-router sync
  annotation-router classes`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(true)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "Storage backend: s3, dir or mem (default from STORAGE_BACKEND)")
	rootCmd.PersistentFlags().StringVar(&storageRootFlag, "storage-root", "", "Root directory for the dir backend (default from STORAGE_ROOT)")
	rootCmd.AddCommand(routeCmd, syncCmd, classesCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig() (*config.Config, error) {
	if backendFlag != "" {
		os.Setenv("STORAGE_BACKEND", backendFlag)
	}
	if storageRootFlag != "" {
		os.Setenv("STORAGE_ROOT", storageRootFlag)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		return nil, err
	}
	return cfg, nil
}
