package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/annotation-router/internal/awsboot"
	"github.com/fpang/annotation-router/internal/labelstudio"
)

var (
	labelStudioURLFlag string
	waitFlag           time.Duration
	syncTimeoutFlag    time.Duration
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Trigger import and export storage sync for every Label Studio project",
	Long: `Sync lists every Label Studio project and asks its S3 import storage and
S3 export storage to sync. New images then appear as tasks, and finished
annotations are written to labelstudio/output/ where "route" picks them up.

The token comes from LABEL_STUDIO_USER_TOKEN, or from the SSM parameter named
by SSM_LABEL_STUDIO_TOKEN_PARAM when the variable is unset.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&labelStudioURLFlag, "url", "", "Label Studio base URL (default from LABEL_STUDIO_URL)")
	syncCmd.Flags().DurationVar(&waitFlag, "wait", 0, "Wait this long before syncing, e.g. while Label Studio starts")
	syncCmd.Flags().DurationVar(&syncTimeoutFlag, "timeout", 5*time.Minute, "Overall timeout for the sync")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if labelStudioURLFlag != "" {
		cfg.LabelStudioURL = labelStudioURLFlag
	}

	ctx, cancel := withTimeout(cmd.Context(), syncTimeoutFlag)
	defer cancel()

	token := cfg.LabelStudioToken
	if token == "" {
		awsCfg, err := awsboot.LoadAWS(ctx, cfg)
		if err != nil {
			return err
		}
		if token, err = awsboot.LabelStudioToken(ctx, awsboot.NewSSMClient(awsCfg), cfg); err != nil {
			return err
		}
	}

	if waitFlag > 0 {
		log.Info().Dur("wait", waitFlag).Msg("Waiting before sync")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitFlag):
		}
	}

	report, err := labelstudio.NewClient(cfg.LabelStudioURL, token).SyncAll(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Projects: %d   Imports synced: %d   Exports synced: %d   Without storage: %d\n",
		report.Projects, report.ImportsSynced, report.ExportsSynced, report.NoStorage)
	if report.Failures > 0 {
		fmt.Fprintf(out, "Failed projects: %v\n", report.FailedProjects)
		return fmt.Errorf("%d project(s) failed to sync", report.Failures)
	}
	return nil
}

// withTimeout bounds the command when the caller has no deadline.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
