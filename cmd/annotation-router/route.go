package main

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/spf13/cobra"

	"github.com/fpang/annotation-router/internal/awsboot"
	"github.com/fpang/annotation-router/internal/config"
	"github.com/fpang/annotation-router/internal/logging"
	"github.com/fpang/annotation-router/internal/router"
)

var (
	sourceFlags []string
	dryRunFlag  bool
	verboseFlag bool
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Copy newly annotated images into their class directories",
	Long: `Route reads Label Studio export files under labelstudio/output/<source>/,
copies each annotated image to <bucket>/class_NN/ according to the chosen
label, and records routed files in tracking/processed_<source>.json so they
are never copied twice. Files that cannot be routed are left for the next run.`,
	RunE: runRoute,
}

func init() {
	routeCmd.Flags().StringSliceVarP(&sourceFlags, "source", "s", nil, "Only route these source directories (repeatable)")
	routeCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Classify files and print the plan without copying or tracking")
	routeCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "Print one line per file that was not routed")
}

func runRoute(cmd *cobra.Command, args []string) error {
	initStart := time.Now()
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rules, err := router.FilterRules(cfg.Rules, sourceFlags)
	if err != nil {
		return err
	}

	var awsCfg aws.Config
	if cfg.NeedsAWS() {
		if awsCfg, err = awsboot.LoadAWS(ctx, cfg); err != nil {
			return err
		}
	}
	store, err := awsboot.OpenStore(awsCfg, cfg)
	if err != nil {
		return err
	}

	startup := logging.NewStartupLogger("annotation-router route").
		Version(version).
		Storage("backend", cfg.Backend).
		Feature("dryRun", dryRunFlag).
		Feature("dynamoReports", cfg.ReportsTable != "").
		Feature("events", cfg.EventBus != "").
		Feature("metrics", cfg.EmitMetrics).
		Config("imagePrefix", cfg.ImagePrefix).
		Config("outputRoot", cfg.OutputRoot).
		Config("trackingDir", cfg.TrackingDir)
	if cfg.Backend == config.BackendS3 {
		startup.Storage("endpoint", cfg.Endpoint)
	}
	if cfg.StorageRoot != "" {
		startup.Storage("root", cfg.StorageRoot)
	}
	for _, r := range rules {
		startup.Route(r.Source, r.Bucket)
	}
	startup.InitDuration(time.Since(initStart)).Log()

	pipeline := router.New(store, router.Options{
		ImagePrefix: cfg.ImagePrefix,
		OutputRoot:  cfg.OutputRoot,
		TrackingDir: cfg.TrackingDir,
		DryRun:      dryRunFlag,
		Sinks:       awsboot.Sinks(awsCfg, cfg),
	})

	reports, runErr := pipeline.RouteAll(ctx, rules)
	printReports(cmd, reports)
	return runErr
}

// printReports writes a per-source summary table to stdout.
func printReports(cmd *cobra.Command, reports []*router.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintln(out, "============================================")
	if dryRunFlag {
		fmt.Fprintln(out, "Routing Summary (DRY RUN)")
	} else {
		fmt.Fprintln(out, "Routing Summary")
	}
	fmt.Fprintln(out, "============================================")
	fmt.Fprintf(out, "%-16s %-16s %7s %7s %7s %7s\n", "SOURCE", "BUCKET", "LISTED", "ROUTED", "TRACKED", "SKIPPED")

	var routed, skipped int
	for _, r := range reports {
		status := ""
		if r.Err != nil {
			status = "  FAILED"
		}
		fmt.Fprintf(out, "%-16s %-16s %7d %7d %7d %7d%s\n",
			r.Source, r.Bucket, r.Listed, r.Routed(), r.Count(router.OutcomeAlreadyTracked), r.Skipped(), status)
		routed += r.Routed()
		skipped += r.Skipped()
	}
	fmt.Fprintln(out, "--------------------------------------------")
	fmt.Fprintf(out, "Routed: %d   Skipped (retried next run): %d\n", routed, skipped)

	if !verboseFlag {
		return
	}
	for _, r := range reports {
		for _, d := range r.Decisions {
			switch d.Outcome {
			case router.OutcomeRouted:
				if dryRunFlag {
					fmt.Fprintf(out, "   WOULD ROUTE: %s -> %s\n", d.ID, d.Destination)
				}
			case router.OutcomeAlreadyTracked:
			default:
				reason := d.Outcome.String()
				if d.Err != nil {
					reason = fmt.Sprintf("%s: %v", reason, d.Err)
				}
				fmt.Fprintf(out, "   SKIPPED: %s (%s)\n", d.ID, reason)
			}
		}
	}
}
