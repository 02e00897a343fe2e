// Package main provides the Lambda entry point for scheduled routing runs.
//
// An EventBridge schedule invokes this function. Each invocation optionally
// syncs the Label Studio storages (ROUTER_SYNC_FIRST) and then runs one
// routing pass per configured rule.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/fpang/annotation-router/internal/awsboot"
	"github.com/fpang/annotation-router/internal/config"
	"github.com/fpang/annotation-router/internal/labelstudio"
	"github.com/fpang/annotation-router/internal/logging"
	"github.com/fpang/annotation-router/internal/router"
)

var coldStart = true

// Initialized at cold start.
var (
	cfg      *config.Config
	pipeline *router.Pipeline
	lsClient *labelstudio.Client
)

func init() {
	initStart := time.Now()
	logging.Init(false)

	var err error
	cfg, err = config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx := context.Background()
	awsCfg, err := awsboot.LoadAWS(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	store, err := awsboot.OpenStore(awsCfg, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	pipeline = router.New(store, router.Options{
		ImagePrefix: cfg.ImagePrefix,
		OutputRoot:  cfg.OutputRoot,
		TrackingDir: cfg.TrackingDir,
		Sinks:       awsboot.Sinks(awsCfg, cfg),
	})

	startup := logging.NewStartupLogger("router-lambda").
		Storage("backend", cfg.Backend).
		Storage("endpoint", cfg.Endpoint).
		Feature("syncFirst", cfg.SyncFirst).
		Feature("dynamoReports", cfg.ReportsTable != "").
		Feature("events", cfg.EventBus != "").
		Feature("metrics", cfg.EmitMetrics).
		Config("imagePrefix", cfg.ImagePrefix)

	if cfg.SyncFirst {
		token, err := awsboot.LabelStudioToken(ctx, awsboot.NewSSMClient(awsCfg), cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load Label Studio token")
		}
		lsClient = labelstudio.NewClient(cfg.LabelStudioURL, token)
		startup.Config("labelStudio", cfg.LabelStudioURL).Config("tokenParam", cfg.LabelStudioTokenParam)
	}
	for _, r := range cfg.Rules {
		startup.Route(r.Source, r.Bucket)
	}
	startup.InitDuration(time.Since(initStart)).Log()
}

func main() {
	lambda.Start(handler)
}

// RunRequest is the optional detail of the triggering event. A scheduled
// rule with no detail routes every configured source.
type RunRequest struct {
	Sources  []string `json:"sources,omitempty"`
	SkipSync bool     `json:"skipSync,omitempty"`
}

// RunResult is returned to the invoker.
type RunResult struct {
	RunID   string                  `json:"runId,omitempty"`
	Routed  int                     `json:"routed"`
	Skipped int                     `json:"skipped"`
	Failed  []string                `json:"failed,omitempty"`
	Sync    *labelstudio.SyncReport `json:"sync,omitempty"`
}

func handler(ctx context.Context, event events.CloudWatchEvent) (*RunResult, error) {
	if coldStart {
		coldStart = false
		log.Info().Str("function", "router-lambda").Msg("Cold start, first invocation")
	}
	log.Info().Str("eventId", event.ID).Str("detailType", event.DetailType).Msg("Routing run triggered")

	req, err := parseRequest(event.Detail)
	if err != nil {
		return nil, err
	}
	return run(ctx, req, lsClient, pipeline, cfg.Rules)
}

func parseRequest(detail json.RawMessage) (RunRequest, error) {
	var req RunRequest
	if len(detail) == 0 || string(detail) == "null" {
		return req, nil
	}
	if err := json.Unmarshal(detail, &req); err != nil {
		return req, fmt.Errorf("invalid event detail: %w", err)
	}
	return req, nil
}

// run syncs (when a client is given) and routes. A sync failure is logged
// and does not stop routing, since exports already in storage can still move.
func run(ctx context.Context, req RunRequest, ls *labelstudio.Client, p *router.Pipeline, configured []router.Rule) (*RunResult, error) {
	rules, err := router.FilterRules(configured, req.Sources)
	if err != nil {
		return nil, err
	}

	result := &RunResult{}
	if ls != nil && !req.SkipSync {
		sync, err := ls.SyncAll(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Label Studio sync failed, routing existing exports")
		}
		result.Sync = sync
	}

	reports, runErr := p.RouteAll(ctx, rules)
	for _, r := range reports {
		result.RunID = r.RunID
		result.Routed += r.Routed()
		result.Skipped += r.Skipped()
		if r.Err != nil {
			result.Failed = append(result.Failed, r.Source)
		}
	}
	log.Info().
		Str("runId", result.RunID).
		Int("routed", result.Routed).
		Int("skipped", result.Skipped).
		Strs("failed", result.Failed).
		Msg("Routing run complete")
	return result, runErr
}
