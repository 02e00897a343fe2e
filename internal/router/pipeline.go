// Package router moves annotated images into per-class directories of
// destination buckets, driven by Label Studio export files.
//
// Each source directory is handled in its own pass:
//  1. load the source's tracking record (missing or corrupt means empty)
//  2. list export files under <output root>/<source>/, skipping tracked ones
//  3. parse each file, resolve the chosen label against the class table
//  4. copy the image to <bucket>/class_NN/<basename>
//  5. persist the tracking record once, with every newly routed file
//
// A file that cannot be routed is never tracked, so it is retried on the next
// run. Source images are never deleted; re-running is always safe.
package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fpang/annotation-router/internal/annotation"
	"github.com/fpang/annotation-router/internal/classes"
	"github.com/fpang/annotation-router/internal/objstore"
	"github.com/fpang/annotation-router/internal/tracking"
)

// DefaultOutputRoot is where Label Studio's export storage writes annotations.
const DefaultOutputRoot = "labelstudio/output"

// ReportSink receives every completed pass report. Sink failures are logged
// and never affect routing.
type ReportSink interface {
	Record(ctx context.Context, report *Report) error
}

// Options configures a Pipeline. Zero fields take defaults.
type Options struct {
	Classes     *classes.Table
	ImagePrefix string
	OutputRoot  string
	TrackingDir string
	// DryRun classifies files without copying or persisting anything.
	DryRun bool
	Sinks  []ReportSink
}

// Pipeline routes export files for one storage backend.
type Pipeline struct {
	store objstore.Store
	opts  Options
}

// New creates a Pipeline over store.
func New(store objstore.Store, opts Options) *Pipeline {
	if opts.Classes == nil {
		opts.Classes = classes.Default()
	}
	if opts.ImagePrefix == "" {
		opts.ImagePrefix = annotation.DefaultImagePrefix
	}
	if opts.OutputRoot == "" {
		opts.OutputRoot = DefaultOutputRoot
	}
	if opts.TrackingDir == "" {
		opts.TrackingDir = tracking.DefaultDir
	}
	return &Pipeline{store: store, opts: opts}
}

// RouteAll runs one pass per rule. Passes are isolated: a failed pass is
// reported in its Report and in the joined error, and the remaining rules
// still run.
func (p *Pipeline) RouteAll(ctx context.Context, rules []Rule) ([]*Report, error) {
	if err := ValidateRules(rules); err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	log.Info().Str("runId", runID).Int("rules", len(rules)).Bool("dryRun", p.opts.DryRun).Msg("Starting routing run")

	var errs []error
	reports := make([]*Report, 0, len(rules))
	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		report, err := p.route(ctx, runID, rule.Source, rule.Bucket)
		reports = append(reports, report)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return reports, errors.Join(errs...)
}

// Route runs a single pass for sourceDir into destBucket.
func (p *Pipeline) Route(ctx context.Context, sourceDir, destBucket string) (*Report, error) {
	return p.route(ctx, uuid.NewString(), sourceDir, destBucket)
}

func (p *Pipeline) route(ctx context.Context, runID, sourceDir, destBucket string) (*Report, error) {
	report := newReport(runID, sourceDir, destBucket, p.opts.DryRun)
	err := p.pass(ctx, report)
	report.Duration = time.Since(report.Started)
	if err != nil {
		report.Err = err
	}
	report.Log()
	p.publish(ctx, report)
	return report, err
}

func (p *Pipeline) pass(ctx context.Context, report *Report) error {
	logger := log.With().Str("source", report.Source).Str("bucket", report.Bucket).Logger()

	tracked := tracking.Load(ctx, p.store, p.opts.TrackingDir, report.Source)

	candidates := p.listCandidates(ctx, report.Source)
	report.Listed = len(candidates)
	logger.Debug().Int("candidates", len(candidates)).Int("tracked", tracked.Len()).Msg("Listed export files")

	var cancelled error
	madeDirs := make(map[string]bool)
	for _, id := range candidates {
		if err := ctx.Err(); err != nil {
			cancelled = err
			break
		}
		if tracked.Contains(id) {
			report.add(Decision{ID: id, Outcome: OutcomeAlreadyTracked})
			continue
		}
		d := p.routeOne(ctx, id, report.Bucket, madeDirs)
		report.add(d)
		logDecision(d)
	}

	if report.Routed() == 0 || p.opts.DryRun {
		return cancelled
	}

	for _, id := range report.RoutedIDs {
		tracked.Add(id)
	}
	// Copies already happened; record them even if the run is being cancelled.
	saveCtx := context.WithoutCancel(ctx)
	if err := tracking.Save(saveCtx, p.store, p.opts.TrackingDir, report.Source, tracked); err != nil {
		return errors.Join(fmt.Errorf("source %s: %w", report.Source, err), cancelled)
	}
	logger.Info().Int("routed", report.Routed()).Int("tracked", tracked.Len()).Msg("Tracking record updated")
	return cancelled
}

// listCandidates returns the export files for source. A missing or
// unlistable directory yields no candidates.
func (p *Pipeline) listCandidates(ctx context.Context, source string) []string {
	dir := objstore.Join(p.opts.OutputRoot, source)
	exists, err := p.store.Exists(ctx, dir)
	if err != nil {
		log.Warn().Err(err).Str("path", dir).Msg("Cannot check export directory, skipping source")
		return nil
	}
	if !exists {
		log.Debug().Str("path", dir).Msg("Export directory does not exist")
		return nil
	}
	files, err := p.store.List(ctx, dir)
	if err != nil {
		log.Warn().Err(err).Str("path", dir).Msg("Cannot list export directory, skipping source")
		return nil
	}
	return files
}

// routeOne handles a single untracked export file. Every failure is returned
// as a Decision; nothing here aborts the pass.
func (p *Pipeline) routeOne(ctx context.Context, id, bucket string, madeDirs map[string]bool) Decision {
	d := Decision{ID: id}

	data, err := p.store.Read(ctx, id)
	if err != nil {
		d.Outcome, d.Err = OutcomeReadFailed, err
		return d
	}

	rec, err := annotation.Parse(data)
	if err != nil {
		d.Outcome, d.Err = OutcomeMalformed, err
		return d
	}

	label, err := rec.ChosenLabel()
	if err != nil {
		d.Outcome, d.Err = labelOutcome(err), err
		return d
	}
	d.Label = label

	class, ok := p.opts.Classes.Lookup(label)
	if !ok {
		d.Outcome = OutcomeUnknownLabel
		d.Err = fmt.Errorf("label %q not in class table", label)
		return d
	}

	src, err := annotation.StoragePath(rec.Image(), p.opts.ImagePrefix)
	if err != nil {
		d.Outcome, d.Err = OutcomeBadImageRef, err
		return d
	}
	d.Source = src

	destDir := objstore.Join(bucket, class.DirName())
	d.Destination = objstore.Join(destDir, annotation.Basename(rec.Image()))

	if p.opts.DryRun {
		d.Outcome = OutcomeRouted
		return d
	}

	if !madeDirs[destDir] {
		if err := p.store.MakeDir(ctx, destDir); err != nil {
			d.Outcome, d.Err = OutcomeCopyFailed, fmt.Errorf("prepare %s: %w", destDir, err)
			return d
		}
		madeDirs[destDir] = true
	}

	if err := p.store.Copy(ctx, src, d.Destination); err != nil {
		d.Outcome, d.Err = OutcomeCopyFailed, err
		return d
	}
	d.Outcome = OutcomeRouted
	return d
}

func labelOutcome(err error) Outcome {
	switch {
	case errors.Is(err, annotation.ErrNoImage):
		return OutcomeNoImage
	case errors.Is(err, annotation.ErrNoResults):
		return OutcomeNoResults
	default:
		return OutcomeNoChoice
	}
}

func logDecision(d Decision) {
	switch d.Outcome {
	case OutcomeRouted:
		log.Info().Str("file", d.ID).Str("label", d.Label).Str("from", d.Source).Str("to", d.Destination).Msg("Image routed")
	case OutcomeCopyFailed, OutcomeReadFailed:
		log.Error().Err(d.Err).Str("file", d.ID).Str("outcome", d.Outcome.String()).Msg("Export file not routed, will retry next run")
	case OutcomeMalformed, OutcomeUnknownLabel, OutcomeBadImageRef:
		log.Warn().Err(d.Err).Str("file", d.ID).Str("outcome", d.Outcome.String()).Msg("Export file skipped")
	default:
		log.Debug().Err(d.Err).Str("file", d.ID).Str("outcome", d.Outcome.String()).Msg("Export file skipped")
	}
}

func (p *Pipeline) publish(ctx context.Context, report *Report) {
	for _, sink := range p.opts.Sinks {
		if err := sink.Record(ctx, report); err != nil {
			log.Warn().Err(err).Str("source", report.Source).Msg("Report sink failed")
		}
	}
}
