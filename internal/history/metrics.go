package history

import (
	"context"
	"io"
	"os"

	"github.com/fpang/annotation-router/internal/metrics"
	"github.com/fpang/annotation-router/internal/router"
)

// MetricsNamespace is the CloudWatch namespace for routing metrics.
const MetricsNamespace = "AnnotationRouter"

// MetricsSink emits one EMF document per pass.
type MetricsSink struct {
	out io.Writer
}

// Compile-time interface check.
var _ router.ReportSink = (*MetricsSink)(nil)

// NewMetricsSink creates a sink writing EMF to w, or stdout when w is nil.
func NewMetricsSink(w io.Writer) *MetricsSink {
	if w == nil {
		w = os.Stdout
	}
	return &MetricsSink{out: w}
}

// Record emits pass counters with a Source dimension.
func (s *MetricsSink) Record(_ context.Context, r *router.Report) error {
	rec := metrics.NewWithWriter(MetricsNamespace, s.out).
		Dimension("Source", r.Source).
		Metric("FilesListed", float64(r.Listed), metrics.UnitCount).
		Metric("FilesRouted", float64(r.Routed()), metrics.UnitCount).
		Metric("FilesSkipped", float64(r.Skipped()), metrics.UnitCount).
		Metric("PassDuration", float64(r.Duration.Milliseconds()), metrics.UnitMilliseconds).
		Property("runId", r.RunID).
		Property("bucket", r.Bucket).
		Property("dryRun", r.DryRun)
	for _, o := range router.Outcomes {
		if o == router.OutcomeRouted || o == router.OutcomeAlreadyTracked {
			continue
		}
		if n := r.Count(o); n > 0 {
			rec.Property("outcome_"+o.String(), n)
		}
	}
	if r.Err != nil {
		rec.Metric("PassFailed", 1, metrics.UnitCount)
	}
	return rec.Flush()
}
