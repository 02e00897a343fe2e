package router

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Outcome is what happened to a single export file during a pass.
type Outcome int

const (
	OutcomeRouted Outcome = iota
	OutcomeAlreadyTracked
	OutcomeReadFailed
	OutcomeMalformed
	OutcomeNoImage
	OutcomeNoResults
	OutcomeNoChoice
	OutcomeUnknownLabel
	OutcomeBadImageRef
	OutcomeCopyFailed
)

// outcomeNames are the stable identifiers used in logs, metrics and stored reports.
var outcomeNames = map[Outcome]string{
	OutcomeRouted:         "routed",
	OutcomeAlreadyTracked: "already_tracked",
	OutcomeReadFailed:     "read_failed",
	OutcomeMalformed:      "malformed",
	OutcomeNoImage:        "no_image",
	OutcomeNoResults:      "no_results",
	OutcomeNoChoice:       "no_choice",
	OutcomeUnknownLabel:   "unknown_label",
	OutcomeBadImageRef:    "bad_image_ref",
	OutcomeCopyFailed:     "copy_failed",
}

// Outcomes lists every outcome in declaration order.
var Outcomes = []Outcome{
	OutcomeRouted, OutcomeAlreadyTracked, OutcomeReadFailed, OutcomeMalformed,
	OutcomeNoImage, OutcomeNoResults, OutcomeNoChoice, OutcomeUnknownLabel,
	OutcomeBadImageRef, OutcomeCopyFailed,
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return "unknown"
}

// Decision records the handling of one export file.
type Decision struct {
	ID          string
	Outcome     Outcome
	Label       string
	Source      string // storage path of the image
	Destination string
	Err         error
}

// Report summarises one pass over a source directory.
type Report struct {
	RunID     string
	Source    string
	Bucket    string
	DryRun    bool
	Listed    int
	Counts    map[Outcome]int
	RoutedIDs []string
	Decisions []Decision
	Started   time.Time
	Duration  time.Duration
	// Err is set when the pass itself failed (tracking record not persisted).
	Err error
}

func newReport(runID, source, bucket string, dryRun bool) *Report {
	return &Report{
		RunID:   runID,
		Source:  source,
		Bucket:  bucket,
		DryRun:  dryRun,
		Counts:  make(map[Outcome]int),
		Started: time.Now(),
	}
}

func (r *Report) add(d Decision) {
	r.Counts[d.Outcome]++
	if d.Outcome == OutcomeRouted {
		r.RoutedIDs = append(r.RoutedIDs, d.ID)
	}
	r.Decisions = append(r.Decisions, d)
}

// Count returns the number of files with outcome o.
func (r *Report) Count(o Outcome) int { return r.Counts[o] }

// Routed returns the number of newly routed files.
func (r *Report) Routed() int { return r.Counts[OutcomeRouted] }

// Skipped returns the number of new files left for a later run.
func (r *Report) Skipped() int {
	return r.Listed - r.Routed() - r.Count(OutcomeAlreadyTracked)
}

// Log emits the pass summary as a single structured event.
func (r *Report) Log() {
	evt := log.Info()
	if r.Err != nil {
		evt = log.Error().Err(r.Err)
	}
	counts := zerolog.Dict()
	for _, o := range Outcomes {
		if n := r.Counts[o]; n > 0 {
			counts = counts.Int(o.String(), n)
		}
	}
	evt.Str("runId", r.RunID).
		Str("source", r.Source).
		Str("bucket", r.Bucket).
		Bool("dryRun", r.DryRun).
		Int("listed", r.Listed).
		Int("routed", r.Routed()).
		Int("skipped", r.Skipped()).
		Dict("outcomes", counts).
		Dur("duration", r.Duration).
		Msg("Routing pass complete")
}
