// Package history ships completed routing pass reports to places operators
// look at: a DynamoDB run log, an EventBridge bus, and CloudWatch EMF metrics.
//
// Every sink is best effort. The pipeline logs sink errors and carries on.
package history

import (
	"time"

	"github.com/fpang/annotation-router/internal/router"
)

// Summary is the serialisable form of a router.Report.
type Summary struct {
	RunID      string         `json:"runId" dynamodbav:"runId"`
	Source     string         `json:"source" dynamodbav:"source"`
	Bucket     string         `json:"bucket" dynamodbav:"bucket"`
	DryRun     bool           `json:"dryRun" dynamodbav:"dryRun"`
	Listed     int            `json:"listed" dynamodbav:"listed"`
	Routed     int            `json:"routed" dynamodbav:"routed"`
	Skipped    int            `json:"skipped" dynamodbav:"skipped"`
	Outcomes   map[string]int `json:"outcomes,omitempty" dynamodbav:"outcomes,omitempty"`
	StartedAt  string         `json:"startedAt" dynamodbav:"startedAt"`
	DurationMs int64          `json:"durationMs" dynamodbav:"durationMs"`
	Error      string         `json:"error,omitempty" dynamodbav:"error,omitempty"`
}

// Summarize converts a report into a Summary.
func Summarize(r *router.Report) Summary {
	s := Summary{
		RunID:      r.RunID,
		Source:     r.Source,
		Bucket:     r.Bucket,
		DryRun:     r.DryRun,
		Listed:     r.Listed,
		Routed:     r.Routed(),
		Skipped:    r.Skipped(),
		StartedAt:  r.Started.UTC().Format(time.RFC3339),
		DurationMs: r.Duration.Milliseconds(),
	}
	for _, o := range router.Outcomes {
		if n := r.Count(o); n > 0 {
			if s.Outcomes == nil {
				s.Outcomes = make(map[string]int)
			}
			s.Outcomes[o.String()] = n
		}
	}
	if r.Err != nil {
		s.Error = r.Err.Error()
	}
	return s
}
