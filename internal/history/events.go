package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/rs/zerolog/log"

	"github.com/fpang/annotation-router/internal/router"
)

// Event envelope values.
const (
	EventSource        = "annotation-router"
	EventPassCompleted = "RoutingPassCompleted"
)

// EventBridgeAPI is the subset of *eventbridge.Client used by EventSink.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, in *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventSink publishes a RoutingPassCompleted event per pass, e.g. to kick
// off retraining once enough new images have landed in a bucket.
type EventSink struct {
	client  EventBridgeAPI
	busName string
}

// Compile-time interface checks.
var (
	_ router.ReportSink = (*EventSink)(nil)
	_ EventBridgeAPI    = (*eventbridge.Client)(nil)
)

// NewEventSink creates a sink publishing to busName ("" means the default bus).
func NewEventSink(client EventBridgeAPI, busName string) *EventSink {
	return &EventSink{client: client, busName: busName}
}

// Record publishes the pass summary.
func (s *EventSink) Record(ctx context.Context, r *router.Report) error {
	detail, err := json.Marshal(Summarize(r))
	if err != nil {
		return fmt.Errorf("marshal %s: %w", EventPassCompleted, err)
	}

	entry := eventbridgetypes.PutEventsRequestEntry{
		Source:     aws.String(EventSource),
		DetailType: aws.String(EventPassCompleted),
		Detail:     aws.String(string(detail)),
	}
	if s.busName != "" {
		entry.EventBusName = aws.String(s.busName)
	}

	result, err := s.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []eventbridgetypes.PutEventsRequestEntry{entry},
	})
	if err != nil {
		return fmt.Errorf("PutEvents: %w", err)
	}
	if result.FailedEntryCount > 0 {
		for i, e := range result.Entries {
			if e.ErrorCode != nil || e.ErrorMessage != nil {
				return fmt.Errorf("PutEvents entry %d failed: %s - %s", i, aws.ToString(e.ErrorCode), aws.ToString(e.ErrorMessage))
			}
		}
		return fmt.Errorf("PutEvents: %d entries failed", result.FailedEntryCount)
	}

	log.Debug().Str("source", r.Source).Str("runId", r.RunID).Msg("Pass event published")
	return nil
}
