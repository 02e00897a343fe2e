package history

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"

	"github.com/fpang/annotation-router/internal/router"
)

// RunTTL is how long pass records are kept before DynamoDB expires them.
const RunTTL = 30 * 24 * time.Hour

// Key prefixes for the run log table.
const (
	pkPrefix = "SOURCE#"
	skPrefix = "RUN#"
)

// DynamoAPI is the subset of *dynamodb.Client used by DynamoSink.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoSink writes one item per pass. Items for a source share a partition
// key and sort by start time, so the latest runs are a single Query away.
type DynamoSink struct {
	client    DynamoAPI
	tableName string
	now       func() time.Time
}

// Compile-time interface checks.
var (
	_ router.ReportSink = (*DynamoSink)(nil)
	_ DynamoAPI         = (*dynamodb.Client)(nil)
)

// NewDynamoSink creates a sink writing to tableName.
func NewDynamoSink(client DynamoAPI, tableName string) *DynamoSink {
	return &DynamoSink{client: client, tableName: tableName, now: time.Now}
}

// Record stores the pass summary.
func (s *DynamoSink) Record(ctx context.Context, r *router.Report) error {
	summary := Summarize(r)
	item, err := attributevalue.MarshalMap(summary)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	pk := pkPrefix + summary.Source
	sk := skPrefix + summary.StartedAt + "#" + summary.RunID
	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: sk}
	item["expiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().Add(RunTTL).Unix(), 10)}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem PK=%s SK=%s: %w", pk, sk, err)
	}
	log.Debug().Str("table", s.tableName).Str("pk", pk).Str("sk", sk).Msg("Pass report stored")
	return nil
}
