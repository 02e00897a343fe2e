// Package awsboot builds the runtime dependencies shared by the CLI and the
// Lambda: AWS config, the storage backend, the Label Studio token, and the
// report sinks. Each entry point's init is a short composition of these.
package awsboot

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/annotation-router/internal/config"
	"github.com/fpang/annotation-router/internal/history"
	"github.com/fpang/annotation-router/internal/objstore"
	"github.com/fpang/annotation-router/internal/router"
)

// LoadAWS loads the default AWS config for the configured region.
func LoadAWS(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	log.Debug().Str("region", awsCfg.Region).Msg("AWS config loaded")
	return awsCfg, nil
}

// NewS3Client creates an S3 client for MinIO: custom endpoint, path-style
// addressing and the MinIO access key pair.
func NewS3Client(awsCfg aws.Config, cfg *config.Config) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.AccessKey != "" {
			o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		}
	})
}

// OpenStore returns the storage backend selected by cfg.Backend.
// awsCfg is only used by the s3 backend.
func OpenStore(awsCfg aws.Config, cfg *config.Config) (objstore.Store, error) {
	switch cfg.Backend {
	case config.BackendS3:
		return objstore.NewS3Store(NewS3Client(awsCfg, cfg)), nil
	case config.BackendDir:
		return objstore.NewDirStore(cfg.StorageRoot), nil
	case config.BackendMem:
		log.Warn().Msg("In-memory storage backend selected, nothing will be persisted")
		return objstore.NewMemStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Sinks builds the report sinks enabled in cfg.
func Sinks(awsCfg aws.Config, cfg *config.Config) []router.ReportSink {
	var sinks []router.ReportSink
	if cfg.ReportsTable != "" {
		sinks = append(sinks, history.NewDynamoSink(dynamodb.NewFromConfig(awsCfg), cfg.ReportsTable))
	}
	if cfg.EventBus != "" {
		sinks = append(sinks, history.NewEventSink(eventbridge.NewFromConfig(awsCfg), cfg.EventBus))
	}
	if cfg.EmitMetrics {
		sinks = append(sinks, history.NewMetricsSink(nil))
	}
	return sinks
}

// ParameterAPI is the subset of *ssm.Client used to fetch secrets.
type ParameterAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

var _ ParameterAPI = (*ssm.Client)(nil)

// LabelStudioToken returns the Label Studio API token: LABEL_STUDIO_USER_TOKEN
// when set, otherwise the SSM parameter named by cfg.LabelStudioTokenParam.
// A nil client skips the SSM lookup.
func LabelStudioToken(ctx context.Context, client ParameterAPI, cfg *config.Config) (string, error) {
	if cfg.LabelStudioToken != "" {
		return cfg.LabelStudioToken, nil
	}
	if client == nil {
		return "", fmt.Errorf("LABEL_STUDIO_USER_TOKEN is not set")
	}

	start := time.Now()
	result, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(cfg.LabelStudioTokenParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("read Label Studio token from SSM %s: %w", cfg.LabelStudioTokenParam, err)
	}
	if result.Parameter == nil || aws.ToString(result.Parameter.Value) == "" {
		return "", fmt.Errorf("SSM parameter %s is empty", cfg.LabelStudioTokenParam)
	}
	log.Debug().Str("param", cfg.LabelStudioTokenParam).Dur("elapsed", time.Since(start)).Msg("Label Studio token loaded from SSM")
	return aws.ToString(result.Parameter.Value), nil
}

// NewSSMClient creates an SSM client from awsCfg.
func NewSSMClient(awsCfg aws.Config) *ssm.Client {
	return ssm.NewFromConfig(awsCfg)
}
