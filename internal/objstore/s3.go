package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"
)

// S3API is the subset of *s3.Client used by S3Store.
type S3API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store implements Store on an S3-compatible service (MinIO in production).
// Directories are implicit key prefixes; MakeDir only has to ensure the bucket exists.
type S3Store struct {
	client S3API
}

// Compile-time interface checks.
var (
	_ Store = (*S3Store)(nil)
	_ S3API = (*s3.Client)(nil)
)

// NewS3Store wraps an S3 client.
func NewS3Store(client S3API) *S3Store {
	return &S3Store{client: client}
}

func (s *S3Store) Exists(ctx context.Context, p string) (bool, error) {
	bucket, key := SplitPath(p)
	if key == "" {
		return s.bucketExists(ctx, bucket)
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &bucket, Key: &key})
	if err == nil {
		return true, nil
	}
	if !isNotFound(err) {
		return false, fmt.Errorf("S3 HeadObject %s: %w", p, err)
	}

	// Not an object; it may still be a prefix holding objects.
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  &bucket,
		Prefix:  aws.String(key + "/"),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("S3 ListObjectsV2 %s: %w", p, err)
	}
	return len(out.Contents) > 0, nil
}

func (s *S3Store) List(ctx context.Context, p string) ([]string, error) {
	bucket, key := SplitPath(p)
	input := &s3.ListObjectsV2Input{
		Bucket:    &bucket,
		Delimiter: aws.String("/"),
	}
	if key != "" {
		input.Prefix = aws.String(key + "/")
	}

	var out []string
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			if isNotFound(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("S3 ListObjectsV2 %s: %w", p, err)
		}
		for _, obj := range page.Contents {
			k := aws.ToString(obj.Key)
			if k == "" || strings.HasSuffix(k, "/") {
				continue // folder marker
			}
			out = append(out, bucket+"/"+k)
		}
	}
	sort.Strings(out)
	log.Debug().Str("path", p).Int("objects", len(out)).Msg("S3 listing complete")
	return out, nil
}

func (s *S3Store) Read(ctx context.Context, p string) ([]byte, error) {
	bucket, key := SplitPath(p)
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("read %s: %w", p, ErrNotFound)
		}
		return nil, fmt.Errorf("S3 GetObject %s: %w", p, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("read body %s: %w", p, err)
	}
	return data, nil
}

// Write stores data with a single PutObject, which S3 applies atomically.
func (s *S3Store) Write(ctx context.Context, p string, data []byte) error {
	bucket, key := SplitPath(p)
	input := &s3.PutObjectInput{
		Bucket:        &bucket,
		Key:           &key,
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if strings.HasSuffix(key, ".json") {
		input.ContentType = aws.String("application/json")
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("S3 PutObject %s: %w", p, err)
	}
	log.Debug().Str("path", p).Int("bytes", len(data)).Msg("S3 object written")
	return nil
}

// MakeDir creates the bucket named by p if it is missing.
func (s *S3Store) MakeDir(ctx context.Context, p string) error {
	bucket, _ := SplitPath(p)
	exists, err := s.bucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: &bucket})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "BucketAlreadyOwnedByYou" {
			return nil
		}
		return fmt.Errorf("S3 CreateBucket %s: %w", bucket, err)
	}
	log.Info().Str("bucket", bucket).Msg("Created bucket")
	return nil
}

// Copy performs a server-side copy. An existing destination is overwritten.
func (s *S3Store) Copy(ctx context.Context, src, dst string) error {
	dstBucket, dstKey := SplitPath(dst)
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     &dstBucket,
		Key:        &dstKey,
		CopySource: aws.String(copySource(src)),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("copy %s: %w", src, ErrNotFound)
		}
		return fmt.Errorf("S3 CopyObject %s -> %s: %w", src, dst, err)
	}
	return nil
}

func (s *S3Store) bucketExists(ctx context.Context, bucket string) (bool, error) {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &bucket})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("S3 HeadBucket %s: %w", bucket, err)
}

// copySource builds the URL-encoded "bucket/key" CopySource value.
func copySource(p string) string {
	parts := strings.Split(cleanDir(p), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

// isNotFound reports whether err is an S3 "missing" error. HeadObject and
// HeadBucket have no body, so the SDK surfaces them as a bare NotFound code.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NotFound", "NoSuchKey", "NoSuchBucket", "404":
		return true
	}
	return false
}
