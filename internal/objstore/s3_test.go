package objstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// fakeS3 is an in-memory S3API with MinIO-like error codes.
type fakeS3 struct {
	mu      sync.Mutex
	buckets map[string]map[string][]byte
	copies  []string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{buckets: make(map[string]map[string][]byte)}
}

func apiErr(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code}
}

func (f *fakeS3) HeadBucket(_ context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.buckets[aws.ToString(in.Bucket)]; !ok {
		return nil, apiErr("NotFound")
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := aws.ToString(in.Bucket)
	if _, ok := f.buckets[b]; ok {
		return nil, apiErr("BucketAlreadyOwnedByYou")
	}
	f.buckets[b] = make(map[string][]byte)
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	objs, ok := f.buckets[aws.ToString(in.Bucket)]
	if !ok {
		return nil, apiErr("NotFound")
	}
	if _, ok := objs[aws.ToString(in.Key)]; !ok {
		return nil, apiErr("NotFound")
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	objs, ok := f.buckets[aws.ToString(in.Bucket)]
	if !ok {
		return nil, apiErr("NoSuchBucket")
	}
	data, ok := objs[aws.ToString(in.Key)]
	if !ok {
		return nil, apiErr("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	objs, ok := f.buckets[aws.ToString(in.Bucket)]
	if !ok {
		return nil, apiErr("NoSuchBucket")
	}
	objs[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	src, err := url.PathUnescape(aws.ToString(in.CopySource))
	if err != nil {
		return nil, apiErr("InvalidArgument")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	srcBucket, srcKey, _ := strings.Cut(src, "/")
	srcObjs, ok := f.buckets[srcBucket]
	if !ok {
		return nil, apiErr("NoSuchBucket")
	}
	data, ok := srcObjs[srcKey]
	if !ok {
		return nil, apiErr("NoSuchKey")
	}
	dstObjs, ok := f.buckets[aws.ToString(in.Bucket)]
	if !ok {
		return nil, apiErr("NoSuchBucket")
	}
	dstObjs[aws.ToString(in.Key)] = data
	f.copies = append(f.copies, aws.ToString(in.CopySource))
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	objs, ok := f.buckets[aws.ToString(in.Bucket)]
	if !ok {
		return nil, apiErr("NoSuchBucket")
	}
	prefix := aws.ToString(in.Prefix)
	delim := aws.ToString(in.Delimiter)

	var keys []string
	for k := range objs {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if delim != "" && strings.Contains(strings.TrimPrefix(k, prefix), delim) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if in.MaxKeys != nil && int(*in.MaxKeys) < len(keys) {
		keys = keys[:*in.MaxKeys]
	}

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func TestS3Store(t *testing.T) {
	fake := newFakeS3()
	exerciseStore(t, NewS3Store(fake))
}

func TestS3StoreCopySourceIsEscaped(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	s := NewS3Store(fake)
	if err := s.MakeDir(ctx, "production"); err != nil {
		t.Fatal(err)
	}
	if err := s.MakeDir(ctx, "cleanproduction"); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(ctx, "production/my photo+1.jpg", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := s.Copy(ctx, "production/my photo+1.jpg", "cleanproduction/class_03/my photo+1.jpg"); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if len(fake.copies) != 1 || fake.copies[0] != "production/my%20photo+1.jpg" {
		t.Errorf("unexpected CopySource values: %v", fake.copies)
	}
}

func TestS3StoreListSkipsFolderMarkersAndNested(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	fake.buckets["labelstudio"] = map[string][]byte{
		"output/randomsampled/":       nil,
		"output/randomsampled/1":      []byte("{}"),
		"output/randomsampled/2":      []byte("{}"),
		"output/randomsampled/old/3":  []byte("{}"),
		"output/lowconfidence/4":      []byte("{}"),
	}
	files, err := NewS3Store(fake).List(ctx, "labelstudio/output/randomsampled/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"labelstudio/output/randomsampled/1", "labelstudio/output/randomsampled/2"}
	if strings.Join(files, ",") != strings.Join(want, ",") {
		t.Errorf("List = %v, want %v", files, want)
	}
}

func TestIsNotFound(t *testing.T) {
	for _, code := range []string{"NotFound", "NoSuchKey", "NoSuchBucket"} {
		if !isNotFound(apiErr(code)) {
			t.Errorf("%s should be not-found", code)
		}
	}
	if isNotFound(apiErr("AccessDenied")) {
		t.Error("AccessDenied should not be not-found")
	}
	if isNotFound(errors.New("plain")) {
		t.Error("plain error should not be not-found")
	}
}
