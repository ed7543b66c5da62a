// Package s3 provides an S3-compatible record storage backend. It
// works with AWS S3 and S3-compatible services such as MinIO.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/corknet/cork-node/pkg/reference"

	"github.com/corknet/cork-node/internal/recordstore/physical"
	"github.com/corknet/cork-node/internal/storage"
)

const (
	KeyBucket       = "bucket"
	KeyRegion       = "region"
	KeyEndpoint     = "endpoint"
	KeyAccessKey    = "access_key"
	KeySecretKey    = "secret_key"
	KeyPrefix       = "prefix"
	KeyUsePathStyle = "use_path_style"
)

func init() {
	physical.Register("s3", NewFactory, Defaults)
}

// Defaults returns the default configuration for the S3 backend.
func Defaults() map[string]string {
	return map[string]string{
		KeyRegion:       "us-east-1",
		KeyPrefix:       "records/",
		KeyUsePathStyle: "false",
	}
}

// NewFactory creates a new S3 backend from a configuration map.
func NewFactory(ctx context.Context, config map[string]string) (physical.Backend, error) {
	bucket := storage.GetString(config, KeyBucket, "")
	if bucket == "" {
		return nil, storage.NewConfigError("s3", KeyBucket, "cannot be empty")
	}

	region := storage.GetString(config, KeyRegion, "us-east-1")
	endpoint := storage.GetString(config, KeyEndpoint, "")
	accessKey := storage.GetString(config, KeyAccessKey, "")
	secretKey := storage.GetString(config, KeySecretKey, "")
	prefix := storage.GetString(config, KeyPrefix, "records/")

	usePathStyle, err := storage.GetBool(config, KeyUsePathStyle, false)
	if err != nil {
		return nil, storage.NewConfigErrorWithValue("s3", KeyUsePathStyle, config[KeyUsePathStyle], err.Error())
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	if accessKey != "" && secretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, storage.NewConfigErrorWithCause("s3", KeyRegion, "failed to load AWS configuration", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = &endpoint
		}
		o.UsePathStyle = usePathStyle
	})

	// Fail fast if the bucket is unreachable or credentials are wrong.
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &bucket}); err != nil {
		return nil, storage.NewConfigErrorWithCause("s3", KeyBucket, "bucket not accessible", err)
	}

	slog.Info("s3 recordstore initialized", "bucket", bucket, "region", region)
	return &Backend{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// Backend is an S3 implementation of physical.Backend.
type Backend struct {
	client *s3.Client
	bucket string
	prefix string
	closed atomic.Bool
}

func (b *Backend) keyFor(r reference.Reference) string {
	return b.prefix + reference.Hex(r)
}

// Put stores record bytes at the given reference.
func (b *Backend) Put(ctx context.Context, r reference.Reference, data []byte) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}

	key := b.keyFor(r)
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &b.bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("s3 put: %w", err)
	}
	return nil
}

// Get retrieves record bytes by reference.
func (b *Backend) Get(ctx context.Context, r reference.Reference) ([]byte, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}

	key := b.keyFor(r)
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &b.bucket,
		Key:    &key,
	})
	if err != nil {
		if isNotFound(err) {
			return nil, physical.ErrNotFound
		}
		return nil, fmt.Errorf("s3 get: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 get: %w", err)
	}
	return data, nil
}

// Exists checks if a record exists.
func (b *Backend) Exists(ctx context.Context, r reference.Reference) (bool, error) {
	if b.closed.Load() {
		return false, physical.ErrClosed
	}

	key := b.keyFor(r)
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &b.bucket,
		Key:    &key,
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("s3 exists: %w", err)
	}
	return true, nil
}

// Stats lists objects under the configured prefix and returns
// aggregate statistics.
func (b *Backend) Stats(ctx context.Context) (*physical.Stats, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}

	var size int64
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: &b.bucket,
		Prefix: &b.prefix,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 stats: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Size != nil {
				size += *obj.Size
			}
		}
	}
	return &physical.Stats{
		SizeBytes:   size,
		BackendType: "s3",
	}, nil
}

// Close marks the backend closed.
func (b *Backend) Close() error {
	b.closed.Store(true)
	return nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
		return true
	}
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404 {
		return true
	}
	return false
}
