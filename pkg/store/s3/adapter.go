// Package s3 stores snapshots as objects in an S3 bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	awss3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/nimburion/docstore/pkg/observability/logger"
	"github.com/nimburion/docstore/pkg/store"
)

// Backend is the backend name reported by the adapter.
const Backend = "s3"

const contentType = "application/bson"

// Config defines S3 adapter configuration.
type Config struct {
	Bucket string
	Region string
	// Endpoint overrides the AWS endpoint, e.g. for MinIO or LocalStack.
	Endpoint string
	// Prefix is prepended to every snapshot name to form the object key.
	Prefix           string
	AccessKeyID      string
	SecretAccessKey  string
	SessionToken     string
	UsePathStyle     bool
	OperationTimeout time.Duration
}

type s3API interface {
	HeadBucket(ctx context.Context, params *awss3.HeadBucketInput, optFns ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error)
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
}

// Adapter stores snapshot payloads as objects keyed by Config.Prefix + name.
type Adapter struct {
	client s3API
	logger logger.Logger
	config Config

	mu     sync.RWMutex
	closed bool
}

// NewAdapter creates a new S3 adapter and verifies bucket accessibility.
func NewAdapter(ctx context.Context, cfg Config, log logger.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("s3 bucket is required")
	}
	if strings.TrimSpace(cfg.Region) == "" {
		return nil, errors.New("aws region is required")
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 10 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}

	loadOptions := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" || cfg.SecretAccessKey != "" {
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	clientOptions := make([]func(*awss3.Options), 0, 2)
	if cfg.Endpoint != "" {
		clientOptions = append(clientOptions, func(o *awss3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		clientOptions = append(clientOptions, func(o *awss3.Options) {
			o.UsePathStyle = true
		})
	}

	adapter := newAdapter(awss3.NewFromConfig(awsCfg, clientOptions...), cfg, log)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.OperationTimeout)
	defer cancel()
	if err := adapter.Ping(pingCtx); err != nil {
		return nil, err
	}

	log.Info("S3 snapshot store initialized", "bucket", cfg.Bucket, "region", cfg.Region, "endpoint", cfg.Endpoint, "prefix", cfg.Prefix)
	return adapter, nil
}

func newAdapter(client s3API, cfg Config, log logger.Logger) *Adapter {
	return &Adapter{client: client, logger: log, config: cfg}
}

// Backend implements store.SnapshotStore.
func (a *Adapter) Backend() string { return Backend }

// Ping verifies that the configured bucket is accessible.
func (a *Adapter) Ping(ctx context.Context) error {
	if err := a.ensureOpen(); err != nil {
		return err
	}
	_, err := a.client.HeadBucket(ctx, &awss3.HeadBucketInput{
		Bucket: aws.String(a.config.Bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 ping failed: %w", err)
	}
	return nil
}

// PutSnapshot uploads data under the object key for name.
func (a *Adapter) PutSnapshot(ctx context.Context, name string, data []byte) error {
	key, err := a.key(name)
	if err != nil {
		return err
	}

	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()

	_, err = a.client.PutObject(opCtx, &awss3.PutObjectInput{
		Bucket:        aws.String(a.config.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload snapshot %q: %w", key, err)
	}
	a.logger.Debug("snapshot uploaded", "bucket", a.config.Bucket, "key", key, "bytes", len(data))
	return nil
}

// GetSnapshot downloads the object stored for name.
func (a *Adapter) GetSnapshot(ctx context.Context, name string) ([]byte, error) {
	key, err := a.key(name)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()

	resp, err := a.client.GetObject(opCtx, &awss3.GetObjectInput{
		Bucket: aws.String(a.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", store.ErrSnapshotNotFound, name)
		}
		return nil, fmt.Errorf("failed to download snapshot %q: %w", key, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %q: %w", key, err)
	}
	return payload, nil
}

// DeleteSnapshot removes the object stored for name.
func (a *Adapter) DeleteSnapshot(ctx context.Context, name string) error {
	key, err := a.key(name)
	if err != nil {
		return err
	}

	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()

	_, err = a.client.DeleteObject(opCtx, &awss3.DeleteObjectInput{
		Bucket: aws.String(a.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete snapshot %q: %w", key, err)
	}
	return nil
}

// ListSnapshots pages through every object under the prefix. Keys below a
// nested folder are skipped.
func (a *Adapter) ListSnapshots(ctx context.Context) ([]string, error) {
	if err := a.ensureOpen(); err != nil {
		return nil, err
	}

	opCtx, cancel := a.withOperationTimeout(ctx)
	defer cancel()

	paginator := awss3.NewListObjectsV2Paginator(a.client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(a.config.Bucket),
		Prefix: aws.String(a.config.Prefix),
	})

	var names []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(opCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to list snapshots with prefix %q: %w", a.config.Prefix, err)
		}
		for _, item := range page.Contents {
			if name, ok := a.nameOf(item); ok {
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// HealthCheck verifies the adapter can reach the bucket within a short timeout.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	hcCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.Ping(hcCtx); err != nil {
		a.logger.Error("S3 health check failed", "error", err)
		return fmt.Errorf("s3 health check failed: %w", err)
	}
	return nil
}

// Close marks the adapter as closed.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *Adapter) key(name string) (string, error) {
	if err := a.ensureOpen(); err != nil {
		return "", err
	}
	if err := store.ValidateName(name); err != nil {
		return "", err
	}
	return a.config.Prefix + name, nil
}

func (a *Adapter) nameOf(item awss3types.Object) (string, bool) {
	name := strings.TrimPrefix(aws.ToString(item.Key), a.config.Prefix)
	if name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}

func (a *Adapter) withOperationTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.config.OperationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.config.OperationTimeout)
}

func (a *Adapter) ensureOpen() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return store.ErrClosed
	}
	return nil
}

func isNotFound(err error) bool {
	var noSuchKey *awss3types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *awss3types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
