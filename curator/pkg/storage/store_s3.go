package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	// DefaultRegion matches the region the landing buckets live in.
	DefaultRegion = "eu-west-2"
)

// S3StoreConfig configures the S3 store.
type S3StoreConfig struct {
	Logger      *slog.Logger
	Region      string // AWS region
	EndpointURL string // Optional custom endpoint (for MinIO testing)

	// Optional static credentials. When empty the default AWS credential
	// chain is used.
	AccessKeyID     string
	SecretAccessKey string
}

func (cfg *S3StoreConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	if (cfg.AccessKeyID == "") != (cfg.SecretAccessKey == "") {
		return errors.New("access key id and secret access key must be set together")
	}
	return nil
}

// S3Store implements Store using AWS S3.
type S3Store struct {
	log    *slog.Logger
	client *s3.Client
}

// NewS3Store creates a new S3 store.
func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.EndpointURL != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true // Required for MinIO compatibility
		})
	}

	return &S3Store{
		log:    cfg.Logger,
		client: s3.NewFromConfig(awsCfg, clientOpts...),
	}, nil
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]Object, error) {
	bucket, keyPrefix, err := ParseURL(prefix)
	if err != nil {
		return nil, err
	}

	var objects []Object
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(keyPrefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects under %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			objects = append(objects, Object{
				URL:          "s3://" + bucket + "/" + key,
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified).UTC(),
			})
		}
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].URL < objects[j].URL })

	s.log.Debug("storage: listed objects", "prefix", prefix, "count", len(objects))
	return objects, nil
}

func (s *S3Store) Get(ctx context.Context, url string) ([]byte, error) {
	bucket, key, err := ParseURL(url)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%s: %w", url, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get object %s: %w", url, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body %s: %w", url, err)
	}
	return data, nil
}

func (s *S3Store) Put(ctx context.Context, url string, body []byte) error {
	bucket, key, err := ParseURL(url)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", url, err)
	}
	s.log.Debug("storage: wrote object", "url", url, "bytes", len(body))
	return nil
}

func (s *S3Store) Copy(ctx context.Context, srcURL, dstURL string) error {
	srcBucket, srcKey, err := ParseURL(srcURL)
	if err != nil {
		return err
	}
	dstBucket, dstKey, err := ParseURL(dstURL)
	if err != nil {
		return err
	}
	_, err = s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(dstBucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(srcBucket + "/" + escapeKey(srcKey)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return fmt.Errorf("%s: %w", srcURL, ErrNotFound)
		}
		return fmt.Errorf("failed to copy object %s: %w", srcURL, err)
	}
	return nil
}

func (s *S3Store) Delete(ctx context.Context, url string) error {
	bucket, key, err := ParseURL(url)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", url, err)
	}
	return nil
}

// Close releases resources. For S3Store, this is a no-op.
func (s *S3Store) Close() error {
	return nil
}

// escapeKey URL-encodes each path segment of a key for CopySource.
func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
