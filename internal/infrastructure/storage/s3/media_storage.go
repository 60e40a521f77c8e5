package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dreschagin/securecam/internal/application/port"
)

// S3 принимает не больше 1000 ключей в одном DeleteObjects
const maxDeleteBatch = 1000

type URLMode string

const (
	URLModePresigned URLMode = "presigned"
	URLModePublic    URLMode = "public"
)

type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	URLMode         URLMode
	PresignedTTL    time.Duration
}

// MediaStorage хранит медиа грузов в S3-совместимом хранилище.
// Клиент неизменяем после создания и безопасен для параллельного использования.
type MediaStorage struct {
	client       *s3.Client
	presign      *s3.PresignClient
	bucket       string
	region       string
	endpoint     string
	usePathStyle bool
	urlMode      URLMode
	presignedTTL time.Duration
}

func NewMediaStorage(ctx context.Context, cfg Config) (*MediaStorage, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.URLMode == "" {
		cfg.URLMode = URLModePresigned
	}
	if cfg.URLMode != URLModePresigned && cfg.URLMode != URLModePublic {
		return nil, fmt.Errorf("unsupported s3 url mode: %s", cfg.URLMode)
	}
	if cfg.PresignedTTL <= 0 {
		cfg.PresignedTTL = time.Hour
	}

	options := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	// Без явных ключей используется стандартная цепочка (env, профиль, IAM-роль)
	if strings.TrimSpace(cfg.AccessKeyID) != "" && strings.TrimSpace(cfg.SecretAccessKey) != "" {
		options = append(options, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws config: %w", err)
	}

	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &MediaStorage{
		client:       client,
		presign:      s3.NewPresignClient(client),
		bucket:       strings.TrimSpace(cfg.Bucket),
		region:       cfg.Region,
		endpoint:     endpoint,
		usePathStyle: cfg.UsePathStyle,
		urlMode:      cfg.URLMode,
		presignedTTL: cfg.PresignedTTL,
	}, nil
}

func (s *MediaStorage) HeadBucket(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &s.bucket}); err != nil {
		return fmt.Errorf("head bucket %s failed: %w", s.bucket, err)
	}
	return nil
}

func (s *MediaStorage) PutObject(
	ctx context.Context,
	key, contentType string,
	body []byte,
	progress port.ProgressFunc,
) (port.PutObjectResult, error) {
	return s.put(ctx, key, contentType, bytes.NewReader(body), int64(len(body)), progress)
}

func (s *MediaStorage) PutObjectStream(
	ctx context.Context,
	key, contentType string,
	body io.Reader,
	size int64,
	progress port.ProgressFunc,
) (port.PutObjectResult, error) {
	if size < 0 {
		return port.PutObjectResult{}, fmt.Errorf("content length of %s is unknown", key)
	}
	return s.put(ctx, key, contentType, body, size, progress)
}

func (s *MediaStorage) put(
	ctx context.Context,
	key, contentType string,
	body io.Reader,
	size int64,
	progress port.ProgressFunc,
) (port.PutObjectResult, error) {
	if strings.TrimSpace(key) == "" {
		return port.PutObjectResult{}, fmt.Errorf("object key is required")
	}

	output, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           &key,
		Body:          newProgressReader(body, size, progress),
		ContentType:   &contentType,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return port.PutObjectResult{}, fmt.Errorf("put object failed: %w", err)
	}
	if progress != nil {
		progress(100)
	}

	return port.PutObjectResult{
		Key:      key,
		Location: s.publicURL(key),
		ETag:     strings.Trim(aws.ToString(output.ETag), `"`),
	}, nil
}

func (s *MediaStorage) ListObjects(ctx context.Context, prefix string) ([]port.StoredObject, error) {
	normalizedPrefix := strings.TrimSpace(prefix)
	if normalizedPrefix == "" {
		return nil, fmt.Errorf("prefix is required")
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: &s.bucket,
		Prefix: &normalizedPrefix,
	})

	objects := make([]port.StoredObject, 0)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects failed: %w", err)
		}
		for _, object := range page.Contents {
			if object.Key == nil || strings.TrimSpace(*object.Key) == "" {
				continue
			}
			objects = append(objects, port.StoredObject{
				Key:          *object.Key,
				SizeBytes:    aws.ToInt64(object.Size),
				LastModified: valueTime(object.LastModified),
			})
		}
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})

	return objects, nil
}

func (s *MediaStorage) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	normalizedKey := strings.TrimSpace(key)
	if normalizedKey == "" {
		return "", fmt.Errorf("object key is required")
	}

	if s.urlMode == URLModePublic {
		return s.publicURL(normalizedKey), nil
	}
	if ttl <= 0 {
		ttl = s.presignedTTL
	}

	request, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &normalizedKey,
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign failed: %w", err)
	}

	return request.URL, nil
}

func (s *MediaStorage) DeleteObject(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("object key is required")
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key}); err != nil {
		return fmt.Errorf("delete object failed: %w", err)
	}
	return nil
}

func (s *MediaStorage) DeleteObjects(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += maxDeleteBatch {
		end := start + maxDeleteBatch
		if end > len(keys) {
			end = len(keys)
		}

		identifiers := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			identifiers = append(identifiers, types.ObjectIdentifier{Key: aws.String(key)})
		}

		output, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: &s.bucket,
			Delete: &types.Delete{Objects: identifiers, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("delete objects failed: %w", err)
		}
		if len(output.Errors) > 0 {
			return deleteErrors(output.Errors)
		}
	}
	return nil
}

func deleteErrors(failed []types.Error) error {
	errs := make([]error, 0, len(failed))
	for _, e := range failed {
		errs = append(errs, fmt.Errorf("%s: %s", aws.ToString(e.Key), aws.ToString(e.Message)))
	}
	return fmt.Errorf("delete objects partially failed: %w", errors.Join(errs...))
}

// publicURL строит адрес объекта в стиле Location из ответа S3.
func (s *MediaStorage) publicURL(key string) string {
	escapedKey := url.PathEscape(key)
	escapedKey = strings.ReplaceAll(escapedKey, "%2F", "/")

	if s.endpoint == "" {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, escapedKey)
	}
	if s.usePathStyle {
		return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, escapedKey)
	}
	endpoint := strings.TrimPrefix(s.endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	return fmt.Sprintf("https://%s.%s/%s", s.bucket, endpoint, escapedKey)
}

func valueTime(v *time.Time) time.Time {
	if v == nil {
		return time.Time{}
	}
	return v.UTC()
}
