package dynamodb

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dreschagin/securecam/internal/application/port"
)

const (
	maxBatchWriteSize = 25
	maxBatchRetries   = 5

	attrPK          = "PK"
	attrSK          = "SK"
	attrGSI1PK      = "GSI1PK"
	attrGSI1SK      = "GSI1SK"
	attrLoadID      = "load_id"
	attrLoadNumber  = "load_number"
	attrStepIndex   = "step_index"
	attrKind        = "kind"
	attrRemoteKey   = "remote_key"
	attrContentType = "content_type"
	attrSizeBytes   = "size_bytes"
	attrCapturedAt  = "captured_at"
	attrUploadedAt  = "uploaded_at"
)

var loadKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

type Config struct {
	TableName       string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

type batchWriter interface {
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// MediaCatalogRepository хранит метаданные загруженных медиа в DynamoDB.
// Партиция - груз, сортировка по времени съемки и шагу.
type MediaCatalogRepository struct {
	client    batchWriter
	tableName string
	backoff   time.Duration
}

var _ port.MediaCatalog = (*MediaCatalogRepository)(nil)

func NewMediaCatalogRepository(ctx context.Context, cfg Config) (*MediaCatalogRepository, error) {
	if strings.TrimSpace(cfg.TableName) == "" {
		return nil, fmt.Errorf("dynamodb table name is required")
	}

	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}

	loadOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	accessKeyID := strings.TrimSpace(cfg.AccessKeyID)
	secretAccessKey := strings.TrimSpace(cfg.SecretAccessKey)
	if accessKeyID != "" || secretAccessKey != "" {
		if accessKeyID == "" || secretAccessKey == "" {
			return nil, fmt.Errorf("both dynamodb access key id and secret access key are required for static credentials")
		}
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID,
			secretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws config for dynamodb: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(options *dynamodb.Options) {
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			options.BaseEndpoint = &endpoint
		}
	})

	return newRepository(client, strings.TrimSpace(cfg.TableName)), nil
}

func newRepository(client batchWriter, tableName string) *MediaCatalogRepository {
	return &MediaCatalogRepository{
		client:    client,
		tableName: tableName,
		backoff:   100 * time.Millisecond,
	}
}

func (r *MediaCatalogRepository) PutBatch(ctx context.Context, records []port.CatalogRecord) error {
	if len(records) == 0 {
		return nil
	}

	for start := 0; start < len(records); start += maxBatchWriteSize {
		end := min(start+maxBatchWriteSize, len(records))

		requests := make([]types.WriteRequest, 0, end-start)
		for _, record := range records[start:end] {
			item, err := toItem(record)
			if err != nil {
				return err
			}
			requests = append(requests, types.WriteRequest{
				PutRequest: &types.PutRequest{Item: item},
			})
		}

		if err := r.writeBatchWithRetry(ctx, requests); err != nil {
			return err
		}
	}

	return nil
}

func (r *MediaCatalogRepository) writeBatchWithRetry(ctx context.Context, requests []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{
		r.tableName: requests,
	}

	for attempt := 0; attempt < maxBatchRetries; attempt++ {
		output, err := r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: pending,
		})
		if err != nil {
			return fmt.Errorf("dynamodb batch write failed: %w", err)
		}

		if len(output.UnprocessedItems) == 0 {
			return nil
		}

		pending = output.UnprocessedItems
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * r.backoff):
		}
	}

	return fmt.Errorf("dynamodb batch write has unprocessed items after retries")
}

func toItem(record port.CatalogRecord) (map[string]types.AttributeValue, error) {
	loadKey := catalogLoadKey(record)
	kind := strings.TrimSpace(record.Kind)
	remoteKey := strings.TrimSpace(record.RemoteKey)
	if !loadKeyPattern.MatchString(loadKey) {
		return nil, fmt.Errorf("invalid load key %q", loadKey)
	}
	if kind == "" {
		return nil, fmt.Errorf("kind is required")
	}
	if remoteKey == "" {
		return nil, fmt.Errorf("remote_key is required")
	}

	capturedAt := record.CapturedAt.UTC()
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}
	uploadedAt := record.UploadedAt.UTC()
	if uploadedAt.IsZero() {
		uploadedAt = capturedAt
	}
	capturedAtMS := capturedAt.UnixMilli()

	item := map[string]types.AttributeValue{
		attrPK:         &types.AttributeValueMemberS{Value: buildPK(loadKey)},
		attrSK:         &types.AttributeValueMemberS{Value: buildSK(capturedAtMS, record.StepIndex, remoteKey)},
		attrGSI1PK:     &types.AttributeValueMemberS{Value: buildGSI1PK(loadKey, kind)},
		attrGSI1SK:     &types.AttributeValueMemberS{Value: buildGSI1SK(capturedAtMS, remoteKey)},
		attrStepIndex:  &types.AttributeValueMemberN{Value: strconv.Itoa(record.StepIndex)},
		attrKind:       &types.AttributeValueMemberS{Value: kind},
		attrRemoteKey:  &types.AttributeValueMemberS{Value: remoteKey},
		attrCapturedAt: &types.AttributeValueMemberN{Value: strconv.FormatInt(capturedAtMS, 10)},
		attrUploadedAt: &types.AttributeValueMemberN{Value: strconv.FormatInt(uploadedAt.UnixMilli(), 10)},
	}

	if loadID := strings.TrimSpace(record.LoadID); loadID != "" {
		item[attrLoadID] = &types.AttributeValueMemberS{Value: loadID}
	}
	if loadNumber := strings.TrimSpace(record.LoadNumber); loadNumber != "" {
		item[attrLoadNumber] = &types.AttributeValueMemberS{Value: loadNumber}
	}
	if contentType := strings.TrimSpace(record.ContentType); contentType != "" {
		item[attrContentType] = &types.AttributeValueMemberS{Value: contentType}
	}
	if record.SizeBytes > 0 {
		item[attrSizeBytes] = &types.AttributeValueMemberN{Value: strconv.FormatInt(record.SizeBytes, 10)}
	}

	return item, nil
}

// catalogLoadKey - номер груза, если он есть, иначе ID.
func catalogLoadKey(record port.CatalogRecord) string {
	if loadNumber := strings.TrimSpace(record.LoadNumber); loadNumber != "" {
		return loadNumber
	}
	return strings.TrimSpace(record.LoadID)
}

func buildPK(loadKey string) string {
	return "LOAD#" + loadKey
}

func buildSK(capturedAtMS int64, stepIndex int, remoteKey string) string {
	return fmt.Sprintf("TS#%013d#STEP#%02d#KEY#%s", capturedAtMS, stepIndex, objectHash(remoteKey))
}

func buildGSI1PK(loadKey, kind string) string {
	return fmt.Sprintf("LOAD#%s#KIND#%s", loadKey, kind)
}

func buildGSI1SK(capturedAtMS int64, remoteKey string) string {
	return fmt.Sprintf("TS#%013d#KEY#%s", capturedAtMS, objectHash(remoteKey))
}

func objectHash(key string) string {
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:8])
}
