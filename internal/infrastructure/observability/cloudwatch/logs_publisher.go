package cloudwatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/dreschagin/securecam/internal/application/port"
)

const (
	// CloudWatch Logs limits
	maxLogEventsPerRequest = 10000
	maxLogBatchBytes       = 1048576 // 1 MB
	logEventOverheadBytes  = 26
	maxLogEventSize        = 256000 // 256 KB

	// буфер не растет бесконечно, если CloudWatch недоступен
	maxBufferedMultiplier = 20
)

// поля, которые поднимаются на верхний уровень JSON для запросов Logs Insights
var correlationFields = []string{"session_id", "load_id", "load_number"}

// LogsPublisherConfig holds configuration for CloudWatch logs publishing.
type LogsPublisherConfig struct {
	LogGroupName    string
	LogStreamName   string
	Service         string // добавляется в каждую запись
	Region          string
	Endpoint        string // Optional endpoint override (for LocalStack)
	AccessKeyID     string
	SecretAccessKey string
	BufferSize      int // Buffer size before flush is triggered
	FlushInterval   time.Duration
	AutoCreate      bool // Automatically create log group/stream if missing
}

type logsAPI interface {
	PutLogEvents(ctx context.Context, params *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
	CreateLogGroup(ctx context.Context, params *cloudwatchlogs.CreateLogGroupInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error)
	CreateLogStream(ctx context.Context, params *cloudwatchlogs.CreateLogStreamInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
}

// LogsPublisher ships logger output to AWS CloudWatch Logs.
// Publish only buffers; network calls happen in the flush loop or in Flush.
type LogsPublisher struct {
	client        logsAPI
	logGroupName  string
	logStreamName string
	service       string

	mu         sync.Mutex
	buffer     []port.LogEntry
	bufferSize int
	dropped    int

	// flushMu сериализует отправку, не блокируя Publish
	flushMu sync.Mutex

	kick        chan struct{}
	flushTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

var _ port.LogPublisher = (*LogsPublisher)(nil)

// NewLogsPublisher creates a new CloudWatch logs publisher.
func NewLogsPublisher(ctx context.Context, cfg LogsPublisherConfig) (*LogsPublisher, error) {
	if cfg.LogGroupName == "" {
		return nil, fmt.Errorf("log group name is required")
	}
	if cfg.LogStreamName == "" {
		return nil, fmt.Errorf("log stream name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("region is required")
	}

	awsCfg, err := buildAWSConfig(ctx, cfg.Region, cfg.Endpoint, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	p := newLogsPublisher(cloudwatchlogs.NewFromConfig(awsCfg), cfg)

	if cfg.AutoCreate {
		if err := p.ensureLogGroupAndStream(ctx); err != nil {
			return nil, fmt.Errorf("failed to create log group/stream: %w", err)
		}
	}

	p.start(cfg.FlushInterval)
	return p, nil
}

func newLogsPublisher(client logsAPI, cfg LogsPublisherConfig) *LogsPublisher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 50
	}
	return &LogsPublisher{
		client:        client,
		logGroupName:  cfg.LogGroupName,
		logStreamName: cfg.LogStreamName,
		service:       cfg.Service,
		buffer:        make([]port.LogEntry, 0, cfg.BufferSize),
		bufferSize:    cfg.BufferSize,
		kick:          make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
	}
}

func (p *LogsPublisher) start(interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	p.flushTicker = time.NewTicker(interval)
	p.wg.Add(1)
	go p.flushLoop()
}

// Publish buffers a single entry.
func (p *LogsPublisher) Publish(ctx context.Context, entry port.LogEntry) error {
	return p.PublishBatch(ctx, []port.LogEntry{entry})
}

// PublishBatch buffers entries and wakes the flush loop when the buffer is full.
func (p *LogsPublisher) PublishBatch(_ context.Context, entries []port.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	p.mu.Lock()
	p.buffer = append(p.buffer, entries...)
	if limit := p.bufferSize * maxBufferedMultiplier; len(p.buffer) > limit {
		over := len(p.buffer) - limit
		p.buffer = append(p.buffer[:0], p.buffer[over:]...)
		p.dropped += over
	}
	full := len(p.buffer) >= p.bufferSize
	p.mu.Unlock()

	if full {
		select {
		case p.kick <- struct{}{}:
		default:
		}
	}
	return nil
}

// Flush forces immediate publication of all buffered log entries.
func (p *LogsPublisher) Flush(ctx context.Context) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	pending := p.buffer
	p.buffer = make([]port.LogEntry, 0, p.bufferSize)
	dropped := p.dropped
	p.dropped = 0
	p.mu.Unlock()

	if dropped > 0 {
		pending = append(pending, port.LogEntry{
			Timestamp: time.Now().UTC(),
			Level:     port.LogLevelWarn,
			Message:   "Log entries dropped while CloudWatch was unavailable",
			Fields:    map[string]any{"dropped": dropped},
		})
	}

	if err := p.send(ctx, pending); err != nil {
		// вернуть неотправленное в начало буфера
		p.mu.Lock()
		p.buffer = append(pending, p.buffer...)
		p.mu.Unlock()
		return err
	}
	return nil
}

// Close stops the background flush goroutine and flushes remaining logs.
func (p *LogsPublisher) Close(ctx context.Context) error {
	close(p.stopCh)
	if p.flushTicker != nil {
		p.flushTicker.Stop()
	}
	p.wg.Wait()

	return p.Flush(ctx)
}

func (p *LogsPublisher) flushLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.flushTicker.C:
		case <-p.kick:
		case <-p.stopCh:
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := p.Flush(ctx); err != nil {
			// через логгер нельзя: запись вернется сюда же
			fmt.Fprintf(os.Stderr, "cloudwatch logs flush failed: %v\n", err)
		}
		cancel()
	}
}

func (p *LogsPublisher) send(ctx context.Context, entries []port.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	// CloudWatch Logs требует хронологический порядок внутри запроса
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})

	events := make([]types.InputLogEvent, 0, len(entries))
	for _, entry := range entries {
		event, err := p.convertToLogEvent(entry)
		if err != nil {
			continue
		}
		events = append(events, event)
	}

	for _, chunk := range chunkEvents(events) {
		if err := p.putWithRetry(ctx, chunk); err != nil {
			return fmt.Errorf("failed to publish chunk: %w", err)
		}
	}
	return nil
}

// chunkEvents делит события по лимитам запроса: число событий и суммарный размер.
func chunkEvents(events []types.InputLogEvent) [][]types.InputLogEvent {
	var (
		chunks  [][]types.InputLogEvent
		current []types.InputLogEvent
		size    int
	)
	for _, event := range events {
		eventSize := len(aws.ToString(event.Message)) + logEventOverheadBytes
		if len(current) > 0 && (len(current) >= maxLogEventsPerRequest || size+eventSize > maxLogBatchBytes) {
			chunks = append(chunks, current)
			current, size = nil, 0
		}
		current = append(current, event)
		size += eventSize
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

func (p *LogsPublisher) putWithRetry(ctx context.Context, events []types.InputLogEvent) error {
	var lastErr error
	backoff := initialBackoff

	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := p.client.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
			LogGroupName:  aws.String(p.logGroupName),
			LogStreamName: aws.String(p.logStreamName),
			LogEvents:     events,
		})
		if err == nil {
			return nil
		}

		// поток удалили снаружи: пересоздаем и повторяем
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			if createErr := p.ensureLogGroupAndStream(ctx); createErr != nil {
				return createErr
			}
		}
		lastErr = err

		if attempt < maxRetries-1 {
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}

// convertToLogEvent renders one entry as a JSON line.
func (p *LogsPublisher) convertToLogEvent(entry port.LogEntry) (types.InputLogEvent, error) {
	timestamp := entry.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	logData := map[string]any{
		"timestamp": timestamp.Format(time.RFC3339Nano),
		"level":     string(entry.Level),
		"message":   entry.Message,
	}
	if p.service != "" {
		logData["service"] = p.service
	}

	if len(entry.Fields) > 0 {
		fields := make(map[string]any, len(entry.Fields))
		for key, value := range entry.Fields {
			fields[key] = value
		}
		for _, key := range correlationFields {
			if value, ok := fields[key]; ok {
				logData[key] = value
				delete(fields, key)
			}
		}
		if len(fields) > 0 {
			logData["fields"] = fields
		}
	}

	messageJSON, err := json.Marshal(logData)
	if err != nil {
		return types.InputLogEvent{}, fmt.Errorf("failed to marshal log entry: %w", err)
	}

	message := string(messageJSON)
	if len(message) > maxLogEventSize {
		message = message[:maxLogEventSize-3] + "..."
	}

	return types.InputLogEvent{
		Message:   aws.String(message),
		Timestamp: aws.Int64(timestamp.UnixMilli()),
	}, nil
}

// ensureLogGroupAndStream creates the log group and stream if they don't exist.
func (p *LogsPublisher) ensureLogGroupAndStream(ctx context.Context) error {
	var alreadyExists *types.ResourceAlreadyExistsException

	_, err := p.client.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(p.logGroupName),
	})
	if err != nil && !errors.As(err, &alreadyExists) {
		return fmt.Errorf("failed to create log group: %w", err)
	}

	_, err = p.client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(p.logGroupName),
		LogStreamName: aws.String(p.logStreamName),
	})
	if err != nil && !errors.As(err, &alreadyExists) {
		return fmt.Errorf("failed to create log stream: %w", err)
	}

	return nil
}
