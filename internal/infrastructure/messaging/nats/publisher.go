package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dreschagin/securecam/internal/application/port"
	"github.com/dreschagin/securecam/pkg/logger"
	"github.com/nats-io/nats.go"
)

// StreamConfig описывает JetStream stream для событий загрузки
type StreamConfig struct {
	Name     string
	Subjects []string
	MaxAge   time.Duration
}

// DefaultStream покрывает все subjects сервиса
func DefaultStream() StreamConfig {
	return StreamConfig{
		Name:     "SECURECAM",
		Subjects: []string{"securecam.>"},
		MaxAge:   7 * 24 * time.Hour,
	}
}

// Publisher implements port.EventPublisher for NATS JetStream
type Publisher struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	logger *logger.Logger
}

var _ port.EventPublisher = (*Publisher)(nil)

// NewPublisher connects to NATS and makes sure the stream exists
func NewPublisher(natsURL string, stream StreamConfig, log *logger.Logger) (*Publisher, error) {
	// Connect to NATS with retry
	nc, err := nats.Connect(natsURL,
		nats.Name("securecam-api"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", "error", err.Error())
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	if err := ensureStream(js, stream); err != nil {
		nc.Close()
		return nil, err
	}

	log.Info("Connected to NATS", "url", natsURL, "stream", stream.Name)

	return &Publisher{
		nc:     nc,
		js:     js,
		logger: log,
	}, nil
}

func ensureStream(js nats.JetStreamContext, stream StreamConfig) error {
	if stream.Name == "" {
		return nil
	}

	_, err := js.StreamInfo(stream.Name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream %s: %w", stream.Name, err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     stream.Name,
		Subjects: stream.Subjects,
		MaxAge:   stream.MaxAge,
		Storage:  nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", stream.Name, err)
	}
	return nil
}

// PublishEvent publishes an event to NATS (async)
func (p *Publisher) PublishEvent(ctx context.Context, subject string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// Async publish: подтверждение не ждем, загрузка уже завершена
	_, err = p.js.PublishAsync(subject, data)
	if err != nil {
		p.logger.Error("Failed to publish event", err,
			"subject", subject,
		)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("Event published",
		"subject", subject,
		"size", len(data),
	)

	return nil
}

// Close дожидается подтверждений async publish и закрывает соединение
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}

	select {
	case <-p.js.PublishAsyncComplete():
	case <-time.After(5 * time.Second):
		p.logger.Warn("NATS pending publishes not acknowledged before close")
	}

	p.logger.Info("Closing NATS connection")
	p.nc.Close()
	return nil
}
