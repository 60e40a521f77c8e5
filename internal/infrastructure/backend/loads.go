package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/dreschagin/securecam/internal/application/port"
	"github.com/dreschagin/securecam/internal/domain/apperror"
	"github.com/dreschagin/securecam/internal/domain/entity"
	"github.com/dreschagin/securecam/internal/domain/valueobject"
)

const loadsPath = "/api/loads"

type loadDTO struct {
	ID         flexID          `json:"ID"`
	UserID     flexID          `json:"userId"`
	LoadNumber string          `json:"loadNumber"`
	UserName   string          `json:"userName"`
	Status     json.RawMessage `json:"status"`
	CreatedAt  string          `json:"created_at"`
}

// LoadsClient reads loads from the backend.
type LoadsClient struct {
	client *Client
}

var _ port.LoadRegistry = (*LoadsClient)(nil)

func NewLoadsClient(client *Client) *LoadsClient {
	return &LoadsClient{client: client}
}

func (c *LoadsClient) FetchLoads(ctx context.Context) ([]entity.LoadSnapshot, error) {
	var raw []loadDTO
	if err := c.client.doJSON(ctx, http.MethodGet, loadsPath, nil, &raw); err != nil {
		return nil, err
	}

	loads := make([]entity.LoadSnapshot, 0, len(raw))
	for _, dto := range raw {
		loads = append(loads, toLoadSnapshot(dto))
	}
	return loads, nil
}

// GetLoadByID фильтрует полный список: отдельного эндпоинта у backend нет.
func (c *LoadsClient) GetLoadByID(ctx context.Context, id string) (*entity.LoadSnapshot, error) {
	loads, err := c.FetchLoads(ctx)
	if err != nil {
		return nil, err
	}
	return findLoad(loads, id)
}

func findLoad(loads []entity.LoadSnapshot, id string) (*entity.LoadSnapshot, error) {
	id = strings.TrimSpace(id)
	for i := range loads {
		if loads[i].ID == id {
			load := loads[i]
			return &load, nil
		}
	}
	return nil, apperror.ErrLoadNotFound
}

func toLoadSnapshot(dto loadDTO) entity.LoadSnapshot {
	return entity.LoadSnapshot{
		ID:         string(dto.ID),
		LoadNumber: dto.LoadNumber,
		UserID:     string(dto.UserID),
		UserName:   dto.UserName,
		Completion: valueobject.ParseCompletion(dto.Status),
		CreatedAt:  parseTimestamp(dto.CreatedAt),
	}
}

func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
