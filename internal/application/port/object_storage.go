package port

import (
	"context"
	"io"
	"time"
)

// ProgressFunc получает процент загрузки одного объекта (0..100).
type ProgressFunc func(percent int)

// PutObjectResult описывает загруженный объект.
type PutObjectResult struct {
	Key      string
	Location string
	ETag     string
}

// StoredObject описывает объект, найденный по префиксу.
type StoredObject struct {
	Key          string
	SizeBytes    int64
	LastModified time.Time
}

// ObjectStorage определяет интерфейс объектного хранилища для медиа.
type ObjectStorage interface {
	// HeadBucket проверяет, что bucket существует и доступен.
	HeadBucket(ctx context.Context) error
	// PutObject загружает содержимое, целиком находящееся в памяти.
	PutObject(ctx context.Context, key, contentType string, body []byte, progress ProgressFunc) (PutObjectResult, error)
	// PutObjectStream загружает содержимое из reader без полной буферизации.
	PutObjectStream(ctx context.Context, key, contentType string, body io.Reader, size int64, progress ProgressFunc) (PutObjectResult, error)
	ListObjects(ctx context.Context, prefix string) ([]StoredObject, error)
	// SignedURL возвращает временную ссылку на чтение приватного объекта.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	DeleteObject(ctx context.Context, key string) error
	DeleteObjects(ctx context.Context, keys []string) error
}
