package valueobject

import (
	"errors"
	"strings"
)

// MediaKind представляет тип медиа-артефакта (Value Object)
type MediaKind string

const (
	Photo MediaKind = "photo"
	Video MediaKind = "video"
)

// ParseMediaKind разбирает строковое представление типа медиа
func ParseMediaKind(raw string) (MediaKind, error) {
	kind := MediaKind(strings.ToLower(strings.TrimSpace(raw)))
	if err := kind.Validate(); err != nil {
		return "", err
	}
	return kind, nil
}

// Validate проверяет валидность типа медиа
func (k MediaKind) Validate() error {
	switch k {
	case Photo, Video:
		return nil
	default:
		return errors.New("invalid media kind")
	}
}

// Extension возвращает расширение файла в object storage
func (k MediaKind) Extension() string {
	if k == Video {
		return "mp4"
	}
	return "jpg"
}

// ContentType возвращает MIME тип для загрузки
func (k MediaKind) ContentType() string {
	if k == Video {
		return "video/mp4"
	}
	return "image/jpeg"
}

func (k MediaKind) String() string {
	return string(k)
}
