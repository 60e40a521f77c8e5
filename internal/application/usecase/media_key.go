package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dreschagin/securecam/internal/domain/valueobject"
)

const (
	defaultKeyPrefix = "loads"
	maxLoadKeyLen    = 64
	loadKeyHashLen   = 12
)

var (
	loadKeyRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	unsafeChars  = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)
	stepRegex    = regexp.MustCompile(`step(\d+)`)
	keyTimestamp = strings.NewReplacer(":", "-", ".", "-")
)

// LoadKeyFor строит сегмент ключа из номера груза. Номер, который уже подходит
// под loadKeyRegex, используется как есть. Иначе недопустимые символы заменяются
// на '_' и добавляется хеш исходного номера: "LN 7" и "LN/7" получают разные папки.
// Для пустого номера возвращает "".
func LoadKeyFor(loadNumber string) string {
	if loadNumber == "" {
		return ""
	}
	if loadKeyRegex.MatchString(loadNumber) {
		return loadNumber
	}
	sum := sha256.Sum256([]byte(loadNumber))
	suffix := hex.EncodeToString(sum[:])[:loadKeyHashLen]
	base := unsafeChars.ReplaceAllString(loadNumber, "_")
	if limit := maxLoadKeyLen - len(suffix) - 1; len(base) > limit {
		base = base[:limit]
	}
	return base + "-" + suffix
}

// mediaKeyPrefix возвращает префикс всех объектов груза: "{prefix}/{loadKey}/".
func mediaKeyPrefix(prefix, loadKey string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return fmt.Sprintf("%s/%s/", prefix, loadKey)
}

// BuildMediaKey собирает ключ объекта:
// {prefix}/{loadKey}/{ISO8601 ms, ':' и '.' заменены на '-'}-step{N}-{kind}.{ext}
func BuildMediaKey(prefix, loadKey string, capturedAt time.Time, stepIndex int, kind valueobject.MediaKind) string {
	timestamp := keyTimestamp.Replace(capturedAt.UTC().Format("2006-01-02T15:04:05.000Z"))
	return fmt.Sprintf("%s%s-step%d-%s.%s",
		mediaKeyPrefix(prefix, loadKey), timestamp, stepIndex+1, kind.String(), kind.Extension())
}

// ParsedMediaKey is what can be recovered from a stored object key.
type ParsedMediaKey struct {
	// Step is 1-based; 0 when the key carries no step marker.
	Step int
	Kind valueobject.MediaKind
	// KnownKind is false when neither the marker nor the extension identify the media.
	KnownKind bool
}

// ParseMediaKey разбирает имя файла: номер шага и тип медиа.
// Если маркера photo/video нет, тип определяется по расширению.
func ParseMediaKey(key string) ParsedMediaKey {
	filename := strings.ToLower(path.Base(strings.TrimSpace(key)))
	var parsed ParsedMediaKey

	if match := stepRegex.FindStringSubmatch(filename); match != nil {
		if step, err := strconv.Atoi(match[1]); err == nil {
			parsed.Step = step
		}
	}

	switch {
	case strings.Contains(filename, "-"+valueobject.Photo.String()+"."):
		parsed.Kind, parsed.KnownKind = valueobject.Photo, true
	case strings.Contains(filename, "-"+valueobject.Video.String()+"."):
		parsed.Kind, parsed.KnownKind = valueobject.Video, true
	default:
		switch path.Ext(filename) {
		case ".jpg", ".jpeg", ".png":
			parsed.Kind, parsed.KnownKind = valueobject.Photo, true
		case ".mp4", ".mov":
			parsed.Kind, parsed.KnownKind = valueobject.Video, true
		}
	}

	return parsed
}

func validateLoadKey(loadKey string) (string, error) {
	loadKey = strings.TrimSpace(loadKey)
	if !loadKeyRegex.MatchString(loadKey) {
		return "", &ValidationError{Problems: []string{"invalid load key"}}
	}
	return loadKey, nil
}
