package entity

import "github.com/dreschagin/securecam/internal/domain/valueobject"

// CaptureStep описывает один шаг фиксированной последовательности съемки
type CaptureStep struct {
	Index       int
	Kind        valueobject.MediaKind
	Label       string
	Description string
}

// DefaultSteps возвращает последовательность съемки: два фото и одно видео
func DefaultSteps() []CaptureStep {
	return []CaptureStep{
		{Index: 0, Kind: valueobject.Photo, Label: "First Photo", Description: "Take your first secure photo"},
		{Index: 1, Kind: valueobject.Photo, Label: "Second Photo", Description: "Take your second secure photo"},
		{Index: 2, Kind: valueobject.Video, Label: "Security Video", Description: "Record a 20-second security video"},
	}
}

// Number возвращает номер шага, начиная с единицы (используется в ключах хранилища)
func (s CaptureStep) Number() int {
	return s.Index + 1
}
