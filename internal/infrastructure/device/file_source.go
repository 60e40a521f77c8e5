package device

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileSource открывает локальные файлы артефактов внутри spool-каталога.
type FileSource struct {
	root string
}

func NewFileSource(root string) (*FileSource, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid spool root: %w", err)
	}
	return &FileSource{root: abs}, nil
}

func (s *FileSource) Open(_ context.Context, localURI string) (io.ReadCloser, int64, error) {
	path, err := s.resolve(localURI)
	if err != nil {
		return nil, 0, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, err
	}
	return file, info.Size(), nil
}

// Remove удаляет файл артефакта; отсутствующий файл не считается ошибкой.
func (s *FileSource) Remove(localURI string) error {
	path, err := s.resolve(localURI)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *FileSource) resolve(localURI string) (string, error) {
	path := filepath.Clean(strings.TrimPrefix(localURI, "file://"))
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, path)
	}
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside of spool", localURI)
	}
	return path, nil
}

func fileURI(path string) string {
	return "file://" + filepath.ToSlash(path)
}
