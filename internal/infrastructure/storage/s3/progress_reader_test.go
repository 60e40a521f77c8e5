package s3

import (
	"bytes"
	"io"
	"slices"
	"strings"
	"testing"
)

func readInChunks(t *testing.T, reader io.Reader, chunk int) {
	t.Helper()
	buf := make([]byte, chunk)
	for {
		_, err := reader.Read(buf)
		if err == io.EOF {
			return
		}
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
	}
}

func TestProgressReader_ReadingNeverReportsDone(t *testing.T) {
	var reports []int
	reader := newProgressReader(bytes.NewReader(make([]byte, 100)), 100, func(p int) {
		reports = append(reports, p)
	})

	readInChunks(t, reader, 40)

	want := []int{40, 80, 99}
	if !slices.Equal(reports, want) {
		t.Fatalf("reports = %v, want %v", reports, want)
	}
}

func TestProgressReader_RewindRestartsProgress(t *testing.T) {
	var reports []int
	reader := newProgressReader(bytes.NewReader(make([]byte, 100)), 100, func(p int) {
		reports = append(reports, p)
	})
	seeker, ok := reader.(io.Seeker)
	if !ok {
		t.Fatalf("expected seekable reader for bytes.Reader")
	}

	// первый проход - хеш тела
	readInChunks(t, reader, 100)
	if _, err := seeker.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}
	readInChunks(t, reader, 50)

	want := []int{99, 50, 99}
	if !slices.Equal(reports, want) {
		t.Fatalf("reports = %v, want %v", reports, want)
	}

	// перемотка не в начало продолжает отсчет без повторов
	reports = nil
	if _, err := seeker.Seek(50, io.SeekStart); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}
	readInChunks(t, reader, 50)
	if len(reports) != 0 {
		t.Fatalf("partial rewind must not repeat reports, got %v", reports)
	}
}

func TestProgressReader_PlainReaderIsNotSeeker(t *testing.T) {
	reader := newProgressReader(io.LimitReader(strings.NewReader("abc"), 3), 3, nil)
	if _, ok := reader.(io.Seeker); ok {
		t.Fatalf("plain reader must not pretend to be seekable")
	}
}

func TestPublicURL(t *testing.T) {
	tests := []struct {
		name    string
		storage MediaStorage
		want    string
	}{
		{
			name:    "aws",
			storage: MediaStorage{bucket: "securecam", region: "us-east-1"},
			want:    "https://securecam.s3.us-east-1.amazonaws.com/loads/LD-1/a%20b.jpg",
		},
		{
			name:    "path style",
			storage: MediaStorage{bucket: "securecam", endpoint: "http://localhost:9000", usePathStyle: true},
			want:    "http://localhost:9000/securecam/loads/LD-1/a%20b.jpg",
		},
		{
			name:    "virtual host",
			storage: MediaStorage{bucket: "securecam", endpoint: "https://storage.yandexcloud.net"},
			want:    "https://securecam.storage.yandexcloud.net/loads/LD-1/a%20b.jpg",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.storage.publicURL("loads/LD-1/a b.jpg"); got != tc.want {
				t.Fatalf("publicURL() = %q, want %q", got, tc.want)
			}
		})
	}
}
