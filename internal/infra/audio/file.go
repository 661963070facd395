package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"voznote/internal/domain"
)

var mimeByExt = map[string]string{
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".webm": "audio/webm",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
}

// MimeTypeFor guesses an audio mime type from a file name.
func MimeTypeFor(name string) string {
	if m, ok := mimeByExt[strings.ToLower(filepath.Ext(name))]; ok {
		return m
	}
	return domain.DefaultAudioMimeType
}

// FileSource watches an inbox directory and yields each new audio file once.
// Picked files are renamed with a .processed suffix, unreadable ones with .failed.
type FileSource struct {
	dir       string
	interval  time.Duration
	processed map[string]bool
	mu        sync.Mutex
}

func NewFileSource(dir string) *FileSource {
	return &FileSource{
		dir:       dir,
		interval:  500 * time.Millisecond,
		processed: make(map[string]bool),
	}
}

func (f *FileSource) Name() string {
	return "file"
}

func (f *FileSource) Start(_ context.Context) error {
	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return fmt.Errorf("creating audio dir: %w", err)
	}
	return nil
}

func (f *FileSource) Stop() error {
	return nil
}

func (f *FileSource) NextRecording(ctx context.Context) (*domain.Recording, error) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		rec, err := f.checkForNewFile()
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return rec, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (f *FileSource) checkForNewFile() (*domain.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("reading dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if _, ok := mimeByExt[strings.ToLower(filepath.Ext(entry.Name()))]; !ok {
			continue
		}

		path := filepath.Join(f.dir, entry.Name())
		if f.processed[path] {
			continue
		}

		f.processed[path] = true

		rec, err := ReadRecording(path)
		if err != nil {
			os.Rename(path, path+".failed")
			return nil, err
		}

		os.Rename(path, path+".processed")

		return rec, nil
	}

	return nil, nil
}

// ReadRecording loads an audio file as a recording, using the file's
// modification time as the capture time.
func ReadRecording(path string) (*domain.Recording, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}

	rec := &domain.Recording{
		Data:     data,
		MimeType: MimeTypeFor(path),
		Duration: wavDuration(data),
	}
	if info, err := os.Stat(path); err == nil {
		rec.CapturedAt = info.ModTime()
	}
	return rec, nil
}
