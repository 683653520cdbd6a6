package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"VoiceScribe/internal/ports"
	apperrors "VoiceScribe/pkg/errors"
)

// FileStore persists assembled audio as {dir}/{id}.wav. The returned
// reference is the bare file name, so renaming the directory does not
// invalidate stored refs.
type FileStore struct {
	dir string
}

var _ ports.AudioStore = (*FileStore)(nil)

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "audio_files"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Put writes the audio atomically (temp file + rename) and returns its ref.
func (s *FileStore) Put(ctx context.Context, id string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ref := id + ".wav"
	tmp, err := os.CreateTemp(s.dir, ref+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp audio file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close audio file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path(ref)); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("commit audio file: %w", err)
	}
	return ref, nil
}

// Open returns a seekable reader for byte-range streaming plus the file's
// modification time.
func (s *FileStore) Open(ctx context.Context, ref string) (io.ReadSeekCloser, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, time.Time{}, err
	}

	f, err := os.Open(s.path(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, time.Time{}, apperrors.ErrAudioNotFound
		}
		return nil, time.Time{}, fmt.Errorf("open audio file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, time.Time{}, fmt.Errorf("stat audio file: %w", err)
	}
	return f, info.ModTime(), nil
}

// Delete removes the stored audio; a missing file is not an error.
func (s *FileStore) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.path(ref)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete audio file: %w", err)
	}
	return nil
}

// path confines refs to the store directory.
func (s *FileStore) path(ref string) string {
	return filepath.Join(s.dir, filepath.Base(strings.TrimSpace(ref)))
}
