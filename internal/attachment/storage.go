package attachment

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

var ErrFileTooLarge = errors.New("file exceeds the upload limit")

// FileStore keeps attachment bytes under opaque storage keys.
type FileStore struct {
	fs       afero.Fs
	maxBytes int64
}

// NewFileStore roots the store at dir on the local disk.
func NewFileStore(dir string, maxBytes int64) (*FileStore, error) {
	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return NewFileStoreOn(afero.NewBasePathFs(osFs, dir), maxBytes), nil
}

func NewFileStoreOn(fs afero.Fs, maxBytes int64) *FileStore {
	return &FileStore{fs: fs, maxBytes: maxBytes}
}

func (s *FileStore) MaxBytes() int64 {
	return s.maxBytes
}

// NewKey returns a fresh key for a file of taskID. The extension of
// fileName is kept so downloads stay recognisable on disk.
func NewKey(taskID int64, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if len(ext) > 10 {
		ext = ""
	}
	return path.Join("tasks", fmt.Sprint(taskID), uuid.NewString()+ext)
}

// Save writes r under key and returns the number of bytes stored. A body
// larger than the limit is removed again and reported as ErrFileTooLarge.
func (s *FileStore) Save(key string, r io.Reader) (int64, error) {
	if err := s.fs.MkdirAll(path.Dir(key), 0o750); err != nil {
		return 0, fmt.Errorf("create attachment dir: %w", err)
	}

	f, err := s.fs.OpenFile(key, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o640)
	if err != nil {
		return 0, fmt.Errorf("create attachment file: %w", err)
	}

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		_ = s.fs.Remove(key)
		return 0, fmt.Errorf("write attachment file: %w", copyErr)
	case closeErr != nil:
		_ = s.fs.Remove(key)
		return 0, fmt.Errorf("close attachment file: %w", closeErr)
	case s.maxBytes > 0 && n > s.maxBytes:
		_ = s.fs.Remove(key)
		return 0, ErrFileTooLarge
	}
	return n, nil
}

func (s *FileStore) Open(key string) (afero.File, error) {
	return s.fs.Open(key)
}

// Remove deletes the file under key. A missing file is not an error.
func (s *FileStore) Remove(key string) error {
	if err := s.fs.Remove(key); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
