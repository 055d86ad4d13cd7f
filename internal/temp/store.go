package temp

import (
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Store spools incoming submissions to local disk so the background upload
// can read them after the request body is gone.
type Store struct {
	basePath string
}

// NewStore creates a Store rooted at basePath.
func NewStore(basePath string) (*Store, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, err
	}
	return &Store{basePath: basePath}, nil
}

// SaveUpload copies the incoming file body to a private temp file and returns
// its path and size. Ownership of the file passes to the caller.
func (s *Store) SaveUpload(data io.Reader) (string, int64, error) {
	path := filepath.Join(s.basePath, uuid.New().String()+".upload")
	file, err := os.Create(path)
	if err != nil {
		return "", 0, err
	}

	written, err := io.Copy(file, data)
	if err != nil {
		file.Close()
		_ = os.Remove(path)
		return "", 0, err
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return "", 0, err
	}
	return path, written, nil
}

// Remove deletes a spooled file.
func (s *Store) Remove(path string) error {
	return os.Remove(path)
}
