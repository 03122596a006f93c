package blob

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// LocalStore keeps original upload bytes on local disk until the processing
// worker reads them. Files are named by a UUID prefix so user-supplied
// filenames can never collide or escape the directory.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) Save(hash, filename string, data []byte) (string, error) {
	name := fmt.Sprintf("%s_%s", uuid.New().String(), filepath.Base(filename))
	path := filepath.Clean(filepath.Join(s.dir, name))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func (s *LocalStore) Read(path string) ([]byte, error) {
	return os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path is UUID-based, produced by Save
}

func (s *LocalStore) Delete(path string) error {
	err := os.Remove(filepath.Clean(path))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
