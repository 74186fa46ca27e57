package blob

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/parley-chat/parley/internal/models"
)

// LocalStore writes attachments to a directory on disk and serves them
// under a public base URL. It stands in for an external object store in
// development and tests.
type LocalStore struct {
	dir     string
	baseURL string
}

// NewLocalStore creates a LocalStore rooted at dir. Files are addressed
// publicly as baseURL/<key>.
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Upload writes data under a random key derived from name's extension.
func (s *LocalStore) Upload(_ context.Context, name string, data []byte) (*models.FileRef, error) {
	if len(data) == 0 {
		return nil, ErrEmptyContent
	}

	key := uuid.New().String() + sanitizeExt(name)
	if err := os.WriteFile(filepath.Join(s.dir, key), data, 0o644); err != nil {
		return nil, err
	}

	return &models.FileRef{
		Key: key,
		URL: s.baseURL + "/" + key,
	}, nil
}

// sanitizeExt returns the lower-cased extension of name, or empty when
// the extension contains anything beyond alphanumerics.
func sanitizeExt(name string) string {
	ext := strings.ToLower(path.Ext(path.Base(name)))
	if len(ext) < 2 || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
