// Package blob abstracts attachment storage. The ingestion pipeline hands
// raw file bytes to an Uploader and stores only the returned reference.
package blob

import (
	"context"
	"errors"

	"github.com/parley-chat/parley/internal/models"
)

// ErrEmptyContent is returned when an upload is attempted with no data.
var ErrEmptyContent = errors.New("blob: empty content")

// Uploader stores raw attachment bytes and returns a stable reference.
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte) (*models.FileRef, error)
}
