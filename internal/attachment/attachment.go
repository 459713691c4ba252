// Package attachment routes uploaded files to the media or document store.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gurkanbulca/collabdesk/internal/models"
)

// File is an upload as received from the client
type File struct {
	Name     string
	MimeType string
	ByteSize int64
	Bytes    []byte
}

// Size is the declared size, falling back to the payload length
func (f File) Size() int64 {
	if f.ByteSize > 0 {
		return f.ByteSize
	}
	return int64(len(f.Bytes))
}

// Backend stores file bytes and returns a reference to them
type Backend interface {
	Name() models.StorageBackend
	Upload(ctx context.Context, f File) (models.AttachmentReference, error)
}

// Classify picks the storage backend from the top-level MIME type
func Classify(mimeType string) models.StorageBackend {
	top, _, _ := strings.Cut(strings.TrimSpace(mimeType), "/")
	switch strings.ToLower(top) {
	case "image", "video", "audio":
		return models.StorageCloudinary
	default:
		return models.StorageObjectStore
	}
}

// Router sends each file to the backend chosen by Classify
type Router struct {
	media    Backend
	document Backend
}

// NewRouter creates a router over a media and a document backend
func NewRouter(media, document Backend) *Router {
	return &Router{media: media, document: document}
}

// Backend returns the backend a file with the given MIME type goes to
func (r *Router) Backend(mimeType string) Backend {
	if Classify(mimeType) == models.StorageCloudinary {
		return r.media
	}
	return r.document
}

// Route uploads f and returns its normalized reference. Failures are
// reported as *models.UploadFailedError; nothing is retried.
func (r *Router) Route(ctx context.Context, f File) (models.AttachmentReference, error) {
	kind := Classify(f.MimeType)
	backend := r.Backend(f.MimeType)
	if backend == nil {
		return models.AttachmentReference{}, &models.UploadFailedError{
			Backend:  kind,
			FileName: f.Name,
			Err:      errors.New("backend not configured"),
		}
	}

	ref, err := backend.Upload(ctx, f)
	if err != nil {
		var upErr *models.UploadFailedError
		if errors.As(err, &upErr) {
			return models.AttachmentReference{}, err
		}
		return models.AttachmentReference{}, &models.UploadFailedError{Backend: kind, FileName: f.Name, Err: err}
	}

	ref.StorageBackend = kind
	if ref.Name == "" {
		ref.Name = f.Name
	}
	if ref.MimeType == "" {
		ref.MimeType = f.MimeType
	}
	if ref.ByteSize == 0 {
		ref.ByteSize = f.Size()
	}
	if ref.URL == "" {
		return models.AttachmentReference{}, &models.UploadFailedError{
			Backend:  kind,
			FileName: f.Name,
			Err:      fmt.Errorf("%s returned no url", backend.Name()),
		}
	}
	return ref, nil
}
