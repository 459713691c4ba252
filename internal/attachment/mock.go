package attachment

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/gurkanbulca/collabdesk/internal/models"
)

// MockBackend keeps uploads in memory, for development and tests
type MockBackend struct {
	kind models.StorageBackend

	mu      sync.Mutex
	uploads []File
	err     error
}

// NewMockBackend creates a mock backend of the given kind
func NewMockBackend(kind models.StorageBackend) *MockBackend {
	return &MockBackend{kind: kind}
}

// Name implements Backend
func (m *MockBackend) Name() models.StorageBackend { return m.kind }

// FailWith makes every following upload return err; nil restores success
func (m *MockBackend) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Uploads returns the files received so far
func (m *MockBackend) Uploads() []File {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]File(nil), m.uploads...)
}

// Upload implements Backend
func (m *MockBackend) Upload(ctx context.Context, f File) (models.AttachmentReference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return models.AttachmentReference{}, err
	}
	if m.err != nil {
		return models.AttachmentReference{}, m.err
	}
	m.uploads = append(m.uploads, f)

	n := len(m.uploads)
	ref := models.AttachmentReference{
		Name:     f.Name,
		URL:      fmt.Sprintf("mock://%s/%d/%s", m.kind, n, f.Name),
		MimeType: f.MimeType,
		ByteSize: f.Size(),
	}
	if m.kind == models.StorageCloudinary {
		ref.PublicID = fmt.Sprintf("mock/%d", n)
		ref.Format = strings.TrimPrefix(path.Ext(f.Name), ".")
	} else {
		ref.Path = fmt.Sprintf("mock/%d/%s", n, f.Name)
	}
	return ref, nil
}
