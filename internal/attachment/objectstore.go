package attachment

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/gurkanbulca/collabdesk/internal/models"
	"github.com/gurkanbulca/collabdesk/pkg/logger"
)

// ObjectStoreConfig holds the Supabase storage settings
type ObjectStoreConfig struct {
	URL        string
	ServiceKey string
	Bucket     string
	Folder     string
	Timeout    time.Duration
}

// ObjectStoreBackend uploads documents to a Supabase storage bucket
type ObjectStoreBackend struct {
	cfg     ObjectStoreConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	now     func() time.Time
}

// NewObjectStoreBackend creates the document backend
func NewObjectStoreBackend(cfg ObjectStoreConfig, log *logger.Logger) *ObjectStoreBackend {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &ObjectStoreBackend{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: newBreaker("ObjectStoreCB", log),
		now:     time.Now,
	}
}

// Name implements Backend
func (b *ObjectStoreBackend) Name() models.StorageBackend { return models.StorageObjectStore }

// Upload implements Backend. The store does not report size or type, so
// the caller's values are echoed back.
func (b *ObjectStoreBackend) Upload(ctx context.Context, f File) (models.AttachmentReference, error) {
	name, err := GenerateObjectName(f.Name, b.now())
	if err != nil {
		return models.AttachmentReference{}, err
	}
	objectPath := name
	if folder := strings.Trim(b.cfg.Folder, "/"); folder != "" {
		objectPath = folder + "/" + name
	}

	contentType := f.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s",
		strings.TrimRight(b.cfg.URL, "/"), url.PathEscape(b.cfg.Bucket), escapePath(objectPath))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(f.Bytes))
	if err != nil {
		return models.AttachmentReference{}, err
	}
	req.Header.Set("Authorization", "Bearer "+b.cfg.ServiceKey)
	req.Header.Set("apikey", b.cfg.ServiceKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "false")

	if _, err := doRequest(b.breaker, b.client, req); err != nil {
		return models.AttachmentReference{}, err
	}

	return models.AttachmentReference{
		Name:     f.Name,
		URL:      b.PublicURL(objectPath),
		MimeType: f.MimeType,
		ByteSize: f.Size(),
		Path:     objectPath,
	}, nil
}

// PublicURL resolves an object path to its public URL
func (b *ObjectStoreBackend) PublicURL(objectPath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s",
		strings.TrimRight(b.cfg.URL, "/"), url.PathEscape(b.cfg.Bucket), escapePath(objectPath))
}

// GenerateObjectName builds a collision-resistant name that keeps the
// original extension: <unix millis>-<random base-36 token><ext>
func GenerateObjectName(original string, now time.Time) (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate object name: %w", err)
	}
	token := strconv.FormatUint(binary.BigEndian.Uint64(buf[:]), 36)
	ext := strings.ToLower(path.Ext(original))
	return fmt.Sprintf("%d-%s%s", now.UnixMilli(), token, ext), nil
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
