package attachment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/gurkanbulca/collabdesk/internal/models"
	"github.com/gurkanbulca/collabdesk/pkg/logger"
)

// CloudinaryConfig holds the unsigned-upload settings of a Cloudinary account
type CloudinaryConfig struct {
	CloudName    string
	UploadPreset string
	APIBase      string
	Timeout      time.Duration
}

// CloudinaryBackend uploads media through Cloudinary's unsigned upload API
type CloudinaryBackend struct {
	cfg     CloudinaryConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

type cloudinaryResponse struct {
	SecureURL    string `json:"secure_url"`
	URL          string `json:"url"`
	PublicID     string `json:"public_id"`
	ResourceType string `json:"resource_type"`
	Format       string `json:"format"`
	Bytes        int64  `json:"bytes"`
}

// NewCloudinaryBackend creates the media backend
func NewCloudinaryBackend(cfg CloudinaryConfig, log *logger.Logger) *CloudinaryBackend {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.cloudinary.com/v1_1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &CloudinaryBackend{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: newBreaker("CloudinaryCB", log),
	}
}

// Name implements Backend
func (b *CloudinaryBackend) Name() models.StorageBackend { return models.StorageCloudinary }

// Upload implements Backend
func (b *CloudinaryBackend) Upload(ctx context.Context, f File) (models.AttachmentReference, error) {
	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	if err := form.WriteField("upload_preset", b.cfg.UploadPreset); err != nil {
		return models.AttachmentReference{}, err
	}
	part, err := form.CreateFormFile("file", f.Name)
	if err != nil {
		return models.AttachmentReference{}, err
	}
	if _, err := part.Write(f.Bytes); err != nil {
		return models.AttachmentReference{}, err
	}
	if err := form.Close(); err != nil {
		return models.AttachmentReference{}, err
	}

	endpoint := fmt.Sprintf("%s/%s/auto/upload", strings.TrimRight(b.cfg.APIBase, "/"), b.cfg.CloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return models.AttachmentReference{}, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	raw, err := doRequest(b.breaker, b.client, req)
	if err != nil {
		return models.AttachmentReference{}, err
	}

	var res cloudinaryResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return models.AttachmentReference{}, fmt.Errorf("decode cloudinary response: %w", err)
	}
	url := res.SecureURL
	if url == "" {
		url = res.URL
	}

	return models.AttachmentReference{
		Name:     f.Name,
		URL:      url,
		MimeType: f.MimeType,
		ByteSize: res.Bytes,
		PublicID: res.PublicID,
		Format:   res.Format,
	}, nil
}
