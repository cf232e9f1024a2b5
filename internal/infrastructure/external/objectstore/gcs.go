// Package objectstore stores uploaded handwriting images.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/dyslexia-hub/therapy-workflow/internal/application/port"
)

// Config selects and configures the bucket.
type Config struct {
	Bucket string

	// CredentialsJSON or CredentialsFile authenticate the client. Both empty
	// uses application default credentials.
	CredentialsJSON string
	CredentialsFile string

	// EmulatorEndpoint points the client at a fake GCS server without auth.
	EmulatorEndpoint string

	// PublicBaseURL overrides the URL prefix of stored objects.
	PublicBaseURL string

	UploadTimeout time.Duration
}

func (c Config) clientOptions() []option.ClientOption {
	if c.EmulatorEndpoint != "" {
		return []option.ClientOption{
			option.WithoutAuthentication(),
			option.WithEndpoint(strings.TrimRight(c.EmulatorEndpoint, "/") + "/storage/v1/"),
		}
	}
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	switch {
	case c.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(c.CredentialsJSON)))
	case c.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(c.CredentialsFile))
	}
	return opts
}

// GCSStore implements port.FileStore on a Google Cloud Storage bucket.
type GCSStore struct {
	client  *storage.Client
	bucket  string
	baseURL string
	timeout time.Duration
}

var _ port.FileStore = (*GCSStore)(nil)

// NewGCSStore creates the storage client.
func NewGCSStore(ctx context.Context, cfg Config) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("objectstore: bucket is required")
	}
	client, err := storage.NewClient(ctx, cfg.clientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("objectstore: create storage client: %w", err)
	}
	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	if base == "" {
		base = "https://storage.googleapis.com"
	}
	timeout := cfg.UploadTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, baseURL: base, timeout: timeout}, nil
}

// Upload writes data under key and returns the object's URL.
func (s *GCSStore) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("objectstore: write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("objectstore: close writer %s: %w", key, err)
	}
	return publicURL(s.baseURL, s.bucket, key), nil
}

// Close releases the client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func publicURL(base, bucket, key string) string {
	return fmt.Sprintf("%s/%s/%s", base, url.PathEscape(bucket), (&url.URL{Path: key}).EscapedPath())
}

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY STORE
// ══════════════════════════════════════════════════════════════════════════════

// MemoryStore keeps objects in memory. Used in development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	baseURL string
}

var _ port.FileStore = (*MemoryStore)(nil)

func NewMemoryStore(baseURL string) *MemoryStore {
	if baseURL == "" {
		baseURL = "memory://objects"
	}
	return &MemoryStore{objects: map[string][]byte{}, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *MemoryStore) Upload(_ context.Context, key, _ string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = bytes.Clone(data)
	return s.baseURL + "/" + key, nil
}

// Object returns a stored object.
func (s *MemoryStore) Object(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.objects[key]
	return b, ok
}
