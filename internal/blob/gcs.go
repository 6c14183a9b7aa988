// Package blob stores uploaded research material in Google Cloud Storage.
package blob

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"

	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/circuitbreaker"
)

var (
	ErrMissingBucket = errors.New("storage bucket is not configured")
	ErrBucketMissing = errors.New("storage bucket does not exist")
)

// Object describes a stored upload
type Object struct {
	Path        string `json:"path"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	Hash        string `json:"hash"`
}

// Store is the blob storage used by the upload endpoint
type Store interface {
	Upload(ctx context.Context, objectPath string, r io.Reader, contentType string) (*Object, error)
	Check(ctx context.Context) error
}

// Config holds Cloud Storage settings
type Config struct {
	Bucket         string                  `mapstructure:"bucket"`
	Endpoint       string                  `mapstructure:"endpoint"`
	PublicBaseURL  string                  `mapstructure:"public_base_url"`
	PublicRead     bool                    `mapstructure:"public_read"`
	CircuitBreaker circuitbreaker.Settings `mapstructure:"circuit_breaker"`
}

// GCSStore writes objects through the Cloud Storage JSON API
type GCSStore struct {
	svc     *storage.Service
	bucket  string
	baseURL string
	public  bool
	breaker *circuitbreaker.CallWrapper
	logger  *zap.Logger
}

var _ Store = (*GCSStore)(nil)

// NewGCSStore creates a store using application default credentials unless
// opts say otherwise.
func NewGCSStore(ctx context.Context, cfg Config, logger *zap.Logger, opts ...option.ClientOption) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, ErrMissingBucket
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	svc, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	baseURL := strings.TrimSuffix(cfg.PublicBaseURL, "/")
	if baseURL == "" {
		baseURL = "https://storage.googleapis.com"
	}

	return &GCSStore{
		svc:     svc,
		bucket:  cfg.Bucket,
		baseURL: baseURL,
		public:  cfg.PublicRead,
		breaker: circuitbreaker.NewCallWrapper("gcs", "blob-store", cfg.CircuitBreaker,
			circuitbreaker.StorageSettings(), isStorageFailure, logger),
		logger: logger,
	}, nil
}

// Client errors such as a rejected object name do not trip the breaker
func isStorageFailure(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code >= http.StatusInternalServerError || gerr.Code == http.StatusTooManyRequests
	}
	return !errors.Is(err, context.Canceled)
}

// Upload streams r to objectPath and returns its public location and MD5
func (s *GCSStore) Upload(ctx context.Context, objectPath string, r io.Reader, contentType string) (*Object, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	hasher := md5.New()
	counter := &countingReader{r: io.TeeReader(r, hasher)}

	var stored *storage.Object
	err := s.breaker.Do(ctx, func(ctx context.Context) error {
		call := s.svc.Objects.Insert(s.bucket, &storage.Object{Name: objectPath, ContentType: contentType}).
			Media(counter, googleapi.ContentType(contentType)).
			Context(ctx)
		if s.public {
			call = call.PredefinedAcl("publicRead")
		}
		var err error
		stored, err = call.Do()
		return err
	})
	if err != nil {
		s.logger.Error("Upload failed", zap.String("path", objectPath), zap.Error(err))
		return nil, fmt.Errorf("failed to upload %s: %w", objectPath, err)
	}

	size := counter.n
	if stored != nil && stored.Size > 0 {
		size = int64(stored.Size)
	}
	obj := &Object{
		Path:        objectPath,
		URL:         s.PublicURL(objectPath),
		Size:        size,
		ContentType: contentType,
		Hash:        hex.EncodeToString(hasher.Sum(nil)),
	}
	s.logger.Info("Object uploaded",
		zap.String("bucket", s.bucket),
		zap.String("path", objectPath),
		zap.Int64("size", obj.Size),
	)
	return obj, nil
}

// PublicURL returns the anonymous download URL for an object
func (s *GCSStore) PublicURL(objectPath string) string {
	segments := strings.Split(objectPath, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.baseURL + "/" + s.bucket + "/" + strings.Join(segments, "/")
}

// Check verifies the bucket is reachable
func (s *GCSStore) Check(ctx context.Context) error {
	return s.breaker.Do(ctx, func(ctx context.Context) error {
		_, err := s.svc.Buckets.Get(s.bucket).Context(ctx).Do()
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
			return ErrBucketMissing
		}
		return err
	})
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
