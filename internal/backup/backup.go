package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ErrNotConfigured is returned when S3 credentials are missing.
var ErrNotConfigured = errors.New("backup not configured")

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

func (c S3Config) enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// Status holds the result of the most recent backup run.
type Status struct {
	LastBackup *time.Time `json:"last_backup,omitempty"`
	LastKey    string     `json:"last_key,omitempty"`
	Error      string     `json:"error,omitempty"`
	Enabled    bool       `json:"enabled"`
}

// Service produces encrypted household exports and ships them to
// S3-compatible storage.
type Service struct {
	mu       sync.RWMutex
	cfg      S3Config
	status   Status
	exporter *Exporter
	client   s3Client
	logger   *slog.Logger
}

// NewService creates a backup Service. When the S3 config is incomplete the
// service stays disabled and every operation returns ErrNotConfigured.
func NewService(cfg S3Config, exporter *Exporter, logger *slog.Logger) *Service {
	s := &Service{
		cfg:      cfg,
		exporter: exporter,
		logger:   logger,
		status:   Status{Enabled: cfg.enabled()},
	}
	if cfg.enabled() {
		s.client = newS3Client(cfg)
	}
	return s
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Status returns the most recent backup outcome.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Service) setStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// Run exports the household's data, encrypts it with the passphrase, and
// uploads it. It returns the object key of the stored backup.
func (s *Service) Run(ctx context.Context, householdID int64, passphrase string) (string, error) {
	s.mu.RLock()
	client := s.client
	bucket := s.cfg.Bucket
	s.mu.RUnlock()

	if client == nil {
		return "", ErrNotConfigured
	}

	snapshot, err := s.exporter.Snapshot(householdID, time.Now().UTC())
	if err != nil {
		s.setStatus(Status{Enabled: true, Error: err.Error()})
		return "", fmt.Errorf("export household %d: %w", householdID, err)
	}

	salt, err := GenerateSalt()
	if err != nil {
		s.setStatus(Status{Enabled: true, Error: err.Error()})
		return "", err
	}

	sealed, err := Encrypt(snapshot, passphrase, salt)
	if err != nil {
		s.setStatus(Status{Enabled: true, Error: err.Error()})
		return "", fmt.Errorf("encrypt export: %w", err)
	}

	key := objectKey(householdID)
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
	})
	if err != nil {
		s.setStatus(Status{Enabled: true, Error: err.Error()})
		return "", fmt.Errorf("upload backup: %w", err)
	}

	now := time.Now().UTC()
	s.setStatus(Status{Enabled: true, LastBackup: &now, LastKey: key})
	s.logger.Info("backup uploaded", "household_id", householdID, "key", key, "size", len(sealed))
	return key, nil
}

// List returns the stored backup keys for one household, newest last.
func (s *Service) List(ctx context.Context, householdID int64) ([]string, error) {
	s.mu.RLock()
	client := s.client
	bucket := s.cfg.Bucket
	s.mu.RUnlock()

	if client == nil {
		return nil, ErrNotConfigured
	}

	out, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(keyPrefix(householdID)),
	})
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}

	keys := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		keys = append(keys, aws.ToString(obj.Key))
	}
	return keys, nil
}

// Download streams one encrypted backup. The key must belong to the
// household; cross-household keys are rejected.
func (s *Service) Download(ctx context.Context, householdID int64, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	client := s.client
	bucket := s.cfg.Bucket
	s.mu.RUnlock()

	if client == nil {
		return nil, ErrNotConfigured
	}

	if !strings.HasPrefix(key, keyPrefix(householdID)) {
		return nil, fmt.Errorf("backup %q does not belong to household %d", key, householdID)
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("download backup: %w", err)
	}
	return out.Body, nil
}

func keyPrefix(householdID int64) string {
	return fmt.Sprintf("households/%d/", householdID)
}

func objectKey(householdID int64) string {
	ts := time.Now().UTC().Format("2006-01-02T150405Z")
	return fmt.Sprintf("%sexport-%s-%s.zip.enc", keyPrefix(householdID), ts, uuid.NewString()[:8])
}
