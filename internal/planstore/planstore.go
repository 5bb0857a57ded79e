// Package planstore reads plan documents from local files or Cloud Storage and
// checks them before they reach the engine.
package planstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/cashflow-engine/internal/domain"
	"github.com/dvloznov/cashflow-engine/internal/logger"
)

const gcsScheme = "gs://"

// Source opens a plan document by location.
type Source interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// Sink stores a JSON document at a location.
type Sink interface {
	Write(ctx context.Context, location string, v interface{}) error
}

// FileSource opens plan documents on the local filesystem.
type FileSource struct{}

// Open implements Source.
func (FileSource) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Clean(location))
	if err != nil {
		return nil, fmt.Errorf("open plan file %q: %w", location, err)
	}
	return f, nil
}

// Write implements Sink, creating parent directories as needed.
func (FileSource) Write(ctx context.Context, location string, v interface{}) error {
	path := filepath.Clean(location)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("Write: create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("Write: create %q: %w", location, err)
	}
	if err := Encode(f, v); err != nil {
		_ = f.Close()
		return fmt.Errorf("Write: %w", err)
	}
	return f.Close()
}

// GCSSource opens plan documents stored as objects in Cloud Storage.
type GCSSource struct {
	client *storage.Client
}

// NewGCSSource creates a storage client using Application Default Credentials.
func NewGCSSource(ctx context.Context) (*GCSSource, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSSource: create storage client: %w", err)
	}
	return &GCSSource{client: client}, nil
}

// Open implements Source for gs://bucket/object locations.
func (s *GCSSource) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	bucket, object, err := ParseGCSURI(location)
	if err != nil {
		return nil, err
	}
	rc, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open GCS object %s/%s: %w", bucket, object, err)
	}
	return rc, nil
}

// Write implements Sink, uploading v as JSON to a gs://bucket/object location.
func (s *GCSSource) Write(ctx context.Context, location string, v interface{}) error {
	bucket, object, err := ParseGCSURI(location)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = "application/json"
	if err := Encode(w, v); err != nil {
		_ = w.Close()
		return fmt.Errorf("Write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("Write: finalize upload: %w", err)
	}
	return nil
}

// Close releases the storage client.
func (s *GCSSource) Close() error {
	return s.client.Close()
}

// ParseGCSURI splits gs://bucket/path/to/object into bucket and object name.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !IsGCSURI(uri) {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, gcsScheme), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// IsGCSURI reports whether location points at Cloud Storage.
func IsGCSURI(location string) bool {
	return strings.HasPrefix(location, gcsScheme)
}

// Decode parses a JSON plan document.
func Decode(r io.Reader) (*domain.Plan, error) {
	var plan domain.Plan
	if err := json.NewDecoder(r).Decode(&plan); err != nil {
		return nil, fmt.Errorf("Decode: %w", err)
	}
	return &plan, nil
}

// Encode writes v, usually a plan or an analysis, as indented JSON.
func Encode(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("Encode: %w", err)
	}
	return nil
}

// Loader resolves a location to a validated plan. gs:// locations go to Remote,
// everything else to Local.
type Loader struct {
	Local  Source
	Remote Source
}

// NewLoader returns a Loader for local files. remote may be nil when Cloud Storage
// is not configured.
func NewLoader(remote Source) *Loader {
	return &Loader{Local: FileSource{}, Remote: remote}
}

// Load opens, decodes and validates the plan at location.
func (l *Loader) Load(ctx context.Context, location string) (*domain.Plan, error) {
	log := logger.FromContext(ctx)

	src := l.Local
	if IsGCSURI(location) {
		if l.Remote == nil {
			return nil, fmt.Errorf("Load: %s: cloud storage is not configured", location)
		}
		src = l.Remote
	}

	rc, err := src.Open(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	defer rc.Close()

	plan, err := Decode(rc)
	if err != nil {
		return nil, fmt.Errorf("Load: %s: %w", location, err)
	}
	if err := Validate(plan); err != nil {
		return nil, fmt.Errorf("Load: %s: %w", location, err)
	}

	log.Debug().
		Str("location", location).
		Int("periods", len(plan.Periods)).
		Int("transactions", len(plan.Transactions)).
		Msg("plan loaded")
	return plan, nil
}

// LoadFile loads and validates a plan from the local filesystem.
func LoadFile(ctx context.Context, path string) (*domain.Plan, error) {
	return NewLoader(nil).Load(ctx, path)
}
