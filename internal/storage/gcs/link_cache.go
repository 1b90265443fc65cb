// Package gcs provides a link cache stored as a single JSON object in Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/JakeFAU/catalog-alerts/internal/alert"
	cachestore "github.com/JakeFAU/catalog-alerts/internal/storage"
)

const (
	// DefaultObject is used when Config.Object is empty.
	DefaultObject = "catalog-alerts/link_cache.json"
	maxWriteTries = 3
)

// errConflict reports a failed generation precondition.
var errConflict = errors.New("object generation changed")

// Config captures the parameters required to locate the cache object.
type Config struct {
	Bucket string
	Object string
}

// objectIO is the slice of the GCS API the store needs.
type objectIO interface {
	// read returns the object body and generation; generation 0 means the object is absent.
	read(ctx context.Context) ([]byte, int64, error)
	// write stores data only if the current generation still equals generation.
	write(ctx context.Context, data []byte, generation int64) error
}

// LinkCacheStore persists the delivered-link cache to a configured GCS object.
type LinkCacheStore struct {
	mu  sync.Mutex
	obj objectIO
	uri string
	now func() time.Time
}

// New creates a GCS-backed link cache.
func New(client *storage.Client, cfg Config) (*LinkCacheStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if strings.TrimSpace(cfg.Object) == "" {
		cfg.Object = DefaultObject
	}
	handle := client.Bucket(cfg.Bucket).Object(cfg.Object)
	return newStore(&gcsObject{handle: handle}, fmt.Sprintf("gs://%s/%s", cfg.Bucket, cfg.Object)), nil
}

func newStore(obj objectIO, uri string) *LinkCacheStore {
	return &LinkCacheStore{obj: obj, uri: uri, now: time.Now}
}

// URI returns the gs:// location of the cache object.
func (s *LinkCacheStore) URI() string {
	return s.uri
}

// ReadLinkCache downloads and decodes the cache object. A missing object is an empty cache.
func (s *LinkCacheStore) ReadLinkCache(ctx context.Context) (alert.LinkCache, error) {
	data, _, err := s.obj.read(ctx)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.uri, err)
	}
	return cachestore.DecodeSnapshot(data)
}

// WriteLinkCache merges the given labels into the stored object. Concurrent
// writers are detected with generation preconditions and the merge is retried.
func (s *LinkCacheStore) WriteLinkCache(ctx context.Context, linksByLabel map[string][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastErr error
	for range maxWriteTries {
		data, generation, err := s.obj.read(ctx)
		if err != nil {
			return fmt.Errorf("read %s: %w", s.uri, err)
		}
		current, err := cachestore.DecodeSnapshot(data)
		if err != nil {
			return err
		}
		payload, err := cachestore.EncodeSnapshot(cachestore.Merge(current, linksByLabel), s.now())
		if err != nil {
			return err
		}
		err = s.obj.write(ctx, payload, generation)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errConflict) {
			return fmt.Errorf("write %s: %w", s.uri, err)
		}
		lastErr = err
	}
	return fmt.Errorf("write %s: gave up after %d attempts: %w", s.uri, maxWriteTries, lastErr)
}

type gcsObject struct {
	handle *storage.ObjectHandle
}

func (o *gcsObject) read(ctx context.Context) ([]byte, int64, error) {
	reader, err := o.handle.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		_ = reader.Close()
	}()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, 0, fmt.Errorf("read object body: %w", err)
	}
	return data, reader.Attrs.Generation, nil
}

func (o *gcsObject) write(ctx context.Context, data []byte, generation int64) error {
	cond := storage.Conditions{DoesNotExist: true}
	if generation != 0 {
		cond = storage.Conditions{GenerationMatch: generation}
	}
	writer := o.handle.If(cond).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
			return errConflict
		}
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}
