package blob

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/storage"
	"github.com/rotisserie/eris"
	"google.golang.org/api/option"

	"github.com/qs3c/lease_go_server/config"
)

// GCSStore Google Cloud Storage 存储，写入使用 DoesNotExist 条件保证对象不被覆盖
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

func NewGCSStore(ctx context.Context, cfg config.GCSConfig) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, eris.New("blob: storage.gcs.bucket is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "blob: create GCS client")
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *GCSStore) Name() string { return "gcs" }

func (s *GCSStore) object(key string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(withPrefix(s.prefix, key))
}

func (s *GCSStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	w := s.object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	if contentType == "" {
		contentType = getContentType(key)
	}
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return eris.Wrap(err, "blob: write GCS object")
	}
	if err := w.Close(); err != nil {
		return eris.Wrap(err, "blob: commit GCS object")
	}
	return nil
}

func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := s.object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "blob: open GCS object")
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "blob: read GCS object")
	}
	return data, nil
}

func (s *GCSStore) Delete(ctx context.Context, key string) error {
	err := s.object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return eris.Wrap(err, "blob: delete GCS object")
	}
	return nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
