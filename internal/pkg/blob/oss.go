package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/rotisserie/eris"

	"github.com/qs3c/lease_go_server/config"
)

// OSSStore 阿里云 OSS 存储
type OSSStore struct {
	client *oss.Client
	bucket *oss.Bucket
	prefix string
}

func NewOSSStore(cfg config.OSSConfig) (*OSSStore, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, eris.Wrap(err, "blob: create OSS client")
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, eris.Wrap(err, "blob: get OSS bucket")
	}

	return &OSSStore{
		client: client,
		bucket: bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (s *OSSStore) Name() string { return "oss" }

func (s *OSSStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = getContentType(key)
	}
	err := s.bucket.PutObject(withPrefix(s.prefix, key), bytes.NewReader(data), oss.ContentType(contentType))
	if err != nil {
		return eris.Wrap(err, "blob: upload to OSS")
	}
	return nil
}

func (s *OSSStore) Get(_ context.Context, key string) ([]byte, error) {
	body, err := s.bucket.GetObject(withPrefix(s.prefix, key))
	if err != nil {
		var svcErr oss.ServiceError
		if errors.As(err, &svcErr) && svcErr.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "blob: download from OSS")
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, eris.Wrap(err, "blob: read OSS object")
	}
	return data, nil
}

func (s *OSSStore) Delete(_ context.Context, key string) error {
	if err := s.bucket.DeleteObject(withPrefix(s.prefix, key)); err != nil {
		return eris.Wrap(err, "blob: delete OSS object")
	}
	return nil
}

// SignedURL 生成带签名的临时下载地址（默认1小时有效）
func (s *OSSStore) SignedURL(key string, expireSeconds int64) (string, error) {
	if expireSeconds <= 0 {
		expireSeconds = 3600
	}
	signed, err := s.bucket.SignURL(withPrefix(s.prefix, key), oss.HTTPGet, expireSeconds)
	if err != nil {
		return "", eris.Wrap(err, "blob: sign OSS url")
	}
	return signed, nil
}
