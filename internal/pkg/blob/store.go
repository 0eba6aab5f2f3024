package blob

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound 对象不存在
var ErrNotFound = errors.New("blob: object not found")

// Store 上传文档的对象存储
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Name() string
}

// DocumentKey 生成上传文档的对象键: leases/<user>/<yyyymmdd>/<uuid><ext>
func DocumentKey(userID, filename string, now time.Time) string {
	ext := strings.ToLower(path.Ext(filename))
	user := sanitize(userID)
	if user == "" {
		user = "anonymous"
	}
	return fmt.Sprintf("leases/%s/%s/%s%s", user, now.Format("20060102"), uuid.NewString(), ext)
}

func sanitize(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// getContentType 根据扩展名获取 Content-Type
func getContentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".doc":
		return "application/msword"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

func withPrefix(prefix, key string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}
