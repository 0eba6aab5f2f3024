// Package ocr turns uploaded document bytes into plain text. Engines are tried
// in order by Chain until one yields usable text.
package ocr

import (
	"context"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

const (
	MIMEPDF   = "application/pdf"
	MIMEDocx  = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMEDoc   = "application/msword"
	MIMEPlain = "text/plain"
)

// Document is an uploaded file held in memory.
type Document struct {
	Data     []byte
	Filename string
	MIME     string
}

// Extractor is a single text-extraction engine.
type Extractor interface {
	Name() string
	Supports(mime string) bool
	Extract(ctx context.Context, doc Document) (string, error)
}

// remote marks engines that upload the document to a third-party service.
type remote interface {
	Remote() bool
}

func isRemote(e Extractor) bool {
	r, ok := e.(remote)
	return ok && r.Remote()
}

var extMIME = map[string]string{
	".pdf":  MIMEPDF,
	".docx": MIMEDocx,
	".doc":  MIMEDoc,
	".txt":  MIMEPlain,
	".md":   MIMEPlain,
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".webp": "image/webp",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
}

// DetectMIME 优先使用扩展名，其次是声明的类型，最后嗅探内容
func DetectMIME(filename, declared string, data []byte) string {
	if m, ok := extMIME[strings.ToLower(filepath.Ext(filename))]; ok {
		return m
	}
	if declared != "" && declared != "application/octet-stream" {
		if base, _, err := mime.ParseMediaType(declared); err == nil {
			return base
		}
	}
	if len(data) > 0 {
		base, _, _ := mime.ParseMediaType(http.DetectContentType(data))
		return base
	}
	return "application/octet-stream"
}

func IsImage(m string) bool { return strings.HasPrefix(m, "image/") }

func IsPDF(m string) bool { return m == MIMEPDF }

func IsWord(m string) bool { return m == MIMEDocx || m == MIMEDoc }

func extFor(m string) string {
	for ext, v := range extMIME {
		if v == m && ext != ".jpeg" && ext != ".tiff" && ext != ".md" {
			return ext
		}
	}
	return ".bin"
}
