package jobs

import (
	"bytes"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"

	"github.com/qs3c/lease_go_server/internal/ocr"
)

const DefaultBytesPerPage = 100 << 10

// PageCounter 估算文档页数
type PageCounter interface {
	Count(f FileInfo) int
}

// DocumentPageCounter PDF 读取页树，DOCX 读取 docProps/app.xml，其余按文件大小估算
type DocumentPageCounter struct {
	BytesPerPage int64
	Logger       *zap.Logger
}

func NewDocumentPageCounter(bytesPerPage int64, logger *zap.Logger) *DocumentPageCounter {
	if bytesPerPage <= 0 {
		bytesPerPage = DefaultBytesPerPage
	}
	return &DocumentPageCounter{BytesPerPage: bytesPerPage, Logger: logger}
}

func (c *DocumentPageCounter) Count(f FileInfo) int {
	mime := f.mime()
	if ocr.IsImage(mime) {
		return 1
	}

	if len(f.Data) > 0 {
		switch {
		case ocr.IsPDF(mime):
			conf := pdfmodel.NewDefaultConfiguration()
			n, err := api.PageCount(bytes.NewReader(f.Data), conf)
			if err == nil && n > 0 {
				return n
			}
			c.Logger.Debug("pdf page count unavailable, using size estimate",
				zap.String("filename", f.Filename), zap.Error(err))
		case mime == ocr.MIMEDocx:
			n, err := ocr.DocxPages(f.Data)
			if err == nil && n > 0 {
				return n
			}
		}
	}
	return c.estimate(f.Size)
}

// estimate ceil(size / BytesPerPage)，至少 1 页
func (c *DocumentPageCounter) estimate(size int64) int {
	if size <= 0 {
		return 1
	}
	return int((size + c.BytesPerPage - 1) / c.BytesPerPage)
}
