package ocr

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// PdfToText 提取 PDF 自带的文本层，扫描件通常得到空文本
type PdfToText struct {
	binPath string
	runner  Runner
}

func NewPdfToText(binPath string, runner Runner) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath, runner: runner}
}

func (p *PdfToText) Name() string { return "pdftotext" }

func (p *PdfToText) Supports(m string) bool { return IsPDF(m) }

func (p *PdfToText) Extract(ctx context.Context, doc Document) (string, error) {
	path, cleanup, err := writeTemp(doc.Data, ".pdf")
	if err != nil {
		return "", err
	}
	defer cleanup()

	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := p.runner.Run(ctx, p.binPath, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", eris.Wrapf(err, "ocr: pdftotext failed for %s: %s", doc.Filename, truncate(string(errb), 512))
	}
	return string(out), nil
}

// writeTemp 把文档写入临时目录，外部命令只接受文件路径
func writeTemp(data []byte, ext string) (string, func(), error) {
	dir, err := os.MkdirTemp("", "lease-ocr-*")
	if err != nil {
		return "", nil, eris.Wrap(err, "ocr: create temp dir")
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	path := filepath.Join(dir, "input"+ext)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		cleanup()
		return "", nil, eris.Wrap(err, "ocr: write temp file")
	}
	return path, cleanup, nil
}
