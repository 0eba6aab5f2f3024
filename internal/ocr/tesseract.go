package ocr

import (
	"context"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// TesseractConfig 本地 OCR 的二进制路径与参数
type TesseractConfig struct {
	Tesseract string
	Pdftoppm  string
	Lang      string
	DPI       int
	MaxPages  int
}

// Tesseract 对图片直接 OCR，对扫描 PDF 先用 pdftoppm 栅格化
type Tesseract struct {
	cfg    TesseractConfig
	runner Runner
}

func NewTesseract(cfg TesseractConfig, runner Runner) *Tesseract {
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	return &Tesseract{cfg: cfg, runner: runner}
}

func (t *Tesseract) Name() string { return "tesseract" }

func (t *Tesseract) Supports(m string) bool { return IsImage(m) || IsPDF(m) }

func (t *Tesseract) Extract(ctx context.Context, doc Document) (string, error) {
	if IsPDF(doc.MIME) {
		return t.extractPDF(ctx, doc)
	}
	path, cleanup, err := writeTemp(doc.Data, extFor(doc.MIME))
	if err != nil {
		return "", err
	}
	defer cleanup()
	return t.ocrImage(ctx, path)
}

func (t *Tesseract) ocrImage(ctx context.Context, path string) (string, error) {
	// tesseract <file> stdout -l <lang>
	out, errb, err := t.runner.Run(ctx, t.cfg.Tesseract, path, "stdout", "-l", t.cfg.Lang)
	if err != nil {
		return "", eris.Wrapf(err, "ocr: tesseract: %s", truncate(string(errb), 512))
	}
	return string(out), nil
}

func (t *Tesseract) extractPDF(ctx context.Context, doc Document) (string, error) {
	path, cleanup, err := writeTemp(doc.Data, ".pdf")
	if err != nil {
		return "", err
	}
	defer cleanup()

	prefix := filepath.Join(filepath.Dir(path), "page")
	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	_, errb, err := t.runner.Run(ctx, t.cfg.Pdftoppm, "-r", strconv.Itoa(t.cfg.DPI), "-png", path, prefix)
	if err != nil {
		return "", eris.Wrapf(err, "ocr: pdftoppm: %s", truncate(string(errb), 512))
	}

	// prefix-1.png, prefix-2.png, ...
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Slice(matches, func(i, j int) bool { return pageIndex(matches[i]) < pageIndex(matches[j]) })
	if t.cfg.MaxPages > 0 && len(matches) > t.cfg.MaxPages {
		matches = matches[:t.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return "", eris.New("ocr: pdftoppm produced no images")
	}

	var b strings.Builder
	var lastErr error
	for _, img := range matches {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		txt, err := t.ocrImage(ctx, img)
		if err != nil {
			lastErr = err
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n")
		}
		b.WriteString(txt)
	}
	if b.Len() == 0 && lastErr != nil {
		return "", lastErr
	}
	return b.String(), nil
}

// pageIndex 解析 page-12.png 中的页码，pdftoppm 会按总页数补零
func pageIndex(path string) int {
	base := strings.TrimSuffix(filepath.Base(path), ".png")
	i := strings.LastIndexByte(base, '-')
	if i < 0 {
		return 0
	}
	n, _ := strconv.Atoi(base[i+1:])
	return n
}
