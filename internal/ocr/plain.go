package ocr

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
)

// PlainText 直接读取文本文件
type PlainText struct{}

func (PlainText) Name() string { return "plain" }

func (PlainText) Supports(m string) bool { return strings.HasPrefix(m, "text/") }

func (PlainText) Extract(_ context.Context, doc Document) (string, error) {
	if !utf8.Valid(doc.Data) {
		return "", eris.Errorf("ocr: %s is not valid UTF-8 text", doc.Filename)
	}
	return strings.ReplaceAll(string(doc.Data), "\r\n", "\n"), nil
}
