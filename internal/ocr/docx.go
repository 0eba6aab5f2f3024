package ocr

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// Docx 从 word/document.xml 中抽取段落文本
type Docx struct{}

func (Docx) Name() string { return "docx" }

func (Docx) Supports(m string) bool { return m == MIMEDocx }

func (Docx) Extract(_ context.Context, doc Document) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(doc.Data), int64(len(doc.Data)))
	if err != nil {
		return "", eris.Wrap(err, "ocr: open docx")
	}
	f := findZipFile(zr, "word/document.xml")
	if f == nil {
		return "", eris.New("ocr: docx has no word/document.xml")
	}
	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrap(err, "ocr: open document.xml")
	}
	defer rc.Close() //nolint:errcheck

	text, err := wordText(rc)
	if err != nil {
		return "", eris.Wrap(err, "ocr: parse document.xml")
	}
	return text, nil
}

func findZipFile(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// wordText 读取 w:t 文本，w:p 结束时换行，w:tab / w:br 分别转为制表符和换行
func wordText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var sb strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

type docxAppProps struct {
	Pages int `xml:"Pages"`
}

// DocxPages 读取 docProps/app.xml 中 Word 记录的页数，没有时返回 0
func DocxPages(data []byte) (int, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, eris.Wrap(err, "ocr: open docx")
	}
	f := findZipFile(zr, "docProps/app.xml")
	if f == nil {
		return 0, nil
	}
	rc, err := f.Open()
	if err != nil {
		return 0, eris.Wrap(err, "ocr: open app.xml")
	}
	defer rc.Close() //nolint:errcheck

	var props docxAppProps
	if err := xml.NewDecoder(rc).Decode(&props); err != nil {
		return 0, eris.Wrap(err, "ocr: parse app.xml")
	}
	return props.Pages, nil
}
