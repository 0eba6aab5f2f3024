package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/lease_go_server/internal/service"
)

var errMissingFile = errors.New("请上传文件")

// uploadForm multipart 表单中与文档相关的字段
type uploadForm struct {
	Filename   string
	FileType   string
	Data       []byte
	Question   string
	BuildingID string
	Priority   *int
}

// multipartOverhead 表单字段和 multipart 边界占用的额外字节
const multipartOverhead = 1 << 20

// readUploadForm 超过 maxBytes 的文件在读取之前就拒绝：
// Content-Length 超限直接返回，未声明长度的请求体由 MaxBytesReader 截断
func readUploadForm(c *gin.Context, maxBytes int64) (*uploadForm, error) {
	if maxBytes > 0 {
		limit := maxBytes + multipartOverhead
		if c.Request.ContentLength > limit {
			return nil, service.ErrFileTooLarge
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, service.ErrFileTooLarge
		}
		return nil, errMissingFile
	}
	if maxBytes > 0 && fh.Size > maxBytes {
		return nil, service.ErrFileTooLarge
	}

	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	form := &uploadForm{
		Filename:   fh.Filename,
		FileType:   fh.Header.Get("Content-Type"),
		Data:       data,
		Question:   strings.TrimSpace(c.PostForm("question")),
		BuildingID: c.PostForm("building_id"),
	}
	if name := strings.TrimSpace(c.PostForm("filename")); name != "" {
		form.Filename = name
	}
	if ft := strings.TrimSpace(c.PostForm("file_type")); ft != "" {
		form.FileType = ft
	}
	if raw := strings.TrimSpace(c.PostForm("priority")); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			return nil, service.ErrInvalidPriority
		}
		form.Priority = &p
	}
	return form, nil
}
