package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/lease_go_server/config"
	"github.com/qs3c/lease_go_server/internal/analysis"
	"github.com/qs3c/lease_go_server/internal/api/middleware"
	"github.com/qs3c/lease_go_server/internal/jobs"
	"github.com/qs3c/lease_go_server/internal/llm"
	"github.com/qs3c/lease_go_server/internal/ocr"
	"github.com/qs3c/lease_go_server/internal/pkg/blob"
	"github.com/qs3c/lease_go_server/internal/pkg/queue"
	"github.com/qs3c/lease_go_server/internal/repository"
	"github.com/qs3c/lease_go_server/internal/service"
	"github.com/qs3c/lease_go_server/internal/testutil"
)

const validGeneration = `{
  "answer": "The service charge is 15 percent of the total Service Costs incurred by the Landlord in each service charge year.",
  "citations": [{"clause": "3.1", "text": "a service charge equal to 15 percent of the total Service Costs"}],
  "legalContext": "Service charges must be reasonable under the Landlord and Tenant Act 1985."
}`

const testMaxUpload = 10 << 20

type stubExtractor struct {
	text string
}

func (s *stubExtractor) Extract(_ context.Context, _ ocr.Document) (*ocr.Result, error) {
	return &ocr.Result{
		Text:     s.text,
		Engine:   "pdftotext",
		Quality:  analysis.AssessQuality(s.text),
		Attempts: []string{"pdftotext"},
	}, nil
}

type onePage struct{}

func (onePage) Count(jobs.FileInfo) int { return 1 }

type testEnv struct {
	db      *gorm.DB
	mr      *miniredis.Miniredis
	rdb     *redis.Client
	queue   *queue.Queue
	machine *jobs.Machine
	router  *gin.Engine
}

// setupHandlers 组装与 api.Router 相同的路由
func setupHandlers(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	store, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Server.MaxUploadBytes = testMaxUpload
	logger := zap.NewNop()

	repo := repository.NewJobRepository(db)
	machine := jobs.NewMachine(repo, cfg.Jobs.MaxRetries, logger)
	q := queue.NewQueue(rdb, "test_jobs")
	jobService := service.NewJobService(repo, machine, store, q, cfg, logger)
	analyzer := analysis.NewAnalyzer(
		analysis.NewGenerator(&llm.StaticCompleter{Text: validGeneration}, analysis.GeneratorOptions{}, logger),
		nil, nil, logger,
	)
	analysisService := service.NewAnalysisService(
		analyzer,
		jobs.NewRouter(cfg.Router, onePage{}, logger),
		&stubExtractor{text: testutil.LeaseText(9000)},
		jobService,
		cfg,
		logger,
	)

	analysisHandler := NewAnalysisHandler(analysisService, testMaxUpload)
	jobHandler := NewJobHandler(jobService, testMaxUpload)

	engine := gin.New()
	api := engine.Group("/api/v1")
	api.POST("/analyze", analysisHandler.Analyze)
	identified := api.Group("", middleware.UserIdentity())
	identified.POST("/documents", analysisHandler.SubmitDocument)
	identified.POST("/jobs", jobHandler.Submit)
	identified.GET("/jobs", jobHandler.List)
	identified.GET("/jobs/stats", jobHandler.Stats)
	identified.GET("/jobs/:id", jobHandler.Get)
	identified.GET("/jobs/:id/result", jobHandler.Result)
	identified.GET("/jobs/:id/download", jobHandler.Download)
	identified.POST("/jobs/:id/retry", jobHandler.Retry)
	identified.POST("/jobs/:id/cancel", jobHandler.Cancel)

	return &testEnv{db: db, mr: mr, rdb: rdb, queue: q, machine: machine, router: engine}
}

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *testEnv) do(t *testing.T, method, path, userID string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if userID != "" {
		req.Header.Set(middleware.UserIDHeader, userID)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// call 发送请求并解析统一响应，data 非空时解到 out
func (e *testEnv) call(t *testing.T, method, path, userID string, body io.Reader, contentType string, out interface{}) apiResponse {
	t.Helper()
	w := e.do(t, method, path, userID, body, contentType)
	require.Equal(t, http.StatusOK, w.Code)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	if out != nil && len(resp.Data) > 0 && string(resp.Data) != "null" {
		require.NoError(t, json.Unmarshal(resp.Data, out))
	}
	return resp
}

func jsonBody(t *testing.T, v interface{}) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

// multipartBody file 为 nil 时不附带文件
func multipartBody(t *testing.T, filename string, file []byte, fields map[string]string) (io.Reader, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if file != nil {
		part, err := writer.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func pdfBytes(size int) []byte {
	header := "%PDF-1.4\n"
	return []byte(header + strings.Repeat(" ", size-len(header)))
}
