package service

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/lease_go_server/config"
	"github.com/qs3c/lease_go_server/internal/analysis"
	"github.com/qs3c/lease_go_server/internal/jobs"
	"github.com/qs3c/lease_go_server/internal/llm"
	"github.com/qs3c/lease_go_server/internal/model"
	"github.com/qs3c/lease_go_server/internal/ocr"
	"github.com/qs3c/lease_go_server/internal/pkg/blob"
	"github.com/qs3c/lease_go_server/internal/pkg/queue"
	"github.com/qs3c/lease_go_server/internal/repository"
	"github.com/qs3c/lease_go_server/internal/testutil"
)

const validGeneration = `{
  "answer": "The service charge is 15 percent of the total Service Costs incurred by the Landlord in each service charge year, payable in two equal instalments.",
  "citations": [{"clause": "3.1", "text": "a service charge equal to 15 percent of the total Service Costs"}],
  "legalContext": "Service charges must be reasonable under the Landlord and Tenant Act 1985.",
  "practicalImplications": "Budget for 15 percent of the annual costs."
}`

// stubExtractor 返回预设的提取结果
type stubExtractor struct {
	text   string
	engine string
	err    error
	calls  int
}

func (s *stubExtractor) Extract(_ context.Context, _ ocr.Document) (*ocr.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &ocr.Result{
		Text:     s.text,
		Engine:   s.engine,
		Quality:  analysis.AssessQuality(s.text),
		Attempts: []string{s.engine},
	}, nil
}

type fixedPages int

func (f fixedPages) Count(jobs.FileInfo) int { return int(f) }

type testEnv struct {
	db        *gorm.DB
	mr        *miniredis.Miniredis
	queue     *queue.Queue
	store     *blob.LocalStore
	machine   *jobs.Machine
	jobs      *JobService
	analysis  *AnalysisService
	extractor *stubExtractor
	cfg       *config.Config
}

func setupServices(t *testing.T, completer llm.Completer) *testEnv {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	store, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	cfg := config.Default()
	logger := zap.NewNop()
	repo := repository.NewJobRepository(db)
	machine := jobs.NewMachine(repo, cfg.Jobs.MaxRetries, logger)
	q := queue.NewQueue(rdb, "test_jobs")
	jobService := NewJobService(repo, machine, store, q, cfg, logger)

	if completer == nil {
		completer = &llm.StaticCompleter{Text: validGeneration}
	}
	analyzer := analysis.NewAnalyzer(
		analysis.NewGenerator(completer, analysis.GeneratorOptions{}, logger),
		nil, nil, logger,
	)
	extractor := &stubExtractor{text: testutil.LeaseText(9000), engine: "pdftotext"}
	router := jobs.NewRouter(cfg.Router, fixedPages(1), logger)

	return &testEnv{
		db:        db,
		mr:        mr,
		queue:     q,
		store:     store,
		machine:   machine,
		jobs:      jobService,
		analysis:  NewAnalysisService(analyzer, router, extractor, jobService, cfg, logger),
		extractor: extractor,
		cfg:       cfg,
	}
}

// pdfBytes 以 PDF 头开头、总长 size 的文件内容
func pdfBytes(size int) []byte {
	header := "%PDF-1.4\n"
	return []byte(header + strings.Repeat(" ", size-len(header)))
}

func countJobs(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&model.ProcessingJob{}).Count(&n).Error)
	return n
}
