package worker

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/lease_go_server/internal/analysis"
	"github.com/qs3c/lease_go_server/internal/jobs"
	"github.com/qs3c/lease_go_server/internal/llm"
	"github.com/qs3c/lease_go_server/internal/model"
	"github.com/qs3c/lease_go_server/internal/ocr"
	"github.com/qs3c/lease_go_server/internal/pkg/blob"
	"github.com/qs3c/lease_go_server/internal/pkg/pubsub"
	"github.com/qs3c/lease_go_server/internal/pkg/queue"
	"github.com/qs3c/lease_go_server/internal/repository"
	"github.com/qs3c/lease_go_server/internal/testutil"
)

const validGeneration = `{
  "answer": "The service charge is 15 percent of the total Service Costs incurred by the Landlord in each service charge year, payable in two equal instalments.",
  "citations": [{"clause": "3.1", "text": "a service charge equal to 15 percent of the total Service Costs"}],
  "legalContext": "Service charges must be reasonable under the Landlord and Tenant Act 1985."
}`

const validSummary = `{
  "summary": "A 125 year residential lease of Flat 4, 12 Marine Parade.",
  "clauses": [{"term": "Ground rent", "text": "£250 per annum payable in advance", "value": "£250"}],
  "keyTerms": {"tenantName": "Jane Smith", "landlordName": "Harbour Estates Limited"}
}`

// fakeExtractor 并发安全的 OCR 替身
type fakeExtractor struct {
	mu        sync.Mutex
	text      string
	engine    string
	err       error
	calls     int
	onExtract func(doc ocr.Document)
}

func (f *fakeExtractor) Extract(_ context.Context, doc ocr.Document) (*ocr.Result, error) {
	f.mu.Lock()
	f.calls++
	hook := f.onExtract
	f.mu.Unlock()

	if hook != nil {
		hook(doc)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &ocr.Result{
		Text:     f.text,
		Engine:   f.engine,
		Quality:  analysis.AssessQuality(f.text),
		Attempts: []string{f.engine},
	}, nil
}

func (f *fakeExtractor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// recordingPublisher 记录推送过的进度
type recordingPublisher struct {
	mu   sync.Mutex
	msgs []*pubsub.JobProgress
}

func (r *recordingPublisher) PublishProgress(_ context.Context, msg *pubsub.JobProgress) error {
	msg.Fill()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingPublisher) steps(jobID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var steps []string
	for _, m := range r.msgs {
		if m.JobID == jobID {
			steps = append(steps, m.Step)
		}
	}
	return steps
}

// leaseCompleter 按系统提示区分问答和摘要请求
func leaseCompleter(answer, summary string) llm.Completer {
	return llm.CompleterFunc(func(_ context.Context, req llm.Request) (*llm.Response, error) {
		if strings.Contains(req.System, "extract key terms") {
			return &llm.Response{Text: summary, Model: "test"}, nil
		}
		return &llm.Response{Text: answer, Model: "test"}, nil
	})
}

type testEnv struct {
	db        *gorm.DB
	mr        *miniredis.Miniredis
	queue     *queue.Queue
	store     *blob.LocalStore
	machine   *jobs.Machine
	extractor *fakeExtractor
	publisher *recordingPublisher
	processor *Processor
}

func setupWorker(t *testing.T, completer llm.Completer) *testEnv {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	store, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	if completer == nil {
		completer = leaseCompleter(validGeneration, validSummary)
	}

	logger := zap.NewNop()
	machine := jobs.NewMachine(repository.NewJobRepository(db), 3, logger)
	extractor := &fakeExtractor{text: testutil.LeaseText(9000), engine: "tesseract"}
	publisher := &recordingPublisher{}
	analyzer := analysis.NewAnalyzer(analysis.NewGenerator(completer, analysis.GeneratorOptions{}, logger), nil, nil, logger)

	return &testEnv{
		db:        db,
		mr:        mr,
		queue:     queue.NewQueue(rdb, "test_jobs"),
		store:     store,
		machine:   machine,
		extractor: extractor,
		publisher: publisher,
		processor: NewProcessor(machine, store, extractor, analyzer,
			analysis.NewSummarizer(completer, time.Second, logger), publisher, logger),
	}
}

// pendingJob 上传文件并创建 pending 任务
func (e *testEnv) pendingJob(t *testing.T, opts ...func(*model.ProcessingJob)) *model.ProcessingJob {
	t.Helper()
	key := "leases/user-1/" + strings.ReplaceAll(t.Name(), "/", "_") + time.Now().Format("150405.000000000") + ".pdf"
	require.NoError(t, e.store.Put(context.Background(), key, []byte("%PDF-1.4 scan"), ocr.MIMEPDF))
	opts = append([]func(*model.ProcessingJob){testutil.WithFile(key, "scan.pdf", ocr.MIMEPDF, 13)}, opts...)
	return testutil.TestJob(t, e.db, opts...)
}

// claimedJob 创建并领取任务
func (e *testEnv) claimedJob(t *testing.T, opts ...func(*model.ProcessingJob)) *model.ProcessingJob {
	t.Helper()
	job := e.pendingJob(t, opts...)
	claimed, err := e.machine.Claim(context.Background(), job.ID)
	require.NoError(t, err)
	return claimed
}

func (e *testEnv) reload(t *testing.T, id string) *model.ProcessingJob {
	t.Helper()
	job, err := e.machine.Get(context.Background(), id)
	require.NoError(t, err)
	return job
}
