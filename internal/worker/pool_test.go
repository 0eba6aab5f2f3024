package worker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qs3c/lease_go_server/internal/llm"
	"github.com/qs3c/lease_go_server/internal/model"
	"github.com/qs3c/lease_go_server/internal/pkg/queue"
)

func (e *testEnv) pool(workers int) *Pool {
	return NewPool(e.queue, e.machine, e.processor, workers, 100*time.Millisecond, zap.NewNop())
}

func (e *testEnv) enqueue(t *testing.T, job *model.ProcessingJob) {
	t.Helper()
	require.NoError(t, e.queue.Push(context.Background(), &queue.JobMessage{
		JobID:     job.ID,
		UserID:    job.UserID,
		Priority:  job.Priority,
		CreatedAt: job.CreatedAt,
	}))
}

func TestPool_RunOnce(t *testing.T) {
	t.Run("queue message", func(t *testing.T) {
		env := setupWorker(t, nil)
		job := env.pendingJob(t)
		env.enqueue(t, job)

		processed, err := env.pool(1).RunOnce(context.Background())

		require.NoError(t, err)
		assert.True(t, processed)
		assert.Equal(t, model.JobStatusCompleted, env.reload(t, job.ID).Status)
		n, err := env.queue.Length(context.Background())
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("database fallback without message", func(t *testing.T) {
		env := setupWorker(t, nil)
		job := env.pendingJob(t)

		processed, err := env.pool(1).RunOnce(context.Background())

		require.NoError(t, err)
		assert.True(t, processed)
		assert.Equal(t, model.JobStatusCompleted, env.reload(t, job.ID).Status)
	})

	t.Run("stale message for cancelled job", func(t *testing.T) {
		env := setupWorker(t, nil)
		job := env.pendingJob(t, func(j *model.ProcessingJob) { j.Status = model.JobStatusCancelled })
		env.enqueue(t, job)

		processed, err := env.pool(1).RunOnce(context.Background())

		require.NoError(t, err)
		assert.False(t, processed)
		assert.Equal(t, model.JobStatusCancelled, env.reload(t, job.ID).Status)
		assert.Zero(t, env.extractor.Calls())
	})

	t.Run("nothing to do", func(t *testing.T) {
		env := setupWorker(t, nil)

		processed, err := env.pool(1).RunOnce(context.Background())

		require.NoError(t, err)
		assert.False(t, processed)
	})

	t.Run("queue unavailable", func(t *testing.T) {
		env := setupWorker(t, nil)
		job := env.pendingJob(t)
		env.mr.Close()

		processed, err := env.pool(1).RunOnce(context.Background())

		require.NoError(t, err)
		assert.True(t, processed)
		assert.Equal(t, model.JobStatusCompleted, env.reload(t, job.ID).Status)
	})

	t.Run("retrying job is picked up", func(t *testing.T) {
		env := setupWorker(t, nil)
		job := env.pendingJob(t, func(j *model.ProcessingJob) {
			j.Status = model.JobStatusRetrying
			j.RetryCount = 1
			j.ErrorMessage = "generation unavailable: connection refused"
		})
		env.enqueue(t, job)

		processed, err := env.pool(1).RunOnce(context.Background())

		require.NoError(t, err)
		assert.True(t, processed)
		got := env.reload(t, job.ID)
		assert.Equal(t, model.JobStatusCompleted, got.Status)
		assert.Equal(t, 1, got.RetryCount)
		assert.Empty(t, got.ErrorMessage)
	})
}

func TestPool_Run(t *testing.T) {
	env := setupWorker(t, nil)

	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		job := env.pendingJob(t)
		if i%2 == 0 {
			env.enqueue(t, job)
		}
		ids = append(ids, job.ID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.pool(3).Run(ctx) }()

	assert.Eventually(t, func() bool {
		for _, id := range ids {
			job, err := env.machine.Get(context.Background(), id)
			if err != nil || job.Status != model.JobStatusCompleted {
				return false
			}
		}
		return true
	}, 15*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop after cancel")
	}

	// 每个任务只处理一次
	assert.Equal(t, 5, env.extractor.Calls())
}

// blockingCompleter 问答请求阻塞到 release 关闭或 ctx 取消，摘要请求立即返回
func blockingCompleter(started chan<- struct{}, release <-chan struct{}) llm.Completer {
	return llm.CompleterFunc(func(ctx context.Context, req llm.Request) (*llm.Response, error) {
		if strings.Contains(req.System, "extract key terms") {
			return &llm.Response{Text: validSummary, Model: "test"}, nil
		}
		select {
		case started <- struct{}{}:
		default:
		}
		select {
		case <-release:
			return &llm.Response{Text: validGeneration, Model: "test"}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

func TestPool_Shutdown(t *testing.T) {
	t.Run("in-flight job finishes after cancel", func(t *testing.T) {
		started := make(chan struct{}, 1)
		release := make(chan struct{})
		env := setupWorker(t, blockingCompleter(started, release))
		job := env.pendingJob(t)
		env.enqueue(t, job)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			_, err := env.pool(1).RunOnce(ctx)
			done <- err
		}()

		select {
		case <-started:
		case <-time.After(5 * time.Second):
			t.Fatal("generation never started")
		}
		cancel()
		time.Sleep(50 * time.Millisecond)
		close(release)

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("job did not finish")
		}
		got := env.reload(t, job.ID)
		assert.Equal(t, model.JobStatusCompleted, got.Status)
		assert.Empty(t, got.ErrorMessage)
		require.NotNil(t, got.Results)
		assert.Contains(t, got.Results.Analysis.Answer, "15 percent")
	})

	t.Run("drain timeout aborts job", func(t *testing.T) {
		started := make(chan struct{}, 1)
		env := setupWorker(t, blockingCompleter(started, make(chan struct{})))
		job := env.pendingJob(t)
		env.enqueue(t, job)

		pool := env.pool(1)
		pool.SetDrainTimeout(50 * time.Millisecond)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			_, err := pool.RunOnce(ctx)
			done <- err
		}()

		select {
		case <-started:
		case <-time.After(5 * time.Second):
			t.Fatal("generation never started")
		}
		cancel()

		select {
		case err := <-done:
			require.Error(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("drain timeout did not abort the job")
		}
		got := env.reload(t, job.ID)
		assert.Equal(t, model.JobStatusFailed, got.Status)
		assert.True(t, got.CanRetry())
	})
}
