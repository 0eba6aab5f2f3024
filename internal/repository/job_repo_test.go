package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/lease_go_server/internal/model"
	"github.com/qs3c/lease_go_server/internal/testutil"
)

func TestJobRepository_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)

	job := &model.ProcessingJob{
		ID:         uuid.NewString(),
		UserID:     "user-1",
		Filename:   "scan.pdf",
		FileSize:   40 << 20,
		FileType:   "application/pdf",
		FileKey:    "leases/user-1/scan.pdf",
		Status:     model.JobStatusPending,
		Priority:   0,
		MaxRetries: 3,
	}

	require.NoError(t, repo.Create(context.Background(), job))

	found, err := repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, found.Priority)
	assert.Equal(t, model.JobStatusPending, found.Status)
	assert.Nil(t, found.ProcessingStartedAt)
	assert.False(t, found.CreatedAt.IsZero())
}

func TestJobRepository_GetByID_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)

	_, err := repo.GetByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestJobRepository_ResultsRoundTrip(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	results := &model.JobResults{
		Analysis: &model.AnalysisResult{Answer: "15 percent", Confidence: 85, ConfidenceLevel: model.ConfidenceHigh},
		Issues:   []string{"Lease summary unavailable"},
	}
	job := testutil.TestJob(t, db, testutil.WithResults(results, "THIS LEASE"))

	found, err := repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, found.Results)
	require.NotNil(t, found.Results.Analysis)
	assert.Equal(t, "15 percent", found.Results.Analysis.Answer)
	assert.Equal(t, []string{"Lease summary unavailable"}, found.Results.Issues)
	assert.Equal(t, "THIS LEASE", found.ExtractedText)
}

func TestJobRepository_ListByUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		testutil.TestJob(t, db, testutil.WithCreatedAt(base.Add(time.Duration(i)*time.Minute)))
	}
	testutil.TestJob(t, db, testutil.WithJobStatus(model.JobStatusFailed))
	testutil.TestJob(t, db, testutil.WithUser("user-2"))

	t.Run("first page newest first", func(t *testing.T) {
		jobs, total, err := repo.ListByUser(ctx, "user-1", "", 1, 4)
		require.NoError(t, err)
		assert.Equal(t, int64(6), total)
		require.Len(t, jobs, 4)
		for i := 1; i < len(jobs); i++ {
			assert.False(t, jobs[i].CreatedAt.After(jobs[i-1].CreatedAt))
		}
		assert.Empty(t, jobs[0].ExtractedText)
	})

	t.Run("second page", func(t *testing.T) {
		jobs, _, err := repo.ListByUser(ctx, "user-1", "", 2, 4)
		require.NoError(t, err)
		assert.Len(t, jobs, 2)
	})

	t.Run("status filter", func(t *testing.T) {
		jobs, total, err := repo.ListByUser(ctx, "user-1", model.JobStatusFailed, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, jobs, 1)
		assert.Equal(t, model.JobStatusFailed, jobs[0].Status)
	})
}

func TestJobRepository_ClaimCandidates_Order(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	base := time.Now().Add(-time.Hour)

	lateUrgent := testutil.TestJob(t, db, testutil.WithPriority(1), testutil.WithCreatedAt(base.Add(30*time.Minute)))
	oldNormal := testutil.TestJob(t, db, testutil.WithPriority(5), testutil.WithCreatedAt(base))
	earlyUrgent := testutil.TestJob(t, db, testutil.WithPriority(1), testutil.WithCreatedAt(base.Add(10*time.Minute)),
		testutil.WithJobStatus(model.JobStatusRetrying))
	testutil.TestJob(t, db, testutil.WithPriority(0), testutil.WithJobStatus(model.JobStatusCompleted))
	testutil.TestJob(t, db, testutil.WithPriority(0), testutil.WithAttemptStartedAt(time.Now()))

	jobs, err := repo.ClaimCandidates(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, earlyUrgent.ID, jobs[0].ID)
	assert.Equal(t, lateUrgent.ID, jobs[1].ID)
	assert.Equal(t, oldNormal.ID, jobs[2].ID)

	limited, err := repo.ClaimCandidates(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestJobRepository_UpdateWhere(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	ctx := context.Background()
	job := testutil.TestJob(t, db)

	t.Run("matching status", func(t *testing.T) {
		ok, err := repo.UpdateWhere(ctx, job.ID, []model.JobStatus{model.JobStatusPending},
			map[string]interface{}{"status": model.JobStatusProcessing})
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("stale status is a no-op", func(t *testing.T) {
		ok, err := repo.UpdateWhere(ctx, job.ID, []model.JobStatus{model.JobStatusPending},
			map[string]interface{}{"status": model.JobStatusCompleted})
		require.NoError(t, err)
		assert.False(t, ok)

		found, err := repo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusProcessing, found.Status)
	})

	t.Run("unknown id", func(t *testing.T) {
		ok, err := repo.UpdateWhere(ctx, "missing", []model.JobStatus{model.JobStatusPending},
			map[string]interface{}{"status": model.JobStatusProcessing})
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestJobRepository_ListStale(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	now := time.Now()

	stale := testutil.TestJob(t, db, testutil.WithAttemptStartedAt(now.Add(-30*time.Minute)))
	testutil.TestJob(t, db, testutil.WithAttemptStartedAt(now.Add(-time.Minute)))
	testutil.TestJob(t, db)

	jobs, err := repo.ListStale(context.Background(), now.Add(-15*time.Minute))
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, stale.ID, jobs[0].ID)
}

func TestJobRepository_Stats(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewJobRepository(db)
	ctx := context.Background()

	testutil.TestJob(t, db)
	testutil.TestJob(t, db)
	testutil.TestJob(t, db, testutil.WithFailure("ocr failed"))
	done := testutil.TestJob(t, db, testutil.WithResults(&model.JobResults{}, "text"))
	require.NoError(t, db.Model(done).Update("processing_duration_ms", 3000).Error)
	testutil.TestJob(t, db, testutil.WithResults(&model.JobResults{}, "text"))
	testutil.TestJob(t, db, testutil.WithUser("user-2"), testutil.WithJobStatus(model.JobStatusRetrying))
	testutil.TestJob(t, db, testutil.WithCreatedAt(time.Now().Add(-48*time.Hour)))

	since := time.Now().Add(-24 * time.Hour)

	counts, err := repo.CountByStatusSince(ctx, "", since)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[model.JobStatusPending])
	assert.Equal(t, int64(1), counts[model.JobStatusFailed])
	assert.Equal(t, int64(2), counts[model.JobStatusCompleted])
	assert.Equal(t, int64(1), counts[model.JobStatusRetrying])
	assert.Equal(t, int64(0), counts[model.JobStatusCancelled])
	assert.Len(t, counts, len(model.AllJobStatuses))

	userCounts, err := repo.CountByStatusSince(ctx, "user-2", since)
	require.NoError(t, err)
	assert.Equal(t, int64(1), userCounts[model.JobStatusRetrying])
	assert.Equal(t, int64(0), userCounts[model.JobStatusPending])

	avg, err := repo.AvgDurationSince(ctx, "", since)
	require.NoError(t, err)
	assert.InDelta(t, 2250, avg, 0.01)

	empty, err := repo.AvgDurationSince(ctx, "nobody", since)
	require.NoError(t, err)
	assert.Zero(t, empty)
}
