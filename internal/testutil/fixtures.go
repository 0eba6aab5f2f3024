package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qs3c/lease_go_server/internal/model"
)

// TestJob 创建测试任务，默认 pending
func TestJob(t *testing.T, db *gorm.DB, opts ...func(*model.ProcessingJob)) *model.ProcessingJob {
	t.Helper()

	job := &model.ProcessingJob{
		ID:         uuid.NewString(),
		UserID:     "user-1",
		Filename:   "lease.pdf",
		FileSize:   50 * 1024,
		FileType:   "application/pdf",
		FileKey:    fmt.Sprintf("leases/test/%d.pdf", time.Now().UnixNano()),
		Question:   "What is the service charge percentage?",
		Status:     model.JobStatusPending,
		Priority:   5,
		MaxRetries: 3,
	}

	for _, opt := range opts {
		opt(job)
	}

	if err := db.Create(job).Error; err != nil {
		t.Fatalf("Failed to create test job: %v", err)
	}

	return job
}

// WithJobStatus 设置任务状态
func WithJobStatus(status model.JobStatus) func(*model.ProcessingJob) {
	return func(j *model.ProcessingJob) {
		j.Status = status
	}
}

// WithUser 设置任务所属用户
func WithUser(userID string) func(*model.ProcessingJob) {
	return func(j *model.ProcessingJob) {
		j.UserID = userID
	}
}

// WithPriority 设置优先级
func WithPriority(priority int) func(*model.ProcessingJob) {
	return func(j *model.ProcessingJob) {
		j.Priority = priority
	}
}

// WithCreatedAt 设置创建时间
func WithCreatedAt(at time.Time) func(*model.ProcessingJob) {
	return func(j *model.ProcessingJob) {
		j.CreatedAt = at
	}
}

// WithFile 设置文件信息
func WithFile(key, filename, fileType string, size int64) func(*model.ProcessingJob) {
	return func(j *model.ProcessingJob) {
		j.FileKey = key
		j.Filename = filename
		j.FileType = fileType
		j.FileSize = size
	}
}

// WithQuestion 设置问题
func WithQuestion(q string) func(*model.ProcessingJob) {
	return func(j *model.ProcessingJob) {
		j.Question = q
	}
}

// WithRetries 设置重试计数
func WithRetries(count, max int) func(*model.ProcessingJob) {
	return func(j *model.ProcessingJob) {
		j.RetryCount = count
		j.MaxRetries = max
	}
}

// WithFailure 设置为失败任务
func WithFailure(msg string) func(*model.ProcessingJob) {
	return func(j *model.ProcessingJob) {
		now := time.Now()
		j.Status = model.JobStatusFailed
		j.ErrorMessage = msg
		j.ProcessingStartedAt = &now
		j.AttemptStartedAt = &now
		j.ProcessingCompletedAt = &now
	}
}

// WithAttemptStartedAt 设置为处理中，并指定本次尝试开始时间
func WithAttemptStartedAt(at time.Time) func(*model.ProcessingJob) {
	return func(j *model.ProcessingJob) {
		j.Status = model.JobStatusProcessing
		j.ProcessingStartedAt = &at
		j.AttemptStartedAt = &at
	}
}

// WithResults 设置为已完成任务
func WithResults(results *model.JobResults, text string) func(*model.ProcessingJob) {
	return func(j *model.ProcessingJob) {
		now := time.Now()
		d := int64(1500)
		j.Status = model.JobStatusCompleted
		j.ProcessingStartedAt = &now
		j.AttemptStartedAt = &now
		j.ProcessingCompletedAt = &now
		j.ProcessingDurationMs = &d
		j.Results = results
		j.ExtractedText = text
		j.OCRSource = "pdftotext"
	}
}

const leaseHeader = `THIS LEASE is made on 1 March 2021 between Harbour Estates Limited (the Landlord) and Jane Smith (the Tenant) for the flat known as Flat 4, 12 Marine Parade, Brighton BN2 1AA.

1. Definitions. In this Lease the Term means a term of 125 years from and including 1 March 2021 and the Rent means the ground rent of £250 per annum payable on the usual quarter days.

2.1 The Tenant shall pay the ground rent of £250 per year in advance on 25 March in each year without any deduction whatsoever.

3.1 The Tenant shall pay a service charge equal to 15 percent of the total Service Costs incurred by the Landlord in each service charge year, payable in two equal instalments.

3.2 The service charge shall be payable on 1 April and 1 October in each year and the Landlord shall provide a certified statement within six months of the end of the year.

4.1 The Landlord shall maintain and keep in repair the structure, roof, foundations and common parts of the Building and shall recover the cost through the service charge.

4.2 The Tenant shall not keep any pets without consent of the Landlord, such consent not to be unreasonably withheld for a single domestic cat or dog.

5.1 The Tenant shall not make any structural alteration or addition to the Flat without the prior written consent of the Landlord, which may be given subject to conditions.

6.1 The Tenant shall not assign, sublet or part with possession of part only of the Flat, and shall not assign the whole without the prior consent of the Landlord.

7.1 The Tenant shall use the Flat only as a private residence for occupation by one household and for no trade, business or commercial purpose whatsoever.

8.1 The Landlord may terminate this lease by notice in writing if the rent is unpaid for twenty one days, subject to the statutory protections for long leaseholders.
`

// LeaseText 返回一份结构完整的示例租约文本，长度至少 minChars
func LeaseText(minChars int) string {
	var sb strings.Builder
	sb.WriteString(leaseHeader)
	n := 9
	for sb.Len() < minChars {
		fmt.Fprintf(&sb, "\n%d.1 The parties agree that the covenants in this part of the Lease bind their successors in title and that any notice served under this Lease shall be in writing and delivered to the address of the recipient stated in the Particulars.\n", n)
		n++
	}
	return sb.String()
}
