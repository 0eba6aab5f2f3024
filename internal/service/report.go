package service

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/qs3c/lease_go_server/internal/model"
)

// 下载格式
const (
	FormatText     = "text"
	FormatAnalysis = "analysis"
	FormatFull     = "full"
	FormatJSON     = "json"
)

// Download 导出文件
type Download struct {
	Filename    string
	ContentType string
	Content     []byte
}

func validFormat(format string) bool {
	switch format {
	case FormatText, FormatAnalysis, FormatFull, FormatJSON:
		return true
	}
	return false
}

// jobExport json 格式导出的完整数据
type jobExport struct {
	JobID         string            `json:"jobId"`
	Filename      string            `json:"filename"`
	BuildingID    string            `json:"buildingId,omitempty"`
	Question      string            `json:"question,omitempty"`
	Processing    processingExport  `json:"processing"`
	ExtractedText string            `json:"extractedText"`
	Results       *model.JobResults `json:"results"`
	ExportedAt    time.Time         `json:"exportedAt"`
}

type processingExport struct {
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	DurationMs  *int64     `json:"duration,omitempty"`
	OCRSource   string     `json:"ocrSource"`
	RetryCount  int        `json:"retryCount"`
}

func renderDownload(job *model.ProcessingJob, format string, now time.Time) (*Download, error) {
	base := strings.TrimSuffix(job.Filename, filepath.Ext(job.Filename))
	if base == "" {
		base = job.ID
	}
	date := now.Format("2006-01-02")

	switch format {
	case FormatText:
		text := job.ExtractedText
		if text == "" {
			text = "No text extracted"
		}
		return &Download{
			Filename:    fmt.Sprintf("%s_extracted_text_%s.txt", base, date),
			ContentType: "text/plain; charset=utf-8",
			Content:     []byte(text),
		}, nil

	case FormatAnalysis:
		var sb strings.Builder
		sb.WriteString("LEASE ANALYSIS REPORT\n")
		fmt.Fprintf(&sb, "Document: %s\n", job.Filename)
		writeProcessed(&sb, job)
		fmt.Fprintf(&sb, "OCR Source: %s\n", job.OCRSource)
		fmt.Fprintf(&sb, "\n%s\n\n", strings.Repeat("=", 50))
		writeAnalysis(&sb, job.Results, "=", 20)
		return &Download{
			Filename:    fmt.Sprintf("%s_lease_analysis_%s.txt", base, date),
			ContentType: "text/plain; charset=utf-8",
			Content:     []byte(sb.String()),
		}, nil

	case FormatJSON:
		data, err := json.MarshalIndent(jobExport{
			JobID:      job.ID,
			Filename:   job.Filename,
			BuildingID: job.BuildingID,
			Question:   job.Question,
			Processing: processingExport{
				StartedAt:   job.ProcessingStartedAt,
				CompletedAt: job.ProcessingCompletedAt,
				DurationMs:  job.ProcessingDurationMs,
				OCRSource:   job.OCRSource,
				RetryCount:  job.RetryCount,
			},
			ExtractedText: job.ExtractedText,
			Results:       job.Results,
			ExportedAt:    now.UTC(),
		}, "", "  ")
		if err != nil {
			return nil, eris.Wrap(err, "marshal job export")
		}
		return &Download{
			Filename:    fmt.Sprintf("%s_complete_data_%s.json", base, date),
			ContentType: "application/json",
			Content:     data,
		}, nil
	}

	var sb strings.Builder
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(&sb, "COMPLETE LEASE DOCUMENT ANALYSIS\n%s\n\n", rule)
	sb.WriteString("DOCUMENT INFORMATION\n")
	fmt.Fprintf(&sb, "Document: %s\n", job.Filename)
	fmt.Fprintf(&sb, "File Size: %.2f MB\n", float64(job.FileSize)/1024/1024)
	fmt.Fprintf(&sb, "File Type: %s\n", job.FileType)
	fmt.Fprintf(&sb, "Uploaded: %s\n", job.CreatedAt.Format(time.RFC3339))
	writeProcessed(&sb, job)
	if job.ProcessingDurationMs != nil {
		fmt.Fprintf(&sb, "Processing Time: %d seconds\n", (*job.ProcessingDurationMs+500)/1000)
	} else {
		sb.WriteString("Processing Time: Unknown\n")
	}
	fmt.Fprintf(&sb, "OCR Source: %s\n", job.OCRSource)
	fmt.Fprintf(&sb, "\n%s\n\n", rule)

	writeAnalysis(&sb, job.Results, "-", 30)
	fmt.Fprintf(&sb, "%s\n\n", rule)

	fmt.Fprintf(&sb, "COMPLETE EXTRACTED TEXT\n%s\n", strings.Repeat("-", 30))
	if job.ExtractedText == "" {
		sb.WriteString("No text extracted\n")
	} else {
		sb.WriteString(job.ExtractedText)
		sb.WriteString("\n")
	}

	return &Download{
		Filename:    fmt.Sprintf("%s_complete_report_%s.txt", base, date),
		ContentType: "text/plain; charset=utf-8",
		Content:     []byte(sb.String()),
	}, nil
}

func writeProcessed(sb *strings.Builder, job *model.ProcessingJob) {
	if job.ProcessingCompletedAt != nil {
		fmt.Fprintf(sb, "Processed: %s\n", job.ProcessingCompletedAt.Format(time.RFC3339))
	}
}

func writeAnalysis(sb *strings.Builder, results *model.JobResults, ruleChar string, ruleLen int) {
	rule := strings.Repeat(ruleChar, ruleLen)
	if results == nil || (results.Analysis == nil && results.LeaseSummary == nil) {
		sb.WriteString("LEASE ANALYSIS\nNo analysis data available\n\n")
		return
	}

	if a := results.Analysis; a != nil {
		sb.WriteString("QUESTION ANALYSIS\n")
		fmt.Fprintf(sb, "Confidence: %d%% (%s)\n", a.Confidence, a.ConfidenceLevel)
		fmt.Fprintf(sb, "Answer: %s\n", a.Answer)
		for _, c := range a.Citations {
			fmt.Fprintf(sb, "  - Clause %s: %s\n", c.Clause, c.Text)
		}
		sb.WriteString("\n")
	}

	if s := results.LeaseSummary; s != nil {
		sb.WriteString("SUMMARY\n")
		summary := s.Summary
		if summary == "" {
			summary = "No summary available"
		}
		fmt.Fprintf(sb, "%s\n\n", summary)

		fmt.Fprintf(sb, "KEY TERMS EXTRACTED\n%s\n", rule)
		for _, kv := range keyTermRows(s.KeyTerms) {
			if kv[1] != "" {
				fmt.Fprintf(sb, "%s: %s\n", kv[0], kv[1])
			}
		}
		sb.WriteString("\n")

		if len(s.Clauses) > 0 {
			fmt.Fprintf(sb, "LEASE CLAUSES (%d)\n%s\n", len(s.Clauses), rule)
			for i, c := range s.Clauses {
				term := c.Term
				if term == "" {
					term = "Unknown Term"
				}
				fmt.Fprintf(sb, "%d. %s\n   %s\n", i+1, term, c.Text)
				if c.Value != "" {
					fmt.Fprintf(sb, "   Value: %s\n", c.Value)
				}
				sb.WriteString("\n")
			}
		}
	}

	if len(results.Issues) > 0 {
		sb.WriteString("ISSUES\n")
		for _, issue := range results.Issues {
			fmt.Fprintf(sb, "- %s\n", issue)
		}
		sb.WriteString("\n")
	}
}

func keyTermRows(k model.KeyTerms) [][2]string {
	return [][2]string{
		{"monthlyRent", k.MonthlyRent},
		{"tenantName", k.TenantName},
		{"landlordName", k.LandlordName},
		{"propertyAddress", k.PropertyAddress},
		{"leaseStartDate", k.LeaseStartDate},
		{"leaseEndDate", k.LeaseEndDate},
		{"depositAmount", k.DepositAmount},
	}
}
