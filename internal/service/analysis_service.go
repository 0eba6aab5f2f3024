package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/lease_go_server/config"
	"github.com/qs3c/lease_go_server/internal/analysis"
	"github.com/qs3c/lease_go_server/internal/jobs"
	"github.com/qs3c/lease_go_server/internal/model"
	"github.com/qs3c/lease_go_server/internal/model/dto"
	"github.com/qs3c/lease_go_server/internal/ocr"
)

const defaultQuickTimeout = 30 * time.Second

// DocumentExtractor 文档转文本，由 ocr.Chain 实现
type DocumentExtractor interface {
	Extract(ctx context.Context, doc ocr.Document) (*ocr.Result, error)
}

// SubmitDocumentInput 带问题的文档提交
type SubmitDocumentInput struct {
	Filename   string
	FileType   string
	Data       []byte
	Question   string
	BuildingID string
	Priority   *int
}

type AnalysisService struct {
	analyzer     *analysis.Analyzer
	router       *jobs.Router
	extractor    DocumentExtractor
	jobService   *JobService
	cfg          *config.Config
	quickTimeout time.Duration
	logger       *zap.Logger
}

func NewAnalysisService(
	analyzer *analysis.Analyzer,
	router *jobs.Router,
	extractor DocumentExtractor,
	jobService *JobService,
	cfg *config.Config,
	logger *zap.Logger,
) *AnalysisService {
	timeout := cfg.Router.QuickTimeout
	if timeout <= 0 {
		timeout = defaultQuickTimeout
	}
	return &AnalysisService{
		analyzer:     analyzer,
		router:       router,
		extractor:    extractor,
		jobService:   jobService,
		cfg:          cfg,
		quickTimeout: timeout,
		logger:       logger,
	}
}

// QuickAnalyze 对调用方已经提取好的文本直接回答问题
func (s *AnalysisService) QuickAnalyze(ctx context.Context, req *dto.AnalyzeRequest) (*model.AnalysisResult, error) {
	in := analysis.Input{
		Question: req.Question,
		Text:     req.DocumentText,
	}
	if m := req.DocumentMetadata; m != nil {
		if m.OCRConfidence != nil && (*m.OCRConfidence < 0 || *m.OCRConfidence > 1) {
			return nil, &analysis.ValidationError{Field: "ocrConfidence", Reason: "must be between 0 and 1"}
		}
		in.Filename = m.Filename
		in.ProcessingEngine = m.ProcessingEngine
		in.OCRConfidence = m.OCRConfidence
	}

	out, err := s.analyzer.Analyze(ctx, in)
	if err != nil {
		return nil, err
	}
	return out.Result, nil
}

// SubmitDocument 根据路由决策即时分析或转入后台任务
func (s *AnalysisService) SubmitDocument(ctx context.Context, userID string, in *SubmitDocumentInput) (*dto.SubmitDocumentResponse, error) {
	if strings.TrimSpace(in.Question) == "" {
		return nil, &analysis.ValidationError{Field: "question", Reason: "must not be empty"}
	}
	if len(in.Data) == 0 {
		return nil, ErrEmptyFile
	}
	if limit := s.cfg.Server.MaxUploadBytes; limit > 0 && int64(len(in.Data)) > limit {
		return nil, ErrFileTooLarge
	}

	mime := ocr.DetectMIME(in.Filename, in.FileType, in.Data)
	decision := s.router.Decide(ctx, jobs.FileInfo{
		Filename: in.Filename,
		MIME:     mime,
		Size:     int64(len(in.Data)),
		Data:     in.Data,
	}, in.Question)

	resp := &dto.SubmitDocumentResponse{
		Path:         string(decision.Path),
		Reason:       decision.Reason,
		PageEstimate: decision.PageEstimate,
	}

	if decision.Path == jobs.PathQuick {
		result, err := s.quick(ctx, in, mime)
		if err != nil {
			return nil, err
		}
		resp.Result = result
		return resp, nil
	}

	job, err := s.jobService.Submit(ctx, userID, &SubmitJobInput{
		Filename:    in.Filename,
		FileType:    mime,
		Data:        in.Data,
		Question:    in.Question,
		BuildingID:  in.BuildingID,
		Priority:    in.Priority,
		RouteReason: decision.Reason,
	})
	if err != nil {
		return nil, err
	}
	resp.JobID = job.ID
	resp.Message = backgroundMessage(in.Filename, job.FileSize)
	resp.Alternatives = jobs.Alternatives(in.Question)
	return resp, nil
}

// quick 在超时内完成 OCR 和分析，OCR 失败时返回低置信度的降级结果
func (s *AnalysisService) quick(ctx context.Context, in *SubmitDocumentInput, mime string) (*model.AnalysisResult, error) {
	qctx, cancel := context.WithTimeout(ctx, s.quickTimeout)
	defer cancel()

	extracted, err := s.extractor.Extract(qctx, ocr.Document{
		Data:     in.Data,
		Filename: in.Filename,
		MIME:     mime,
	})
	if err != nil {
		s.logger.Warn("quick path extraction failed",
			zap.String("filename", in.Filename),
			zap.Error(err),
		)
		return analysis.FallbackResult(in.Question, in.Filename, "", err), nil
	}

	out, err := s.analyzer.Analyze(qctx, analysis.Input{
		Question:         in.Question,
		Text:             extracted.Text,
		Filename:         in.Filename,
		ProcessingEngine: extracted.Engine,
	})
	if err != nil {
		return nil, err
	}
	return out.Result, nil
}

func backgroundMessage(filename string, size int64) string {
	return fmt.Sprintf("This lease document (%s, %.1fMB) needs a more thorough analysis, so it has been queued for background processing. "+
		"It should be ready in approximately 5-10 minutes and you will be notified when the full analysis, key terms and the answer to your question are available. "+
		"In the meantime, ask a specific question or try one of the suggestions below.",
		filename, float64(size)/(1024*1024))
}
