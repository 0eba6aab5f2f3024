package jobs

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/qs3c/lease_go_server/config"
	"github.com/qs3c/lease_go_server/internal/ocr"
)

// Path 处理路径
type Path string

const (
	PathQuick      Path = "quick"
	PathBackground Path = "background"
)

// 路由原因
const (
	ReasonFileTooLarge  = "file_too_large"
	ReasonTooManyPages  = "too_many_pages"
	ReasonBroadQuestion = "broad_question"
	ReasonNotTargeted   = "not_targeted"
	ReasonQuickEligible = "quick_eligible"
)

const (
	DefaultMaxQuickBytes = 5 << 20
	DefaultTargetedBytes = 2 << 20
	DefaultMaxQuickPages = 10
)

var (
	broadQuestion    = regexp.MustCompile(`(?i)(summary|summari[sz]e|overview|all clauses|key terms|everything|full analysis|entire)`)
	targetedQuestion = regexp.MustCompile(`(?i)(page\s+\d+|first page|last page|signature|parties|tenant|landlord|rent amount|monthly rent|address|date)`)
)

// FileInfo 上传文件的元信息；Data 可为空，此时页数按大小估算
type FileInfo struct {
	Filename string
	MIME     string
	Size     int64
	Data     []byte
}

func (f FileInfo) mime() string {
	return ocr.DetectMIME(f.Filename, f.MIME, f.Data)
}

// Decision 路由结果
type Decision struct {
	Path         Path   `json:"path"`
	Reason       string `json:"reason"`
	PageEstimate int    `json:"page_estimate"`
}

type Router struct {
	cfg    config.RouterConfig
	pages  PageCounter
	logger *zap.Logger
}

func NewRouter(cfg config.RouterConfig, pages PageCounter, logger *zap.Logger) *Router {
	if cfg.MaxQuickBytes <= 0 {
		cfg.MaxQuickBytes = DefaultMaxQuickBytes
	}
	if cfg.TargetedBytes <= 0 {
		cfg.TargetedBytes = DefaultTargetedBytes
	}
	if cfg.MaxQuickPages <= 0 {
		cfg.MaxQuickPages = DefaultMaxQuickPages
	}
	if pages == nil {
		pages = NewDocumentPageCounter(cfg.BytesPerPage, logger)
	}
	return &Router{cfg: cfg, pages: pages, logger: logger}
}

// Decide 依次检查: 文件大小、页数、宽泛问题、非定向问题
func (r *Router) Decide(_ context.Context, f FileInfo, question string) Decision {
	d := r.decide(f, question)
	r.logger.Info("routing decision",
		zap.String("filename", f.Filename),
		zap.Int64("size", f.Size),
		zap.String("path", string(d.Path)),
		zap.String("reason", d.Reason),
		zap.Int("pages", d.PageEstimate),
	)
	return d
}

func (r *Router) decide(f FileInfo, question string) Decision {
	if f.Size > r.cfg.MaxQuickBytes {
		return Decision{Path: PathBackground, Reason: ReasonFileTooLarge}
	}

	mime := f.mime()
	pages := 1
	if ocr.IsPDF(mime) || ocr.IsWord(mime) {
		pages = r.pages.Count(f)
		if pages > r.cfg.MaxQuickPages {
			return Decision{Path: PathBackground, Reason: ReasonTooManyPages, PageEstimate: pages}
		}
	}

	if IsBroadQuestion(question) {
		return Decision{Path: PathBackground, Reason: ReasonBroadQuestion, PageEstimate: pages}
	}

	if f.Size > r.cfg.TargetedBytes && !IsTargetedQuestion(question) {
		return Decision{Path: PathBackground, Reason: ReasonNotTargeted, PageEstimate: pages}
	}

	return Decision{Path: PathQuick, Reason: ReasonQuickEligible, PageEstimate: pages}
}

// IsBroadQuestion 概要类问题
func IsBroadQuestion(question string) bool {
	return broadQuestion.MatchString(question)
}

// IsTargetedQuestion 定位到具体页面或字段的问题
func IsTargetedQuestion(question string) bool {
	return targetedQuestion.MatchString(question)
}

// Alternatives 转入后台处理时给用户的即时建议，最多 4 条
func Alternatives(question string) []string {
	alternatives := []string{
		"Ask about a specific page number (e.g., 'What's on page 1?')",
		"Focus on a particular section (e.g., 'rent section', 'signature page')",
		"Ask for general lease advice or terminology explanations",
		"Upload just the relevant page if you know where the information is",
	}

	q := strings.ToLower(question)
	var specific []string
	if strings.Contains(q, "date") {
		specific = append(specific, "Look for dates on the signature page or lease term section")
	}
	if strings.Contains(q, "tenant") || strings.Contains(q, "landlord") {
		specific = append(specific, "Check the signature page or first page for party names")
	}
	if strings.Contains(q, "rent") {
		specific = append(specific, "Ask specifically about the rent amount if you know which page it's on")
	}

	return append(specific, alternatives...)[:4]
}
