package model

// Category 问题语义分类
type Category string

const (
	CategoryMaintenanceRepairs   Category = "maintenance_repairs"
	CategoryFinancialObligations Category = "financial_obligations"
	CategoryAlterations          Category = "alterations"
	CategoryAssignmentSubletting Category = "assignment_subletting"
	CategoryPermittedUse         Category = "permitted_use"
	CategoryPets                 Category = "pets"
	CategoryTerminationNotice    Category = "termination_notice"
	CategoryGeneral              Category = "general"
)

// QualityLevel OCR 文本质量等级
type QualityLevel string

const (
	QualityGood QualityLevel = "good"
	QualityFair QualityLevel = "fair"
	QualityPoor QualityLevel = "poor"
)

// ConfidenceLevel 置信度区间
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "High"
	ConfidenceMedium ConfidenceLevel = "Medium"
	ConfidenceLow    ConfidenceLevel = "Low"
)

// ClauseType 条款来源类型
type ClauseType string

const (
	ClauseNumbered ClauseType = "numbered_clause"
	ClauseSchedule ClauseType = "schedule"
)

// Quality 文本质量评估结果
type Quality struct {
	Score     int          `json:"score"`
	Level     QualityLevel `json:"level"`
	Issues    []string     `json:"issues"`
	ErrorRate float64      `json:"error_rate"`
	WordCount int          `json:"word_count"`
}

// ExtractedClause 单次分析中抽取出的候选条款，不落库
type ExtractedClause struct {
	Number    string     `json:"number,omitempty"`
	Text      string     `json:"text"`
	Relevance int        `json:"relevance"`
	Type      ClauseType `json:"type"`
}

// Citation 答案引用的条款位置
type Citation struct {
	Clause    string `json:"clause"`
	Schedule  string `json:"schedule,omitempty"`
	Paragraph string `json:"paragraph,omitempty"`
	Text      string `json:"text"`
}

// DocumentInfo 被分析文档的元信息
type DocumentInfo struct {
	Filename         string   `json:"filename,omitempty"`
	ExtractedLength  int      `json:"extracted_length"`
	Quality          Quality  `json:"quality"`
	ProcessingEngine string   `json:"processing_engine"`
	Issues           []string `json:"issues"`
}

// AnalysisResult 问题分析的结构化输出
type AnalysisResult struct {
	Answer                string            `json:"answer"`
	Citations             []Citation        `json:"citations"`
	Confidence            int               `json:"confidence"`
	ConfidenceLevel       ConfidenceLevel   `json:"confidence_level"`
	Category              Category          `json:"category"`
	LegalContext          string            `json:"legal_context,omitempty"`
	PracticalImplications string            `json:"practical_implications,omitempty"`
	DocumentInfo          DocumentInfo      `json:"document_info"`
	RelevantClauses       []ExtractedClause `json:"relevant_clauses,omitempty"`
	Degraded              bool              `json:"degraded"`
}

// LeaseClause 租约摘要中的关键条款
type LeaseClause struct {
	Term  string `json:"term"`
	Text  string `json:"text"`
	Value string `json:"value,omitempty"`
}

// KeyTerms 租约关键字段
type KeyTerms struct {
	MonthlyRent     string `json:"monthlyRent,omitempty"`
	TenantName      string `json:"tenantName,omitempty"`
	LandlordName    string `json:"landlordName,omitempty"`
	PropertyAddress string `json:"propertyAddress,omitempty"`
	LeaseStartDate  string `json:"leaseStartDate,omitempty"`
	LeaseEndDate    string `json:"leaseEndDate,omitempty"`
	DepositAmount   string `json:"depositAmount,omitempty"`
}

// LeaseSummary 后台任务生成的租约摘要
type LeaseSummary struct {
	Summary  string        `json:"summary"`
	Clauses  []LeaseClause `json:"clauses"`
	KeyTerms KeyTerms      `json:"keyTerms"`
}
