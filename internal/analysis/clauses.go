package analysis

import (
	"regexp"
	"sort"
	"strings"

	"github.com/qs3c/lease_go_server/internal/model"
)

const (
	DefaultMaxClauses = 10

	patternWeight         = 30
	clauseKeywordWeight   = 10
	scheduleKeywordWeight = 15
	clauseThreshold       = 15
	scheduleThreshold     = 10
)

func mustCompileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// categoryPatterns 分类到条款正则的静态映射，启动时编译一次
var categoryPatterns = map[model.Category][]*regexp.Regexp{
	model.CategoryMaintenanceRepairs: mustCompileAll(
		`(?:landlord|tenant).*(?:maintain|repair|keep in repair)`,
		`(?:maintenance|repair).*(?:common parts|structure)`,
		`service charge.*(?:maintenance|repair)`,
	),
	model.CategoryFinancialObligations: mustCompileAll(
		`rent.*payable.*£?\d+`,
		`service charge.*£?\d+`,
		`ground rent.*£?\d+`,
		`payment.*due.*date`,
	),
	model.CategoryAlterations: mustCompileAll(
		`alter(?:ation)?.*consent`,
		`change.*property.*consent`,
		`structural.*alteration`,
	),
	model.CategoryAssignmentSubletting: mustCompileAll(
		`assign(?:ment)?.*consent`,
		`sublet(?:ting)?.*consent`,
		`transfer.*lease`,
	),
	model.CategoryPermittedUse: mustCompileAll(
		`use.*premises.*for`,
		`occupation.*building`,
		`commercial.*use`,
		`residential.*use`,
	),
	model.CategoryPets: mustCompileAll(
		`pets?\b.*(?:consent|permission|keep)`,
		`(?:keep|keeping).*(?:pets?|animals?|dogs?|cats?)`,
		`(?:dogs?|cats?|birds?|animals?).*consent`,
		`animals?.*keep`,
	),
	model.CategoryTerminationNotice: mustCompileAll(
		`notice.*quit`,
		`terminate.*lease`,
		`expiry.*term`,
	),
	model.CategoryGeneral: mustCompileAll(`.`),
}

var catchAllPatterns = mustCompileAll(`.`)

// PatternsFor 返回分类对应的条款正则，未知分类使用兜底正则
func PatternsFor(c model.Category) []*regexp.Regexp {
	if p, ok := categoryPatterns[c]; ok {
		return p
	}
	return catchAllPatterns
}

var stopWords = map[string]struct{}{
	"who": {}, "what": {}, "when": {}, "where": {}, "how": {},
	"is": {}, "are": {}, "the": {}, "a": {}, "an": {},
	"and": {}, "or": {}, "but": {}, "in": {}, "on": {},
	"at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
}

// Keywords 问题分词：小写、去停用词、去掉长度不超过 2 的词
func Keywords(question string) []string {
	var out []string
	for _, tok := range strings.Fields(strings.ToLower(question)) {
		tok = strings.Trim(tok, `?!.,;:"'()`)
		if len(tok) <= 2 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

var (
	numberedClauseRe = regexp.MustCompile(`(\d+(?:\.\d+)*)(?:\.\s*|\s+)([^.]{50,500})`)
	scheduleRe       = regexp.MustCompile(`(?i)schedule\s+([ivx\d]+)[^.]{100,800}`)
)

// ClauseExtractor 从全文中抽取并排序与问题相关的条款
type ClauseExtractor struct {
	maxClauses int
}

func NewClauseExtractor(maxClauses int) *ClauseExtractor {
	if maxClauses <= 0 {
		maxClauses = DefaultMaxClauses
	}
	return &ClauseExtractor{maxClauses: maxClauses}
}

// Extract 返回按相关度降序排列的候选条款
func (e *ClauseExtractor) Extract(text, question string, category model.Category) []model.ExtractedClause {
	patterns := PatternsFor(category)
	keywords := Keywords(question)

	var clauses []model.ExtractedClause

	for _, m := range numberedClauseRe.FindAllStringSubmatch(text, -1) {
		body := strings.TrimSpace(m[2])
		relevance := 0
		for _, p := range patterns {
			if p.MatchString(body) {
				relevance += patternWeight
			}
		}
		relevance += clauseKeywordWeight * countKeywords(body, keywords)
		if relevance > clauseThreshold {
			clauses = append(clauses, model.ExtractedClause{
				Number:    m[1],
				Text:      body,
				Relevance: relevance,
				Type:      model.ClauseNumbered,
			})
		}
	}

	for _, m := range scheduleRe.FindAllStringSubmatch(text, -1) {
		block := strings.TrimSpace(m[0])
		relevance := scheduleKeywordWeight * countKeywords(block, keywords)
		if relevance > scheduleThreshold {
			clauses = append(clauses, model.ExtractedClause{
				Number:    "Schedule " + strings.ToUpper(m[1]),
				Text:      block,
				Relevance: relevance,
				Type:      model.ClauseSchedule,
			})
		}
	}

	sort.SliceStable(clauses, func(i, j int) bool {
		return clauses[i].Relevance > clauses[j].Relevance
	})
	if len(clauses) > e.maxClauses {
		clauses = clauses[:e.maxClauses]
	}
	return clauses
}

func countKeywords(body string, keywords []string) int {
	lower := strings.ToLower(body)
	n := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			n++
		}
	}
	return n
}
