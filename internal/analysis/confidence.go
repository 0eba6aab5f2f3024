package analysis

import (
	"strings"
	"unicode/utf8"

	"github.com/qs3c/lease_go_server/internal/model"
)

const (
	minConfidence = 15
	maxConfidence = 95

	// 降级结果的置信度上限
	UnavailableConfidence  = 15
	MalformedConfidenceCap = 40
)

// ScoreConfidence 对生成结果做独立的交叉校验打分，不读取模型自报的置信度
func ScoreConfidence(a Generated, clauses []model.ExtractedClause, q model.Quality, textLength int) int {
	score := 20

	switch q.Level {
	case model.QualityGood:
		score += 30
	case model.QualityFair:
		score += 20
	default:
		score += 10
	}

	if len(clauses) >= 1 {
		score += 25
	}
	if len(clauses) > 3 {
		score += 10
	}

	if utf8.RuneCountInString(a.Answer) > 100 {
		score += 15
	}
	if len(a.Citations) >= 1 {
		score += 10
	}
	if strings.TrimSpace(a.LegalContext) != "" {
		score += 5
	}

	if textLength > 3000 {
		score += 5
	}
	if textLength > 8000 {
		score += 5
	}

	return clamp(score, minConfidence, maxConfidence)
}

// ConfidenceBand 置信度分档
func ConfidenceBand(score int) model.ConfidenceLevel {
	switch {
	case score >= 80:
		return model.ConfidenceHigh
	case score >= 60:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
