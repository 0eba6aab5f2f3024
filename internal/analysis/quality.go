package analysis

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/qs3c/lease_go_server/internal/model"
)

const (
	veryShortLength  = 1000
	incompleteLength = 3000
	maxErrorRate     = 0.05
	minQualityScore  = 10
)

var (
	leaseTermRe = regexp.MustCompile(`(?i)lease|tenancy`)
	yearRe      = regexp.MustCompile(`\d{4}`)
	currencyRe  = regexp.MustCompile(`(?i)[£$€]|\b(?:pounds?|gbp|sterling)\b`)
	noiseRe     = regexp.MustCompile(`[^\w\s£.,;:()\-"'\n\r]`)
)

// AssessQuality 评估 OCR 文本是否可用于分析
func AssessQuality(text string) model.Quality {
	score := 100
	issues := []string{}
	length := utf8.RuneCountInString(text)

	if length < veryShortLength {
		score -= 30
		issues = append(issues, "Document appears very short")
	} else if length < incompleteLength {
		score -= 15
		issues = append(issues, "Document may be incomplete")
	}

	if !leaseTermRe.MatchString(text) {
		score -= 20
		issues = append(issues, "May not be a lease document")
	}

	if !yearRe.MatchString(text) {
		score -= 10
		issues = append(issues, "No dates found")
	}

	if !currencyRe.MatchString(text) {
		score -= 10
		issues = append(issues, "No financial terms found")
	}

	errorRate := 0.0
	if length > 0 {
		errorRate = float64(len(noiseRe.FindAllStringIndex(text, -1))) / float64(length)
	}
	if errorRate > maxErrorRate {
		score -= 15
		issues = append(issues, "High OCR error rate detected")
	}

	if score < minQualityScore {
		score = minQualityScore
	}

	return model.Quality{
		Score:     score,
		Level:     qualityLevel(score),
		Issues:    issues,
		ErrorRate: errorRate,
		WordCount: len(strings.Fields(text)),
	}
}

func qualityLevel(score int) model.QualityLevel {
	switch {
	case score >= 80:
		return model.QualityGood
	case score >= 60:
		return model.QualityFair
	default:
		return model.QualityPoor
	}
}
