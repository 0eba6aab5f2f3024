package analysis

import (
	"strings"

	"github.com/qs3c/lease_go_server/internal/model"
)

type categoryRule struct {
	category model.Category
	keywords []string
}

// 顺序即优先级，一个问题可能命中多个分类
var categoryRules = []categoryRule{
	{model.CategoryMaintenanceRepairs, []string{"maintain", "repair", "common parts"}},
	{model.CategoryFinancialObligations, []string{"rent", "service charge", "payment"}},
	{model.CategoryAlterations, []string{"alter", "change", "modify"}},
	{model.CategoryAssignmentSubletting, []string{"assign", "sublet", "transfer"}},
	{model.CategoryPermittedUse, []string{"use", "business", "commercial"}},
	{model.CategoryPets, []string{"pet", "animal"}},
	{model.CategoryTerminationNotice, []string{"notice", "termination"}},
}

// ClassifyQuestion 将问题映射到固定分类，第一个命中的规则生效
func ClassifyQuestion(question string) model.Category {
	q := strings.ToLower(question)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(q, kw) {
				return rule.category
			}
		}
	}
	return model.CategoryGeneral
}
