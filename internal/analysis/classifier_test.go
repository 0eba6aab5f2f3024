package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/qs3c/lease_go_server/internal/model"
)

func TestClassifyQuestion(t *testing.T) {
	tests := []struct {
		question string
		want     model.Category
	}{
		{"Can I sublet my flat?", model.CategoryAssignmentSubletting},
		{"What is the ground rent?", model.CategoryFinancialObligations},
		{"Tell me about parking", model.CategoryGeneral},
		{"Who is responsible for repairs to the roof?", model.CategoryMaintenanceRepairs},
		{"WHO MUST MAINTAIN THE COMMON PARTS?", model.CategoryMaintenanceRepairs},
		{"Can I modify the kitchen?", model.CategoryAlterations},
		{"Can I run a business from the flat?", model.CategoryPermittedUse},
		{"Can I keep a pet?", model.CategoryPets},
		{"Are animals allowed?", model.CategoryPets},
		// 只按 pet/animal 归类，具体动物名落入 general
		{"Can I keep a dog?", model.CategoryGeneral},
		{"How much notice do I need to give?", model.CategoryTerminationNotice},
		// maintenance 优先于 financial
		{"Does the service charge cover repairs?", model.CategoryMaintenanceRepairs},
		{"", model.CategoryGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyQuestion(tt.question))
		})
	}
}
