package ai

import (
	"strings"

	"github.com/zhouzirui/z-interview/backend/internal/model/interview"
)

// PromptBuilder 用受访者信息填充访谈者的系统提示词。
type PromptBuilder struct {
	template string
}

// NewPromptBuilder creates a builder for a template containing {name} and
// {company} placeholders.
func NewPromptBuilder(template string) *PromptBuilder {
	return &PromptBuilder{template: template}
}

// BuildSystemPrompt personalizes the template for r. Unknown placeholders are left as-is.
func (pb *PromptBuilder) BuildSystemPrompt(r interview.Respondent) string {
	replacer := strings.NewReplacer(
		"{name}", strings.TrimSpace(r.Name),
		"{company}", strings.TrimSpace(r.Company),
		"{student_number}", strings.TrimSpace(r.StudentNumber),
	)
	return replacer.Replace(pb.template)
}
