package retrieval

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"resume-screener/internal/constants"
)

const (
	systemPrompt = "You are an intelligent resume analysis agent."

	userPromptTemplate = `Use the following extracted content from a candidate's resume to answer the question.

Resume Content:
{context}

Question:
{question}

Respond with a detailed, professional answer.`

	personaTemplate = `You are a resume evaluation assistant for a hiring manager looking to fill the role of %s.
Provide constructive, detailed feedback for the candidate on how they can better tailor their resume to this role.
Focus on:
- Relevant technical and soft skills
- Achievements or metrics
- Missing keywords
- Alignment with role expectations`
)

// NewAnswerTemplate 构建问答模板，变量为 context 与 question
func NewAnswerTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userPromptTemplate),
	)
}

// PersonaPrompt 生成面向岗位的反馈问题，role 为空时使用通用称呼
func PersonaPrompt(role string) string {
	role = strings.TrimSpace(role)
	if role == "" {
		role = constants.DefaultRole
	}
	return fmt.Sprintf(personaTemplate, role)
}

// joinContext 按检索顺序用空行拼接分块内容
func joinContext(docs []*schema.Document) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		parts = append(parts, d.Content)
	}
	return strings.Join(parts, "\n\n")
}
