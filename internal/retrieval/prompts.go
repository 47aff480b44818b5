package retrieval

import (
	"fmt"
	"strings"

	"edu-rag-go/internal/model"
)

const notInMaterial = `If the information is not in the context, say "This information is not in your uploaded material"`

const teachPrompt = `You are an educational tutor teaching a student from the beginning.

CONTEXT:
- Subject: %s
- Unit: %s

UNIT OVERVIEW:
%s

STUDENT'S REQUEST: %s

INSTRUCTIONS:
1. Teach the material step by step, as if the student is new
2. Start with foundational concepts before moving to complex ones
3. ONLY use information from the provided context
4. ` + notInMaterial + `
5. Be encouraging and supportive
%s
RESPONSE:`

const explainTopicPrompt = `You are an educational tutor explaining a topic.

CONTEXT:
- Subject: %s
- Unit: %s
- Topic: %s

TOPIC SUMMARY:
%s

DETAILED CONTENT:
%s

STUDENT'S QUESTION: %s

INSTRUCTIONS:
1. Provide a clear, comprehensive explanation of the topic
2. Use the summary for overview and the detailed content for specifics
3. ONLY use information from the provided context
4. ` + notInMaterial + `
5. Structure your response logically
%s
RESPONSE:`

const explainDetailPrompt = `You are an educational tutor explaining a specific concept in detail.

CONTEXT:
- Subject: %s
- Unit: %s
- Topic: %s

RELEVANT CONTENT:
%s

STUDENT'S QUESTION: %s

INSTRUCTIONS:
1. Provide a detailed, step-by-step explanation
2. Focus on the specific concept the student is asking about
3. ONLY use information from the provided context
4. ` + notInMaterial + `
5. Be thorough but clear
%s
RESPONSE:`

const revisePrompt = `You are an educational tutor helping a student revise.

CONTEXT:
- Subject: %s
- Unit: %s

UNIT SUMMARY:
%s

STUDENT'S REQUEST: %s

INSTRUCTIONS:
1. Help the student review the key concepts
2. Highlight important points they should remember
3. ONLY use information from the provided context
4. ` + notInMaterial + `
5. Be concise but comprehensive
%s
RESPONSE:`

const questionsPrompt = `You are an educational tutor creating practice questions.

CONTEXT:
- Subject: %s
- Unit: %s
- Topic: %s

CONTENT FOR QUESTIONS:
%s

STUDENT'S REQUEST: %s

INSTRUCTIONS:
1. Generate practice questions based ONLY on the provided content
2. Include a mix of question types (conceptual, application, etc.)
3. Provide brief answers or answer guidelines
4. If there's not enough content for questions, say "Not enough content to generate meaningful questions"
5. Questions should test understanding, not memorization
%s
RESPONSE:`

// PromptInput 是渲染回答 prompt 所需的内容。
type PromptInput struct {
	Intent      model.Intent
	Query       string
	SubjectName string
	UnitTitle   string
	TopicTitle  string
	Items       []ContextItem
	Rules       string
}

// RenderPrompt 按意图渲染回答 prompt。Items 已经按相关度排好，渲染时保持顺序。
func RenderPrompt(in PromptInput) string {
	rules := ""
	if r := strings.TrimSpace(in.Rules); r != "" {
		rules = "\nADDITIONAL RULES:\n" + r + "\n"
	}
	subject, unit, topic := orNA(in.SubjectName), orNA(in.UnitTitle), orNA(in.TopicTitle)

	switch in.Intent {
	case model.IntentTeachFromStart:
		return fmt.Sprintf(teachPrompt, subject, unit, join(in.Items, nil), in.Query, rules)
	case model.IntentRevise:
		return fmt.Sprintf(revisePrompt, subject, unit, join(in.Items, nil), in.Query, rules)
	case model.IntentExplainTopic:
		summaries := join(in.Items, func(it ContextItem) bool { return it.Kind == model.ProvenanceTopicSummary })
		passages := join(in.Items, func(it ContextItem) bool { return it.Kind == model.ProvenancePassage })
		return fmt.Sprintf(explainTopicPrompt, subject, unit, topic, orNA(summaries), orNA(passages), in.Query, rules)
	case model.IntentGenerateQuestions:
		return fmt.Sprintf(questionsPrompt, subject, unit, topic, join(in.Items, nil), in.Query, rules)
	default:
		return fmt.Sprintf(explainDetailPrompt, subject, unit, topic, join(in.Items, nil), in.Query, rules)
	}
}

func join(items []ContextItem, keep func(ContextItem) bool) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		if keep != nil && !keep(it) {
			continue
		}
		parts = append(parts, it.Text)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
