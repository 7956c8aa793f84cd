package genai

import (
	"fmt"
	"strings"

	"snapquiz-service/internal/domain"
)

const quizSystemPrompt = `You are a study assistant. You receive a photograph of study material.
Extract the key educational concepts that are actually visible in the text,
write a short title for the material, and produce 3 to 5 question/answer
pairs strictly grounded in the visible text. For each pair include the
excerpt of the original text the question was drawn from. Never invent facts
that are not on the page.`

const quizUserPrompt = `Create a quiz from this photo of study material.`

// quizSchema constrains the model to the quiz set shape; IDs and timestamps
// are assigned locally, never by the model.
func quizSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"title", "items"},
		"properties": map[string]any{
			"title": map[string]any{"type": "string"},
			"items": map[string]any{
				"type":     "array",
				"minItems": 3,
				"maxItems": 5,
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []string{"question", "answer"},
					"properties": map[string]any{
						"question":        map[string]any{"type": "string"},
						"answer":          map[string]any{"type": "string"},
						"originalContext": map[string]any{"type": "string"},
					},
				},
			},
		},
	}
}

const hintSystemPrompt = `You are a quiz hint writer. You produce exactly one short hint for the
question you are given, at the requested escalation level, and nothing else.
Never state the answer itself.`

// hintInstruction renders the level-specific contract. The tiers are a
// quality contract fed to the model, not something the caller can verify
// beyond "non-empty and not the literal answer".
func hintInstruction(level domain.HintLevel) string {
	switch level {
	case domain.HintConceptual:
		return `Level 1 hint: do not use the answer or any word contained in it.
Describe an abstract property or analogy, not an identity. Keep it to about
20 characters of text.`
	case domain.HintAttribute:
		return `Level 2 hint: you may name one concrete attribute of the answer (its
era, place, category, color, or usage) without stating the answer. Keep it
to about 30 characters of text.`
	default:
		return `Level 3 hint: you may reveal the first character or word of the
answer, its length, or a masked form with the answer obscured. You must not
output the literal answer.`
	}
}

func hintUserPrompt(question, answer string, level domain.HintLevel, sourceContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\nAnswer (never reveal verbatim): %s\n", question, answer)
	if sourceContext != "" {
		fmt.Fprintf(&b, "Source excerpt: %s\n", sourceContext)
	}
	b.WriteString(hintInstruction(level))
	return b.String()
}
