package verify

import (
	"fmt"
	"strings"

	"github.com/abhisek/instructoria/internal/lesson"
	"github.com/abhisek/instructoria/internal/llm"
)

const graderSystemPrompt = `You are an expert pedagogical evaluator. You decide whether a student's answer demonstrates understanding of a topic. You answer with JSON only.`

// BuildPrompt renders the grading request. It carries no conversation
// history: the grader sees the rubric and the latest answer only.
func BuildPrompt(message string, a *lesson.Activity) string {
	var b strings.Builder

	fmt.Fprintf(&b, "TOPIC: %s\n\n", a.Teaching.MainTopic)
	fmt.Fprintf(&b, "VERIFICATION QUESTION: %s\n\n", a.Verification.Question)

	b.WriteString("ACCEPTANCE CRITERIA (the student must demonstrate ALL of them):\n")
	for i, c := range a.Verification.Criteria {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c)
	}

	fmt.Fprintf(&b, "\nSTUDENT ANSWER:\n%q\n\n", message)

	b.WriteString(`TASK:
Evaluate whether the student's answer satisfies ALL acceptance criteria.

Respond with a JSON object with EXACTLY this structure:
{
  "completed": boolean,
  "criteriaMatched": [criteria that are satisfied, copied verbatim],
  "criteriaMissing": [criteria that are not satisfied, copied verbatim],
  "feedback": "short feedback for the student (at most 2 sentences)",
  "confidence": "high" | "medium" | "low"
}

RULES:
- "completed" is true ONLY when every criterion is satisfied
- Be strict but fair: the student must show real understanding
- Feedback is constructive and does not repeat the criteria
- confidence is "high" when clear, "medium" when in doubt, "low" when ambiguous

Respond with the JSON only, no additional text.`)

	return b.String()
}

// VerdictSchema is the shape a grading response must have.
var VerdictSchema = &llm.Schema{
	Name:        "completion-verdict",
	Description: "Whether a student's answer satisfies every rubric criterion",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"completed": map[string]any{
				"type": "boolean",
			},
			"criteriaMatched": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"criteriaMissing": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"feedback": map[string]any{
				"type": "string",
			},
			"confidence": map[string]any{
				"type": "string",
				"enum": []any{"high", "medium", "low"},
			},
		},
		"required": []any{"completed", "criteriaMatched", "criteriaMissing", "feedback", "confidence"},
	},
}
