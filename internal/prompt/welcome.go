package prompt

import (
	"fmt"
	"strings"

	"github.com/abhisek/instructoria/internal/lesson"
)

// WrapUp renders the system instruction used once every activity is
// complete. No verification runs in that state.
func WrapUp(doc *lesson.Content) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert instructor. The student has completed every activity of the lesson %q.\n\n", doc.Metadata.Title)
	b.WriteString("## TOPICS COVERED\n")
	for i, o := range doc.Objectives() {
		fmt.Fprintf(&b, "%d. %s\n", i+1, o)
	}
	b.WriteString(`
## YOUR ROLE NOW
- Answer follow-up questions about the topics above clearly and briefly.
- Do not introduce new material or start new activities.
- If the student asks about something outside the lesson, say so and suggest what to study next.
`)
	return b.String()
}

// Welcome renders the user turn that asks the tutor to open the lesson.
// The system instruction for that call is Compose on the first activity.
func Welcome(doc *lesson.Content) string {
	first := doc.First()
	opening := ""
	if first != nil {
		opening = first.Activity.Teaching.MainTopic
		if kp := first.Activity.Teaching.KeyPoints; len(kp) > 0 {
			opening = kp[0]
		}
	}

	var b strings.Builder
	b.WriteString("THIS IS THE FIRST MESSAGE OF THE LESSON.\n\n")
	b.WriteString("Give a warm welcome and START TEACHING IMMEDIATELY.\n\n")
	b.WriteString("Structure your message exactly like this:\n\n")
	b.WriteString("1. A friendly greeting that links directly to the lesson objectives.\n\n")
	b.WriteString("2. The lesson objectives table (copy it exactly):\n")
	b.WriteString(ObjectivesTable(doc))
	fmt.Fprintf(&b, "\n3. Explain why it makes sense to begin with: %s\n\n", opening)
	b.WriteString("4. One short, direct engagement question.\n\n")
	b.WriteString(`Important:
- The table must always appear.
- Keep a conversational, friendly tone.
- Be proactive; do not wait for the student to ask.

Write the welcome message now.`)
	return b.String()
}

// ObjectivesTable renders one markdown row per activity main topic.
func ObjectivesTable(doc *lesson.Content) string {
	var b strings.Builder
	b.WriteString("| # | Objective |\n|---|---|\n")
	for i, o := range doc.Objectives() {
		fmt.Fprintf(&b, "| %d | %s |\n", i+1, o)
	}
	return b.String()
}
