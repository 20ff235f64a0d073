// Package prompt builds the tutoring model's system instruction from the
// lesson, the student's progress and the latest grading verdict.
//
// Every function here is pure: identical inputs produce byte-identical
// output.
package prompt

import (
	"fmt"
	"strings"

	"github.com/abhisek/instructoria/internal/lesson"
	"github.com/abhisek/instructoria/internal/verify"
)

// Config holds the progressive hint policy.
type Config struct {
	// MinAttemptsBeforeHint is the attempt count at which hints start.
	MinAttemptsBeforeHint int

	// HintFrequency is how many attempts each hint lasts.
	HintFrequency int
}

// DefaultConfig returns the hint defaults.
func DefaultConfig() Config {
	return Config{
		MinAttemptsBeforeHint: 2,
		HintFrequency:         2,
	}
}

// Input is everything the composer needs for one tutoring turn.
type Input struct {
	Doc     *lesson.Content
	Current *lesson.Located

	// Verdict is nil before the student has answered anything.
	Verdict *verify.Verdict

	Attempts             int
	TangentCount         int
	CompletedActivityIDs []string
}

// Composer renders system instructions.
type Composer struct {
	cfg Config
}

func New(cfg Config) *Composer {
	if cfg.HintFrequency <= 0 {
		cfg.HintFrequency = DefaultConfig().HintFrequency
	}
	if cfg.MinAttemptsBeforeHint < 0 {
		cfg.MinAttemptsBeforeHint = 0
	}
	return &Composer{cfg: cfg}
}

// Config returns the composer's hint policy.
func (c *Composer) Config() Config { return c.cfg }

// Compose renders the system instruction for a tutoring reply.
func (c *Composer) Compose(in Input) string {
	a := in.Current.Activity
	total := in.Doc.TotalActivities()
	var b strings.Builder

	writeFraming(&b, in.Doc, in.Current, total)
	writeCompleted(&b, in.Doc, in.CompletedActivityIDs)

	b.WriteString("\n## CONTENT TO TEACH\n")
	for i, p := range a.Teaching.KeyPoints {
		fmt.Fprintf(&b, "%d. %s\n", i+1, p)
	}

	b.WriteString("\n## VERIFICATION\n")
	fmt.Fprintf(&b, "Key question: %q\n", a.Verification.Question)
	b.WriteString("The student must demonstrate ALL of these criteria:\n")
	for i, cr := range a.Verification.Criteria {
		fmt.Fprintf(&b, "%d. %s\n", i+1, cr)
	}
	fmt.Fprintf(&b, "Expected answer length: %s\n", lengthDescription(a.Verification.TargetLength))

	completed := in.Verdict != nil && in.Verdict.Completed
	if completed {
		writeCompletedBranch(&b, in)
	} else {
		writeGuidingBranch(&b, in)
		writeStudentQuestions(&b, a, in.TangentCount)
		if hint, ok := c.Hint(a, in.Attempts); ok {
			b.WriteString("\n## HINT\n")
			fmt.Fprintf(&b, "The student has made %d attempts. Offer this hint in your own words, without giving away the full answer:\n%q\n", in.Attempts, hint)
		}
	}

	writeGuardrails(&b, a.Guardrails)
	b.WriteString(generalInstructions)
	return b.String()
}

// Hint returns the hint to offer after the given number of attempts.
// Hints start at MinAttemptsBeforeHint and advance every HintFrequency
// attempts; the last hint repeats once the list is exhausted.
func (c *Composer) Hint(a *lesson.Activity, attempts int) (string, bool) {
	idx, ok := HintIndex(attempts, len(a.Verification.Hints), c.cfg)
	if !ok {
		return "", false
	}
	return a.Verification.Hints[idx], true
}

// HintIndex selects floor(attempts/frequency)-1, clamped to [0, n-1].
func HintIndex(attempts, n int, cfg Config) (int, bool) {
	if n == 0 || attempts < cfg.MinAttemptsBeforeHint || attempts <= 0 {
		return 0, false
	}
	freq := cfg.HintFrequency
	if freq <= 0 {
		freq = 1
	}
	idx := attempts/freq - 1
	return min(max(idx, 0), n-1), true
}

func writeFraming(b *strings.Builder, doc *lesson.Content, cur *lesson.Located, total int) {
	a := cur.Activity
	fmt.Fprintf(b, "You are an expert instructor teaching %q.\n\n", doc.Metadata.Title)

	b.WriteString("## LESSON CONTEXT\n")
	fmt.Fprintf(b, "- Title: %s\n", doc.Metadata.Title)
	if doc.Metadata.Description != "" {
		fmt.Fprintf(b, "- Description: %s\n", doc.Metadata.Description)
	}
	fmt.Fprintf(b, "- Section: %s\n", cur.Moment.Title)
	fmt.Fprintf(b, "- Progress: activity %d of %d\n", cur.Position, total)

	fmt.Fprintf(b, "\n## CURRENT ACTIVITY: %s\n", a.Teaching.MainTopic)
	switch a.Kind {
	case lesson.KindExplanation:
		b.WriteString("Type: explanation. Build understanding through dialogue, one idea at a time, checking comprehension as you go.\n")
	case lesson.KindPractice:
		b.WriteString("Type: practice. Have the student apply the idea to a concrete task; let them attempt before you correct.\n")
	}
	switch a.Teaching.Approach {
	case lesson.ApproachPractical:
		b.WriteString("Approach: practical, exercise oriented.\n")
	default:
		b.WriteString("Approach: conversational, step by step.\n")
	}
}

func writeCompleted(b *strings.Builder, doc *lesson.Content, ids []string) {
	if len(ids) == 0 {
		return
	}
	b.WriteString("\n## ALREADY COMPLETED\n")
	b.WriteString("The student has completed these activities. NEVER teach them again; refer back to them only in passing:\n")
	for _, id := range ids {
		if loc := doc.Locate(id); loc != nil {
			fmt.Fprintf(b, "- %s (%s)\n", id, loc.Activity.Teaching.MainTopic)
		} else {
			fmt.Fprintf(b, "- %s\n", id)
		}
	}
}

func writeCompletedBranch(b *strings.Builder, in Input) {
	v := in.Verdict
	b.WriteString("\n## VERIFICATION RESULT: COMPLETED\n")
	b.WriteString("The student's last message satisfied every criterion. Criteria demonstrated:\n")
	for _, m := range v.CriteriaMatched {
		fmt.Fprintf(b, "- %s\n", m)
	}

	b.WriteString("\nYour reply must:\n")
	b.WriteString("1. Congratulate the student briefly and specifically.\n")
	b.WriteString("2. Summarize only the criteria demonstrated above, in one or two sentences.\n")

	next := in.Doc.Next(in.Current.Activity.ID)
	if next == nil {
		b.WriteString("3. Tell the student this was the final activity of the lesson and invite any wrap-up questions. Do not introduce new material.\n")
		return
	}
	fmt.Fprintf(b, "3. Move straight on to the next topic, %q. Do not ask whether the student is ready; open with one transition sentence and start teaching it:\n", next.Activity.Teaching.MainTopic)
	for i, p := range next.Activity.Teaching.KeyPoints {
		fmt.Fprintf(b, "   %d. %s\n", i+1, p)
	}
}

func writeGuidingBranch(b *strings.Builder, in Input) {
	a := in.Current.Activity
	b.WriteString("\n## VERIFICATION RESULT: NOT YET COMPLETED\n")

	matched := []string{}
	missing := a.Verification.Criteria
	feedback := ""
	if v := in.Verdict; v != nil {
		matched = v.CriteriaMatched
		missing = v.CriteriaMissing
		feedback = v.Feedback
	}

	if len(matched) > 0 {
		b.WriteString("Acknowledge what the student already got right:\n")
		for _, m := range matched {
			fmt.Fprintf(b, "- %s\n", m)
		}
	}
	if len(missing) > 0 {
		b.WriteString("Still missing. Do NOT state these to the student; lead them there:\n")
		for _, m := range missing {
			fmt.Fprintf(b, "- %s\n", m)
		}
	}
	if feedback != "" {
		fmt.Fprintf(b, "Grader feedback: %s\n", feedback)
	}
	b.WriteString("Ask one Socratic guiding question aimed at a missing criterion. Never say or imply that the activity is completed, finished or passed.\n")
}

func writeStudentQuestions(b *strings.Builder, a *lesson.Activity, tangents int) {
	p := a.StudentQuestions
	b.WriteString("\n## STUDENT QUESTIONS\n")
	switch p.Approach {
	case "answer_then_redirect":
		b.WriteString("- Policy: answer off-topic questions briefly, then redirect to the main topic.\n")
	default:
		fmt.Fprintf(b, "- Policy: %s\n", p.Approach)
	}
	fmt.Fprintf(b, "- Off-topic replies so far: %d of %d allowed\n", tangents, p.MaxTangentResponses)

	if tangents >= p.MaxTangentResponses {
		fmt.Fprintf(b, "\n## OFF-TOPIC LIMIT REACHED\nDo not answer any further off-topic content. Politely decline and bring the student back to %q.\n", a.Teaching.MainTopic)
	}
}

func writeGuardrails(b *strings.Builder, rails []lesson.Guardrail) {
	if len(rails) == 0 {
		return
	}
	b.WriteString("\n## STANDING RULES\n")
	for _, g := range rails {
		fmt.Fprintf(b, "- If you detect: %s\n  Respond: %s\n", g.Trigger, g.Response)
	}
}

func lengthDescription(l lesson.TargetLength) string {
	switch l {
	case lesson.LengthShort:
		return "1-2 concise sentences"
	case lesson.LengthLong:
		return "2-3 detailed paragraphs"
	default:
		return "one paragraph (3-5 sentences)"
	}
}

const generalInstructions = `
## GENERAL INSTRUCTIONS
- Stay focused on the current activity.
- Be patient: if the student is confused, try a different explanation or analogy.
- Be concise: at most 3-4 short paragraphs.
- Guide the student to discover answers instead of stating them.
- Use practical, relevant examples and match the student's level.
`
