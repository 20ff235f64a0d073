// Package lessontest builds small lesson documents for tests.
package lessontest

import (
	"fmt"

	"github.com/abhisek/instructoria/internal/lesson"
)

// TwoActivities returns one moment holding two activities. Activity "a1"
// has criteria about confidentiality and integrity; "a2" is the last
// activity and asks about hashing.
func TwoActivities() *lesson.Content {
	return &lesson.Content{
		SchemaVersion: "v1.0.0",
		Metadata:      lesson.Metadata{Title: "Security Basics", Description: "Two activity lesson", DurationMinutes: 10},
		Moments: []lesson.Moment{{
			ID:    "m1",
			Title: "Core",
			Activities: []lesson.Activity{
				{
					ID:   "a1",
					Kind: lesson.KindExplanation,
					Teaching: lesson.Teaching{
						MainTopic: "CIA triad",
						KeyPoints: []string{"Confidentiality limits who can read", "Integrity prevents tampering"},
						Approach:  lesson.ApproachConversational,
					},
					Verification: lesson.Verification{
						Question:     "What do confidentiality and integrity protect?",
						Criteria:     []string{"Mentions confidentiality", "Mentions integrity"},
						TargetLength: lesson.LengthMedium,
						Hints:        []string{"h0", "h1", "h2"},
					},
					StudentQuestions: lesson.StudentQuestionsPolicy{Approach: "answer_then_redirect", MaxTangentResponses: 2},
					Guardrails:       []lesson.Guardrail{{Trigger: "inappropriate_content", Response: "Let's stay on topic."}},
				},
				{
					ID:   "a2",
					Kind: lesson.KindPractice,
					Teaching: lesson.Teaching{
						MainTopic: "Password hashing",
						KeyPoints: []string{"Store salted hashes"},
						Approach:  lesson.ApproachPractical,
					},
					Verification: lesson.Verification{
						Question:     "How should passwords be stored?",
						Criteria:     []string{"Mentions hashing"},
						TargetLength: lesson.LengthShort,
					},
					StudentQuestions: lesson.StudentQuestionsPolicy{Approach: "answer_then_redirect", MaxTangentResponses: 2},
				},
			},
		}},
	}
}

// Sized returns a lesson whose moments hold the given number of activities.
// Activities are named a1, a2, ... in document order.
func Sized(counts ...int) *lesson.Content {
	c := &lesson.Content{SchemaVersion: "v1.0.0", Metadata: lesson.Metadata{Title: "Sized"}}
	n := 0
	for mi, k := range counts {
		m := lesson.Moment{ID: fmt.Sprintf("m%d", mi+1), Title: fmt.Sprintf("Moment %d", mi+1)}
		for range k {
			n++
			m.Activities = append(m.Activities, lesson.Activity{
				ID:           fmt.Sprintf("a%d", n),
				Kind:         lesson.KindExplanation,
				Teaching:     lesson.Teaching{MainTopic: fmt.Sprintf("topic %d", n), KeyPoints: []string{fmt.Sprintf("point %d", n)}},
				Verification: lesson.Verification{Question: fmt.Sprintf("question %d", n), Criteria: []string{fmt.Sprintf("criterion %d", n)}},
				StudentQuestions: lesson.StudentQuestionsPolicy{
					Approach:            "answer_then_redirect",
					MaxTangentResponses: 2,
				},
			})
		}
		c.Moments = append(c.Moments, m)
	}
	return c
}
