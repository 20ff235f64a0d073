package lesson

// Content is one lesson document. It is never mutated after Parse returns it,
// so a single value may be shared by every session reading the lesson.
type Content struct {
	SchemaVersion string   `json:"schema_version,omitempty"`
	Metadata      Metadata `json:"lesson"`
	Moments       []Moment `json:"moments"`
}

// Metadata describes the lesson as a whole.
type Metadata struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"duration_minutes"`
}

// Moment is an ordered group of activities.
type Moment struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Activities []Activity `json:"activities"`
}

// Activity is the smallest teachable unit with its own rubric.
type Activity struct {
	ID               string                 `json:"id"`
	Kind             Kind                   `json:"type"`
	Teaching         Teaching               `json:"teaching"`
	Verification     Verification           `json:"verification"`
	StudentQuestions StudentQuestionsPolicy `json:"student_questions"`
	Guardrails       []Guardrail            `json:"guardrails,omitempty"`
}

// Kind is the closed set of activity kinds.
type Kind string

const (
	KindExplanation Kind = "explanation"
	KindPractice    Kind = "practice"
)

// Valid reports whether k is a known activity kind.
func (k Kind) Valid() bool {
	switch k {
	case KindExplanation, KindPractice:
		return true
	}
	return false
}

// Approach is the teaching style for an activity.
type Approach string

const (
	ApproachConversational Approach = "conversational"
	ApproachPractical      Approach = "practical"
)

// Teaching holds the material the tutor presents.
type Teaching struct {
	MainTopic string   `json:"main_topic"`
	KeyPoints []string `json:"key_points"`
	Approach  Approach `json:"approach"`
}

// TargetLength is the expected size of a student's answer.
type TargetLength string

const (
	LengthShort  TargetLength = "short"
	LengthMedium TargetLength = "medium"
	LengthLong   TargetLength = "long"
)

// Verification is the rubric an answer is graded against. Criteria are
// ordered and never empty; every criterion must be satisfied to complete.
type Verification struct {
	Question     string       `json:"question"`
	Criteria     []string     `json:"criteria"`
	TargetLength TargetLength `json:"target_length"`
	Hints        []string     `json:"hints,omitempty"`
}

// StudentQuestionsPolicy controls how off-topic questions are handled.
type StudentQuestionsPolicy struct {
	Approach            string `json:"approach"`
	MaxTangentResponses int    `json:"max_tangent_responses"`
}

// Guardrail is a standing rule: when Trigger applies, respond with Response.
type Guardrail struct {
	Trigger  string `json:"trigger"`
	Response string `json:"response"`
}
