package lesson

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/mod/semver"
)

// ErrNotFound is returned by content sources when no lesson has the id.
var ErrNotFound = errors.New("lesson not found")

// CurrentMajor is the only lesson document major version this build reads.
const CurrentMajor = "v1"

const (
	defaultQuestionsApproach = "answer_then_redirect"
	defaultMaxTangents       = 2
)

//go:embed schema.json
var schemaJSON []byte

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parse lesson schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	const url = "schema://lesson.json"
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add lesson schema: %w", err)
	}
	return c.Compile(url)
})

// ValidationError lists every problem found in a lesson document.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid lesson content: " + strings.Join(e.Problems, "; ")
}

// Parse validates raw JSON against the lesson schema, decodes it, fills
// defaults and checks the structural rules the schema cannot express.
func Parse(data []byte) (*Content, error) {
	sch, err := compiledSchema()
	if err != nil {
		return nil, err
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, &ValidationError{Problems: []string{fmt.Sprintf("malformed JSON: %v", err)}}
	}
	if err := sch.Validate(doc); err != nil {
		return nil, &ValidationError{Problems: []string{err.Error()}}
	}

	var c Content
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, &ValidationError{Problems: []string{fmt.Sprintf("decode: %v", err)}}
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Content) applyDefaults() {
	if c.SchemaVersion == "" {
		c.SchemaVersion = CurrentMajor + ".0.0"
	}
	for mi := range c.Moments {
		for ai := range c.Moments[mi].Activities {
			a := &c.Moments[mi].Activities[ai]
			if a.Teaching.Approach == "" {
				a.Teaching.Approach = ApproachConversational
			}
			if a.Verification.TargetLength == "" {
				a.Verification.TargetLength = LengthMedium
			}
			if a.StudentQuestions.Approach == "" && a.StudentQuestions.MaxTangentResponses == 0 {
				a.StudentQuestions = StudentQuestionsPolicy{
					Approach:            defaultQuestionsApproach,
					MaxTangentResponses: defaultMaxTangents,
				}
			}
		}
	}
}

// Validate checks the rules a lesson must satisfy before any session can use
// it: a supported version, at least one activity, unique ids, a known kind
// and a non-empty rubric on every activity.
func (c *Content) Validate() error {
	var problems []string

	if !semver.IsValid(c.SchemaVersion) {
		problems = append(problems, fmt.Sprintf("schema_version %q is not a semantic version", c.SchemaVersion))
	} else if semver.Major(c.SchemaVersion) != CurrentMajor {
		problems = append(problems, fmt.Sprintf("schema_version %s is not supported (want %s.x)", c.SchemaVersion, CurrentMajor))
	}

	if strings.TrimSpace(c.Metadata.Title) == "" {
		problems = append(problems, "lesson title is empty")
	}

	if c.TotalActivities() == 0 {
		problems = append(problems, "lesson has no activities")
	}

	moments := make(map[string]bool)
	activities := make(map[string]bool)
	for mi, m := range c.Moments {
		if m.ID == "" {
			problems = append(problems, fmt.Sprintf("moment %d has no id", mi))
		} else if moments[m.ID] {
			problems = append(problems, fmt.Sprintf("duplicate moment id %q", m.ID))
		}
		moments[m.ID] = true

		for _, a := range m.Activities {
			if a.ID == "" {
				problems = append(problems, fmt.Sprintf("moment %q has an activity without id", m.ID))
				continue
			}
			if activities[a.ID] {
				problems = append(problems, fmt.Sprintf("duplicate activity id %q", a.ID))
			}
			activities[a.ID] = true

			if !a.Kind.Valid() {
				problems = append(problems, fmt.Sprintf("activity %q has unknown type %q", a.ID, a.Kind))
			}
			if len(a.Verification.Criteria) == 0 {
				problems = append(problems, fmt.Sprintf("activity %q has no verification criteria", a.ID))
			}
			for i, cr := range a.Verification.Criteria {
				if strings.TrimSpace(cr) == "" {
					problems = append(problems, fmt.Sprintf("activity %q criterion %d is blank", a.ID, i))
				}
			}
			if a.StudentQuestions.MaxTangentResponses < 0 {
				problems = append(problems, fmt.Sprintf("activity %q has negative max_tangent_responses", a.ID))
			}
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Objectives returns the main topic of every activity in document order.
func (c *Content) Objectives() []string {
	out := make([]string, 0, c.TotalActivities())
	for _, m := range c.Moments {
		for _, a := range m.Activities {
			out = append(out, a.Teaching.MainTopic)
		}
	}
	return out
}
