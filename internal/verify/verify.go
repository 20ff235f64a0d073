// Package verify grades a student's answer against an activity rubric.
//
// Grading uses a single LLM call that sees only the activity's topic,
// question and criteria plus the answer. Any failure of that call, or any
// response that is not a valid verdict, falls back to a keyword overlap
// heuristic so that callers always receive a Verdict.
package verify

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/abhisek/instructoria/internal/lesson"
	"github.com/abhisek/instructoria/internal/llm"
	"github.com/abhisek/instructoria/internal/logger"
)

// Confidence is how sure the grader is about a verdict.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Verdict is the grading result for one student message.
type Verdict struct {
	Completed       bool       `json:"completed"`
	CriteriaMatched []string   `json:"criteriaMatched"`
	CriteriaMissing []string   `json:"criteriaMissing"`
	Feedback        string     `json:"feedback"`
	Confidence      Confidence `json:"confidence"`

	// Fallback is set when the verdict came from the keyword heuristic.
	Fallback bool `json:"-"`
}

// Purpose labels grading calls in the LLM request log.
const Purpose = "verification"

// Config holds grading settings.
type Config struct {
	// Model is the friendly or full model id used for grading.
	Model string

	// MaxTokens bounds the grading response.
	MaxTokens int

	// KeywordMinLength is the fallback tokenizer threshold: only words
	// strictly longer than this count as keywords.
	KeywordMinLength int

	// Timeout bounds the grading call. Zero means no extra bound.
	Timeout time.Duration
}

// DefaultConfig returns the grading defaults.
func DefaultConfig() Config {
	return Config{
		Model:            "claude-haiku",
		MaxTokens:        500,
		KeywordMinLength: 4,
		Timeout:          30 * time.Second,
	}
}

// Verifier grades answers.
type Verifier struct {
	provider llm.Provider
	cfg      Config
	log      *logger.Logger
}

// New creates a Verifier. A nil provider grades every answer with the
// keyword heuristic.
func New(provider llm.Provider, cfg Config, log *logger.Logger) *Verifier {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.KeywordMinLength <= 0 {
		cfg.KeywordMinLength = DefaultConfig().KeywordMinLength
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultConfig().MaxTokens
	}
	return &Verifier{provider: provider, cfg: cfg, log: log}
}

// Verify grades message against the activity's rubric. It never fails.
func (v *Verifier) Verify(ctx context.Context, message string, a *lesson.Activity) Verdict {
	if v.provider == nil {
		return Fallback(message, a, v.cfg.KeywordMinLength)
	}

	verdict, err := v.grade(ctx, message, a)
	if err != nil {
		v.log.Warn("verify.fallback", "activity_id", a.ID, "error", err)
		return Fallback(message, a, v.cfg.KeywordMinLength)
	}
	return verdict
}

func (v *Verifier) grade(ctx context.Context, message string, a *lesson.Activity) (Verdict, error) {
	ctx = llm.WithPurpose(ctx, Purpose)
	if v.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.cfg.Timeout)
		defer cancel()
	}

	resp, err := v.provider.Generate(ctx, llm.Request{
		Model:     v.cfg.Model,
		System:    graderSystemPrompt,
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: BuildPrompt(message, a)}},
		MaxTokens: v.cfg.MaxTokens,
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("grading call: %w", err)
	}

	return ParseVerdict(resp.Text())
}

// ParseVerdict decodes a grader response. The JSON may be wrapped in a
// fenced code block.
func ParseVerdict(text string) (Verdict, error) {
	var out Verdict
	if err := llm.DecodeStructured(VerdictSchema, text, &out); err != nil {
		return Verdict{}, err
	}

	// Completion requires every criterion.
	if len(out.CriteriaMissing) > 0 {
		out.Completed = false
	}
	if out.CriteriaMatched == nil {
		out.CriteriaMatched = []string{}
	}
	if out.CriteriaMissing == nil {
		out.CriteriaMissing = []string{}
	}
	return out, nil
}

const (
	fallbackPassFeedback = "Great work! You covered the key ideas."
	fallbackMissFeedback = "Good start, but some points still need more depth."
)

// Fallback grades by keyword overlap: a criterion matches when any of its
// words longer than minLen appears in the message, case-insensitively.
// Fallback verdicts always carry low confidence.
func Fallback(message string, a *lesson.Activity, minLen int) Verdict {
	msg := strings.ToLower(message)
	out := Verdict{
		CriteriaMatched: []string{},
		CriteriaMissing: []string{},
		Confidence:      ConfidenceLow,
		Fallback:        true,
	}

	for _, criterion := range a.Verification.Criteria {
		if matchesAny(msg, Keywords(criterion, minLen)) {
			out.CriteriaMatched = append(out.CriteriaMatched, criterion)
		} else {
			out.CriteriaMissing = append(out.CriteriaMissing, criterion)
		}
	}

	out.Completed = len(out.CriteriaMissing) == 0 && len(out.CriteriaMatched) > 0
	if out.Completed {
		out.Feedback = fallbackPassFeedback
	} else {
		out.Feedback = fallbackMissFeedback
	}
	return out
}

// Keywords lowercases s and returns its words longer than minLen, with
// surrounding punctuation removed.
func Keywords(s string, minLen int) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len([]rune(w)) > minLen {
			out = append(out, w)
		}
	}
	return out
}

func matchesAny(msg string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(msg, k) {
			return true
		}
	}
	return false
}
