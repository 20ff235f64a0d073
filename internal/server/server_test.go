package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/instructoria/internal/lesson"
	"github.com/abhisek/instructoria/internal/lesson/lessontest"
	"github.com/abhisek/instructoria/internal/llm"
	"github.com/abhisek/instructoria/internal/ratelimit"
	"github.com/abhisek/instructoria/internal/store"
	"github.com/abhisek/instructoria/internal/tutor"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticSource map[string]*lesson.Content

func (s staticSource) Get(_ context.Context, id string) (*lesson.Content, error) {
	if doc, ok := s[id]; ok {
		return doc, nil
	}
	return nil, lesson.ErrNotFound
}

type env struct {
	srv   *Server
	mock  *llm.MockProvider
	store *store.Store
}

func newEnv(t *testing.T, devMode bool, limiter ratelimit.Limiter) *env {
	t.Helper()
	st, err := store.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	mock := llm.NewMockProvider()
	cfg := tutor.DefaultConfig()
	cfg.DevMode = devMode
	svc := tutor.NewService(tutor.Deps{
		Store:    st,
		Content:  staticSource{"security-basics": lessontest.TwoActivities()},
		Provider: mock,
	}, cfg)

	srv := New(Deps{Tutor: svc, Limiter: limiter, DB: st}, Config{
		ChatRateLimit: ratelimit.Policy{Limit: 1, Window: time.Minute},
	})
	return &env{srv: srv, mock: mock, store: st}
}

func (e *env) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = httptest.NewRequest(method, path, strings.NewReader(string(raw)))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	if user != "" {
		r.Header.Set(userIDHeader, user)
	}
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, r)
	return w
}

func (e *env) startSession(t *testing.T, user string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/sessions", user, map[string]string{"lessonId": "security-basics"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var sess store.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	return sess.ID
}

func parseEvents(t *testing.T, body string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		data, ok := strings.CutPrefix(block, "data: ")
		require.True(t, ok, "malformed event %q", block)
		var ev map[string]any
		require.NoError(t, json.Unmarshal([]byte(data), &ev))
		out = append(out, ev)
	}
	return out
}

func eventTypes(events []map[string]any) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i], _ = ev["type"].(string)
	}
	return out
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env.Error.Code
}

func TestHealth(t *testing.T) {
	e := newEnv(t, false, nil)
	w := e.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRequiresAuth(t *testing.T) {
	e := newEnv(t, false, nil)
	w := e.do(t, http.MethodPost, "/api/sessions", "", map[string]string{"lessonId": "security-basics"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", errorCode(t, w))
}

func TestStartSession(t *testing.T) {
	e := newEnv(t, false, nil)
	first := e.startSession(t, "u1")
	assert.Equal(t, first, e.startSession(t, "u1"))

	w := e.do(t, http.MethodPost, "/api/sessions", "u1", map[string]string{"lessonId": "nope"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "lesson_not_found", errorCode(t, w))

	w = e.do(t, http.MethodPost, "/api/sessions", "u1", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatStreamCompletesActivity(t *testing.T) {
	e := newEnv(t, false, nil)
	id := e.startSession(t, "u1")

	e.mock.AddResponse(llm.MockText(`{"completed":true,"criteriaMatched":["Mentions confidentiality","Mentions integrity"],"criteriaMissing":[],"feedback":"ok","confidence":"high"}`))
	e.mock.AddResponse(llm.MockStream("Well ", "done."))

	w := e.do(t, http.MethodPost, "/api/chat/stream", "u1", map[string]string{
		"sessionId": id,
		"message":   "confidentiality and integrity",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	events := parseEvents(t, w.Body.String())
	require.Equal(t, []string{"activity_completed", "content", "content", "done"}, eventTypes(events))
	completed := events[0]
	assert.Equal(t, "a1", completed["activityId"])
	assert.Equal(t, "a2", completed["nextActivityId"])
	assert.Equal(t, false, completed["isLastActivity"])
	assert.EqualValues(t, 50, completed["percentage"])
	assert.Equal(t, "Well ", events[1]["text"])

	w = e.do(t, http.MethodGet, "/api/activity/progress?sessionId="+id, "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report tutor.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, "a2", report.CurrentActivityID)
	assert.Equal(t, 50, report.Percentage)

	w = e.do(t, http.MethodGet, "/api/sessions/"+id+"/messages", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Messages []store.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Messages, 2)
	assert.Equal(t, "Well done.", body.Messages[1].Content)
}

func TestChatStreamGenerationError(t *testing.T) {
	e := newEnv(t, false, nil)
	id := e.startSession(t, "u1")

	e.mock.AddResponse(llm.MockText(`{"completed":false,"criteriaMatched":[],"criteriaMissing":["Mentions confidentiality","Mentions integrity"],"feedback":"","confidence":"low"}`))
	e.mock.AddResponse(llm.MockResponse{Err: &llm.ErrProviderUnavailable{}})

	w := e.do(t, http.MethodPost, "/api/chat/stream", "u1", map[string]string{"sessionId": id, "message": "hi"})
	require.Equal(t, http.StatusOK, w.Code)
	events := parseEvents(t, w.Body.String())
	require.Equal(t, []string{"error"}, eventTypes(events))
	assert.NotContains(t, events[0]["message"], "provider")
}

func TestChatStreamInputErrors(t *testing.T) {
	e := newEnv(t, false, nil)
	id := e.startSession(t, "u1")

	w := e.do(t, http.MethodPost, "/api/chat/stream", "u1", map[string]string{"sessionId": id, "message": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "empty_message", errorCode(t, w))

	w = e.do(t, http.MethodPost, "/api/chat/stream", "u1", map[string]string{"sessionId": "missing", "message": "hi"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "session_not_found", errorCode(t, w))

	w = e.do(t, http.MethodPost, "/api/chat/stream", "u2", map[string]string{"sessionId": id, "message": "hi"})
	assert.Equal(t, http.StatusNotFound, w.Code, "sessions are private to their owner")

	w = e.do(t, http.MethodPost, "/api/chat/stream", "u1", map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Zero(t, e.mock.CallCount())
}

func TestChatStreamRateLimited(t *testing.T) {
	limiter := ratelimit.NewMemory()
	t.Cleanup(func() { limiter.Close() })
	e := newEnv(t, false, limiter)

	body := map[string]string{"sessionId": "missing", "message": "hi"}
	w := e.do(t, http.MethodPost, "/api/chat/stream", "u1", body)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodPost, "/api/chat/stream", "u1", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limited", errorCode(t, w))
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	w = e.do(t, http.MethodPost, "/api/chat/stream", "u2", body)
	assert.Equal(t, http.StatusNotFound, w.Code, "limits are per user")
}

func TestWelcomeStreamsThenReplays(t *testing.T) {
	e := newEnv(t, false, nil)
	id := e.startSession(t, "u1")
	e.mock.AddResponse(llm.MockStream("Hello!"))

	w := e.do(t, http.MethodPost, "/api/chat/welcome", "u1", map[string]string{"sessionId": id})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"content", "done"}, eventTypes(parseEvents(t, w.Body.String())))

	w = e.do(t, http.MethodPost, "/api/chat/welcome", "u1", map[string]string{"sessionId": id})
	events := parseEvents(t, w.Body.String())
	require.Equal(t, []string{"content", "done"}, eventTypes(events))
	assert.Equal(t, "Hello!", events[0]["text"])
	assert.Equal(t, 1, e.mock.CallCount())
}

func TestDevEndpoints(t *testing.T) {
	t.Run("production", func(t *testing.T) {
		e := newEnv(t, false, nil)
		id := e.startSession(t, "u1")

		w := e.do(t, http.MethodPost, "/api/dev/reset-lesson", "u1", map[string]string{"sessionId": id})
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "dev_only", errorCode(t, w))

		w = e.do(t, http.MethodGet, "/api/dev/transcript?sessionId="+id, "u1", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("development", func(t *testing.T) {
		e := newEnv(t, true, nil)
		id := e.startSession(t, "u1")
		e.mock.AddResponse(llm.MockStream("Welcome aboard."))
		e.do(t, http.MethodPost, "/api/chat/welcome", "u1", map[string]string{"sessionId": id})

		w := e.do(t, http.MethodGet, "/api/dev/transcript?sessionId="+id, "u1", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
		assert.Contains(t, w.Body.String(), "=== Activity 1/2: CIA triad (a1) ===")
		assert.Contains(t, w.Body.String(), "Welcome aboard.")

		w = e.do(t, http.MethodPost, "/api/dev/reset-lesson", "u1", map[string]string{"sessionId": id})
		require.Equal(t, http.StatusOK, w.Code)

		n, err := e.store.Messages().Count(context.Background(), id)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

type busyTutor struct{ Tutor }

func (busyTutor) HandleMessage(context.Context, string, string, string, tutor.Sink) error {
	return tutor.ErrSessionBusy
}

func TestChatStreamBusy(t *testing.T) {
	srv := New(Deps{Tutor: busyTutor{}}, Config{})
	r := httptest.NewRequest(http.MethodPost, "/api/chat/stream", strings.NewReader(`{"sessionId":"s1","message":"hi"}`))
	r.Header.Set(userIDHeader, "u1")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "session_busy", errorCode(t, w))
}

func TestJWTAuthenticator(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	auth := JWTAuthenticator{Secret: secret}

	sign := func(claims jwt.RegisteredClaims, key []byte) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := jwt.RegisteredClaims{Subject: "u1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}

	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"valid", "Bearer " + sign(valid, secret), "u1", false},
		{"missing", "", "", true},
		{"wrong key", "Bearer " + sign(valid, []byte("another-secret-another-secret-xx")), "", true},
		{"expired", "Bearer " + sign(jwt.RegisteredClaims{Subject: "u1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))}, secret), "", true},
		{"no expiry", "Bearer " + sign(jwt.RegisteredClaims{Subject: "u1"}, secret), "", true},
		{"no subject", "Bearer " + sign(jwt.RegisteredClaims{ExpiresAt: valid.ExpiresAt}, secret), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, err := auth.Authenticate(r)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
