package ui

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varsilias/mpt-chat/internal/chat"
	"github.com/varsilias/mpt-chat/internal/logging"
	"github.com/varsilias/mpt-chat/internal/prompt"
	"github.com/varsilias/mpt-chat/internal/session"
	"github.com/varsilias/mpt-chat/pkg/types"
)

type completerFunc func(ctx context.Context, p string) (string, error)

func (f completerFunc) Complete(ctx context.Context, p string) (string, error) { return f(ctx, p) }

func newMux(t *testing.T, llm chat.Completer) (*chi.Mux, *chat.Controller) {
	t.Helper()
	log := logging.Discard()
	store := session.NewMemoryStore()
	ctrl := chat.NewController(log, llm, store, chat.NewGate(1, 1))
	u, err := New(log, ctrl, store)
	require.NoError(t, err)
	mux := chi.NewRouter()
	RegisterRoutes(mux, u)
	return mux, ctrl
}

func postForm(mux http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestChatPost_RendersBothBubbles(t *testing.T) {
	mux, ctrl := newMux(t, completerFunc(func(ctx context.Context, p string) (string, error) {
		return "Use `go run`.", nil
	}))

	rec := postForm(mux, "/ui/chat", url.Values{"message": {"How do I run it?"}, "session_id": {"s1"}})
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "msg-user")
	assert.Contains(t, body, "How do I run it?")
	assert.Contains(t, body, "msg-assistant")
	assert.Contains(t, body, "<code>go run</code>")
	assert.Less(t, strings.Index(body, "msg-user"), strings.Index(body, "msg-assistant"))

	sess, _ := ctrl.Session("s1")
	assert.Equal(t, types.History{{User: "How do I run it?", Assistant: "Use `go run`."}}, sess.History)
}

func TestChatPost_SanitizesReply(t *testing.T) {
	mux, _ := newMux(t, completerFunc(func(ctx context.Context, p string) (string, error) {
		return `<script>alert(1)</script>hello`, nil
	}))

	rec := postForm(mux, "/ui/chat", url.Values{"message": {"hi"}, "session_id": {"s1"}})
	assert.NotContains(t, rec.Body.String(), "<script>")
	assert.Contains(t, rec.Body.String(), "hello")
}

func TestChatPost_ErrorBubble(t *testing.T) {
	mux, _ := newMux(t, completerFunc(func(ctx context.Context, p string) (string, error) {
		return "", errors.New("endpoint down")
	}))

	rec := postForm(mux, "/ui/chat", url.Values{"message": {"hi"}, "session_id": {"s1"}})
	assert.Contains(t, rec.Body.String(), "msg-error")
	assert.NotContains(t, rec.Body.String(), "endpoint down")
}

func TestChatPost_EmptyMessage(t *testing.T) {
	mux, _ := newMux(t, completerFunc(func(ctx context.Context, p string) (string, error) { return "x", nil }))

	rec := postForm(mux, "/ui/chat", url.Values{"message": {"  "}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHome_ShowsHistoryAndSystemPrompt(t *testing.T) {
	mux, ctrl := newMux(t, completerFunc(func(ctx context.Context, p string) (string, error) { return "first reply", nil }))
	_, _, err := ctrl.Submit(context.Background(), "s1", "first question")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?s=s1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "first question")
	assert.Contains(t, body, "first reply")
	assert.Contains(t, body, prompt.DefaultSystemPrompt)
	assert.Contains(t, body, `value="s1"`)
}

func TestClearAndSystemPrompt(t *testing.T) {
	mux, ctrl := newMux(t, completerFunc(func(ctx context.Context, p string) (string, error) { return "ok", nil }))
	_, _, _ = ctrl.Submit(context.Background(), "s1", "hi")

	rec := postForm(mux, "/ui/clear", url.Values{"session_id": {"s1"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	sess, _ := ctrl.Session("s1")
	assert.Empty(t, sess.History)

	rec = postForm(mux, "/ui/system", url.Values{"session_id": {"s1"}, "system_prompt": {"Talk like a pirate."}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Talk like a pirate.")

	rec = postForm(mux, "/ui/system/reset", url.Values{"session_id": {"s1"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), prompt.DefaultSystemPrompt)
	sess, _ = ctrl.Session("s1")
	assert.Equal(t, prompt.DefaultSystemPrompt, sess.SystemPrompt)
}

func TestNewSession_HTMXRedirect(t *testing.T) {
	mux, _ := newMux(t, completerFunc(func(ctx context.Context, p string) (string, error) { return "", nil }))

	req := httptest.NewRequest(http.MethodPost, "/ui/session/new", nil)
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("HX-Redirect"), "/?s="))

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ui/session/new", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestVersionPill(t *testing.T) {
	mux, _ := newMux(t, completerFunc(func(ctx context.Context, p string) (string, error) { return "", nil }))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ui/version-pill", nil))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), "dev")
}
