package ui

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/varsilias/mpt-chat/internal/buildinfo"
	"github.com/varsilias/mpt-chat/internal/chat"
	"github.com/varsilias/mpt-chat/pkg/types"
)

const defaultSession = "default"

func RegisterRoutes(mux *chi.Mux, h *UI) {
	mux.Get("/", h.Home)
	mux.Post("/ui/chat", h.ChatPost)
	mux.Post("/ui/clear", h.ClearPost)
	mux.Post("/ui/system", h.SystemPost)
	mux.Post("/ui/system/reset", h.SystemResetPost)
	mux.Post("/ui/session/new", h.NewSession)
	mux.Get("/ui/version-pill", h.VersionPill)
}

type systemVM struct {
	SessionID    string
	SystemPrompt string
}

func sessionFrom(v string) string {
	if v = strings.TrimSpace(v); v == "" || len(v) > 64 {
		return defaultSession
	}
	return v
}

// Home shows the chat UI. Optional session via query: /?s=<id>
func (u *UI) Home(w http.ResponseWriter, r *http.Request) {
	sid := sessionFrom(r.URL.Query().Get("s"))

	sess, err := u.chat.Session(sid)
	if err != nil {
		http.Error(w, err.Error(), chat.StatusCode(err))
		return
	}

	sessions := u.sessions.List()
	sort.SliceStable(sessions, func(i, j int) bool { return sessions[i].Updated.After(sessions[j].Updated) })

	u.render(w, "chat.html", map[string]any{
		"SessionID":    sid,
		"SystemPrompt": sess.SystemPrompt,
		"History":      u.messages(sess.History),
		"Sessions":     sessions,
		"Commit":       buildinfo.Commit,
		"Version":      buildinfo.Version,
		"BuiltAt":      buildinfo.BuiltAt,
	}, http.StatusOK)
}

// ChatPost returns *two fragments*: user bubble then assistant bubble.
func (u *UI) ChatPost(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	msg := strings.TrimSpace(r.Form.Get("message"))
	sid := sessionFrom(r.Form.Get("session_id"))
	if msg == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	// Optimistically render user bubble first
	user := MsgView{Role: string(types.RoleUser), HTML: u.mdHTML(msg)}
	if err := u.tpl.ExecuteTemplate(w, "message.html", user); err != nil {
		u.errTpl(w, err)
		return
	}
	if err := http.NewResponseController(w).Flush(); err != nil {
		u.log.Debug("flush", "err", err)
	}

	turn, latency, err := u.chat.Submit(r.Context(), sid, msg)
	if err != nil {
		u.log.Warn("ui chat", "session", sid, "err", err)
		_ = u.tpl.ExecuteTemplate(w, "message.html", MsgView{Role: "error", HTML: u.mdHTML(errorText(err))})
		return
	}
	assistant := MsgView{
		Role:    string(types.RoleAssistant),
		HTML:    u.mdHTML(turn.Assistant),
		Latency: latency.Milliseconds(),
		At:      time.Now().Format(time.RFC822),
	}
	_ = u.tpl.ExecuteTemplate(w, "message.html", assistant)
}

func errorText(err error) string {
	switch chat.StatusCode(err) {
	case http.StatusServiceUnavailable:
		return "The model is busy, please try again in a moment."
	case http.StatusConflict:
		return "The conversation was cleared before the reply arrived."
	default:
		return "The model did not answer. Please try again."
	}
}

// ClearPost empties the session's history and returns an empty message list.
func (u *UI) ClearPost(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	sid := sessionFrom(r.Form.Get("session_id"))
	if err := u.chat.Clear(sid); err != nil {
		http.Error(w, err.Error(), chat.StatusCode(err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
}

func (u *UI) SystemPost(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	sid := sessionFrom(r.Form.Get("session_id"))
	p, err := u.chat.SetSystemPrompt(sid, r.Form.Get("system_prompt"))
	if err != nil {
		http.Error(w, err.Error(), chat.StatusCode(err))
		return
	}
	u.render(w, "system-form.html", systemVM{SessionID: sid, SystemPrompt: p}, http.StatusOK)
}

func (u *UI) SystemResetPost(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	sid := sessionFrom(r.Form.Get("session_id"))
	p, err := u.chat.ResetSystemPrompt(sid)
	if err != nil {
		http.Error(w, err.Error(), chat.StatusCode(err))
		return
	}
	u.render(w, "system-form.html", systemVM{SessionID: sid, SystemPrompt: p}, http.StatusOK)
}

// NewSession creates a fresh session ID and redirects to /?s=...
func (u *UI) NewSession(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	u.sessions.Touch(id)
	url := "/?s=" + id

	// If this is an HTMX request, instruct client to redirect
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", url)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

type versionVM struct {
	Version string
	Commit  string
	BuiltAt string
}

func (u *UI) VersionPill(w http.ResponseWriter, r *http.Request) {
	// Fragment response; avoid caching so rollouts show quickly
	w.Header().Set("Cache-Control", "no-store")
	u.render(w, "version-pill.html", versionVM{
		Version: buildinfo.Version,
		Commit:  buildinfo.Commit,
		BuiltAt: buildinfo.BuiltAt,
	}, http.StatusOK)
}
