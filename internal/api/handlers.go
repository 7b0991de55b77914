package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/varsilias/mpt-chat/internal/buildinfo"
	"github.com/varsilias/mpt-chat/internal/chat"
	"github.com/varsilias/mpt-chat/pkg/types"
	"github.com/varsilias/mpt-chat/pkg/utils"
)

const DefaultSessionID = "default"

type Handlers struct {
	log  *slog.Logger
	chat *chat.Controller
}

func NewHandlers(log *slog.Logger, chatCtrl *chat.Controller) *Handlers {
	return &Handlers{log: log, chat: chatCtrl}
}

var sessionIDRules = []validation.Rule{validation.Required, validation.Length(1, 64)}

// Health is a basic liveness endpoint.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	utils.JSON(w, http.StatusOK, map[string]any{
		"status":    true,
		"message":   "mpt-chat",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	utils.JSON(w, http.StatusOK, map[string]any{
		"version":  buildinfo.Version,
		"commit":   buildinfo.Commit,
		"built_at": buildinfo.BuiltAt,
	})
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

func (r chatRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Message, validation.Required),
		validation.Field(&r.SessionID, sessionIDRules...),
	)
}

// Chat POST /api/chat
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.SessionID == "" {
		req.SessionID = DefaultSessionID
	}
	if err := req.Validate(); err != nil {
		utils.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	turn, latency, err := h.chat.Submit(r.Context(), req.SessionID, req.Message)
	if err != nil {
		h.log.Warn("api chat", "session", req.SessionID, "err", err)
		utils.Error(w, chat.StatusCode(err), err.Error())
		return
	}

	utils.JSON(w, http.StatusOK, map[string]any{
		"response":   turn.Assistant,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"latency_ms": latency.Milliseconds(),
		"session_id": req.SessionID,
	})
}

// GetHistory GET /api/history/{sessionID}
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionParam(w, r)
	if !ok {
		return
	}
	sess, err := h.chat.Session(id)
	if err != nil {
		utils.Error(w, chat.StatusCode(err), err.Error())
		return
	}
	history := sess.History
	if history == nil {
		history = types.History{}
	}
	utils.JSON(w, http.StatusOK, map[string]any{
		"session_id":    sess.ID,
		"system_prompt": sess.SystemPrompt,
		"history":       history,
	})
}

// ClearHistory DELETE /api/history/{sessionID}
func (h *Handlers) ClearHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionParam(w, r)
	if !ok {
		return
	}
	if err := h.chat.Clear(id); err != nil {
		utils.Error(w, chat.StatusCode(err), err.Error())
		return
	}
	utils.JSON(w, http.StatusOK, map[string]any{"session_id": id, "history": types.History{}})
}

type systemPromptRequest struct {
	SystemPrompt *string `json:"system_prompt"`
}

// SetSystemPrompt PUT /api/system-prompt/{sessionID} { system_prompt }
func (h *Handlers) SetSystemPrompt(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionParam(w, r)
	if !ok {
		return
	}
	var req systemPromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validation.ValidateStruct(&req, validation.Field(&req.SystemPrompt, validation.NotNil)); err != nil {
		utils.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := h.chat.SetSystemPrompt(id, *req.SystemPrompt)
	if err != nil {
		utils.Error(w, chat.StatusCode(err), err.Error())
		return
	}
	utils.JSON(w, http.StatusOK, map[string]any{"session_id": id, "system_prompt": p})
}

// ResetSystemPrompt DELETE /api/system-prompt/{sessionID}
func (h *Handlers) ResetSystemPrompt(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionParam(w, r)
	if !ok {
		return
	}
	p, err := h.chat.ResetSystemPrompt(id)
	if err != nil {
		utils.Error(w, chat.StatusCode(err), err.Error())
		return
	}
	utils.JSON(w, http.StatusOK, map[string]any{"session_id": id, "system_prompt": p})
}

func sessionParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "sessionID")
	if err := validation.Validate(id, sessionIDRules...); err != nil {
		utils.Error(w, http.StatusBadRequest, "session_id: "+err.Error())
		return "", false
	}
	return id, true
}
