package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/varsilias/mpt-chat/internal/prompt"
	"github.com/varsilias/mpt-chat/internal/session"
	"github.com/varsilias/mpt-chat/pkg/types"
)

var ErrEmptyMessage = errors.New("empty message")

// Controller is what a UI shell drives: submit, clear, and set or reset
// the system prompt of one session.
type Controller struct {
	log      *slog.Logger
	asm      *prompt.Assembler
	llm      Completer
	gate     *Gate
	sessions session.Store
}

func NewController(log *slog.Logger, llm Completer, store session.Store, gate *Gate) *Controller {
	return &Controller{
		log:      log,
		asm:      prompt.NewAssembler(),
		llm:      llm,
		gate:     gate,
		sessions: store,
	}
}

// Submit appends text as a pending turn, sends the assembled history to the
// model and writes the reply back into that turn. On failure the turn stays
// pending. A reply that arrives after the history was cleared is dropped
// and session.ErrStaleTurn is returned.
func (c *Controller) Submit(ctx context.Context, sessionID, text string) (types.Turn, time.Duration, error) {
	if strings.TrimSpace(text) == "" {
		return types.Turn{}, 0, ErrEmptyMessage
	}

	ticket, err := c.sessions.AppendTurn(sessionID, text)
	if err != nil {
		return types.Turn{}, 0, err
	}
	sess, err := c.sessions.Get(sessionID)
	if err != nil {
		return types.Turn{}, 0, err
	}
	if ticket.Index >= len(sess.History) {
		return types.Turn{}, 0, session.ErrStaleTurn
	}
	input, err := c.asm.Assemble(sess.SystemPrompt, sess.History[:ticket.Index+1])
	if err != nil {
		return types.Turn{}, 0, err
	}

	release, err := c.gate.Acquire(ctx)
	if err != nil {
		c.log.Warn("inference gate", "session", sessionID, "err", err, "waiting", c.gate.Waiting())
		return types.Turn{}, 0, err
	}
	start := time.Now()
	reply, err := c.llm.Complete(ctx, input)
	release()
	latency := time.Since(start)
	if err != nil {
		c.log.Debug("inference failed", "session", sessionID, "turn", ticket.Index)
		return types.Turn{}, latency, err
	}

	if err := c.sessions.CompleteTurn(sessionID, ticket, reply); err != nil {
		c.log.Info("discarding reply", "session", sessionID, "err", err)
		return types.Turn{}, latency, err
	}
	c.log.Info("chat", "session", sessionID, "turn", ticket.Index, "latency_ms", latency.Milliseconds())
	return types.Turn{User: text, Assistant: reply}, latency, nil
}

func (c *Controller) Clear(sessionID string) error {
	return c.sessions.Clear(sessionID)
}

// SetSystemPrompt stores p verbatim and returns it.
func (c *Controller) SetSystemPrompt(sessionID, p string) (string, error) {
	if err := c.sessions.SetSystemPrompt(sessionID, p); err != nil {
		return "", err
	}
	return p, nil
}

// ResetSystemPrompt restores the default system prompt and returns it.
func (c *Controller) ResetSystemPrompt(sessionID string) (string, error) {
	return c.SetSystemPrompt(sessionID, prompt.DefaultSystemPrompt)
}

func (c *Controller) Session(sessionID string) (session.Session, error) {
	return c.sessions.Get(sessionID)
}
