package chat

import (
	"context"
	"errors"
	"net/http"

	"github.com/varsilias/mpt-chat/internal/inference"
	"github.com/varsilias/mpt-chat/internal/prompt"
	"github.com/varsilias/mpt-chat/internal/session"
)

// StatusCode maps controller errors onto HTTP statuses for the shells.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrEmptyMessage),
		errors.Is(err, session.ErrEmptyID),
		errors.Is(err, prompt.ErrEmptyHistory),
		errors.Is(err, prompt.ErrTurnNotPending):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrStaleTurn):
		return http.StatusConflict
	case errors.Is(err, ErrBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, inference.ErrRetriesExhausted):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// client went away; nobody reads this
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
