package httptransport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/iliamunaev/license-checkout/internal/apperr"
	"github.com/iliamunaev/license-checkout/internal/middleware"
	"github.com/iliamunaev/license-checkout/internal/model"
)

// requestError is a 400 whose message is safe to show verbatim.
type requestError struct {
	msg string
	err error
}

func (e *requestError) Error() string { return e.msg }
func (e *requestError) Unwrap() error { return e.err }

func invalid(msg string) error {
	return &requestError{msg: msg, err: apperr.ErrInvalidRequest}
}

// writeError maps err onto the response. Callers only ever see a generic
// message and the kind; the full error goes to the log.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	kind := apperr.Kind(err)

	msg := apperr.Message(err)
	var re *requestError
	if errors.As(err, &re) {
		msg = re.msg
	}

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.log.LogAttrs(ctx, level, "request failed",
		slog.String("request_id", middleware.RequestID(ctx)),
		slog.Int("status", status),
		slog.String("kind", kind),
		slog.String("error", err.Error()),
	)

	writeJSON(w, status, model.ErrorResponse{Error: msg, Kind: kind})
}
