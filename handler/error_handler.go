package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/keygate/pkg/binder"
	"github.com/dmitrymomot/keygate/pkg/logger"
	"github.com/dmitrymomot/keygate/pkg/requestid"
)

// ErrorInfo is what the client sees for a failed request.
type ErrorInfo struct {
	Status  int
	Message string
	Reason  string
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error     string `json:"error"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Classifier maps domain errors to responses. It returns false for errors it
// does not know, which then fall back to ClassifyError.
type Classifier func(err error) (ErrorInfo, bool)

// ClassifyError handles binder failures and HTTPError; everything else is a
// 500 whose details stay in the log.
func ClassifyError(err error) ErrorInfo {
	var httpErr HTTPError
	switch {
	case errors.As(err, &httpErr):
		return ErrorInfo{Status: httpErr.Status, Message: httpErr.Message}
	case errors.Is(err, binder.ErrBodyTooLarge):
		return ErrorInfo{Status: http.StatusRequestEntityTooLarge, Message: err.Error()}
	case errors.Is(err, binder.ErrUnsupportedMediaType), errors.Is(err, binder.ErrMissingContentType):
		return ErrorInfo{Status: http.StatusUnsupportedMediaType, Message: err.Error()}
	case errors.Is(err, binder.ErrFailedToParseJSON),
		errors.Is(err, binder.ErrFailedToParsePath),
		errors.Is(err, binder.ErrFailedToParseQuery):
		return ErrorInfo{Status: http.StatusBadRequest, Message: err.Error()}
	}
	return ErrorInfo{Status: http.StatusInternalServerError, Message: "internal server error"}
}

// NewErrorHandler renders errors as ErrorBody JSON and logs them, client
// errors at warn level and server errors at error level.
func NewErrorHandler(log *slog.Logger, classify Classifier) ErrorHandler {
	if log == nil {
		log = slog.Default()
	}
	return func(ctx Context, err error) {
		info, ok := ErrorInfo{}, false
		if classify != nil {
			info, ok = classify(err)
		}
		if !ok {
			info = ClassifyError(err)
		}

		r := ctx.Request()
		id := requestid.FromContext(r.Context())
		level := slog.LevelWarn
		if info.Status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		log.LogAttrs(r.Context(), level, "request failed",
			logger.Error(err),
			slog.Int("status", info.Status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Component("http"),
		)

		body := ErrorBody{Error: info.Message, Reason: info.Reason, RequestID: id}
		if rerr := JSON(info.Status, body).Render(ctx.ResponseWriter(), r); rerr != nil {
			log.ErrorContext(r.Context(), "failed to write error response", logger.Error(rerr))
		}
	}
}
