package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"goalpact/internal/auth"
	"goalpact/internal/core"
	applog "goalpact/internal/log"
	"goalpact/internal/services"
)

// ResponseBuilder assembles a JSON response.
type ResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       any
}

// NewJSONResponse starts a 200 response.
func NewJSONResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body. A nil body sends none.
func (b *ResponseBuilder) Body(v any) *ResponseBuilder {
	b.body = v
	return b
}

func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

type errorBody struct {
	Error string `json:"error"`
}

func ErrorResponse(statusCode int, message string) *ResponseBuilder {
	return NewJSONResponse().Status(statusCode).Body(errorBody{Error: message})
}

// StatusFor maps a service error to its HTTP status and public message.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, "authentication required"
	case errors.Is(err, core.ErrValidation):
		return http.StatusUnprocessableEntity, validationMessage(err)
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, core.ErrGoalSettled):
		return http.StatusConflict, core.ErrGoalSettled.Error()
	case errors.Is(err, core.ErrAlreadyMember):
		return http.StatusConflict, core.ErrAlreadyMember.Error()
	case errors.Is(err, core.ErrStoreUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "service temporarily unavailable, retry"
	}
	return http.StatusInternalServerError, "internal error"
}

// validationMessage drops the wrapping so the client sees only the reason.
func validationMessage(err error) string {
	for _, reason := range []error{
		core.ErrNoMembership, core.ErrEmptyTitle, core.ErrTitleTooLong, core.ErrEmptyFrequency,
		core.ErrInvalidPoints, core.ErrInvalidDate, core.ErrEmptyGroupName, services.ErrEmptyUsername,
	} {
		if errors.Is(err, reason) {
			return reason.Error()
		}
	}
	return err.Error()
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := StatusFor(err)
	ctx := r.Context()
	logger := applog.FromContext(ctx)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(ctx, "Request failed", applog.FieldStatusCode, status, applog.FieldError, err)
	} else {
		logger.DebugContext(ctx, "Request rejected", applog.FieldStatusCode, status, applog.FieldError, err)
	}
	ErrorResponse(status, msg).Write(w)
}
