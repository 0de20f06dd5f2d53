package web

// errors.go provides unified error response handling for the API.
//
// Every error is:
//   - Logged with full technical details and the request id (server-side)
//   - Mapped to an HTTP status with errors.Is / errors.As
//   - Returned as {"error", "message", "action", "code"} where error is the
//     caller-facing detail and message/action/code come from core.MapError

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/JonMunkholm/crm/internal/core"
	"github.com/JonMunkholm/crm/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor maps a service error to an HTTP status code.
func statusFor(err error) int {
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		if verr.Reason == core.ReasonTooManyRows {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusBadRequest
	}

	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, core.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// sentinels are stripped from the end of user-facing error text.
var sentinels = []error{
	core.ErrNotFound, core.ErrForbidden, core.ErrConflict,
	core.ErrRateLimited, core.ErrUnauthorized,
}

// detailFor returns the error text shown to the caller. Typed errors keep
// their own wording; anything else is replaced by the mapped message so
// driver details never leave the server.
func detailFor(err error, msg core.UserMessage) string {
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	if !core.IsUserFacing(err) {
		return msg.Message
	}
	text := err.Error()
	for _, s := range sentinels {
		text = strings.TrimSuffix(text, ": "+s.Error())
	}
	return text
}

// respondError logs err and writes the JSON error response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	userMsg := core.MapError(err)

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logging.FromContext(r.Context()).Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	switch status {
	case http.StatusUnauthorized:
		w.Header().Set("WWW-Authenticate", "Bearer")
	case http.StatusTooManyRequests:
		w.Header().Set("Retry-After", "60")
	}

	writeJSON(w, r, status, ErrorResponse{
		Error:   detailFor(err, userMsg),
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// decodeJSON reads the request body into dst. Malformed bodies are
// returned as validation errors.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return core.Invalid("request body is required")
		}
		return core.Invalid("invalid JSON body: %v", err)
	}
	return nil
}

// bind decodes the body into the request struct dst and validates its tags.
func (s *Server) bind(r *http.Request, dst any) error {
	if err := decodeJSON(r, dst); err != nil {
		return err
	}
	return s.validateStruct(dst)
}

// validateStruct runs validator tags on v.
func (s *Server) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return core.Invalid("invalid request: %v", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return core.Invalid("invalid request: %s", strings.Join(fields, "; "))
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
