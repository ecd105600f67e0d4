// Package httpx holds the JSON request/response plumbing of the HTTP API.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/louisbranch/vvebeheer/internal/platform/errors"
	"github.com/louisbranch/vvebeheer/internal/platform/logging"
	"github.com/louisbranch/vvebeheer/internal/platform/requestctx"
)

// MaxJSONBody caps decoded request bodies.
const MaxJSONBody = 1 << 20

// Problem is the JSON error body returned for every failed request.
type Problem struct {
	Code        string            `json:"code"`
	Message     string            `json:"message"`
	UserMessage string            `json:"user_message,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// WriteJSON writes value as a JSON response with status.
func WriteJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if value == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(value)
}

// DecodeJSON decodes a bounded JSON body into target, rejecting unknown fields.
func DecodeJSON(r *http.Request, target any) error {
	if r.Body == nil {
		return apperrors.New(apperrors.CodeInvalid, "request body is required")
	}
	decoder := json.NewDecoder(io.LimitReader(r.Body, MaxJSONBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.New(apperrors.CodeInvalid, "request body is required")
		}
		return apperrors.Wrap(apperrors.CodeInvalid, fmt.Sprintf("decode request: %v", err), err)
	}
	return nil
}

// WriteError maps err to its HTTP status and writes a Problem body.
// Errors without a domain code are logged and reported as internal errors.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var domainErr *apperrors.Error
	if !errors.As(err, &domainErr) || domainErr == nil {
		logging.FromContext(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		domainErr = apperrors.New(apperrors.CodeUnknown, "internal error")
	}
	status := domainErr.Code.HTTPStatus()
	if status >= http.StatusInternalServerError && domainErr.Code != apperrors.CodeUnknown {
		logging.FromContext(r.Context()).Error().Err(err).Str("code", string(domainErr.Code)).Msg("request failed")
	}
	WriteJSON(w, status, Problem{
		Code:        string(domainErr.Code),
		Message:     domainErr.Message,
		UserMessage: apperrors.UserMessage(requestctx.LocaleFromContext(r.Context()), domainErr.Code),
		Metadata:    domainErr.Metadata,
	})
}

// PathValue returns a trimmed path parameter.
func PathValue(r *http.Request, name string) string {
	return strings.TrimSpace(r.PathValue(name))
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
