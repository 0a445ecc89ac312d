package supabase

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/benvon/onetask/internal/backend"
)

// Error is a failure reported by GoTrue or PostgREST
type Error struct {
	Status  int
	Code    string
	Message string
	Details string
	Hint    string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s, status %d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// Is lets callers match on backend sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case backend.ErrInvalidCredentials:
		return e.Code == "invalid_credentials" || e.Code == "invalid_grant"
	case backend.ErrNotAuthenticated:
		return e.Status == http.StatusUnauthorized || e.Code == "PGRST301" || e.Code == "PGRST302"
	}
	return false
}

// apiError covers both the GoTrue and PostgREST error bodies.
type apiError struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Message          string          `json:"message"`
	Msg              string          `json:"msg"`
	ErrorName        string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
	Details          *string         `json:"details"`
	Hint             *string         `json:"hint"`
}

func parseError(status int, body []byte) error {
	e := &Error{Status: status}

	var raw apiError
	if err := json.Unmarshal(body, &raw); err != nil {
		e.Message = strings.TrimSpace(string(body))
		if e.Message == "" {
			e.Message = http.StatusText(status)
		}
		return e
	}

	e.Message = firstNonEmpty(raw.Message, raw.Msg, raw.ErrorDescription, raw.ErrorName, http.StatusText(status))
	e.Code = firstNonEmpty(raw.ErrorCode, codeString(raw.Code), raw.ErrorName)
	if raw.Details != nil {
		e.Details = *raw.Details
	}
	if raw.Hint != nil {
		e.Hint = *raw.Hint
	}
	return e
}

// codeString reads "code", which PostgREST sends as a string and GoTrue as a number.
func codeString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
