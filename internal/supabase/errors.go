package supabase

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Error is a failure reported by the Supabase API, reduced to its human-readable message.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// apiError turns a gotrue-go error ("response status code N: <body>") into an *Error.
// Errors that did not come from a response are returned unchanged.
func apiError(err error) error {
	if err == nil {
		return nil
	}
	const prefix = "response status code "
	raw := err.Error()
	if !strings.HasPrefix(raw, prefix) {
		return err
	}
	rest := strings.TrimPrefix(raw, prefix)
	code, body, _ := strings.Cut(rest, ":")
	status, convErr := strconv.Atoi(strings.TrimSpace(code))
	if convErr != nil {
		return err
	}
	msg := messageFromBody([]byte(strings.TrimSpace(body)))
	if msg == "" {
		msg = fmt.Sprintf("request failed with status %d", status)
	}
	return &Error{Status: status, Message: msg}
}

func messageFromBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload struct {
		Msg              string `json:"msg"`
		ErrorDescription string `json:"error_description"`
		Message          string `json:"message"`
		Error            string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return strings.TrimSpace(string(body))
	}
	for _, candidate := range []string{payload.Msg, payload.ErrorDescription, payload.Message, payload.Error} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

// IsStatus reports whether err is a Supabase error with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == status
}
