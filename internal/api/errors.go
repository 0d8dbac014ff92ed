package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var ErrUnreachable = errors.New("cannot reach server")

type Kind int

const (
	KindOther Kind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindValidation
	KindServer
)

// Error is a non-2xx answer from the backend with its body reduced to one
// message.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	Details    any
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Kind() Kind {
	switch {
	case e.StatusCode == http.StatusUnauthorized:
		return KindUnauthorized
	case e.StatusCode == http.StatusForbidden:
		return KindForbidden
	case e.StatusCode == http.StatusNotFound:
		return KindNotFound
	case e.StatusCode == http.StatusBadRequest, e.StatusCode == http.StatusUnprocessableEntity:
		return KindValidation
	case e.StatusCode >= http.StatusInternalServerError:
		return KindServer
	}
	return KindOther
}

func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind()
	}
	return KindOther
}

func IsUnauthorized(err error) bool {
	return KindOf(err) == KindUnauthorized
}

func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}

// IsRowError reports errors that belong to a single item, such as a task
// that vanished or belongs to someone else.
func IsRowError(err error) bool {
	kind := KindOf(err)
	return kind == KindNotFound || kind == KindForbidden
}

func parseError(resp *http.Response) error {
	apiErr := &Error{StatusCode: resp.StatusCode, Message: "API request failed"}
	fallback := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		apiErr.Message = fallback
		return apiErr
	}

	if !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		text := strings.TrimSpace(string(body))
		if text == "" {
			text = fallback
		}
		apiErr.Message = text
		return apiErr
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		apiErr.Message = fallback
		return apiErr
	}

	switch data := payload.(type) {
	case string:
		if data != "" {
			apiErr.Message = data
		}
	case map[string]any:
		if envelope, ok := data["error"].(map[string]any); ok {
			if message, ok := envelope["message"].(string); ok && message != "" {
				apiErr.Message = message
				apiErr.Details = envelope["details"]
				apiErr.Code, _ = envelope["code"].(string)
				return apiErr
			}
		}
		if message := detailMessage(data["detail"]); message != "" {
			apiErr.Message = message
			return apiErr
		}
		if message, ok := data["message"].(string); ok && message != "" {
			apiErr.Message = message
		}
	}
	return apiErr
}

// detailMessage flattens a FastAPI style detail, which is either a string
// or a list of {msg} objects.
func detailMessage(detail any) string {
	switch value := detail.(type) {
	case string:
		return value
	case []any:
		messages := make([]string, 0, len(value))
		for _, item := range value {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if msg, ok := entry["msg"].(string); ok && msg != "" {
				messages = append(messages, msg)
			}
		}
		return strings.Join(messages, ", ")
	}
	return ""
}
