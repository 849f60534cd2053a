package studlyapi

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrUnauthorized means the request needs a (valid) session token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrIdentityGone means the server no longer knows the authenticated user.
	ErrIdentityGone = errors.New("authenticated user no longer exists")
	// ErrNotFound is returned for 404s on a specific resource.
	ErrNotFound = errors.New("not found")
)

// identityGoneCodes are the error codes the backend uses for a deleted account.
var identityGoneCodes = map[string]bool{
	"user_not_found":  true,
	"account_deleted": true,
}

// APIError is a non-2xx response from the content API.
type APIError struct {
	Status  int
	Code    string
	Message string
	kind    error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("studly api status %d", e.Status)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *APIError) Unwrap() error { return e.kind }

func newAPIError(status int, body []byte) *APIError {
	var payload struct {
		Code    string `json:"code"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &payload)
	e := &APIError{Status: status, Code: strings.ToLower(payload.Code), Message: payload.Message}
	if e.Message == "" {
		e.Message = payload.Error
	}
	switch {
	case identityGoneCodes[e.Code]:
		e.kind = ErrIdentityGone
	case status == 401:
		e.kind = ErrUnauthorized
	case status == 404:
		e.kind = ErrNotFound
	}
	return e
}

// IsTransient reports whether err is worth retrying from the user's side.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 || apiErr.Status == 429
	}
	return !errors.Is(err, ErrIdentityGone) && !errors.Is(err, ErrUnauthorized)
}
