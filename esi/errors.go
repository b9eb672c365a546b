package esi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/briangreenhill/eseye/auth"
)

var (
	ErrURIDataMissing    = errors.New("uri data missing")
	ErrScopeAccessDenied = errors.New("scope access denied")
	ErrRequestFailed     = errors.New("esi request failed")

	ErrInvalidContainerData  = auth.ErrInvalidContainerData
	ErrInvalidAuthentication = auth.ErrInvalidAuthentication
)

// RequestFailedError carries what the origin answered with. StatusCode is 0
// when no response was received at all.
type RequestFailedError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
	Header     http.Header
	Err        error
}

func (e *RequestFailedError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
	}
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if len(e.Body) > 0 {
		msg += ": " + string(e.Body)
	}
	return msg
}

func (e *RequestFailedError) Is(target error) bool { return target == ErrRequestFailed }

func (e *RequestFailedError) Unwrap() error { return e.Err }
