package esi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// Response is what an invocation returns, from the origin or from cache
type Response struct {
	StatusCode int
	Header     http.Header
	Raw        []byte
	// Data is Raw decoded into generic JSON values, nil when Raw is empty or
	// not JSON. DecodeError says which.
	Data    any
	Expires time.Time

	cached    bool
	decodeErr error
	now       func() time.Time
}

// newResponse builds a Response whose Expired judges against now, the
// same clock the client used to decide freshness
func newResponse(status int, header http.Header, body []byte, expires time.Time, cached bool, now func() time.Time) *Response {
	if now == nil {
		now = time.Now
	}
	r := &Response{
		StatusCode: status,
		Header:     header.Clone(),
		Raw:        body,
		Expires:    expires,
		cached:     cached,
		now:        now,
	}
	if r.Header == nil {
		r.Header = http.Header{}
	}
	if len(body) > 0 {
		var data any
		if err := json.Unmarshal(body, &data); err != nil {
			r.decodeErr = err
		} else {
			r.Data = data
		}
	}
	return r
}

// IsCachedLoad is true only when the response was served from cache
// without contacting the origin
func (r *Response) IsCachedLoad() bool { return r.cached }

// Decode unmarshals the raw body into v
func (r *Response) Decode(v any) error { return json.Unmarshal(r.Raw, v) }

// Expired reports whether the response is past its Expires time
func (r *Response) Expired() bool { return !r.Expires.After(r.now()) }

// DecodeError is the error from decoding a non-empty body into Data
func (r *Response) DecodeError() error { return r.decodeErr }

func (r *Response) ETag() string { return r.Header.Get("ETag") }

// Pages is the X-Pages count of a paginated resource, 1 when absent
func (r *Response) Pages() int {
	n, err := strconv.Atoi(r.Header.Get("X-Pages"))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// ErrorLimitRemain returns X-Esi-Error-Limit-Remain, or -1 when absent
func (r *Response) ErrorLimitRemain() int {
	n, err := strconv.Atoi(r.Header.Get("X-Esi-Error-Limit-Remain"))
	if err != nil {
		return -1
	}
	return n
}

// ErrorLimitReset returns the time until the error window resets, or -1
// when the header is absent
func (r *Response) ErrorLimitReset() time.Duration {
	n, err := strconv.Atoi(r.Header.Get("X-Esi-Error-Limit-Reset"))
	if err != nil {
		return -1
	}
	return time.Duration(n) * time.Second
}
