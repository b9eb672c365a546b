package esi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/briangreenhill/eseye/auth"
	"github.com/briangreenhill/eseye/cache"
)

type fetchCall struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// fakeFetcher answers from a queue; the last response repeats once the
// queue is drained
type fakeFetcher struct {
	mu        sync.Mutex
	responses []*RawResponse
	err       error
	calls     []fetchCall
}

func newFakeFetcher(responses ...*RawResponse) *fakeFetcher {
	return &fakeFetcher{responses: responses}
}

func (f *fakeFetcher) Fetch(_ context.Context, method, url string, header http.Header, body []byte) (*RawResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fetchCall{Method: method, URL: url, Header: header.Clone(), Body: body})
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return nil, errors.New("fakeFetcher: no response queued")
	}
	r := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return &RawResponse{StatusCode: r.StatusCode, Header: r.Header.Clone(), Body: append([]byte(nil), r.Body...)}, nil
}

func (f *fakeFetcher) Calls() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetchCall(nil), f.calls...)
}

func rawResponse(status int, body string, kv ...string) *RawResponse {
	h := http.Header{}
	for i := 0; i+1 < len(kv); i += 2 {
		h.Set(kv[i], kv[i+1])
	}
	return &RawResponse{StatusCode: status, Header: h, Body: []byte(body)}
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeRefresher struct {
	mu     sync.Mutex
	calls  int
	delay  time.Duration
	result auth.Authentication
	err    error
}

func (r *fakeRefresher) Refresh(_ context.Context, a auth.Authentication) (auth.Authentication, error) {
	r.mu.Lock()
	r.calls++
	delay, err := r.delay, r.err
	r.mu.Unlock()

	time.Sleep(delay)
	if err != nil {
		return a, err
	}
	out := a.Clone()
	out.AccessToken = r.result.AccessToken
	out.TokenExpires = r.result.TokenExpires
	if r.result.Scopes != nil {
		out.Scopes = r.result.Scopes
	}
	return out, nil
}

func (r *fakeRefresher) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// brokenStore fails every operation
type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (*cache.Entry, error) {
	return nil, errors.New("backend down")
}

func (brokenStore) Set(context.Context, string, *cache.Entry, time.Duration) error {
	return errors.New("backend down")
}

func (brokenStore) Forget(context.Context, string) error {
	return errors.New("backend down")
}
