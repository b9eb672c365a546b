package esi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// RawResponse is an origin answer before any interpretation
type RawResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Fetcher sends a single HTTP request. Status codes are not interpreted.
type Fetcher interface {
	Fetch(ctx context.Context, method, url string, header http.Header, body []byte) (*RawResponse, error)
}

// HTTPFetcher is the net/http backed Fetcher
type HTTPFetcher struct {
	http      *http.Client
	userAgent string
}

func NewHTTPFetcher(client *http.Client, userAgent string) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &HTTPFetcher{http: client, userAgent: userAgent}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, method, url string, header http.Header, body []byte) (*RawResponse, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &RawResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: b}, nil
}
