// Package proxy exposes an esi.Client over HTTP so other processes share
// its token and cache
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/briangreenhill/eseye/access"
	"github.com/briangreenhill/eseye/esi"
)

const maxBodyBytes = 1 << 20

// passHeaders are copied from ESI responses to proxy callers
var passHeaders = []string{
	"Cache-Control",
	"Content-Type",
	"ETag",
	"Expires",
	"Last-Modified",
	"X-Pages",
	"X-Esi-Error-Limit-Remain",
	"X-Esi-Error-Limit-Reset",
}

// Invoker is the part of *esi.Client the proxy needs
type Invoker interface {
	Do(ctx context.Context, req esi.Request) (*esi.Response, error)
	GetRequirements() access.Requirements
}

type Server struct {
	Router *chi.Mux
	esi    Invoker
}

func New(client Invoker, logger zerolog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(hlog.NewHandler(logger))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(chimw.RealIP)
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	}))
	r.Use(chimw.Recoverer)

	s := &Server{Router: r, esi: client}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("write health check response")
		}
	})

	r.Get("/{version}/*", s.handleESI)
	r.Post("/{version}/*", s.handleESI)
	r.Put("/{version}/*", s.handleESI)
	r.Delete("/{version}/*", s.handleESI)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleESI(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	path := "/" + chi.URLParam(r, "*")
	template, params, ok := s.esi.GetRequirements().Match(r.Method, path)
	if !ok {
		template, params = path, nil
	}

	req := esi.Request{
		Method:     r.Method,
		Path:       template,
		PathParams: params,
		Query:      map[string]any{},
		Version:    chi.URLParam(r, "version"),
	}
	for k, vs := range r.URL.Query() {
		switch {
		case k == "datasource":
			req.Datasource = vs[0]
		case len(vs) == 1:
			req.Query[k] = vs[0]
		default:
			req.Query[k] = vs
		}
	}

	if r.Method != http.MethodGet {
		b, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "read body: "+err.Error())
			return
		}
		if len(b) > 0 {
			if !json.Valid(b) {
				writeError(w, http.StatusBadRequest, "body must be JSON")
				return
			}
			req.Body = json.RawMessage(b)
		}
	}

	resp, err := s.esi.Do(r.Context(), req)
	if err != nil {
		log.Warn().Err(err).Str("template", template).Msg("esi call failed")
		s.writeESIError(w, err)
		return
	}

	copyHeaders(w.Header(), resp.Header)
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	if resp.IsCachedLoad() {
		w.Header().Set("X-Esi-Cache", "HIT")
	} else {
		w.Header().Set("X-Esi-Cache", "MISS")
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(resp.Raw); err != nil {
		log.Error().Err(err).Msg("write response")
	}
}

// writeESIError maps client errors onto proxy responses. Origin failures
// pass through with their status and body.
func (s *Server) writeESIError(w http.ResponseWriter, err error) {
	var rfe *esi.RequestFailedError
	if errors.As(err, &rfe) && rfe.StatusCode != 0 {
		copyHeaders(w.Header(), rfe.Header)
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		w.WriteHeader(rfe.StatusCode)
		_, _ = w.Write(rfe.Body)
		return
	}

	switch {
	case errors.Is(err, esi.ErrScopeAccessDenied):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, esi.ErrURIDataMissing):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, esi.ErrInvalidContainerData):
		writeError(w, http.StatusInternalServerError, err.Error())
	case errors.Is(err, esi.ErrInvalidAuthentication), errors.Is(err, esi.ErrRequestFailed):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func copyHeaders(dst, src http.Header) {
	for _, h := range passHeaders {
		vs := src.Values(h)
		if len(vs) == 0 {
			continue
		}
		dst.Del(h)
		for _, v := range vs {
			dst.Add(h, v)
		}
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": strings.TrimSpace(msg)})
}
