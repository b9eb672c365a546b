// cmd/esi/main.go
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/briangreenhill/eseye/access"
	"github.com/briangreenhill/eseye/auth"
	"github.com/briangreenhill/eseye/esi"
	"github.com/briangreenhill/eseye/internal/backends"
	"github.com/briangreenhill/eseye/internal/config"
	"github.com/briangreenhill/eseye/internal/proxy"
)

const version = "eseye v0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runCLI(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCLI(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		printUsage(out)
		return nil
	}

	switch args[0] {
	case "help", "--help", "-h":
		printUsage(out)
	case "version", "--version", "-v":
		fmt.Fprintln(out, version)
	case "invoke":
		return runInvoke(ctx, args[1:], out)
	case "serve":
		return runServe(ctx, args[1:], out)
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
	return nil
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage: esi <command> [options]")
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  invoke [flags] <path>  Call one ESI endpoint, e.g. /characters/{character_id}/skills/")
	fmt.Fprintln(out, "  serve [flags]          Run a caching ESI proxy")
	fmt.Fprintln(out, "  version                Print the version")
	fmt.Fprintln(out, "  help                   Show this help message")
	fmt.Fprintln(out, "Environment:")
	fmt.Fprintln(out, "  ESI_BASE_URL, ESI_DATASOURCE, ESI_VERSION, ESI_USER_AGENT, ESI_HTTP_TIMEOUT")
	fmt.Fprintln(out, "  ESI_CACHE (null|memory|file|redis|postgres), ESI_CACHE_DIR, REDIS_ADDR, DATABASE_URL")
	fmt.Fprintln(out, "  ESI_CLIENT_ID, ESI_SECRET, ESI_REFRESH_TOKEN, ESI_SCOPES, ESI_SSO_TOKEN_URL")
	fmt.Fprintln(out, "  ESI_REQUIREMENTS_FILE, ESI_LOG_LEVEL, ESI_LISTEN")
}

// kvFlag collects repeated key=value flags
type kvFlag map[string]string

func (f kvFlag) String() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + f[k]
	}
	return strings.Join(parts, ",")
}

func (f kvFlag) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	f[k] = v
	return nil
}

func runInvoke(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("invoke", flag.ContinueOnError)
	fs.SetOutput(out)
	method := fs.String("method", "get", "HTTP method")
	apiVersion := fs.String("version", "", "ESI version, overrides ESI_VERSION")
	body := fs.String("body", "", "JSON request body for non-GET methods")
	params := kvFlag{}
	query := kvFlag{}
	fs.Var(params, "param", "path parameter key=value (repeatable)")
	fs.Var(query, "query", "query parameter key=value, comma separated lists allowed (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("invoke needs exactly one path template")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, cfg.LogLevel)

	client, closeFn, err := newClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeFn(); err != nil {
			logger.Warn().Err(err).Msg("close cache backend")
		}
	}()

	if *apiVersion != "" {
		client.SetVersion(*apiVersion)
	}
	q := make(map[string]any, len(query))
	for k, v := range query {
		if strings.Contains(v, ",") {
			q[k] = strings.Split(v, ",")
		} else {
			q[k] = v
		}
	}
	client.SetQueryString(q)
	if *body != "" {
		var b any
		if err := json.Unmarshal([]byte(*body), &b); err != nil {
			return fmt.Errorf("parse -body: %w", err)
		}
		client.SetBody(b)
	}

	resp, err := client.Invoke(ctx, *method, fs.Arg(0), params)
	if err != nil {
		return err
	}
	logger.Info().
		Int("status", resp.StatusCode).
		Bool("cached", resp.IsCachedLoad()).
		Time("expires", resp.Expires).
		Int("pages", resp.Pages()).
		Msg("invoke complete")

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, resp.Raw, "", "  "); err != nil {
		_, err = out.Write(resp.Raw)
		return err
	}
	pretty.WriteByte('\n')
	_, err = pretty.WriteTo(out)
	return err
}

func runServe(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(out)
	listen := fs.String("listen", "", "listen address, overrides ESI_LISTEN")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	logger := newLogger(os.Stdout, cfg.LogLevel)

	client, closeFn, err := newClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeFn(); err != nil {
			logger.Warn().Err(err).Msg("close cache backend")
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           proxy.New(client, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Listen).Str("cache", cfg.Cache.Backend).Msg("starting esi proxy")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(lvl)
}

// newClient opens the configured cache backend and builds the ESI client.
// The returned function closes the backend.
func newClient(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*esi.Client, func() error, error) {
	backend, err := backends.Default().Open(ctx, cfg.Cache)
	if err != nil {
		return nil, nil, err
	}

	opts := []esi.Option{
		esi.WithLogger(logger),
		esi.WithCache(backend.Store),
	}
	if path := cfg.API.RequirementsFile; path != "" {
		extra, err := access.LoadRequirements(afero.NewOsFs(), path)
		if err != nil {
			_ = backend.Close()
			return nil, nil, err
		}
		opts = append(opts, esi.WithRequirements(access.DefaultRequirements.Merge(extra)))
	}
	if data, ok := cfg.Authentication(); ok {
		a, err := auth.NewAuthentication(data)
		if err != nil {
			_ = backend.Close()
			return nil, nil, err
		}
		opts = append(opts, esi.WithAuthentication(*a))
	}

	client, err := esi.New(cfg.ESI(), opts...)
	if err != nil {
		_ = backend.Close()
		return nil, nil, err
	}
	return client, backend.Close, nil
}
