package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Seednode/cardparty/games/cards"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"
)

// newTestConfig returns a config populated with flag defaults, after
// applying args.
func newTestConfig(t *testing.T, args ...string) *Config {
	t.Helper()

	cfg := &Config{}
	cmd := newCmd(cfg)
	require.NoError(t, cmd.ParseFlags(args))

	cfg.logger = log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
	return cfg
}

type testServer struct {
	*httptest.Server
	cfg      *Config
	registry *cards.Registry
}

func newTestServer(t *testing.T, args ...string) *testServer {
	t.Helper()

	cfg := newTestConfig(t, args...)
	require.NoError(t, cfg.validate())

	registry := cards.NewRegistry(cards.RegistryConfig{
		Pack:     cfg.pack,
		Defaults: cfg.options(),
		Logger:   cfg.logger,
	})

	errs := make(chan error, 64)
	srv := httptest.NewServer(newRouter(cfg, registry, errs))
	t.Cleanup(func() {
		registry.Close("")
		srv.Close()
	})

	return &testServer{Server: srv, cfg: cfg, registry: registry}
}

// noRedirects returns a client that reports redirects instead of following them.
func noRedirects() *http.Client {
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}
