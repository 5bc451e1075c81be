package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelterops/internal/platform/config"
	"shelterops/internal/platform/metrics"
	"shelterops/internal/shelter"
	"shelterops/internal/store"
)

func newTestApp(t *testing.T) *app {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := shelter.New(store.NewMemory(), shelter.WithLogger(log))
	require.NoError(t, engine.Bootstrap(context.Background()))
	return &app{
		cfg:         config.Config{Server: config.Server{RequestTimeout: 5 * time.Second}},
		logger:      log,
		httpMetrics: metrics.NewWithRegisterer(prometheus.NewRegistry()),
		engine:      engine,
	}
}

func TestRouter(t *testing.T) {
	srv := httptest.NewServer(newTestApp(t).Router())
	defer srv.Close()

	t.Run("health is public and reports the memory backends", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, "memory", body["store"])
		assert.Equal(t, "memory", body["lock"])
	})

	t.Run("api requires an actor", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/shelter-types")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("api serves seeded shelter types to an actor", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/shelter-types", nil)
		require.NoError(t, err)
		req.Header.Set("X-User-ID", "u-1")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var body struct {
			Items []map[string]any `json:"items"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.NotEmpty(t, body.Items)
	})
}

func TestIgnoreShutdown(t *testing.T) {
	assert.NoError(t, ignoreShutdown(nil))
	assert.NoError(t, ignoreShutdown(context.Canceled))

	boom := errors.New("boom")
	assert.ErrorIs(t, ignoreShutdown(boom), boom)
}
