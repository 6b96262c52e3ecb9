package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buidl-renaissance/collector-quest-sub003/config"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/domain/model"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/testutil"
)

func newCommandContext(out *bytes.Buffer) *commandContext {
	return &commandContext{
		Ctx:    context.Background(),
		Logger: testutil.DiscardLogger(),
		Config: config.AppConfig{HTTP: config.HTTPConfig{Addr: ":8080"}},
		Out:    out,
	}
}

func TestDefaultAPIURL(t *testing.T) {
	t.Setenv("GENPIPE_API_URL", "")
	assert.Equal(t, "http://localhost:8080", defaultAPIURL(config.HTTPConfig{Addr: ":8080"}))
	assert.Equal(t, "http://10.0.0.1:9000", defaultAPIURL(config.HTTPConfig{Addr: "10.0.0.1:9000"}))

	t.Setenv("GENPIPE_API_URL", "https://genpipe.internal")
	assert.Equal(t, "https://genpipe.internal", defaultAPIURL(config.HTTPConfig{Addr: ":8080"}))
}

func TestParseDispatchFlags(t *testing.T) {
	var out bytes.Buffer
	cmdCtx := newCommandContext(&out)

	t.Run("valid", func(t *testing.T) {
		opts, err := parseDispatchFlags(cmdCtx, []string{
			"-event", "generate-text", "-type", " character ", "-id", "c1", "-key", "backstory",
			"-data", `{"subject":"Ayla"}`, "-force",
		})
		require.NoError(t, err)
		assert.Equal(t, "character", opts.Request.ObjectType)
		assert.True(t, opts.Request.Force)
		assert.JSONEq(t, `{"subject":"Ayla"}`, string(opts.Request.Data))
	})

	t.Run("invalid data", func(t *testing.T) {
		_, err := parseDispatchFlags(cmdCtx, []string{
			"-event", "generate-text", "-type", "character", "-id", "c1", "-key", "k", "-data", "{",
		})
		require.Error(t, err)
	})

	t.Run("missing target", func(t *testing.T) {
		_, err := parseDispatchFlags(cmdCtx, []string{"-event", "generate-text"})
		require.ErrorIs(t, err, model.ErrInvalidDispatchRequest)
	})
}

func TestDispatchAndAwait(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/generations":
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"id":"gen-1","status":"pending","reused":false}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/generations/gen-1":
			if polls.Add(1) == 1 {
				_, _ = w.Write([]byte(`{"id":"gen-1","eventName":"generate-text","status":"pending","step":"prompt","message":"prompt built"}`))
				return
			}
			_, _ = w.Write([]byte(`{"id":"gen-1","eventName":"generate-text","status":"completed","result":{"text": "Hello"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not_found","message":"generation result not found"}`))
		}
	}))
	t.Cleanup(srv.Close)

	var out bytes.Buffer
	err := runDispatch(newCommandContext(&out), []string{
		"-api", srv.URL, "-event", "generate-text", "-type", "character", "-id", "c1", "-key", "backstory",
		"-wait", "-interval", "10ms", "-timeout", "5s",
	})
	require.NoError(t, err)

	got := out.String()
	assert.Contains(t, got, "id: gen-1")
	assert.Contains(t, got, "status: pending")
	assert.Contains(t, got, "progress: prompt prompt built")
	assert.Contains(t, got, `result: {"text":"Hello"}`)
}

func TestStatusCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path != "/api/generations/gen-2" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not_found","message":"generation result not found"}`))
			return
		}
		errMsg := "step fetch failed after 3 attempts: boom"
		_ = json.NewEncoder(w).Encode(model.GenerationResult{
			ID: "gen-2", EventName: "generate-image", Status: model.GenerationStatusError, Error: &errMsg,
			ObjectType: "character", ObjectID: "c1", ObjectKey: "portrait",
			CreatedAt: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
			UpdatedAt: time.Date(2024, 1, 1, 12, 1, 0, 0, time.UTC),
		})
	}))
	t.Cleanup(srv.Close)

	t.Run("prints the record", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, runStatus(newCommandContext(&out), []string{"-api", srv.URL, "gen-2"}))
		got := out.String()
		assert.Contains(t, got, "character:c1:portrait")
		assert.Contains(t, got, "error")
		assert.Contains(t, got, "step fetch failed after 3 attempts: boom")
		assert.NotContains(t, got, "Result:")
	})

	t.Run("unknown id", func(t *testing.T) {
		var out bytes.Buffer
		err := runStatus(newCommandContext(&out), []string{"-api", srv.URL, "missing"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not_found")
	})

	t.Run("requires an id", func(t *testing.T) {
		var out bytes.Buffer
		err := runStatus(newCommandContext(&out), []string{"-api", srv.URL})
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "exactly one generation id"))
	})
}

func TestPrintUsage(t *testing.T) {
	var out bytes.Buffer
	printUsage(&out)
	for name := range commands() {
		assert.Contains(t, out.String(), name)
	}
}
