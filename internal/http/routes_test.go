package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buidl-renaissance/collector-quest-sub003/config"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/domain/model"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/service"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/testutil"
)

type catalog map[string]bool

func (c catalog) Has(name string) bool { return c[name] }

type apiFixture struct {
	store   *testutil.MemResultStore
	pub     *testutil.MemPublisher
	handler http.Handler
}

func newAPIFixture(t *testing.T, mutate func(*RouterServices)) *apiFixture {
	t.Helper()
	store := testutil.NewMemResultStore()
	pub := &testutil.MemPublisher{}

	dispatcher, err := service.NewDispatcherService(service.DispatcherServiceOptions{
		Results:   store,
		Publisher: pub,
		Catalog:   catalog{"generate-text": true},
		Config:    config.DispatchConfig{LockTTL: 5 * time.Second, LockWait: time.Second},
	})
	require.NoError(t, err)
	results, err := service.NewResultService(service.ResultServiceOptions{Repo: store})
	require.NoError(t, err)

	services := RouterServices{Dispatcher: dispatcher, Results: results, MaxBodyBytes: 1024}
	if mutate != nil {
		mutate(&services)
	}
	return &apiFixture{store: store, pub: pub, handler: NewRouter(services)}
}

func (f *apiFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const textDispatch = `{"eventName":"generate-text","objectType":"character","objectId":"c1","objectKey":"backstory","data":{"name":"Ayla"}}`

func TestGenerationRoutes_Dispatch(t *testing.T) {
	t.Run("new generation is accepted", func(t *testing.T) {
		f := newAPIFixture(t, nil)
		rec := f.do(t, http.MethodPost, "/api/generations", textDispatch)

		require.Equal(t, http.StatusAccepted, rec.Code)
		got := decodeBody[DispatchResponse](t, rec)
		assert.NotEmpty(t, got.ID)
		assert.Equal(t, model.GenerationStatusPending, got.Status)
		assert.False(t, got.Reused)

		events := f.pub.Events()
		require.Len(t, events, 1)
		assert.Equal(t, got.ID, events[0].ID)
		assert.JSONEq(t, `{"name":"Ayla"}`, string(events[0].Data))
	})

	t.Run("second dispatch reuses the pending generation", func(t *testing.T) {
		f := newAPIFixture(t, nil)
		first := decodeBody[DispatchResponse](t, f.do(t, http.MethodPost, "/api/generations", textDispatch))

		rec := f.do(t, http.MethodPost, "/api/generations", textDispatch)
		require.Equal(t, http.StatusOK, rec.Code)
		got := decodeBody[DispatchResponse](t, rec)
		assert.Equal(t, first.ID, got.ID)
		assert.True(t, got.Reused)
		assert.Len(t, f.pub.Events(), 1)
	})

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{name: "malformed json", body: `{"eventName":`, wantCode: http.StatusBadRequest, wantErr: "invalid_json"},
		{name: "empty body", body: "", wantCode: http.StatusBadRequest, wantErr: "invalid_json"},
		{name: "unknown field", body: `{"eventName":"generate-text","bogus":1}`, wantCode: http.StatusBadRequest, wantErr: "invalid_json"},
		{
			name:     "missing target",
			body:     `{"eventName":"generate-text","objectType":"character"}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid_request",
		},
		{
			name:     "unregistered event",
			body:     `{"eventName":"generate-song","objectType":"character","objectId":"c1","objectKey":"theme"}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "unknown_event",
		},
		{
			name:     "body over limit",
			body:     `{"eventName":"generate-text","objectType":"character","objectId":"c1","objectKey":"k","data":{"pad":"` + strings.Repeat("x", 2048) + `"}}`,
			wantCode: http.StatusRequestEntityTooLarge,
			wantErr:  "body_too_large",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(t, nil)
			rec := f.do(t, http.MethodPost, "/api/generations", tt.body)

			assert.Equal(t, tt.wantCode, rec.Code)
			got := decodeBody[map[string]string](t, rec)
			assert.Equal(t, tt.wantErr, got["error"])
			assert.NotEmpty(t, got["message"])
			assert.Empty(t, f.pub.Events())
		})
	}

	t.Run("publish failure is a server error", func(t *testing.T) {
		f := newAPIFixture(t, nil)
		f.pub.Err = errors.New("queue down")

		rec := f.do(t, http.MethodPost, "/api/generations", textDispatch)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "dispatch_failed", decodeBody[map[string]string](t, rec)["error"])
	})
}

func TestGenerationRoutes_GetAndCancel(t *testing.T) {
	f := newAPIFixture(t, nil)
	ctx := context.Background()
	created := decodeBody[DispatchResponse](t, f.do(t, http.MethodPost, "/api/generations", textDispatch))

	t.Run("get pending", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/generations/"+created.ID, "")
		require.Equal(t, http.StatusOK, rec.Code)
		got := decodeBody[model.GenerationResult](t, rec)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, model.GenerationStatusPending, got.Status)
		assert.Equal(t, "c1", got.ObjectID)
	})

	t.Run("get unknown id", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/generations/does-not-exist", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "not_found", decodeBody[map[string]string](t, rec)["error"])
	})

	t.Run("cancel pending", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/generations/"+created.ID+"/cancel", "")
		require.Equal(t, http.StatusAccepted, rec.Code)
		got := decodeBody[model.GenerationResult](t, rec)
		assert.True(t, got.CancelRequested)
		assert.Equal(t, model.GenerationStatusPending, got.Status)
	})

	t.Run("cancel unknown id", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/generations/nope/cancel", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("cancel completed is a conflict", func(t *testing.T) {
		_, err := f.store.Complete(ctx, created.ID, json.RawMessage(`{"text":"done"}`))
		require.NoError(t, err)

		rec := f.do(t, http.MethodPost, "/api/generations/"+created.ID+"/cancel", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "already_terminal", decodeBody[map[string]string](t, rec)["error"])

		got := decodeBody[model.GenerationResult](t, f.do(t, http.MethodGet, "/api/generations/"+created.ID, ""))
		assert.Equal(t, model.GenerationStatusCompleted, got.Status)
		assert.JSONEq(t, `{"text":"done"}`, string(got.Result))
	})

	t.Run("wrong method", func(t *testing.T) {
		rec := f.do(t, http.MethodDelete, "/api/generations/"+created.ID, "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestHealthRoutes(t *testing.T) {
	t.Run("healthz", func(t *testing.T) {
		f := newAPIFixture(t, nil)
		rec := f.do(t, http.MethodGet, "/healthz", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Equal(t, `{"status":"ok"}`, rec.Body.String())

		rec = f.do(t, http.MethodHead, "/healthz", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Zero(t, rec.Body.Len())
	})

	t.Run("readyz reports failing dependency", func(t *testing.T) {
		f := newAPIFixture(t, func(s *RouterServices) {
			s.Readiness = map[string]ReadinessCheck{
				"database": func(context.Context) error { return nil },
				"redis":    func(context.Context) error { return errors.New("connection refused") },
			}
		})
		rec := f.do(t, http.MethodGet, "/readyz", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		got := decodeBody[readinessResponse](t, rec)
		assert.Equal(t, "unavailable", got.Status)
		assert.Equal(t, "ok", got.Checks["database"])
		assert.Equal(t, "connection refused", got.Checks["redis"])
	})

	t.Run("readyz without checks", func(t *testing.T) {
		f := newAPIFixture(t, nil)
		rec := f.do(t, http.MethodGet, "/readyz", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("recover turns panics into json 500", func(t *testing.T) {
		h := Recover(testutil.DiscardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "internal_error", decodeBody[map[string]string](t, rec)["error"])
	})

	t.Run("cors preflight for allowed origin", func(t *testing.T) {
		f := newAPIFixture(t, func(s *RouterServices) {
			s.CORSAllowedOrigins = []string{"https://app.example.com"}
		})
		req := httptest.NewRequest(http.MethodOptions, "/api/generations", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)

		assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("cors ignores other origins", func(t *testing.T) {
		f := newAPIFixture(t, func(s *RouterServices) {
			s.CORSAllowedOrigins = []string{"https://app.example.com"}
		})
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("chain order", func(t *testing.T) {
		var order bytes.Buffer
		mw := func(tag string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order.WriteString(tag)
					next.ServeHTTP(w, r)
				})
			}
		}
		h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { order.WriteString("h") }), mw("a"), mw("b"))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, "abh", order.String())
	})
}
