package pagerduty

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buidl-renaissance/collector-quest-sub003/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
}

func TestBuildEventDefaults(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key"})
	require.NoError(t, err)

	event := client.buildEvent(notify.FailurePayload{
		ResultID:   "r-1",
		EventName:  "generate-narration",
		ObjectType: "story",
		ObjectID:   "s1",
		ObjectKey:  "narration",
		Error:      "boom",
		ErrorClass: "err_class",
		Metadata:   map[string]string{"error": "ignored", "worker": "3"},
	})

	assert.Equal(t, "generate-narration:r-1", event.DedupKey)
	assert.Equal(t, notify.SeverityCritical, event.Payload.Severity)
	assert.Equal(t, "genpipe", event.Payload.Source)
	assert.Equal(t, "genpipe", event.Payload.Component)
	assert.Equal(t, "err_class", event.Payload.Class)
	assert.Equal(t, "Generation r-1 (generate-narration) failed", event.Payload.Summary)
	assert.Empty(t, event.Links)

	custom := event.Payload.CustomDetails
	assert.Equal(t, "story/s1/narration", custom["target"])
	assert.Equal(t, "boom", custom["error"], "metadata must not override canonical fields")
	assert.Equal(t, "3", custom["worker"])
}

func TestBuildEventLinks(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key", ResultURLPrefix: "https://genpipe.example/api/generations/"})
	require.NoError(t, err)

	event := client.buildEvent(notify.FailurePayload{ResultID: "r-9"})
	require.Len(t, event.Links, 1)
	assert.Equal(t, "https://genpipe.example/api/generations/r-9", event.Links[0].Href)
}

func TestSendFailure(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client, err := NewClient(Config{RoutingKey: "key", Endpoint: srv.URL, Client: srv.Client()})
	require.NoError(t, err)

	require.NoError(t, client.SendFailure(context.Background(), notify.FailurePayload{
		ResultID: "r-2", EventName: "generate-text", Reason: notify.ReasonDeadLettered, Severity: "WARNING",
	}))
	assert.Equal(t, "key", got["routing_key"])
	assert.Equal(t, "trigger", got["event_action"])
	section := got["payload"].(map[string]any)
	assert.Equal(t, "warning", section["severity"])
	assert.Equal(t, "Generation r-2 (generate-text) dead_lettered", section["summary"])
}

func TestSendFailureError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "invalid routing key", http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(Config{RoutingKey: "key", Endpoint: srv.URL, RetryLimit: 2, Client: srv.Client()})
	require.NoError(t, err)

	err = client.SendFailure(context.Background(), notify.FailurePayload{ResultID: "r-3"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid routing key")
	assert.Equal(t, int32(1), calls.Load(), "client errors are not retried")

	var se *notify.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
}
