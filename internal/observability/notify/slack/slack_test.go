package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buidl-renaissance/collector-quest-sub003/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
}

func TestFormatMessage(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL:      "https://hooks.slack.com/services/test",
		Channel:         "#genpipe",
		Username:        "bot",
		ResultURLPrefix: "https://genpipe.example/api/generations",
	})
	require.NoError(t, err)

	msg := client.formatMessage(notify.FailurePayload{
		ResultID:   "r-1",
		EventName:  "generate-image",
		ObjectType: "character",
		ObjectID:   "c1",
		ObjectKey:  "portrait",
		Reason:     notify.ReasonDeadLettered,
		Attempts:   5,
		Error:      "capability <timeout> & retry",
		ErrorClass: "net_timeout",
		Metadata:   map[string]string{"worker": "2", "component": "executor"},
		OccurredAt: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	})

	assert.Equal(t, "bot", msg.Username)
	assert.Equal(t, "#genpipe", msg.Channel)

	text := msg.Text
	for _, want := range []string{
		"*Generation failure* `generate-image`",
		"Result: <https://genpipe.example/api/generations/r-1|r-1>",
		"Target: character/c1/portrait",
		"Reason: dead_lettered",
		"Attempts: 5",
		"capability &lt;timeout&gt; &amp; retry",
		"net_timeout",
		"    • component: executor\n    • worker: 2",
		"Timestamp: 2024-01-01T12:00:00Z",
	} {
		assert.Contains(t, text, want)
	}
}

func TestFormatResultValue(t *testing.T) {
	tcs := []struct {
		name   string
		id     string
		prefix string
		want   string
	}{
		{name: "with link", id: "r-1", prefix: "https://app.example/r", want: "<https://app.example/r/r-1|r-1>"},
		{name: "invalid prefix", id: "r-2", prefix: "not a url", want: "r-2"},
		{name: "no prefix", id: "r-3", want: "r-3"},
		{name: "empty id", prefix: "https://app.example/r", want: ""},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			client, err := NewClient(Config{WebhookURL: "https://hooks.slack.com/services/test", ResultURLPrefix: tc.prefix})
			require.NoError(t, err)
			assert.Equal(t, tc.want, client.formatResultValue(tc.id))
		})
	}
}

func TestSendFailureRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body["text"], "generate-text")
		if calls.Add(1) == 1 {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL, RetryLimit: 1, Client: srv.Client()})
	require.NoError(t, err)

	require.NoError(t, client.SendFailure(context.Background(), notify.FailurePayload{EventName: "generate-text"}))
	assert.Equal(t, int32(2), calls.Load())
}

func TestSendFailureReturnsLastError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no_service", http.StatusNotFound)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL, Client: srv.Client()})
	require.NoError(t, err)

	err = client.SendFailure(context.Background(), notify.FailurePayload{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_service")
}
