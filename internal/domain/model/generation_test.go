package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerationStatus(t *testing.T) {
	t.Run("valid and terminal", func(t *testing.T) {
		assert.True(t, GenerationStatusPending.Valid())
		assert.False(t, GenerationStatusPending.Terminal())
		assert.True(t, GenerationStatusCompleted.Terminal())
		assert.True(t, GenerationStatusError.Terminal())
		assert.False(t, GenerationStatus("running").Valid())
	})

	t.Run("unmarshal text", func(t *testing.T) {
		var s GenerationStatus
		require.NoError(t, s.UnmarshalText([]byte(" Completed ")))
		assert.Equal(t, GenerationStatusCompleted, s)
		assert.Error(t, s.UnmarshalText([]byte("processing")))
	})
}

func TestDispatchRequestValidate(t *testing.T) {
	valid := DispatchRequest{
		EventName:  "gen-x",
		ObjectType: "widget",
		ObjectID:   "w1",
		ObjectKey:  "desc",
	}

	t.Run("valid request", func(t *testing.T) {
		req := valid
		require.NoError(t, req.Validate())
	})

	t.Run("missing object key", func(t *testing.T) {
		req := valid
		req.ObjectKey = ""
		err := req.Validate()
		require.ErrorIs(t, err, ErrInvalidDispatchRequest)
		assert.Contains(t, err.Error(), "ObjectKey")
	})

	t.Run("invalid data", func(t *testing.T) {
		req := valid
		req.Data = json.RawMessage(`{bad`)
		require.ErrorIs(t, req.Validate(), ErrInvalidDispatchRequest)
	})

	t.Run("normalize trims identifiers", func(t *testing.T) {
		req := DispatchRequest{EventName: " gen-x ", ObjectType: "widget ", ObjectID: " w1", ObjectKey: "desc"}
		req.Normalize()
		assert.Equal(t, Target{ObjectType: "widget", ObjectID: "w1", ObjectKey: "desc"}, req.Target())
		assert.Equal(t, "gen-x", req.EventName)
	})

	t.Run("nil request", func(t *testing.T) {
		var req *DispatchRequest
		require.ErrorIs(t, req.Validate(), ErrInvalidDispatchRequest)
	})
}

func TestTarget(t *testing.T) {
	tgt := Target{ObjectType: "widget", ObjectID: "w1", ObjectKey: "desc"}
	assert.Equal(t, "widget:w1:desc", tgt.Key())
	require.NoError(t, tgt.Validate())
	assert.Error(t, Target{ObjectType: "widget", ObjectID: "w1"}.Validate())
}

func TestGenerationEventStartEvent(t *testing.T) {
	payload, err := json.Marshal(JobStartEvent{
		EventName:  "gen-x",
		ObjectType: "widget",
		ObjectID:   "w1",
		ObjectKey:  "desc",
		Data:       json.RawMessage(`{"prompt":"hi"}`),
	})
	require.NoError(t, err)

	evt := &GenerationEvent{ID: "evt-1", ResultID: "res-1", Payload: payload}
	start, err := evt.StartEvent()
	require.NoError(t, err)
	assert.Equal(t, "res-1", start.ID, "falls back to result id")
	assert.Equal(t, "gen-x", start.EventName)
	assert.JSONEq(t, `{"prompt":"hi"}`, string(start.Data))

	_, err = (&GenerationEvent{ID: "evt-2", Payload: json.RawMessage(`nope`)}).StartEvent()
	assert.Error(t, err)
}
