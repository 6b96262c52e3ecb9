package model

import (
	"encoding/json"
	"fmt"
	"sync"
)

// PayloadFactory returns a pointer to a fresh value of an event's result payload type.
type PayloadFactory func() any

var payloadRegistry = struct {
	sync.RWMutex
	factories map[string]PayloadFactory
}{factories: make(map[string]PayloadFactory)}

// RegisterPayload associates an event name with its result payload type.
// Registering the same event name again replaces the factory.
func RegisterPayload(eventName string, factory PayloadFactory) {
	payloadRegistry.Lock()
	defer payloadRegistry.Unlock()
	payloadRegistry.factories[eventName] = factory
}

// DecodeResultPayload decodes raw into the payload type registered for eventName.
// Unregistered event names decode into a generic map.
func DecodeResultPayload(eventName string, raw json.RawMessage) (any, error) {
	payloadRegistry.RLock()
	factory, ok := payloadRegistry.factories[eventName]
	payloadRegistry.RUnlock()

	if len(raw) == 0 {
		return nil, nil
	}
	if !ok {
		var generic map[string]any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", eventName, err)
		}
		return generic, nil
	}

	v := factory()
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", eventName, err)
	}
	return v, nil
}
