package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Mutation is one non-idempotent request that could not reach the origin.
// It stays in the queue until the origin acknowledges it (2xx), definitively
// rejects it (4xx), or the retry ceiling moves it to the dead-letter set.
type Mutation struct {
	// ID uniquely identifies the queued mutation.
	ID string `json:"id"`

	// URL is the target URL (path + query against the origin).
	URL string `json:"url"`

	// Method is the HTTP method.
	Method string `json:"method"`

	// Headers are the serialized request headers.
	Headers map[string][]string `json:"headers"`

	// Body is the request body, serialized as text.
	Body string `json:"body"`

	// EnqueuedAt is when the mutation was queued.
	EnqueuedAt time.Time `json:"enqueued_at"`

	// RetryCount is the number of failed delivery attempts so far.
	// Monotonically non-decreasing.
	RetryCount int `json:"retry_count"`
}

func encodeMutation(m *Mutation) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode mutation %s: %w", m.ID, err)
	}
	return data, nil
}

func decodeMutation(data []byte) (*Mutation, error) {
	var m Mutation
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode mutation: %w", err)
	}
	return &m, nil
}
