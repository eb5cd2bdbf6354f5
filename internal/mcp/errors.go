package mcp

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/hazyhaar/pkg/kit"

	"github.com/hazyhaar/bqgate/internal/boundary"
)

// Kind classifies a tool failure for clients.
type Kind string

const (
	KindInvalidInput Kind = "invalid_input"
	KindAccessDenied Kind = "access_denied"
	KindBackend      Kind = "backend_error"
)

// toolError is the structured failure delivered inside a tool error result.
// Its Error string is the JSON envelope, so whatever renders the error
// yields machine-readable output.
type toolError struct {
	Kind   Kind   `json:"kind"`
	Detail string `json:"detail"`
}

func (e *toolError) Error() string {
	envelope := map[string]any{"error": e}
	encoded, err := json.Marshal(envelope)
	if err != nil {
		return `{"error":{"kind":"backend_error","detail":"failed to encode error envelope"}}`
	}
	return string(encoded)
}

func invalidInput(detail string) error {
	return &toolError{Kind: KindInvalidInput, Detail: detail}
}

// classify maps an endpoint error onto the envelope. Boundary denials keep
// their reason text; anything untyped is a backend failure and only its
// message is surfaced.
func classify(err error) *toolError {
	var te *toolError
	if errors.As(err, &te) {
		return te
	}
	var denied *boundary.DeniedError
	if errors.As(err, &denied) {
		return &toolError{Kind: KindAccessDenied, Detail: denied.Error()}
	}
	return &toolError{Kind: KindBackend, Detail: err.Error()}
}

// envelopeMiddleware converts every endpoint error into a toolError so
// nothing internal leaks past the detail field.
func envelopeMiddleware(next kit.Endpoint) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		resp, err := next(ctx, request)
		if err != nil {
			return nil, classify(err)
		}
		return resp, nil
	}
}
