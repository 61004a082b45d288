package adapter

import (
	"context"
	"fmt"
)

// TelebirrAdapter sends payouts to the telebirr mobile money rail through a Transport.
type TelebirrAdapter struct {
	enabled   bool
	transport Transport
}

// NewTelebirrAdapter returns a TelebirrAdapter. A nil transport accepts every
// request locally with a telebirr_ref_ reference.
func NewTelebirrAdapter(enabled bool, t Transport) *TelebirrAdapter {
	if t == nil {
		t = StubTransport{Prefix: "telebirr_ref_"}
	}
	return &TelebirrAdapter{enabled: enabled, transport: t}
}

// Send implements Adapter.
func (a *TelebirrAdapter) Send(ctx context.Context, req Request, idempotencyKey string) (*Response, error) {
	if !a.enabled {
		return nil, fmt.Errorf("telebirr payout: %w", ErrFeatureDisabled)
	}
	resp, err := a.transport.Post(ctx, req, idempotencyKey)
	if err != nil {
		return nil, classify(err)
	}
	return resp, nil
}
