// Package adapter sends payout instructions to payout partners.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainsafe/remittance-middleware/pkg/payout"
)

// ErrFeatureDisabled is returned when a payout rail is switched off.
var ErrFeatureDisabled = errors.New("payout method disabled")

// Request is what a partner receives.
type Request struct {
	PayoutID            string          `json:"payoutId"`
	TransferID          string          `json:"transferId"`
	Method              payout.Method   `json:"method"`
	RecipientAccountRef string          `json:"recipientAccountRef"`
	AmountETB           decimal.Decimal `json:"amountEtb"`
}

// Response is a partner's acceptance of a request.
type Response struct {
	ProviderReference string    `json:"providerReference"`
	AcceptedAt        time.Time `json:"acceptedAt"`
}

// Adapter sends a payout to one partner. The idempotency key must be
// forwarded so the partner can deduplicate retries.
type Adapter interface {
	Send(ctx context.Context, req Request, idempotencyKey string) (*Response, error)
}

// RetryableError marks a failure worth retrying.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return "retryable: " + e.Err.Error() }

func (e *RetryableError) Unwrap() error { return e.Err }

// NonRetryableError marks a failure that needs manual review.
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string { return "non-retryable: " + e.Err.Error() }

func (e *NonRetryableError) Unwrap() error { return e.Err }

// Retryable wraps err as a RetryableError.
func Retryable(err error) error { return &RetryableError{Err: err} }

// NonRetryable wraps err as a NonRetryableError.
func NonRetryable(err error) error { return &NonRetryableError{Err: err} }

// IsRetryable reports whether err is a RetryableError.
func IsRetryable(err error) bool {
	var r *RetryableError
	return errors.As(err, &r)
}

// IsNonRetryable reports whether err is a NonRetryableError.
func IsNonRetryable(err error) bool {
	var n *NonRetryableError
	return errors.As(err, &n)
}

// Registry resolves the adapter of a payout method.
type Registry struct {
	adapters        map[payout.Method]Adapter
	telebirrEnabled bool
}

// NewRegistry returns a Registry for bank and telebirr.
func NewRegistry(bank, telebirr Adapter, telebirrEnabled bool) *Registry {
	return &Registry{
		adapters: map[payout.Method]Adapter{
			payout.MethodBank:     bank,
			payout.MethodTelebirr: telebirr,
		},
		telebirrEnabled: telebirrEnabled,
	}
}

// Resolve returns the adapter for method. Telebirr fails with ErrFeatureDisabled unless enabled.
func (r *Registry) Resolve(method payout.Method) (Adapter, error) {
	if method == payout.MethodTelebirr && !r.telebirrEnabled {
		return nil, fmt.Errorf("telebirr payout: %w", ErrFeatureDisabled)
	}
	a, ok := r.adapters[method]
	if !ok || a == nil {
		return nil, fmt.Errorf("unsupported payout method %q", method)
	}
	return a, nil
}
