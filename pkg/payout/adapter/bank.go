package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Transport delivers a bank payout request.
type Transport interface {
	Post(ctx context.Context, req Request, idempotencyKey string) (*Response, error)
}

// BankAdapter sends payouts through a bank Transport.
type BankAdapter struct {
	transport Transport
}

// NewBankAdapter returns a BankAdapter.
func NewBankAdapter(t Transport) *BankAdapter {
	return &BankAdapter{transport: t}
}

// Send posts req. Errors that are not already classified are treated as retryable.
func (a *BankAdapter) Send(ctx context.Context, req Request, idempotencyKey string) (*Response, error) {
	resp, err := a.transport.Post(ctx, req, idempotencyKey)
	if err != nil {
		return nil, classify(err)
	}
	return resp, nil
}

func classify(err error) error {
	if IsRetryable(err) || IsNonRetryable(err) || errors.Is(err, ErrFeatureDisabled) {
		return err
	}
	return Retryable(err)
}

// HTTPTransport posts JSON requests to a payout partner API.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTransport returns a transport for baseURL with a per-request timeout.
func NewHTTPTransport(baseURL string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Post sends req to <baseURL>/payouts.
// Timeouts, 429 and 5xx are retryable; other 4xx are not.
func (t *HTTPTransport) Post(ctx context.Context, req Request, idempotencyKey string) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, NonRetryable(fmt.Errorf("failed to encode payout request: %w", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/payouts", bytes.NewReader(body))
	if err != nil {
		return nil, NonRetryable(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, Retryable(fmt.Errorf("partner request timed out: %w", err))
		}
		return nil, Retryable(fmt.Errorf("partner request failed: %w", err))
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, Retryable(fmt.Errorf("partner returned %d: %s", resp.StatusCode, raw))
	case resp.StatusCode >= 400:
		return nil, NonRetryable(fmt.Errorf("partner rejected payout with %d: %s", resp.StatusCode, raw))
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, Retryable(fmt.Errorf("failed to decode partner response: %w", err))
	}
	if out.ProviderReference == "" {
		return nil, NonRetryable(errors.New("partner response has no provider reference"))
	}
	if out.AcceptedAt.IsZero() {
		out.AcceptedAt = time.Now().UTC()
	}
	return &out, nil
}

// StubTransport accepts every request with reference <Prefix><idempotencyKey>.
// The zero value uses the bank_ref_ prefix.
type StubTransport struct {
	Prefix string
}

// Post implements Transport.
func (s StubTransport) Post(_ context.Context, _ Request, idempotencyKey string) (*Response, error) {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "bank_ref_"
	}
	return &Response{ProviderReference: prefix + idempotencyKey, AcceptedAt: time.Now().UTC()}, nil
}
