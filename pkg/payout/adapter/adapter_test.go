package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsafe/remittance-middleware/pkg/payout"
)

func testRequest() Request {
	return Request{
		PayoutID:            "pay_1",
		TransferID:          "tr_1",
		Method:              payout.MethodBank,
		RecipientAccountRef: "CBE-0001",
		AmountETB:           decimal.RequireFromString("13860.00"),
	}
}

func TestHTTPTransport_Classification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantRetryable bool
		wantErr       bool
	}{
		{name: "accepted", status: http.StatusOK, body: `{"providerReference":"ref-1"}`},
		{name: "server error", status: http.StatusBadGateway, body: "down", wantErr: true, wantRetryable: true},
		{name: "rate limited", status: http.StatusTooManyRequests, wantErr: true, wantRetryable: true},
		{name: "rejected", status: http.StatusUnprocessableEntity, body: "bad account", wantErr: true},
		{name: "no reference", status: http.StatusOK, body: `{}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotKey string
			var gotReq Request
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/payouts", r.URL.Path)
				gotKey = r.Header.Get("Idempotency-Key")
				_ = json.NewDecoder(r.Body).Decode(&gotReq)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			resp, err := NewHTTPTransport(srv.URL+"/", time.Second).Post(context.Background(), testRequest(), "payout-key-1")
			assert.Equal(t, "payout-key-1", gotKey)
			assert.Equal(t, "pay_1", gotReq.PayoutID)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "ref-1", resp.ProviderReference)
				assert.False(t, resp.AcceptedAt.IsZero())
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantRetryable, IsRetryable(err), "err = %v", err)
			assert.Equal(t, !tt.wantRetryable, IsNonRetryable(err), "err = %v", err)
		})
	}
}

func TestHTTPTransport_TimeoutIsRetryable(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	_, err := NewHTTPTransport(srv.URL, 20*time.Millisecond).Post(context.Background(), testRequest(), "k")
	require.Error(t, err)
	assert.True(t, IsRetryable(err), "err = %v", err)
}

type errTransport struct{ err error }

func (e errTransport) Post(context.Context, Request, string) (*Response, error) { return nil, e.err }

func TestBankAdapter_WrapsUnknownErrorsAsRetryable(t *testing.T) {
	_, err := NewBankAdapter(errTransport{err: errors.New("socket closed")}).Send(context.Background(), testRequest(), "k")
	assert.True(t, IsRetryable(err))

	_, err = NewBankAdapter(errTransport{err: NonRetryable(errors.New("bad iban"))}).Send(context.Background(), testRequest(), "k")
	assert.True(t, IsNonRetryable(err))
	assert.False(t, IsRetryable(err))

	resp, err := NewBankAdapter(StubTransport{}).Send(context.Background(), testRequest(), "payout-key-9")
	require.NoError(t, err)
	assert.Equal(t, "bank_ref_payout-key-9", resp.ProviderReference)
}

func TestRegistry_Resolve(t *testing.T) {
	bank := NewBankAdapter(StubTransport{})
	telebirr := NewTelebirrAdapter(false, nil)

	r := NewRegistry(bank, telebirr, false)
	a, err := r.Resolve(payout.MethodBank)
	require.NoError(t, err)
	assert.Same(t, bank, a)

	_, err = r.Resolve(payout.MethodTelebirr)
	assert.ErrorIs(t, err, ErrFeatureDisabled)

	_, err = r.Resolve("cash")
	assert.Error(t, err)

	enabled := NewRegistry(bank, NewTelebirrAdapter(true, nil), true)
	a, err = enabled.Resolve(payout.MethodTelebirr)
	require.NoError(t, err)
	resp, err := a.Send(context.Background(), testRequest(), "k")
	require.NoError(t, err)
	assert.Equal(t, "telebirr_ref_k", resp.ProviderReference)
}

func TestTelebirrAdapter_ClassifiesTransportErrors(t *testing.T) {
	_, err := NewTelebirrAdapter(false, StubTransport{}).Send(context.Background(), testRequest(), "k")
	assert.ErrorIs(t, err, ErrFeatureDisabled)

	_, err = NewTelebirrAdapter(true, errTransport{err: errors.New("reset by peer")}).Send(context.Background(), testRequest(), "k")
	assert.True(t, IsRetryable(err))

	_, err = NewTelebirrAdapter(true, errTransport{err: NonRetryable(errors.New("wallet blocked"))}).
		Send(context.Background(), testRequest(), "k")
	assert.True(t, IsNonRetryable(err))
}
