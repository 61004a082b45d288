package sla

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/chainsafe/remittance-middleware/pkg/audit"
	"github.com/chainsafe/remittance-middleware/pkg/auth"
	"github.com/chainsafe/remittance-middleware/pkg/db/dao"
	"github.com/chainsafe/remittance-middleware/pkg/migrations/settlementdb"
	"github.com/chainsafe/remittance-middleware/pkg/transfer"
	transferstore "github.com/chainsafe/remittance-middleware/pkg/transfer/store"
)

func seed(t *testing.T, db *bun.DB, id string, at time.Time, path ...transfer.Status) {
	t.Helper()
	ctx := context.Background()
	err := transferstore.NewStore(db).CreateTransfer(ctx, &transfer.Creation{
		Transfer: &transfer.Transfer{
			TransferID: id, QuoteID: "q_" + id, SenderID: "snd", ReceiverID: "rcv",
			SenderKYCStatus: "approved", ReceiverKYCStatus: "approved", ReceiverNationalIDVerified: true,
			Chain: transfer.ChainBase, Token: transfer.TokenUSDC, SendAmountUSD: decimal.NewFromInt(100),
			Status: transfer.StatusAwaitingFunding, CreatedAt: at, UpdatedAt: at,
		},
		DepositRoute: &transfer.DepositRoute{
			RouteID: "route_" + id, TransferID: id, Chain: transfer.ChainBase, Token: transfer.TokenUSDC,
			DepositAddress: "0xdep" + id, Status: transfer.RouteActive, CreatedAt: at,
		},
	}, &transfer.TransitionEvent{TransferID: id, To: transfer.StatusAwaitingFunding, OccurredAt: at})
	require.NoError(t, err)

	for _, to := range path {
		outcome, _, err := transferstore.Advance(ctx, db, id, to, at, nil)
		require.NoError(t, err)
		require.Equal(t, transfer.Applied, outcome)
	}
}

func TestMonitor_FlagsEachBreachOnce(t *testing.T) {
	db := settlementdb.SetupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seed(t, db, "tr_slow_payout", now.Add(-25*time.Minute),
		transfer.StatusFundingConfirmed, transfer.StatusPayoutInitiated)
	seed(t, db, "tr_fast_payout", now.Add(-5*time.Minute),
		transfer.StatusFundingConfirmed, transfer.StatusPayoutInitiated)
	seed(t, db, "tr_stuck_funded", now.Add(-45*time.Minute), transfer.StatusFundingConfirmed)
	seed(t, db, "tr_recent_funded", now.Add(-20*time.Minute), transfer.StatusFundingConfirmed)
	seed(t, db, "tr_unfunded", now.Add(-3*time.Hour))

	m := NewMonitor(db, Config{PayoutMinutes: 10, FundingConfirmedMinutes: 30}, zap.NewNop())
	m.now = func() time.Time { return now }

	res, err := m.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, res.TotalBreaches)
	assert.Equal(t, "tr_slow_payout", res.Breaches[0].TransferID)
	assert.Equal(t, PayoutSLA, res.Breaches[0].BreachType)
	assert.Equal(t, 25, res.Breaches[0].AgeMinutes)
	assert.Equal(t, "tr_stuck_funded", res.Breaches[1].TransferID)
	assert.Equal(t, FundingSLA, res.Breaches[1].BreachType)
	assert.Equal(t, 30, res.Breaches[1].SLAMinutes)

	entries, err := audit.NewSink(db).ListByEntity(ctx, "transfer", "tr_slow_payout")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, actionBreach, entries[0].Action)
	assert.Equal(t, actorID, entries[0].ActorID)
	assert.Equal(t, "SLA breach: payout_sla 25min exceeds 10min limit", entries[0].Reason)
	assert.Equal(t, "PAYOUT_INITIATED", entries[0].Metadata["currentStatus"])

	res, err = m.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.TotalBreaches)

	got, err := transferstore.NewStore(db).GetTransfer(ctx, "tr_stuck_funded")
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusFundingConfirmed, got.Status)
}

func TestMonitor_RespectsBatchSize(t *testing.T) {
	db := settlementdb.SetupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seed(t, db, "tr_a", now.Add(-50*time.Minute), transfer.StatusFundingConfirmed)
	seed(t, db, "tr_b", now.Add(-40*time.Minute), transfer.StatusFundingConfirmed)

	m := NewMonitor(db, Config{BatchSize: 1}, zap.NewNop())
	m.now = func() time.Time { return now }

	res, err := m.RunOnce(ctx)
	require.NoError(t, err)
	require.Len(t, res.Breaches, 1)
	assert.Equal(t, "tr_a", res.Breaches[0].TransferID)

	res, err = m.RunOnce(ctx)
	require.NoError(t, err)
	require.Len(t, res.Breaches, 1)
	assert.Equal(t, "tr_b", res.Breaches[0].TransferID)
}

func TestMonitor_ListPayoutDelays(t *testing.T) {
	db := settlementdb.SetupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for id, delay := range map[string]time.Duration{
		"tr_slow":   40 * time.Minute,
		"tr_slower": 90 * time.Minute,
		"tr_quick":  2 * time.Minute,
	} {
		seed(t, db, id, base, transfer.StatusFundingConfirmed, transfer.StatusPayoutInitiated)
		_, err := db.NewInsert().Model(&dao.FundingEventDao{
			EventID: "ev_" + id, Chain: "base", Token: "USDC", TxHash: "0x" + id, LogIndex: 0,
			TransferID: id, DepositAddress: "0xdep" + id, AmountUSD: decimal.NewFromInt(100), ConfirmedAt: base,
		}).Exec(ctx)
		require.NoError(t, err)
		_, err = db.NewInsert().Model(&dao.PayoutStatusEventDao{
			PayoutID: "pay_" + id, TransferID: id, ToStatus: "PAYOUT_INITIATED", CreatedAt: base.Add(delay),
		}).Exec(ctx)
		require.NoError(t, err)
	}

	m := NewMonitor(db, Config{}, zap.NewNop())
	rows, err := m.ListPayoutDelays(ctx, 10, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "tr_slower", rows[0].TransferID)
	assert.InDelta(t, 90, rows[0].MinutesToPayout, 0.01)
	assert.Equal(t, "tr_slow", rows[1].TransferID)

	rows, err = m.ListPayoutDelays(ctx, 10, 1)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

type fixedReader struct {
	gotThreshold int
	gotLimit     int
}

func (f *fixedReader) ListPayoutDelays(_ context.Context, thresholdMinutes, limit int) ([]*PayoutDelay, error) {
	f.gotThreshold, f.gotLimit = thresholdMinutes, limit
	return []*PayoutDelay{{TransferID: "tr_1", MinutesToPayout: 12.5}}, nil
}

func TestHTTP_BreachesRequiresReadRole(t *testing.T) {
	reader := &fixedReader{}
	r := chi.NewRouter()
	RegisterRoutes(r, reader, 15)

	send := func(claims *auth.Claims, query string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/internal/v1/ops/sla/breaches"+query, nil)
		if claims != nil {
			req = req.WithContext(auth.WithClaims(req.Context(), claims))
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	if rec := send(&auth.Claims{TokenType: auth.TokenCustomer}, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("expected status %d, got %d", http.StatusForbidden, rec.Code)
	}
	if rec := send(&auth.Claims{TokenType: auth.TokenAdmin, Role: auth.RoleOpsViewer}, "?limit=abc"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}

	rec := send(&auth.Claims{TokenType: auth.TokenAdmin, Role: auth.RoleComplianceViewer}, "?limit=5000")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	assert.Equal(t, 15, reader.gotThreshold)
	assert.Equal(t, maxDelayLimit, reader.gotLimit)
	assert.Contains(t, rec.Body.String(), `"thresholdMinutes":15`)
	assert.Contains(t, rec.Body.String(), `"transferId":"tr_1"`)

	rec = send(&auth.Claims{TokenType: auth.TokenService, Scope: []string{auth.ScopeReconciliationProxy}}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	assert.Equal(t, defaultDelayLimit, reader.gotLimit)
}
