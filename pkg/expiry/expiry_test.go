package expiry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/chainsafe/remittance-middleware/pkg/audit"
	"github.com/chainsafe/remittance-middleware/pkg/migrations/settlementdb"
	"github.com/chainsafe/remittance-middleware/pkg/notify"
	"github.com/chainsafe/remittance-middleware/pkg/transfer"
	transferstore "github.com/chainsafe/remittance-middleware/pkg/transfer/store"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (d *recordingDispatcher) Notify(_ context.Context, ev notify.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
	return nil
}

func seed(t *testing.T, db *bun.DB, id string, createdAt time.Time) {
	t.Helper()
	err := transferstore.NewStore(db).CreateTransfer(context.Background(), &transfer.Creation{
		Transfer: &transfer.Transfer{
			TransferID: id, QuoteID: "q_" + id, SenderID: "snd", ReceiverID: "rcv",
			SenderKYCStatus: "approved", ReceiverKYCStatus: "approved", ReceiverNationalIDVerified: true,
			Chain: transfer.ChainBase, Token: transfer.TokenUSDC, SendAmountUSD: decimal.NewFromInt(100),
			Status: transfer.StatusAwaitingFunding, CreatedAt: createdAt, UpdatedAt: createdAt,
		},
		DepositRoute: &transfer.DepositRoute{
			RouteID: "route_" + id, TransferID: id, Chain: transfer.ChainBase, Token: transfer.TokenUSDC,
			DepositAddress: "0xdep" + id, Status: transfer.RouteActive, CreatedAt: createdAt,
		},
	}, &transfer.TransitionEvent{TransferID: id, To: transfer.StatusAwaitingFunding, OccurredAt: createdAt})
	require.NoError(t, err)
}

func TestSweeper_ExpiresStaleTransfers(t *testing.T) {
	db := settlementdb.SetupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seed(t, db, "tr_old_1", now.Add(-3*time.Hour))
	seed(t, db, "tr_old_2", now.Add(-2*time.Hour))
	seed(t, db, "tr_fresh", now.Add(-10*time.Minute))
	seed(t, db, "tr_funded", now.Add(-4*time.Hour))
	_, _, err := transferstore.Advance(ctx, db, "tr_funded", transfer.StatusFundingConfirmed, now, nil)
	require.NoError(t, err)

	d := &recordingDispatcher{}
	sweeper := NewSweeper(db, Config{ExpiryMinutes: 60, BatchSize: 1}, d, zap.NewNop())

	res, err := sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"tr_old_1"}, res.TransferIDs)

	res, err = sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"tr_old_2"}, res.TransferIDs)

	res, err = sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.ExpiredCount)

	store := transferstore.NewStore(db)
	for id, want := range map[string]transfer.Status{
		"tr_old_1":  transfer.StatusExpired,
		"tr_old_2":  transfer.StatusExpired,
		"tr_fresh":  transfer.StatusAwaitingFunding,
		"tr_funded": transfer.StatusFundingConfirmed,
	} {
		got, err := store.GetTransfer(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status, id)
	}

	route, err := store.FindActiveRoute(ctx, transfer.ChainBase, transfer.TokenUSDC, "0xdeptr_old_1")
	require.NoError(t, err)
	assert.Nil(t, route)

	timeline, err := store.ListTransitions(ctx, "tr_old_1")
	require.NoError(t, err)
	require.Len(t, timeline, 2)
	assert.Equal(t, transfer.StatusExpired, timeline[1].To)
	assert.Equal(t, "expiry_job", timeline[1].Metadata["reason"])

	entries, err := audit.NewSink(db).ListByEntity(ctx, "transfer", "tr_old_1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, actorID, entries[0].ActorID)

	require.Len(t, d.events, 2)
	assert.Equal(t, notify.Expired, d.events[0].Type)
}

type fakePurger struct {
	n   int
	err error
}

func (p *fakePurger) Purge(context.Context) (int, error) { return p.n, p.err }

func TestJob_TickLogsPurgeFailure(t *testing.T) {
	db := settlementdb.SetupTestDB(t)
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	job := NewJob(NewSweeper(db, Config{}, nil, logger), &fakePurger{err: errors.New("db down")}, time.Second, logger)
	job.Tick(context.Background())
	assert.Equal(t, 1, logs.FilterMessage("Idempotency purge failed").Len())

	job = NewJob(NewSweeper(db, Config{}, nil, logger), &fakePurger{n: 3}, time.Second, logger)
	job.Tick(context.Background())
	assert.Equal(t, 1, logs.FilterMessage("Purged expired idempotency records").Len())
}
