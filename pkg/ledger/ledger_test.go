package ledger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/remittance-middleware/pkg/app/errors"
	"github.com/chainsafe/remittance-middleware/pkg/auth"
	"github.com/chainsafe/remittance-middleware/pkg/idempotency"
	"github.com/chainsafe/remittance-middleware/pkg/migrations/settlementdb"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) InsertJournal(ctx context.Context, id string, p Posting, now time.Time) error {
	return m.Called(ctx, id, p, now).Error(0)
}

func (m *mockStore) GetJournalBalance(ctx context.Context, id string) (*JournalResult, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*JournalResult)
	return res, args.Error(1)
}

func posting(amount string) Posting {
	return Posting{
		TransferID:    "tr_1",
		DebitAccount:  "customer_funds",
		CreditAccount: "payout_clearing",
		AmountUSD:     decimal.RequireFromString(amount),
	}
}

func TestPostDoubleEntry_Validation(t *testing.T) {
	svc := NewService(&mockStore{})

	_, err := svc.PostDoubleEntry(context.Background(), posting("0"))
	assert.True(t, apperrors.Is(err, apperrors.CategoryDataError), "error %v", err)

	p := posting("10")
	p.CreditAccount = p.DebitAccount
	_, err = svc.PostDoubleEntry(context.Background(), p)
	assert.True(t, apperrors.Is(err, apperrors.CategoryDataError), "error %v", err)
}

func TestPostDoubleEntry_RoundsAmount(t *testing.T) {
	store := &mockStore{}
	store.On("InsertJournal", mock.Anything, mock.Anything, mock.MatchedBy(func(p Posting) bool {
		return p.AmountUSD.Equal(decimal.RequireFromString("10.13"))
	}), mock.Anything).Return(nil).Once()

	res, err := NewService(store).PostDoubleEntry(context.Background(), posting("10.125"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.JournalID, "lj_"))
	assert.True(t, res.Balanced)
	assert.Equal(t, "10.13", res.TotalDebit.StringFixed(2))
	store.AssertExpectations(t)
}

func TestGetJournalBalance_NotFound(t *testing.T) {
	store := &mockStore{}
	store.On("GetJournalBalance", mock.Anything, "lj_missing").Return(nil, ErrNotFound)
	_, err := NewService(store).GetJournalBalance(context.Background(), "lj_missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeJournalNotFound))
}

func TestPGStore_JournalsAndSums(t *testing.T) {
	db := settlementdb.SetupTestDB(t)
	svc := NewService(NewStore(db))
	ctx := context.Background()

	first, err := svc.PostDoubleEntry(ctx, posting("100"))
	require.NoError(t, err)
	_, err = svc.PostDoubleEntry(ctx, posting("25.50"))
	require.NoError(t, err)

	got, err := svc.GetJournalBalance(ctx, first.JournalID)
	require.NoError(t, err)
	assert.Equal(t, "tr_1", got.TransferID)
	assert.True(t, got.Balanced)
	assert.Equal(t, "100.00", got.TotalDebit.StringFixed(2))

	// An unmatched debit makes the transfer imbalanced.
	_, err = db.NewRaw(`INSERT INTO ledger_entry (journal_id, transfer_id, account_code, entry_type, amount_usd)
		VALUES (?, 'tr_1', 'fees', 'debit', 1.00)`, first.JournalID).Exec(ctx)
	require.NoError(t, err)

	sums, err := SumsByTransfer(ctx, db, []string{"tr_1", "tr_none"})
	require.NoError(t, err)
	require.Contains(t, sums, "tr_1")
	assert.NotContains(t, sums, "tr_none")
	assert.Equal(t, "126.50", sums["tr_1"].Debit.StringFixed(2))
	assert.Equal(t, "125.50", sums["tr_1"].Credit.StringFixed(2))
	assert.False(t, sums["tr_1"].Balanced())

	_, err = svc.GetJournalBalance(ctx, "lj_missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeJournalNotFound))
}

func TestHTTP_PostRequiresServiceTokenAndKey(t *testing.T) {
	store := &mockStore{}
	store.On("InsertJournal", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	guard := idempotency.NewGuard(idempotency.NewMemoryStore(), idempotency.Config{}, zap.NewNop())
	r := chi.NewRouter()
	RegisterRoutes(r, NewService(store), guard, 8)

	body := `{"transferId":"tr_1","debitAccount":"a","creditAccount":"b","amountUsd":"5.00"}`
	send := func(key string, tt auth.TokenType) int {
		req := httptest.NewRequest(http.MethodPost, "/internal/v1/ledger/journals", strings.NewReader(body))
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		req = req.WithContext(auth.WithClaims(req.Context(), &auth.Claims{TokenType: tt}))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusForbidden, send("ledger-key-1", auth.TokenCustomer))
	assert.Equal(t, http.StatusBadRequest, send("", auth.TokenService))
	assert.Equal(t, http.StatusCreated, send("ledger-key-1", auth.TokenService))
	assert.Equal(t, http.StatusCreated, send("ledger-key-1", auth.TokenService))
	store.AssertExpectations(t)
}
