// Package ledger posts balanced double-entry journals against transfers.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/chainsafe/remittance-middleware/pkg/app/errors"
)

// EntryType is the side of a ledger entry.
type EntryType string

// Entry sides.
const (
	Debit  EntryType = "debit"
	Credit EntryType = "credit"
)

// ErrNotFound is returned when a journal does not exist.
var ErrNotFound = errors.New("ledger journal not found")

// Posting moves AmountUSD from DebitAccount to CreditAccount for a transfer.
type Posting struct {
	TransferID    string          `json:"transferId" validate:"required"`
	DebitAccount  string          `json:"debitAccount" validate:"required,max=64"`
	CreditAccount string          `json:"creditAccount" validate:"required,max=64"`
	AmountUSD     decimal.Decimal `json:"amountUsd"`
	Description   string          `json:"description,omitempty"`
}

// JournalResult summarizes a journal's entries.
type JournalResult struct {
	JournalID   string          `json:"journalId"`
	TransferID  string          `json:"transferId"`
	TotalDebit  decimal.Decimal `json:"totalDebitUsd"`
	TotalCredit decimal.Decimal `json:"totalCreditUsd"`
	Balanced    bool            `json:"balanced"`
}

// Sums are the debit and credit totals of one transfer across all its journals.
type Sums struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

// Balanced reports whether debits equal credits.
func (s Sums) Balanced() bool { return s.Debit.Equal(s.Credit) }

// Store persists journals.
type Store interface {
	InsertJournal(ctx context.Context, journalID string, p Posting, now time.Time) error
	GetJournalBalance(ctx context.Context, journalID string) (*JournalResult, error)
}

// Service posts and reads journals.
type Service interface {
	PostDoubleEntry(ctx context.Context, p Posting) (*JournalResult, error)
	GetJournalBalance(ctx context.Context, journalID string) (*JournalResult, error)
}

type ledgerService struct {
	store Store
	newID func() string
	now   func() time.Time
}

// NewService returns a ledger Service.
func NewService(store Store) Service {
	return &ledgerService{store: store, newID: newJournalID, now: time.Now}
}

func (s *ledgerService) PostDoubleEntry(ctx context.Context, p Posting) (*JournalResult, error) {
	if !p.AmountUSD.IsPositive() {
		return nil, apperrors.BadRequestError(nil, "Ledger amount must be positive.")
	}
	if p.DebitAccount == p.CreditAccount {
		return nil, apperrors.BadRequestError(nil, "Debit and credit account must be different.")
	}
	p.AmountUSD = p.AmountUSD.Round(2)

	id := s.newID()
	if err := s.store.InsertJournal(ctx, id, p, s.now().UTC()); err != nil {
		return nil, err
	}
	return &JournalResult{
		JournalID:   id,
		TransferID:  p.TransferID,
		TotalDebit:  p.AmountUSD,
		TotalCredit: p.AmountUSD,
		Balanced:    true,
	}, nil
}

func (s *ledgerService) GetJournalBalance(ctx context.Context, journalID string) (*JournalResult, error) {
	res, err := s.store.GetJournalBalance(ctx, journalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.ResourceNotFoundErrorWithCode(err, apperrors.CodeJournalNotFound, "Journal not found.")
		}
		return nil, err
	}
	return res, nil
}
