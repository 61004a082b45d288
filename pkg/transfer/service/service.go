// Package service creates transfers from quotes and serves the transfer read model.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainsafe/remittance-middleware/internal/metrics"
	apperrors "github.com/chainsafe/remittance-middleware/pkg/app/errors"
	"github.com/chainsafe/remittance-middleware/pkg/deposit"
	"github.com/chainsafe/remittance-middleware/pkg/kyc"
	"github.com/chainsafe/remittance-middleware/pkg/quote"
	"github.com/chainsafe/remittance-middleware/pkg/transfer"
)

var (
	// ErrQuoteExpired is returned when the quote expired before the transfer was created.
	ErrQuoteExpired = errors.New("quote expired")
	// ErrTransferValidation is returned when sender or receiver eligibility checks fail.
	ErrTransferValidation = errors.New("transfer validation failed")
	// ErrTransferLimitExceeded is returned when the quoted amount is above the configured limit.
	ErrTransferLimitExceeded = errors.New("transfer limit exceeded")
)

// Store persists transfers.
type Store interface {
	CreateTransfer(ctx context.Context, c *transfer.Creation, initial *transfer.TransitionEvent) error
	GetTransfer(ctx context.Context, transferID string) (*transfer.Transfer, error)
	ListTransitions(ctx context.Context, transferID string) ([]*transfer.TransitionEvent, error)
}

// QuoteReader reads quotes.
type QuoteReader interface {
	GetQuote(ctx context.Context, quoteID string) (*quote.Quote, error)
}

// ProfileReader reads receiver KYC profiles. A missing profile is (nil, nil).
type ProfileReader interface {
	GetByReceiverID(ctx context.Context, receiverID string) (*kyc.Profile, error)
}

// Service creates and reads transfers.
type Service interface {
	CreateTransfer(ctx context.Context, in transfer.CreateInput, now time.Time) (*transfer.Creation, error)
	GetTransfer(ctx context.Context, transferID string) (*transfer.Details, error)
}

type transferService struct {
	store       Store
	quotes      QuoteReader
	profiles    ProfileReader
	deposits    deposit.Strategy
	maxTransfer decimal.Decimal
	logger      *zap.Logger
}

// NewService returns a transfer Service.
func NewService(
	store Store,
	quotes QuoteReader,
	profiles ProfileReader,
	deposits deposit.Strategy,
	maxTransfer decimal.Decimal,
	logger *zap.Logger,
) Service {
	return &transferService{
		store:       store,
		quotes:      quotes,
		profiles:    profiles,
		deposits:    deposits,
		maxTransfer: maxTransfer,
		logger:      logger,
	}
}

func (s *transferService) CreateTransfer(ctx context.Context, in transfer.CreateInput, now time.Time) (*transfer.Creation, error) {
	q, err := s.quotes.GetQuote(ctx, in.QuoteID)
	if err != nil {
		if errors.Is(err, quote.ErrQuoteNotFound) {
			return nil, apperrors.ResourceNotFoundErrorWithCode(err, apperrors.CodeQuoteNotFound, "Quote not found.")
		}
		return nil, fmt.Errorf("failed to load quote: %w", err)
	}
	if q.Expired(now) {
		return nil, apperrors.ConflictErrorWithCode(ErrQuoteExpired, apperrors.CodeQuoteExpired, "Quote has expired.")
	}
	if q.SendAmountUSD.GreaterThan(s.maxTransfer) {
		return nil, apperrors.BadRequestErrorWithCode(ErrTransferLimitExceeded, apperrors.CodeTransferLimitExceeded,
			fmt.Sprintf("Transfer amount exceeds limit of USD %s.", s.maxTransfer.String()))
	}

	receiverStatus, nationalIDVerified, err := s.resolveReceiver(ctx, in)
	if err != nil {
		return nil, err
	}
	if in.SenderKYCStatus != transfer.KYCApproved || receiverStatus != transfer.KYCApproved {
		return nil, validationError("Sender and receiver KYC must be approved.")
	}
	if !nationalIDVerified {
		return nil, validationError("Receiver National ID must be verified before transfer creation.")
	}

	transferID := "tr_" + uuid.NewString()
	addr, err := s.deposits.Generate(q.Chain, transferID)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate deposit address: %w", err)
	}

	now = now.UTC()
	c := &transfer.Creation{
		Transfer: &transfer.Transfer{
			TransferID:                 transferID,
			QuoteID:                    q.QuoteID,
			SenderID:                   in.SenderID,
			ReceiverID:                 in.ReceiverID,
			SenderKYCStatus:            in.SenderKYCStatus,
			ReceiverKYCStatus:          receiverStatus,
			ReceiverNationalIDVerified: nationalIDVerified,
			Chain:                      q.Chain,
			Token:                      q.Token,
			SendAmountUSD:              q.SendAmountUSD,
			Status:                     transfer.StatusAwaitingFunding,
			CreatedAt:                  now,
			UpdatedAt:                  now,
		},
		DepositRoute: &transfer.DepositRoute{
			RouteID:        "route_" + uuid.NewString(),
			TransferID:     transferID,
			Chain:          q.Chain,
			Token:          q.Token,
			DepositAddress: addr.Address,
			DepositMemo:    addr.Memo,
			Status:         transfer.RouteActive,
			CreatedAt:      now,
		},
	}
	initial := &transfer.TransitionEvent{
		TransferID: transferID,
		To:         transfer.StatusAwaitingFunding,
		OccurredAt: now,
		Metadata: map[string]any{
			"reason":         "transfer_created",
			"quoteId":        q.QuoteID,
			"derivationPath": addr.DerivationPath,
		},
	}
	if err := s.store.CreateTransfer(ctx, c, initial); err != nil {
		return nil, fmt.Errorf("failed to persist transfer: %w", err)
	}

	metrics.TransfersCreated.WithLabelValues(string(q.Chain), string(q.Token)).Inc()
	return c, nil
}

// resolveReceiver applies the stored KYC profile over the caller supplied receiver values.
func (s *transferService) resolveReceiver(ctx context.Context, in transfer.CreateInput) (string, bool, error) {
	p, err := s.profiles.GetByReceiverID(ctx, in.ReceiverID)
	if err != nil {
		return "", false, fmt.Errorf("failed to load receiver kyc profile: %w", err)
	}
	if p == nil {
		return in.ReceiverKYCStatus, in.ReceiverNationalIDVerified, nil
	}
	return string(p.KYCStatus), p.NationalIDVerified, nil
}

func (s *transferService) GetTransfer(ctx context.Context, transferID string) (*transfer.Details, error) {
	t, err := s.store.GetTransfer(ctx, transferID)
	if err != nil {
		if errors.Is(err, transfer.ErrNotFound) {
			return nil, apperrors.ResourceNotFoundErrorWithCode(err, apperrors.CodeTransferNotFound, "Transfer not found.")
		}
		return nil, err
	}
	transitions, err := s.store.ListTransitions(ctx, transferID)
	if err != nil {
		return nil, err
	}
	return &transfer.Details{Transfer: t, Transitions: transitions}, nil
}

func validationError(msg string) error {
	return apperrors.BadRequestErrorWithCode(ErrTransferValidation, apperrors.CodeTransferValidation, msg)
}
