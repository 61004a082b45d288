// Package quote prices a transfer: send amount, fee and FX rate, and the resulting ETB payout.
package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/remittance-middleware/pkg/app/errors"
	"github.com/chainsafe/remittance-middleware/pkg/transfer"
)

var (
	// ErrQuoteNotFound is returned when no quote exists for an id.
	ErrQuoteNotFound = errors.New("quote not found")
	// ErrInvalidQuote is returned when quote input fails validation.
	ErrInvalidQuote = errors.New("invalid quote")
)

// Quote is an immutable price for one transfer.
type Quote struct {
	QuoteID            string          `json:"quoteId"`
	Chain              transfer.Chain  `json:"chain"`
	Token              transfer.Token  `json:"token"`
	SendAmountUSD      decimal.Decimal `json:"sendAmountUsd"`
	FxRateUSDToETB     decimal.Decimal `json:"fxRateUsdToEtb"`
	FeeUSD             decimal.Decimal `json:"feeUsd"`
	RecipientAmountETB decimal.Decimal `json:"recipientAmountEtb"`
	ExpiresAt          time.Time       `json:"expiresAt"`
	CreatedAt          time.Time       `json:"createdAt"`
}

// Expired reports whether the quote can no longer be used at now.
func (q *Quote) Expired(now time.Time) bool {
	return !now.Before(q.ExpiresAt)
}

// CreateInput is the request to price a transfer.
type CreateInput struct {
	Chain            transfer.Chain  `json:"chain" validate:"required,oneof=base solana"`
	Token            transfer.Token  `json:"token" validate:"required,oneof=USDC USDT"`
	SendAmountUSD    decimal.Decimal `json:"sendAmountUsd"`
	FxRateUSDToETB   decimal.Decimal `json:"fxRateUsdToEtb"`
	FeeUSD           decimal.Decimal `json:"feeUsd"`
	ExpiresInSeconds int             `json:"expiresInSeconds" validate:"required,gt=0"`
}

// RecipientAmount returns round2((send - fee) * fx).
func RecipientAmount(send, fee, fx decimal.Decimal) decimal.Decimal {
	return send.Sub(fee).Mul(fx).Round(2)
}

// Store persists quotes.
type Store interface {
	CreateQuote(ctx context.Context, q *Quote) error
	GetQuote(ctx context.Context, quoteID string) (*Quote, error)
}

// Service creates and reads quotes.
type Service interface {
	CreateQuote(ctx context.Context, in CreateInput, now time.Time) (*Quote, error)
	GetQuote(ctx context.Context, quoteID string) (*Quote, error)
}

type quoteService struct {
	store       Store
	maxTransfer decimal.Decimal
	logger      *zap.Logger
}

// NewService returns a quote Service enforcing maxTransfer on the send amount.
func NewService(store Store, maxTransfer decimal.Decimal, logger *zap.Logger) Service {
	return &quoteService{store: store, maxTransfer: maxTransfer, logger: logger}
}

func (s *quoteService) CreateQuote(ctx context.Context, in CreateInput, now time.Time) (*Quote, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}

	q := &Quote{
		QuoteID:            "q_" + uuid.NewString(),
		Chain:              in.Chain,
		Token:              in.Token,
		SendAmountUSD:      in.SendAmountUSD.Round(2),
		FxRateUSDToETB:     in.FxRateUSDToETB,
		FeeUSD:             in.FeeUSD.Round(2),
		RecipientAmountETB: RecipientAmount(in.SendAmountUSD, in.FeeUSD, in.FxRateUSDToETB),
		ExpiresAt:          now.Add(time.Duration(in.ExpiresInSeconds) * time.Second).UTC(),
		CreatedAt:          now.UTC(),
	}
	if err := s.store.CreateQuote(ctx, q); err != nil {
		return nil, fmt.Errorf("failed to create quote: %w", err)
	}
	return q, nil
}

func (s *quoteService) validate(in CreateInput) error {
	bad := func(msg string) error {
		return apperrors.BadRequestError(ErrInvalidQuote, msg)
	}
	switch {
	case !in.SendAmountUSD.IsPositive():
		return bad("sendAmountUsd must be positive.")
	case in.SendAmountUSD.GreaterThan(s.maxTransfer):
		return apperrors.BadRequestErrorWithCode(ErrInvalidQuote, apperrors.CodeTransferLimitExceeded,
			fmt.Sprintf("Transfer amount exceeds limit of USD %s.", s.maxTransfer.String()))
	case !in.FxRateUSDToETB.IsPositive():
		return bad("fxRateUsdToEtb must be positive.")
	case in.FeeUSD.IsNegative():
		return bad("feeUsd must not be negative.")
	case in.FeeUSD.GreaterThan(in.SendAmountUSD):
		return bad("feeUsd must not exceed sendAmountUsd.")
	case in.ExpiresInSeconds <= 0:
		return bad("expiresInSeconds must be positive.")
	}
	return nil
}

func (s *quoteService) GetQuote(ctx context.Context, quoteID string) (*Quote, error) {
	q, err := s.store.GetQuote(ctx, quoteID)
	if err != nil {
		if errors.Is(err, ErrQuoteNotFound) {
			return nil, apperrors.ResourceNotFoundErrorWithCode(err, apperrors.CodeQuoteNotFound, "Quote not found.")
		}
		return nil, err
	}
	return q, nil
}
