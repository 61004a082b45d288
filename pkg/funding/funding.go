// Package funding applies on-chain deposit confirmations to transfers.
package funding

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainsafe/remittance-middleware/internal/metrics"
	"github.com/chainsafe/remittance-middleware/pkg/notify"
	"github.com/chainsafe/remittance-middleware/pkg/transfer"
)

// ResultStatus is the outcome of processing one confirmation.
type ResultStatus string

// Confirmation outcomes.
const (
	StatusConfirmed     ResultStatus = "confirmed"
	StatusDuplicate     ResultStatus = "duplicate"
	StatusRouteNotFound ResultStatus = "route_not_found"
	StatusInvalidState  ResultStatus = "invalid_state"
)

// Event is a confirmed on-chain deposit reported by a chain watcher.
type Event struct {
	EventID        string          `json:"eventId" validate:"required,min=1,max=128"`
	Chain          transfer.Chain  `json:"chain" validate:"required,oneof=base solana"`
	Token          transfer.Token  `json:"token" validate:"required,oneof=USDC USDT"`
	TxHash         string          `json:"txHash" validate:"required,max=128"`
	LogIndex       int             `json:"logIndex" validate:"gte=0"`
	DepositAddress string          `json:"depositAddress" validate:"required,max=128"`
	AmountUSD      decimal.Decimal `json:"amountUsd"`
	ConfirmedAt    time.Time       `json:"confirmedAt" validate:"required"`
}

// Result is returned for every processed confirmation.
type Result struct {
	Status     ResultStatus `json:"status"`
	TransferID string       `json:"transferId,omitempty"`
}

// RouteFinder resolves a deposit address to its active route.
type RouteFinder interface {
	FindActiveRoute(ctx context.Context, chain transfer.Chain, token transfer.Token, address string) (*transfer.DepositRoute, error)
}

// Store applies a confirmation to the transfer of a route.
type Store interface {
	RouteFinder
	ApplyConfirmation(ctx context.Context, transferID string, ev Event, now time.Time) (ResultStatus, error)
}

// Service processes funding confirmations.
type Service interface {
	ProcessFundingConfirmed(ctx context.Context, ev Event) (*Result, error)
}

type fundingService struct {
	store      Store
	dispatcher notify.Dispatcher
	now        func() time.Time
	logger     *zap.Logger
}

// NewService returns a funding Service.
func NewService(store Store, dispatcher notify.Dispatcher, logger *zap.Logger) Service {
	return &fundingService{store: store, dispatcher: dispatcher, now: time.Now, logger: logger}
}

func (s *fundingService) ProcessFundingConfirmed(ctx context.Context, ev Event) (*Result, error) {
	route, err := s.store.FindActiveRoute(ctx, ev.Chain, ev.Token, ev.DepositAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to find deposit route: %w", err)
	}
	if route == nil {
		metrics.FundingConfirmations.WithLabelValues(string(StatusRouteNotFound)).Inc()
		return &Result{Status: StatusRouteNotFound}, nil
	}

	status, err := s.store.ApplyConfirmation(ctx, route.TransferID, ev, s.now().UTC())
	if err != nil {
		return nil, err
	}
	metrics.FundingConfirmations.WithLabelValues(string(status)).Inc()

	if status == StatusConfirmed {
		notify.Send(ctx, s.dispatcher, s.logger, notify.Event{
			Type:       notify.FundingConfirmed,
			TransferID: route.TransferID,
			Fields: map[string]string{
				"chain":     string(ev.Chain),
				"txHash":    ev.TxHash,
				"amountUsd": ev.AmountUSD.StringFixed(2),
			},
		})
	}
	return &Result{Status: status, TransferID: route.TransferID}, nil
}
