// Package service orchestrates payouts: partner dispatch with retries and provider status callbacks.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/remittance-middleware/internal/metrics"
	apperrors "github.com/chainsafe/remittance-middleware/pkg/app/errors"
	"github.com/chainsafe/remittance-middleware/pkg/notify"
	"github.com/chainsafe/remittance-middleware/pkg/payout"
	"github.com/chainsafe/remittance-middleware/pkg/payout/adapter"
	"github.com/chainsafe/remittance-middleware/pkg/retry"
	"github.com/chainsafe/remittance-middleware/pkg/transfer"
)

var (
	// ErrTransferStateInvalid is returned when the transfer is not ready for payout.
	ErrTransferStateInvalid = errors.New("transfer not in a payable state")
	// ErrPayoutStateInvalid is returned when a callback targets an instruction that is not in flight.
	ErrPayoutStateInvalid = errors.New("payout not awaiting a callback")
	// ErrPayoutInProgress is returned when another caller is dispatching the same payout.
	ErrPayoutInProgress = errors.New("payout dispatch in progress")
)

const (
	alreadyProcessed = "Already processed."

	defaultDispatchLease = 2 * time.Minute
	releaseTimeout       = 5 * time.Second
)

// Store persists payout instructions.
type Store interface {
	GetTransfer(ctx context.Context, transferID string) (*transfer.Transfer, error)
	GetOrCreateInstruction(ctx context.Context, in payout.InitiateInput, now time.Time) (*payout.Instruction, error)
	GetInstruction(ctx context.Context, payoutID string) (*payout.Instruction, error)
	ClaimDispatch(ctx context.Context, payoutID string, now time.Time, lease time.Duration) (bool, error)
	ReleaseDispatch(ctx context.Context, payoutID string) error
	ListEvents(ctx context.Context, payoutID string) ([]*payout.StatusEvent, error)
	MarkInitiated(ctx context.Context, ins *payout.Instruction, providerRef string, attempts int, now time.Time) (*payout.Instruction, error)
	MarkReviewRequired(ctx context.Context, ins *payout.Instruction, attempts int, errMsg string, now time.Time) (*payout.Instruction, error)
	ApplyCallback(ctx context.Context, ins *payout.Instruction, to payout.Status, cb payout.Callback, now time.Time) (*payout.Instruction, error)
}

// Resolver picks the adapter of a payout method.
type Resolver interface {
	Resolve(method payout.Method) (adapter.Adapter, error)
}

// Service initiates payouts and applies provider callbacks.
type Service interface {
	InitiatePayout(ctx context.Context, in payout.InitiateInput) (*payout.Result, error)
	HandleStatusCallback(ctx context.Context, cb payout.Callback) (*payout.CallbackResult, error)
	GetPayout(ctx context.Context, payoutID string) (*payout.Details, error)
}

type payoutService struct {
	store      Store
	adapters   Resolver
	retrier    *retry.Retrier
	lease      time.Duration
	dispatcher notify.Dispatcher
	now        func() time.Time
	logger     *zap.Logger
}

// NewService returns a payout Service dispatching under policy. A caller owns a
// pending instruction for lease while it calls the partner; a non-positive lease
// means two minutes.
func NewService(
	store Store,
	adapters Resolver,
	policy retry.Policy,
	lease time.Duration,
	dispatcher notify.Dispatcher,
	logger *zap.Logger,
	opts ...retry.Option,
) Service {
	opts = append([]retry.Option{retry.WithOnRetry(func(attempt int, delay time.Duration, err error) {
		logger.Warn("payout attempt failed, backing off",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	})}, opts...)
	if lease <= 0 {
		lease = defaultDispatchLease
	}
	return &payoutService{
		store:      store,
		adapters:   adapters,
		retrier:    retry.New(policy, opts...),
		lease:      lease,
		dispatcher: dispatcher,
		now:        time.Now,
		logger:     logger,
	}
}

func (s *payoutService) InitiatePayout(ctx context.Context, in payout.InitiateInput) (*payout.Result, error) {
	t, err := s.store.GetTransfer(ctx, in.TransferID)
	if err != nil {
		if errors.Is(err, transfer.ErrNotFound) {
			return nil, apperrors.ResourceNotFoundErrorWithCode(err, apperrors.CodeTransferNotFound, "Transfer not found.")
		}
		return nil, err
	}
	if t.Status != transfer.StatusFundingConfirmed && t.Status != transfer.StatusPayoutInitiated {
		return nil, apperrors.ConflictErrorWithCode(ErrTransferStateInvalid, apperrors.CodeTransferStateInvalid,
			fmt.Sprintf("Transfer %s is in state %s.", t.TransferID, t.Status))
	}

	a, err := s.adapters.Resolve(in.Method)
	if err != nil {
		if errors.Is(err, adapter.ErrFeatureDisabled) {
			return nil, apperrors.ForbiddenErrorWithCode(err, apperrors.CodeFeatureDisabled,
				fmt.Sprintf("Payout method %s is disabled.", in.Method))
		}
		return nil, apperrors.BadRequestError(err, fmt.Sprintf("Unsupported payout method %s.", in.Method))
	}

	ins, err := s.store.GetOrCreateInstruction(ctx, in, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if ins.Status != payout.StatusPending {
		return resultOf(ins), nil
	}

	claimed, err := s.store.ClaimDispatch(ctx, ins.PayoutID, s.now().UTC(), s.lease)
	if err != nil {
		return nil, err
	}
	if !claimed {
		current, err := s.store.GetInstruction(ctx, ins.PayoutID)
		if err != nil {
			return nil, err
		}
		if current.Status != payout.StatusPending {
			return resultOf(current), nil
		}
		return nil, apperrors.ConflictErrorWithCode(ErrPayoutInProgress, apperrors.CodePayoutInProgress,
			fmt.Sprintf("Payout %s is already being dispatched.", ins.PayoutID))
	}

	req := adapter.Request{
		PayoutID:            ins.PayoutID,
		TransferID:          ins.TransferID,
		Method:              ins.Method,
		RecipientAccountRef: ins.RecipientAccountRef,
		AmountETB:           ins.AmountETB,
	}
	// Every dispatch of an instruction carries the same partner key, so a
	// resumed dispatch is deduplicated by the partner.
	key := "payout:initiate:" + ins.PayoutID

	var resp *adapter.Response
	attempts, sendErr := s.retrier.Do(ctx, func(ctx context.Context, _ int) error {
		var err error
		resp, err = a.Send(ctx, req, key)
		metrics.PayoutAttempts.WithLabelValues(string(ins.Method), attemptOutcome(err)).Inc()
		return err
	}, adapter.IsRetryable)

	if sendErr == nil {
		updated, err := s.store.MarkInitiated(ctx, ins, resp.ProviderReference, attempts, s.now().UTC())
		if err != nil {
			return nil, err
		}
		metrics.Payouts.WithLabelValues(string(updated.Status)).Inc()
		return resultOf(updated), nil
	}

	if retry.IsContextError(sendErr) || ctx.Err() != nil {
		s.release(ctx, ins.PayoutID)
		return nil, fmt.Errorf("payout dispatch interrupted: %w", sendErr)
	}

	s.logger.Warn("payout requires review",
		zap.String("payout_id", ins.PayoutID),
		zap.String("transfer_id", ins.TransferID),
		zap.Int("attempts", attempts),
		zap.Error(sendErr))

	updated, err := s.store.MarkReviewRequired(ctx, ins, attempts, sendErr.Error(), s.now().UTC())
	if err != nil {
		return nil, err
	}
	metrics.Payouts.WithLabelValues(string(updated.Status)).Inc()
	return resultOf(updated), nil
}

func (s *payoutService) HandleStatusCallback(ctx context.Context, cb payout.Callback) (*payout.CallbackResult, error) {
	ins, err := s.store.GetInstruction(ctx, cb.PayoutID)
	if err != nil {
		if errors.Is(err, payout.ErrNotFound) {
			metrics.PayoutCallbacks.WithLabelValues("not_found").Inc()
			return nil, apperrors.ResourceNotFoundErrorWithCode(err, apperrors.CodePayoutNotFound,
				fmt.Sprintf("No payout instruction found for %s.", cb.PayoutID))
		}
		return nil, err
	}

	if ins.Status.IsTerminal() {
		metrics.PayoutCallbacks.WithLabelValues("already_processed").Inc()
		return alreadyProcessedResult(ins), nil
	}
	if ins.Status != payout.StatusInitiated {
		metrics.PayoutCallbacks.WithLabelValues("invalid_state").Inc()
		return nil, stateInvalid(ins)
	}

	to := payout.StatusCompleted
	if cb.Status == payout.CallbackFailed {
		to = payout.StatusFailed
		if cb.ErrorMessage == "" {
			cb.ErrorMessage = "Payout failed (no details from provider)"
		}
	}

	updated, err := s.store.ApplyCallback(ctx, ins, to, cb, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if updated.Status != to {
		// Lost a race with another callback.
		if updated.Status.IsTerminal() {
			metrics.PayoutCallbacks.WithLabelValues("already_processed").Inc()
			return alreadyProcessedResult(updated), nil
		}
		metrics.PayoutCallbacks.WithLabelValues("invalid_state").Inc()
		return nil, stateInvalid(updated)
	}

	metrics.PayoutCallbacks.WithLabelValues("applied").Inc()
	metrics.Payouts.WithLabelValues(string(to)).Inc()

	evType := notify.PayoutCompleted
	if to == payout.StatusFailed {
		evType = notify.PayoutFailed
	}
	fields := map[string]string{"payoutId": updated.PayoutID, "providerReference": cb.ProviderReference}
	if cb.ErrorMessage != "" && to == payout.StatusFailed {
		fields["errorMessage"] = cb.ErrorMessage
	}
	notify.Send(ctx, s.dispatcher, s.logger, notify.Event{Type: evType, TransferID: updated.TransferID, Fields: fields})

	return &payout.CallbackResult{
		PayoutID:   updated.PayoutID,
		TransferID: updated.TransferID,
		Status:     cb.Status,
	}, nil
}

func (s *payoutService) GetPayout(ctx context.Context, payoutID string) (*payout.Details, error) {
	ins, err := s.store.GetInstruction(ctx, payoutID)
	if err != nil {
		if errors.Is(err, payout.ErrNotFound) {
			return nil, apperrors.ResourceNotFoundErrorWithCode(err, apperrors.CodePayoutNotFound, "Payout not found.")
		}
		return nil, err
	}
	events, err := s.store.ListEvents(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	return &payout.Details{Instruction: ins, Events: events}, nil
}

// release frees the dispatch lease so a retry can resume without waiting for it to run out.
func (s *payoutService) release(ctx context.Context, payoutID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := s.store.ReleaseDispatch(ctx, payoutID); err != nil {
		s.logger.Warn("failed to release payout dispatch lease", zap.String("payout_id", payoutID), zap.Error(err))
	}
}

func resultOf(ins *payout.Instruction) *payout.Result {
	status := payout.ResultInitiated
	if ins.Status == payout.StatusReviewRequired {
		status = payout.ResultReviewRequired
	}
	return &payout.Result{
		Status:            status,
		PayoutID:          ins.PayoutID,
		TransferID:        ins.TransferID,
		ProviderReference: ins.ProviderReference,
		Attempts:          ins.AttemptCount,
	}
}

func alreadyProcessedResult(ins *payout.Instruction) *payout.CallbackResult {
	return &payout.CallbackResult{
		PayoutID: ins.PayoutID,
		Status:   payout.CallbackStatusOf(ins.Status),
		Message:  alreadyProcessed,
	}
}

func stateInvalid(ins *payout.Instruction) error {
	return apperrors.ConflictErrorWithCode(ErrPayoutStateInvalid, apperrors.CodePayoutStateInvalid,
		fmt.Sprintf("Payout %s is in state %s, expected %s.", ins.PayoutID, ins.Status, payout.StatusInitiated))
}

func attemptOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case adapter.IsRetryable(err):
		return "retryable"
	case errors.Is(err, adapter.ErrFeatureDisabled):
		return "disabled"
	default:
		return "non_retryable"
	}
}
