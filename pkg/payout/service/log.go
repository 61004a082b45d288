package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/remittance-middleware/pkg/payout"
)

const serviceName = "PayoutService"

// logService wraps Service with logging of every call
type logService struct {
	svc    Service
	logger *zap.Logger
}

// NewLog creates a logging decorator for the payout Service.
func NewLog(svc Service, logger *zap.Logger) Service {
	return &logService{svc: svc, logger: logger}
}

// InitiatePayout wraps the service method with logging
func (ls *logService) InitiatePayout(ctx context.Context, in payout.InitiateInput) (res *payout.Result, err error) {
	start := time.Now()

	ls.logger.Info("InitiatePayout started",
		zap.String("service", serviceName),
		zap.String("method", "InitiatePayout"),
		zap.String("transfer_id", in.TransferID),
		zap.String("payout_method", string(in.Method)),
		zap.String("recipient_account_ref", redactAccount(in.RecipientAccountRef)),
	)

	defer func() {
		duration := time.Since(start)
		if err != nil {
			ls.logger.Error("InitiatePayout failed",
				zap.String("service", serviceName),
				zap.String("method", "InitiatePayout"),
				zap.String("transfer_id", in.TransferID),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
			return
		}
		ls.logger.Info("InitiatePayout completed",
			zap.String("service", serviceName),
			zap.String("method", "InitiatePayout"),
			zap.String("transfer_id", res.TransferID),
			zap.String("payout_id", res.PayoutID),
			zap.String("status", string(res.Status)),
			zap.Int("attempts", res.Attempts),
			zap.Duration("duration", duration),
		)
	}()

	return ls.svc.InitiatePayout(ctx, in)
}

// HandleStatusCallback wraps the service method with logging
func (ls *logService) HandleStatusCallback(ctx context.Context, cb payout.Callback) (res *payout.CallbackResult, err error) {
	start := time.Now()

	defer func() {
		duration := time.Since(start)
		if err != nil {
			ls.logger.Warn("HandleStatusCallback failed",
				zap.String("service", serviceName),
				zap.String("payout_id", cb.PayoutID),
				zap.String("callback_status", string(cb.Status)),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
			return
		}
		ls.logger.Info("HandleStatusCallback completed",
			zap.String("service", serviceName),
			zap.String("payout_id", res.PayoutID),
			zap.String("status", string(res.Status)),
			zap.Bool("already_processed", res.Message != ""),
			zap.Duration("duration", duration),
		)
	}()

	return ls.svc.HandleStatusCallback(ctx, cb)
}

// GetPayout wraps the service method
func (ls *logService) GetPayout(ctx context.Context, payoutID string) (*payout.Details, error) {
	return ls.svc.GetPayout(ctx, payoutID)
}

// redactAccount keeps the last four characters of an account reference.
func redactAccount(ref string) string {
	if len(ref) <= 4 {
		return "****"
	}
	return "****" + ref[len(ref)-4:]
}
