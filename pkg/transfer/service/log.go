package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/remittance-middleware/pkg/transfer"
)

const serviceName = "TransferService"

// logService wraps Service with logging of every call
type logService struct {
	svc    Service
	logger *zap.Logger
}

// NewLog creates a logging decorator for the transfer Service.
func NewLog(svc Service, logger *zap.Logger) Service {
	return &logService{svc: svc, logger: logger}
}

// CreateTransfer wraps the service method with logging
func (ls *logService) CreateTransfer(
	ctx context.Context,
	in transfer.CreateInput,
	now time.Time,
) (c *transfer.Creation, err error) {
	start := time.Now()

	ls.logger.Info("CreateTransfer started",
		zap.String("service", serviceName),
		zap.String("method", "CreateTransfer"),
		zap.String("quote_id", in.QuoteID),
		zap.String("sender_id", in.SenderID),
		zap.String("receiver_id", in.ReceiverID),
	)

	defer func() {
		duration := time.Since(start)
		if err != nil {
			ls.logger.Error("CreateTransfer failed",
				zap.String("service", serviceName),
				zap.String("method", "CreateTransfer"),
				zap.String("quote_id", in.QuoteID),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
			return
		}
		ls.logger.Info("CreateTransfer completed",
			zap.String("service", serviceName),
			zap.String("method", "CreateTransfer"),
			zap.String("transfer_id", c.Transfer.TransferID),
			zap.String("chain", string(c.Transfer.Chain)),
			zap.String("deposit_address", c.DepositRoute.DepositAddress),
			zap.Duration("duration", duration),
		)
	}()

	return ls.svc.CreateTransfer(ctx, in, now)
}

// GetTransfer wraps the service method with logging
func (ls *logService) GetTransfer(ctx context.Context, transferID string) (d *transfer.Details, err error) {
	start := time.Now()
	defer func() {
		if err != nil {
			ls.logger.Debug("GetTransfer failed",
				zap.String("service", serviceName),
				zap.String("transfer_id", transferID),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
		}
	}()
	return ls.svc.GetTransfer(ctx, transferID)
}
