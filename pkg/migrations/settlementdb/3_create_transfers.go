package settlementdb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/chainsafe/remittance-middleware/pkg/db/dao"
	mghelper "github.com/chainsafe/remittance-middleware/pkg/pgutil/migrations"
)

// Active deposit routes must be globally unique per (chain, token, address) and per transfer.
const (
	activeRouteAddressIndex  = "uq_deposit_routes_active_address"
	activeRouteTransferIndex = "uq_deposit_routes_active_transfer"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating transfers, transfer_transition and deposit_routes tables...")
		if err := mghelper.CreateSchema(ctx, db,
			&dao.TransferDao{}, &dao.TransferTransitionDao{}, &dao.DepositRouteDao{}); err != nil {
			return err
		}
		if err := mghelper.CreateModelIndexes(ctx, db, &dao.TransferDao{}, "status", "created_at", "quote_id"); err != nil {
			return err
		}
		if err := mghelper.CreateModelIndexes(ctx, db, &dao.TransferTransitionDao{}, "transfer_id"); err != nil {
			return err
		}
		if err := mghelper.CreateCompositeIndex(ctx, db, &dao.DepositRouteDao{}, activeRouteAddressIndex, true,
			"status = 'active'", "chain", "token", "deposit_address"); err != nil {
			return err
		}
		return mghelper.CreateCompositeIndex(ctx, db, &dao.DepositRouteDao{}, activeRouteTransferIndex, true,
			"status = 'active'", "transfer_id")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping transfers, transfer_transition and deposit_routes tables...")
		return mghelper.DropTables(ctx, db, &dao.DepositRouteDao{}, &dao.TransferTransitionDao{}, &dao.TransferDao{})
	})
}
