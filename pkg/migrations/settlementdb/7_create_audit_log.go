package settlementdb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/chainsafe/remittance-middleware/pkg/db/dao"
	mghelper "github.com/chainsafe/remittance-middleware/pkg/pgutil/migrations"
)

const auditEntityIndex = "idx_audit_log_entity"

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating audit_log table...")
		if err := mghelper.CreateSchema(ctx, db, &dao.AuditLogDao{}); err != nil {
			return err
		}
		return mghelper.CreateCompositeIndex(ctx, db, &dao.AuditLogDao{}, auditEntityIndex, false, "",
			"entity_type", "entity_id")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping audit_log table...")
		return mghelper.DropTables(ctx, db, &dao.AuditLogDao{})
	})
}
