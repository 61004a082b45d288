// Package sla flags transfers that sit in a non-terminal status longer than its
// service level allows. Flagging writes audit entries only; transfer state is
// never changed here.
package sla

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/chainsafe/remittance-middleware/internal/metrics"
	"github.com/chainsafe/remittance-middleware/pkg/audit"
	"github.com/chainsafe/remittance-middleware/pkg/db/dao"
	"github.com/chainsafe/remittance-middleware/pkg/transfer"
)

const (
	actorID      = "sla-enforcement-job"
	actionBreach = "sla_breach_detected"
)

// BreachType names the service level a transfer missed.
type BreachType string

// Breach types.
const (
	PayoutSLA  BreachType = "payout_sla"
	FundingSLA BreachType = "funding_sla"
)

// Config sets the limits in minutes per status and the number of breaches flagged per rule and run.
type Config struct {
	PayoutMinutes           int
	FundingConfirmedMinutes int
	BatchSize               int
}

// Breach is one transfer past its limit.
type Breach struct {
	TransferID    string          `json:"transferId"`
	CurrentStatus transfer.Status `json:"currentStatus"`
	SLAMinutes    int             `json:"slaMinutes"`
	AgeMinutes    int             `json:"ageMinutes"`
	BreachType    BreachType      `json:"breachType"`
}

// Result lists the breaches flagged by one run.
type Result struct {
	Breaches      []Breach `json:"breaches"`
	TotalBreaches int      `json:"totalBreaches"`
}

// PayoutDelay is a transfer whose payout started long after its funding confirmed.
type PayoutDelay struct {
	TransferID        string    `bun:"transfer_id" json:"transferId"`
	ConfirmedAt       time.Time `bun:"confirmed_at" json:"confirmedAt"`
	PayoutInitiatedAt time.Time `bun:"payout_initiated_at" json:"payoutInitiatedAt"`
	MinutesToPayout   float64   `bun:"minutes_to_payout" json:"minutesToPayout"`
}

type rule struct {
	status  transfer.Status
	minutes int
	kind    BreachType
}

type candidate struct {
	TransferID string    `bun:"transfer_id"`
	UpdatedAt  time.Time `bun:"updated_at"`
}

// Monitor finds SLA breaches.
type Monitor struct {
	db     *bun.DB
	cfg    Config
	now    func() time.Time
	logger *zap.Logger
}

// NewMonitor returns a Monitor. Non-positive settings fall back to 10 minutes
// for PAYOUT_INITIATED, 30 minutes for FUNDING_CONFIRMED and 50 breaches.
func NewMonitor(db *bun.DB, cfg Config, logger *zap.Logger) *Monitor {
	if cfg.PayoutMinutes < 1 {
		cfg.PayoutMinutes = 10
	}
	if cfg.FundingConfirmedMinutes < 1 {
		cfg.FundingConfirmedMinutes = 30
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 50
	}
	return &Monitor{db: db, cfg: cfg, now: time.Now, logger: logger}
}

// PayoutThreshold returns the PAYOUT_INITIATED limit in minutes.
func (m *Monitor) PayoutThreshold() int { return m.cfg.PayoutMinutes }

// RunOnce flags transfers past their limit. A transfer is flagged once per status.
func (m *Monitor) RunOnce(ctx context.Context) (*Result, error) {
	now := m.now().UTC()
	rules := []rule{
		{status: transfer.StatusPayoutInitiated, minutes: m.cfg.PayoutMinutes, kind: PayoutSLA},
		{status: transfer.StatusFundingConfirmed, minutes: m.cfg.FundingConfirmedMinutes, kind: FundingSLA},
	}

	res := &Result{Breaches: []Breach{}}
	err := m.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, rl := range rules {
			found, err := m.breachesOf(ctx, tx, rl, now)
			if err != nil {
				return err
			}
			for _, b := range found {
				if err := audit.Insert(ctx, tx, audit.Entry{
					ActorType:  audit.ActorSystem,
					ActorID:    actorID,
					Action:     actionBreach,
					EntityType: "transfer",
					EntityID:   b.TransferID,
					Reason: fmt.Sprintf("SLA breach: %s %dmin exceeds %dmin limit",
						b.BreachType, b.AgeMinutes, b.SLAMinutes),
					Metadata: map[string]any{
						"transferId":    b.TransferID,
						"currentStatus": string(b.CurrentStatus),
						"slaMinutes":    b.SLAMinutes,
						"ageMinutes":    b.AgeMinutes,
						"breachType":    string(b.BreachType),
					},
					CreatedAt: now,
				}); err != nil {
					return fmt.Errorf("failed to append audit entry: %w", err)
				}
			}
			res.Breaches = append(res.Breaches, found...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.TotalBreaches = len(res.Breaches)

	if res.TotalBreaches > 0 {
		var payout, funding int
		for _, b := range res.Breaches {
			metrics.SLABreaches.WithLabelValues(string(b.BreachType)).Inc()
			if b.BreachType == PayoutSLA {
				payout++
			} else {
				funding++
			}
		}
		m.logger.Warn("SLA breaches detected",
			zap.Int("total", res.TotalBreaches),
			zap.Int("payout", payout),
			zap.Int("funding", funding))
	}
	return res, nil
}

func (m *Monitor) breachesOf(ctx context.Context, db bun.IDB, rl rule, now time.Time) ([]Breach, error) {
	cutoff := now.Add(-time.Duration(rl.minutes) * time.Minute)
	flagged := db.NewSelect().
		Model((*dao.AuditLogDao)(nil)).
		ColumnExpr("1").
		Where("al.action = ?", actionBreach).
		Where("al.entity_type = 'transfer'").
		Where("al.entity_id = t.transfer_id").
		Where("al.metadata->>'currentStatus' = t.status")

	var rows []candidate
	err := db.NewSelect().
		Model((*dao.TransferDao)(nil)).
		Column("t.transfer_id", "t.updated_at").
		Where("t.status = ?", rl.status).
		Where("t.updated_at < ?", cutoff).
		Where("NOT EXISTS (?)", flagged).
		Order("t.updated_at ASC").
		Limit(m.cfg.BatchSize).
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s breaches: %w", rl.kind, err)
	}

	out := make([]Breach, 0, len(rows))
	for _, row := range rows {
		out = append(out, Breach{
			TransferID:    row.TransferID,
			CurrentStatus: rl.status,
			SLAMinutes:    rl.minutes,
			AgeMinutes:    int(math.Round(now.Sub(row.UpdatedAt).Minutes())),
			BreachType:    rl.kind,
		})
	}
	return out, nil
}

// ListPayoutDelays returns transfers whose payout was initiated more than
// thresholdMinutes after their funding confirmed, slowest first.
func (m *Monitor) ListPayoutDelays(ctx context.Context, thresholdMinutes, limit int) ([]*PayoutDelay, error) {
	var rows []*PayoutDelay
	err := m.db.NewRaw(`
		SELECT t.transfer_id,
		       fe.confirmed_at,
		       pse.created_at AS payout_initiated_at,
		       (EXTRACT(EPOCH FROM (pse.created_at - fe.confirmed_at)) / 60)::float8 AS minutes_to_payout
		FROM transfers t
		JOIN onchain_funding_event fe ON fe.transfer_id = t.transfer_id
		JOIN payout_status_event pse ON pse.transfer_id = t.transfer_id AND pse.to_status = ?
		WHERE pse.created_at - fe.confirmed_at > ? * interval '1 minute'
		ORDER BY minutes_to_payout DESC
		LIMIT ?`,
		string(transfer.StatusPayoutInitiated), thresholdMinutes, limit,
	).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list payout delays: %w", err)
	}
	if rows == nil {
		rows = []*PayoutDelay{}
	}
	return rows, nil
}
