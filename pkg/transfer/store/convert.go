package store

import (
	"github.com/chainsafe/remittance-middleware/pkg/db/dao"
	"github.com/chainsafe/remittance-middleware/pkg/transfer"
)

func toTransferDao(t *transfer.Transfer) *dao.TransferDao {
	return &dao.TransferDao{
		TransferID:                 t.TransferID,
		QuoteID:                    t.QuoteID,
		SenderID:                   t.SenderID,
		ReceiverID:                 t.ReceiverID,
		SenderKYCStatus:            t.SenderKYCStatus,
		ReceiverKYCStatus:          t.ReceiverKYCStatus,
		ReceiverNationalIDVerified: t.ReceiverNationalIDVerified,
		Chain:                      string(t.Chain),
		Token:                      string(t.Token),
		SendAmountUSD:              t.SendAmountUSD,
		Status:                     string(t.Status),
		CreatedAt:                  t.CreatedAt,
		UpdatedAt:                  t.UpdatedAt,
	}
}

func fromTransferDao(row *dao.TransferDao) *transfer.Transfer {
	return &transfer.Transfer{
		TransferID:                 row.TransferID,
		QuoteID:                    row.QuoteID,
		SenderID:                   row.SenderID,
		ReceiverID:                 row.ReceiverID,
		SenderKYCStatus:            row.SenderKYCStatus,
		ReceiverKYCStatus:          row.ReceiverKYCStatus,
		ReceiverNationalIDVerified: row.ReceiverNationalIDVerified,
		Chain:                      transfer.Chain(row.Chain),
		Token:                      transfer.Token(row.Token),
		SendAmountUSD:              row.SendAmountUSD,
		Status:                     transfer.Status(row.Status),
		CreatedAt:                  row.CreatedAt,
		UpdatedAt:                  row.UpdatedAt,
	}
}

func toRouteDao(r *transfer.DepositRoute) *dao.DepositRouteDao {
	row := &dao.DepositRouteDao{
		RouteID:        r.RouteID,
		TransferID:     r.TransferID,
		Chain:          string(r.Chain),
		Token:          string(r.Token),
		DepositAddress: r.DepositAddress,
		Status:         string(r.Status),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.CreatedAt,
	}
	if r.DepositMemo != "" {
		memo := r.DepositMemo
		row.DepositMemo = &memo
	}
	return row
}

func fromRouteDao(row *dao.DepositRouteDao) *transfer.DepositRoute {
	r := &transfer.DepositRoute{
		RouteID:        row.RouteID,
		TransferID:     row.TransferID,
		Chain:          transfer.Chain(row.Chain),
		Token:          transfer.Token(row.Token),
		DepositAddress: row.DepositAddress,
		Status:         transfer.RouteStatus(row.Status),
		CreatedAt:      row.CreatedAt,
	}
	if row.DepositMemo != nil {
		r.DepositMemo = *row.DepositMemo
	}
	return r
}

func toTransitionDao(ev *transfer.TransitionEvent) *dao.TransferTransitionDao {
	row := &dao.TransferTransitionDao{
		TransferID: ev.TransferID,
		ToState:    string(ev.To),
		OccurredAt: ev.OccurredAt,
		Metadata:   ev.Metadata,
	}
	if ev.From != nil {
		from := string(*ev.From)
		row.FromState = &from
	}
	return row
}

func fromTransitionDao(row *dao.TransferTransitionDao) *transfer.TransitionEvent {
	ev := &transfer.TransitionEvent{
		TransferID: row.TransferID,
		To:         transfer.Status(row.ToState),
		OccurredAt: row.OccurredAt,
		Metadata:   row.Metadata,
	}
	if row.FromState != nil {
		from := transfer.Status(*row.FromState)
		ev.From = &from
	}
	return ev
}
