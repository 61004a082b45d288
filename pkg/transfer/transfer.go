// Package transfer defines the transfer aggregate, its deposit route and its status state machine.
package transfer

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Chain is a supported funding chain.
type Chain string

// Supported chains.
const (
	ChainBase   Chain = "base"
	ChainSolana Chain = "solana"
)

// Token is a supported stablecoin.
type Token string

// Supported tokens.
const (
	TokenUSDC Token = "USDC"
	TokenUSDT Token = "USDT"
)

// ErrNotFound is returned when no transfer exists for an id.
var ErrNotFound = errors.New("transfer not found")

// KYCApproved is the only KYC status accepted for senders and receivers.
const KYCApproved = "approved"

// Transfer is one sender-to-receiver value movement. The KYC fields are a
// snapshot taken at creation and never change afterwards.
type Transfer struct {
	TransferID                 string          `json:"transferId"`
	QuoteID                    string          `json:"quoteId"`
	SenderID                   string          `json:"senderId"`
	ReceiverID                 string          `json:"receiverId"`
	SenderKYCStatus            string          `json:"senderKycStatus"`
	ReceiverKYCStatus          string          `json:"receiverKycStatus"`
	ReceiverNationalIDVerified bool            `json:"receiverNationalIdVerified"`
	Chain                      Chain           `json:"chain"`
	Token                      Token           `json:"token"`
	SendAmountUSD              decimal.Decimal `json:"sendAmountUsd"`
	Status                     Status          `json:"status"`
	CreatedAt                  time.Time       `json:"createdAt"`
	UpdatedAt                  time.Time       `json:"updatedAt"`
}

// RouteStatus is the status of a deposit route.
type RouteStatus string

// Route statuses.
const (
	RouteActive  RouteStatus = "active"
	RouteRetired RouteStatus = "retired"
)

// DepositRoute is the on-chain address assigned to a transfer.
type DepositRoute struct {
	RouteID        string      `json:"routeId"`
	TransferID     string      `json:"transferId"`
	Chain          Chain       `json:"chain"`
	Token          Token       `json:"token"`
	DepositAddress string      `json:"depositAddress"`
	DepositMemo    string      `json:"depositMemo,omitempty"`
	Status         RouteStatus `json:"status"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// TransitionEvent is one entry of a transfer's status timeline.
type TransitionEvent struct {
	TransferID string         `json:"transferId"`
	From       *Status        `json:"fromState"`
	To         Status         `json:"toState"`
	OccurredAt time.Time      `json:"occurredAt"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Creation is the result of creating a transfer.
type Creation struct {
	Transfer     *Transfer     `json:"transfer"`
	DepositRoute *DepositRoute `json:"depositRoute"`
}

// Details is a transfer with its timeline.
type Details struct {
	Transfer    *Transfer          `json:"transfer"`
	Transitions []*TransitionEvent `json:"transitions"`
}

// CreateInput is the request to create a transfer from a quote.
type CreateInput struct {
	QuoteID                    string `json:"quoteId" validate:"required"`
	SenderID                   string `json:"senderId" validate:"required"`
	ReceiverID                 string `json:"receiverId" validate:"required"`
	SenderKYCStatus            string `json:"senderKycStatus" validate:"required,oneof=approved pending rejected"`
	ReceiverKYCStatus          string `json:"receiverKycStatus" validate:"required,oneof=approved pending rejected"`
	ReceiverNationalIDVerified bool   `json:"receiverNationalIdVerified"`
}
