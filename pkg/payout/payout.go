// Package payout defines payout instructions, their status lifecycle and the provider callback contract.
package payout

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Method is a payout rail.
type Method string

// Payout methods.
const (
	MethodBank     Method = "bank"
	MethodTelebirr Method = "telebirr"
)

// Status is the status of a payout instruction.
type Status string

// Instruction statuses.
const (
	StatusPending        Status = "PAYOUT_PENDING"
	StatusInitiated      Status = "PAYOUT_INITIATED"
	StatusCompleted      Status = "PAYOUT_COMPLETED"
	StatusFailed         Status = "PAYOUT_FAILED"
	StatusReviewRequired Status = "PAYOUT_REVIEW_REQUIRED"
)

// IsTerminal reports whether a provider callback can no longer change s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ErrNotFound is returned when no instruction exists for an id.
var ErrNotFound = errors.New("payout instruction not found")

// Instruction is the single payout of a transfer.
type Instruction struct {
	PayoutID            string          `json:"payoutId"`
	TransferID          string          `json:"transferId"`
	Method              Method          `json:"method"`
	RecipientAccountRef string          `json:"recipientAccountRef"`
	AmountETB           decimal.Decimal `json:"amountEtb"`
	Status              Status          `json:"status"`
	ProviderReference   string          `json:"providerReference,omitempty"`
	AttemptCount        int             `json:"attemptCount"`
	LastError           string          `json:"lastError,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

// StatusEvent is one entry of an instruction's status history.
type StatusEvent struct {
	PayoutID   string         `json:"payoutId"`
	TransferID string         `json:"transferId"`
	From       *Status        `json:"fromStatus"`
	To         Status         `json:"toStatus"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Details is an instruction with its history.
type Details struct {
	Instruction *Instruction   `json:"instruction"`
	Events      []*StatusEvent `json:"events"`
}

// InitiateInput requests the payout of a funded transfer.
type InitiateInput struct {
	TransferID          string          `json:"transferId" validate:"required"`
	Method              Method          `json:"method" validate:"required,oneof=bank telebirr"`
	RecipientAccountRef string          `json:"recipientAccountRef" validate:"required,min=3"`
	AmountETB           decimal.Decimal `json:"amountEtb"`
	IdempotencyKey      string          `json:"idempotencyKey" validate:"required,min=8"`
}

// ResultStatus is the outcome of an initiation.
type ResultStatus string

// Initiation outcomes.
const (
	ResultInitiated      ResultStatus = "initiated"
	ResultReviewRequired ResultStatus = "review_required"
)

// Result is returned by an initiation.
type Result struct {
	Status            ResultStatus `json:"status"`
	PayoutID          string       `json:"payoutId"`
	TransferID        string       `json:"transferId"`
	ProviderReference string       `json:"providerReference,omitempty"`
	Attempts          int          `json:"attempts"`
}

// CallbackStatus is the final status a provider reports.
type CallbackStatus string

// Provider reported statuses.
const (
	CallbackCompleted CallbackStatus = "completed"
	CallbackFailed    CallbackStatus = "failed"
)

// Callback is a provider status callback.
type Callback struct {
	PayoutID          string         `json:"payoutId" validate:"required"`
	ProviderReference string         `json:"providerReference" validate:"required"`
	Status            CallbackStatus `json:"status" validate:"required,oneof=completed failed"`
	ErrorMessage      string         `json:"errorMessage,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// CallbackResult is returned for an accepted callback.
type CallbackResult struct {
	PayoutID   string         `json:"payoutId"`
	TransferID string         `json:"transferId,omitempty"`
	Status     CallbackStatus `json:"status"`
	Message    string         `json:"message,omitempty"`
}

// CallbackStatusOf maps a terminal instruction status to its callback status.
func CallbackStatusOf(s Status) CallbackStatus {
	if s == StatusCompleted {
		return CallbackCompleted
	}
	return CallbackFailed
}
