// Package kyc is the receiver KYC read model consulted when transfers are created.
package kyc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	apperrors "github.com/chainsafe/remittance-middleware/pkg/app/errors"
	"github.com/chainsafe/remittance-middleware/pkg/audit"
	"github.com/chainsafe/remittance-middleware/pkg/keys"
)

// Status is a KYC review outcome.
type Status string

// KYC statuses.
const (
	StatusApproved Status = "approved"
	StatusPending  Status = "pending"
	StatusRejected Status = "rejected"
)

// ErrProfileNotFound is returned when a receiver has no KYC profile.
var ErrProfileNotFound = errors.New("receiver kyc profile not found")

// Profile is a receiver's KYC state. The national id itself is only held encrypted.
type Profile struct {
	ReceiverID          string    `json:"receiverId"`
	KYCStatus           Status    `json:"kycStatus"`
	NationalIDVerified  bool      `json:"nationalIdVerified"`
	NationalIDHash      string    `json:"nationalIdHash,omitempty"`
	NationalIDEncrypted string    `json:"-"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// UpsertInput creates or replaces a receiver profile.
type UpsertInput struct {
	ReceiverID         string `json:"-"`
	KYCStatus          Status `json:"kycStatus" validate:"required,oneof=approved pending rejected"`
	NationalIDVerified bool   `json:"nationalIdVerified"`
	NationalID         string `json:"nationalId,omitempty" validate:"omitempty,max=64"`
	Reason             string `json:"reason" validate:"required,min=3"`
	ActorID            string `json:"-"`
}

// Store persists receiver profiles.
type Store interface {
	// GetByReceiverID returns nil, nil when no profile exists.
	GetByReceiverID(ctx context.Context, receiverID string) (*Profile, error)
	Upsert(ctx context.Context, p *Profile) (*Profile, error)
}

// Service reads and maintains receiver profiles.
type Service interface {
	GetByReceiverID(ctx context.Context, receiverID string) (*Profile, error)
	Upsert(ctx context.Context, in UpsertInput) (*Profile, error)
}

type kycService struct {
	store  Store
	cipher keys.Cipher
	audit  audit.Sink
	logger *zap.Logger
}

// NewService returns a Service encrypting national ids with cipher.
func NewService(store Store, cipher keys.Cipher, sink audit.Sink, logger *zap.Logger) Service {
	return &kycService{store: store, cipher: cipher, audit: sink, logger: logger}
}

// NormalizeNationalID trims, strips whitespace and upper-cases id.
func NormalizeNationalID(id string) string {
	return strings.ToUpper(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, id))
}

// HashNationalID returns the hex sha256 of a normalized id.
func HashNationalID(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func (s *kycService) GetByReceiverID(ctx context.Context, receiverID string) (*Profile, error) {
	p, err := s.store.GetByReceiverID(ctx, receiverID)
	if err != nil {
		return nil, fmt.Errorf("failed to load receiver profile: %w", err)
	}
	return p, nil
}

func (s *kycService) Upsert(ctx context.Context, in UpsertInput) (*Profile, error) {
	if strings.TrimSpace(in.ReceiverID) == "" {
		return nil, apperrors.BadRequestError(nil, "receiverId is required.")
	}

	p := &Profile{
		ReceiverID:         in.ReceiverID,
		KYCStatus:          in.KYCStatus,
		NationalIDVerified: in.NationalIDVerified,
	}
	if id := NormalizeNationalID(in.NationalID); id != "" {
		enc, err := s.cipher.EncryptString(id)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt national id: %w", err)
		}
		p.NationalIDHash = HashNationalID(id)
		p.NationalIDEncrypted = enc
	}

	saved, err := s.store.Upsert(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert receiver profile: %w", err)
	}

	err = s.audit.Append(ctx, audit.Entry{
		ActorType:  audit.ActorAdmin,
		ActorID:    in.ActorID,
		Action:     "receiver_kyc_upsert",
		EntityType: "receiver_kyc_profile",
		EntityID:   saved.ReceiverID,
		Reason:     in.Reason,
		Metadata: map[string]any{
			"kycStatus":          saved.KYCStatus,
			"nationalIdVerified": saved.NationalIDVerified,
		},
	})
	if err != nil {
		s.logger.Error("failed to append kyc audit entry", zap.String("receiver_id", saved.ReceiverID), zap.Error(err))
	}
	return saved, nil
}
