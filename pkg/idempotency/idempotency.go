// Package idempotency provides at-most-once execution keyed by a client supplied key
// and a hash of the request payload.
//
// The placeholder row inserted under a unique key is the only coordination
// primitive, so the guarantee holds across process instances.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/remittance-middleware/internal/metrics"
	apperrors "github.com/chainsafe/remittance-middleware/pkg/app/errors"
	"github.com/chainsafe/remittance-middleware/pkg/db/dao"
)

var (
	// ErrConflict is returned when a key is reused with a different payload.
	ErrConflict = errors.New("idempotency key reused with a different payload")
	// ErrInProgress is returned when the owning request has not finished within the wait window.
	ErrInProgress = errors.New("idempotent request still in progress")
)

// Record is a stored idempotency entry. Status is InFlight until the owner completes.
type Record struct {
	Key         string
	RequestHash string
	Status      int
	Body        json.RawMessage
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// InFlight reports whether the owner of the record has not completed yet.
func (r *Record) InFlight() bool { return r.Status == InFlightStatus }

// InFlightStatus is the sentinel response status of a reserved record.
const InFlightStatus = dao.InFlightStatus

// Response is the persisted outcome of a guarded operation.
type Response struct {
	Status int
	Body   json.RawMessage
	// Replayed is true when the response came from a previous execution.
	Replayed bool
}

// Work is the guarded operation. The returned body is stored as JSON.
type Work func(ctx context.Context) (status int, body any, err error)

// Store persists idempotency records.
type Store interface {
	// Reserve inserts an in-flight record. It returns false when key already exists.
	Reserve(ctx context.Context, key, requestHash string, now, expiresAt time.Time) (bool, error)
	// Complete stores the owner's response for key.
	Complete(ctx context.Context, key, requestHash string, status int, body json.RawMessage) error
	// Release removes the in-flight record for key so a retry can proceed.
	Release(ctx context.Context, key, requestHash string) error
	// Get returns the record for key, or nil if none exists.
	Get(ctx context.Context, key string) (*Record, error)
	// DeleteExpired removes records that expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Config configures a Guard.
type Config struct {
	TTL          time.Duration
	InFlightWait time.Duration
	PollInterval time.Duration
}

// Guard executes Work at most once per (scope, key).
type Guard struct {
	store  Store
	cfg    Config
	now    func() time.Time
	logger *zap.Logger
}

// NewGuard returns a Guard backed by store.
func NewGuard(store Store, cfg Config, logger *zap.Logger) *Guard {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.InFlightWait <= 0 {
		cfg.InFlightWait = 5 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	return &Guard{store: store, cfg: cfg, now: time.Now, logger: logger}
}

// HashPayload returns the hex sha256 of the JSON encoding of payload.
func HashPayload(payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Execute runs work once for scope:key and payload. Concurrent or later calls
// with the same key and payload get the stored response back; calls with the
// same key and a different payload fail with an IDEMPOTENCY_CONFLICT error.
func (g *Guard) Execute(ctx context.Context, scope, key string, payload any, work Work) (*Response, error) {
	hash, err := HashPayload(payload)
	if err != nil {
		return nil, apperrors.BadRequestError(err, "payload could not be encoded")
	}
	storeKey := scope + ":" + key
	now := g.now()

	owner, err := g.store.Reserve(ctx, storeKey, hash, now, now.Add(g.cfg.TTL))
	if err != nil {
		return nil, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	if owner {
		return g.runOwned(ctx, scope, storeKey, hash, work)
	}
	return g.awaitExisting(ctx, scope, storeKey, hash)
}

func (g *Guard) runOwned(ctx context.Context, scope, storeKey, hash string, work Work) (*Response, error) {
	status, body, err := work(ctx)
	if err != nil {
		if relErr := g.store.Release(context.WithoutCancel(ctx), storeKey, hash); relErr != nil {
			g.logger.Error("failed to release idempotency placeholder",
				zap.String("key", storeKey), zap.Error(relErr))
		}
		return nil, err
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	if err := g.store.Complete(context.WithoutCancel(ctx), storeKey, hash, status, raw); err != nil {
		// The placeholder stays in flight until it expires; duplicates are refused rather than re-executed.
		g.logger.Error("failed to persist idempotent response",
			zap.String("key", storeKey), zap.Error(err))
	}
	metrics.IdempotencyOutcomes.WithLabelValues(scope, "executed").Inc()
	return &Response{Status: status, Body: raw}, nil
}

func (g *Guard) awaitExisting(ctx context.Context, scope, storeKey, hash string) (*Response, error) {
	deadline := g.now().Add(g.cfg.InFlightWait)
	ticker := time.NewTicker(g.cfg.PollInterval)
	defer ticker.Stop()

	for {
		rec, err := g.store.Get(ctx, storeKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load idempotency record: %w", err)
		}
		switch {
		case rec == nil:
			// The owner failed and released the key.
			return nil, g.inProgress(scope)
		case rec.RequestHash != hash:
			metrics.IdempotencyOutcomes.WithLabelValues(scope, "conflict").Inc()
			return nil, apperrors.ConflictErrorWithCode(ErrConflict, apperrors.CodeIdempotencyConflict,
				"Idempotency key reused with a different payload.")
		case !rec.InFlight():
			metrics.IdempotencyOutcomes.WithLabelValues(scope, "replayed").Inc()
			return &Response{Status: rec.Status, Body: rec.Body, Replayed: true}, nil
		}

		if !g.now().Before(deadline) {
			return nil, g.inProgress(scope)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (g *Guard) inProgress(scope string) error {
	metrics.IdempotencyOutcomes.WithLabelValues(scope, "in_progress").Inc()
	return apperrors.ConflictErrorWithCode(ErrInProgress, apperrors.CodeIdempotencyInProgress,
		"A request with this idempotency key is still in progress.")
}

// Purge deletes expired records and returns how many were removed.
func (g *Guard) Purge(ctx context.Context) (int, error) {
	n, err := g.store.DeleteExpired(ctx, g.now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge idempotency records: %w", err)
	}
	metrics.IdempotencyRecordsPurged.Add(float64(n))
	return n, nil
}
