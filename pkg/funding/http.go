package funding

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/remittance-middleware/pkg/app/errors"
	apphttp "github.com/chainsafe/remittance-middleware/pkg/app/http"
	"github.com/chainsafe/remittance-middleware/pkg/auth"
	"github.com/chainsafe/remittance-middleware/pkg/idempotency"
)

const (
	scopeConfirmed = "funding:confirmed"

	// TimestampHeader carries the unix millisecond timestamp of a signed callback.
	TimestampHeader = "x-callback-timestamp"
	// SignatureHeader carries the hex HMAC-SHA256 of "timestamp.body".
	SignatureHeader = "x-callback-signature"
)

// CallbackConfig configures callback signature checks.
type CallbackConfig struct {
	Secret            string
	MaxAge            time.Duration
	SignatureRequired bool
}

// eventIdentity is the part of an event that names the on-chain log. Watchers
// may re-deliver the same log with a later confirmedAt.
type eventIdentity struct {
	Chain          string `json:"chain"`
	Token          string `json:"token"`
	TxHash         string `json:"txHash"`
	LogIndex       int    `json:"logIndex"`
	DepositAddress string `json:"depositAddress"`
	AmountUSD      string `json:"amountUsd"`
}

func identityOf(ev Event) eventIdentity {
	return eventIdentity{
		Chain:          string(ev.Chain),
		Token:          string(ev.Token),
		TxHash:         ev.TxHash,
		LogIndex:       ev.LogIndex,
		DepositAddress: ev.DepositAddress,
		AmountUSD:      ev.AmountUSD.String(),
	}
}

// HTTP wraps the Service to provide HTTP endpoints
type HTTP struct {
	service Service
	guard   *idempotency.Guard
	cfg     CallbackConfig
	logger  *zap.Logger
}

type response struct {
	Result     *Result `json:"result"`
	AcceptedBy string  `json:"acceptedBy"`
}

// RegisterRoutes registers the funding callback. The router must already authenticate requests.
func RegisterRoutes(r chi.Router, service Service, guard *idempotency.Guard, cfg CallbackConfig, logger *zap.Logger) {
	h := &HTTP{service: service, guard: guard, cfg: cfg, logger: logger}

	r.With(auth.Require(auth.RequireTokenType(auth.TokenService, auth.TokenAdmin))).
		Post("/internal/v1/funding-confirmed", apphttp.HandleError(h.confirmed))
}

func (h *HTTP) confirmed(w http.ResponseWriter, r *http.Request) error {
	body, err := apphttp.ReadBody(r)
	if err != nil {
		return err
	}
	if err := h.verify(r, body); err != nil {
		return err
	}

	var ev Event
	if err := apphttp.UnmarshalAndValidate(body, &ev); err != nil {
		msg := "Invalid payload."
		var svcErr *apperrors.ServiceError
		if errors.As(err, &svcErr) {
			msg = svcErr.Message
		}
		return apperrors.BadRequestErrorWithCode(err, apperrors.CodeInvalidFundingEvent, msg)
	}
	if !ev.AmountUSD.IsPositive() {
		return apperrors.BadRequestErrorWithCode(nil, apperrors.CodeInvalidFundingEvent, "amountUsd must be positive.")
	}

	key := r.Header.Get(apphttp.IdempotencyKeyHeader)
	if key == "" {
		key = ev.EventID
	}

	var acceptedBy string
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		acceptedBy = claims.Subject
	}

	resp, err := h.guard.Execute(r.Context(), scopeConfirmed, key, identityOf(ev), func(ctx context.Context) (int, any, error) {
		res, err := h.service.ProcessFundingConfirmed(ctx, ev)
		if err != nil {
			return 0, nil, err
		}
		status := http.StatusOK
		if res.Status == StatusConfirmed {
			status = http.StatusAccepted
		}
		return status, response{Result: res, AcceptedBy: acceptedBy}, nil
	})
	if err != nil {
		return err
	}
	resp.Write(w)
	return nil
}

func (h *HTTP) verify(r *http.Request, body []byte) error {
	if !h.cfg.SignatureRequired {
		return nil
	}
	ts, sig := r.Header.Get(TimestampHeader), r.Header.Get(SignatureHeader)
	if ts == "" || sig == "" {
		return apperrors.UnAuthorizedErrorWithCode(nil, apperrors.CodeInvalidSignatureHeaders,
			"Missing callback signature headers.")
	}
	if !auth.VerifySignedPayload(body, ts, sig, h.cfg.Secret, h.cfg.MaxAge, time.Now()) {
		return apperrors.UnAuthorizedErrorWithCode(nil, apperrors.CodeInvalidCallbackSig,
			"Callback signature verification failed.")
	}
	return nil
}
