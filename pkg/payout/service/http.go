package service

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
	"github.com/chainsafe/remittance-middleware/pkg/payout"
)

const scopeInitiate = "payouts:initiate"

// WebhookConfig configures provider callback signature checks.
type WebhookConfig struct {
	SignatureEnabled bool
	Secret           string
	MaxAge           time.Duration
	SignatureHeader  string
	TimestampHeader  string
}

// HTTP wraps the Service to provide HTTP endpoints
type HTTP struct {
	service   Service
	guard     *idempotency.Guard
	minKeyLen int
	validator auth.TokenValidator
	webhook   WebhookConfig
	logger    *zap.Logger
}

// RegisterRoutes registers the authenticated payout endpoints. The router must already authenticate requests.
func RegisterRoutes(r chi.Router, service Service, guard *idempotency.Guard, minKeyLen int, logger *zap.Logger) {
	h := &HTTP{service: service, guard: guard, minKeyLen: minKeyLen, logger: logger}

	r.With(auth.Require(auth.AnyOf(auth.RequireTokenType(auth.TokenService), auth.RequireRole(auth.RoleOpsAdmin)))).
		Post("/internal/v1/payouts/initiate", apphttp.HandleError(h.initiate))
	r.With(auth.Require(auth.AnyOf(auth.RequireTokenType(auth.TokenService),
		auth.RequireRole(auth.RoleOpsViewer, auth.RoleOpsAdmin)))).
		Get("/internal/v1/payouts/{payoutId}", apphttp.HandleError(h.get))
}

// RegisterCallbackRoutes registers the provider status callback. It authenticates
// itself with a webhook signature, or a service token when signatures are off.
func RegisterCallbackRoutes(r chi.Router, service Service, validator auth.TokenValidator, cfg WebhookConfig,
	logger *zap.Logger) {
	h := &HTTP{service: service, validator: validator, webhook: cfg, logger: logger}
	r.Post("/internal/v1/payouts/status-callback", apphttp.HandleError(h.statusCallback))
}

func (h *HTTP) initiate(w http.ResponseWriter, r *http.Request) error {
	headerKey := r.Header.Get(apphttp.IdempotencyKeyHeader)
	if headerKey == "" {
		return apperrors.BadRequestErrorWithCode(nil, apperrors.CodeMissingIdempotencyKey,
			"Missing idempotency-key header.")
	}
	key, err := apphttp.CheckIdempotencyKey(headerKey, h.minKeyLen)
	if err != nil {
		return err
	}

	body, err := apphttp.ReadBody(r)
	if err != nil {
		return err
	}
	var in payout.InitiateInput
	if err := apphttp.Unmarshal(body, &in); err != nil {
		return err
	}
	in.IdempotencyKey = key
	if err := apphttp.Validate(&in); err != nil {
		return err
	}
	if !in.AmountETB.IsPositive() {
		return apperrors.BadRequestError(nil, "amountEtb must be positive.")
	}

	resp, err := h.guard.Execute(r.Context(), scopeInitiate, key, in, func(ctx context.Context) (int, any, error) {
		res, err := h.service.InitiatePayout(ctx, in)
		if err != nil {
			return 0, nil, err
		}
		status := http.StatusOK
		if res.Status == payout.ResultInitiated {
			status = http.StatusAccepted
		}
		return status, res, nil
	})
	if err != nil {
		return err
	}
	resp.Write(w)
	return nil
}

func (h *HTTP) get(w http.ResponseWriter, r *http.Request) error {
	d, err := h.service.GetPayout(r.Context(), chi.URLParam(r, "payoutId"))
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, d)
	return nil
}

func (h *HTTP) statusCallback(w http.ResponseWriter, r *http.Request) error {
	body, err := apphttp.ReadBody(r)
	if err != nil {
		return err
	}
	if err := h.authenticateCallback(r, body); err != nil {
		return err
	}

	var cb payout.Callback
	if err := apphttp.UnmarshalAndValidate(body, &cb); err != nil {
		return err
	}

	res, err := h.service.HandleStatusCallback(r.Context(), cb)
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, res)
	return nil
}

func (h *HTTP) authenticateCallback(r *http.Request, body []byte) error {
	if !h.webhook.SignatureEnabled {
		claims, err := auth.Authenticate(r.Context(), h.validator, r)
		if err != nil {
			return err
		}
		return auth.Authorize(claims, auth.RequireTokenType(auth.TokenService))
	}

	sig := r.Header.Get(h.webhook.SignatureHeader)
	if sig == "" {
		return webhookInvalid("Missing or invalid " + h.webhook.SignatureHeader + " header")
	}
	ts := r.Header.Get(h.webhook.TimestampHeader)
	if ts == "" {
		return webhookInvalid("Missing or invalid " + h.webhook.TimestampHeader + " header")
	}
	if !auth.VerifySignedPayload(body, ts, sig, h.webhook.Secret, h.webhook.MaxAge, time.Now()) {
		h.logger.Warn("webhook signature verification failed",
			zap.String("remote_addr", r.RemoteAddr))
		return webhookInvalid("Signature mismatch or timestamp expired")
	}
	return nil
}

func webhookInvalid(msg string) error {
	return apperrors.UnAuthorizedErrorWithCode(errors.New(msg), apperrors.CodeWebhookSignatureInvalid, msg)
}
