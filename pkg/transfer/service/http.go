package service

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apphttp "github.com/chainsafe/remittance-middleware/pkg/app/http"
	"github.com/chainsafe/remittance-middleware/pkg/auth"
	"github.com/chainsafe/remittance-middleware/pkg/idempotency"
	"github.com/chainsafe/remittance-middleware/pkg/transfer"
)

const scopeCreate = "transfers:create"

// HTTP wraps the Service to provide HTTP endpoints
type HTTP struct {
	service   Service
	guard     *idempotency.Guard
	minKeyLen int
	logger    *zap.Logger
}

// RegisterRoutes registers the transfer endpoints. The router must already authenticate requests.
func RegisterRoutes(r chi.Router, service Service, guard *idempotency.Guard, minKeyLen int, logger *zap.Logger) {
	h := &HTTP{service: service, guard: guard, minKeyLen: minKeyLen, logger: logger}

	r.With(auth.Require(auth.RequireTokenType(auth.TokenService, auth.TokenCustomer))).
		Post("/v1/transfers", apphttp.HandleError(h.create))
	r.With(auth.Require(auth.RequireTokenType(auth.TokenService, auth.TokenCustomer, auth.TokenAdmin))).
		Get("/v1/transfers/{transferId}", apphttp.HandleError(h.get))
}

func (h *HTTP) create(w http.ResponseWriter, r *http.Request) error {
	key, err := apphttp.IdempotencyKey(r, h.minKeyLen)
	if err != nil {
		return err
	}
	var in transfer.CreateInput
	if err := apphttp.DecodeJSON(r, &in); err != nil {
		return err
	}

	resp, err := h.guard.Execute(r.Context(), scopeCreate, key, in, func(ctx context.Context) (int, any, error) {
		c, err := h.service.CreateTransfer(ctx, in, time.Now())
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, c, nil
	})
	if err != nil {
		return err
	}
	resp.Write(w)
	return nil
}

func (h *HTTP) get(w http.ResponseWriter, r *http.Request) error {
	d, err := h.service.GetTransfer(r.Context(), chi.URLParam(r, "transferId"))
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, d)
	return nil
}
