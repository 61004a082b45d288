package ledger

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	apphttp "github.com/chainsafe/remittance-middleware/pkg/app/http"
	"github.com/chainsafe/remittance-middleware/pkg/auth"
	"github.com/chainsafe/remittance-middleware/pkg/idempotency"
)

const scopePost = "ledger:post"

// HTTP wraps the Service to provide HTTP endpoints
type HTTP struct {
	service   Service
	guard     *idempotency.Guard
	minKeyLen int
}

// RegisterRoutes registers the ledger endpoints. The router must already authenticate requests.
func RegisterRoutes(r chi.Router, service Service, guard *idempotency.Guard, minKeyLen int) {
	h := &HTTP{service: service, guard: guard, minKeyLen: minKeyLen}

	r.With(auth.Require(auth.RequireTokenType(auth.TokenService))).
		Post("/internal/v1/ledger/journals", apphttp.HandleError(h.post))
	r.With(auth.Require(auth.AnyOf(auth.RequireTokenType(auth.TokenService),
		auth.RequireRole(auth.RoleOpsViewer, auth.RoleOpsAdmin, auth.RoleComplianceViewer, auth.RoleComplianceAdmin)))).
		Get("/internal/v1/ledger/journals/{journalId}", apphttp.HandleError(h.get))
}

func (h *HTTP) post(w http.ResponseWriter, r *http.Request) error {
	key, err := apphttp.IdempotencyKey(r, h.minKeyLen)
	if err != nil {
		return err
	}
	var p Posting
	if err := apphttp.DecodeJSON(r, &p); err != nil {
		return err
	}

	resp, err := h.guard.Execute(r.Context(), scopePost, key, p, func(ctx context.Context) (int, any, error) {
		res, err := h.service.PostDoubleEntry(ctx, p)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, res, nil
	})
	if err != nil {
		return err
	}
	resp.Write(w)
	return nil
}

func (h *HTTP) get(w http.ResponseWriter, r *http.Request) error {
	res, err := h.service.GetJournalBalance(r.Context(), chi.URLParam(r, "journalId"))
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, res)
	return nil
}
