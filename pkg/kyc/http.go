package kyc

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/remittance-middleware/pkg/app/errors"
	apphttp "github.com/chainsafe/remittance-middleware/pkg/app/http"
	"github.com/chainsafe/remittance-middleware/pkg/auth"
)

// HTTP wraps the Service to provide HTTP endpoints
type HTTP struct {
	service Service
	logger  *zap.Logger
}

// RegisterRoutes registers the receiver KYC endpoints. The router must already authenticate requests.
func RegisterRoutes(r chi.Router, service Service, logger *zap.Logger) {
	h := &HTTP{service: service, logger: logger}

	r.With(auth.Require(auth.RequireRole(auth.RoleComplianceAdmin, auth.RoleOpsAdmin))).
		Put("/internal/v1/receivers/{receiverId}/kyc", apphttp.HandleError(h.upsert))
	r.With(auth.Require(auth.RequireRole(auth.RoleOpsViewer, auth.RoleOpsAdmin, auth.RoleComplianceViewer,
		auth.RoleComplianceAdmin))).
		Get("/internal/v1/receivers/{receiverId}/kyc", apphttp.HandleError(h.get))
}

func (h *HTTP) upsert(w http.ResponseWriter, r *http.Request) error {
	var in UpsertInput
	if err := apphttp.DecodeJSON(r, &in); err != nil {
		return err
	}
	in.ReceiverID = chi.URLParam(r, "receiverId")
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		in.ActorID = claims.Subject
	}

	p, err := h.service.Upsert(r.Context(), in)
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, p)
	return nil
}

func (h *HTTP) get(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "receiverId")
	p, err := h.service.GetByReceiverID(r.Context(), id)
	if err != nil {
		return err
	}
	if p == nil {
		return apperrors.ResourceNotFoundErrorWithCode(ErrProfileNotFound, apperrors.CodeReceiverKYCNotFound,
			"Receiver KYC profile not found.")
	}
	apphttp.WriteJSON(w, http.StatusOK, p)
	return nil
}
