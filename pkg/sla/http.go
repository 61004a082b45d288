package sla

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/chainsafe/remittance-middleware/pkg/app/errors"
	apphttp "github.com/chainsafe/remittance-middleware/pkg/app/http"
	"github.com/chainsafe/remittance-middleware/pkg/auth"
)

const (
	defaultDelayLimit = 200
	maxDelayLimit     = 1000
)

// DelayReader lists slow payouts.
type DelayReader interface {
	ListPayoutDelays(ctx context.Context, thresholdMinutes, limit int) ([]*PayoutDelay, error)
}

type breachesResponse struct {
	ThresholdMinutes int            `json:"thresholdMinutes"`
	Breaches         []*PayoutDelay `json:"breaches"`
}

// RegisterRoutes registers the SLA report endpoint. The router must already authenticate requests.
func RegisterRoutes(r chi.Router, reader DelayReader, thresholdMinutes int) {
	proxy := auth.RequireScope(auth.TokenService, auth.ScopeReconciliationProxy)
	read := auth.AnyOf(auth.RequireRole(auth.RoleOpsViewer, auth.RoleOpsAdmin,
		auth.RoleComplianceViewer, auth.RoleComplianceAdmin), proxy)

	r.With(auth.Require(read)).Get("/internal/v1/ops/sla/breaches", apphttp.HandleError(
		func(w http.ResponseWriter, r *http.Request) error {
			limit := defaultDelayLimit
			if v := r.URL.Query().Get("limit"); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil {
					return apperrors.BadRequestErrorWithCode(err, apperrors.CodeInvalidQuery, "Invalid limit value.")
				}
				limit = min(max(n, 1), maxDelayLimit)
			}
			rows, err := reader.ListPayoutDelays(r.Context(), thresholdMinutes, limit)
			if err != nil {
				return err
			}
			apphttp.WriteJSON(w, http.StatusOK, breachesResponse{ThresholdMinutes: thresholdMinutes, Breaches: rows})
			return nil
		}))
}
