package retention

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/chainsafe/remittance-middleware/pkg/audit"
	apphttp "github.com/chainsafe/remittance-middleware/pkg/app/http"
	"github.com/chainsafe/remittance-middleware/pkg/auth"
	"github.com/chainsafe/remittance-middleware/pkg/reconciliation"
)

// Runner runs one retention pass.
type Runner interface {
	RunOnce(ctx context.Context) (*Result, error)
}

type runRequest struct {
	Reason string `json:"reason" validate:"required,min=3"`
}

type runResponse struct {
	Status string  `json:"status"`
	Result *Result `json:"result"`
}

// RegisterRoutes registers the manual retention trigger. The router must already authenticate requests.
func RegisterRoutes(r chi.Router, runner Runner, sink audit.Sink, logger *zap.Logger) {
	write := auth.AnyOf(auth.RequireRole(auth.RoleOpsAdmin),
		auth.RequireScope(auth.TokenService, auth.ScopeReconciliationProxy))

	r.With(auth.Require(write)).Post("/internal/v1/ops/jobs/retention/run", apphttp.HandleError(
		func(w http.ResponseWriter, r *http.Request) error {
			var req runRequest
			if err := apphttp.DecodeJSON(r, &req); err != nil {
				return err
			}
			res, err := runner.RunOnce(r.Context())
			if err != nil {
				return err
			}

			actorType, actorID := audit.ActorAdmin, ""
			if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
				actorID = claims.Subject
				if claims.TokenType == auth.TokenService {
					actorType = audit.ActorService
				}
			}
			if v := r.Header.Get(reconciliation.ActorHeader); v != "" {
				actorType, actorID = audit.ActorAdmin, v
			}
			if err := sink.Append(r.Context(), audit.Entry{
				ActorType:  actorType,
				ActorID:    actorID,
				Action:     "ops_retention_job_triggered",
				EntityType: "job",
				EntityID:   "retention",
				Reason:     req.Reason,
				Metadata: map[string]any{
					"auditDeleted":  res.AuditDeleted,
					"issuesDeleted": res.IssuesDeleted,
					"runsDeleted":   res.RunsDeleted,
				},
				CreatedAt: time.Now().UTC(),
			}); err != nil {
				logger.Error("Failed to append retention audit entry", zap.Error(err))
			}

			apphttp.WriteJSON(w, http.StatusOK, runResponse{Status: "completed", Result: res})
			return nil
		}))
}
