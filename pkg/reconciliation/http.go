package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/chainsafe/remittance-middleware/pkg/audit"
	apperrors "github.com/chainsafe/remittance-middleware/pkg/app/errors"
	apphttp "github.com/chainsafe/remittance-middleware/pkg/app/http"
	"github.com/chainsafe/remittance-middleware/pkg/auth"
	"github.com/chainsafe/remittance-middleware/pkg/idempotency"
)

const (
	scopeRun = "reconciliation:run"

	// ActorHeader names the operator on whose behalf a proxy triggers a run.
	ActorHeader = "x-ops-actor"

	defaultIssueLimit = 200
	maxIssueLimit     = 1000
)

type runRequest struct {
	Reason     string `json:"reason" validate:"required,min=3"`
	OutputPath string `json:"outputPath,omitempty"`
}

type runDetails struct {
	Run    *Run     `json:"run"`
	Issues []*Issue `json:"issues"`
}

// HTTP wraps the Engine and Store to provide the operator endpoints
type HTTP struct {
	runner    Runner
	store     Store
	audit     audit.Sink
	guard     *idempotency.Guard
	minKeyLen int
	outputDir string
	logger    *zap.Logger
}

// HTTPConfig configures the operator endpoints.
type HTTPConfig struct {
	MinKeyLength int
	// OutputDir confines caller supplied report paths. Without it outputPath is rejected.
	OutputDir string
}

// RegisterRoutes registers the reconciliation endpoints. The router must already authenticate requests.
func RegisterRoutes(r chi.Router, runner Runner, store Store, sink audit.Sink, guard *idempotency.Guard,
	cfg HTTPConfig, logger *zap.Logger) {
	h := &HTTP{
		runner:    runner,
		store:     store,
		audit:     sink,
		guard:     guard,
		minKeyLen: cfg.MinKeyLength,
		outputDir: cfg.OutputDir,
		logger:    logger,
	}

	proxy := auth.RequireScope(auth.TokenService, auth.ScopeReconciliationProxy)
	write := auth.AnyOf(auth.RequireRole(auth.RoleOpsAdmin), proxy)
	read := auth.AnyOf(auth.RequireRole(auth.RoleOpsViewer, auth.RoleOpsAdmin,
		auth.RoleComplianceViewer, auth.RoleComplianceAdmin), proxy)

	r.With(auth.Require(write)).Post("/internal/v1/ops/reconciliation/run", apphttp.HandleError(h.run))
	r.With(auth.Require(read)).Get("/internal/v1/ops/reconciliation/runs/{runId}", apphttp.HandleError(h.getRun))
	r.With(auth.Require(read)).Get("/internal/v1/ops/reconciliation/issues", apphttp.HandleError(h.listIssues))
}

func (h *HTTP) run(w http.ResponseWriter, r *http.Request) error {
	key, err := apphttp.IdempotencyKey(r, h.minKeyLen)
	if err != nil {
		return err
	}
	var req runRequest
	if err := apphttp.DecodeJSON(r, &req); err != nil {
		return err
	}
	opts := RunOptions{Reason: req.Reason}
	if req.OutputPath != "" {
		if h.outputDir == "" {
			return apperrors.BadRequestError(nil, "outputPath is not accepted by this deployment.")
		}
		opts.OutputPath = filepath.Join(h.outputDir, filepath.Base(req.OutputPath))
	}

	claims, _ := auth.ClaimsFromContext(r.Context())
	actorType, actorID := actorOf(r, claims)

	resp, err := h.guard.Execute(r.Context(), scopeRun, key, req, func(ctx context.Context) (int, any, error) {
		report, err := h.runner.RunOnce(ctx, opts)
		if err != nil {
			return 0, nil, err
		}
		if err := h.audit.Append(ctx, audit.Entry{
			ActorType:  actorType,
			ActorID:    actorID,
			Action:     "reconciliation_run_triggered",
			EntityType: "reconciliation_run",
			EntityID:   report.RunID,
			Reason:     req.Reason,
			Metadata:   map[string]any{"issueCount": report.IssueCount},
			CreatedAt:  time.Now().UTC(),
		}); err != nil {
			h.logger.Error("Failed to append reconciliation audit entry",
				zap.String("run_id", report.RunID), zap.Error(err))
		}
		return http.StatusOK, report, nil
	})
	if err != nil {
		return err
	}
	resp.Write(w)
	return nil
}

func (h *HTTP) getRun(w http.ResponseWriter, r *http.Request) error {
	runID := chi.URLParam(r, "runId")
	run, err := h.store.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, ErrRunNotFound) {
			return apperrors.ResourceNotFoundErrorWithCode(err, apperrors.CodeRunNotFound,
				fmt.Sprintf("Reconciliation run %s not found.", runID))
		}
		return err
	}
	issues, err := h.store.ListRunIssues(r.Context(), runID)
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, runDetails{Run: run, Issues: issues})
	return nil
}

func (h *HTTP) listIssues(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()

	var since *time.Time
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return apperrors.BadRequestErrorWithCode(err, apperrors.CodeInvalidQuery, "Invalid since datetime value.")
		}
		since = &t
	}

	limit := defaultIssueLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return apperrors.BadRequestErrorWithCode(err, apperrors.CodeInvalidQuery, "Invalid limit value.")
		}
		limit = min(max(n, 1), maxIssueLimit)
	}

	issues, err := h.store.ListIssues(r.Context(), since, limit)
	if err != nil {
		return err
	}
	apphttp.WriteJSON(w, http.StatusOK, map[string]any{"issues": issues})
	return nil
}

func actorOf(r *http.Request, claims *auth.Claims) (string, string) {
	actorType := audit.ActorAdmin
	subject := ""
	if claims != nil {
		subject = claims.Subject
		if claims.TokenType == auth.TokenService {
			actorType = audit.ActorService
		}
	}
	if v := r.Header.Get(ActorHeader); v != "" {
		return audit.ActorAdmin, v
	}
	return actorType, subject
}
