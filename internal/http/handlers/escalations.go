package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/voxloop/feedback-platform/internal/escalation"
	"github.com/voxloop/feedback-platform/internal/sla"
	"github.com/voxloop/feedback-platform/internal/tenancy"
	"github.com/voxloop/feedback-platform/pkg/logging"
)

// EscalationService is the engine surface the API drives.
type EscalationService interface {
	Scan(ctx context.Context, accountID string, now time.Time) (int, error)
	OnCreated(ctx context.Context, accountID string, feedbackID uuid.UUID, now time.Time) (bool, error)
	CloseAll(ctx context.Context, accountID string, feedbackID uuid.UUID, note string, now time.Time) (int64, error)
}

// RecordReader reads and resolves escalation records.
type RecordReader interface {
	ListOpenByAccount(ctx context.Context, accountID string) ([]escalation.Record, error)
	Resolve(ctx context.Context, accountID string, id uuid.UUID, note string, now time.Time) error
}

// PolicyManager manages SLA policies.
type PolicyManager interface {
	Create(ctx context.Context, p *sla.Policy) error
	ListActive(ctx context.Context, accountID string) ([]sla.Policy, error)
	SeedDefaults(ctx context.Context, accountID string) error
}

// StatsProvider computes account dashboards.
type StatsProvider interface {
	AccountStats(ctx context.Context, accountID string, now time.Time) (*escalation.Stats, error)
}

// Handler serves the operator API.
type Handler struct {
	engine   EscalationService
	records  RecordReader
	policies PolicyManager
	stats    StatsProvider
	logger   *logging.Logger
	now      func() time.Time
}

// NewHandler creates the operator API handler.
func NewHandler(engine EscalationService, records RecordReader, policies PolicyManager, stats StatsProvider, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		engine:   engine,
		records:  records,
		policies: policies,
		stats:    stats,
		logger:   logger.WithComponent("api"),
		now:      time.Now,
	}
}

type recordResponse struct {
	ID             string     `json:"id"`
	FeedbackID     string     `json:"feedback_id"`
	PolicyID       string     `json:"policy_id"`
	Tier           int        `json:"tier"`
	Reason         string     `json:"reason"`
	TriggeredAt    time.Time  `json:"triggered_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolutionNote string     `json:"resolution_note,omitempty"`
}

func toRecordResponse(r escalation.Record) recordResponse {
	return recordResponse{
		ID:             r.ID.String(),
		FeedbackID:     r.FeedbackID.String(),
		PolicyID:       r.PolicyID.String(),
		Tier:           int(r.Tier),
		Reason:         string(r.Reason),
		TriggeredAt:    r.TriggeredAt,
		ResolvedAt:     r.ResolvedAt,
		ResolutionNote: r.ResolutionNote,
	}
}

// accountFromRequest resolves the tenant set by the AccountContext
// middleware; a missing account is a routing bug surfaced as a 400.
func accountFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	accountID, ok := tenancy.AccountIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "account id required")
	}
	return accountID, ok
}

// TriggerScan runs one synchronous scan for the account.
// POST /admin/accounts/{accountID}/scan
func (h *Handler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountFromRequest(w, r)
	if !ok {
		return
	}
	opened, err := h.engine.Scan(r.Context(), accountID, h.now())
	if err != nil {
		if errors.Is(err, sla.ErrNoFallbackPolicy) {
			writeError(w, http.StatusConflict, "account has no fallback policy")
			return
		}
		h.logger.Error("manual scan failed", "account_id", accountID, "error", err)
		writeError(w, http.StatusInternalServerError, "scan failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"escalations_opened": opened})
}

// ListEscalations returns all open escalations for the account.
// GET /admin/accounts/{accountID}/escalations
func (h *Handler) ListEscalations(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountFromRequest(w, r)
	if !ok {
		return
	}
	records, err := h.records.ListOpenByAccount(r.Context(), accountID)
	if err != nil {
		h.logger.Error("listing escalations failed", "account_id", accountID, "error", err)
		writeError(w, http.StatusInternalServerError, "listing escalations failed")
		return
	}
	out := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toRecordResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"escalations": out})
}

// GetStats returns the escalation dashboard aggregate for the account.
// GET /admin/accounts/{accountID}/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountFromRequest(w, r)
	if !ok {
		return
	}
	stats, err := h.stats.AccountStats(r.Context(), accountID, h.now())
	if err != nil {
		h.logger.Error("stats query failed", "account_id", accountID, "error", err)
		writeError(w, http.StatusInternalServerError, "stats query failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type resolveRequest struct {
	Note string `json:"note"`
}

// ResolveEscalation manually closes one escalation record.
// POST /admin/accounts/{accountID}/escalations/{id}/resolve
func (h *Handler) ResolveEscalation(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountFromRequest(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid escalation id")
		return
	}
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err = h.records.Resolve(r.Context(), accountID, id, req.Note, h.now())
	if errors.Is(err, escalation.ErrNotFound) {
		writeError(w, http.StatusNotFound, "escalation not found or already resolved")
		return
	}
	if err != nil {
		h.logger.Error("resolving escalation failed", "escalation_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "resolving escalation failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

type policyRequest struct {
	Name                 string                  `json:"name"`
	ScopeCategory        *string                 `json:"scope_category"`
	Condition            *sla.Condition          `json:"condition"`
	PriorityRank         int                     `json:"priority_rank"`
	FirstResponseMinutes int                     `json:"first_response_minutes"`
	ResolutionMinutes    int                     `json:"resolution_minutes"`
	EscalationMinutes    [sla.TierCount]int      `json:"escalation_minutes"`
	RecipientsByTier     [sla.TierCount][]string `json:"recipients_by_tier"`
	Channels             []sla.Channel           `json:"channels"`
}

type policyResponse struct {
	ID string `json:"id"`
	policyRequest
	Active bool `json:"active"`
}

// CreatePolicy adds an SLA policy for the account.
// POST /admin/accounts/{accountID}/policies
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountFromRequest(w, r)
	if !ok {
		return
	}
	var req policyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	policy := sla.Policy{
		AccountID:            accountID,
		Name:                 req.Name,
		ScopeCategory:        req.ScopeCategory,
		Condition:            req.Condition,
		PriorityRank:         req.PriorityRank,
		FirstResponseMinutes: req.FirstResponseMinutes,
		ResolutionMinutes:    req.ResolutionMinutes,
		EscalationMinutes:    req.EscalationMinutes,
		RecipientsByTier:     req.RecipientsByTier,
		Channels:             req.Channels,
		Active:               true,
	}
	if err := h.policies.Create(r.Context(), &policy); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, policyResponse{ID: policy.ID.String(), policyRequest: req, Active: true})
}

// ListPolicies returns the active policies for the account.
// GET /admin/accounts/{accountID}/policies
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountFromRequest(w, r)
	if !ok {
		return
	}
	policies, err := h.policies.ListActive(r.Context(), accountID)
	if err != nil {
		h.logger.Error("listing policies failed", "account_id", accountID, "error", err)
		writeError(w, http.StatusInternalServerError, "listing policies failed")
		return
	}
	out := make([]policyResponse, 0, len(policies))
	for _, p := range policies {
		out = append(out, policyResponse{
			ID: p.ID.String(),
			policyRequest: policyRequest{
				Name:                 p.Name,
				ScopeCategory:        p.ScopeCategory,
				Condition:            p.Condition,
				PriorityRank:         p.PriorityRank,
				FirstResponseMinutes: p.FirstResponseMinutes,
				ResolutionMinutes:    p.ResolutionMinutes,
				EscalationMinutes:    p.EscalationMinutes,
				RecipientsByTier:     p.RecipientsByTier,
				Channels:             p.Channels,
			},
			Active: p.Active,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"policies": out})
}

// SeedPolicies installs the default policy set for a new account.
// POST /admin/accounts/{accountID}/policies/seed
func (h *Handler) SeedPolicies(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountFromRequest(w, r)
	if !ok {
		return
	}
	if err := h.policies.SeedDefaults(r.Context(), accountID); err != nil {
		h.logger.Error("seeding policies failed", "account_id", accountID, "error", err)
		writeError(w, http.StatusInternalServerError, "seeding policies failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "seeded"})
}
