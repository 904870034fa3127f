package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/voxloop/feedback-platform/internal/feedback"
	"github.com/voxloop/feedback-platform/internal/sla"
)

type feedbackCreatedHook struct {
	AccountID  string `json:"account_id"`
	FeedbackID string `json:"feedback_id"`
}

type feedbackResolvedHook struct {
	AccountID  string `json:"account_id"`
	FeedbackID string `json:"feedback_id"`
	Note       string `json:"note"`
}

// FeedbackCreated is called by the feedback subsystem when a new item lands,
// so instant triggers fire without waiting for the next scan pass.
// POST /hooks/feedback/created
func (h *Handler) FeedbackCreated(w http.ResponseWriter, r *http.Request) {
	var hook feedbackCreatedHook
	if err := json.NewDecoder(r.Body).Decode(&hook); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	feedbackID, err := uuid.Parse(hook.FeedbackID)
	if err != nil || hook.AccountID == "" {
		writeError(w, http.StatusBadRequest, "account_id and feedback_id are required")
		return
	}
	escalated, err := h.engine.OnCreated(r.Context(), hook.AccountID, feedbackID, h.now())
	if errors.Is(err, feedback.ErrNotFound) {
		writeError(w, http.StatusNotFound, "feedback item not found")
		return
	}
	if errors.Is(err, sla.ErrNoFallbackPolicy) {
		writeError(w, http.StatusConflict, "account has no fallback policy")
		return
	}
	if err != nil {
		h.logger.Error("created hook failed", "feedback_id", hook.FeedbackID, "error", err)
		writeError(w, http.StatusInternalServerError, "evaluating feedback failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"escalated": escalated})
}

// FeedbackResolved closes out every open escalation for a resolved item.
// POST /hooks/feedback/resolved
func (h *Handler) FeedbackResolved(w http.ResponseWriter, r *http.Request) {
	var hook feedbackResolvedHook
	if err := json.NewDecoder(r.Body).Decode(&hook); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	feedbackID, err := uuid.Parse(hook.FeedbackID)
	if err != nil || hook.AccountID == "" {
		writeError(w, http.StatusBadRequest, "account_id and feedback_id are required")
		return
	}
	note := hook.Note
	if note == "" {
		note = "feedback resolved"
	}
	closed, err := h.engine.CloseAll(r.Context(), hook.AccountID, feedbackID, note, h.now())
	if err != nil {
		h.logger.Error("resolved hook failed", "feedback_id", hook.FeedbackID, "error", err)
		writeError(w, http.StatusInternalServerError, "closing escalations failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"closed": closed})
}
