package escalation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/voxloop/feedback-platform/internal/feedback"
	"github.com/voxloop/feedback-platform/internal/observability/metrics"
	"github.com/voxloop/feedback-platform/internal/sla"
	"github.com/voxloop/feedback-platform/pkg/logging"
)

var engineTracer = otel.Tracer("voxloop/escalation")

// PolicySource supplies the active SLA policies for an account.
type PolicySource interface {
	ListActive(ctx context.Context, accountID string) ([]sla.Policy, error)
}

// FeedbackSource reads feedback items. The engine never writes to it.
type FeedbackSource interface {
	ListOpen(ctx context.Context, accountID string) ([]feedback.Item, error)
	GetByID(ctx context.Context, accountID string, id uuid.UUID) (*feedback.Item, error)
	CountOpenByReporter(ctx context.Context, accountID, reporterID string) (int, error)
}

// RecordStore persists escalation records and breach notices. OpenTier and
// MarkBreachNotified must be conditional writes: they return false when a
// concurrent evaluator already won, and the engine treats that as success.
type RecordStore interface {
	OpenTier(ctx context.Context, r *Record) (bool, error)
	HighestOpenTier(ctx context.Context, feedbackID uuid.UUID) (Tier, error)
	CloseAllForFeedback(ctx context.Context, feedbackID uuid.UUID, note string, now time.Time) (int64, error)
	MarkBreachNotified(ctx context.Context, feedbackID uuid.UUID, kind sla.BreachKind) (bool, error)
}

// Notifier fans out breach and escalation events. Failures are logged, never
// propagated: the record is already durable by the time the notifier runs.
type Notifier interface {
	OnBreach(ctx context.Context, ev BreachEvent) error
	OnEscalation(ctx context.Context, ev EscalationEvent) error
}

// BreachEvent is emitted the first time an SLA commitment is exceeded.
type BreachEvent struct {
	AccountID  string
	Item       *feedback.Item
	Policy     *sla.Policy
	Kind       sla.BreachKind
	DetectedAt time.Time
}

// EscalationEvent is emitted when a new escalation tier opens.
type EscalationEvent struct {
	Record Record
	Item   *feedback.Item
	Policy *sla.Policy
}

// Engine evaluates open feedback against SLA policies and opens escalation
// tiers. Safe to run concurrently: all once-only behavior is delegated to the
// record store's conditional writes.
type Engine struct {
	policies PolicySource
	items    FeedbackSource
	records  RecordStore
	matcher  *sla.Matcher
	notifier Notifier
	metrics  *metrics.EngineMetrics
	logger   *logging.Logger

	criticalRatingMax     int
	repeatIncidentMinOpen int
}

// EngineParams collects Engine dependencies.
type EngineParams struct {
	Policies PolicySource
	Items    FeedbackSource
	Records  RecordStore
	Notifier Notifier
	Metrics  *metrics.EngineMetrics
	Logger   *logging.Logger

	CriticalRatingMax     int
	RepeatIncidentMinOpen int
}

// NewEngine creates the escalation engine.
func NewEngine(p EngineParams) *Engine {
	if p.Policies == nil || p.Items == nil || p.Records == nil {
		panic("escalation: policies, items and records are required")
	}
	if p.Logger == nil {
		p.Logger = logging.Default()
	}
	if p.CriticalRatingMax <= 0 {
		p.CriticalRatingMax = 1
	}
	if p.RepeatIncidentMinOpen <= 0 {
		p.RepeatIncidentMinOpen = 3
	}
	return &Engine{
		policies:              p.Policies,
		items:                 p.Items,
		records:               p.Records,
		matcher:               sla.NewMatcher(p.Logger),
		notifier:              p.Notifier,
		metrics:               p.Metrics,
		logger:                p.Logger.WithComponent("escalation_engine"),
		criticalRatingMax:     p.CriticalRatingMax,
		repeatIncidentMinOpen: p.RepeatIncidentMinOpen,
	}
}

// Scan evaluates every open feedback item for the account at the given
// instant and returns how many escalation tiers were opened. Item-level
// failures are logged and skipped; a missing fallback policy aborts the whole
// account because every item after it would fail the same way.
func (e *Engine) Scan(ctx context.Context, accountID string, now time.Time) (int, error) {
	ctx, span := engineTracer.Start(ctx, "escalation.scan")
	defer span.End()
	span.SetAttributes(attribute.String("account_id", accountID))
	started := time.Now()

	policies, err := e.policies.ListActive(ctx, accountID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		e.metrics.ObserveScan("error", time.Since(started).Seconds())
		return 0, fmt.Errorf("escalation: list policies: %w", err)
	}
	items, err := e.items.ListOpen(ctx, accountID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		e.metrics.ObserveScan("error", time.Since(started).Seconds())
		return 0, fmt.Errorf("escalation: list open feedback: %w", err)
	}
	span.SetAttributes(attribute.Int("open_items", len(items)))

	opened := 0
	for i := range items {
		if err := ctx.Err(); err != nil {
			e.metrics.ObserveScan("canceled", time.Since(started).Seconds())
			return opened, err
		}
		item := &items[i]
		n, err := e.evaluateItem(ctx, policies, item, now)
		if err != nil {
			if errors.Is(err, sla.ErrNoFallbackPolicy) {
				span.SetStatus(codes.Error, err.Error())
				e.metrics.ObserveScan("error", time.Since(started).Seconds())
				return opened, fmt.Errorf("escalation: account %s: %w", accountID, err)
			}
			e.logger.Error("scan: item evaluation failed, skipping",
				"account_id", accountID, "feedback_id", item.ID, "error", err)
			e.metrics.ObserveSkippedItem("evaluation_error")
			continue
		}
		opened += n
	}

	span.SetAttributes(attribute.Int("escalations_opened", opened))
	e.metrics.ObserveScan("ok", time.Since(started).Seconds())
	return opened, nil
}

// evaluateItem runs the full pipeline for one item: match a policy, detect
// breaches, then open at most one new escalation tier.
func (e *Engine) evaluateItem(ctx context.Context, policies []sla.Policy, item *feedback.Item, now time.Time) (int, error) {
	policy, err := e.matcher.Match(policies, item)
	if err != nil {
		return 0, err
	}
	elapsed := sla.ComputeElapsed(item, now)

	for _, kind := range sla.DetectBreaches(policy, elapsed, item) {
		first, err := e.records.MarkBreachNotified(ctx, item.ID, kind)
		if err != nil {
			return 0, err
		}
		if !first {
			continue
		}
		e.metrics.ObserveBreach(string(kind))
		e.notify(ctx, func(ctx context.Context) error {
			return e.notifier.OnBreach(ctx, BreachEvent{
				AccountID:  item.AccountID,
				Item:       item,
				Policy:     policy,
				Kind:       kind,
				DetectedAt: now,
			})
		}, "breach", item.ID)
	}

	highest, err := e.records.HighestOpenTier(ctx, item.ID)
	if err != nil {
		return 0, err
	}
	tier := nextTierDue(policy, elapsed, highest)
	if tier == 0 {
		return 0, nil
	}
	return e.trigger(ctx, policy, item, tier, ReasonSLABreach, now)
}

// trigger opens one escalation tier through the store's conditional write.
// Losing the write to a concurrent evaluator is not an error and emits no
// duplicate notification.
func (e *Engine) trigger(ctx context.Context, policy *sla.Policy, item *feedback.Item, tier Tier, reason TriggerReason, now time.Time) (int, error) {
	rec := Record{
		ID:          uuid.New(),
		AccountID:   item.AccountID,
		FeedbackID:  item.ID,
		PolicyID:    policy.ID,
		Tier:        tier,
		Reason:      reason,
		TriggeredAt: now,
	}
	won, err := e.records.OpenTier(ctx, &rec)
	if err != nil {
		return 0, err
	}
	if !won {
		return 0, nil
	}
	e.logger.Info("escalation opened",
		"account_id", item.AccountID, "feedback_id", item.ID,
		"tier", int(tier), "reason", string(reason), "policy", policy.Name)
	e.metrics.ObserveEscalation(fmt.Sprintf("%d", int(tier)), string(reason))
	e.notify(ctx, func(ctx context.Context) error {
		return e.notifier.OnEscalation(ctx, EscalationEvent{Record: rec, Item: item, Policy: policy})
	}, "escalation", item.ID)
	return 1, nil
}

func (e *Engine) notify(ctx context.Context, fn func(context.Context) error, what string, feedbackID uuid.UUID) {
	if e.notifier == nil {
		return
	}
	if err := fn(ctx); err != nil {
		e.logger.Error("notification dispatch failed",
			"event", what, "feedback_id", feedbackID, "error", err)
	}
}

// OnCreated evaluates instant-escalation triggers for a freshly created
// feedback item: a critical rating, urgent sentiment, or a reporter with
// several incidents already open all warrant an immediate tier-1 escalation
// without waiting for elapsed-time thresholds.
func (e *Engine) OnCreated(ctx context.Context, accountID string, feedbackID uuid.UUID, now time.Time) (bool, error) {
	ctx, span := engineTracer.Start(ctx, "escalation.on_created")
	defer span.End()
	span.SetAttributes(
		attribute.String("account_id", accountID),
		attribute.String("feedback_id", feedbackID.String()),
	)

	item, err := e.items.GetByID(ctx, accountID, feedbackID)
	if err != nil {
		return false, fmt.Errorf("escalation: load feedback: %w", err)
	}
	if item.State.Terminal() {
		return false, nil
	}

	reason, err := e.instantReason(ctx, item)
	if err != nil {
		return false, err
	}
	if reason == "" {
		return false, nil
	}

	policies, err := e.policies.ListActive(ctx, accountID)
	if err != nil {
		return false, fmt.Errorf("escalation: list policies: %w", err)
	}
	policy, err := e.matcher.Match(policies, item)
	if err != nil {
		return false, err
	}
	n, err := e.trigger(ctx, policy, item, TierManager, reason, now)
	return n > 0, err
}

// instantReason picks the strongest immediate trigger, or "" when none apply.
func (e *Engine) instantReason(ctx context.Context, item *feedback.Item) (TriggerReason, error) {
	if item.Rating > 0 && item.Rating <= e.criticalRatingMax {
		return ReasonCriticalRating, nil
	}
	if item.Urgent {
		return ReasonUrgentSentiment, nil
	}
	open, err := e.items.CountOpenByReporter(ctx, item.AccountID, item.ReporterID)
	if err != nil {
		return "", fmt.Errorf("escalation: count open by reporter: %w", err)
	}
	if open >= e.repeatIncidentMinOpen {
		return ReasonRepeatIncident, nil
	}
	return "", nil
}

// CloseAll resolves every open escalation for a feedback item. Called
// synchronously from the resolution path; idempotent, so replays and races
// with a concurrent scan settle on the same closed state.
func (e *Engine) CloseAll(ctx context.Context, accountID string, feedbackID uuid.UUID, note string, now time.Time) (int64, error) {
	ctx, span := engineTracer.Start(ctx, "escalation.close_all")
	defer span.End()
	span.SetAttributes(attribute.String("feedback_id", feedbackID.String()))

	closed, err := e.records.CloseAllForFeedback(ctx, feedbackID, note, now)
	if err != nil {
		return 0, err
	}
	if closed > 0 {
		e.logger.Info("escalations closed",
			"account_id", accountID, "feedback_id", feedbackID, "count", closed)
	}
	span.SetAttributes(attribute.Int64("closed", closed))
	return closed, nil
}

// nextTierDue returns the single next tier to open given the item's age, or 0
// when nothing new is due. Tiers open strictly in order: even when elapsed
// time already satisfies tier 3, an item with no open tiers gets tier 1 first
// and advances one tier per scan.
func nextTierDue(p *sla.Policy, el sla.Elapsed, highestOpen Tier) Tier {
	eligible := Tier(0)
	for t := 1; t <= TierCount; t++ {
		if el.SinceCreation >= time.Duration(p.TierThresholdMinutes(t))*time.Minute {
			eligible = Tier(t)
		}
	}
	if eligible > highestOpen {
		return highestOpen + 1
	}
	return 0
}
