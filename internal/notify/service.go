package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/voxloop/feedback-platform/internal/escalation"
	"github.com/voxloop/feedback-platform/internal/sla"
	"github.com/voxloop/feedback-platform/pkg/logging"
)

var tierTitles = map[escalation.Tier]string{
	escalation.TierManager:   "Manager",
	escalation.TierDirector:  "Director",
	escalation.TierExecutive: "Executive",
}

// QueueEvent is the JSON payload published to the downstream queue channel.
type QueueEvent struct {
	Type       string    `json:"type"` // "escalation" or "breach"
	AccountID  string    `json:"account_id"`
	FeedbackID string    `json:"feedback_id"`
	Tier       int       `json:"tier,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	PolicyID   string    `json:"policy_id"`
	PolicyName string    `json:"policy_name"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Service turns engine events into outbox messages on the channels the
// matched policy asks for. It never sends directly: writing to the outbox is
// the only side effect, so a notification enqueued for a committed escalation
// is never lost to a crash mid-send.
type Service struct {
	outbox    *OutboxStore
	directory RecipientDirectory
	logger    *logging.Logger
}

// NewService creates the notification service.
func NewService(outbox *OutboxStore, directory RecipientDirectory, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		outbox:    outbox,
		directory: directory,
		logger:    logger.WithComponent("notify"),
	}
}

// OnEscalation fans an opened escalation out to the policy's channels,
// addressed to the recipients configured for the record's tier.
func (s *Service) OnEscalation(ctx context.Context, ev escalation.EscalationEvent) error {
	subject := fmt.Sprintf("[%s escalation] Feedback %s needs attention",
		tierTitles[ev.Record.Tier], shortID(ev.Item.ID.String()))
	body := fmt.Sprintf(
		"Feedback %s (category %q, rating %d) escalated to tier %d (%s).\nReason: %s\nPolicy: %s\nOpened since: %s\n",
		ev.Item.ID, ev.Item.Category, ev.Item.Rating,
		int(ev.Record.Tier), tierTitles[ev.Record.Tier],
		ev.Record.Reason, ev.Policy.Name,
		ev.Item.CreatedAt.UTC().Format(time.RFC3339),
	)
	roles := ev.Policy.Recipients(int(ev.Record.Tier))
	queueEvent := QueueEvent{
		Type:       "escalation",
		AccountID:  ev.Record.AccountID,
		FeedbackID: ev.Item.ID.String(),
		Tier:       int(ev.Record.Tier),
		Reason:     string(ev.Record.Reason),
		PolicyID:   ev.Policy.ID.String(),
		PolicyName: ev.Policy.Name,
		OccurredAt: ev.Record.TriggeredAt,
	}
	return s.dispatch(ctx, ev.Record.AccountID, ev.Policy, roles, subject, body, queueEvent)
}

// OnBreach reports a first-time SLA breach to the tier-1 recipients.
func (s *Service) OnBreach(ctx context.Context, ev escalation.BreachEvent) error {
	subject := fmt.Sprintf("[SLA breach] Feedback %s missed its %s target",
		shortID(ev.Item.ID.String()), breachLabel(ev.Kind))
	body := fmt.Sprintf(
		"Feedback %s (category %q, rating %d) breached its %s SLA.\nPolicy: %s\nOpened since: %s\n",
		ev.Item.ID, ev.Item.Category, ev.Item.Rating,
		breachLabel(ev.Kind), ev.Policy.Name,
		ev.Item.CreatedAt.UTC().Format(time.RFC3339),
	)
	roles := ev.Policy.Recipients(int(escalation.TierManager))
	queueEvent := QueueEvent{
		Type:       "breach",
		AccountID:  ev.AccountID,
		FeedbackID: ev.Item.ID.String(),
		Kind:       string(ev.Kind),
		PolicyID:   ev.Policy.ID.String(),
		PolicyName: ev.Policy.Name,
		OccurredAt: ev.DetectedAt,
	}
	return s.dispatch(ctx, ev.AccountID, ev.Policy, roles, subject, body, queueEvent)
}

func (s *Service) dispatch(ctx context.Context, accountID string, policy *sla.Policy, roles []string, subject, body string, queueEvent QueueEvent) error {
	for _, channel := range policy.Channels {
		switch channel {
		case sla.ChannelEmail:
			emails, err := s.directory.EmailsForRoles(ctx, accountID, roles)
			if err != nil {
				return err
			}
			if len(emails) == 0 {
				s.logger.Warn("no deliverable recipients for alert, skipping email",
					"account_id", accountID, "roles", roles, "policy", policy.Name)
				continue
			}
			if err := s.outbox.Enqueue(ctx, TopicEmail, EmailMessage{To: emails, Subject: subject, Body: body}); err != nil {
				return err
			}
		case sla.ChannelQueue:
			if err := s.outbox.Enqueue(ctx, TopicQueue, queueEvent); err != nil {
				return err
			}
		default:
			s.logger.Warn("unknown notification channel on policy, skipping",
				"channel", string(channel), "policy", policy.Name)
		}
	}
	return nil
}

func breachLabel(kind sla.BreachKind) string {
	switch kind {
	case sla.BreachFirstResponse:
		return "first-response"
	case sla.BreachResolution:
		return "resolution"
	default:
		return string(kind)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
