package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/saude-al/ambulatorio/internal/shared/events"
	"github.com/saude-al/ambulatorio/internal/shared/logging"
	"github.com/saude-al/ambulatorio/internal/shared/metrics"
	"github.com/saude-al/ambulatorio/internal/shared/types"
)

// Subscriber listens to domain events and creates audit entries
type Subscriber struct {
	repo AuditRepository
	bus  events.EventBus
}

// NewSubscriber creates a new audit subscriber
func NewSubscriber(repo AuditRepository, bus events.EventBus) *Subscriber {
	return &Subscriber{repo: repo, bus: bus}
}

// Start subscribes to every audited event category
func (s *Subscriber) Start(ctx context.Context) error {
	patterns := []struct {
		pattern      string
		consumerName string
	}{
		{"patient.*", "audit-patient-subscriber"},
		{"profile.*", "audit-profile-subscriber"},
		{"consultation.*", "audit-consultation-subscriber"},
	}

	for _, p := range patterns {
		if err := s.bus.Subscribe(ctx, p.pattern, p.consumerName, s.handleEvent); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", p.pattern, err)
		}
	}

	return nil
}

func (s *Subscriber) handleEvent(ctx context.Context, event events.Event) error {
	entry := eventToAuditEntry(event)

	if err := s.repo.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	metrics.RecordAuditEntry()
	logging.FromContext(ctx).Debug().
		Str("action", entry.Action).
		Int64("sequence", entry.Sequence).
		Msg("audit entry appended")
	return nil
}

// eventToAuditEntry maps an event onto an entry. The patient is the event's
// aggregate; the resource is the one named by "<category>_id" in the payload,
// falling back to the patient.
func eventToAuditEntry(event events.Event) *AuditEntry {
	resourceType := event.Category()
	changes := payloadMap(event.Data)

	var patientID *types.ID
	if !event.AggregateID.IsZero() {
		id := event.AggregateID
		patientID = &id
	}

	resourceID := patientID
	if v, ok := changes[resourceType+"_id"].(string); ok && v != "" {
		id := types.ID(v)
		resourceID = &id
	}

	return &AuditEntry{
		ID:            types.NewID(),
		Timestamp:     event.Timestamp.UTC().Truncate(time.Microsecond),
		ActorID:       event.ActorID,
		ActorRole:     event.ActorRole,
		Action:        event.Type,
		ResourceType:  resourceType,
		ResourceID:    resourceID,
		PatientID:     patientID,
		Changes:       changes,
		CorrelationID: event.CorrelationID,
	}
}

// payloadMap normalizes typed payloads and payloads decoded off the wire
// to the same map form, so both hash identically.
func payloadMap(data any) map[string]any {
	if data == nil {
		return nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
