package events

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/saude-al/ambulatorio/internal/shared/types"
)

// Event represents a domain event
type Event struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Source        string    `json:"source"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`

	// AggregateID is the patient the event belongs to
	AggregateID types.ID `json:"aggregate_id,omitempty"`

	// Actor information
	ActorID   string `json:"actor_id,omitempty"`
	ActorRole string `json:"actor_role,omitempty"` // nurse, coordinator, auditor, admin, system

	// Event data
	Data any `json:"data"`
}

// NewEvent creates a new event with auto-generated ID and timestamp
func NewEvent(eventType, source string, data any) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// WithAggregate sets the aggregate the event belongs to
func (e Event) WithAggregate(id types.ID) Event {
	e.AggregateID = id
	return e
}

// WithActor sets the actor information on the event
func (e Event) WithActor(actorID, actorRole string) Event {
	e.ActorID = actorID
	e.ActorRole = actorRole
	return e
}

// WithCorrelation sets the correlation ID for request tracing
func (e Event) WithCorrelation(correlationID string) Event {
	e.CorrelationID = correlationID
	return e
}

// Category is the first segment of the event type ("consultation.accepted" -> "consultation")
func (e Event) Category() string {
	if i := strings.IndexByte(e.Type, '.'); i >= 0 {
		return e.Type[:i]
	}
	return e.Type
}

// Handler is a function that handles an event
type Handler func(ctx context.Context, event Event) error

// matchesPattern checks if an event type matches a wildcard pattern.
// "consultation.*" matches "consultation.accepted"; "*" matches everything.
func matchesPattern(eventType, pattern string) bool {
	if pattern == "*" || pattern == ">" {
		return true
	}

	patternParts := strings.Split(pattern, ".")
	typeParts := strings.Split(eventType, ".")

	for i, pp := range patternParts {
		if pp == "*" {
			return i < len(typeParts)
		}
		if i >= len(typeParts) || pp != typeParts[i] {
			return false
		}
	}

	return len(patternParts) == len(typeParts)
}

// patternToRegex converts a wildcard pattern to the regex used by server-side filters
func patternToRegex(pattern string) string {
	if pattern == "*" || pattern == ">" {
		return "^[^$].*"
	}
	var b strings.Builder
	b.WriteByte('^')
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '.':
			b.WriteString(`\.`)
		case '*':
			b.WriteString(".*")
		default:
			b.WriteByte(pattern[i])
		}
	}
	b.WriteByte('$')
	return b.String()
}
