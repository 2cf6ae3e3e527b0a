package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saude-al/ambulatorio/internal/shared/types"
)

func TestMatchesPattern(t *testing.T) {
	tests := []struct {
		eventType string
		pattern   string
		want      bool
	}{
		{"consultation.accepted", "consultation.*", true},
		{"consultation.voided", "consultation.*", true},
		{"patient.registered", "consultation.*", false},
		{"patient.registered", "*", true},
		{"patient.registered", "patient.registered", true},
		{"patient.registered", "patient.updated", false},
		{"patient", "patient.*", false},
	}

	for _, tt := range tests {
		t.Run(tt.eventType+"~"+tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.want, matchesPattern(tt.eventType, tt.pattern))
		})
	}
}

func TestPatternToRegex(t *testing.T) {
	assert.Equal(t, `^consultation\..*$`, patternToRegex("consultation.*"))
	assert.Equal(t, "^[^$].*", patternToRegex("*"))
}

func TestEventBuilders(t *testing.T) {
	patientID := types.NewID()
	e := NewEvent("consultation.accepted", "ambulatory", map[string]string{"k": "v"}).
		WithAggregate(patientID).
		WithActor("nurse-1", "nurse").
		WithCorrelation("req-1")

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "consultation", e.Category())
	assert.Equal(t, patientID, e.AggregateID)
	assert.Equal(t, "nurse-1", e.ActorID)
	assert.Equal(t, "req-1", e.CorrelationID)
	assert.False(t, e.Timestamp.IsZero())
}

func TestBusStreamName(t *testing.T) {
	b := &Bus{prefix: "ambulatorio"}
	id := types.MustParseID("6f1c2a0e-8a57-4c1e-9d1e-2b7f3c4d5e6f")

	assert.Equal(t, "ambulatorio-patient-6f1c2a0e-8a57-4c1e-9d1e-2b7f3c4d5e6f",
		b.streamName(NewEvent("patient.registered", "ambulatory", nil).WithAggregate(id)))
	assert.Equal(t, "ambulatorio-audit", b.streamName(NewEvent("audit.verified", "audit", nil)))
}

func TestLocalBusDelivery(t *testing.T) {
	bus := NewLocalBus()
	ctx := context.Background()

	var consultations, all []string
	require.NoError(t, bus.Subscribe(ctx, "consultation.*", "c", func(_ context.Context, e Event) error {
		consultations = append(consultations, e.Type)
		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx, "*", "all", func(_ context.Context, e Event) error {
		all = append(all, e.Type)
		return errors.New("handler failures are not propagated")
	}))

	require.NoError(t, bus.Publish(ctx, NewEvent("patient.registered", "ambulatory", nil)))
	require.NoError(t, bus.Publish(ctx, NewEvent("consultation.accepted", "ambulatory", nil)))

	assert.Equal(t, []string{"consultation.accepted"}, consultations)
	assert.Equal(t, []string{"patient.registered", "consultation.accepted"}, all)
	assert.NoError(t, bus.Health())

	bus.Close()
	require.NoError(t, bus.Publish(ctx, NewEvent("consultation.voided", "ambulatory", nil)))
	assert.Len(t, all, 2)
}
