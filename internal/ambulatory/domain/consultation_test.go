package domain

import (
	"testing"

	"github.com/saude-al/ambulatorio/internal/shared/types"
)

func insertionDraft(date string, t DeviceType) ConsultationDraft {
	return ConsultationDraft{
		Date:                  date,
		InsertionOccurred:     AnswerYes,
		InsertedDeviceType:    t,
		IntercurrenceOccurred: AnswerNo,
		RemovalOccurred:       AnswerNo,
	}
}

func removalDraft(date string, t DeviceType) ConsultationDraft {
	return ConsultationDraft{
		Date:                  date,
		InsertionOccurred:     AnswerNo,
		IntercurrenceOccurred: AnswerNo,
		RemovalOccurred:       AnswerYes,
		RemovedMethod:         t,
		RemovalReason:         "desejo de engravidar",
	}
}

// accept validates d against history and appends it, failing the test on rejection
func accept(t *testing.T, patientID types.ID, history []Consultation, d ConsultationDraft) []Consultation {
	t.Helper()
	if err := ValidateConsultation(d, EventsFromConsultations(history), today); err != nil {
		t.Fatalf("Expected consultation to be accepted, got %v", err)
	}
	c := NewConsultation(patientID, d, len(history)+1, "nurse-1", now)
	return append(history, *c)
}

func TestValidateConsultationFields(t *testing.T) {
	tests := []struct {
		name  string
		draft ConsultationDraft
		want  []FieldID
		codes []ErrorCode
	}{
		{
			name:  "follow-up without device activity",
			draft: ConsultationDraft{Date: "2026-10-01", InsertionOccurred: AnswerNo, IntercurrenceOccurred: AnswerNo},
		},
		{
			name:  "everything missing",
			draft: ConsultationDraft{},
			want:  []FieldID{FieldDate, FieldInsertionOccurred, FieldIntercurrenceOccurred},
			codes: []ErrorCode{CodeMissing, CodeMissing, CodeMissing},
		},
		{
			name:  "bad date",
			draft: ConsultationDraft{Date: "01/10/2026", InsertionOccurred: AnswerNo, IntercurrenceOccurred: AnswerNo},
			want:  []FieldID{FieldDate},
			codes: []ErrorCode{CodeInvalidDate},
		},
		{
			name:  "future date",
			draft: ConsultationDraft{Date: "2026-10-20", InsertionOccurred: AnswerNo, IntercurrenceOccurred: AnswerNo},
			want:  []FieldID{FieldDate},
			codes: []ErrorCode{CodeFutureDate},
		},
		{
			name:  "dated today",
			draft: ConsultationDraft{Date: "2026-10-19", InsertionOccurred: AnswerNo, IntercurrenceOccurred: AnswerNo},
		},
		{
			name:  "insertion without type",
			draft: ConsultationDraft{Date: "2026-10-01", InsertionOccurred: AnswerYes, IntercurrenceOccurred: AnswerNo},
			want:  []FieldID{FieldInsertedDeviceType},
			codes: []ErrorCode{CodeMissing},
		},
		{
			name:  "insertion of unknown type",
			draft: ConsultationDraft{Date: "2026-10-01", InsertionOccurred: AnswerYes, InsertedDeviceType: "ring", IntercurrenceOccurred: AnswerNo},
			want:  []FieldID{FieldInsertedDeviceType},
			codes: []ErrorCode{CodeInvalidValue},
		},
		{
			name:  "intercurrence without description",
			draft: ConsultationDraft{Date: "2026-10-01", InsertionOccurred: AnswerNo, IntercurrenceOccurred: AnswerYes, IntercurrenceDescription: " "},
			want:  []FieldID{FieldIntercurrenceDescription},
			codes: []ErrorCode{CodeMissing},
		},
		{
			name:  "invalid answers",
			draft: ConsultationDraft{Date: "2026-10-01", InsertionOccurred: "maybe", IntercurrenceOccurred: "talvez", RemovalOccurred: "?"},
			want:  []FieldID{FieldInsertionOccurred, FieldIntercurrenceOccurred, FieldRemovalOccurred},
			codes: []ErrorCode{CodeInvalidValue, CodeInvalidValue, CodeInvalidValue},
		},
		{
			name: "removal without method or reason",
			draft: ConsultationDraft{
				Date: "2026-10-01", InsertionOccurred: AnswerNo, IntercurrenceOccurred: AnswerNo,
				RemovalOccurred: AnswerYes,
			},
			want:  []FieldID{FieldRemovedMethod, FieldRemovalReason},
			codes: []ErrorCode{CodeMissing, CodeMissing},
		},
		{
			name:  "removal with nothing inserted",
			draft: removalDraft("2026-10-01", DeviceIUD),
			want:  []FieldID{FieldRemovedMethod},
			codes: []ErrorCode{CodeNoActiveDevice},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConsultation(tt.draft, nil, today)
			if len(tt.want) == 0 {
				if err != nil {
					t.Fatalf("Expected no error, got %v", err)
				}
				return
			}
			errs, ok := AsValidationErrors(err)
			if !ok {
				t.Fatalf("Expected ValidationErrors, got %v", err)
			}
			if len(errs) != len(tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, errs)
			}
			for i := range tt.want {
				if errs[i].Field != tt.want[i] || errs[i].Code != tt.codes[i] {
					t.Errorf("Error %d: expected %s/%s, got %s/%s", i, tt.want[i], tt.codes[i], errs[i].Field, errs[i].Code)
				}
			}
		})
	}
}

func TestConsultationDeviceHistoryScenario(t *testing.T) {
	patientID := types.NewID()

	// C1: IUD inserted
	history := accept(t, patientID, nil, insertionDraft("2026-01-15", DeviceIUD))

	// C2: implant while the IUD is in place
	c2 := insertionDraft("2026-04-10", DeviceImplant)
	err := ValidateConsultation(c2, EventsFromConsultations(history), today)
	errs, ok := AsValidationErrors(err)
	if !ok || len(errs) != 1 {
		t.Fatalf("Expected a single conflict, got %v", err)
	}
	if errs[0].Field != FieldInsertionOccurred || errs[0].Code != CodeConflictingActiveDevice {
		t.Errorf("Unexpected error: %+v", errs[0])
	}
	if active, ok := ConflictingActiveDevice(err); !ok || active != DeviceIUD {
		t.Errorf("Expected conflict to name the IUD, got %q", active)
	}

	// C3: IUD removed
	history = accept(t, patientID, history, removalDraft("2026-05-02", DeviceIUD))

	// the C2 draft is still refused: on 2026-04-10 the IUD was in place
	if active, ok := ConflictingActiveDevice(ValidateConsultation(c2, EventsFromConsultations(history), today)); !ok || active != DeviceIUD {
		t.Errorf("Expected the 2026-04-10 implant to conflict with the IUD, got %q", active)
	}

	// C4: implant accepted after the removal
	history = accept(t, patientID, history, insertionDraft("2026-05-20", DeviceImplant))

	tl := FoldDeviceEvents(EventsFromConsultations(history))
	if tl.State != DeviceActive(DeviceImplant) || len(tl.Conflicts) != 0 {
		t.Errorf("Expected implant active with a clean history, got %+v", tl)
	}
	if history[2].Sequence != 3 {
		t.Errorf("Expected sequence 3, got %d", history[2].Sequence)
	}
}

func TestValidateConsultationBackdated(t *testing.T) {
	patientID := types.NewID()

	t.Run("insertion inside an earlier device period", func(t *testing.T) {
		history := accept(t, patientID, nil, insertionDraft("2024-01-01", DeviceIUD))
		history = accept(t, patientID, history, removalDraft("2024-06-01", DeviceIUD))

		err := ValidateConsultation(insertionDraft("2024-03-01", DeviceImplant), EventsFromConsultations(history), today)
		if active, ok := ConflictingActiveDevice(err); !ok || active != DeviceIUD {
			t.Fatalf("Expected conflict with the IUD active on 2024-03-01, got %v", err)
		}

		// after the removal the same implant is fine
		history = accept(t, patientID, history, insertionDraft("2024-07-01", DeviceImplant))
		if tl := FoldDeviceEvents(EventsFromConsultations(history)); tl.State != DeviceActive(DeviceImplant) || len(tl.Conflicts) != 0 {
			t.Errorf("Expected implant active with a clean history, got %+v", tl)
		}
	})

	t.Run("removal before the insertion", func(t *testing.T) {
		history := accept(t, patientID, nil, insertionDraft("2024-05-01", DeviceIUD))

		errs, ok := AsValidationErrors(ValidateConsultation(removalDraft("2024-01-01", DeviceIUD), EventsFromConsultations(history), today))
		if !ok || len(errs) != 1 || errs[0].Field != FieldRemovedMethod || errs[0].Code != CodeNoActiveDevice {
			t.Fatalf("Expected removed_method/no_active_device, got %v", errs)
		}
	})

	t.Run("insertion that would block a later one", func(t *testing.T) {
		history := accept(t, patientID, nil, insertionDraft("2024-05-01", DeviceIUD))

		errs, ok := AsValidationErrors(ValidateConsultation(insertionDraft("2024-01-01", DeviceImplant), EventsFromConsultations(history), today))
		if !ok || len(errs) != 1 || errs[0].Field != FieldDate || errs[0].Code != CodeBreaksDeviceHistory {
			t.Fatalf("Expected date/breaks_device_history, got %v", errs)
		}
		if _, conflict := errs.ActiveDevice(); conflict {
			t.Error("Expected no active device reported")
		}
	})

	t.Run("removal that would orphan a later one", func(t *testing.T) {
		history := accept(t, patientID, nil, insertionDraft("2024-01-01", DeviceIUD))
		history = accept(t, patientID, history, removalDraft("2024-06-01", DeviceIUD))

		errs, _ := AsValidationErrors(ValidateConsultation(removalDraft("2024-03-01", DeviceIUD), EventsFromConsultations(history), today))
		if len(errs) != 1 || errs[0].Code != CodeBreaksDeviceHistory {
			t.Fatalf("Expected breaks_device_history, got %v", errs)
		}
	})

	t.Run("follow-up between events", func(t *testing.T) {
		history := accept(t, patientID, nil, insertionDraft("2024-01-01", DeviceIUD))
		history = accept(t, patientID, history, removalDraft("2024-06-01", DeviceIUD))

		d := ConsultationDraft{Date: "2024-03-01", InsertionOccurred: AnswerNo, IntercurrenceOccurred: AnswerNo, RemovalOccurred: AnswerNo}
		if err := ValidateConsultation(d, EventsFromConsultations(history), today); err != nil {
			t.Errorf("Expected a backdated follow-up to be accepted, got %v", err)
		}
	})
}

func TestValidateConsultationIsPure(t *testing.T) {
	patientID := types.NewID()
	history := accept(t, patientID, nil, insertionDraft("2026-01-15", DeviceImplant))
	events := EventsFromConsultations(history)
	draft := insertionDraft("2026-03-01", DeviceIUD)

	first := ValidateConsultation(draft, events, today)
	second := ValidateConsultation(draft, events, today)
	if first == nil || second == nil || first.Error() != second.Error() {
		t.Errorf("Expected identical rejections, got %v and %v", first, second)
	}
	if len(events) != 1 || events[0].Type != DeviceImplant {
		t.Error("Expected events untouched")
	}
}

func TestValidateConsultationExchange(t *testing.T) {
	patientID := types.NewID()
	history := accept(t, patientID, nil, insertionDraft("2026-01-15", DeviceIUD))

	exchange := removalDraft("2026-07-01", DeviceIUD)
	exchange.InsertionOccurred = AnswerYes
	exchange.InsertedDeviceType = DeviceImplant
	history = accept(t, patientID, history, exchange)

	if got := history[1].DeviceAction(); got != "exchange" {
		t.Errorf("Expected exchange, got %s", got)
	}
	if state := CurrentState(EventsFromConsultations(history)); state != DeviceActive(DeviceImplant) {
		t.Errorf("Expected implant active, got %s", state)
	}

	t.Run("mismatched removal does not clear the way", func(t *testing.T) {
		bad := removalDraft("2026-08-01", DeviceIUD)
		bad.InsertionOccurred = AnswerYes
		bad.InsertedDeviceType = DeviceIUD
		errs, _ := AsValidationErrors(ValidateConsultation(bad, EventsFromConsultations(history), today))
		if !errs.HasCode(CodeConflictingActiveDevice) || !errs.HasCode(CodeDeviceMismatch) {
			t.Errorf("Expected conflict and mismatch, got %v", errs)
		}
		if active, _ := errs.ActiveDevice(); active != DeviceImplant {
			t.Errorf("Expected implant reported, got %q", active)
		}
	})
}

func TestValidateConsultationRevalidatesStoredRecord(t *testing.T) {
	patientID := types.NewID()
	history := accept(t, patientID, nil, insertionDraft("2026-01-15", DeviceIUD))

	if err := ValidateConsultation(history[0].Draft(), EventsFromConsultations(history), today); err != nil {
		t.Errorf("Expected a stored insertion to re-validate against its own history, got %v", err)
	}

	history = accept(t, patientID, history, removalDraft("2026-03-01", DeviceIUD))
	history = accept(t, patientID, history, insertionDraft("2026-03-01", DeviceImplant))
	for i := range history {
		if err := ValidateConsultation(history[i].Draft(), EventsFromConsultations(history), today); err != nil {
			t.Errorf("Expected consultation %d to re-validate in place, got %v", history[i].Sequence, err)
		}
	}
}

func TestNewConsultationDropsInapplicableAnswers(t *testing.T) {
	d := ConsultationDraft{
		Date:                     " 2026-10-01 ",
		InsertionOccurred:        AnswerNo,
		InsertedDeviceType:       DeviceIUD,
		IntercurrenceOccurred:    AnswerNo,
		IntercurrenceDescription: "leftover",
		RemovalOccurred:          AnswerNo,
		RemovedMethod:            DeviceImplant,
		RemovalReason:            "leftover",
		Notes:                    "  retorno em 6 meses ",
	}
	c := NewConsultation(types.NewID(), d, 1, "nurse-1", now)

	if c.InsertedDeviceType != DeviceNone || c.RemovedMethod != DeviceNone {
		t.Errorf("Expected device answers dropped, got %+v", c)
	}
	if c.IntercurrenceDescription != "" || c.RemovalReason != "" {
		t.Errorf("Expected free text dropped, got %+v", c)
	}
	if c.Notes != "retorno em 6 meses" {
		t.Errorf("Expected trimmed notes, got %q", c.Notes)
	}
	if c.Date != mustDate("2026-10-01") {
		t.Errorf("Expected date parsed, got %s", c.Date)
	}
	if len(c.DeviceEvents()) != 0 || c.DeviceAction() != "none" {
		t.Error("Expected no device events")
	}
}
