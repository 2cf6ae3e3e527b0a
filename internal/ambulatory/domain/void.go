package domain

import (
	"strings"
	"time"

	"github.com/saude-al/ambulatorio/internal/shared/types"
)

// Void fields
const (
	FieldVoidReason        FieldID = "reason"
	FieldVoidJustification FieldID = "justification"
	FieldConsultation      FieldID = "consultation"
)

// VoidDraft is a request to void a consultation
type VoidDraft struct {
	Reason        VoidReason
	Justification string
}

// ConsultationVoid marks a consultation as entered in error. It is appended
// next to the consultation, which itself stays untouched in history.
type ConsultationVoid struct {
	ID             types.ID   `json:"id"`
	ConsultationID types.ID   `json:"consultation_id"`
	PatientID      types.ID   `json:"patient_id"`
	Reason         VoidReason `json:"reason"`
	Justification  string     `json:"justification"`
	VoidedBy       string     `json:"voided_by"`
	VoidedAt       time.Time  `json:"voided_at"`
}

// ValidateVoid checks a void request against the patient's full history.
// A consultation can be voided once, and only if the remaining history still
// folds without new device conflicts.
func ValidateVoid(target *Consultation, history []Consultation, d VoidDraft) error {
	var errs ValidationErrors

	switch {
	case d.Reason == "":
		errs.missing(FieldVoidReason)
	case !d.Reason.Valid():
		errs.add(FieldVoidReason, CodeInvalidValue, "must be data_entry_error, wrong_patient or duplicate")
	}
	if isBlank(d.Justification) {
		errs.missing(FieldVoidJustification)
	}

	if target.IsVoided() {
		errs.add(FieldConsultation, CodeAlreadyVoided, "consultation is already voided")
		return errs
	}

	before := FoldDeviceEvents(EventsFromConsultations(history))
	remaining := make([]Consultation, 0, len(history))
	for _, c := range history {
		if c.ID != target.ID {
			remaining = append(remaining, c)
		}
	}
	after := FoldDeviceEvents(EventsFromConsultations(remaining))
	if len(NewConflicts(before, after)) > 0 {
		errs.add(FieldConsultation, CodeVoidBreaksDeviceHistory,
			"voiding this consultation would leave a later device event without a valid predecessor")
	}

	return errs.OrNil()
}

// NewConsultationVoid builds the void record for a validated request
func NewConsultationVoid(target *Consultation, d VoidDraft, voidedBy string, now time.Time) *ConsultationVoid {
	return &ConsultationVoid{
		ID:             types.NewID(),
		ConsultationID: target.ID,
		PatientID:      target.PatientID,
		Reason:         d.Reason,
		Justification:  strings.TrimSpace(d.Justification),
		VoidedBy:       voidedBy,
		VoidedAt:       now,
	}
}
