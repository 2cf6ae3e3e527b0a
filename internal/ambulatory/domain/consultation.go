package domain

import (
	"strings"
	"time"

	"github.com/saude-al/ambulatorio/internal/shared/types"
)

// Consultation fields
const (
	FieldDate                     FieldID = "date"
	FieldInsertionOccurred        FieldID = "insertion_occurred"
	FieldInsertedDeviceType       FieldID = "inserted_device_type"
	FieldIntercurrenceOccurred    FieldID = "intercurrence_occurred"
	FieldIntercurrenceDescription FieldID = "intercurrence_description"
	FieldRemovalOccurred          FieldID = "removal_occurred"
	FieldRemovedMethod            FieldID = "removed_method"
	FieldRemovalReason            FieldID = "removal_reason"
	FieldNotes                    FieldID = "notes"
)

// ConsultationDraft is a consultation as submitted, before validation
type ConsultationDraft struct {
	// ID is set only when re-validating a stored consultation
	ID                       types.ID
	Date                     string
	InsertionOccurred        Answer
	InsertedDeviceType       DeviceType
	IntercurrenceOccurred    Answer
	IntercurrenceDescription string
	RemovalOccurred          Answer
	RemovedMethod            DeviceType
	RemovalReason            string
	Notes                    string
}

// Consultation is an accepted visit record. It is never modified after it is
// appended; corrections are made by voiding it.
type Consultation struct {
	ID                       types.ID          `json:"id"`
	PatientID                types.ID          `json:"patient_id"`
	Sequence                 int               `json:"sequence"`
	Date                     types.Date        `json:"date"`
	InsertionOccurred        bool              `json:"insertion_occurred"`
	InsertedDeviceType       DeviceType        `json:"inserted_device_type,omitempty"`
	IntercurrenceOccurred    bool              `json:"intercurrence_occurred"`
	IntercurrenceDescription string            `json:"intercurrence_description,omitempty"`
	RemovalOccurred          bool              `json:"removal_occurred"`
	RemovedMethod            DeviceType        `json:"removed_method,omitempty"`
	RemovalReason            string            `json:"removal_reason,omitempty"`
	Notes                    string            `json:"notes,omitempty"`
	RecordedBy               string            `json:"recorded_by"`
	CreatedAt                time.Time         `json:"created_at"`
	Void                     *ConsultationVoid `json:"void,omitempty"`
}

// IsVoided reports whether the consultation has been voided
func (c *Consultation) IsVoided() bool {
	return c.Void != nil
}

// DeviceAction summarizes what the consultation did to the device
func (c *Consultation) DeviceAction() string {
	switch {
	case c.InsertionOccurred && c.RemovalOccurred:
		return "exchange"
	case c.InsertionOccurred:
		return string(ActionInsert)
	case c.RemovalOccurred:
		return string(ActionRemove)
	}
	return "none"
}

// DeviceEvents returns the consultation's removal then insertion.
// Voided consultations contribute nothing.
func (c *Consultation) DeviceEvents() []DeviceEvent {
	if c.IsVoided() {
		return nil
	}
	var events []DeviceEvent
	if c.RemovalOccurred {
		events = append(events, DeviceEvent{
			ConsultationID: c.ID,
			Sequence:       c.Sequence,
			Date:           c.Date,
			Action:         ActionRemove,
			Type:           c.RemovedMethod,
		})
	}
	if c.InsertionOccurred {
		events = append(events, DeviceEvent{
			ConsultationID: c.ID,
			Sequence:       c.Sequence,
			Date:           c.Date,
			Action:         ActionInsert,
			Type:           c.InsertedDeviceType,
		})
	}
	return events
}

// ValidateConsultation checks a draft against the patient's device events and
// returns every problem at once as ValidationErrors, or nil. It is pure:
// the same draft, events and today always give the same result.
//
// Device answers are checked against the state on the draft's own date, so a
// backdated insertion or removal is judged where it falls in the history.
// An insertion is refused while a device is active at that point, unless the
// draft itself first removes that device. A draft that is consistent on its
// date but would invalidate a later device event is refused as well.
func ValidateConsultation(d ConsultationDraft, events []DeviceEvent, today types.Date) error {
	var errs ValidationErrors

	date, dateErr := types.ParseDate(strings.TrimSpace(d.Date))
	dated := false
	switch {
	case isBlank(d.Date):
		errs.missing(FieldDate)
	case dateErr != nil:
		errs.add(FieldDate, CodeInvalidDate, "must be a valid date in YYYY-MM-DD format")
	case date.After(today):
		errs.add(FieldDate, CodeFutureDate, "must not be in the future")
	default:
		dated = true
	}

	others, sequence := otherDeviceEvents(events, d.ID)
	state := CurrentState(others)
	if dated {
		state = DeviceStateAt(others, date, sequence)
	}

	// the removal is evaluated first: its outcome decides whether an insertion is allowed
	var removalErrs ValidationErrors
	switch {
	case !d.RemovalOccurred.Valid():
		removalErrs.add(FieldRemovalOccurred, CodeInvalidValue, "must be yes or no")
	case d.RemovalOccurred.IsYes():
		switch {
		case d.RemovedMethod == DeviceNone:
			removalErrs.missing(FieldRemovedMethod)
		case !d.RemovedMethod.IsDevice():
			removalErrs.add(FieldRemovedMethod, CodeInvalidValue, "must be iud or implant")
		case !state.IsActive():
			removalErrs.add(FieldRemovedMethod, CodeNoActiveDevice, "patient has no active device to remove")
		case state.Active != d.RemovedMethod:
			removalErrs.add(FieldRemovedMethod, CodeDeviceMismatch,
				"active device is "+state.Active.Label()+", not "+d.RemovedMethod.Label())
		default:
			state, _ = state.Transition(DeviceEvent{Action: ActionRemove, Type: d.RemovedMethod})
		}
		if isBlank(d.RemovalReason) {
			removalErrs.missing(FieldRemovalReason)
		}
	}

	switch {
	case !d.InsertionOccurred.IsSet():
		errs.missing(FieldInsertionOccurred)
	case !d.InsertionOccurred.Valid():
		errs.add(FieldInsertionOccurred, CodeInvalidValue, "must be yes or no")
	case d.InsertionOccurred.IsYes():
		switch {
		case d.InsertedDeviceType == DeviceNone:
			errs.missing(FieldInsertedDeviceType)
		case !d.InsertedDeviceType.IsDevice():
			errs.add(FieldInsertedDeviceType, CodeInvalidValue, "must be iud or implant")
		}
		if state.IsActive() {
			errs = append(errs, FieldError{
				Field:        FieldInsertionOccurred,
				Code:         CodeConflictingActiveDevice,
				Message:      "patient already has an active " + state.Active.Label() + "; register its removal first",
				ActiveDevice: state.Active,
			})
		}
	}

	switch {
	case !d.IntercurrenceOccurred.IsSet():
		errs.missing(FieldIntercurrenceOccurred)
	case !d.IntercurrenceOccurred.Valid():
		errs.add(FieldIntercurrenceOccurred, CodeInvalidValue, "must be yes or no")
	case d.IntercurrenceOccurred.IsYes() && isBlank(d.IntercurrenceDescription):
		errs.missing(FieldIntercurrenceDescription)
	}

	errs = append(errs, removalErrs...)
	if len(errs) == 0 {
		if broken := laterConflicts(others, d.deviceEvents(date, sequence)); len(broken) > 0 {
			e := broken[0].Event
			errs.add(FieldDate, CodeBreaksDeviceHistory,
				"conflicts with the "+e.Type.Label()+" "+string(e.Action)+" recorded on "+e.Date.String())
		}
	}
	return errs.OrNil()
}

// otherDeviceEvents drops the events of consultation excluding and returns
// the sequence a draft takes among the rest: the stored one when excluding
// is found, otherwise one past the highest.
func otherDeviceEvents(events []DeviceEvent, excluding types.ID) ([]DeviceEvent, int) {
	others := make([]DeviceEvent, 0, len(events))
	sequence, last := 0, 0
	for _, e := range events {
		if !excluding.IsZero() && e.ConsultationID == excluding {
			sequence = e.Sequence
			continue
		}
		last = max(last, e.Sequence)
		others = append(others, e)
	}
	if sequence == 0 {
		sequence = last + 1
	}
	return others, sequence
}

// laterConflicts folds others with and without the draft's events and
// returns the conflicts the draft introduces
func laterConflicts(others, draft []DeviceEvent) []DeviceConflict {
	if len(draft) == 0 {
		return nil
	}
	combined := make([]DeviceEvent, 0, len(others)+len(draft))
	combined = append(combined, others...)
	combined = append(combined, draft...)
	return NewConflicts(FoldDeviceEvents(others), FoldDeviceEvents(combined))
}

// deviceEvents are the events a valid draft would contribute, removal first
func (d ConsultationDraft) deviceEvents(date types.Date, sequence int) []DeviceEvent {
	var events []DeviceEvent
	if d.RemovalOccurred.IsYes() {
		events = append(events, DeviceEvent{
			ConsultationID: d.ID, Sequence: sequence, Date: date, Action: ActionRemove, Type: d.RemovedMethod,
		})
	}
	if d.InsertionOccurred.IsYes() {
		events = append(events, DeviceEvent{
			ConsultationID: d.ID, Sequence: sequence, Date: date, Action: ActionInsert, Type: d.InsertedDeviceType,
		})
	}
	return events
}

// NewConsultation builds the record for a validated draft. Answers that do
// not apply (a device type without an insertion, and so on) are dropped.
func NewConsultation(patientID types.ID, d ConsultationDraft, sequence int, recordedBy string, now time.Time) *Consultation {
	date, _ := types.ParseDate(strings.TrimSpace(d.Date))
	c := &Consultation{
		ID:                    types.NewID(),
		PatientID:             patientID,
		Sequence:              sequence,
		Date:                  date,
		InsertionOccurred:     d.InsertionOccurred.IsYes(),
		IntercurrenceOccurred: d.IntercurrenceOccurred.IsYes(),
		RemovalOccurred:       d.RemovalOccurred.IsYes(),
		Notes:                 strings.TrimSpace(d.Notes),
		RecordedBy:            recordedBy,
		CreatedAt:             now,
	}
	if c.InsertionOccurred {
		c.InsertedDeviceType = d.InsertedDeviceType
	}
	if c.IntercurrenceOccurred {
		c.IntercurrenceDescription = strings.TrimSpace(d.IntercurrenceDescription)
	}
	if c.RemovalOccurred {
		c.RemovedMethod = d.RemovedMethod
		c.RemovalReason = strings.TrimSpace(d.RemovalReason)
	}
	return c
}

// Draft converts a stored consultation back into a draft, for re-validation
func (c *Consultation) Draft() ConsultationDraft {
	return ConsultationDraft{
		ID:                       c.ID,
		Date:                     c.Date.String(),
		InsertionOccurred:        AnswerOf(c.InsertionOccurred),
		InsertedDeviceType:       c.InsertedDeviceType,
		IntercurrenceOccurred:    AnswerOf(c.IntercurrenceOccurred),
		IntercurrenceDescription: c.IntercurrenceDescription,
		RemovalOccurred:          AnswerOf(c.RemovalOccurred),
		RemovedMethod:            c.RemovedMethod,
		RemovalReason:            c.RemovalReason,
		Notes:                    c.Notes,
	}
}
