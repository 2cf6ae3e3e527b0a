package domain

import "github.com/saude-al/ambulatorio/internal/shared/types"

// Event types published by the ambulatory module
const (
	EventPatientRegistered    = "patient.registered"
	EventPatientUpdated       = "patient.updated"
	EventProfileRecorded      = "profile.recorded"
	EventProfileAmended       = "profile.amended"
	EventConsultationAccepted = "consultation.accepted"
	EventConsultationVoided   = "consultation.voided"
)

// Event payloads carry identifiers and clinical flags only, no personal data.

type PatientRegistered struct {
	PatientID  types.ID `json:"patient_id"`
	Minor      bool     `json:"minor"`
	GuardianID types.ID `json:"guardian_id,omitempty"`
}

type PatientUpdated struct {
	PatientID       types.ID `json:"patient_id"`
	Minor           bool     `json:"minor"`
	GuardianID      types.ID `json:"guardian_id,omitempty"`
	GuardianChanged bool     `json:"guardian_changed"`
}

type ProfileChanged struct {
	PatientID     types.ID   `json:"patient_id"`
	Branch        Branch     `json:"branch"`
	DeviceChoice  DeviceType `json:"device_choice,omitempty"`
	UsesMethod    Answer     `json:"uses_contraceptive_method"`
}

type ConsultationAccepted struct {
	PatientID      types.ID    `json:"patient_id"`
	ConsultationID types.ID    `json:"consultation_id"`
	Sequence       int         `json:"sequence"`
	Date           types.Date  `json:"date"`
	DeviceAction   string      `json:"device_action"`
	DeviceState    DeviceState `json:"device_state"`
}

type ConsultationVoided struct {
	PatientID      types.ID    `json:"patient_id"`
	ConsultationID types.ID    `json:"consultation_id"`
	VoidID         types.ID    `json:"void_id"`
	Reason         VoidReason  `json:"reason"`
	DeviceState    DeviceState `json:"device_state"`
}
