package domain

import (
	"context"

	"github.com/saude-al/ambulatorio/internal/shared/types"
)

// PatientFilter narrows ListPatients
type PatientFilter struct {
	// Search matches part of the name, or a whole CPF or CNS
	Search string
	Limit  int
	Offset int
}

// AppendFunc builds the consultation to append from the patient's full
// history. It runs while the patient is locked; returning an error aborts.
type AppendFunc func(history []Consultation) (*Consultation, error)

// VoidFunc builds the void for target from the patient's full history,
// under the same lock as AppendFunc.
type VoidFunc func(target *Consultation, history []Consultation) (*ConsultationVoid, error)

// Repository defines persistence operations for patients, profiles and consultations
type Repository interface {
	SavePatient(ctx context.Context, p *Patient) error
	UpdatePatient(ctx context.Context, p *Patient) error
	FindPatient(ctx context.Context, id types.ID) (*Patient, error)
	ListPatients(ctx context.Context, filter PatientFilter) ([]Patient, int, error)
	// ListGuardians returns current and retired guardians, oldest first
	ListGuardians(ctx context.Context, patientID types.ID) ([]Guardian, error)

	SaveProfile(ctx context.Context, p *GinecologicalProfile) error
	UpdateProfile(ctx context.Context, p *GinecologicalProfile) error
	FindProfile(ctx context.Context, patientID types.ID) (*GinecologicalProfile, error)

	// ListConsultations returns the history by date, then sequence, voids attached
	ListConsultations(ctx context.Context, patientID types.ID) ([]Consultation, error)
	// AppendConsultation reads the history and inserts build's result atomically
	// per patient, so concurrent appends cannot both pass the device check.
	AppendConsultation(ctx context.Context, patientID types.ID, build AppendFunc) (*Consultation, error)
	// VoidConsultation appends a void with the same per-patient atomicity
	VoidConsultation(ctx context.Context, patientID, consultationID types.ID, build VoidFunc) (*ConsultationVoid, error)
}
