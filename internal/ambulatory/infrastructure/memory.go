package infrastructure

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/saude-al/ambulatorio/internal/ambulatory/domain"
	"github.com/saude-al/ambulatorio/internal/shared/errors"
	"github.com/saude-al/ambulatorio/internal/shared/types"
)

// MemoryRepository implements domain.Repository in process memory.
// Consultation writes are serialized per patient; reads and writes of
// different patients proceed independently.
type MemoryRepository struct {
	mu       sync.RWMutex
	patients map[types.ID]*patientRecord
}

type patientRecord struct {
	// mu serializes consultation appends and voids for the patient
	mu            sync.Mutex
	patient       domain.Patient
	guardians     []domain.Guardian
	profile       *domain.GinecologicalProfile
	consultations []domain.Consultation
}

// NewMemoryRepository creates an empty repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{patients: make(map[types.ID]*patientRecord)}
}

var _ domain.Repository = (*MemoryRepository)(nil)

func (r *MemoryRepository) record(id types.ID) (*patientRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.patients[id]
	if !ok {
		return nil, errors.NotFound("patient", id.String())
	}
	return rec, nil
}

// duplicate reports whether another patient has the same CPF or CNS. Callers hold r.mu.
func (r *MemoryRepository) duplicate(p *domain.Patient) bool {
	for id, rec := range r.patients {
		if id == p.ID {
			continue
		}
		if rec.patient.CPF == p.CPF || rec.patient.CNS == p.CNS {
			return true
		}
	}
	return false
}

// SavePatient stores a new patient
func (r *MemoryRepository) SavePatient(_ context.Context, p *domain.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.patients[p.ID]; ok || r.duplicate(p) {
		return errors.Conflict("a patient with this CPF or CNS is already registered")
	}

	rec := &patientRecord{patient: copyPatient(p)}
	if p.Guardian != nil {
		rec.guardians = append(rec.guardians, *p.Guardian)
	}
	r.patients[p.ID] = rec
	return nil
}

// UpdatePatient replaces a patient, retiring a dropped or replaced guardian
func (r *MemoryRepository) UpdatePatient(_ context.Context, p *domain.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.patients[p.ID]
	if !ok {
		return errors.NotFound("patient", p.ID.String())
	}
	if r.duplicate(p) {
		return errors.Conflict("a patient with this CPF or CNS is already registered")
	}

	current := rec.patient.Guardian
	keep := current != nil && p.Guardian != nil && current.ID == p.Guardian.ID
	if current != nil && !keep {
		for i := range rec.guardians {
			if rec.guardians[i].ID == current.ID {
				retired := p.UpdatedAt
				rec.guardians[i].RetiredAt = &retired
			}
		}
	}
	if p.Guardian != nil && !keep {
		rec.guardians = append(rec.guardians, *p.Guardian)
	}

	rec.patient = copyPatient(p)
	return nil
}

// FindPatient returns a copy of the patient
func (r *MemoryRepository) FindPatient(_ context.Context, id types.ID) (*domain.Patient, error) {
	rec, err := r.record(id)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p := copyPatient(&rec.patient)
	return &p, nil
}

// ListPatients lists patients by name
func (r *MemoryRepository) ListPatients(_ context.Context, filter domain.PatientFilter) ([]domain.Patient, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	digits := digitsOf(search)

	matched := make([]domain.Patient, 0)
	for _, rec := range r.patients {
		p := rec.patient
		if search != "" &&
			!strings.Contains(strings.ToLower(p.FullName), search) &&
			string(p.CPF) != digits && string(p.CNS) != digits {
			continue
		}
		matched = append(matched, copyPatient(&p))
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].FullName != matched[j].FullName {
			return matched[i].FullName < matched[j].FullName
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	limit, offset := pageOf(filter)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

// ListGuardians returns current and retired guardians, oldest first
func (r *MemoryRepository) ListGuardians(_ context.Context, patientID types.ID) ([]domain.Guardian, error) {
	rec, err := r.record(patientID)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Guardian, len(rec.guardians))
	for i, g := range rec.guardians {
		out[i] = g
		if g.RetiredAt != nil {
			t := *g.RetiredAt
			out[i].RetiredAt = &t
		}
	}
	return out, nil
}

// SaveProfile stores the patient's profile. A second profile is a conflict.
func (r *MemoryRepository) SaveProfile(_ context.Context, p *domain.GinecologicalProfile) error {
	rec, err := r.record(p.PatientID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.profile != nil {
		return errors.Conflict("patient already has a ginecological profile")
	}
	cp := *p
	rec.profile = &cp
	return nil
}

// UpdateProfile replaces the patient's profile
func (r *MemoryRepository) UpdateProfile(_ context.Context, p *domain.GinecologicalProfile) error {
	rec, err := r.record(p.PatientID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.profile == nil {
		return errors.NotFound("profile", p.PatientID.String())
	}
	cp := *p
	rec.profile = &cp
	return nil
}

// FindProfile returns a copy of the patient's profile
func (r *MemoryRepository) FindProfile(_ context.Context, patientID types.ID) (*domain.GinecologicalProfile, error) {
	rec, err := r.record(patientID)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if rec.profile == nil {
		return nil, errors.NotFound("profile", patientID.String())
	}
	cp := *rec.profile
	return &cp, nil
}

// ListConsultations returns copies of the patient's consultations
func (r *MemoryRepository) ListConsultations(_ context.Context, patientID types.ID) ([]domain.Consultation, error) {
	rec, err := r.record(patientID)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.history(), nil
}

// history returns a sorted copy. Callers hold rec.mu.
func (rec *patientRecord) history() []domain.Consultation {
	out := make([]domain.Consultation, len(rec.consultations))
	for i := range rec.consultations {
		out[i] = copyConsultation(&rec.consultations[i])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Date.Compare(out[j].Date); c != 0 {
			return c < 0
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out
}

// AppendConsultation runs build and stores its result under the patient's lock
func (r *MemoryRepository) AppendConsultation(_ context.Context, patientID types.ID, build domain.AppendFunc) (*domain.Consultation, error) {
	rec, err := r.record(patientID)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	c, err := build(rec.history())
	if err != nil {
		return nil, err
	}
	for i := range rec.consultations {
		if rec.consultations[i].Sequence == c.Sequence {
			return nil, errors.Conflict("consultation sequence already taken; retry")
		}
	}
	rec.consultations = append(rec.consultations, copyConsultation(c))
	return c, nil
}

// VoidConsultation runs build and attaches its result under the patient's lock
func (r *MemoryRepository) VoidConsultation(_ context.Context, patientID, consultationID types.ID, build domain.VoidFunc) (*domain.ConsultationVoid, error) {
	rec, err := r.record(patientID)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	history := rec.history()
	target := findConsultation(history, consultationID)
	if target == nil {
		return nil, errors.NotFound("consultation", consultationID.String())
	}

	v, err := build(target, history)
	if err != nil {
		return nil, err
	}

	for i := range rec.consultations {
		if rec.consultations[i].ID == consultationID {
			if rec.consultations[i].Void != nil {
				return nil, errors.Conflict("consultation is already voided")
			}
			cp := *v
			rec.consultations[i].Void = &cp
		}
	}
	return v, nil
}

func copyPatient(p *domain.Patient) domain.Patient {
	cp := *p
	if p.Guardian != nil {
		g := *p.Guardian
		cp.Guardian = &g
	}
	return cp
}

func copyConsultation(c *domain.Consultation) domain.Consultation {
	cp := *c
	if c.Void != nil {
		v := *c.Void
		cp.Void = &v
	}
	return cp
}
