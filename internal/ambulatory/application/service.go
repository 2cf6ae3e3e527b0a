package application

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/saude-al/ambulatorio/internal/ambulatory/domain"
	"github.com/saude-al/ambulatorio/internal/shared/errors"
	"github.com/saude-al/ambulatorio/internal/shared/events"
	"github.com/saude-al/ambulatorio/internal/shared/locker"
	"github.com/saude-al/ambulatorio/internal/shared/logging"
	"github.com/saude-al/ambulatorio/internal/shared/metrics"
	"github.com/saude-al/ambulatorio/internal/shared/types"
)

const eventSource = "ambulatory"

// Actor is the authenticated user behind a write
type Actor struct {
	ID            string
	Role          string
	CorrelationID string
}

// Service orchestrates the ambulatory use cases
type Service struct {
	repo     domain.Repository
	bus      events.EventBus
	locker   locker.Locker
	lockTTL  time.Duration
	lockWait time.Duration
	now      func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithLocker serializes consultation writes per patient through l, in
// addition to the repository's own transaction
func WithLocker(l locker.Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithLockTimeout sets the lock lifetime and how long to wait for it
func WithLockTimeout(ttl, wait time.Duration) Option {
	return func(s *Service) {
		s.lockTTL = ttl
		s.lockWait = wait
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the service. bus may be nil.
func NewService(repo domain.Repository, bus events.EventBus, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		bus:      bus,
		lockTTL:  10 * time.Second,
		lockWait: 3 * time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the current time in UTC
func (s *Service) Now() time.Time {
	return s.now().UTC()
}

// Today is the reference date for ages and date checks
func (s *Service) Today() types.Date {
	return types.DateOf(s.now())
}

// --- Patients ---

// RegisterPatient validates and stores a new patient
func (s *Service) RegisterPatient(ctx context.Context, actor Actor, d domain.PatientDraft) (*domain.Patient, error) {
	p, err := domain.NewPatient(d, s.Today(), actor.ID, s.Now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.SavePatient(ctx, p); err != nil {
		return nil, err
	}

	minor := p.IsMinor(s.Today())
	metrics.RecordPatientRegistered(minor)
	s.publish(ctx, actor, domain.EventPatientRegistered, p.ID, domain.PatientRegistered{
		PatientID:  p.ID,
		Minor:      minor,
		GuardianID: guardianID(p),
	})

	logging.FromContext(ctx).Info().
		Str("patient_id", p.ID.String()).
		Bool("minor", minor).
		Msg("patient registered")
	return p, nil
}

// UpdatePatient amends a patient's data. The guardian requirement is
// recomputed from the new birth date.
func (s *Service) UpdatePatient(ctx context.Context, actor Actor, id types.ID, d domain.PatientDraft) (*domain.Patient, error) {
	p, err := s.repo.FindPatient(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := guardianID(p)
	if err := p.Amend(d, s.Today(), s.Now()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdatePatient(ctx, p); err != nil {
		return nil, err
	}

	s.publish(ctx, actor, domain.EventPatientUpdated, p.ID, domain.PatientUpdated{
		PatientID:       p.ID,
		Minor:           p.IsMinor(s.Today()),
		GuardianID:      guardianID(p),
		GuardianChanged: previous != guardianID(p),
	})
	return p, nil
}

// GetPatient returns a patient with the current guardian
func (s *Service) GetPatient(ctx context.Context, id types.ID) (*domain.Patient, error) {
	return s.repo.FindPatient(ctx, id)
}

// ListPatients lists patients
func (s *Service) ListPatients(ctx context.Context, filter domain.PatientFilter) ([]domain.Patient, int, error) {
	return s.repo.ListPatients(ctx, filter)
}

// ListGuardians returns the patient's guardian history
func (s *Service) ListGuardians(ctx context.Context, patientID types.ID) ([]domain.Guardian, error) {
	if _, err := s.repo.FindPatient(ctx, patientID); err != nil {
		return nil, err
	}
	return s.repo.ListGuardians(ctx, patientID)
}

func guardianID(p *domain.Patient) types.ID {
	if p.Guardian == nil {
		return ""
	}
	return p.Guardian.ID
}

// --- Ginecological profile ---

// RecordProfile stores the patient's intake profile
func (s *Service) RecordProfile(ctx context.Context, actor Actor, patientID types.ID, d domain.ProfileDraft) (*domain.GinecologicalProfile, error) {
	if _, err := s.repo.FindPatient(ctx, patientID); err != nil {
		return nil, err
	}

	p, err := domain.NewProfile(patientID, d, s.Today(), actor.ID, s.Now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.SaveProfile(ctx, p); err != nil {
		return nil, err
	}

	s.publish(ctx, actor, domain.EventProfileRecorded, patientID, profileChanged(p))
	return p, nil
}

// AmendProfile replaces the patient's intake profile
func (s *Service) AmendProfile(ctx context.Context, actor Actor, patientID types.ID, d domain.ProfileDraft) (*domain.GinecologicalProfile, error) {
	p, err := s.repo.FindProfile(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if err := p.Amend(d, s.Today(), actor.ID, s.Now()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateProfile(ctx, p); err != nil {
		return nil, err
	}

	s.publish(ctx, actor, domain.EventProfileAmended, patientID, profileChanged(p))
	return p, nil
}

// GetProfile returns the patient's intake profile
func (s *Service) GetProfile(ctx context.Context, patientID types.ID) (*domain.GinecologicalProfile, error) {
	return s.repo.FindProfile(ctx, patientID)
}

func profileChanged(p *domain.GinecologicalProfile) domain.ProfileChanged {
	return domain.ProfileChanged{
		PatientID:    p.PatientID,
		Branch:       domain.Classify(p.Eligibility),
		DeviceChoice: p.Eligibility.ChosenDevice(),
		UsesMethod:   p.Eligibility.UsesContraceptiveMethod,
	}
}

// --- Consultations ---

// ListConsultations returns the patient's consultations by date, voids attached
func (s *Service) ListConsultations(ctx context.Context, patientID types.ID) ([]domain.Consultation, error) {
	if _, err := s.repo.FindPatient(ctx, patientID); err != nil {
		return nil, err
	}
	return s.repo.ListConsultations(ctx, patientID)
}

// ValidateConsultation checks a draft against the stored history without writing
func (s *Service) ValidateConsultation(ctx context.Context, patientID types.ID, d domain.ConsultationDraft) error {
	history, err := s.ListConsultations(ctx, patientID)
	if err != nil {
		return err
	}
	return domain.ValidateConsultation(d, domain.EventsFromConsultations(history), s.Today())
}

// SubmitConsultation validates the draft against the patient's history and
// appends it. The check and the append are atomic per patient.
func (s *Service) SubmitConsultation(ctx context.Context, actor Actor, patientID types.ID, d domain.ConsultationDraft) (*domain.Consultation, error) {
	if _, err := s.repo.FindProfile(ctx, patientID); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			if _, perr := s.repo.FindPatient(ctx, patientID); perr != nil {
				return nil, perr
			}
			return nil, errors.Conflict("patient has no ginecological profile; record it before consultations")
		}
		return nil, err
	}

	unlock, err := s.lock(ctx, patientID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	d.ID = ""
	today := s.Today()
	var after domain.DeviceState
	c, err := s.repo.AppendConsultation(ctx, patientID, func(history []domain.Consultation) (*domain.Consultation, error) {
		deviceEvents := domain.EventsFromConsultations(history)
		if err := domain.ValidateConsultation(d, deviceEvents, today); err != nil {
			return nil, err
		}
		c := domain.NewConsultation(patientID, d, len(history)+1, actor.ID, s.Now())
		after = domain.CurrentState(append(deviceEvents, c.DeviceEvents()...))
		return c, nil
	})
	if err != nil {
		s.rejected(ctx, patientID, err)
		return nil, err
	}

	metrics.RecordConsultationAccepted(c.DeviceAction())
	s.publish(ctx, actor, domain.EventConsultationAccepted, patientID, domain.ConsultationAccepted{
		PatientID:      patientID,
		ConsultationID: c.ID,
		Sequence:       c.Sequence,
		Date:           c.Date,
		DeviceAction:   c.DeviceAction(),
		DeviceState:    after,
	})

	logging.FromContext(ctx).Info().
		Str("patient_id", patientID.String()).
		Str("consultation_id", c.ID.String()).
		Int("sequence", c.Sequence).
		Str("device_action", c.DeviceAction()).
		Msg("consultation accepted")
	return c, nil
}

func (s *Service) rejected(ctx context.Context, patientID types.ID, err error) {
	verrs, ok := domain.AsValidationErrors(err)
	if !ok {
		return
	}
	reason := "validation"
	if active, conflict := verrs.ActiveDevice(); conflict {
		reason = string(domain.CodeConflictingActiveDevice)
		logging.FromContext(ctx).Warn().
			Str("patient_id", patientID.String()).
			Str("active_device", string(active)).
			Msg("consultation refused: device already active")
	}
	metrics.RecordConsultationRejected(reason)
}

// VoidConsultation marks a consultation as entered in error
func (s *Service) VoidConsultation(ctx context.Context, actor Actor, patientID, consultationID types.ID, d domain.VoidDraft) (*domain.ConsultationVoid, error) {
	unlock, err := s.lock(ctx, patientID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var after domain.DeviceState
	v, err := s.repo.VoidConsultation(ctx, patientID, consultationID, func(target *domain.Consultation, history []domain.Consultation) (*domain.ConsultationVoid, error) {
		if err := domain.ValidateVoid(target, history, d); err != nil {
			return nil, err
		}
		v := domain.NewConsultationVoid(target, d, actor.ID, s.Now())

		remaining := make([]domain.Consultation, 0, len(history))
		for _, c := range history {
			if c.ID != target.ID {
				remaining = append(remaining, c)
			}
		}
		after = domain.CurrentState(domain.EventsFromConsultations(remaining))
		return v, nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordConsultationVoided()
	s.publish(ctx, actor, domain.EventConsultationVoided, patientID, domain.ConsultationVoided{
		PatientID:      patientID,
		ConsultationID: consultationID,
		VoidID:         v.ID,
		Reason:         v.Reason,
		DeviceState:    after,
	})

	logging.FromContext(ctx).Info().
		Str("patient_id", patientID.String()).
		Str("consultation_id", consultationID.String()).
		Str("reason", string(v.Reason)).
		Msg("consultation voided")
	return v, nil
}

// DeviceStatus is the folded device history of a patient
type DeviceStatus struct {
	PatientID    types.ID                `json:"patient_id"`
	State        string                  `json:"state"`
	ActiveDevice domain.DeviceType       `json:"active_device,omitempty"`
	Since        *domain.DeviceEvent     `json:"since,omitempty"`
	Events       []domain.DeviceEvent    `json:"events"`
	Conflicts    []domain.DeviceConflict `json:"conflicts"`
}

// DeviceStatus folds the patient's device events
func (s *Service) DeviceStatus(ctx context.Context, patientID types.ID) (*DeviceStatus, error) {
	history, err := s.ListConsultations(ctx, patientID)
	if err != nil {
		return nil, err
	}

	deviceEvents := domain.EventsFromConsultations(history)
	if deviceEvents == nil {
		deviceEvents = []domain.DeviceEvent{}
	}
	tl := domain.FoldDeviceEvents(deviceEvents)
	for _, c := range tl.Conflicts {
		metrics.RecordDeviceHistoryConflict(string(c.Reason))
	}

	return &DeviceStatus{
		PatientID:    patientID,
		State:        tl.State.String(),
		ActiveDevice: tl.State.Active,
		Since:        tl.Since,
		Events:       deviceEvents,
		Conflicts:    tl.Conflicts,
	}, nil
}

// lock takes the per-patient lock when a locker is configured
func (s *Service) lock(ctx context.Context, patientID types.ID) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}

	key := "patient:" + patientID.String()
	token, err := locker.Acquire(ctx, s.locker, key, s.lockTTL, s.lockWait)
	if err != nil {
		if stderrors.Is(err, locker.ErrNotAcquired) {
			metrics.RecordLockContention()
			return nil, errors.Conflict("another write for this patient is in progress; retry")
		}
		return nil, errors.Wrap(err, "failed to acquire patient lock")
	}

	return func() {
		// release even when the request context is already cancelled
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.locker.Unlock(releaseCtx, key, token); err != nil {
			logging.FromContext(ctx).Warn().Err(err).Str("lock", key).Msg("failed to release patient lock")
		}
	}, nil
}

func (s *Service) publish(ctx context.Context, actor Actor, eventType string, aggregate types.ID, data any) {
	if s.bus == nil {
		return
	}

	event := events.NewEvent(eventType, eventSource, data).
		WithAggregate(aggregate).
		WithActor(actor.ID, actor.Role).
		WithCorrelation(actor.CorrelationID)

	if err := s.bus.Publish(ctx, event); err != nil {
		logging.FromContext(ctx).Error().Err(err).Str("event_type", eventType).Msg("failed to publish event")
	}
}
