package infrastructure

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saude-al/ambulatorio/internal/ambulatory/domain"
	"github.com/saude-al/ambulatorio/internal/shared/errors"
	"github.com/saude-al/ambulatorio/internal/shared/metrics"
	"github.com/saude-al/ambulatorio/internal/shared/types"
)

// PostgresRepository implements domain.Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

var _ domain.Repository = (*PostgresRepository)(nil)

// querier is satisfied by both the pool and a transaction
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func observe(operation string, start time.Time) {
	metrics.RecordDBQuery(operation, time.Since(start))
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == "23505"
}

// SavePatient inserts a patient and its guardian, if any
func (r *PostgresRepository) SavePatient(ctx context.Context, p *domain.Patient) error {
	defer observe("save_patient", time.Now())

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO patients (
			id, full_name, cpf, cns, birth_date,
			marital_status, phone, municipality,
			registered_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.FullName, p.CPF, p.CNS, p.BirthDate.Time(),
		p.MaritalStatus, p.Phone, p.Municipality,
		p.RegisteredBy, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("a patient with this CPF or CNS is already registered")
		}
		return errors.Wrap(err, "failed to save patient")
	}

	if p.Guardian != nil {
		if err := insertGuardian(ctx, tx, p.Guardian); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// UpdatePatient updates a patient. A guardian that was dropped or replaced
// is retired; a new guardian is inserted.
func (r *PostgresRepository) UpdatePatient(ctx context.Context, p *domain.Patient) error {
	defer observe("update_patient", time.Now())

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		UPDATE patients SET
			full_name = $2, cpf = $3, cns = $4, birth_date = $5,
			marital_status = $6, phone = $7, municipality = $8,
			updated_at = $9
		WHERE id = $1`,
		p.ID, p.FullName, p.CPF, p.CNS, p.BirthDate.Time(),
		p.MaritalStatus, p.Phone, p.Municipality,
		p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("a patient with this CPF or CNS is already registered")
		}
		return errors.Wrap(err, "failed to update patient")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("patient", p.ID.String())
	}

	var current types.ID
	err = tx.QueryRow(ctx, `
		SELECT id FROM guardians
		WHERE patient_id = $1 AND retired_at IS NULL
		FOR UPDATE`, p.ID).Scan(&current)
	if err != nil && err != pgx.ErrNoRows {
		return errors.Wrap(err, "failed to load current guardian")
	}

	keep := p.Guardian != nil && p.Guardian.ID == current
	if !current.IsZero() && !keep {
		if _, err := tx.Exec(ctx, `UPDATE guardians SET retired_at = $2 WHERE id = $1`, current, p.UpdatedAt); err != nil {
			return errors.Wrap(err, "failed to retire guardian")
		}
	}
	if p.Guardian != nil && !keep {
		if err := insertGuardian(ctx, tx, p.Guardian); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

func insertGuardian(ctx context.Context, q querier, g *domain.Guardian) error {
	_, err := q.Exec(ctx, `
		INSERT INTO guardians (
			id, patient_id, relationship, cpf, full_name, birth_date, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		g.ID, g.PatientID, g.Relationship, g.CPF, g.FullName, g.BirthDate.Time(), g.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save guardian")
	}
	return nil
}

const patientColumns = `
	p.id, p.full_name, p.cpf, p.cns, p.birth_date,
	p.marital_status, p.phone, p.municipality,
	p.registered_by, p.created_at, p.updated_at,
	g.id, g.relationship, g.cpf, g.full_name, g.birth_date, g.created_at`

const patientFrom = `
	FROM patients p
	LEFT JOIN guardians g ON g.patient_id = p.id AND g.retired_at IS NULL`

func scanPatient(row pgx.Row) (*domain.Patient, error) {
	var (
		p     domain.Patient
		birth time.Time

		gID           *types.ID
		gRelationship *string
		gCPF          *string
		gName         *string
		gBirth        *time.Time
		gCreated      *time.Time
	)
	err := row.Scan(
		&p.ID, &p.FullName, &p.CPF, &p.CNS, &birth,
		&p.MaritalStatus, &p.Phone, &p.Municipality,
		&p.RegisteredBy, &p.CreatedAt, &p.UpdatedAt,
		&gID, &gRelationship, &gCPF, &gName, &gBirth, &gCreated,
	)
	if err != nil {
		return nil, err
	}
	p.BirthDate = types.DateOf(birth)

	if gID != nil {
		p.Guardian = &domain.Guardian{
			ID:           *gID,
			PatientID:    p.ID,
			Relationship: *gRelationship,
			CPF:          types.CPF(*gCPF),
			FullName:     *gName,
			BirthDate:    types.DateOf(*gBirth),
			CreatedAt:    *gCreated,
		}
	}
	return &p, nil
}

// FindPatient finds a patient with its current guardian
func (r *PostgresRepository) FindPatient(ctx context.Context, id types.ID) (*domain.Patient, error) {
	defer observe("find_patient", time.Now())

	p, err := scanPatient(r.pool.QueryRow(ctx, `SELECT `+patientColumns+patientFrom+` WHERE p.id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("patient", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find patient")
	}
	return p, nil
}

// ListPatients lists patients by name
func (r *PostgresRepository) ListPatients(ctx context.Context, filter domain.PatientFilter) ([]domain.Patient, int, error) {
	defer observe("list_patients", time.Now())

	where := ""
	var args []any
	if search := strings.TrimSpace(filter.Search); search != "" {
		where = ` WHERE lower(p.full_name) LIKE '%' || lower($1) || '%' OR p.cpf = $2 OR p.cns = $2`
		args = append(args, search, digitsOf(search))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+patientFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count patients")
	}

	limit, offset := pageOf(filter)
	query := `SELECT ` + patientColumns + patientFrom + where +
		` ORDER BY p.full_name, p.id LIMIT $` + itoa(len(args)+1) + ` OFFSET $` + itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list patients")
	}
	defer rows.Close()

	patients := make([]domain.Patient, 0)
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan patient")
		}
		patients = append(patients, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "failed to list patients")
	}

	return patients, total, nil
}

// ListGuardians returns current and retired guardians, oldest first
func (r *PostgresRepository) ListGuardians(ctx context.Context, patientID types.ID) ([]domain.Guardian, error) {
	defer observe("list_guardians", time.Now())

	rows, err := r.pool.Query(ctx, `
		SELECT id, patient_id, relationship, cpf, full_name, birth_date, created_at, retired_at
		FROM guardians
		WHERE patient_id = $1
		ORDER BY created_at, id`, patientID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list guardians")
	}
	defer rows.Close()

	guardians := make([]domain.Guardian, 0)
	for rows.Next() {
		var g domain.Guardian
		var birth time.Time
		if err := rows.Scan(&g.ID, &g.PatientID, &g.Relationship, &g.CPF, &g.FullName, &birth, &g.CreatedAt, &g.RetiredAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan guardian")
		}
		g.BirthDate = types.DateOf(birth)
		guardians = append(guardians, g)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list guardians")
	}
	return guardians, nil
}

// SaveProfile inserts the patient's profile. A second profile is a conflict.
func (r *PostgresRepository) SaveProfile(ctx context.Context, p *domain.GinecologicalProfile) error {
	defer observe("save_profile", time.Now())

	eligibility, err := json.Marshal(p.Eligibility)
	if err != nil {
		return errors.Wrap(err, "failed to marshal eligibility")
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO ginecological_profiles (
			patient_id, parity, nurse_id, beta_hcg,
			ultrasound_performed, cytology_performed, intake_date,
			eligibility, recorded_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.PatientID, p.Parity, p.NurseID, p.BetaHCG,
		p.UltrasoundPerformed, p.CytologyPerformed, p.IntakeDate.Time(),
		eligibility, p.RecordedBy, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("patient already has a ginecological profile")
		}
		return errors.Wrap(err, "failed to save profile")
	}
	return nil
}

// UpdateProfile replaces the patient's profile
func (r *PostgresRepository) UpdateProfile(ctx context.Context, p *domain.GinecologicalProfile) error {
	defer observe("update_profile", time.Now())

	eligibility, err := json.Marshal(p.Eligibility)
	if err != nil {
		return errors.Wrap(err, "failed to marshal eligibility")
	}

	result, err := r.pool.Exec(ctx, `
		UPDATE ginecological_profiles SET
			parity = $2, nurse_id = $3, beta_hcg = $4,
			ultrasound_performed = $5, cytology_performed = $6, intake_date = $7,
			eligibility = $8, recorded_by = $9, updated_at = $10
		WHERE patient_id = $1`,
		p.PatientID, p.Parity, p.NurseID, p.BetaHCG,
		p.UltrasoundPerformed, p.CytologyPerformed, p.IntakeDate.Time(),
		eligibility, p.RecordedBy, p.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update profile")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("profile", p.PatientID.String())
	}
	return nil
}

// FindProfile finds the patient's profile
func (r *PostgresRepository) FindProfile(ctx context.Context, patientID types.ID) (*domain.GinecologicalProfile, error) {
	defer observe("find_profile", time.Now())

	var (
		p           domain.GinecologicalProfile
		intake      time.Time
		eligibility []byte
	)
	err := r.pool.QueryRow(ctx, `
		SELECT patient_id, parity, nurse_id, beta_hcg,
			ultrasound_performed, cytology_performed, intake_date,
			eligibility, recorded_by, created_at, updated_at
		FROM ginecological_profiles
		WHERE patient_id = $1`, patientID).Scan(
		&p.PatientID, &p.Parity, &p.NurseID, &p.BetaHCG,
		&p.UltrasoundPerformed, &p.CytologyPerformed, &intake,
		&eligibility, &p.RecordedBy, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("profile", patientID.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find profile")
	}

	p.IntakeDate = types.DateOf(intake)
	if err := json.Unmarshal(eligibility, &p.Eligibility); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal eligibility")
	}
	return &p, nil
}

// ListConsultations returns the patient's consultations, voids attached
func (r *PostgresRepository) ListConsultations(ctx context.Context, patientID types.ID) ([]domain.Consultation, error) {
	defer observe("list_consultations", time.Now())
	return listConsultations(ctx, r.pool, patientID)
}

func listConsultations(ctx context.Context, q querier, patientID types.ID) ([]domain.Consultation, error) {
	rows, err := q.Query(ctx, `
		SELECT c.id, c.patient_id, c.sequence, c.date,
			c.insertion_occurred, c.inserted_device_type,
			c.intercurrence_occurred, c.intercurrence_description,
			c.removal_occurred, c.removed_method, c.removal_reason,
			c.notes, c.recorded_by, c.created_at,
			v.id, v.reason, v.justification, v.voided_by, v.voided_at
		FROM consultations c
		LEFT JOIN consultation_voids v ON v.consultation_id = c.id
		WHERE c.patient_id = $1
		ORDER BY c.date, c.sequence`, patientID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list consultations")
	}
	defer rows.Close()

	consultations := make([]domain.Consultation, 0)
	for rows.Next() {
		var (
			c    domain.Consultation
			date time.Time

			vID            *types.ID
			vReason        *string
			vJustification *string
			vBy            *string
			vAt            *time.Time
		)
		err := rows.Scan(
			&c.ID, &c.PatientID, &c.Sequence, &date,
			&c.InsertionOccurred, &c.InsertedDeviceType,
			&c.IntercurrenceOccurred, &c.IntercurrenceDescription,
			&c.RemovalOccurred, &c.RemovedMethod, &c.RemovalReason,
			&c.Notes, &c.RecordedBy, &c.CreatedAt,
			&vID, &vReason, &vJustification, &vBy, &vAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan consultation")
		}
		c.Date = types.DateOf(date)

		if vID != nil {
			c.Void = &domain.ConsultationVoid{
				ID:             *vID,
				ConsultationID: c.ID,
				PatientID:      c.PatientID,
				Reason:         domain.VoidReason(*vReason),
				Justification:  *vJustification,
				VoidedBy:       *vBy,
				VoidedAt:       *vAt,
			}
		}
		consultations = append(consultations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list consultations")
	}
	return consultations, nil
}

// lockPatient takes the patient row lock for the rest of tx
func lockPatient(ctx context.Context, tx pgx.Tx, patientID types.ID) error {
	var id types.ID
	err := tx.QueryRow(ctx, `SELECT id FROM patients WHERE id = $1 FOR UPDATE`, patientID).Scan(&id)
	if err == pgx.ErrNoRows {
		return errors.NotFound("patient", patientID.String())
	}
	if err != nil {
		return errors.Wrap(err, "failed to lock patient")
	}
	return nil
}

// AppendConsultation locks the patient row, hands the history to build and
// inserts its result in the same transaction
func (r *PostgresRepository) AppendConsultation(ctx context.Context, patientID types.ID, build domain.AppendFunc) (*domain.Consultation, error) {
	defer observe("append_consultation", time.Now())

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	if err := lockPatient(ctx, tx, patientID); err != nil {
		return nil, err
	}

	history, err := listConsultations(ctx, tx, patientID)
	if err != nil {
		return nil, err
	}

	c, err := build(history)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO consultations (
			id, patient_id, sequence, date,
			insertion_occurred, inserted_device_type,
			intercurrence_occurred, intercurrence_description,
			removal_occurred, removed_method, removal_reason,
			notes, recorded_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		c.ID, c.PatientID, c.Sequence, c.Date.Time(),
		c.InsertionOccurred, c.InsertedDeviceType,
		c.IntercurrenceOccurred, c.IntercurrenceDescription,
		c.RemovalOccurred, c.RemovedMethod, c.RemovalReason,
		c.Notes, c.RecordedBy, c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errors.Conflict("consultation sequence already taken; retry")
		}
		return nil, errors.Wrap(err, "failed to save consultation")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to commit transaction")
	}
	return c, nil
}

// VoidConsultation locks the patient row, hands the target and history to
// build and inserts the void in the same transaction
func (r *PostgresRepository) VoidConsultation(ctx context.Context, patientID, consultationID types.ID, build domain.VoidFunc) (*domain.ConsultationVoid, error) {
	defer observe("void_consultation", time.Now())

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	if err := lockPatient(ctx, tx, patientID); err != nil {
		return nil, err
	}

	history, err := listConsultations(ctx, tx, patientID)
	if err != nil {
		return nil, err
	}

	target := findConsultation(history, consultationID)
	if target == nil {
		return nil, errors.NotFound("consultation", consultationID.String())
	}

	v, err := build(target, history)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO consultation_voids (
			id, consultation_id, patient_id, reason, justification, voided_by, voided_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		v.ID, v.ConsultationID, v.PatientID, v.Reason, v.Justification, v.VoidedBy, v.VoidedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errors.Conflict("consultation is already voided")
		}
		return nil, errors.Wrap(err, "failed to save consultation void")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to commit transaction")
	}
	return v, nil
}
