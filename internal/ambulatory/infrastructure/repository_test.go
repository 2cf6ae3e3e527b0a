package infrastructure

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saude-al/ambulatorio/internal/ambulatory/domain"
	"github.com/saude-al/ambulatorio/internal/shared/database"
	apperrors "github.com/saude-al/ambulatorio/internal/shared/errors"
	"github.com/saude-al/ambulatorio/internal/shared/types"
)

var (
	today = types.Date{Year: 2026, Month: time.October, Day: 19}
	now   = time.Date(2026, 10, 19, 14, 30, 0, 0, time.UTC)
)

// repositories returns the implementations under test. PostgreSQL is
// included when TEST_DATABASE_URL points at a scratch database.
func repositories(t *testing.T) map[string]func(t *testing.T) domain.Repository {
	repos := map[string]func(t *testing.T) domain.Repository{
		"memory": func(t *testing.T) domain.Repository { return NewMemoryRepository() },
	}

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		return repos
	}
	repos["postgres"] = func(t *testing.T) domain.Repository {
		ctx := context.Background()
		pool, err := pgxpool.New(ctx, dsn)
		require.NoError(t, err)
		t.Cleanup(pool.Close)
		require.NoError(t, database.Migrate(ctx, pool))
		_, err = pool.Exec(ctx, `TRUNCATE consultation_voids, consultations, ginecological_profiles, guardians, patients CASCADE`)
		require.NoError(t, err)
		return NewPostgresRepository(pool)
	}
	return repos
}

var identities = [][2]string{
	{"52998224725", "700000000000005"},
	{"11144477735", "123456789010019"},
}

func newPatient(t *testing.T, cpf, cns, birth string, guardian *domain.GuardianDraft) *domain.Patient {
	t.Helper()
	p, err := domain.NewPatient(domain.PatientDraft{
		FullName:  "Maria das Dores",
		CPF:       cpf,
		CNS:       cns,
		BirthDate: birth,
		Guardian:  guardian,
	}, today, "nurse-1", now)
	require.NoError(t, err)
	return p
}

func guardianDraft(name string) *domain.GuardianDraft {
	return &domain.GuardianDraft{
		Relationship: "mãe",
		CPF:          "111.444.777-35",
		FullName:     name,
		BirthDate:    "1980-02-10",
	}
}

func appendDraft(t *testing.T, repo domain.Repository, patientID types.ID, d domain.ConsultationDraft) (*domain.Consultation, error) {
	t.Helper()
	return repo.AppendConsultation(context.Background(), patientID, func(history []domain.Consultation) (*domain.Consultation, error) {
		if err := domain.ValidateConsultation(d, domain.EventsFromConsultations(history), today); err != nil {
			return nil, err
		}
		return domain.NewConsultation(patientID, d, len(history)+1, "nurse-1", now), nil
	})
}

func insertion(date string, device domain.DeviceType) domain.ConsultationDraft {
	return domain.ConsultationDraft{
		Date:                  date,
		InsertionOccurred:     domain.AnswerYes,
		InsertedDeviceType:    device,
		IntercurrenceOccurred: domain.AnswerNo,
		RemovalOccurred:       domain.AnswerNo,
	}
}

func TestRepositoryPatients(t *testing.T) {
	for name, open := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			ctx := context.Background()

			minor := newPatient(t, "52998224725", "700000000000005", "2010-01-20", guardianDraft("Ana das Dores"))
			require.NoError(t, repo.SavePatient(ctx, minor))

			found, err := repo.FindPatient(ctx, minor.ID)
			require.NoError(t, err)
			assert.Equal(t, minor.FullName, found.FullName)
			assert.Equal(t, minor.BirthDate, found.BirthDate)
			require.NotNil(t, found.Guardian)
			assert.Equal(t, minor.Guardian.ID, found.Guardian.ID)

			dup := newPatient(t, "52998224725", "123456789010019", "1990-01-01", nil)
			err = repo.SavePatient(ctx, dup)
			assert.ErrorIs(t, err, apperrors.ErrConflict)

			// replace the guardian, then turn the patient into an adult
			require.NoError(t, found.Amend(domain.PatientDraft{
				FullName: found.FullName, CPF: string(found.CPF), CNS: string(found.CNS),
				BirthDate: "2010-01-20", Guardian: guardianDraft("Rita das Dores"),
			}, today, now.Add(time.Hour)))
			require.NoError(t, repo.UpdatePatient(ctx, found))

			require.NoError(t, found.Amend(domain.PatientDraft{
				FullName: found.FullName, CPF: string(found.CPF), CNS: string(found.CNS),
				BirthDate: "2000-01-20",
			}, today, now.Add(2*time.Hour)))
			require.NoError(t, repo.UpdatePatient(ctx, found))

			adult, err := repo.FindPatient(ctx, minor.ID)
			require.NoError(t, err)
			assert.Nil(t, adult.Guardian)

			guardians, err := repo.ListGuardians(ctx, minor.ID)
			require.NoError(t, err)
			require.Len(t, guardians, 2)
			assert.Equal(t, "Ana das Dores", guardians[0].FullName)
			assert.NotNil(t, guardians[0].RetiredAt)
			assert.Equal(t, "Rita das Dores", guardians[1].FullName)
			assert.NotNil(t, guardians[1].RetiredAt)

			list, total, err := repo.ListPatients(ctx, domain.PatientFilter{Search: "das dores"})
			require.NoError(t, err)
			assert.Equal(t, 1, total)
			require.Len(t, list, 1)

			_, total, err = repo.ListPatients(ctx, domain.PatientFilter{Search: "529.982.247-25"})
			require.NoError(t, err)
			assert.Equal(t, 1, total)

			_, err = repo.FindPatient(ctx, types.NewID())
			assert.ErrorIs(t, err, apperrors.ErrNotFound)
		})
	}
}

func TestRepositoryProfile(t *testing.T) {
	for name, open := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			ctx := context.Background()

			p := newPatient(t, "11144477735", "123456789010019", "1995-03-12", nil)
			require.NoError(t, repo.SavePatient(ctx, p))

			_, err := repo.FindProfile(ctx, p.ID)
			assert.ErrorIs(t, err, apperrors.ErrNotFound)

			profile, err := domain.NewProfile(p.ID, domain.ProfileDraft{
				NurseID:             "COREN-AL 1",
				BetaHCG:             domain.BetaHCGNegative,
				UltrasoundPerformed: domain.AnswerYes,
				CytologyPerformed:   domain.AnswerYes,
				IntakeDate:          "2026-10-01",
				Eligibility: domain.EligibilityAnswers{
					UsesContraceptiveMethod: domain.AnswerYes,
					CurrentMethod:           "preservativo",
					MethodChosen:            domain.DeviceIUD,
					EligibleForChosenMethod: domain.AnswerYes,
				},
			}, today, "nurse-1", now)
			require.NoError(t, err)
			require.NoError(t, repo.SaveProfile(ctx, profile))
			assert.ErrorIs(t, repo.SaveProfile(ctx, profile), apperrors.ErrConflict)

			stored, err := repo.FindProfile(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, profile.Eligibility, stored.Eligibility)
			assert.Equal(t, profile.IntakeDate, stored.IntakeDate)

			stored.NurseID = "COREN-AL 2"
			require.NoError(t, repo.UpdateProfile(ctx, stored))
			again, err := repo.FindProfile(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, "COREN-AL 2", again.NurseID)
		})
	}
}

func TestRepositoryConsultations(t *testing.T) {
	for name, open := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			ctx := context.Background()

			p := newPatient(t, "52998224725", "700000000000005", "1995-03-12", nil)
			require.NoError(t, repo.SavePatient(ctx, p))

			first, err := appendDraft(t, repo, p.ID, insertion("2026-03-01", domain.DeviceIUD))
			require.NoError(t, err)
			assert.Equal(t, 1, first.Sequence)

			_, err = appendDraft(t, repo, p.ID, insertion("2026-04-01", domain.DeviceImplant))
			active, ok := domain.ConflictingActiveDevice(err)
			require.True(t, ok, "expected device conflict, got %v", err)
			assert.Equal(t, domain.DeviceIUD, active)

			history, err := repo.ListConsultations(ctx, p.ID)
			require.NoError(t, err)
			require.Len(t, history, 1, "rejected consultation must not be stored")

			// void the IUD insertion, after which the implant is accepted
			v, err := repo.VoidConsultation(ctx, p.ID, first.ID, func(target *domain.Consultation, history []domain.Consultation) (*domain.ConsultationVoid, error) {
				d := domain.VoidDraft{Reason: domain.VoidReasonWrongPatient, Justification: "outra paciente"}
				if err := domain.ValidateVoid(target, history, d); err != nil {
					return nil, err
				}
				return domain.NewConsultationVoid(target, d, "coordinator-1", now), nil
			})
			require.NoError(t, err)
			assert.Equal(t, first.ID, v.ConsultationID)

			second, err := appendDraft(t, repo, p.ID, insertion("2026-04-01", domain.DeviceImplant))
			require.NoError(t, err)
			assert.Equal(t, 2, second.Sequence)

			history, err = repo.ListConsultations(ctx, p.ID)
			require.NoError(t, err)
			require.Len(t, history, 2)
			assert.True(t, history[0].IsVoided())
			assert.Equal(t, domain.VoidReasonWrongPatient, history[0].Void.Reason)
			assert.Equal(t, domain.DeviceActive(domain.DeviceImplant), domain.CurrentState(domain.EventsFromConsultations(history)))

			_, err = repo.VoidConsultation(ctx, p.ID, types.NewID(), nil)
			assert.ErrorIs(t, err, apperrors.ErrNotFound)

			_, err = appendDraft(t, repo, types.NewID(), insertion("2026-04-01", domain.DeviceIUD))
			assert.ErrorIs(t, err, apperrors.ErrNotFound)
		})
	}
}

func TestRepositoryConcurrentInsertions(t *testing.T) {
	for name, open := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			ctx := context.Background()

			p := newPatient(t, "11144477735", "123456789010019", "1995-03-12", nil)
			require.NoError(t, repo.SavePatient(ctx, p))

			const writers = 16
			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				accepted int
			)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					device := domain.DeviceIUD
					if i%2 == 1 {
						device = domain.DeviceImplant
					}
					if _, err := appendDraft(t, repo, p.ID, insertion("2026-05-10", device)); err == nil {
						mu.Lock()
						accepted++
						mu.Unlock()
					}
				}(i)
			}
			wg.Wait()

			assert.Equal(t, 1, accepted)
			history, err := repo.ListConsultations(ctx, p.ID)
			require.NoError(t, err)
			assert.Len(t, history, 1)
		})
	}
}

func TestMemoryRepositoryReturnsCopies(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	p := newPatient(t, "52998224725", "700000000000005", "2010-01-20", guardianDraft("Ana das Dores"))
	require.NoError(t, repo.SavePatient(ctx, p))

	found, err := repo.FindPatient(ctx, p.ID)
	require.NoError(t, err)
	found.FullName = "changed"
	found.Guardian.FullName = "changed"

	again, err := repo.FindPatient(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Maria das Dores", again.FullName)
	assert.Equal(t, "Ana das Dores", again.Guardian.FullName)
}

func TestListPatientsPaging(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	for _, pair := range identities {
		require.NoError(t, repo.SavePatient(ctx, newPatient(t, pair[0], pair[1], "1990-06-01", nil)))
	}

	page, total, err := repo.ListPatients(ctx, domain.PatientFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, page, 1)

	page, _, err = repo.ListPatients(ctx, domain.PatientFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, page)
}
