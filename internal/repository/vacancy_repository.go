package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/teacher-transfer-api/internal/models"
)

const vacancyColumns = "id, school_id, grade, subject, status, created_at, filled_at"

// VacancyRepository persists vacancies. Status only changes through FillIfPending.
type VacancyRepository struct {
	db *sqlx.DB
}

// NewVacancyRepository constructs the repository.
func NewVacancyRepository(db *sqlx.DB) *VacancyRepository {
	return &VacancyRepository{db: db}
}

// Create inserts a pending vacancy.
func (r *VacancyRepository) Create(ctx context.Context, vacancy *models.Vacancy) error {
	if vacancy.ID == "" {
		vacancy.ID = uuid.NewString()
	}
	vacancy.Status = models.VacancyStatusPending
	vacancy.FilledAt = nil
	if vacancy.CreatedAt.IsZero() {
		vacancy.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO vacancies (id, school_id, grade, subject, status, created_at, filled_at)
		VALUES (:id, :school_id, :grade, :subject, :status, :created_at, :filled_at)`
	if _, err := r.db.NamedExecContext(ctx, query, vacancy); err != nil {
		return fmt.Errorf("create vacancy: %w", err)
	}
	return nil
}

// FindByID fetches a vacancy by identifier.
func (r *VacancyRepository) FindByID(ctx context.Context, id string) (*models.Vacancy, error) {
	var vacancy models.Vacancy
	if err := r.db.GetContext(ctx, &vacancy, "SELECT "+vacancyColumns+" FROM vacancies WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &vacancy, nil
}

// ListOpen returns pending vacancies joined with their school, ordered by school then id.
func (r *VacancyRepository) ListOpen(ctx context.Context) ([]models.VacancyListing, error) {
	const query = `SELECT v.id, v.school_id, s.name AS school_name, s.city, v.grade, v.subject, v.status
		FROM vacancies v JOIN schools s ON s.id = v.school_id
		WHERE v.status = 'pending'
		ORDER BY s.name ASC, v.id ASC`
	var listings []models.VacancyListing
	if err := r.db.SelectContext(ctx, &listings, query); err != nil {
		return nil, fmt.Errorf("list open vacancies: %w", err)
	}
	return listings, nil
}

// FillIfPending transitions pending -> filled. Zero matched rows yields sql.ErrNoRows,
// covering both a missing and an already filled vacancy.
func (r *VacancyRepository) FillIfPending(ctx context.Context, id string, filledAt time.Time) error {
	const query = `UPDATE vacancies SET status = 'filled', filled_at = $2 WHERE id = $1 AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, query, id, filledAt.UTC())
	if err != nil {
		return fmt.Errorf("fill vacancy: %w", err)
	}
	return requireAffected(result, "fill vacancy")
}

// Delete removes a vacancy. It returns sql.ErrNoRows when nothing was deleted.
func (r *VacancyRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM vacancies WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete vacancy: %w", err)
	}
	return requireAffected(result, "delete vacancy")
}
