package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/teacher-transfer-api/internal/models"
)

const schoolColumns = "id, name, city, address, contact_number, created_at, updated_at"

// SchoolRepository persists school reference data.
type SchoolRepository struct {
	db *sqlx.DB
}

// NewSchoolRepository constructs the repository.
func NewSchoolRepository(db *sqlx.DB) *SchoolRepository {
	return &SchoolRepository{db: db}
}

// List returns schools sorted by name, optionally filtered by a case-insensitive search.
func (r *SchoolRepository) List(ctx context.Context, search string) ([]models.School, error) {
	query := "SELECT " + schoolColumns + " FROM schools"
	var args []interface{}
	if s := strings.TrimSpace(search); s != "" {
		query += " WHERE LOWER(name) LIKE $1 OR LOWER(city) LIKE $1"
		args = append(args, "%"+strings.ToLower(s)+"%")
	}
	query += " ORDER BY name ASC"
	var schools []models.School
	if err := r.db.SelectContext(ctx, &schools, query, args...); err != nil {
		return nil, fmt.Errorf("list schools: %w", err)
	}
	return schools, nil
}

// FindByID fetches a school by identifier.
func (r *SchoolRepository) FindByID(ctx context.Context, id string) (*models.School, error) {
	var school models.School
	if err := r.db.GetContext(ctx, &school, "SELECT "+schoolColumns+" FROM schools WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &school, nil
}

// FindByName fetches a school by name, case-insensitively.
func (r *SchoolRepository) FindByName(ctx context.Context, name string) (*models.School, error) {
	var school models.School
	if err := r.db.GetContext(ctx, &school, "SELECT "+schoolColumns+" FROM schools WHERE LOWER(name) = LOWER($1)", name); err != nil {
		return nil, err
	}
	return &school, nil
}

// Create inserts a school.
func (r *SchoolRepository) Create(ctx context.Context, school *models.School) error {
	if school.ID == "" {
		school.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	school.CreatedAt = now
	school.UpdatedAt = now
	const query = `INSERT INTO schools (id, name, city, address, contact_number, created_at, updated_at)
		VALUES (:id, :name, :city, :address, :contact_number, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, school); err != nil {
		return fmt.Errorf("create school: %w", translateUnique(err))
	}
	return nil
}

// Update rewrites a school's attributes. It returns sql.ErrNoRows when the school is missing.
func (r *SchoolRepository) Update(ctx context.Context, school *models.School) error {
	school.UpdatedAt = time.Now().UTC()
	const query = `UPDATE schools SET name = :name, city = :city, address = :address,
		contact_number = :contact_number, updated_at = :updated_at WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, school)
	if err != nil {
		return fmt.Errorf("update school: %w", translateUnique(err))
	}
	return requireAffected(result, "update school")
}

// Delete removes a school. It returns sql.ErrNoRows when nothing was deleted.
func (r *SchoolRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM schools WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete school: %w", translateForeignKey(err))
	}
	return requireAffected(result, "delete school")
}
