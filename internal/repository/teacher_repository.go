package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/teacher-transfer-api/internal/models"
)

const teacherColumns = `id, name, email, national_id, role, service_type, date_of_birth, contact_number,
       initial_appointment, experience, grade, marital_status, home_address, current_school, posted_as,
       date_of_joining, date_of_joining_new_school, is_request_pending, new_school_request,
       pending_vacancy_id, reason, ledger_address, version, created_at, updated_at`

// TeacherRepository manages persistence for teachers.
//
// Workflow columns are only written through the conditional Mark/Complete/Clear methods;
// each returns sql.ErrNoRows when its precondition no longer holds.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs a TeacherRepository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// List returns teachers matching filters along with total count.
func (r *TeacherRepository) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	base := "FROM teachers WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Pending != nil {
		args = append(args, *filter.Pending)
		conditions = append(conditions, fmt.Sprintf("is_request_pending = $%d", len(args)))
	}
	if filter.CurrentSchool != "" {
		args = append(args, filter.CurrentSchool)
		conditions = append(conditions, fmt.Sprintf("LOWER(current_school) = LOWER($%d)", len(args)))
	}
	if filter.Role != "" {
		args = append(args, filter.Role)
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(email) LIKE $%d OR national_id LIKE $%d)", n, n, n))
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"name":           "name",
		"email":          "email",
		"current_school": "current_school",
		"created_at":     "created_at",
		"updated_at":     "updated_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "created_at"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s, id ASC LIMIT %d OFFSET %d", teacherColumns, base, column, order, size, offset)
	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list teachers: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count teachers: %w", err)
	}

	return teachers, total, nil
}

// FindByID fetches a teacher by ID.
func (r *TeacherRepository) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	return r.findOne(ctx, "id = $1", id)
}

// FindByEmail fetches a teacher by email, case-insensitively.
func (r *TeacherRepository) FindByEmail(ctx context.Context, email string) (*models.Teacher, error) {
	return r.findOne(ctx, "LOWER(email) = LOWER($1)", email)
}

// FindByNationalID fetches a teacher by national identity number.
func (r *TeacherRepository) FindByNationalID(ctx context.Context, nationalID string) (*models.Teacher, error) {
	return r.findOne(ctx, "national_id = $1", nationalID)
}

func (r *TeacherRepository) findOne(ctx context.Context, where string, arg interface{}) (*models.Teacher, error) {
	query := fmt.Sprintf("SELECT %s FROM teachers WHERE %s", teacherColumns, where)
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, query, arg); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// ExistsByEmail checks if another teacher uses the same email.
func (r *TeacherRepository) ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error) {
	return r.exists(ctx, "LOWER(email) = LOWER($1)", email, excludeID)
}

// ExistsByNationalID checks if another teacher uses the same national id.
func (r *TeacherRepository) ExistsByNationalID(ctx context.Context, nationalID string, excludeID string) (bool, error) {
	if strings.TrimSpace(nationalID) == "" {
		return false, nil
	}
	return r.exists(ctx, "national_id = $1", nationalID, excludeID)
}

func (r *TeacherRepository) exists(ctx context.Context, where string, value string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM teachers WHERE " + where
	args := []interface{}{value}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check teacher uniqueness: %w", err)
	}
	return true, nil
}

// Create inserts a new teacher record.
func (r *TeacherRepository) Create(ctx context.Context, teacher *models.Teacher) error {
	if teacher.ID == "" {
		teacher.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if teacher.CreatedAt.IsZero() {
		teacher.CreatedAt = now
	}
	teacher.UpdatedAt = now
	if teacher.Version == 0 {
		teacher.Version = 1
	}

	const query = `INSERT INTO teachers (id, name, email, national_id, role, service_type, date_of_birth, contact_number,
		initial_appointment, experience, grade, marital_status, home_address, current_school, posted_as,
		date_of_joining, date_of_joining_new_school, is_request_pending, new_school_request, pending_vacancy_id,
		reason, ledger_address, version, created_at, updated_at)
		VALUES (:id, :name, :email, :national_id, :role, :service_type, :date_of_birth, :contact_number,
		:initial_appointment, :experience, :grade, :marital_status, :home_address, :current_school, :posted_as,
		:date_of_joining, :date_of_joining_new_school, :is_request_pending, :new_school_request, :pending_vacancy_id,
		:reason, :ledger_address, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, teacher); err != nil {
		return fmt.Errorf("create teacher: %w", translateUnique(err))
	}
	return nil
}

// UpdateProfile writes profile columns when the stored version still equals expectedVersion.
func (r *TeacherRepository) UpdateProfile(ctx context.Context, id string, expectedVersion int64, profile models.TeacherProfile) (*models.Teacher, error) {
	query := `UPDATE teachers SET name = $3, service_type = $4, date_of_birth = $5, contact_number = $6,
		initial_appointment = $7, experience = $8, grade = $9, marital_status = $10, home_address = $11,
		posted_as = $12, version = version + 1, updated_at = $13
		WHERE id = $1 AND version = $2 RETURNING ` + teacherColumns
	var teacher models.Teacher
	err := r.db.GetContext(ctx, &teacher, query, id, expectedVersion,
		profile.Name, profile.ServiceType, profile.DateOfBirth, profile.ContactNumber,
		profile.InitialAppointment, profile.Experience, profile.Grade, profile.MaritalStatus,
		profile.HomeAddress, profile.PostedAs, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return &teacher, nil
}

// MarkTransferRequested opens a request only if none is pending.
func (r *TeacherRepository) MarkTransferRequested(ctx context.Context, id string, fields models.TransferRequestFields) (*models.Teacher, error) {
	query := `UPDATE teachers SET is_request_pending = TRUE, new_school_request = $2, pending_vacancy_id = $3,
		reason = $4, version = version + 1, updated_at = $5
		WHERE id = $1 AND is_request_pending = FALSE RETURNING ` + teacherColumns
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, query, id, fields.SchoolName, fields.VacancyID, fields.Reason, time.Now().UTC()); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// CompleteTransfer moves the teacher to the requested school and clears the request.
// It only applies while the stored request still targets expected.VacancyID.
func (r *TeacherRepository) CompleteTransfer(ctx context.Context, id string, expected models.SchoolRef, joinedAt time.Time) (*models.Teacher, error) {
	query := `UPDATE teachers SET current_school = new_school_request, date_of_joining_new_school = $3,
		is_request_pending = FALSE, new_school_request = '', pending_vacancy_id = NULL, reason = '',
		version = version + 1, updated_at = $3
		WHERE id = $1 AND is_request_pending = TRUE AND pending_vacancy_id = $2 RETURNING ` + teacherColumns
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, query, id, expected.VacancyID, joinedAt.UTC()); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// ClearTransferRequest drops a pending request targeting expected.VacancyID without moving the teacher.
func (r *TeacherRepository) ClearTransferRequest(ctx context.Context, id string, expected models.SchoolRef) (*models.Teacher, error) {
	query := `UPDATE teachers SET is_request_pending = FALSE, new_school_request = '', pending_vacancy_id = NULL,
		reason = '', version = version + 1, updated_at = $3
		WHERE id = $1 AND is_request_pending = TRUE AND pending_vacancy_id = $2 RETURNING ` + teacherColumns
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, query, id, expected.VacancyID, time.Now().UTC()); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// ListBroadcastRecipients returns every teacher ordered by id.
func (r *TeacherRepository) ListBroadcastRecipients(ctx context.Context) ([]models.Teacher, error) {
	query := fmt.Sprintf("SELECT %s FROM teachers ORDER BY id ASC", teacherColumns)
	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query); err != nil {
		return nil, fmt.Errorf("list broadcast recipients: %w", err)
	}
	return teachers, nil
}

// ListByRole returns teachers holding role ordered by id.
func (r *TeacherRepository) ListByRole(ctx context.Context, role models.UserRole) ([]models.Teacher, error) {
	query := fmt.Sprintf("SELECT %s FROM teachers WHERE role = $1 ORDER BY id ASC", teacherColumns)
	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query, role); err != nil {
		return nil, fmt.Errorf("list teachers by role: %w", err)
	}
	return teachers, nil
}

// ListPendingTransfers returns the reviewer queue, oldest request first.
func (r *TeacherRepository) ListPendingTransfers(ctx context.Context) ([]models.Teacher, error) {
	query := fmt.Sprintf("SELECT %s FROM teachers WHERE is_request_pending = TRUE ORDER BY updated_at ASC, id ASC", teacherColumns)
	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query); err != nil {
		return nil, fmt.Errorf("list pending transfers: %w", err)
	}
	return teachers, nil
}

// CountPendingForVacancy counts teachers whose open request targets vacancyID.
func (r *TeacherRepository) CountPendingForVacancy(ctx context.Context, vacancyID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM teachers WHERE pending_vacancy_id = $1", vacancyID); err != nil {
		return 0, fmt.Errorf("count pending for vacancy: %w", err)
	}
	return count, nil
}

// Delete removes a teacher. It returns sql.ErrNoRows when nothing was deleted.
func (r *TeacherRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM teachers WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete teacher: %w", err)
	}
	return requireAffected(result, "delete teacher")
}

func requireAffected(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
