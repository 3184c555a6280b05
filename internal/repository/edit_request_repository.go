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

const editRequestColumns = `id, teacher_id, name, email, requested_changes, reason, status, reviewed_by,
       requested_at, reviewed_at, note`

// EditRequestRepository persists profile edit requests.
type EditRequestRepository struct {
	db *sqlx.DB
}

// NewEditRequestRepository constructs the repository.
func NewEditRequestRepository(db *sqlx.DB) *EditRequestRepository {
	return &EditRequestRepository{db: db}
}

// Create inserts a new edit request.
func (r *EditRequestRepository) Create(ctx context.Context, req *models.EditRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = models.EditRequestPending
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}
	const query = `INSERT INTO edit_requests
	(id, teacher_id, name, email, requested_changes, reason, status, reviewed_by, requested_at, reviewed_at, note)
	VALUES (:id, :teacher_id, :name, :email, :requested_changes, :reason, :status, :reviewed_by, :requested_at, :reviewed_at, :note)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create edit request: %w", err)
	}
	return nil
}

// GetByID fetches an edit request by identifier.
func (r *EditRequestRepository) GetByID(ctx context.Context, id string) (*models.EditRequest, error) {
	var req models.EditRequest
	if err := r.db.GetContext(ctx, &req, "SELECT "+editRequestColumns+" FROM edit_requests WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &req, nil
}

// List returns edit requests matching the filter (latest first).
func (r *EditRequestRepository) List(ctx context.Context, filter models.EditRequestFilter) ([]models.EditRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString("SELECT " + editRequestColumns + " FROM edit_requests")

	conditions := make([]string, 0, 3)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.TeacherID != "" {
		args = append(args, filter.TeacherID)
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)))
	}
	if filter.Email != "" {
		args = append(args, filter.Email)
		conditions = append(conditions, fmt.Sprintf("LOWER(email) = LOWER($%d)", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY requested_at DESC, id DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var reqs []models.EditRequest
	if err := r.db.SelectContext(ctx, &reqs, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list edit requests: %w", err)
	}
	return reqs, nil
}

// ReviewEditRequestParams groups columns written by a review. From defaults to PENDING.
type ReviewEditRequestParams struct {
	ID         string
	From       models.EditRequestStatus
	Status     models.EditRequestStatus
	ReviewedBy string
	ReviewedAt time.Time
	Note       *string
}

// ReviewColumns returns the reviewer columns to persist; a request moved back to PENDING has none.
func (p ReviewEditRequestParams) ReviewColumns() (*string, *time.Time, *string) {
	if p.Status == models.EditRequestPending {
		return nil, nil, nil
	}
	reviewer := p.ReviewedBy
	at := p.ReviewedAt
	return &reviewer, &at, p.Note
}

// ExpectedStatus is the status the row must hold for the update to apply.
func (p ReviewEditRequestParams) ExpectedStatus() models.EditRequestStatus {
	if p.From == "" {
		return models.EditRequestPending
	}
	return p.From
}

// UpdateStatus moves a request from params.From to params.Status. It returns sql.ErrNoRows when the
// row is missing or no longer in the expected status.
func (r *EditRequestRepository) UpdateStatus(ctx context.Context, params ReviewEditRequestParams) error {
	const query = `UPDATE edit_requests SET status = :status, reviewed_by = :reviewed_by,
		reviewed_at = :reviewed_at, note = :note WHERE id = :id AND status = :expected`
	reviewer, at, note := params.ReviewColumns()
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":          params.ID,
		"expected":    params.ExpectedStatus(),
		"status":      params.Status,
		"reviewed_by": reviewer,
		"reviewed_at": at,
		"note":        note,
	})
	if err != nil {
		return fmt.Errorf("update edit request status: %w", err)
	}
	return requireAffected(result, "update edit request status")
}
