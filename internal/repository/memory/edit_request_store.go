package memory

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/noah-isme/teacher-transfer-api/internal/models"
	"github.com/noah-isme/teacher-transfer-api/internal/repository"
)

// EditRequestStore keeps profile edit requests.
type EditRequestStore struct {
	rows *xsync.Map[string, models.EditRequest]
}

// NewEditRequestStore constructs an empty store.
func NewEditRequestStore() *EditRequestStore {
	return &EditRequestStore{rows: xsync.NewMap[string, models.EditRequest]()}
}

// Create stores a pending request.
func (s *EditRequestStore) Create(ctx context.Context, req *models.EditRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = models.EditRequestPending
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}
	if _, loaded := s.rows.LoadOrStore(req.ID, *req); loaded {
		return ErrDuplicateKey
	}
	return nil
}

// GetByID returns a copy of the request or sql.ErrNoRows.
func (s *EditRequestStore) GetByID(ctx context.Context, id string) (*models.EditRequest, error) {
	req, ok := s.rows.Load(id)
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &req, nil
}

// List filters requests and returns them newest first.
func (s *EditRequestStore) List(ctx context.Context, filter models.EditRequestFilter) ([]models.EditRequest, error) {
	statuses := make(map[models.EditRequestStatus]struct{}, len(filter.Status))
	for _, st := range filter.Status {
		statuses[st] = struct{}{}
	}
	var out []models.EditRequest
	s.rows.Range(func(_ string, req models.EditRequest) bool {
		if len(statuses) > 0 {
			if _, ok := statuses[req.Status]; !ok {
				return true
			}
		}
		if filter.TeacherID != "" && req.TeacherID != filter.TeacherID {
			return true
		}
		if filter.Email != "" && !strings.EqualFold(req.Email, filter.Email) {
			return true
		}
		out = append(out, req)
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].RequestedAt.After(out[j].RequestedAt)
	})

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 || offset > len(out) {
		offset = len(out)
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

// UpdateStatus applies params only while the request holds the expected status.
func (s *EditRequestStore) UpdateStatus(ctx context.Context, params repository.ReviewEditRequestParams) error {
	applied := false
	s.rows.Compute(params.ID, func(old models.EditRequest, loaded bool) (models.EditRequest, xsync.ComputeOp) {
		if !loaded || old.Status != params.ExpectedStatus() {
			return old, xsync.CancelOp
		}
		old.Status = params.Status
		old.ReviewedBy, old.ReviewedAt, old.Note = params.ReviewColumns()
		applied = true
		return old, xsync.UpdateOp
	})
	if !applied {
		return sql.ErrNoRows
	}
	return nil
}
