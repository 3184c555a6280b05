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
)

// SchoolStore keeps school reference data.
type SchoolStore struct {
	rows *xsync.Map[string, models.School]
}

// NewSchoolStore constructs an empty store.
func NewSchoolStore() *SchoolStore {
	return &SchoolStore{rows: xsync.NewMap[string, models.School]()}
}

// List returns schools whose name or city contains search.
func (s *SchoolStore) List(ctx context.Context, search string) ([]models.School, error) {
	needle := strings.ToLower(strings.TrimSpace(search))
	var out []models.School
	s.rows.Range(func(_ string, school models.School) bool {
		if needle == "" || containsFold(school.Name, needle) || containsFold(school.City, needle) {
			out = append(out, school)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// FindByID returns a copy of the school or sql.ErrNoRows.
func (s *SchoolStore) FindByID(ctx context.Context, id string) (*models.School, error) {
	school, ok := s.rows.Load(id)
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &school, nil
}

// FindByName matches the school name case-insensitively.
func (s *SchoolStore) FindByName(ctx context.Context, name string) (*models.School, error) {
	var found *models.School
	s.rows.Range(func(_ string, school models.School) bool {
		if strings.EqualFold(school.Name, strings.TrimSpace(name)) {
			found = &school
			return false
		}
		return true
	})
	if found == nil {
		return nil, sql.ErrNoRows
	}
	return found, nil
}

// Create stores a new school.
func (s *SchoolStore) Create(ctx context.Context, school *models.School) error {
	if school.ID == "" {
		school.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	school.CreatedAt = now
	school.UpdatedAt = now
	if _, loaded := s.rows.LoadOrStore(school.ID, *school); loaded {
		return ErrDuplicateKey
	}
	return nil
}

// Update replaces an existing school, keeping CreatedAt.
func (s *SchoolStore) Update(ctx context.Context, school *models.School) error {
	school.UpdatedAt = time.Now().UTC()
	applied := false
	s.rows.Compute(school.ID, func(old models.School, loaded bool) (models.School, xsync.ComputeOp) {
		if !loaded {
			return old, xsync.CancelOp
		}
		next := *school
		next.CreatedAt = old.CreatedAt
		applied = true
		return next, xsync.UpdateOp
	})
	if !applied {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes the school.
func (s *SchoolStore) Delete(ctx context.Context, id string) error {
	if _, ok := s.rows.LoadAndDelete(id); !ok {
		return sql.ErrNoRows
	}
	return nil
}
