package memory

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/noah-isme/teacher-transfer-api/internal/models"
)

// VacancyStore is an arena of vacancies addressed by id. FillIfPending is a
// compare-and-set on status, so approvals of unrelated vacancies never contend.
type VacancyStore struct {
	rows    *xsync.Map[string, models.Vacancy]
	schools *SchoolStore
}

// NewVacancyStore constructs a store that reads school facts from schools.
func NewVacancyStore(schools *SchoolStore) *VacancyStore {
	return &VacancyStore{rows: xsync.NewMap[string, models.Vacancy](), schools: schools}
}

// Create stores a new vacancy as pending.
func (s *VacancyStore) Create(ctx context.Context, vacancy *models.Vacancy) error {
	if vacancy.ID == "" {
		vacancy.ID = uuid.NewString()
	}
	vacancy.Status = models.VacancyStatusPending
	vacancy.FilledAt = nil
	if vacancy.CreatedAt.IsZero() {
		vacancy.CreatedAt = time.Now().UTC()
	}
	if _, loaded := s.rows.LoadOrStore(vacancy.ID, *vacancy); loaded {
		return ErrDuplicateKey
	}
	return nil
}

// FindByID returns a copy of the vacancy or sql.ErrNoRows.
func (s *VacancyStore) FindByID(ctx context.Context, id string) (*models.Vacancy, error) {
	v, ok := s.rows.Load(id)
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &v, nil
}

// ListOpen returns pending vacancies joined with their school.
func (s *VacancyStore) ListOpen(ctx context.Context) ([]models.VacancyListing, error) {
	var out []models.VacancyListing
	s.rows.Range(func(_ string, v models.Vacancy) bool {
		if v.Status != models.VacancyStatusPending {
			return true
		}
		listing := models.VacancyListing{ID: v.ID, SchoolID: v.SchoolID, Grade: v.Grade, Subject: v.Subject, Status: v.Status}
		if s.schools != nil {
			school, err := s.schools.FindByID(ctx, v.SchoolID)
			if err != nil {
				return true
			}
			listing.SchoolName = school.Name
			listing.City = school.City
		}
		out = append(out, listing)
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].SchoolName == out[j].SchoolName {
			return out[i].ID < out[j].ID
		}
		return out[i].SchoolName < out[j].SchoolName
	})
	return out, nil
}

// FillIfPending marks the vacancy filled only while it is pending.
func (s *VacancyStore) FillIfPending(ctx context.Context, id string, filledAt time.Time) error {
	at := filledAt.UTC()
	filled := false
	s.rows.Compute(id, func(old models.Vacancy, loaded bool) (models.Vacancy, xsync.ComputeOp) {
		if !loaded || old.Status != models.VacancyStatusPending {
			return old, xsync.CancelOp
		}
		old.Status = models.VacancyStatusFilled
		old.FilledAt = &at
		filled = true
		return old, xsync.UpdateOp
	})
	if !filled {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes the vacancy.
func (s *VacancyStore) Delete(ctx context.Context, id string) error {
	if _, ok := s.rows.LoadAndDelete(id); !ok {
		return sql.ErrNoRows
	}
	return nil
}
