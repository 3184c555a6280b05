package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/teacher-transfer-api/internal/models"
	"github.com/noah-isme/teacher-transfer-api/internal/repository"
	appErrors "github.com/noah-isme/teacher-transfer-api/pkg/errors"
)

type schoolRepository interface {
	List(ctx context.Context, search string) ([]models.School, error)
	FindByID(ctx context.Context, id string) (*models.School, error)
	FindByName(ctx context.Context, name string) (*models.School, error)
	Create(ctx context.Context, school *models.School) error
	Update(ctx context.Context, school *models.School) error
	Delete(ctx context.Context, id string) error
}

// SchoolService manages school reference data.
type SchoolService struct {
	repo      schoolRepository
	validator *validator.Validate
	cache     *ListingCache
	logger    *zap.Logger
}

// NewSchoolService constructs a SchoolService. Changes invalidate the cached vacancy listing.
func NewSchoolService(repo schoolRepository, validate *validator.Validate, cache *ListingCache, logger *zap.Logger) *SchoolService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchoolService{repo: repo, validator: validate, cache: cache, logger: logger}
}

// List returns schools matching search.
func (s *SchoolService) List(ctx context.Context, search string) ([]models.School, error) {
	schools, err := s.repo.List(ctx, search)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schools")
	}
	return schools, nil
}

// Get returns a school by id.
func (s *SchoolService) Get(ctx context.Context, id string) (*models.School, error) {
	school, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school")
	}
	return school, nil
}

// Create adds a school. Names are unique regardless of case.
func (s *SchoolService) Create(ctx context.Context, req models.SchoolRequest) (*models.School, error) {
	req = normalizeSchool(req)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid school payload")
	}
	if err := s.ensureUniqueName(ctx, req.Name, ""); err != nil {
		return nil, err
	}
	school := &models.School{Name: req.Name, City: req.City, Address: req.Address, ContactNumber: req.ContactNumber}
	if err := s.repo.Create(ctx, school); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "school name already used")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create school")
	}
	return school, nil
}

// Update rewrites a school's attributes.
func (s *SchoolService) Update(ctx context.Context, id string, req models.SchoolRequest) (*models.School, error) {
	req = normalizeSchool(req)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid school payload")
	}
	school, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUniqueName(ctx, req.Name, id); err != nil {
		return nil, err
	}
	school.Name = req.Name
	school.City = req.City
	school.Address = req.Address
	school.ContactNumber = req.ContactNumber
	if err := s.repo.Update(ctx, school); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school not found")
		case errors.Is(err, repository.ErrDuplicate):
			return nil, appErrors.Clone(appErrors.ErrConflict, "school name already used")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update school")
	}
	s.invalidateListings(ctx)
	return school, nil
}

// Delete removes a school that no vacancy references.
func (s *SchoolService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return appErrors.Clone(appErrors.ErrNotFound, "school not found")
		case errors.Is(err, repository.ErrReferenced):
			return appErrors.Clone(appErrors.ErrConflict, "school still has vacancies")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete school")
	}
	s.invalidateListings(ctx)
	return nil
}

func (s *SchoolService) ensureUniqueName(ctx context.Context, name, excludeID string) error {
	existing, err := s.repo.FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check school name")
	}
	if existing.ID != excludeID {
		return appErrors.Clone(appErrors.ErrConflict, "school name already used")
	}
	return nil
}

func (s *SchoolService) invalidateListings(ctx context.Context) {
	s.cache.InvalidateOpenVacancies(ctx)
}

func normalizeSchool(req models.SchoolRequest) models.SchoolRequest {
	req.Name = strings.TrimSpace(req.Name)
	req.City = strings.TrimSpace(req.City)
	req.Address = strings.TrimSpace(req.Address)
	req.ContactNumber = strings.TrimSpace(req.ContactNumber)
	return req
}
