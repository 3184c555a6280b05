package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/teacher-transfer-api/internal/models"
	appErrors "github.com/noah-isme/teacher-transfer-api/pkg/errors"
)

type vacancyRepository interface {
	Create(ctx context.Context, vacancy *models.Vacancy) error
	FindByID(ctx context.Context, id string) (*models.Vacancy, error)
	ListOpen(ctx context.Context) ([]models.VacancyListing, error)
	Delete(ctx context.Context, id string) error
}

type schoolFinder interface {
	FindByID(ctx context.Context, id string) (*models.School, error)
}

type vacancyTeacherLookup interface {
	CountPendingForVacancy(ctx context.Context, vacancyID string) (int, error)
	ListByRole(ctx context.Context, role models.UserRole) ([]models.Teacher, error)
}

// VacancyService manages postings and the open listing clients pick reference tokens from.
type VacancyService struct {
	repo      vacancyRepository
	schools   schoolFinder
	teachers  vacancyTeacherLookup
	validator *validator.Validate
	cache     *ListingCache
	planner   *NotificationPlanner
	fanout    notificationPublisher
	logger    *zap.Logger
}

// VacancyServiceOption configures the service.
type VacancyServiceOption func(*VacancyService)

// WithVacancyCache serves the open listing through cache.
func WithVacancyCache(cache *ListingCache) VacancyServiceOption {
	return func(s *VacancyService) {
		s.cache = cache
	}
}

// WithVacancyAnnouncements announces new vacancies to every teacher.
func WithVacancyAnnouncements(planner *NotificationPlanner, fanout notificationPublisher) VacancyServiceOption {
	return func(s *VacancyService) {
		s.planner = planner
		s.fanout = fanout
	}
}

// NewVacancyService constructs a VacancyService.
func NewVacancyService(repo vacancyRepository, schools schoolFinder, teachers vacancyTeacherLookup, validate *validator.Validate, logger *zap.Logger, opts ...VacancyServiceOption) *VacancyService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &VacancyService{repo: repo, schools: schools, teachers: teachers, validator: validate, logger: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// ListOpen returns pending vacancies with school facts and the "<school>|<vacancy>" token.
func (s *VacancyService) ListOpen(ctx context.Context) ([]models.VacancyListing, error) {
	listings, _, err := s.ListOpenCached(ctx)
	return listings, err
}

// ListOpenCached is ListOpen that also reports whether the listing came from cache.
func (s *VacancyService) ListOpenCached(ctx context.Context) ([]models.VacancyListing, bool, error) {
	if cached, hit := s.cache.OpenVacancies(ctx); hit {
		return cached, true, nil
	}

	listings, err := s.repo.ListOpen(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list vacancies")
	}
	for i := range listings {
		listings[i].Reference = referenceOf(listings[i])
	}
	s.cache.StoreOpenVacancies(ctx, listings)
	return listings, false, nil
}

// Get returns a vacancy by id.
func (s *VacancyService) Get(ctx context.Context, id string) (*models.Vacancy, error) {
	vacancy, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "vacancy not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load vacancy")
	}
	return vacancy, nil
}

// Create opens a vacancy at an existing school and announces it.
func (s *VacancyService) Create(ctx context.Context, req models.CreateVacancyRequest) (*models.VacancyListing, error) {
	req.SchoolID = strings.TrimSpace(req.SchoolID)
	req.Grade = strings.TrimSpace(req.Grade)
	req.Subject = strings.TrimSpace(req.Subject)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid vacancy payload")
	}
	school, err := s.schools.FindByID(ctx, req.SchoolID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school")
	}

	vacancy := &models.Vacancy{SchoolID: school.ID, Grade: req.Grade, Subject: req.Subject}
	if err := s.repo.Create(ctx, vacancy); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create vacancy")
	}
	s.cache.InvalidateOpenVacancies(ctx)

	listing := &models.VacancyListing{
		ID:         vacancy.ID,
		SchoolID:   school.ID,
		SchoolName: school.Name,
		City:       school.City,
		Grade:      vacancy.Grade,
		Subject:    vacancy.Subject,
		Status:     vacancy.Status,
	}
	listing.Reference = referenceOf(*listing)
	s.announce(ctx, *listing)
	return listing, nil
}

// Delete removes a vacancy unless a pending transfer request still points at it.
func (s *VacancyService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	pending, err := s.teachers.CountPendingForVacancy(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check vacancy references")
	}
	if pending > 0 {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("vacancy is targeted by %d pending transfer request(s)", pending))
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "vacancy not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete vacancy")
	}
	s.cache.InvalidateOpenVacancies(ctx)
	return nil
}

func (s *VacancyService) announce(ctx context.Context, listing models.VacancyListing) {
	if s.planner == nil || s.fanout == nil {
		return
	}
	recipients, err := s.teachers.ListByRole(ctx, models.RoleTeacher)
	if err != nil {
		s.logger.Warn("vacancy announcement recipients unavailable", zap.String("vacancy_id", listing.ID), zap.Error(err))
		return
	}
	event, err := s.planner.PlanVacancyAnnouncement(recipients, listing)
	if err != nil {
		s.logger.Warn("plan vacancy announcement", zap.String("vacancy_id", listing.ID), zap.Error(err))
		return
	}
	s.fanout.Publish(ctx, event)
}

func referenceOf(listing models.VacancyListing) string {
	return models.SchoolRef{SchoolName: listing.SchoolName, VacancyID: listing.ID}.String()
}
