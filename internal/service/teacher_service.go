package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/noah-isme/teacher-transfer-api/internal/models"
	"github.com/noah-isme/teacher-transfer-api/internal/repository"
	appErrors "github.com/noah-isme/teacher-transfer-api/pkg/errors"
	"github.com/noah-isme/teacher-transfer-api/pkg/ledger"
)

type teacherRepository interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error)
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	FindByEmail(ctx context.Context, email string) (*models.Teacher, error)
	FindByNationalID(ctx context.Context, nationalID string) (*models.Teacher, error)
	ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error)
	ExistsByNationalID(ctx context.Context, nationalID, excludeID string) (bool, error)
	Create(ctx context.Context, teacher *models.Teacher) error
	UpdateProfile(ctx context.Context, id string, expectedVersion int64, profile models.TeacherProfile) (*models.Teacher, error)
	Delete(ctx context.Context, id string) error
}

// TeacherService orchestrates teacher registration and profile records.
type TeacherService struct {
	repo      teacherRepository
	validator *validator.Validate
	mirror    *MirrorGuard
	planner   *NotificationPlanner
	fanout    notificationPublisher
	logger    *zap.Logger
}

// NewTeacherService constructs a TeacherService.
func NewTeacherService(repo teacherRepository, validate *validator.Validate, mirror *MirrorGuard, planner *NotificationPlanner, fanout notificationPublisher, logger *zap.Logger) *TeacherService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherService{repo: repo, validator: validate, mirror: mirror, planner: planner, fanout: fanout, logger: logger}
}

// List returns teachers plus pagination data.
func (s *TeacherService) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, *models.Pagination, error) {
	teachers, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return teachers, pagination, nil
}

// Get returns a teacher by id.
func (s *TeacherService) Get(ctx context.Context, id string) (*models.Teacher, error) {
	return s.find(s.repo.FindByID(ctx, id))
}

// GetByEmail returns a teacher by email.
func (s *TeacherService) GetByEmail(ctx context.Context, email string) (*models.Teacher, error) {
	return s.find(s.repo.FindByEmail(ctx, strings.TrimSpace(email)))
}

// FindByNationalID returns a teacher by national id.
func (s *TeacherService) FindByNationalID(ctx context.Context, nationalID string) (*models.Teacher, error) {
	return s.find(s.repo.FindByNationalID(ctx, strings.TrimSpace(nationalID)))
}

func (s *TeacherService) find(teacher *models.Teacher, err error) (*models.Teacher, error) {
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

// Register creates a teacher with a fresh ledger address, mirrors the identity and sends a welcome notice.
func (s *TeacherService) Register(ctx context.Context, req models.RegisterTeacherRequest) (teacher *models.Teacher, err error) {
	ctx, span := startSpan(ctx, "TeacherService.Register")
	defer func() { finishSpan(span, err) }()

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.NationalID = strings.TrimSpace(req.NationalID)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}
	email := req.Email
	nationalID := req.NationalID
	if err := s.ensureUniqueFields(ctx, email, nationalID, ""); err != nil {
		return nil, err
	}

	address, err := ledger.GenerateAddress()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign ledger address")
	}

	role := req.Role
	if role == "" {
		role = models.RoleTeacher
	}
	serviceType := req.ServiceType
	if serviceType == "" {
		serviceType = models.ServiceTypeRegular
	}
	teacher = &models.Teacher{
		Name:               req.Name,
		Email:              email,
		NationalID:         nationalID,
		Role:               role,
		ServiceType:        serviceType,
		DateOfBirth:        req.DateOfBirth,
		ContactNumber:      strings.TrimSpace(req.ContactNumber),
		InitialAppointment: req.InitialAppointment,
		Experience:         req.Experience,
		Grade:              req.Grade,
		MaritalStatus:      req.MaritalStatus,
		HomeAddress:        req.HomeAddress,
		CurrentSchool:      strings.TrimSpace(req.CurrentSchool),
		PostedAs:           req.PostedAs,
		DateOfJoining:      req.DateOfJoining,
		LedgerAddress:      address,
	}
	if err := s.repo.Create(ctx, teacher); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email or national id already registered")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher")
	}
	span.SetAttributes(attribute.String("teacher.id", teacher.ID))

	s.mirror.Execute(ctx, ledger.RegisterTeacher(ledgerRef(teacher), ledger.Profile{
		Name:          teacher.Name,
		Email:         teacher.Email,
		NationalID:    teacher.NationalID,
		CurrentSchool: teacher.CurrentSchool,
		PostedAs:      teacher.PostedAs,
	}))
	if s.planner != nil && s.fanout != nil {
		if event, planErr := s.planner.PlanAccountCreated(teacher); planErr != nil {
			s.logger.Warn("plan account notice", zap.String("teacher_id", teacher.ID), zap.Error(planErr))
		} else {
			s.fanout.Publish(ctx, event)
		}
	}
	s.logger.Info("teacher registered", zap.String("teacher_id", teacher.ID), zap.String("role", string(teacher.Role)))
	return teacher, nil
}

// UpdateProfile writes profile columns if the caller saw the current version.
func (s *TeacherService) UpdateProfile(ctx context.Context, id string, req models.UpdateProfileRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}
	profile := req.TeacherProfile
	profile.Name = strings.TrimSpace(profile.Name)
	if profile.ServiceType == "" {
		profile.ServiceType = models.ServiceTypeRegular
	}
	return s.applyProfile(ctx, id, req.Version, profile)
}

func (s *TeacherService) applyProfile(ctx context.Context, id string, version int64, profile models.TeacherProfile) (*models.Teacher, error) {
	updated, err := s.repo.UpdateProfile(ctx, id, version, profile)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher")
	}
	if _, findErr := s.Get(ctx, id); findErr != nil {
		return nil, findErr
	}
	return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "teacher was modified concurrently; reload and retry")
}

// Delete removes a teacher and mirrors the removal.
func (s *TeacherService) Delete(ctx context.Context, id string) error {
	teacher, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete teacher")
	}
	if teacher.IsRequestPending {
		s.logger.Info("deleted teacher had a pending transfer request",
			zap.String("teacher_id", id), zap.String("vacancy_id", teacher.PendingVacancy()))
	}
	s.mirror.Execute(ctx, ledger.RemoveTeacher(ledgerRef(teacher)))
	return nil
}

func (s *TeacherService) ensureUniqueFields(ctx context.Context, email, nationalID, excludeID string) error {
	exists, err := s.repo.ExistsByEmail(ctx, email, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "email already used")
	}
	exists, err = s.repo.ExistsByNationalID(ctx, nationalID, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check national id uniqueness")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "national id already used")
	}
	return nil
}
