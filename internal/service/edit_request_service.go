package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/teacher-transfer-api/internal/models"
	"github.com/noah-isme/teacher-transfer-api/internal/repository"
	appErrors "github.com/noah-isme/teacher-transfer-api/pkg/errors"
)

type editRequestStore interface {
	Create(ctx context.Context, req *models.EditRequest) error
	GetByID(ctx context.Context, id string) (*models.EditRequest, error)
	List(ctx context.Context, filter models.EditRequestFilter) ([]models.EditRequest, error)
	UpdateStatus(ctx context.Context, params repository.ReviewEditRequestParams) error
}

type editTeacherStore interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	UpdateProfile(ctx context.Context, id string, expectedVersion int64, profile models.TeacherProfile) (*models.Teacher, error)
	ListByRole(ctx context.Context, role models.UserRole) ([]models.Teacher, error)
}

// profileField writes one JSON value onto a profile.
type profileField func(p *models.TeacherProfile, raw json.RawMessage) error

var editableFields = map[string]profileField{
	"name":               stringField(func(p *models.TeacherProfile, v string) { p.Name = v }),
	"contactNumber":      stringField(func(p *models.TeacherProfile, v string) { p.ContactNumber = v }),
	"initialAppointment": stringField(func(p *models.TeacherProfile, v string) { p.InitialAppointment = v }),
	"experience":         stringField(func(p *models.TeacherProfile, v string) { p.Experience = v }),
	"grade":              stringField(func(p *models.TeacherProfile, v string) { p.Grade = v }),
	"maritalStatus":      stringField(func(p *models.TeacherProfile, v string) { p.MaritalStatus = v }),
	"homeAddress":        stringField(func(p *models.TeacherProfile, v string) { p.HomeAddress = v }),
	"postedAs":           stringField(func(p *models.TeacherProfile, v string) { p.PostedAs = v }),
	"serviceType": stringField(func(p *models.TeacherProfile, v string) {
		p.ServiceType = models.ServiceType(strings.ToUpper(v))
	}),
	"dateOfBirth": func(p *models.TeacherProfile, raw json.RawMessage) error {
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return err
		}
		ts, err := time.Parse("2006-01-02", strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("must be YYYY-MM-DD")
		}
		p.DateOfBirth = &ts
		return nil
	},
}

// Columns owned by the transfer workflow or identity; never writable through an edit request.
var lockedFields = map[string]struct{}{
	"isRequestPending": {},
	"newSchoolRequest": {},
	"pendingVacancyId": {},
	"currentSchool":    {},
	"ledgerAddress":    {},
	"email":            {},
	"nationalId":       {},
	"role":             {},
	"version":          {},
	"dateOfJoining":    {},
}

func stringField(set func(p *models.TeacherProfile, v string)) profileField {
	return func(p *models.TeacherProfile, raw json.RawMessage) error {
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return err
		}
		set(p, strings.TrimSpace(value))
		return nil
	}
}

// EditRequestService runs the profile edit review flow. It never touches transfer state.
type EditRequestService struct {
	repo      editRequestStore
	teachers  editTeacherStore
	validator *validator.Validate
	planner   *NotificationPlanner
	fanout    notificationPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewEditRequestService constructs an EditRequestService.
func NewEditRequestService(repo editRequestStore, teachers editTeacherStore, validate *validator.Validate, planner *NotificationPlanner, fanout notificationPublisher, logger *zap.Logger) *EditRequestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EditRequestService{
		repo:      repo,
		teachers:  teachers,
		validator: validate,
		planner:   planner,
		fanout:    fanout,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit records a teacher's proposed profile changes and notifies DEO reviewers.
func (s *EditRequestService) Submit(ctx context.Context, teacherID string, req models.SubmitEditRequest) (*models.EditRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid edit request payload")
	}
	teacher, err := s.teacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(req.Changes)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "changes must be a JSON object")
	}
	if _, err := applyChanges(models.ProfileOf(teacher), payload); err != nil {
		return nil, err
	}

	edit := &models.EditRequest{
		TeacherID:        teacher.ID,
		Name:             teacher.Name,
		Email:            teacher.Email,
		RequestedChanges: payload,
		Reason:           strings.TrimSpace(req.Reason),
		Status:           models.EditRequestPending,
		RequestedAt:      s.now(),
	}
	if err := s.repo.Create(ctx, edit); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create edit request")
	}

	if s.planner != nil && s.fanout != nil {
		reviewers, err := s.teachers.ListByRole(ctx, models.RoleDEO)
		if err != nil {
			s.logger.Warn("edit request reviewers unavailable", zap.String("edit_request_id", edit.ID), zap.Error(err))
		} else if event, err := s.planner.PlanEditSubmitted(reviewers, edit); err != nil {
			s.logger.Warn("plan edit request notification", zap.String("edit_request_id", edit.ID), zap.Error(err))
		} else {
			s.fanout.Publish(ctx, event)
		}
	}
	return edit, nil
}

// ListPending returns requests awaiting review, newest first.
func (s *EditRequestService) ListPending(ctx context.Context, limit, offset int) ([]models.EditRequest, error) {
	reqs, err := s.repo.List(ctx, models.EditRequestFilter{
		Status: []models.EditRequestStatus{models.EditRequestPending},
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list edit requests")
	}
	return reqs, nil
}

// GetLatestByEmail returns the most recent request filed under email.
func (s *EditRequestService) GetLatestByEmail(ctx context.Context, email string) (*models.EditRequest, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "email is required")
	}
	reqs, err := s.repo.List(ctx, models.EditRequestFilter{Email: email, Limit: 1})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load edit request")
	}
	if len(reqs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "edit request not found")
	}
	return &reqs[0], nil
}

// Approve claims the request, applies the requested changes through the versioned profile update,
// then records the approval. A failed profile write hands the request back to the review queue.
func (s *EditRequestService) Approve(ctx context.Context, id, reviewerID string, review models.ReviewEditRequest) (*models.EditRequest, error) {
	if err := s.validator.Struct(review); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	edit, err := s.pending(ctx, id)
	if err != nil {
		return nil, err
	}
	teacher, err := s.teacher(ctx, edit.TeacherID)
	if err != nil {
		return nil, err
	}
	profile, err := applyChanges(models.ProfileOf(teacher), edit.RequestedChanges)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(profile); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "requested changes produce an invalid profile")
	}

	params := s.reviewParams(edit.ID, reviewerID, review)
	params.Status = models.EditRequestApplying
	if err := s.transition(ctx, params); err != nil {
		return nil, err
	}

	if _, err := s.teachers.UpdateProfile(ctx, teacher.ID, teacher.Version, profile); err != nil {
		s.release(ctx, edit.ID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "teacher was modified concurrently; retry the review")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply profile changes")
	}

	params.From = models.EditRequestApplying
	params.Status = models.EditRequestApproved
	if err := s.transition(ctx, params); err != nil {
		// Only this call moves a request out of APPLYING.
		s.logger.Error("edit request applied but not closed", zap.String("edit_request_id", edit.ID), zap.Error(err))
		return nil, err
	}
	return s.closed(ctx, edit, params), nil
}

// Reject closes the request without touching the teacher.
func (s *EditRequestService) Reject(ctx context.Context, id, reviewerID string, review models.ReviewEditRequest) (*models.EditRequest, error) {
	if err := s.validator.Struct(review); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	edit, err := s.pending(ctx, id)
	if err != nil {
		return nil, err
	}
	params := s.reviewParams(edit.ID, reviewerID, review)
	params.Status = models.EditRequestRejected
	if err := s.transition(ctx, params); err != nil {
		return nil, err
	}
	return s.closed(ctx, edit, params), nil
}

func (s *EditRequestService) reviewParams(id, reviewerID string, review models.ReviewEditRequest) repository.ReviewEditRequestParams {
	return repository.ReviewEditRequestParams{
		ID:         id,
		From:       models.EditRequestPending,
		ReviewedBy: reviewerID,
		ReviewedAt: s.now(),
		Note:       optionalString(review.Note),
	}
}

func (s *EditRequestService) transition(ctx context.Context, params repository.ReviewEditRequestParams) error {
	if err := s.repo.UpdateStatus(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrConflict, "edit request already reviewed")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update edit request")
	}
	return nil
}

// release returns a claimed request to PENDING after its profile write failed.
func (s *EditRequestService) release(ctx context.Context, id string) {
	err := s.repo.UpdateStatus(context.WithoutCancel(ctx), repository.ReviewEditRequestParams{
		ID:     id,
		From:   models.EditRequestApplying,
		Status: models.EditRequestPending,
	})
	if err != nil {
		s.logger.Error("release claimed edit request", zap.String("edit_request_id", id), zap.Error(err))
	}
}

func (s *EditRequestService) closed(ctx context.Context, edit *models.EditRequest, params repository.ReviewEditRequestParams) *models.EditRequest {
	edit.Status = params.Status
	edit.ReviewedBy, edit.ReviewedAt, edit.Note = params.ReviewColumns()

	if s.planner != nil && s.fanout != nil {
		if event, err := s.planner.PlanEditReviewed(edit); err != nil {
			s.logger.Warn("plan edit review notification", zap.String("edit_request_id", edit.ID), zap.Error(err))
		} else {
			s.fanout.Publish(ctx, event)
		}
	}
	return edit
}

func (s *EditRequestService) pending(ctx context.Context, id string) (*models.EditRequest, error) {
	edit, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "edit request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load edit request")
	}
	if edit.Status != models.EditRequestPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "edit request already reviewed")
	}
	return edit, nil
}

func (s *EditRequestService) teacher(ctx context.Context, id string) (*models.Teacher, error) {
	teacher, err := s.teachers.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

// applyChanges overlays payload onto profile. Keys are checked in sorted order so errors are stable.
func applyChanges(profile models.TeacherProfile, payload []byte) (models.TeacherProfile, error) {
	var changes map[string]json.RawMessage
	if err := json.Unmarshal(payload, &changes); err != nil {
		return profile, appErrors.Clone(appErrors.ErrValidation, "changes must be a JSON object")
	}
	if len(changes) == 0 {
		return profile, appErrors.Clone(appErrors.ErrValidation, "no changes requested")
	}
	keys := make([]string, 0, len(changes))
	for key := range changes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if _, locked := lockedFields[key]; locked {
			return profile, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s cannot be changed through an edit request", key))
		}
		apply, ok := editableFields[key]
		if !ok {
			return profile, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported field: %s", key))
		}
		if err := apply(&profile, changes[key]); err != nil {
			return profile, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s: %v", key, err))
		}
	}
	return profile, nil
}

func optionalString(value string) *string {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	return &v
}
