package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/noah-isme/teacher-transfer-api/internal/models"
	appErrors "github.com/noah-isme/teacher-transfer-api/pkg/errors"
	"github.com/noah-isme/teacher-transfer-api/pkg/ledger"
)

const maxReasonLength = 1000

type transferTeacherStore interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	MarkTransferRequested(ctx context.Context, id string, fields models.TransferRequestFields) (*models.Teacher, error)
	CompleteTransfer(ctx context.Context, id string, expected models.SchoolRef, joinedAt time.Time) (*models.Teacher, error)
	ClearTransferRequest(ctx context.Context, id string, expected models.SchoolRef) (*models.Teacher, error)
	ListPendingTransfers(ctx context.Context) ([]models.Teacher, error)
}

type vacancyReader interface {
	FindByID(ctx context.Context, id string) (*models.Vacancy, error)
}

type schoolLookup interface {
	FindByID(ctx context.Context, id string) (*models.School, error)
}

type notificationPublisher interface {
	Publish(ctx context.Context, event *models.NotificationEvent) bool
}

// TransferService owns the request/approve/reject state machine. The repository write is always
// committed first; ledger mirroring and notification follow and can never fail the call.
type TransferService struct {
	teachers  transferTeacherStore
	vacancies vacancyReader
	schools   schoolLookup
	allocator *VacancyAllocator
	mirror    *MirrorGuard
	planner   *NotificationPlanner
	fanout    notificationPublisher
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// TransferServiceOption configures the service.
type TransferServiceOption func(*TransferService)

// WithTransferMetrics attaches workflow counters.
func WithTransferMetrics(metrics *MetricsService) TransferServiceOption {
	return func(s *TransferService) {
		s.metrics = metrics
	}
}

// WithTransferClock overrides the clock used for join dates.
func WithTransferClock(now func() time.Time) TransferServiceOption {
	return func(s *TransferService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewTransferService wires the engine.
func NewTransferService(teachers transferTeacherStore, vacancies vacancyReader, schools schoolLookup, allocator *VacancyAllocator, mirror *MirrorGuard, planner *NotificationPlanner, fanout notificationPublisher, logger *zap.Logger, opts ...TransferServiceOption) *TransferService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &TransferService{
		teachers:  teachers,
		vacancies: vacancies,
		schools:   schools,
		allocator: allocator,
		mirror:    mirror,
		planner:   planner,
		fanout:    fanout,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// RequestTransfer records a pending request for requesterID towards the vacancy named by the
// "<school>|<vacancy>" token. Repeating the exact pending token acknowledges again without a write.
func (s *TransferService) RequestTransfer(ctx context.Context, requesterID string, req models.RequestTransferRequest) (ack *models.TransferAck, err error) {
	ctx, span := startSpan(ctx, "TransferService.RequestTransfer", attribute.String("teacher.id", requesterID))
	defer func() {
		s.record(models.TransferActionRequest, ack, err)
		finishSpan(span, err)
	}()

	ref, err := models.ParseSchoolRef(req.SchoolRef)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidReference.Code, appErrors.ErrInvalidReference.Status, err.Error())
	}
	if len(req.Reason) > maxReasonLength {
		return nil, appErrors.Clone(appErrors.ErrValidation, "reason is too long")
	}
	reason := strings.TrimSpace(req.Reason)

	teacher, err := s.loadTeacher(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	if teacher.IsRequestPending {
		return s.replayOrReject(teacher, ref)
	}

	vacancy, err := s.vacancies.FindByID(ctx, ref.VacancyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "vacancy not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load vacancy")
	}
	if vacancy.Status != models.VacancyStatusPending {
		return nil, appErrors.Clone(appErrors.ErrAlreadyFilled, "vacancy is no longer open")
	}
	if err := s.matchSchool(ctx, vacancy, ref); err != nil {
		return nil, err
	}

	updated, err := s.teachers.MarkTransferRequested(ctx, teacher.ID, models.TransferRequestFields{
		SchoolName: ref.SchoolName,
		VacancyID:  ref.VacancyID,
		Reason:     reason,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			current, loadErr := s.loadTeacher(ctx, teacher.ID)
			if loadErr != nil {
				return nil, loadErr
			}
			return s.replayOrReject(current, ref)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record transfer request")
	}

	ack = s.newAck(updated.ID, models.TransferActionRequest, ref)
	ack.Mirror = s.mirror.Execute(ctx, ledger.RequestSchoolChange(ledgerRef(updated), ref.SchoolName))
	s.logger.Info("transfer requested",
		zap.String("teacher_id", updated.ID),
		zap.String("school", ref.SchoolName),
		zap.String("vacancy_id", ref.VacancyID),
	)
	return ack, nil
}

// ApproveTransfer moves the teacher to the requested school, then fills the vacancy.
//
// The teacher-side transition is authoritative. If the vacancy was already filled by a concurrent
// approval the transition still stands and the call returns the ack together with an AlreadyFilled
// error; a vacancy that vanished is logged as an inconsistency and the call succeeds.
func (s *TransferService) ApproveTransfer(ctx context.Context, teacherID string) (ack *models.TransferAck, err error) {
	ctx, span := startSpan(ctx, "TransferService.ApproveTransfer", attribute.String("teacher.id", teacherID))
	defer func() {
		s.record(models.TransferActionApprove, ack, err)
		finishSpan(span, err)
	}()

	teacher, err := s.loadTeacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	if !teacher.IsRequestPending {
		return nil, appErrors.ErrNoPendingRequest
	}
	expected := models.SchoolRef{SchoolName: teacher.NewSchoolRequest, VacancyID: teacher.PendingVacancy()}

	updated, err := s.teachers.CompleteTransfer(ctx, teacher.ID, expected, s.now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.explainStale(ctx, teacher.ID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve transfer")
	}

	ack = s.newAck(updated.ID, models.TransferActionApprove, expected)
	span.SetAttributes(attribute.String("vacancy.id", expected.VacancyID))

	outcome, allocErr := s.allocator.Allocate(ctx, expected.VacancyID)
	ack.Allocation = outcome
	switch outcome {
	case models.AllocationFilled:
	case models.AllocationAlreadyFilled:
		s.logger.Warn("vacancy already filled; teacher transfer stands",
			zap.String("teacher_id", updated.ID),
			zap.String("vacancy_id", expected.VacancyID),
		)
	case models.AllocationNotFound:
		s.logger.Error("approved transfer references a missing vacancy",
			zap.String("teacher_id", updated.ID),
			zap.String("vacancy_id", expected.VacancyID),
		)
	default:
		s.logger.Error("vacancy allocation failed after transfer committed",
			zap.String("teacher_id", updated.ID),
			zap.String("vacancy_id", expected.VacancyID),
			zap.Error(allocErr),
		)
	}

	ack.Mirror = s.mirror.Execute(ctx, ledger.ApproveSchoolChange(ledgerRef(updated)))
	ack.NotificationEventID = s.notifyApproval(ctx, updated)

	s.logger.Info("transfer approved",
		zap.String("teacher_id", updated.ID),
		zap.String("school", updated.CurrentSchool),
		zap.String("allocation", string(outcome)),
	)
	if outcome == models.AllocationAlreadyFilled {
		return ack, appErrors.Clone(appErrors.ErrAlreadyFilled, "vacancy was filled by another approval; the teacher transfer was recorded")
	}
	return ack, nil
}

// RejectTransfer clears the pending request. The vacancy stays open for other candidates.
func (s *TransferService) RejectTransfer(ctx context.Context, teacherID string) (ack *models.TransferAck, err error) {
	ctx, span := startSpan(ctx, "TransferService.RejectTransfer", attribute.String("teacher.id", teacherID))
	defer func() {
		s.record(models.TransferActionReject, ack, err)
		finishSpan(span, err)
	}()

	teacher, err := s.loadTeacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	if !teacher.IsRequestPending {
		return nil, appErrors.ErrNoPendingRequest
	}
	expected := models.SchoolRef{SchoolName: teacher.NewSchoolRequest, VacancyID: teacher.PendingVacancy()}

	updated, err := s.teachers.ClearTransferRequest(ctx, teacher.ID, expected)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.explainStale(ctx, teacher.ID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject transfer")
	}

	ack = s.newAck(updated.ID, models.TransferActionReject, expected)
	ack.Mirror = s.mirror.Execute(ctx, ledger.RejectSchoolChange(ledgerRef(updated)))

	if s.planner != nil {
		event, planErr := s.planner.PlanRejection(updated, expected.SchoolName)
		if planErr != nil {
			s.logger.Warn("plan rejection notice", zap.String("teacher_id", updated.ID), zap.Error(planErr))
		} else {
			ack.NotificationEventID = event.ID
			s.publish(ctx, event)
		}
	}

	s.logger.Info("transfer rejected", zap.String("teacher_id", updated.ID), zap.String("vacancy_id", expected.VacancyID))
	return ack, nil
}

// ListPending returns the reviewer queue.
func (s *TransferService) ListPending(ctx context.Context) ([]models.Teacher, error) {
	teachers, err := s.teachers.ListPendingTransfers(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending transfers")
	}
	return teachers, nil
}

func (s *TransferService) loadTeacher(ctx context.Context, id string) (*models.Teacher, error) {
	teacher, err := s.teachers.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

// matchSchool rejects a token whose school name is not the vacancy's school.
func (s *TransferService) matchSchool(ctx context.Context, vacancy *models.Vacancy, ref models.SchoolRef) error {
	school, err := s.schools.FindByID(ctx, vacancy.SchoolID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "vacancy school not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school")
	}
	if school.Name != ref.SchoolName {
		return appErrors.Clone(appErrors.ErrInvalidReference, fmt.Sprintf("vacancy %s belongs to %q, not %q", vacancy.ID, school.Name, ref.SchoolName))
	}
	return nil
}

func (s *TransferService) replayOrReject(teacher *models.Teacher, ref models.SchoolRef) (*models.TransferAck, error) {
	if teacher.IsRequestPending && teacher.NewSchoolRequest == ref.SchoolName && teacher.PendingVacancy() == ref.VacancyID {
		ack := s.newAck(teacher.ID, models.TransferActionRequest, ref)
		ack.Replayed = true
		ack.Mirror = models.MirrorResult{Operation: string(ledger.OpRequestSchoolChange), Status: models.MirrorSkipped}
		return ack, nil
	}
	return nil, appErrors.ErrAlreadyPending
}

// explainStale classifies a conditional write that matched no row.
func (s *TransferService) explainStale(ctx context.Context, id string) error {
	current, err := s.loadTeacher(ctx, id)
	if err != nil {
		return err
	}
	if !current.IsRequestPending {
		return appErrors.ErrNoPendingRequest
	}
	return appErrors.Clone(appErrors.ErrConflict, "transfer request changed concurrently; reload and retry")
}

func (s *TransferService) notifyApproval(ctx context.Context, teacher *models.Teacher) string {
	if s.planner == nil {
		return ""
	}
	event, err := s.planner.PlanApproval(ctx, teacher)
	if err != nil {
		s.logger.Warn("approval recipients incomplete", zap.String("teacher_id", teacher.ID), zap.Error(err))
	}
	if event == nil {
		return ""
	}
	s.publish(ctx, event)
	return event.ID
}

func (s *TransferService) publish(ctx context.Context, event *models.NotificationEvent) {
	if s.fanout == nil {
		return
	}
	s.fanout.Publish(ctx, event)
}

func (s *TransferService) newAck(teacherID string, action models.TransferAction, ref models.SchoolRef) *models.TransferAck {
	return &models.TransferAck{
		TeacherID:  teacherID,
		Action:     action,
		SchoolName: ref.SchoolName,
		VacancyID:  ref.VacancyID,
		At:         s.now(),
	}
}

func (s *TransferService) record(action models.TransferAction, ack *models.TransferAck, err error) {
	switch {
	case ack != nil && ack.Replayed:
		s.metrics.RecordTransfer(action, outcomeReplayed)
	case ack != nil:
		s.metrics.RecordTransfer(action, outcomeCommitted)
	case appErrors.FromError(err).Status < 500:
		s.metrics.RecordTransfer(action, outcomeRejected)
	default:
		s.metrics.RecordTransfer(action, outcomeError)
	}
}
