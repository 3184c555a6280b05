package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/teacher-transfer-api/internal/models"
	"github.com/noah-isme/teacher-transfer-api/internal/repository/memory"
	"github.com/noah-isme/teacher-transfer-api/pkg/jobs"
)

type directoryStub struct {
	teachers []models.Teacher
	err      error
}

func (d *directoryStub) ListBroadcastRecipients(ctx context.Context) ([]models.Teacher, error) {
	return d.teachers, d.err
}

func approvedTeacher() *models.Teacher {
	joined := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	return &models.Teacher{ID: "t", Name: "Tess", Email: "tess@example.com", CurrentSchool: "Lincoln High", DateOfJoiningNewSchool: &joined}
}

func TestPlanApprovalPersonalisesAndBroadcasts(t *testing.T) {
	approved := approvedTeacher()
	dir := &directoryStub{teachers: []models.Teacher{
		{ID: "b", Name: "Bo", Email: "bo@example.com"},
		*approved,
		{ID: "a", Name: "Al", Email: "al@example.com"},
	}}
	planner := NewNotificationPlanner(dir, nil)

	event, err := planner.PlanApproval(context.Background(), approved)
	require.NoError(t, err)
	require.Len(t, event.Messages, 3)
	assert.Equal(t, models.NotificationTransferApproved, event.Kind)
	assert.Equal(t, "t", event.SubjectID)

	assert.Equal(t, []string{"a", "b", "t"}, []string{event.Messages[0].TeacherID, event.Messages[1].TeacherID, event.Messages[2].TeacherID})
	personal := event.Messages[2]
	assert.Equal(t, models.NotificationTransferApproved, personal.Kind)
	assert.Contains(t, personal.Body, "Lincoln High")
	assert.Contains(t, personal.Body, "01 Jul 2024")
	assert.Equal(t, models.NotificationTransferBroadcast, event.Messages[0].Kind)
	assert.Contains(t, event.Messages[0].Body, "Tess has been transferred to Lincoln High")

	dir.teachers = dir.teachers[1:]
	event, err = planner.PlanApproval(context.Background(), approved)
	require.NoError(t, err)
	assert.Len(t, event.Messages, 2)
}

func TestPlanApprovalDeduplicatesByEmail(t *testing.T) {
	approved := approvedTeacher()
	dir := &directoryStub{teachers: []models.Teacher{
		*approved,
		{ID: "a", Name: "Al", Email: "al@example.com"},
		{ID: "a2", Name: "Al again", Email: " AL@example.com "},
		{ID: "x", Name: "Shadow", Email: "TESS@example.com"},
		{ID: "y", Name: "No mail"},
	}}
	event, err := NewNotificationPlanner(dir, nil).PlanApproval(context.Background(), approved)
	require.NoError(t, err)
	require.Len(t, event.Messages, 2)
	assert.Equal(t, "a", event.Messages[0].TeacherID)
	assert.Equal(t, models.NotificationTransferApproved, event.Messages[1].Kind)
}

func TestPlanApprovalKeepsPersonalMessageWhenDirectoryFails(t *testing.T) {
	dir := &directoryStub{err: errors.New("directory down")}
	event, err := NewNotificationPlanner(dir, nil).PlanApproval(context.Background(), approvedTeacher())
	require.Error(t, err)
	require.NotNil(t, event)
	require.Len(t, event.Messages, 1)
	assert.Equal(t, "tess@example.com", event.Messages[0].Email)
}

func TestPlanRejectionTargetsRequesterOnly(t *testing.T) {
	dir := &directoryStub{teachers: []models.Teacher{{ID: "a", Email: "al@example.com"}}}
	event, err := NewNotificationPlanner(dir, nil).PlanRejection(&models.Teacher{ID: "t", Name: "Tess", Email: "tess@example.com"}, "Lincoln <High>")
	require.NoError(t, err)
	require.Len(t, event.Messages, 1)
	assert.Equal(t, "tess@example.com", event.Messages[0].Email)
	assert.Contains(t, event.Messages[0].Body, "Lincoln &lt;High&gt;")
}

func TestDispatcherIsolatesFailuresAndDedupes(t *testing.T) {
	gateway := &gatewayStub{failTo: map[string]error{"b@example.com": errors.New("mailbox full")}}
	ledger := memory.NewDeliveryLedger(time.Hour)
	dispatcher := NewNotificationDispatcher(gateway, ledger, time.Second, nil, nil)

	event := &models.NotificationEvent{ID: "evt-1", Kind: models.NotificationTransferBroadcast, Messages: []models.PlannedMessage{
		{Email: "a@example.com", Subject: "s", Kind: models.NotificationTransferBroadcast},
		{Email: "b@example.com", Subject: "s", Kind: models.NotificationTransferBroadcast},
		{Email: "c@example.com", Subject: "s", Kind: models.NotificationTransferBroadcast},
	}}

	report := dispatcher.Deliver(context.Background(), event)
	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, models.DeliveryFailed, report.Results[1].Status)
	assert.Len(t, gateway.messages(), 2)

	err := dispatcher.HandleJob(context.Background(), jobs.Job{ID: event.ID, Payload: event})
	require.Error(t, err)

	delete(gateway.failTo, "b@example.com")
	require.NoError(t, dispatcher.HandleJob(context.Background(), jobs.Job{ID: event.ID, Payload: event}))

	sent := gateway.messages()
	require.Len(t, sent, 3)
	assert.Equal(t, "b@example.com", sent[2].To)
}

func TestDispatcherRejectsUnexpectedPayload(t *testing.T) {
	dispatcher := NewNotificationDispatcher(&gatewayStub{}, nil, 0, nil, nil)
	assert.Error(t, dispatcher.HandleJob(context.Background(), jobs.Job{ID: "x", Payload: "nope"}))
}

type enqueuerStub struct {
	err  error
	jobs []jobs.Job
}

func (e *enqueuerStub) TryEnqueue(job jobs.Job) error {
	if e.err != nil {
		return e.err
	}
	e.jobs = append(e.jobs, job)
	return nil
}

func TestFanoutQueuesAndFallsBackInline(t *testing.T) {
	gateway := &gatewayStub{}
	dispatcher := NewNotificationDispatcher(gateway, nil, time.Second, nil, nil)
	event := &models.NotificationEvent{ID: "evt", Kind: models.NotificationVacancyAnnounced, Messages: []models.PlannedMessage{
		{Email: "a@example.com", Subject: "s"},
	}}

	queue := &enqueuerStub{}
	assert.True(t, NewNotificationFanout(dispatcher, queue, nil).Publish(context.Background(), event))
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, NotificationJobType, queue.jobs[0].Type)
	assert.Empty(t, gateway.messages())

	queue.err = jobs.ErrQueueFull
	assert.False(t, NewNotificationFanout(dispatcher, queue, nil).Publish(context.Background(), event))
	assert.Len(t, gateway.messages(), 1)
}

type vacancyStoreStub struct {
	fillErr error
	vacancy *models.Vacancy
	findErr error
}

func (s *vacancyStoreStub) FindByID(ctx context.Context, id string) (*models.Vacancy, error) {
	return s.vacancy, s.findErr
}

func (s *vacancyStoreStub) FillIfPending(ctx context.Context, id string, filledAt time.Time) error {
	return s.fillErr
}

func TestVacancyAllocatorOutcomes(t *testing.T) {
	schools := memory.NewSchoolStore()
	vacancies := memory.NewVacancyStore(schools)
	require.NoError(t, vacancies.Create(context.Background(), &models.Vacancy{ID: "v1", SchoolID: "s"}))
	allocator := NewVacancyAllocator(vacancies, nil, nil)

	outcome, err := allocator.Allocate(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, models.AllocationFilled, outcome)

	outcome, err = allocator.Allocate(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, models.AllocationAlreadyFilled, outcome)

	outcome, err = allocator.Allocate(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, models.AllocationNotFound, outcome)

	broken := NewVacancyAllocator(&vacancyStoreStub{fillErr: errors.New("connection reset")}, nil, nil)
	outcome, err = broken.Allocate(context.Background(), "v1")
	require.Error(t, err)
	assert.Equal(t, models.AllocationUnknown, outcome)
}

func TestMirrorGuardSkipsWithoutLedger(t *testing.T) {
	result := NewMirrorGuard(nil, nil, 0, nil, nil).Execute(context.Background(), approveCmd())
	assert.Equal(t, models.MirrorSkipped, result.Status)
	assert.False(t, result.Queued)

	var guard *MirrorGuard
	assert.Equal(t, models.MirrorSkipped, guard.Execute(context.Background(), approveCmd()).Status)
}

func TestMirrorGuardIgnoresCallerCancellation(t *testing.T) {
	stub := &ledgerStub{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := NewMirrorGuard(stub, nil, time.Second, nil, nil).Execute(ctx, approveCmd())
	assert.Equal(t, models.MirrorOK, result.Status)
	assert.Len(t, stub.operations(), 1)
}
