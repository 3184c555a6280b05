package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/teacher-transfer-api/internal/models"
	"github.com/noah-isme/teacher-transfer-api/internal/repository/memory"
	appErrors "github.com/noah-isme/teacher-transfer-api/pkg/errors"
	"github.com/noah-isme/teacher-transfer-api/pkg/ledger"
	"github.com/noah-isme/teacher-transfer-api/pkg/mailer"
)

type ledgerStub struct {
	mu       sync.Mutex
	commands []ledger.Command
	err      error
	block    bool
}

func (l *ledgerStub) Submit(ctx context.Context, cmd ledger.Command) error {
	if l.block {
		<-ctx.Done()
		return ctx.Err()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.commands = append(l.commands, cmd)
	return l.err
}

func (l *ledgerStub) operations() []ledger.Operation {
	l.mu.Lock()
	defer l.mu.Unlock()
	ops := make([]ledger.Operation, 0, len(l.commands))
	for _, cmd := range l.commands {
		ops = append(ops, cmd.Operation)
	}
	return ops
}

type gatewayStub struct {
	mu     sync.Mutex
	sent   []mailer.Message
	failTo map[string]error
}

func (g *gatewayStub) Send(ctx context.Context, msg mailer.Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err, ok := g.failTo[msg.To]; ok {
		return err
	}
	g.sent = append(g.sent, msg)
	return nil
}

func (g *gatewayStub) messages() []mailer.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]mailer.Message(nil), g.sent...)
}

type engineFixture struct {
	teachers  *memory.TeacherStore
	schools   *memory.SchoolStore
	vacancies *memory.VacancyStore
	outbox    *memory.LedgerOutboxStore
	ledger    *ledgerStub
	gateway   *gatewayStub
	logs      *observer.ObservedLogs
	svc       *TransferService
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	f := &engineFixture{
		teachers: memory.NewTeacherStore(),
		schools:  memory.NewSchoolStore(),
		outbox:   memory.NewLedgerOutboxStore(),
		ledger:   &ledgerStub{},
		gateway:  &gatewayStub{failTo: map[string]error{}},
		logs:     logs,
	}
	f.vacancies = memory.NewVacancyStore(f.schools)

	metrics := NewMetricsService()
	guard := NewMirrorGuard(f.ledger, f.outbox, 50*time.Millisecond, metrics, logger)
	allocator := NewVacancyAllocator(f.vacancies, metrics, logger)
	planner := NewNotificationPlanner(f.teachers, logger)
	dispatcher := NewNotificationDispatcher(f.gateway, memory.NewDeliveryLedger(time.Hour), time.Second, metrics, logger)
	fanout := NewNotificationFanout(dispatcher, nil, logger)
	f.svc = NewTransferService(f.teachers, f.vacancies, f.schools, allocator, guard, planner, fanout, logger, WithTransferMetrics(metrics))

	ctx := context.Background()
	require.NoError(t, f.schools.Create(ctx, &models.School{ID: "s-lincoln", Name: "Lincoln High", City: "Springfield"}))
	require.NoError(t, f.vacancies.Create(ctx, &models.Vacancy{ID: "v123", SchoolID: "s-lincoln", Grade: "10", Subject: "Physics"}))
	return f
}

func (f *engineFixture) addTeacher(t *testing.T, id, email string) {
	t.Helper()
	require.NoError(t, f.teachers.Create(context.Background(), &models.Teacher{
		ID:            id,
		Name:          "Teacher " + id,
		Email:         email,
		NationalID:    "NID-" + id,
		Role:          models.RoleTeacher,
		CurrentSchool: "Old School",
		LedgerAddress: "0x" + id,
	}))
}

func (f *engineFixture) teacher(t *testing.T, id string) *models.Teacher {
	t.Helper()
	teacher, err := f.teachers.FindByID(context.Background(), id)
	require.NoError(t, err)
	require.True(t, teacher.PendingConsistent(), "pending flag out of sync for %s", id)
	return teacher
}

func (f *engineFixture) vacancyStatus(t *testing.T, id string) models.VacancyStatus {
	t.Helper()
	vacancy, err := f.vacancies.FindByID(context.Background(), id)
	require.NoError(t, err)
	return vacancy.Status
}

func TestRequestTransferDecodesReference(t *testing.T) {
	f := newEngineFixture(t)
	f.addTeacher(t, "t1", "t1@example.com")

	ack, err := f.svc.RequestTransfer(context.Background(), "t1", models.RequestTransferRequest{SchoolRef: "Lincoln High|v123", Reason: "family"})
	require.NoError(t, err)
	assert.Equal(t, "Lincoln High", ack.SchoolName)
	assert.Equal(t, "v123", ack.VacancyID)
	assert.Equal(t, models.MirrorOK, ack.Mirror.Status)
	assert.False(t, ack.Replayed)

	teacher := f.teacher(t, "t1")
	assert.True(t, teacher.IsRequestPending)
	assert.Equal(t, "Lincoln High", teacher.NewSchoolRequest)
	assert.Equal(t, "v123", teacher.PendingVacancy())
	assert.Equal(t, "family", teacher.Reason)
	assert.Equal(t, []ledger.Operation{ledger.OpRequestSchoolChange}, f.ledger.operations())
}

func TestRequestTransferRejectsMalformedReference(t *testing.T) {
	f := newEngineFixture(t)
	f.addTeacher(t, "t1", "t1@example.com")

	for _, token := range []string{"no-pipe-here", "|v123", "Lincoln High|", " | "} {
		_, err := f.svc.RequestTransfer(context.Background(), "t1", models.RequestTransferRequest{SchoolRef: token})
		require.Error(t, err, token)
		assert.True(t, errors.Is(err, appErrors.ErrInvalidReference), token)
	}
	assert.False(t, f.teacher(t, "t1").IsRequestPending)
	assert.Empty(t, f.ledger.operations())
}

func TestRequestTransferPendingReplayAndConflict(t *testing.T) {
	f := newEngineFixture(t)
	f.addTeacher(t, "t1", "t1@example.com")
	ctx := context.Background()
	require.NoError(t, f.vacancies.Create(ctx, &models.Vacancy{ID: "v200", SchoolID: "s-lincoln", Grade: "11", Subject: "Math"}))

	_, err := f.svc.RequestTransfer(ctx, "t1", models.RequestTransferRequest{SchoolRef: "Lincoln High|v123"})
	require.NoError(t, err)
	version := f.teacher(t, "t1").Version

	ack, err := f.svc.RequestTransfer(ctx, "t1", models.RequestTransferRequest{SchoolRef: "Lincoln High|v123"})
	require.NoError(t, err)
	assert.True(t, ack.Replayed)
	assert.Equal(t, models.MirrorSkipped, ack.Mirror.Status)
	assert.Equal(t, version, f.teacher(t, "t1").Version)

	_, err = f.svc.RequestTransfer(ctx, "t1", models.RequestTransferRequest{SchoolRef: "Lincoln High|v200"})
	assert.True(t, errors.Is(err, appErrors.ErrAlreadyPending))
	assert.Equal(t, "v123", f.teacher(t, "t1").PendingVacancy())
}

func TestRequestTransferLookupFailures(t *testing.T) {
	f := newEngineFixture(t)
	f.addTeacher(t, "t1", "t1@example.com")
	ctx := context.Background()

	_, err := f.svc.RequestTransfer(ctx, "missing", models.RequestTransferRequest{SchoolRef: "Lincoln High|v123"})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = f.svc.RequestTransfer(ctx, "t1", models.RequestTransferRequest{SchoolRef: "Lincoln High|nope"})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	require.NoError(t, f.vacancies.FillIfPending(ctx, "v123", time.Now()))
	_, err = f.svc.RequestTransfer(ctx, "t1", models.RequestTransferRequest{SchoolRef: "Lincoln High|v123"})
	assert.True(t, errors.Is(err, appErrors.ErrAlreadyFilled))
	assert.False(t, f.teacher(t, "t1").IsRequestPending)
}

func TestRequestTransferRejectsSchoolNotOwningVacancy(t *testing.T) {
	f := newEngineFixture(t)
	f.addTeacher(t, "t1", "t1@example.com")
	ctx := context.Background()

	_, err := f.svc.RequestTransfer(ctx, "t1", models.RequestTransferRequest{SchoolRef: "Any Name|v123"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidReference))
	assert.False(t, f.teacher(t, "t1").IsRequestPending)
	assert.Empty(t, f.ledger.operations())

	_, err = f.svc.RequestTransfer(ctx, "t1", models.RequestTransferRequest{SchoolRef: "Lincoln High|v123"})
	require.NoError(t, err)
}

func TestApproveTransferCommitsFillsAndNotifies(t *testing.T) {
	f := newEngineFixture(t)
	f.addTeacher(t, "t1", "t1@example.com")
	f.addTeacher(t, "a", "a@example.com")
	f.addTeacher(t, "b", "b@example.com")
	ctx := context.Background()

	_, err := f.svc.RequestTransfer(ctx, "t1", models.RequestTransferRequest{SchoolRef: "Lincoln High|v123"})
	require.NoError(t, err)

	ack, err := f.svc.ApproveTransfer(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.AllocationFilled, ack.Allocation)
	assert.Equal(t, models.MirrorOK, ack.Mirror.Status)
	assert.NotEmpty(t, ack.NotificationEventID)

	teacher := f.teacher(t, "t1")
	assert.Equal(t, "Lincoln High", teacher.CurrentSchool)
	assert.False(t, teacher.IsRequestPending)
	assert.Empty(t, teacher.NewSchoolRequest)
	assert.Empty(t, teacher.Reason)
	assert.Nil(t, teacher.PendingVacancyID)
	require.NotNil(t, teacher.DateOfJoiningNewSchool)
	assert.Equal(t, models.VacancyStatusFilled, f.vacancyStatus(t, "v123"))

	sent := f.gateway.messages()
	require.Len(t, sent, 3)
	kinds := map[string]string{}
	for _, msg := range sent {
		kinds[msg.To] = msg.Kind
	}
	assert.Equal(t, string(models.NotificationTransferApproved), kinds["t1@example.com"])
	assert.Equal(t, string(models.NotificationTransferBroadcast), kinds["a@example.com"])
	assert.Equal(t, string(models.NotificationTransferBroadcast), kinds["b@example.com"])
}

func TestRejectAfterApproveFailsWithNoPendingRequest(t *testing.T) {
	f := newEngineFixture(t)
	f.addTeacher(t, "t1", "t1@example.com")
	ctx := context.Background()

	_, err := f.svc.RequestTransfer(ctx, "t1", models.RequestTransferRequest{SchoolRef: "Lincoln High|v123"})
	require.NoError(t, err)
	_, err = f.svc.ApproveTransfer(ctx, "t1")
	require.NoError(t, err)

	_, err = f.svc.RejectTransfer(ctx, "t1")
	assert.True(t, errors.Is(err, appErrors.ErrNoPendingRequest))
	_, err = f.svc.ApproveTransfer(ctx, "t1")
	assert.True(t, errors.Is(err, appErrors.ErrNoPendingRequest))
	_, err = f.svc.ApproveTransfer(ctx, "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestApproveTransferSurvivesLedgerFailure(t *testing.T) {
	f := newEngineFixture(t)
	f.addTeacher(t, "t1", "t1@example.com")
	ctx := context.Background()

	_, err := f.svc.RequestTransfer(ctx, "t1", models.RequestTransferRequest{SchoolRef: "Lincoln High|v123"})
	require.NoError(t, err)

	f.ledger.err = errors.New("ledger node unreachable")
	ack, err := f.svc.ApproveTransfer(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.MirrorFailed, ack.Mirror.Status)
	assert.True(t, ack.Mirror.Queued)
	assert.Equal(t, "Lincoln High", f.teacher(t, "t1").CurrentSchool)
	assert.Equal(t, models.VacancyStatusFilled, f.vacancyStatus(t, "v123"))

	entries := f.outbox.All()
	require.Len(t, entries, 1)
	assert.Equal(t, string(ledger.OpApproveSchoolChange), entries[0].Operation)
	assert.Equal(t, "t1", entries[0].TeacherID)

	warned := f.logs.FilterMessage("ledger mirror failed").All()
	require.Len(t, warned, 1)
	assert.Equal(t, zapcore.WarnLevel, warned[0].Level)
}

func TestApproveTransferTreatsSlowLedgerAsTimeout(t *testing.T) {
	f := newEngineFixture(t)
	f.addTeacher(t, "t1", "t1@example.com")
	ctx := context.Background()

	_, err := f.svc.RequestTransfer(ctx, "t1", models.RequestTransferRequest{SchoolRef: "Lincoln High|v123"})
	require.NoError(t, err)

	f.ledger.block = true
	ack, err := f.svc.ApproveTransfer(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.MirrorTimeout, ack.Mirror.Status)
	assert.True(t, ack.Mirror.Queued)
	assert.Equal(t, models.VacancyStatusFilled, f.vacancyStatus(t, "v123"))
}

func TestConcurrentApprovalsOnSameVacancy(t *testing.T) {
	f := newEngineFixture(t)
	f.addTeacher(t, "t1", "t1@example.com")
	f.addTeacher(t, "t2", "t2@example.com")
	ctx := context.Background()

	// Requesting does not lock the vacancy, so both teachers can hold it.
	for _, id := range []string{"t1", "t2"} {
		_, err := f.svc.RequestTransfer(ctx, id, models.RequestTransferRequest{SchoolRef: "Lincoln High|v123"})
		require.NoError(t, err)
	}

	type result struct {
		ack *models.TransferAck
		err error
	}
	results := make([]result, 2)
	var wg sync.WaitGroup
	for i, id := range []string{"t1", "t2"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			ack, err := f.svc.ApproveTransfer(ctx, id)
			results[i] = result{ack: ack, err: err}
		}(i, id)
	}
	wg.Wait()

	filled, lost := 0, 0
	for _, r := range results {
		require.NotNil(t, r.ack)
		switch r.ack.Allocation {
		case models.AllocationFilled:
			filled++
			assert.NoError(t, r.err)
		case models.AllocationAlreadyFilled:
			lost++
			assert.True(t, errors.Is(r.err, appErrors.ErrAlreadyFilled))
		default:
			t.Fatalf("unexpected allocation outcome %s", r.ack.Allocation)
		}
	}
	assert.Equal(t, 1, filled)
	assert.Equal(t, 1, lost)
	assert.Equal(t, models.VacancyStatusFilled, f.vacancyStatus(t, "v123"))

	for _, id := range []string{"t1", "t2"} {
		teacher := f.teacher(t, id)
		assert.Equal(t, "Lincoln High", teacher.CurrentSchool, id)
		assert.False(t, teacher.IsRequestPending, id)
	}
}

func TestApproveTransferWithMissingVacancyLogsInconsistency(t *testing.T) {
	f := newEngineFixture(t)
	f.addTeacher(t, "t1", "t1@example.com")
	ctx := context.Background()

	_, err := f.svc.RequestTransfer(ctx, "t1", models.RequestTransferRequest{SchoolRef: "Lincoln High|v123"})
	require.NoError(t, err)
	require.NoError(t, f.vacancies.Delete(ctx, "v123"))

	ack, err := f.svc.ApproveTransfer(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.AllocationNotFound, ack.Allocation)
	assert.Equal(t, "Lincoln High", f.teacher(t, "t1").CurrentSchool)

	logged := f.logs.FilterMessage("approved transfer references a missing vacancy").All()
	require.Len(t, logged, 1)
	assert.Equal(t, zapcore.ErrorLevel, logged[0].Level)
}

func TestRejectTransferKeepsVacancyOpenAndNotifiesRequesterOnly(t *testing.T) {
	f := newEngineFixture(t)
	f.addTeacher(t, "t1", "t1@example.com")
	f.addTeacher(t, "a", "a@example.com")
	ctx := context.Background()

	_, err := f.svc.RequestTransfer(ctx, "t1", models.RequestTransferRequest{SchoolRef: "Lincoln High|v123", Reason: "closer to home"})
	require.NoError(t, err)

	ack, err := f.svc.RejectTransfer(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TransferActionReject, ack.Action)

	teacher := f.teacher(t, "t1")
	assert.False(t, teacher.IsRequestPending)
	assert.Equal(t, "Old School", teacher.CurrentSchool)
	assert.Empty(t, teacher.Reason)
	assert.Equal(t, models.VacancyStatusPending, f.vacancyStatus(t, "v123"))

	sent := f.gateway.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "t1@example.com", sent[0].To)
	assert.Equal(t, string(models.NotificationTransferRejected), sent[0].Kind)
	assert.Contains(t, sent[0].Body, "Lincoln High")
	assert.Equal(t, []ledger.Operation{ledger.OpRequestSchoolChange, ledger.OpRejectSchoolChange}, f.ledger.operations())
}

func TestListPendingTransfers(t *testing.T) {
	f := newEngineFixture(t)
	f.addTeacher(t, "t1", "t1@example.com")
	f.addTeacher(t, "t2", "t2@example.com")

	_, err := f.svc.RequestTransfer(context.Background(), "t2", models.RequestTransferRequest{SchoolRef: "Lincoln High|v123"})
	require.NoError(t, err)

	pending, err := f.svc.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "t2", pending[0].ID)
}

func approveCmd() ledger.Command {
	return ledger.ApproveSchoolChange(ledger.Ref{TeacherID: "t1", Address: "0xabc"})
}
