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
	appErrors "github.com/noah-isme/teacher-transfer-api/pkg/errors"
	"github.com/noah-isme/teacher-transfer-api/pkg/ledger"
)

type teacherFixture struct {
	store   *memory.TeacherStore
	ledger  *ledgerStub
	gateway *gatewayStub
	svc     *TeacherService
}

func newTeacherFixture() *teacherFixture {
	store := memory.NewTeacherStore()
	mirror := &ledgerStub{}
	gateway := &gatewayStub{}
	dispatcher := NewNotificationDispatcher(gateway, nil, time.Second, nil, nil)
	svc := NewTeacherService(store, nil, NewMirrorGuard(mirror, nil, time.Second, nil, nil), NewNotificationPlanner(store, nil), NewNotificationFanout(dispatcher, nil, nil), nil)
	return &teacherFixture{store: store, ledger: mirror, gateway: gateway, svc: svc}
}

func registration(email, nationalID string) models.RegisterTeacherRequest {
	return models.RegisterTeacherRequest{
		Name:          "Grace Hopper",
		Email:         email,
		NationalID:    nationalID,
		CurrentSchool: "Old School",
		PostedAs:      "Lecturer",
	}
}

func TestTeacherServiceRegister(t *testing.T) {
	f := newTeacherFixture()

	teacher, err := f.svc.Register(context.Background(), registration(" grace@example.com ", "NID-00001"))
	require.NoError(t, err)
	assert.NotEmpty(t, teacher.ID)
	assert.Equal(t, "grace@example.com", teacher.Email)
	assert.Equal(t, models.RoleTeacher, teacher.Role)
	assert.Equal(t, models.ServiceTypeRegular, teacher.ServiceType)
	assert.True(t, ledger.ValidAddress(teacher.LedgerAddress))
	assert.False(t, teacher.IsRequestPending)

	require.Len(t, f.ledger.commands, 1)
	cmd := f.ledger.commands[0]
	assert.Equal(t, ledger.OpRegisterTeacher, cmd.Operation)
	assert.Equal(t, teacher.LedgerAddress, cmd.Ref.Address)
	require.NotNil(t, cmd.Profile)
	assert.Equal(t, "NID-00001", cmd.Profile.NationalID)

	sent := f.gateway.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, string(models.NotificationAccountCreated), sent[0].Kind)
	assert.Contains(t, sent[0].Body, teacher.LedgerAddress)
}

func TestTeacherServiceRegisterRejectsDuplicatesAndBadPayloads(t *testing.T) {
	f := newTeacherFixture()
	ctx := context.Background()
	_, err := f.svc.Register(ctx, registration("grace@example.com", "NID-00001"))
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, registration("grace@example.com", "NID-00002"))
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	_, err = f.svc.Register(ctx, registration("other@example.com", "NID-00001"))
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	_, err = f.svc.Register(ctx, registration("not-an-email", "NID-00003"))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	bad := registration("x@example.com", "NID-00004")
	bad.Role = "PRINCIPAL"
	_, err = f.svc.Register(ctx, bad)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestTeacherServiceUpdateProfileUsesVersion(t *testing.T) {
	f := newTeacherFixture()
	ctx := context.Background()
	teacher, err := f.svc.Register(ctx, registration("grace@example.com", "NID-00001"))
	require.NoError(t, err)

	profile := models.ProfileOf(teacher)
	profile.Name = "Grace B. Hopper"
	profile.HomeAddress = "Arlington"

	updated, err := f.svc.UpdateProfile(ctx, teacher.ID, models.UpdateProfileRequest{Version: teacher.Version, TeacherProfile: profile})
	require.NoError(t, err)
	assert.Equal(t, "Grace B. Hopper", updated.Name)
	assert.Equal(t, "Arlington", updated.HomeAddress)
	assert.Equal(t, teacher.Version+1, updated.Version)
	assert.Equal(t, teacher.LedgerAddress, updated.LedgerAddress)
	assert.Equal(t, teacher.CurrentSchool, updated.CurrentSchool)

	_, err = f.svc.UpdateProfile(ctx, teacher.ID, models.UpdateProfileRequest{Version: teacher.Version, TeacherProfile: profile})
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))

	_, err = f.svc.UpdateProfile(ctx, "missing", models.UpdateProfileRequest{Version: 1, TeacherProfile: profile})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestTeacherServiceLookupsAndDelete(t *testing.T) {
	f := newTeacherFixture()
	ctx := context.Background()
	teacher, err := f.svc.Register(ctx, registration("grace@example.com", "NID-00001"))
	require.NoError(t, err)

	found, err := f.svc.FindByNationalID(ctx, " NID-00001 ")
	require.NoError(t, err)
	assert.Equal(t, teacher.ID, found.ID)

	found, err = f.svc.GetByEmail(ctx, "GRACE@example.com")
	require.NoError(t, err)
	assert.Equal(t, teacher.ID, found.ID)

	list, pagination, err := f.svc.List(ctx, models.TeacherFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, pagination)

	require.NoError(t, f.svc.Delete(ctx, teacher.ID))
	assert.Equal(t, []ledger.Operation{ledger.OpRegisterTeacher, ledger.OpRemoveTeacher}, f.ledger.operations())

	_, err = f.svc.Get(ctx, teacher.ID)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.True(t, errors.Is(f.svc.Delete(ctx, teacher.ID), appErrors.ErrNotFound))
}
