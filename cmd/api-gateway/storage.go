package main

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/teacher-transfer-api/internal/models"
	"github.com/noah-isme/teacher-transfer-api/internal/repository"
	"github.com/noah-isme/teacher-transfer-api/internal/repository/memory"
	"github.com/noah-isme/teacher-transfer-api/pkg/config"
	"github.com/noah-isme/teacher-transfer-api/pkg/database"
)

type teacherStore interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error)
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	FindByEmail(ctx context.Context, email string) (*models.Teacher, error)
	FindByNationalID(ctx context.Context, nationalID string) (*models.Teacher, error)
	ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error)
	ExistsByNationalID(ctx context.Context, nationalID string, excludeID string) (bool, error)
	Create(ctx context.Context, teacher *models.Teacher) error
	UpdateProfile(ctx context.Context, id string, expectedVersion int64, profile models.TeacherProfile) (*models.Teacher, error)
	MarkTransferRequested(ctx context.Context, id string, fields models.TransferRequestFields) (*models.Teacher, error)
	CompleteTransfer(ctx context.Context, id string, expected models.SchoolRef, joinedAt time.Time) (*models.Teacher, error)
	ClearTransferRequest(ctx context.Context, id string, expected models.SchoolRef) (*models.Teacher, error)
	ListBroadcastRecipients(ctx context.Context) ([]models.Teacher, error)
	ListByRole(ctx context.Context, role models.UserRole) ([]models.Teacher, error)
	ListPendingTransfers(ctx context.Context) ([]models.Teacher, error)
	CountPendingForVacancy(ctx context.Context, vacancyID string) (int, error)
	Delete(ctx context.Context, id string) error
}

type schoolStore interface {
	List(ctx context.Context, search string) ([]models.School, error)
	FindByID(ctx context.Context, id string) (*models.School, error)
	FindByName(ctx context.Context, name string) (*models.School, error)
	Create(ctx context.Context, school *models.School) error
	Update(ctx context.Context, school *models.School) error
	Delete(ctx context.Context, id string) error
}

type vacancyStore interface {
	Create(ctx context.Context, vacancy *models.Vacancy) error
	FindByID(ctx context.Context, id string) (*models.Vacancy, error)
	ListOpen(ctx context.Context) ([]models.VacancyListing, error)
	FillIfPending(ctx context.Context, id string, filledAt time.Time) error
	Delete(ctx context.Context, id string) error
}

type editRequestStore interface {
	Create(ctx context.Context, req *models.EditRequest) error
	GetByID(ctx context.Context, id string) (*models.EditRequest, error)
	List(ctx context.Context, filter models.EditRequestFilter) ([]models.EditRequest, error)
	UpdateStatus(ctx context.Context, params repository.ReviewEditRequestParams) error
}

type outboxStore interface {
	Enqueue(ctx context.Context, entry *models.LedgerOutboxEntry) error
	ListPending(ctx context.Context, limit int) ([]models.LedgerOutboxEntry, error)
	HasPending(ctx context.Context, teacherID string) (bool, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, cause string, abandon bool) error
}

// stores is the authoritative record set selected by STORAGE_DRIVER.
type stores struct {
	teachers     teacherStore
	schools      schoolStore
	vacancies    vacancyStore
	editRequests editRequestStore
	outbox       outboxStore
	db           *sqlx.DB
}

func (s *stores) ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

func (s *stores) close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func openStores(cfg *config.Config, logger *zap.Logger) (*stores, error) {
	if cfg.Storage.Driver == config.StorageDriverMemory {
		logger.Warn("using in-memory storage; data is lost on restart")
		schools := memory.NewSchoolStore()
		return &stores{
			teachers:     memory.NewTeacherStore(),
			schools:      schools,
			vacancies:    memory.NewVacancyStore(schools),
			editRequests: memory.NewEditRequestStore(),
			outbox:       memory.NewLedgerOutboxStore(),
		}, nil
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.AutoMigrate {
		if err := database.Migrate(db, cfg.Storage.MigrationsPath, logger); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return &stores{
		teachers:     repository.NewTeacherRepository(db),
		schools:      repository.NewSchoolRepository(db),
		vacancies:    repository.NewVacancyRepository(db),
		editRequests: repository.NewEditRequestRepository(db),
		outbox:       repository.NewLedgerOutboxRepository(db),
		db:           db,
	}, nil
}
