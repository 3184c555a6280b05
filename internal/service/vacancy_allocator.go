package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/teacher-transfer-api/internal/models"
)

type vacancyAllocationStore interface {
	FindByID(ctx context.Context, id string) (*models.Vacancy, error)
	FillIfPending(ctx context.Context, id string, filledAt time.Time) error
}

// VacancyAllocator moves a vacancy from pending to filled with a conditional write, so exactly one
// approval wins a given vacancy while approvals for other vacancies proceed independently.
type VacancyAllocator struct {
	store    vacancyAllocationStore
	listings *ListingCache
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// VacancyAllocatorOption configures the allocator.
type VacancyAllocatorOption func(*VacancyAllocator)

// WithAllocationListingCache drops the open listing whenever a vacancy is filled.
func WithAllocationListingCache(listings *ListingCache) VacancyAllocatorOption {
	return func(a *VacancyAllocator) {
		a.listings = listings
	}
}

// NewVacancyAllocator constructs the allocator.
func NewVacancyAllocator(store vacancyAllocationStore, metrics *MetricsService, logger *zap.Logger, opts ...VacancyAllocatorOption) *VacancyAllocator {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &VacancyAllocator{store: store, metrics: metrics, logger: logger, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Allocate fills vacancyID. A lost race reports AllocationAlreadyFilled; a missing row reports
// AllocationNotFound. The error is only set alongside AllocationUnknown.
func (a *VacancyAllocator) Allocate(ctx context.Context, vacancyID string) (outcome models.AllocationOutcome, err error) {
	defer func() { a.metrics.RecordAllocation(outcome) }()

	err = a.store.FillIfPending(ctx, vacancyID, a.now())
	if err == nil {
		a.listings.InvalidateOpenVacancies(ctx)
		return models.AllocationFilled, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.AllocationUnknown, fmt.Errorf("fill vacancy %s: %w", vacancyID, err)
	}

	vacancy, err := a.store.FindByID(ctx, vacancyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.AllocationNotFound, nil
		}
		return models.AllocationUnknown, fmt.Errorf("load vacancy %s: %w", vacancyID, err)
	}
	if vacancy.Status == models.VacancyStatusFilled {
		return models.AllocationAlreadyFilled, nil
	}
	// The conditional write missed a row that now reads as pending; it was replaced underneath us.
	a.logger.Warn("vacancy changed during allocation", zap.String("vacancy_id", vacancyID))
	return models.AllocationUnknown, fmt.Errorf("vacancy %s changed during allocation", vacancyID)
}
