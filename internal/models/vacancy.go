package models

import "time"

// VacancyStatus only ever moves from pending to filled.
type VacancyStatus string

const (
	VacancyStatusPending VacancyStatus = "pending"
	VacancyStatusFilled  VacancyStatus = "filled"
)

// Vacancy is an open posting at a school.
type Vacancy struct {
	ID        string        `db:"id" json:"id"`
	SchoolID  string        `db:"school_id" json:"schoolId"`
	Grade     string        `db:"grade" json:"grade"`
	Subject   string        `db:"subject" json:"subject"`
	Status    VacancyStatus `db:"status" json:"status"`
	CreatedAt time.Time     `db:"created_at" json:"createdAt"`
	FilledAt  *time.Time    `db:"filled_at" json:"filledAt,omitempty"`
}

// VacancyListing is an open vacancy enriched with school facts and its reference token.
type VacancyListing struct {
	ID         string        `db:"id" json:"id"`
	SchoolID   string        `db:"school_id" json:"schoolId"`
	SchoolName string        `db:"school_name" json:"schoolName"`
	City       string        `db:"city" json:"city"`
	Grade      string        `db:"grade" json:"grade"`
	Subject    string        `db:"subject" json:"subject"`
	Status     VacancyStatus `db:"status" json:"status"`
	Reference  string        `db:"-" json:"reference"`
}

// CreateVacancyRequest is the administrative add payload.
type CreateVacancyRequest struct {
	SchoolID string `json:"schoolId" validate:"required"`
	Grade    string `json:"grade" validate:"required"`
	Subject  string `json:"subject" validate:"required"`
}

// AllocationOutcome is the result of trying to fill a vacancy.
type AllocationOutcome string

const (
	AllocationFilled        AllocationOutcome = "FILLED"
	AllocationAlreadyFilled AllocationOutcome = "ALREADY_FILLED"
	AllocationNotFound      AllocationOutcome = "NOT_FOUND"
	AllocationUnknown       AllocationOutcome = "UNKNOWN" // store failed before an outcome was observed
)
