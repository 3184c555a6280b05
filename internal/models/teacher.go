package models

import "time"

// ServiceType distinguishes permanent from contract staff.
type ServiceType string

const (
	ServiceTypeRegular  ServiceType = "REGULAR"
	ServiceTypeContract ServiceType = "CONTRACT"
)

// Teacher is a personnel record together with its transfer workflow state.
//
// IsRequestPending is true exactly when NewSchoolRequest and PendingVacancyID are both set.
type Teacher struct {
	ID                     string      `db:"id" json:"id"`
	Name                   string      `db:"name" json:"name"`
	Email                  string      `db:"email" json:"email"`
	NationalID             string      `db:"national_id" json:"nationalId"`
	Role                   UserRole    `db:"role" json:"role"`
	ServiceType            ServiceType `db:"service_type" json:"serviceType"`
	DateOfBirth            *time.Time  `db:"date_of_birth" json:"dateOfBirth,omitempty"`
	ContactNumber          string      `db:"contact_number" json:"contactNumber"`
	InitialAppointment     string      `db:"initial_appointment" json:"initialAppointment"`
	Experience             string      `db:"experience" json:"experience"`
	Grade                  string      `db:"grade" json:"grade"`
	MaritalStatus          string      `db:"marital_status" json:"maritalStatus"`
	HomeAddress            string      `db:"home_address" json:"homeAddress"`
	CurrentSchool          string      `db:"current_school" json:"currentSchool"`
	PostedAs               string      `db:"posted_as" json:"postedAs"`
	DateOfJoining          *time.Time  `db:"date_of_joining" json:"dateOfJoining,omitempty"`
	DateOfJoiningNewSchool *time.Time  `db:"date_of_joining_new_school" json:"dateOfJoiningNewSchool,omitempty"`
	IsRequestPending       bool        `db:"is_request_pending" json:"isRequestPending"`
	NewSchoolRequest       string      `db:"new_school_request" json:"newSchoolRequest"`
	PendingVacancyID       *string     `db:"pending_vacancy_id" json:"pendingVacancyId,omitempty"`
	Reason                 string      `db:"reason" json:"reason"`
	LedgerAddress          string      `db:"ledger_address" json:"ledgerAddress"`
	Version                int64       `db:"version" json:"version"`
	CreatedAt              time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt              time.Time   `db:"updated_at" json:"updatedAt"`
}

// PendingConsistent reports whether the pending flag agrees with the request fields.
func (t *Teacher) PendingConsistent() bool {
	hasRequest := t.NewSchoolRequest != "" && t.PendingVacancyID != nil && *t.PendingVacancyID != ""
	return t.IsRequestPending == hasRequest
}

// PendingVacancy returns the referenced vacancy id or "".
func (t *Teacher) PendingVacancy() string {
	if t.PendingVacancyID == nil {
		return ""
	}
	return *t.PendingVacancyID
}

// TeacherFilter captures filtering options for listing teachers.
type TeacherFilter struct {
	Search        string
	Pending       *bool
	CurrentSchool string
	Role          UserRole
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}

// TransferRequestFields is the request half of the workflow state written by RequestTransfer.
type TransferRequestFields struct {
	SchoolName string
	VacancyID  string
	Reason     string
}

// TeacherProfile holds the columns editable outside the transfer workflow.
type TeacherProfile struct {
	Name               string      `json:"name" validate:"required,min=2"`
	ServiceType        ServiceType `json:"serviceType" validate:"omitempty,oneof=REGULAR CONTRACT"`
	DateOfBirth        *time.Time  `json:"dateOfBirth,omitempty"`
	ContactNumber      string      `json:"contactNumber" validate:"omitempty,max=32"`
	InitialAppointment string      `json:"initialAppointment"`
	Experience         string      `json:"experience"`
	Grade              string      `json:"grade"`
	MaritalStatus      string      `json:"maritalStatus"`
	HomeAddress        string      `json:"homeAddress"`
	PostedAs           string      `json:"postedAs"`
}

// ProfileOf extracts the editable profile columns.
func ProfileOf(t *Teacher) TeacherProfile {
	return TeacherProfile{
		Name:               t.Name,
		ServiceType:        t.ServiceType,
		DateOfBirth:        t.DateOfBirth,
		ContactNumber:      t.ContactNumber,
		InitialAppointment: t.InitialAppointment,
		Experience:         t.Experience,
		Grade:              t.Grade,
		MaritalStatus:      t.MaritalStatus,
		HomeAddress:        t.HomeAddress,
		PostedAs:           t.PostedAs,
	}
}

// ApplyProfile copies profile columns onto t.
func (t *Teacher) ApplyProfile(p TeacherProfile) {
	t.Name = p.Name
	t.ServiceType = p.ServiceType
	t.DateOfBirth = p.DateOfBirth
	t.ContactNumber = p.ContactNumber
	t.InitialAppointment = p.InitialAppointment
	t.Experience = p.Experience
	t.Grade = p.Grade
	t.MaritalStatus = p.MaritalStatus
	t.HomeAddress = p.HomeAddress
	t.PostedAs = p.PostedAs
}

// RegisterTeacherRequest is the registration payload.
type RegisterTeacherRequest struct {
	Name               string      `json:"name" validate:"required,min=2"`
	Email              string      `json:"email" validate:"required,email"`
	NationalID         string      `json:"nationalId" validate:"required,min=5,max=32"`
	Role               UserRole    `json:"role" validate:"omitempty,oneof=TEACHER HEADMASTER DEO"`
	ServiceType        ServiceType `json:"serviceType" validate:"omitempty,oneof=REGULAR CONTRACT"`
	DateOfBirth        *time.Time  `json:"dateOfBirth,omitempty"`
	ContactNumber      string      `json:"contactNumber" validate:"omitempty,max=32"`
	InitialAppointment string      `json:"initialAppointment"`
	Experience         string      `json:"experience"`
	Grade              string      `json:"grade"`
	MaritalStatus      string      `json:"maritalStatus"`
	HomeAddress        string      `json:"homeAddress"`
	CurrentSchool      string      `json:"currentSchool" validate:"required"`
	PostedAs           string      `json:"postedAs"`
	DateOfJoining      *time.Time  `json:"dateOfJoining,omitempty"`
}

// UpdateProfileRequest carries the expected version for optimistic concurrency.
type UpdateProfileRequest struct {
	Version int64 `json:"version" validate:"required,min=1"`
	TeacherProfile
}
