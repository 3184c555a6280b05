package models

import "time"

// EditRequestStatus captures workflow states for profile edit requests.
type EditRequestStatus string

const (
	EditRequestPending  EditRequestStatus = "PENDING"
	EditRequestApplying EditRequestStatus = "APPLYING"
	EditRequestApproved EditRequestStatus = "APPROVED"
	EditRequestRejected EditRequestStatus = "REJECTED"
)

// EditRequest is a teacher-proposed profile change awaiting review.
type EditRequest struct {
	ID               string            `db:"id" json:"id"`
	TeacherID        string            `db:"teacher_id" json:"teacherId"`
	Name             string            `db:"name" json:"name"`
	Email            string            `db:"email" json:"email"`
	RequestedChanges []byte            `db:"requested_changes" json:"requestedChanges"`
	Reason           string            `db:"reason" json:"reason"`
	Status           EditRequestStatus `db:"status" json:"status"`
	ReviewedBy       *string           `db:"reviewed_by" json:"reviewedBy,omitempty"`
	RequestedAt      time.Time         `db:"requested_at" json:"requestedAt"`
	ReviewedAt       *time.Time        `db:"reviewed_at" json:"reviewedAt,omitempty"`
	Note             *string           `db:"note" json:"note,omitempty"`
}

// EditRequestFilter constrains listing queries.
type EditRequestFilter struct {
	Status    []EditRequestStatus
	TeacherID string
	Email     string
	Limit     int
	Offset    int
}

// SubmitEditRequest is the payload a teacher sends.
type SubmitEditRequest struct {
	Changes map[string]interface{} `json:"changes" validate:"required,min=1"`
	Reason  string                 `json:"reason" validate:"max=1000"`
}

// ReviewEditRequest is the reviewer's decision payload.
type ReviewEditRequest struct {
	Note string `json:"note" validate:"max=1000"`
}
