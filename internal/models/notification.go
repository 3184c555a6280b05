package models

import "time"

// NotificationKind classifies planned messages.
type NotificationKind string

const (
	NotificationTransferApproved  NotificationKind = "TRANSFER_APPROVED"
	NotificationTransferBroadcast NotificationKind = "TRANSFER_BROADCAST"
	NotificationTransferRejected  NotificationKind = "TRANSFER_REJECTED"
	NotificationVacancyAnnounced  NotificationKind = "VACANCY_ANNOUNCED"
	NotificationAccountCreated    NotificationKind = "ACCOUNT_CREATED"
	NotificationEditSubmitted     NotificationKind = "EDIT_REQUEST_SUBMITTED"
	NotificationEditReviewed      NotificationKind = "EDIT_REQUEST_REVIEWED"
)

// PlannedMessage is one (recipient, subject, body) entry of a fan-out plan.
type PlannedMessage struct {
	TeacherID string           `json:"teacherId,omitempty"`
	Email     string           `json:"email"`
	Name      string           `json:"name"`
	Kind      NotificationKind `json:"kind"`
	Subject   string           `json:"subject"`
	Body      string           `json:"body"`
}

// NotificationEvent is an ordered, deduplicated plan bound to an id used for delivery dedupe.
type NotificationEvent struct {
	ID        string           `json:"id"`
	Kind      NotificationKind `json:"kind"`
	SubjectID string           `json:"subjectId"`
	Messages  []PlannedMessage `json:"messages"`
	CreatedAt time.Time        `json:"createdAt"`
}

// DeliveryStatus is the per-recipient outcome.
type DeliveryStatus string

const (
	DeliverySent      DeliveryStatus = "SENT"
	DeliveryFailed    DeliveryStatus = "FAILED"
	DeliveryDuplicate DeliveryStatus = "DUPLICATE"
)

// DeliveryResult records one recipient's delivery attempt.
type DeliveryResult struct {
	Email  string         `json:"email"`
	Status DeliveryStatus `json:"status"`
	Error  string         `json:"error,omitempty"`
}

// DeliveryReport aggregates an event's results. Failures never escalate past it.
type DeliveryReport struct {
	EventID string           `json:"eventId"`
	Results []DeliveryResult `json:"results"`
	Sent    int              `json:"sent"`
	Failed  int              `json:"failed"`
	Skipped int              `json:"skipped"`
}
