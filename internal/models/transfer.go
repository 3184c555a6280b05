package models

import (
	"errors"
	"strings"
	"time"
)

// SchoolRefSeparator joins the two halves of a school reference token.
const SchoolRefSeparator = "|"

// ErrMalformedSchoolRef is returned when a token does not split into two non-empty parts.
var ErrMalformedSchoolRef = errors.New("school reference must look like \"<school name>|<vacancy id>\"")

// SchoolRef is the decoded form of the "<schoolName>|<vacancyId>" token clients send.
type SchoolRef struct {
	SchoolName string
	VacancyID  string
}

// ParseSchoolRef splits on the first separator. Both halves are trimmed and must be non-empty.
func ParseSchoolRef(token string) (SchoolRef, error) {
	name, vacancy, ok := strings.Cut(token, SchoolRefSeparator)
	if !ok {
		return SchoolRef{}, ErrMalformedSchoolRef
	}
	ref := SchoolRef{SchoolName: strings.TrimSpace(name), VacancyID: strings.TrimSpace(vacancy)}
	if ref.SchoolName == "" || ref.VacancyID == "" {
		return SchoolRef{}, ErrMalformedSchoolRef
	}
	return ref, nil
}

// String encodes the reference back into its token form.
func (r SchoolRef) String() string {
	return r.SchoolName + SchoolRefSeparator + r.VacancyID
}

// TransferAction names a workflow transition.
type TransferAction string

const (
	TransferActionRequest TransferAction = "REQUEST"
	TransferActionApprove TransferAction = "APPROVE"
	TransferActionReject  TransferAction = "REJECT"
)

// RequestTransferRequest is the self-service request payload.
type RequestTransferRequest struct {
	SchoolRef string `json:"schoolRef" validate:"required"`
	Reason    string `json:"reason" validate:"max=1000"`
}

// MirrorStatus is the observed outcome of a best-effort ledger call.
type MirrorStatus string

const (
	MirrorOK      MirrorStatus = "OK"
	MirrorFailed  MirrorStatus = "FAILED"
	MirrorTimeout MirrorStatus = "TIMEOUT"
	MirrorSkipped MirrorStatus = "SKIPPED"
	// MirrorDeferred means the call queued behind earlier undelivered commands for the same teacher.
	MirrorDeferred MirrorStatus = "DEFERRED"
)

// MirrorResult records a ledger attempt. It is logged and returned, never raised.
type MirrorResult struct {
	Operation string        `json:"operation"`
	Status    MirrorStatus  `json:"status"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"durationNs"`
	Queued    bool          `json:"queued"`
}

// OK reports whether the ledger accepted the write.
func (r MirrorResult) OK() bool { return r.Status == MirrorOK }

// TransferAck acknowledges a committed transition.
type TransferAck struct {
	TeacherID           string            `json:"teacherId"`
	Action              TransferAction    `json:"action"`
	SchoolName          string            `json:"schoolName,omitempty"`
	VacancyID           string            `json:"vacancyId,omitempty"`
	Replayed            bool              `json:"replayed,omitempty"`
	Allocation          AllocationOutcome `json:"allocation,omitempty"`
	Mirror              MirrorResult      `json:"mirror"`
	NotificationEventID string            `json:"notificationEventId,omitempty"`
	At                  time.Time         `json:"at"`
}
