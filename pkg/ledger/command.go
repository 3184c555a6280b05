package ledger

import (
	"errors"
	"strings"
)

// Operation names a fact mirrored on the ledger.
type Operation string

const (
	OpRequestSchoolChange Operation = "REQUEST_SCHOOL_CHANGE"
	OpApproveSchoolChange Operation = "APPROVE_SCHOOL_CHANGE"
	OpRejectSchoolChange  Operation = "REJECT_SCHOOL_CHANGE"
	OpRegisterTeacher     Operation = "REGISTER_TEACHER"
	OpRemoveTeacher       Operation = "REMOVE_TEACHER"
)

// ErrInvalidCommand is returned for commands missing their subject.
var ErrInvalidCommand = errors.New("ledger: invalid command")

// Ref identifies the teacher a command is about.
type Ref struct {
	TeacherID string `json:"teacherId"`
	Address   string `json:"address"`
}

// Profile carries the identity facts mirrored on registration.
type Profile struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	NationalID    string `json:"nationalId"`
	CurrentSchool string `json:"currentSchool"`
	PostedAs      string `json:"postedAs"`
}

// Command is a single ledger write. It is the unit stored in the outbox for replay.
type Command struct {
	Operation  Operation `json:"operation"`
	Ref        Ref       `json:"ref"`
	SchoolName string    `json:"schoolName,omitempty"`
	Profile    *Profile  `json:"profile,omitempty"`
}

// Validate checks the command has an operation and an addressable subject.
func (c Command) Validate() error {
	if c.Operation == "" {
		return errors.Join(ErrInvalidCommand, errors.New("operation is required"))
	}
	if strings.TrimSpace(c.Ref.TeacherID) == "" && strings.TrimSpace(c.Ref.Address) == "" {
		return errors.Join(ErrInvalidCommand, errors.New("teacher id or address is required"))
	}
	if c.Operation == OpRequestSchoolChange && strings.TrimSpace(c.SchoolName) == "" {
		return errors.Join(ErrInvalidCommand, errors.New("school name is required"))
	}
	return nil
}

func RequestSchoolChange(ref Ref, schoolName string) Command {
	return Command{Operation: OpRequestSchoolChange, Ref: ref, SchoolName: schoolName}
}

func ApproveSchoolChange(ref Ref) Command {
	return Command{Operation: OpApproveSchoolChange, Ref: ref}
}

func RejectSchoolChange(ref Ref) Command {
	return Command{Operation: OpRejectSchoolChange, Ref: ref}
}

func RegisterTeacher(ref Ref, profile Profile) Command {
	return Command{Operation: OpRegisterTeacher, Ref: ref, Profile: &profile}
}

func RemoveTeacher(ref Ref) Command {
	return Command{Operation: OpRemoveTeacher, Ref: ref}
}
