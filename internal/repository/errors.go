package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	// ErrDuplicate is returned when a write violates a unique index.
	ErrDuplicate = errors.New("repository: duplicate key")
	// ErrReferenced is returned when a delete is blocked by rows that still reference the target.
	ErrReferenced = errors.New("repository: still referenced")
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

func translateUnique(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Constraint)
	}
	return err
}

func translateForeignKey(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
		return fmt.Errorf("%w: %s", ErrReferenced, pqErr.Constraint)
	}
	return err
}
