package memory

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/noah-isme/teacher-transfer-api/internal/models"
)

// TeacherStore keeps teachers plus unique indexes on email and national id.
type TeacherStore struct {
	rows        *xsync.Map[string, models.Teacher]
	emails      *xsync.Map[string, string]
	nationalIDs *xsync.Map[string, string]
	now         func() time.Time
}

// NewTeacherStore constructs an empty store.
func NewTeacherStore() *TeacherStore {
	return &TeacherStore{
		rows:        xsync.NewMap[string, models.Teacher](),
		emails:      xsync.NewMap[string, string](),
		nationalIDs: xsync.NewMap[string, string](),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// List filters, sorts and pages teachers; it also returns the unpaged total.
func (s *TeacherStore) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	var matched []models.Teacher
	s.rows.Range(func(_ string, t models.Teacher) bool {
		if filter.Pending != nil && t.IsRequestPending != *filter.Pending {
			return true
		}
		if filter.CurrentSchool != "" && !strings.EqualFold(t.CurrentSchool, filter.CurrentSchool) {
			return true
		}
		if filter.Role != "" && t.Role != filter.Role {
			return true
		}
		if search != "" && !containsFold(t.Name, search) && !containsFold(t.Email, search) && !strings.Contains(t.NationalID, search) {
			return true
		}
		matched = append(matched, t)
		return true
	})

	desc := !strings.EqualFold(filter.SortOrder, "ASC")
	key := func(t models.Teacher) string {
		switch filter.SortBy {
		case "name":
			return t.Name
		case "email":
			return t.Email
		case "current_school":
			return t.CurrentSchool
		case "updated_at":
			return t.UpdatedAt.Format(time.RFC3339Nano)
		default:
			return t.CreatedAt.Format(time.RFC3339Nano)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := key(matched[i]), key(matched[j])
		if a == b {
			return matched[i].ID < matched[j].ID
		}
		if desc {
			return a > b
		}
		return a < b
	})

	start, end := page(len(matched), filter.Page, filter.PageSize)
	return matched[start:end], len(matched), nil
}

// FindByID returns a copy of the teacher or sql.ErrNoRows.
func (s *TeacherStore) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	t, ok := s.rows.Load(id)
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &t, nil
}

// FindByEmail looks a teacher up by case-folded email.
func (s *TeacherStore) FindByEmail(ctx context.Context, email string) (*models.Teacher, error) {
	id, ok := s.emails.Load(normalizeEmail(email))
	if !ok {
		return nil, sql.ErrNoRows
	}
	return s.FindByID(ctx, id)
}

// FindByNationalID looks a teacher up by national id.
func (s *TeacherStore) FindByNationalID(ctx context.Context, nationalID string) (*models.Teacher, error) {
	id, ok := s.nationalIDs.Load(strings.TrimSpace(nationalID))
	if !ok {
		return nil, sql.ErrNoRows
	}
	return s.FindByID(ctx, id)
}

// ExistsByEmail reports whether another teacher holds email.
func (s *TeacherStore) ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error) {
	id, ok := s.emails.Load(normalizeEmail(email))
	return ok && id != excludeID, nil
}

// ExistsByNationalID reports whether another teacher holds nationalID.
func (s *TeacherStore) ExistsByNationalID(ctx context.Context, nationalID string, excludeID string) (bool, error) {
	if strings.TrimSpace(nationalID) == "" {
		return false, nil
	}
	id, ok := s.nationalIDs.Load(strings.TrimSpace(nationalID))
	return ok && id != excludeID, nil
}

// Create claims both unique indexes before storing the row.
func (s *TeacherStore) Create(ctx context.Context, teacher *models.Teacher) error {
	if teacher.ID == "" {
		teacher.ID = uuid.NewString()
	}
	now := s.now()
	if teacher.CreatedAt.IsZero() {
		teacher.CreatedAt = now
	}
	teacher.UpdatedAt = now
	if teacher.Version == 0 {
		teacher.Version = 1
	}

	email := normalizeEmail(teacher.Email)
	if _, loaded := s.emails.LoadOrStore(email, teacher.ID); loaded {
		return ErrDuplicateKey
	}
	nid := strings.TrimSpace(teacher.NationalID)
	if _, loaded := s.nationalIDs.LoadOrStore(nid, teacher.ID); loaded {
		s.emails.Delete(email)
		return ErrDuplicateKey
	}
	if _, loaded := s.rows.LoadOrStore(teacher.ID, *teacher); loaded {
		s.emails.Delete(email)
		s.nationalIDs.Delete(nid)
		return ErrDuplicateKey
	}
	return nil
}

// update applies mutate under the record's bucket lock. mutate returning false leaves the row untouched.
func (s *TeacherStore) update(id string, mutate func(t *models.Teacher) bool) (*models.Teacher, error) {
	applied := false
	result, _ := s.rows.Compute(id, func(old models.Teacher, loaded bool) (models.Teacher, xsync.ComputeOp) {
		if !loaded {
			return old, xsync.CancelOp
		}
		next := old
		if !mutate(&next) {
			return old, xsync.CancelOp
		}
		next.Version = old.Version + 1
		next.UpdatedAt = s.now()
		applied = true
		return next, xsync.UpdateOp
	})
	if !applied {
		return nil, sql.ErrNoRows
	}
	return &result, nil
}

// UpdateProfile writes profile columns when the stored version matches.
func (s *TeacherStore) UpdateProfile(ctx context.Context, id string, expectedVersion int64, profile models.TeacherProfile) (*models.Teacher, error) {
	return s.update(id, func(t *models.Teacher) bool {
		if t.Version != expectedVersion {
			return false
		}
		t.ApplyProfile(profile)
		return true
	})
}

// MarkTransferRequested opens a request only while none is pending.
func (s *TeacherStore) MarkTransferRequested(ctx context.Context, id string, fields models.TransferRequestFields) (*models.Teacher, error) {
	return s.update(id, func(t *models.Teacher) bool {
		if t.IsRequestPending {
			return false
		}
		vacancyID := fields.VacancyID
		t.IsRequestPending = true
		t.NewSchoolRequest = fields.SchoolName
		t.PendingVacancyID = &vacancyID
		t.Reason = fields.Reason
		return true
	})
}

// CompleteTransfer moves the teacher only if the pending request still matches expected.
func (s *TeacherStore) CompleteTransfer(ctx context.Context, id string, expected models.SchoolRef, joinedAt time.Time) (*models.Teacher, error) {
	joined := joinedAt.UTC()
	return s.update(id, func(t *models.Teacher) bool {
		if !t.IsRequestPending || t.PendingVacancy() != expected.VacancyID {
			return false
		}
		t.CurrentSchool = t.NewSchoolRequest
		t.DateOfJoiningNewSchool = &joined
		clearRequest(t)
		return true
	})
}

// ClearTransferRequest drops the pending request only if it still matches expected.
func (s *TeacherStore) ClearTransferRequest(ctx context.Context, id string, expected models.SchoolRef) (*models.Teacher, error) {
	return s.update(id, func(t *models.Teacher) bool {
		if !t.IsRequestPending || t.PendingVacancy() != expected.VacancyID {
			return false
		}
		clearRequest(t)
		return true
	})
}

func clearRequest(t *models.Teacher) {
	t.IsRequestPending = false
	t.NewSchoolRequest = ""
	t.PendingVacancyID = nil
	t.Reason = ""
}

// ListBroadcastRecipients returns every teacher ordered by id.
func (s *TeacherStore) ListBroadcastRecipients(ctx context.Context) ([]models.Teacher, error) {
	return s.collect(func(models.Teacher) bool { return true }), nil
}

// ListByRole returns teachers holding role, ordered by id.
func (s *TeacherStore) ListByRole(ctx context.Context, role models.UserRole) ([]models.Teacher, error) {
	return s.collect(func(t models.Teacher) bool { return t.Role == role }), nil
}

// ListPendingTransfers returns the reviewer queue, least recently updated first.
func (s *TeacherStore) ListPendingTransfers(ctx context.Context) ([]models.Teacher, error) {
	pending := s.collect(func(t models.Teacher) bool { return t.IsRequestPending })
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].UpdatedAt.Before(pending[j].UpdatedAt) })
	return pending, nil
}

// CountPendingForVacancy counts pending requests aimed at vacancyID.
func (s *TeacherStore) CountPendingForVacancy(ctx context.Context, vacancyID string) (int, error) {
	return len(s.collect(func(t models.Teacher) bool { return t.PendingVacancy() == vacancyID })), nil
}

// Delete removes the teacher and releases its unique keys.
func (s *TeacherStore) Delete(ctx context.Context, id string) error {
	t, ok := s.rows.LoadAndDelete(id)
	if !ok {
		return sql.ErrNoRows
	}
	s.emails.Delete(normalizeEmail(t.Email))
	s.nationalIDs.Delete(strings.TrimSpace(t.NationalID))
	return nil
}

func (s *TeacherStore) collect(keep func(models.Teacher) bool) []models.Teacher {
	var out []models.Teacher
	s.rows.Range(func(_ string, t models.Teacher) bool {
		if keep(t) {
			out = append(out, t)
		}
		return true
	})
	sortByID(out, func(t models.Teacher) string { return t.ID })
	return out
}
