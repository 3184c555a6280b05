package service

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/teacher-transfer-api/internal/models"
)

const joinDateLayout = "02 Jan 2006"

var (
	approvedTmpl = template.Must(template.New("approved").Parse(
		`<p>Dear {{.Name}},</p><p>Your request to transfer to <strong>{{.School}}</strong> has been approved. Your date of joining is {{.Date}}.</p>`))
	transferBroadcastTmpl = template.Must(template.New("broadcast").Parse(
		`<p>Dear {{.Name}},</p><p>{{.Teacher}} has been transferred to {{.School}}.</p>`))
	rejectedTmpl = template.Must(template.New("rejected").Parse(
		`<p>Dear {{.Name}},</p><p>Your request to transfer to <strong>{{.School}}</strong> was not approved. You may apply for another vacancy.</p>`))
	vacancyTmpl = template.Must(template.New("vacancy").Parse(
		`<p>Dear {{.Name}},</p><p>A {{.Subject}} vacancy for grade {{.Grade}} is open at <strong>{{.School}}</strong>{{if .City}}, {{.City}}{{end}}.</p><p>Reference: {{.Reference}}</p>`))
	accountTmpl = template.Must(template.New("account").Parse(
		`<p>Dear {{.Name}},</p><p>Your account has been created. Your ledger address is <code>{{.Address}}</code>.</p>`))
	editSubmittedTmpl = template.Must(template.New("edit_submitted").Parse(
		`<p>Dear {{.Name}},</p><p>{{.Teacher}} ({{.Email}}) has requested a profile change.</p>{{if .Reason}}<p>Reason: {{.Reason}}</p>{{end}}`))
	editReviewedTmpl = template.Must(template.New("edit_reviewed").Parse(
		`<p>Dear {{.Name}},</p><p>Your profile edit request was {{.Status}}.</p>{{if .Note}}<p>Note: {{.Note}}</p>{{end}}`))
)

type recipientDirectory interface {
	ListBroadcastRecipients(ctx context.Context) ([]models.Teacher, error)
}

// NotificationPlanner turns workflow outcomes into ordered, deduplicated message plans.
// Recipients are ordered by teacher id and deduplicated by case-folded email.
type NotificationPlanner struct {
	directory recipientDirectory
	logger    *zap.Logger
	newID     func() string
	now       func() time.Time
}

// NewNotificationPlanner constructs a planner resolving broadcast recipients from directory.
func NewNotificationPlanner(directory recipientDirectory, logger *zap.Logger) *NotificationPlanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationPlanner{
		directory: directory,
		logger:    logger,
		newID:     uuid.NewString,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// PlanApproval addresses the approved teacher personally and every other teacher with a broadcast.
// When the directory cannot be read the plan still carries the personal message and the error is returned.
func (p *NotificationPlanner) PlanApproval(ctx context.Context, approved *models.Teacher) (*models.NotificationEvent, error) {
	joined := p.now()
	if approved.DateOfJoiningNewSchool != nil {
		joined = *approved.DateOfJoiningNewSchool
	}
	personal, err := render(approvedTmpl, map[string]string{
		"Name":   approved.Name,
		"School": approved.CurrentSchool,
		"Date":   joined.Format(joinDateLayout),
	})
	if err != nil {
		return nil, err
	}
	broadcastBody := func(t models.Teacher) (string, error) {
		return render(transferBroadcastTmpl, map[string]string{
			"Name":    t.Name,
			"Teacher": approved.Name,
			"School":  approved.CurrentSchool,
		})
	}

	event := p.newEvent(models.NotificationTransferApproved, approved.ID)
	personalMsg := models.PlannedMessage{
		TeacherID: approved.ID,
		Email:     approved.Email,
		Name:      approved.Name,
		Kind:      models.NotificationTransferApproved,
		Subject:   "Your transfer request has been approved",
		Body:      personal,
	}

	var recipients []models.Teacher
	var dirErr error
	if p.directory != nil {
		recipients, dirErr = p.directory.ListBroadcastRecipients(ctx)
		if dirErr != nil {
			dirErr = fmt.Errorf("list broadcast recipients: %w", dirErr)
			recipients = nil
		}
	}
	recipients = append([]models.Teacher(nil), recipients...)
	sortByID(recipients)

	seen := map[string]struct{}{foldEmail(approved.Email): {}}
	included := false
	for _, t := range recipients {
		if t.ID == approved.ID {
			if !included && strings.TrimSpace(approved.Email) != "" {
				event.Messages = append(event.Messages, personalMsg)
				included = true
			}
			continue
		}
		key := foldEmail(t.Email)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		body, err := broadcastBody(t)
		if err != nil {
			return nil, err
		}
		event.Messages = append(event.Messages, models.PlannedMessage{
			TeacherID: t.ID,
			Email:     t.Email,
			Name:      t.Name,
			Kind:      models.NotificationTransferBroadcast,
			Subject:   "Teacher transfer update",
			Body:      body,
		})
	}
	if !included && strings.TrimSpace(approved.Email) != "" {
		event.Messages = append(event.Messages, personalMsg)
	}
	return event, dirErr
}

// PlanRejection addresses the requester only.
func (p *NotificationPlanner) PlanRejection(teacher *models.Teacher, schoolName string) (*models.NotificationEvent, error) {
	body, err := render(rejectedTmpl, map[string]string{"Name": teacher.Name, "School": schoolName})
	if err != nil {
		return nil, err
	}
	event := p.newEvent(models.NotificationTransferRejected, teacher.ID)
	event.Messages = append(event.Messages, models.PlannedMessage{
		TeacherID: teacher.ID,
		Email:     teacher.Email,
		Name:      teacher.Name,
		Kind:      models.NotificationTransferRejected,
		Subject:   "Your transfer request was not approved",
		Body:      body,
	})
	return event, nil
}

// PlanVacancyAnnouncement addresses every recipient about a new vacancy.
func (p *NotificationPlanner) PlanVacancyAnnouncement(recipients []models.Teacher, listing models.VacancyListing) (*models.NotificationEvent, error) {
	subject := fmt.Sprintf("New vacancy at %s", listing.SchoolName)
	return p.plan(models.NotificationVacancyAnnounced, listing.ID, recipients, subject, func(t models.Teacher) (string, error) {
		return render(vacancyTmpl, map[string]string{
			"Name":      t.Name,
			"Subject":   listing.Subject,
			"Grade":     listing.Grade,
			"School":    listing.SchoolName,
			"City":      listing.City,
			"Reference": listing.Reference,
		})
	})
}

// PlanAccountCreated welcomes a newly registered teacher.
func (p *NotificationPlanner) PlanAccountCreated(teacher *models.Teacher) (*models.NotificationEvent, error) {
	return p.plan(models.NotificationAccountCreated, teacher.ID, []models.Teacher{*teacher}, "Your account has been created", func(t models.Teacher) (string, error) {
		return render(accountTmpl, map[string]string{"Name": t.Name, "Address": t.LedgerAddress})
	})
}

// PlanEditSubmitted tells reviewers about a new profile edit request.
func (p *NotificationPlanner) PlanEditSubmitted(reviewers []models.Teacher, req *models.EditRequest) (*models.NotificationEvent, error) {
	subject := fmt.Sprintf("Profile edit request from %s", req.Name)
	return p.plan(models.NotificationEditSubmitted, req.ID, reviewers, subject, func(t models.Teacher) (string, error) {
		return render(editSubmittedTmpl, map[string]string{
			"Name":    t.Name,
			"Teacher": req.Name,
			"Email":   req.Email,
			"Reason":  req.Reason,
		})
	})
}

// PlanEditReviewed tells the requester how their profile edit was decided.
func (p *NotificationPlanner) PlanEditReviewed(req *models.EditRequest) (*models.NotificationEvent, error) {
	status := strings.ToLower(string(req.Status))
	note := ""
	if req.Note != nil {
		note = *req.Note
	}
	recipient := models.Teacher{ID: req.TeacherID, Name: req.Name, Email: req.Email}
	return p.plan(models.NotificationEditReviewed, req.ID, []models.Teacher{recipient}, "Your profile edit request was "+status, func(t models.Teacher) (string, error) {
		return render(editReviewedTmpl, map[string]string{"Name": t.Name, "Status": status, "Note": note})
	})
}

func (p *NotificationPlanner) plan(kind models.NotificationKind, subjectID string, recipients []models.Teacher, subject string, body func(models.Teacher) (string, error)) (*models.NotificationEvent, error) {
	sorted := append([]models.Teacher(nil), recipients...)
	sortByID(sorted)

	event := p.newEvent(kind, subjectID)
	seen := make(map[string]struct{}, len(sorted))
	for _, t := range sorted {
		key := foldEmail(t.Email)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		rendered, err := body(t)
		if err != nil {
			return nil, err
		}
		event.Messages = append(event.Messages, models.PlannedMessage{
			TeacherID: t.ID,
			Email:     t.Email,
			Name:      t.Name,
			Kind:      kind,
			Subject:   subject,
			Body:      rendered,
		})
	}
	return event, nil
}

func (p *NotificationPlanner) newEvent(kind models.NotificationKind, subjectID string) *models.NotificationEvent {
	return &models.NotificationEvent{ID: p.newID(), Kind: kind, SubjectID: subjectID, CreatedAt: p.now()}
}

func render(tmpl *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s notification: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

func foldEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func sortByID(teachers []models.Teacher) {
	sort.SliceStable(teachers, func(i, j int) bool { return teachers[i].ID < teachers[j].ID })
}
