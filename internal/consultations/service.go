package consultations

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/meronaya/legal-backend/internal/notifications"
	"github.com/meronaya/legal-backend/pkg/apperr"
	"github.com/meronaya/legal-backend/pkg/models"
)

// Service handles direct consultation requests between a client and a
// lawyer, optionally anchored to an accepted case.
type Service struct {
	db       *gorm.DB
	notifier *notifications.Notifier
}

func NewService(db *gorm.DB, notifier *notifications.Notifier) *Service {
	return &Service{db: db, notifier: notifier}
}

func (s *Service) notify(userID uuid.UUID, title, msg, link string) {
	if s.notifier != nil {
		s.notifier.Notify(userID, title, msg, models.NotifAppointment, link)
	}
}

type RequestInput struct {
	LawyerID        uuid.UUID
	CaseID          *uuid.UUID
	Mode            models.MeetingMode
	RequestedDay    string
	RequestedTime   string
	MeetingLocation string
	PhoneNumber     string
	Notes           string
}

// Request creates a consultation in status requested. When the request is
// anchored to a case, the case must already be engaged with exactly the
// lawyer being asked for; a mismatch is a bad reference, not a permission
// problem.
func (s *Service) Request(ctx context.Context, actor models.Actor, in RequestInput) (*models.Consultation, error) {
	if actor.Role != models.RoleClient {
		return nil, apperr.ForbiddenRole("only clients can request consultations")
	}

	var lawyer models.User
	if err := s.db.WithContext(ctx).
		First(&lawyer, "id = ? AND role = ?", in.LawyerID, models.RoleLawyer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("lawyer")
		}
		return nil, apperr.Storage(err)
	}

	if in.CaseID != nil {
		var cs models.Case
		if err := s.db.WithContext(ctx).First(&cs, "id = ?", *in.CaseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperr.NotFound("case")
			}
			return nil, apperr.Storage(err)
		}
		if cs.ClientID != actor.ID {
			return nil, apperr.Forbidden("you can only request consultations on your own cases")
		}
		if cs.Status != models.CaseAccepted {
			return nil, apperr.InvalidTransition("case has not been accepted yet")
		}
		if cs.LawyerID == nil || *cs.LawyerID != in.LawyerID {
			return nil, apperr.InvalidReference("lawyer is not assigned to this case")
		}
	}

	if in.Mode == models.MeetingInPerson {
		if strings.TrimSpace(in.MeetingLocation) == "" {
			return nil, apperr.MissingField("meeting_location")
		}
		if strings.TrimSpace(in.PhoneNumber) == "" {
			return nil, apperr.MissingField("phone_number")
		}
	}

	cons := models.Consultation{
		ClientID:        actor.ID,
		LawyerID:        in.LawyerID,
		CaseID:          in.CaseID,
		Mode:            in.Mode,
		RequestedDay:    strings.TrimSpace(in.RequestedDay),
		RequestedTime:   strings.TrimSpace(in.RequestedTime),
		MeetingLocation: strings.TrimSpace(in.MeetingLocation),
		PhoneNumber:     strings.TrimSpace(in.PhoneNumber),
		Notes:           strings.TrimSpace(in.Notes),
		Status:          models.ConsultationRequested,
	}
	if err := s.db.WithContext(ctx).Create(&cons).Error; err != nil {
		return nil, apperr.Storage(err)
	}

	s.notify(in.LawyerID, "New consultation request",
		"A client requested a consultation with you.",
		"/lawyer/consultations/"+cons.ID.String())

	return &cons, nil
}

// Accept moves requested to accepted and materializes the linked
// Appointment. In-person consultations are paid in hand, so the
// appointment starts with payment already settled off-platform.
func (s *Service) Accept(ctx context.Context, actor models.Actor, consultationID uuid.UUID, scheduledDate, scheduledTime, meetingLink string) (*models.Consultation, error) {
	if actor.Role != models.RoleLawyer {
		return nil, apperr.ForbiddenRole("only lawyers can accept consultations")
	}

	var cons models.Consultation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&cons, "id = ?", consultationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("consultation")
			}
			return apperr.Storage(err)
		}
		if cons.LawyerID != actor.ID {
			return apperr.Forbidden("this consultation was not requested from you")
		}
		if cons.Status != models.ConsultationRequested {
			return apperr.InvalidTransition("consultation is not awaiting a response")
		}

		updates := map[string]any{"status": models.ConsultationAccepted}
		if d := strings.TrimSpace(scheduledDate); d != "" {
			updates["scheduled_date"] = d
			cons.ScheduledDate = d
		}
		if t := strings.TrimSpace(scheduledTime); t != "" {
			updates["scheduled_time"] = t
			cons.ScheduledTime = t
		}
		if l := strings.TrimSpace(meetingLink); l != "" {
			updates["meeting_link"] = l
			cons.MeetingLink = l
		}
		if err := tx.Model(&models.Consultation{}).Where("id = ?", cons.ID).
			Updates(updates).Error; err != nil {
			return apperr.Storage(err)
		}
		cons.Status = models.ConsultationAccepted

		if _, err := EnsureAppointment(tx, &cons); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, asAppErr(err)
	}

	s.notify(cons.ClientID, "Consultation accepted",
		"Your consultation request was accepted.",
		"/client/appointments")

	return &cons, nil
}

// Reject turns down a pending request.
func (s *Service) Reject(ctx context.Context, actor models.Actor, consultationID uuid.UUID, reason string) (*models.Consultation, error) {
	if actor.Role != models.RoleLawyer {
		return nil, apperr.ForbiddenRole("only lawyers can reject consultations")
	}

	var cons models.Consultation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&cons, "id = ?", consultationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("consultation")
			}
			return apperr.Storage(err)
		}
		if cons.LawyerID != actor.ID {
			return apperr.Forbidden("this consultation was not requested from you")
		}
		if cons.Status != models.ConsultationRequested {
			return apperr.InvalidTransition("consultation is not awaiting a response")
		}

		updates := map[string]any{"status": models.ConsultationRejected}
		if r := strings.TrimSpace(reason); r != "" {
			updates["notes"] = r
			cons.Notes = r
		}
		if err := tx.Model(&models.Consultation{}).Where("id = ?", cons.ID).
			Updates(updates).Error; err != nil {
			return apperr.Storage(err)
		}
		cons.Status = models.ConsultationRejected
		return nil
	})
	if err != nil {
		return nil, asAppErr(err)
	}

	s.notify(cons.ClientID, "Consultation declined",
		"Your consultation request was declined.",
		"/client/consultations")

	return &cons, nil
}

// Complete closes an accepted consultation and cascades the terminal
// status to its appointment inside the same transaction, so the two
// records never disagree.
func (s *Service) Complete(ctx context.Context, actor models.Actor, consultationID uuid.UUID) (*models.Consultation, error) {
	var cons models.Consultation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&cons, "id = ?", consultationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("consultation")
			}
			return apperr.Storage(err)
		}
		if cons.LawyerID != actor.ID && cons.ClientID != actor.ID && !actor.IsStaff {
			return apperr.Forbidden("you are not part of this consultation")
		}
		if cons.Status != models.ConsultationAccepted {
			return apperr.InvalidTransition("only accepted consultations can be completed")
		}

		if err := tx.Model(&models.Consultation{}).Where("id = ?", cons.ID).
			Update("status", models.ConsultationCompleted).Error; err != nil {
			return apperr.Storage(err)
		}
		cons.Status = models.ConsultationCompleted

		if err := tx.Model(&models.Appointment{}).
			Where("consultation_id = ?", cons.ID).
			Update("status", models.AppointmentCompleted).Error; err != nil {
			return apperr.Storage(err)
		}
		return nil
	})
	if err != nil {
		return nil, asAppErr(err)
	}

	counterpart := cons.ClientID
	if actor.ID == cons.ClientID {
		counterpart = cons.LawyerID
	}
	s.notify(counterpart, "Consultation completed",
		"A consultation you were part of has been marked completed.",
		"/appointments")

	return &cons, nil
}

// EnsureAppointment returns the appointment for a consultation, creating
// it if absent. In-person mode means payment changes hands at the meeting,
// so the row is born with payment_status in_hand.
func EnsureAppointment(tx *gorm.DB, cons *models.Consultation) (*models.Appointment, error) {
	var appt models.Appointment
	err := tx.Where("consultation_id = ?", cons.ID).First(&appt).Error
	switch {
	case err == nil:
		return &appt, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		pay := models.PayPending
		if cons.Mode == models.MeetingInPerson {
			pay = models.PayInHand
		}
		appt = models.Appointment{
			ConsultationID: cons.ID,
			ScheduledDate:  cons.ScheduledDate,
			ScheduledTime:  cons.ScheduledTime,
			Status:         models.AppointmentPending,
			PaymentStatus:  pay,
		}
		if err := tx.Create(&appt).Error; err != nil {
			return nil, apperr.Storage(err)
		}
		return &appt, nil
	default:
		return nil, apperr.Storage(err)
	}
}

func asAppErr(err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	return apperr.Storage(err)
}
