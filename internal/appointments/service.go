package appointments

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/meronaya/legal-backend/internal/consultations"
	"github.com/meronaya/legal-backend/internal/notifications"
	"github.com/meronaya/legal-backend/pkg/apperr"
	"github.com/meronaya/legal-backend/pkg/models"
	"github.com/meronaya/legal-backend/pkg/utils"
)

// Service covers both consultation-derived appointments and standalone
// case appointments.
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

/* ======================= Consultation appointments ====================== */

// ListForUser returns the caller's appointments, creating any missing rows
// for accepted consultations first. Accepting a consultation usually
// creates the appointment, but older or concurrently accepted records may
// not have one yet.
func (s *Service) ListForUser(ctx context.Context, actor models.Actor) ([]models.Appointment, error) {
	db := s.db.WithContext(ctx)

	var pending []models.Consultation
	q := db.Where("status = ?", models.ConsultationAccepted).
		Where("id NOT IN (?)", db.Model(&models.Appointment{}).Select("consultation_id"))
	if !actor.IsStaff {
		if actor.Role == models.RoleLawyer {
			q = q.Where("lawyer_id = ?", actor.ID)
		} else {
			q = q.Where("client_id = ?", actor.ID)
		}
	}
	if err := q.Find(&pending).Error; err != nil {
		return nil, apperr.Storage(err)
	}
	for i := range pending {
		if _, err := consultations.EnsureAppointment(db, &pending[i]); err != nil {
			return nil, err
		}
	}

	var rows []models.Appointment
	lq := db.Preload("Consultation").
		Joins("JOIN consultations ON consultations.id = appointments.consultation_id")
	if !actor.IsStaff {
		if actor.Role == models.RoleLawyer {
			lq = lq.Where("consultations.lawyer_id = ?", actor.ID)
		} else {
			lq = lq.Where("consultations.client_id = ?", actor.ID)
		}
	}
	if err := lq.Order("appointments.created_at DESC").Find(&rows).Error; err != nil {
		return nil, apperr.Storage(err)
	}
	return rows, nil
}

// Pay settles a video appointment. In-person meetings are paid in hand at
// the meeting, so there is nothing to settle on-platform.
func (s *Service) Pay(ctx context.Context, actor models.Actor, appointmentID uuid.UUID) (*models.Appointment, error) {
	if actor.Role != models.RoleClient {
		return nil, apperr.ForbiddenRole("only clients can pay for appointments")
	}

	var appt models.Appointment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Consultation").
			First(&appt, "id = ?", appointmentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("appointment")
			}
			return apperr.Storage(err)
		}
		if appt.Consultation.ClientID != actor.ID {
			return apperr.Forbidden("this appointment is not yours")
		}
		if appt.Consultation.Mode != models.MeetingVideo {
			return apperr.InvalidTransition("in-person consultations are paid at the meeting")
		}
		if appt.PaymentStatus == models.PayPaid {
			return apperr.InvalidTransition("appointment is already paid")
		}

		if err := tx.Model(&models.Appointment{}).Where("id = ?", appt.ID).
			Updates(map[string]any{
				"payment_status": models.PayPaid,
				"status":         models.AppointmentConfirmed,
			}).Error; err != nil {
			return apperr.Storage(err)
		}
		appt.PaymentStatus = models.PayPaid
		appt.Status = models.AppointmentConfirmed
		return nil
	})
	if err != nil {
		return nil, asAppErr(err)
	}

	s.notify(appt.Consultation.LawyerID, "Appointment paid",
		"A client paid for an upcoming video consultation.",
		"/lawyer/appointments")

	return &appt, nil
}

/* ========================== Case appointments =========================== */

type CreateCaseAppointmentInput struct {
	CaseID          uuid.UUID
	Title           string
	Mode            models.MeetingMode
	PreferredDay    string
	PreferredTime   string
	MeetingLocation string
	PhoneNumber     string
}

// CreateCaseAppointment schedules a meeting inside an engaged case.
func (s *Service) CreateCaseAppointment(ctx context.Context, actor models.Actor, in CreateCaseAppointmentInput) (*models.CaseAppointment, error) {
	if actor.Role != models.RoleClient {
		return nil, apperr.ForbiddenRole("only clients can request case appointments")
	}

	var cs models.Case
	if err := s.db.WithContext(ctx).First(&cs, "id = ?", in.CaseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("case")
		}
		return nil, apperr.Storage(err)
	}
	if cs.ClientID != actor.ID {
		return nil, apperr.Forbidden("you can only schedule appointments on your own cases")
	}
	if cs.Status != models.CaseAccepted {
		return nil, apperr.InvalidTransition("case has not been accepted yet")
	}
	if cs.LawyerID == nil {
		return nil, apperr.InvalidReference("case has no lawyer assigned")
	}

	if in.Mode == models.MeetingInPerson {
		if strings.TrimSpace(in.MeetingLocation) == "" {
			return nil, apperr.MissingField("meeting_location")
		}
		if strings.TrimSpace(in.PhoneNumber) == "" {
			return nil, apperr.MissingField("phone_number")
		}
	}

	appt := models.CaseAppointment{
		CaseID:          cs.ID,
		ClientID:        actor.ID,
		LawyerID:        cs.LawyerID,
		Title:           strings.TrimSpace(in.Title),
		Mode:            in.Mode,
		PreferredDay:    strings.TrimSpace(in.PreferredDay),
		PreferredTime:   strings.TrimSpace(in.PreferredTime),
		MeetingLocation: strings.TrimSpace(in.MeetingLocation),
		PhoneNumber:     strings.TrimSpace(in.PhoneNumber),
		Status:          models.AppointmentPending,
	}
	if err := s.db.WithContext(ctx).Create(&appt).Error; err != nil {
		return nil, apperr.Storage(err)
	}

	actorID := actor.ID
	utils.RecordTimeline(ctx, s.db, cs.ID, &actorID, models.EventHearingScheduled,
		"Appointment requested", "The client requested a meeting: "+appt.Title)
	s.notify(*cs.LawyerID, "New appointment request",
		"A client requested a meeting on one of your cases.",
		"/lawyer/case/"+cs.ID.String())

	return &appt, nil
}

// ConfirmCaseAppointment pins down the schedule. A video meeting without a
// link is not confirmable; neither is any meeting without a date and time.
func (s *Service) ConfirmCaseAppointment(ctx context.Context, actor models.Actor, appointmentID uuid.UUID, scheduledDate, scheduledTime, meetingLink string) (*models.CaseAppointment, error) {
	if actor.Role != models.RoleLawyer {
		return nil, apperr.ForbiddenRole("only lawyers can confirm appointments")
	}

	scheduledDate = strings.TrimSpace(scheduledDate)
	scheduledTime = strings.TrimSpace(scheduledTime)
	meetingLink = strings.TrimSpace(meetingLink)

	var appt models.CaseAppointment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockCaseAppointment(tx, appointmentID, &appt); err != nil {
			return err
		}
		if appt.LawyerID == nil || *appt.LawyerID != actor.ID {
			return apperr.Forbidden("this appointment is not assigned to you")
		}
		if appt.Status != models.AppointmentPending {
			return apperr.InvalidTransition("only pending appointments can be confirmed")
		}
		if scheduledDate == "" {
			return apperr.MissingField("scheduled_date")
		}
		if scheduledTime == "" {
			return apperr.MissingField("scheduled_time")
		}
		if appt.Mode == models.MeetingVideo && meetingLink == "" {
			return apperr.MissingField("meeting_link")
		}

		updates := map[string]any{
			"status":         models.AppointmentConfirmed,
			"scheduled_date": scheduledDate,
			"scheduled_time": scheduledTime,
		}
		if meetingLink != "" {
			updates["meeting_link"] = meetingLink
			appt.MeetingLink = meetingLink
		}
		if err := tx.Model(&models.CaseAppointment{}).Where("id = ?", appt.ID).
			Updates(updates).Error; err != nil {
			return apperr.Storage(err)
		}
		appt.Status = models.AppointmentConfirmed
		appt.ScheduledDate = scheduledDate
		appt.ScheduledTime = scheduledTime

		actorID := actor.ID
		utils.RecordTimeline(ctx, tx, appt.CaseID, &actorID, models.EventHearingScheduled,
			"Appointment confirmed", "Meeting confirmed for "+scheduledDate+" "+scheduledTime)
		return nil
	})
	if err != nil {
		return nil, asAppErr(err)
	}

	s.notify(appt.ClientID, "Appointment confirmed",
		"Your meeting was confirmed for "+appt.ScheduledDate+" "+appt.ScheduledTime+".",
		"/client/case/"+appt.CaseID.String())

	return &appt, nil
}

// RescheduleCaseAppointment moves a confirmed meeting to a new slot.
func (s *Service) RescheduleCaseAppointment(ctx context.Context, actor models.Actor, appointmentID uuid.UUID, scheduledDate, scheduledTime string) (*models.CaseAppointment, error) {
	scheduledDate = strings.TrimSpace(scheduledDate)
	scheduledTime = strings.TrimSpace(scheduledTime)

	var appt models.CaseAppointment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockCaseAppointment(tx, appointmentID, &appt); err != nil {
			return err
		}
		if !isParticipant(actor, &appt) {
			return apperr.Forbidden("you are not part of this appointment")
		}
		if appt.Status != models.AppointmentConfirmed {
			return apperr.InvalidTransition("only confirmed appointments can be rescheduled")
		}
		if scheduledDate == "" {
			return apperr.MissingField("scheduled_date")
		}
		if scheduledTime == "" {
			return apperr.MissingField("scheduled_time")
		}

		if err := tx.Model(&models.CaseAppointment{}).Where("id = ?", appt.ID).
			Updates(map[string]any{
				"status":         models.AppointmentRescheduled,
				"scheduled_date": scheduledDate,
				"scheduled_time": scheduledTime,
			}).Error; err != nil {
			return apperr.Storage(err)
		}
		appt.Status = models.AppointmentRescheduled
		appt.ScheduledDate = scheduledDate
		appt.ScheduledTime = scheduledTime
		return nil
	})
	if err != nil {
		return nil, asAppErr(err)
	}

	s.notify(counterpart(actor, &appt), "Appointment rescheduled",
		"A meeting was moved to "+appt.ScheduledDate+" "+appt.ScheduledTime+".",
		"/case/"+appt.CaseID.String())

	return &appt, nil
}

// CancelCaseAppointment drops a pending request.
func (s *Service) CancelCaseAppointment(ctx context.Context, actor models.Actor, appointmentID uuid.UUID) (*models.CaseAppointment, error) {
	var appt models.CaseAppointment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockCaseAppointment(tx, appointmentID, &appt); err != nil {
			return err
		}
		if !isParticipant(actor, &appt) {
			return apperr.Forbidden("you are not part of this appointment")
		}
		if appt.Status != models.AppointmentPending {
			return apperr.InvalidTransition("only pending appointments can be cancelled")
		}
		if err := tx.Model(&models.CaseAppointment{}).Where("id = ?", appt.ID).
			Update("status", models.AppointmentCancelled).Error; err != nil {
			return apperr.Storage(err)
		}
		appt.Status = models.AppointmentCancelled
		return nil
	})
	if err != nil {
		return nil, asAppErr(err)
	}

	s.notify(counterpart(actor, &appt), "Appointment cancelled",
		"A requested meeting was cancelled.",
		"/case/"+appt.CaseID.String())

	return &appt, nil
}

// CompleteCaseAppointment closes out a confirmed meeting.
func (s *Service) CompleteCaseAppointment(ctx context.Context, actor models.Actor, appointmentID uuid.UUID) (*models.CaseAppointment, error) {
	var appt models.CaseAppointment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockCaseAppointment(tx, appointmentID, &appt); err != nil {
			return err
		}
		if !isParticipant(actor, &appt) {
			return apperr.Forbidden("you are not part of this appointment")
		}
		if appt.Status != models.AppointmentConfirmed && appt.Status != models.AppointmentRescheduled {
			return apperr.InvalidTransition("only confirmed appointments can be completed")
		}
		if err := tx.Model(&models.CaseAppointment{}).Where("id = ?", appt.ID).
			Update("status", models.AppointmentCompleted).Error; err != nil {
			return apperr.Storage(err)
		}
		appt.Status = models.AppointmentCompleted
		return nil
	})
	if err != nil {
		return nil, asAppErr(err)
	}

	s.notify(counterpart(actor, &appt), "Appointment completed",
		"A meeting was marked completed.",
		"/case/"+appt.CaseID.String())

	return &appt, nil
}

/* =============================== Helpers ================================ */

func lockCaseAppointment(tx *gorm.DB, id uuid.UUID, out *models.CaseAppointment) error {
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(out, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("appointment")
		}
		return apperr.Storage(err)
	}
	return nil
}

func isParticipant(actor models.Actor, appt *models.CaseAppointment) bool {
	if actor.IsStaff || appt.ClientID == actor.ID {
		return true
	}
	return appt.LawyerID != nil && *appt.LawyerID == actor.ID
}

func counterpart(actor models.Actor, appt *models.CaseAppointment) uuid.UUID {
	if actor.ID == appt.ClientID && appt.LawyerID != nil {
		return *appt.LawyerID
	}
	return appt.ClientID
}

func asAppErr(err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	return apperr.Storage(err)
}
