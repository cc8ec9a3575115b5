package appointments

import (
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/meronaya/legal-backend/internal/auth"
	"github.com/meronaya/legal-backend/pkg/models"
	"github.com/meronaya/legal-backend/pkg/validation"
)

type Handler struct {
	db  *gorm.DB
	svc *Service
}

func NewHandler(db *gorm.DB, svc *Service) *Handler { return &Handler{db: db, svc: svc} }

func parsePage(c *fiber.Ctx) (page, size int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	size, _ = strconv.Atoi(c.Query("pageSize", "10"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 50 {
		size = 10
	}
	return
}

/* ===================================== */
/* GET  /api/appointments                */
/* POST /api/appointments/:id/pay        */
/* ===================================== */

func (h *Handler) List(c *fiber.Ctx) error {
	rows, err := h.svc.ListForUser(c.Context(), auth.CurrentActor(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"items": rows, "total": len(rows)})
}

func (h *Handler) Pay(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid appointment id")
	}
	appt, err := h.svc.Pay(c.Context(), auth.CurrentActor(c), id)
	if err != nil {
		return err
	}
	return c.JSON(appt)
}

/* ============================================== */
/* POST /api/case-appointments (client)           */
/* GET  /api/case-appointments?case_id=&status=   */
/* POST /api/case-appointments/:id/confirm        */
/* POST /api/case-appointments/:id/reschedule     */
/* POST /api/case-appointments/:id/cancel         */
/* POST /api/case-appointments/:id/complete       */
/* ============================================== */

type CreateCaseAppointmentRequest struct {
	CaseID          string `json:"case_id" validate:"required,uuid4"`
	Title           string `json:"title" validate:"required,min=3,max=200"`
	Mode            string `json:"mode" validate:"required,oneof=video in_person"`
	PreferredDay    string `json:"preferred_day" validate:"omitempty,max=10"`
	PreferredTime   string `json:"preferred_time" validate:"omitempty,max=20"`
	MeetingLocation string `json:"meeting_location" validate:"omitempty,max=255"`
	PhoneNumber     string `json:"phone_number" validate:"omitempty,phone"`
}

func (h *Handler) CreateCaseAppointment(c *fiber.Ctx) error {
	var req CreateCaseAppointmentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid JSON body")
	}
	if errs, _ := validation.Validate(&req); errs != nil {
		return validation.Respond(c, errs)
	}
	caseID, err := uuid.Parse(req.CaseID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid case id")
	}

	appt, err := h.svc.CreateCaseAppointment(c.Context(), auth.CurrentActor(c), CreateCaseAppointmentInput{
		CaseID:          caseID,
		Title:           req.Title,
		Mode:            models.MeetingMode(req.Mode),
		PreferredDay:    req.PreferredDay,
		PreferredTime:   req.PreferredTime,
		MeetingLocation: req.MeetingLocation,
		PhoneNumber:     req.PhoneNumber,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(appt)
}

func (h *Handler) ListCaseAppointments(c *fiber.Ctx) error {
	actor := auth.CurrentActor(c)
	page, size := parsePage(c)

	q := h.db.Model(&models.CaseAppointment{})
	if !actor.IsStaff {
		if actor.Role == models.RoleLawyer {
			q = q.Where("lawyer_id = ?", actor.ID)
		} else {
			q = q.Where("client_id = ?", actor.ID)
		}
	}
	if caseID := c.Query("case_id"); caseID != "" {
		if _, err := uuid.Parse(caseID); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid case id")
		}
		q = q.Where("case_id = ?", caseID)
	}
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	var rows []models.CaseAppointment
	if err := q.Order("created_at DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&rows).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	return c.JSON(fiber.Map{
		"page": page, "pageSize": size, "total": total,
		"pages": int(math.Ceil(float64(total) / float64(size))),
		"items": rows,
	})
}

type ConfirmCaseAppointmentRequest struct {
	ScheduledDate string `json:"scheduled_date" validate:"omitempty,max=20"`
	ScheduledTime string `json:"scheduled_time" validate:"omitempty,max=20"`
	MeetingLink   string `json:"meeting_link" validate:"omitempty,url,max=500"`
}

func (h *Handler) ConfirmCaseAppointment(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid appointment id")
	}
	var req ConfirmCaseAppointmentRequest
	_ = c.BodyParser(&req)
	if errs, _ := validation.Validate(&req); errs != nil {
		return validation.Respond(c, errs)
	}
	appt, err := h.svc.ConfirmCaseAppointment(c.Context(), auth.CurrentActor(c), id,
		req.ScheduledDate, req.ScheduledTime, req.MeetingLink)
	if err != nil {
		return err
	}
	return c.JSON(appt)
}

type RescheduleCaseAppointmentRequest struct {
	ScheduledDate string `json:"scheduled_date" validate:"required,max=20"`
	ScheduledTime string `json:"scheduled_time" validate:"required,max=20"`
}

func (h *Handler) RescheduleCaseAppointment(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid appointment id")
	}
	var req RescheduleCaseAppointmentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid JSON body")
	}
	if errs, _ := validation.Validate(&req); errs != nil {
		return validation.Respond(c, errs)
	}
	appt, err := h.svc.RescheduleCaseAppointment(c.Context(), auth.CurrentActor(c), id,
		req.ScheduledDate, req.ScheduledTime)
	if err != nil {
		return err
	}
	return c.JSON(appt)
}

func (h *Handler) CancelCaseAppointment(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid appointment id")
	}
	appt, err := h.svc.CancelCaseAppointment(c.Context(), auth.CurrentActor(c), id)
	if err != nil {
		return err
	}
	return c.JSON(appt)
}

func (h *Handler) CompleteCaseAppointment(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid appointment id")
	}
	appt, err := h.svc.CompleteCaseAppointment(c.Context(), auth.CurrentActor(c), id)
	if err != nil {
		return err
	}
	return c.JSON(appt)
}
