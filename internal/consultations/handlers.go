package consultations

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
/* POST /api/consultations (client)      */
/* ===================================== */

type RequestConsultationRequest struct {
	LawyerID        string `json:"lawyer_id" validate:"required,uuid4"`
	CaseID          string `json:"case_id" validate:"omitempty,uuid4"`
	Mode            string `json:"mode" validate:"required,oneof=video in_person"`
	RequestedDay    string `json:"requested_day" validate:"omitempty,max=20"`
	RequestedTime   string `json:"requested_time" validate:"omitempty,max=20"`
	MeetingLocation string `json:"meeting_location" validate:"omitempty,max=255"`
	PhoneNumber     string `json:"phone_number" validate:"omitempty,phone"`
	Notes           string `json:"notes" validate:"omitempty,max=2000"`
}

func (h *Handler) Request(c *fiber.Ctx) error {
	var req RequestConsultationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid JSON body")
	}
	if errs, _ := validation.Validate(&req); errs != nil {
		return validation.Respond(c, errs)
	}

	lawyerID, err := uuid.Parse(req.LawyerID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid lawyer id")
	}
	var caseID *uuid.UUID
	if req.CaseID != "" {
		id, err := uuid.Parse(req.CaseID)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid case id")
		}
		caseID = &id
	}

	cons, err := h.svc.Request(c.Context(), auth.CurrentActor(c), RequestInput{
		LawyerID:        lawyerID,
		CaseID:          caseID,
		Mode:            models.MeetingMode(req.Mode),
		RequestedDay:    req.RequestedDay,
		RequestedTime:   req.RequestedTime,
		MeetingLocation: req.MeetingLocation,
		PhoneNumber:     req.PhoneNumber,
		Notes:           req.Notes,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(cons)
}

/* ============================================ */
/* POST /api/consultations/:id/accept (lawyer)  */
/* POST /api/consultations/:id/reject (lawyer)  */
/* POST /api/consultations/:id/complete         */
/* ============================================ */

type AcceptConsultationRequest struct {
	ScheduledDate string `json:"scheduled_date" validate:"omitempty,max=20"`
	ScheduledTime string `json:"scheduled_time" validate:"omitempty,max=20"`
	MeetingLink   string `json:"meeting_link" validate:"omitempty,url,max=500"`
}

func (h *Handler) Accept(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid consultation id")
	}
	var req AcceptConsultationRequest
	_ = c.BodyParser(&req)
	if errs, _ := validation.Validate(&req); errs != nil {
		return validation.Respond(c, errs)
	}
	cons, err := h.svc.Accept(c.Context(), auth.CurrentActor(c), id,
		req.ScheduledDate, req.ScheduledTime, req.MeetingLink)
	if err != nil {
		return err
	}
	return c.JSON(cons)
}

type RejectConsultationRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=1000"`
}

func (h *Handler) Reject(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid consultation id")
	}
	var req RejectConsultationRequest
	_ = c.BodyParser(&req)
	cons, err := h.svc.Reject(c.Context(), auth.CurrentActor(c), id, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(cons)
}

func (h *Handler) Complete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid consultation id")
	}
	cons, err := h.svc.Complete(c.Context(), auth.CurrentActor(c), id)
	if err != nil {
		return err
	}
	return c.JSON(cons)
}

/* ============================================== */
/* GET /api/consultations?page=&pageSize=&status= */
/* ============================================== */

// List returns the caller's consultations, as client or as lawyer.
func (h *Handler) List(c *fiber.Ctx) error {
	actor := auth.CurrentActor(c)
	page, size := parsePage(c)

	q := h.db.Model(&models.Consultation{})
	switch {
	case actor.IsStaff:
		// staff see everything
	case actor.Role == models.RoleLawyer:
		q = q.Where("lawyer_id = ?", actor.ID)
	default:
		q = q.Where("client_id = ?", actor.ID)
	}
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	var rows []models.Consultation
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
