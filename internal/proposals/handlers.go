package proposals

import (
	"math"
	"strconv"
	"strings"

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
/* POST /api/proposals (lawyer)          */
/* ===================================== */

type SubmitProposalRequest struct {
	CaseID       string `json:"case_id" validate:"required,uuid4"`
	ProposalText string `json:"proposal_text" validate:"required,min=20,max=2000"`
}

func (h *Handler) Submit(c *fiber.Ctx) error {
	var req SubmitProposalRequest
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

	prop, err := h.svc.Submit(c.Context(), auth.CurrentActor(c), caseID, req.ProposalText)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(prop)
}

/* ===================================== */
/* POST /api/proposals/:id/accept        */
/* POST /api/proposals/:id/reject        */
/* POST /api/proposals/:id/withdraw      */
/* ===================================== */

type RejectProposalRequest struct {
	Feedback string `json:"feedback" validate:"omitempty,max=1000"`
}

func (h *Handler) Accept(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid proposal id")
	}
	prop, err := h.svc.Accept(c.Context(), auth.CurrentActor(c), id)
	if err != nil {
		return err
	}
	return c.JSON(prop)
}

func (h *Handler) Reject(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid proposal id")
	}
	var req RejectProposalRequest
	_ = c.BodyParser(&req) // feedback is optional, an empty body is fine
	if errs, _ := validation.Validate(&req); errs != nil {
		return validation.Respond(c, errs)
	}
	prop, err := h.svc.Reject(c.Context(), auth.CurrentActor(c), id, req.Feedback)
	if err != nil {
		return err
	}
	return c.JSON(prop)
}

func (h *Handler) Withdraw(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid proposal id")
	}
	prop, err := h.svc.Withdraw(c.Context(), auth.CurrentActor(c), id)
	if err != nil {
		return err
	}
	return c.JSON(prop)
}

/* ========================================================= */
/* GET /api/proposals/mine?page=&pageSize=&status= (lawyer)   */
/* ========================================================= */

type myProposalItem struct {
	ID             uuid.UUID             `json:"id"`
	CaseID         uuid.UUID             `json:"case_id"`
	CaseTitle      string                `json:"case_title"`
	ProposalText   string                `json:"proposal_text"`
	Status         models.ProposalStatus `json:"status"`
	ClientFeedback string                `json:"client_feedback,omitempty"`
	CreatedAt      string                `json:"created_at"`
}

func (h *Handler) ListMine(c *fiber.Ctx) error {
	lawyerID := auth.MustUserID(c)
	page, size := parsePage(c)
	status := strings.TrimSpace(c.Query("status"))

	q := h.db.Model(&models.Proposal{}).
		Select("proposals.id, proposals.case_id, cases.title AS case_title, proposals.proposal_text, proposals.status, proposals.client_feedback, proposals.created_at").
		Joins("JOIN cases ON cases.id = proposals.case_id").
		Where("proposals.lawyer_id = ?", lawyerID)
	if status != "" {
		switch models.ProposalStatus(status) {
		case models.ProposalPending, models.ProposalAccepted, models.ProposalRejected, models.ProposalWithdrawn:
			q = q.Where("proposals.status = ?", status)
		default:
			return fiber.NewError(fiber.StatusBadRequest, "Invalid status filter")
		}
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	var rows []myProposalItem
	if err := q.Order("proposals.created_at DESC").
		Offset((page - 1) * size).Limit(size).
		Scan(&rows).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	return c.JSON(fiber.Map{
		"page": page, "pageSize": size, "total": total,
		"pages": int(math.Ceil(float64(total) / float64(size))),
		"items": rows,
	})
}

/* ============================================================== */
/* GET /api/cases/:id/proposals  (client owner or staff)          */
/* ============================================================== */

func (h *Handler) ListByCase(c *fiber.Ctx) error {
	actor := auth.CurrentActor(c)
	caseID := c.Params("id")
	if _, err := uuid.Parse(caseID); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid case id")
	}

	if !actor.IsStaff {
		var cnt int64
		if err := h.db.Model(&models.Case{}).
			Where("id = ? AND client_id = ?", caseID, actor.ID).
			Count(&cnt).Error; err != nil {
			return fiber.ErrInternalServerError
		}
		if cnt == 0 {
			return fiber.ErrForbidden
		}
	}

	page, size := parsePage(c)
	q := h.db.Model(&models.Proposal{}).Where("case_id = ?", caseID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	var rows []models.Proposal
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
