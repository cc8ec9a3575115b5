package cases

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/meronaya/legal-backend/internal/auth"
	"github.com/meronaya/legal-backend/internal/storage"
	"github.com/meronaya/legal-backend/pkg/models"
	"github.com/meronaya/legal-backend/pkg/sanitize"
	"github.com/meronaya/legal-backend/pkg/validation"
)

// ===== DTOs =====

type CreateCaseRequest struct {
	Title               string   `json:"title" validate:"required,max=200"`
	Category            string   `json:"category" validate:"required,category"`
	Description         string   `json:"description" validate:"required,max=2000"`
	Urgency             string   `json:"urgency" validate:"omitempty,oneof=Low Medium High"`
	LawyerSelection     string   `json:"lawyer_selection" validate:"omitempty,oneof=specific public"`
	RequestConsultation bool     `json:"request_consultation"`
	PreferredLawyers    []string `json:"preferred_lawyers" validate:"omitempty,dive,uuid4"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type UpdateDetailsRequest struct {
	CaseNumber      *string `json:"case_number" validate:"omitempty,max=100"`
	CourtName       *string `json:"court_name" validate:"omitempty,max=200"`
	OpposingParty   *string `json:"opposing_party" validate:"omitempty,max=200"`
	NextHearingDate *string `json:"next_hearing_date" validate:"omitempty"` // YYYY-MM-DD
	Status          *string `json:"status" validate:"omitempty"`
	Notes           *string `json:"notes" validate:"omitempty,max=2000"`
}

type Handler struct {
	db  *gorm.DB
	svc *Service
	sb  *storage.Supabase
}

func NewHandler(db *gorm.DB, svc *Service, sb *storage.Supabase) *Handler {
	return &Handler{db: db, svc: svc, sb: sb}
}

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

// Create Case godoc
// @Summary      Create case
// @Description  Client creates a new case (public or sent to specific lawyers)
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CreateCaseRequest  true  "Case payload"
// @Success      201  {object}  models.Case
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Router       /cases [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	var in CreateCaseRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	urgency := models.Urgency(in.Urgency)
	if urgency == "" {
		urgency = models.UrgencyMedium
	}
	selection := models.LawyerSelection(in.LawyerSelection)
	if selection == "" {
		selection = models.SelectionPublic
	}

	preferred := make([]uuid.UUID, 0, len(in.PreferredLawyers))
	for _, raw := range in.PreferredLawyers {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid preferred lawyer id")
		}
		preferred = append(preferred, id)
	}

	cs, err := h.svc.Create(c.Context(), auth.CurrentActor(c), CreateInput{
		Title:               strings.TrimSpace(in.Title),
		Category:            strings.TrimSpace(in.Category),
		Description:         strings.TrimSpace(in.Description),
		Urgency:             urgency,
		Selection:           selection,
		RequestConsultation: in.RequestConsultation,
		PreferredLawyerIDs:  preferred,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(cs)
}

type caseListItem struct {
	ID            uuid.UUID         `json:"id"`
	Title         string            `json:"title"`
	Category      string            `json:"category"`
	Urgency       models.Urgency    `json:"urgency"`
	Status        models.CaseStatus `json:"status"`
	ProposalCount int               `json:"proposal_count"`
	CreatedAt     time.Time         `json:"created_at"`
}

// List godoc
// @Summary      List cases visible to me
// @Description  Clients see their own cases; lawyers see assigned, public, and directed cases; staff see all
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        page       query int    false "page"
// @Param        pageSize   query int    false "pageSize"
// @Param        status     query string false "status filter"
// @Param        category   query string false "category filter"
// @Param        urgency    query string false "urgency filter"
// @Param        search     query string false "search in title/description"
// @Success      200  {object}  map[string]any
// @Router       /cases [get]
func (h *Handler) List(c *fiber.Ctx) error {
	actor := auth.CurrentActor(c)
	page, size := parsePage(c)

	q := VisibleTo(h.db, actor)
	if st := strings.TrimSpace(c.Query("status")); st != "" {
		if !models.ValidCaseStatus(models.CaseStatus(st)) {
			return fiber.NewError(fiber.StatusBadRequest, "invalid status filter")
		}
		q = q.Where("cases.status = ?", st)
	}
	if cat := strings.TrimSpace(c.Query("category")); cat != "" {
		q = q.Where("cases.category = ?", cat)
	}
	if urg := strings.TrimSpace(c.Query("urgency")); urg != "" {
		q = q.Where("cases.urgency = ?", urg)
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		like := "%" + search + "%"
		q = q.Where("cases.title ILIKE ? OR cases.description ILIKE ?", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	rows := make([]caseListItem, 0, size)
	if err := q.Select("cases.id, cases.title, cases.category, cases.urgency, cases.status, cases.proposal_count, cases.created_at").
		Order("cases.created_at DESC").
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

// GetDetail godoc
// @Summary      Case detail
// @Description  Full case with documents, proposals, and timeline, scoped by visibility
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "case id (uuid)"
// @Success      200  {object}  models.Case
// @Failure      404  {object}  models.ErrorResponse
// @Router       /cases/{id} [get]
func (h *Handler) GetDetail(c *fiber.Ctx) error {
	actor := auth.CurrentActor(c)
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid case id")
	}

	var cs models.Case
	err := VisibleTo(h.db, actor).
		Where("cases.id = ?", id).
		Preload("Documents", func(db *gorm.DB) *gorm.DB { return db.Order("uploaded_at ASC") }).
		Preload("Proposals", func(db *gorm.DB) *gorm.DB { return db.Order("created_at DESC") }).
		Preload("Timeline", func(db *gorm.DB) *gorm.DB { return db.Order("created_at DESC") }).
		First(&cs).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}

	// Never send null collections
	if cs.Documents == nil {
		cs.Documents = []models.CaseDocument{}
	}
	if cs.Proposals == nil {
		cs.Proposals = []models.Proposal{}
	}
	if cs.Timeline == nil {
		cs.Timeline = []models.CaseTimeline{}
	}

	return c.JSON(cs)
}

/* ====== Public browse (anonymized, lawyers) ====== */

type publicCaseItem struct {
	ID            uuid.UUID      `json:"id"`
	Title         string         `json:"title"`
	Category      string         `json:"category"`
	Urgency       models.Urgency `json:"urgency"`
	CreatedAt     time.Time      `json:"created_at"`
	Preview       string         `json:"preview"`
	HasMyProposal bool           `json:"has_my_proposal"`
}

// PublicBrowse godoc
// @Summary      Browse open public cases (anonymized)
// @Description  Lawyer browses cases open for proposals; descriptions are PII-redacted
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Param        category  query string false "category"
// @Success      200  {object}  map[string]any
// @Router       /cases/public [get]
func (h *Handler) PublicBrowse(c *fiber.Ctx) error {
	lawyerID := auth.MustUserID(c) // used for HasMyProposal
	page, size := parsePage(c)
	category := strings.TrimSpace(c.Query("category"))

	dbq := h.db.Model(&models.Case{}).
		Where("status IN ? AND lawyer_selection = ?",
			[]models.CaseStatus{models.CasePublic, models.CaseProposalsReceived},
			models.SelectionPublic)
	if category != "" {
		dbq = dbq.Where("category = ?", category)
	}

	var total int64
	if err := dbq.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	var list []models.Case
	if err := dbq.Order("created_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&list).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	// One IN query for "did I already propose" instead of N+1 lookups.
	caseIDs := make([]uuid.UUID, 0, len(list))
	for _, cs := range list {
		caseIDs = append(caseIDs, cs.ID)
	}
	proposedMap := map[uuid.UUID]bool{}
	if len(caseIDs) > 0 {
		var proposedIDs []uuid.UUID
		if err := h.db.
			Model(&models.Proposal{}).
			Where("lawyer_id = ? AND case_id IN ?", lawyerID, caseIDs).
			Pluck("DISTINCT case_id", &proposedIDs).Error; err != nil {
			return fiber.ErrInternalServerError
		}
		for _, id := range proposedIDs {
			proposedMap[id] = true
		}
	}

	items := make([]publicCaseItem, 0, len(list))
	for _, cs := range list {
		items = append(items, publicCaseItem{
			ID:            cs.ID,
			Title:         cs.Title,
			Category:      cs.Category,
			Urgency:       cs.Urgency,
			CreatedAt:     cs.CreatedAt,
			Preview:       sanitize.Summary(sanitize.RedactPII(cs.Description), 240),
			HasMyProposal: proposedMap[cs.ID],
		})
	}

	return c.JSON(fiber.Map{
		"page": page, "pageSize": size, "total": total,
		"pages": int(math.Ceil(float64(total) / float64(size))),
		"items": items,
	})
}

/* ====== Lifecycle transitions ====== */

// AcceptPublic godoc
// @Summary      Accept a public case
// @Description  Lawyer takes a public case directly; exactly one concurrent accept wins
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "case id (uuid)"
// @Success      200  {object}  models.Case
// @Failure      409  {object}  models.ErrorResponse  "already accepted"
// @Router       /cases/{id}/accept [post]
func (h *Handler) AcceptPublic(c *fiber.Ctx) error {
	caseID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid case id")
	}
	cs, err := h.svc.AcceptPublic(c.Context(), auth.CurrentActor(c), caseID)
	if err != nil {
		return err
	}
	return c.JSON(cs)
}

// UpdateStatus godoc
// @Summary      Update case status
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string               true  "case id (uuid)"
// @Param        payload  body  UpdateStatusRequest  true  "new status"
// @Success      200  {object}  models.Case
// @Failure      422  {object}  models.ErrorResponse  "invalid status"
// @Router       /cases/{id}/status [patch]
func (h *Handler) UpdateStatus(c *fiber.Ctx) error {
	caseID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid case id")
	}
	var in UpdateStatusRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	cs, err := h.svc.UpdateStatus(c.Context(), auth.CurrentActor(c), caseID, models.CaseStatus(in.Status))
	if err != nil {
		return err
	}
	return c.JSON(cs)
}

// UpdateDetails godoc
// @Summary      Update case details (assigned lawyer)
// @Description  Whitelisted fields: case_number, court_name, opposing_party, next_hearing_date, status, notes
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                true  "case id (uuid)"
// @Param        payload  body  UpdateDetailsRequest  true  "details"
// @Success      200  {object}  models.Case
// @Failure      403  {object}  models.ErrorResponse
// @Router       /cases/{id}/details [patch]
func (h *Handler) UpdateDetails(c *fiber.Ctx) error {
	caseID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid case id")
	}
	var in UpdateDetailsRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	input := DetailsInput{
		CaseNumber:    in.CaseNumber,
		CourtName:     in.CourtName,
		OpposingParty: in.OpposingParty,
		Notes:         in.Notes,
	}
	if in.NextHearingDate != nil {
		t, err := time.Parse("2006-01-02", *in.NextHearingDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "next_hearing_date must be YYYY-MM-DD")
		}
		input.NextHearingDate = &t
	}
	if in.Status != nil {
		st := models.CaseStatus(*in.Status)
		input.Status = &st
	}

	cs, err := h.svc.UpdateDetails(c.Context(), auth.CurrentActor(c), caseID, input)
	if err != nil {
		return err
	}
	return c.JSON(cs)
}
