package reviews

import (
	"errors"
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/meronaya/legal-backend/internal/auth"
	"github.com/meronaya/legal-backend/internal/notifications"
	"github.com/meronaya/legal-backend/pkg/apperr"
	"github.com/meronaya/legal-backend/pkg/models"
	"github.com/meronaya/legal-backend/pkg/validation"
)

type Handler struct {
	db       *gorm.DB
	notifier *notifications.Notifier
}

func NewHandler(db *gorm.DB, notifier *notifications.Notifier) *Handler {
	return &Handler{db: db, notifier: notifier}
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

/* ===================================== */
/* POST /api/reviews (client)            */
/* ===================================== */

type CreateReviewRequest struct {
	LawyerID string `json:"lawyer_id" validate:"required,uuid4"`
	Title    string `json:"title" validate:"omitempty,max=255"`
	Comment  string `json:"comment" validate:"required,min=10,max=2000"`
	Rating   int    `json:"rating" validate:"required,min=1,max=5"`
}

func (h *Handler) Create(c *fiber.Ctx) error {
	actor := auth.CurrentActor(c)
	if actor.Role != models.RoleClient {
		return apperr.ForbiddenRole("only clients can leave reviews")
	}

	var req CreateReviewRequest
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
	var lawyer models.User
	if err := h.db.First(&lawyer, "id = ? AND role = ?", lawyerID, models.RoleLawyer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("lawyer")
		}
		return apperr.Storage(err)
	}

	// A completed consultation with the lawyer marks the review as verified.
	var done int64
	if err := h.db.Model(&models.Consultation{}).
		Where("client_id = ? AND lawyer_id = ? AND status = ?",
			actor.ID, lawyerID, models.ConsultationCompleted).
		Count(&done).Error; err != nil {
		return apperr.Storage(err)
	}

	rev := models.Review{
		ClientID:               actor.ID,
		LawyerID:               lawyerID,
		Title:                  req.Title,
		Comment:                req.Comment,
		Rating:                 req.Rating,
		IsVerifiedConsultation: done > 0,
	}
	if err := h.db.Create(&rev).Error; err != nil {
		return apperr.Storage(err)
	}

	if h.notifier != nil {
		h.notifier.Notify(lawyerID, "New review",
			"A client left you a review.", models.NotifSystem, "/lawyer/reviews")
	}
	return c.Status(fiber.StatusCreated).JSON(rev)
}

/* ============================================== */
/* GET /api/lawyers/:id/reviews                   */
/* GET /api/reviews/mine (client)                 */
/* GET /api/lawyers/:id/reviews/summary           */
/* ============================================== */

func (h *Handler) ListByLawyer(c *fiber.Ctx) error {
	lawyerID := c.Params("id")
	if _, err := uuid.Parse(lawyerID); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid lawyer id")
	}
	page, size := parsePage(c)

	q := h.db.Model(&models.Review{}).Where("lawyer_id = ?", lawyerID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	var rows []models.Review
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

func (h *Handler) ListMine(c *fiber.Ctx) error {
	actorID := auth.MustUserID(c)
	page, size := parsePage(c)

	q := h.db.Model(&models.Review{}).Where("client_id = ?", actorID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	var rows []models.Review
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

type reviewSummary struct {
	LawyerID      string         `json:"lawyer_id"`
	AverageRating float64        `json:"average_rating"`
	TotalReviews  int64          `json:"total_reviews"`
	Distribution  map[string]int `json:"distribution"`
}

func (h *Handler) Summary(c *fiber.Ctx) error {
	lawyerID := c.Params("id")
	if _, err := uuid.Parse(lawyerID); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid lawyer id")
	}

	var agg struct {
		Avg   float64
		Count int64
	}
	if err := h.db.Model(&models.Review{}).
		Select("COALESCE(AVG(rating), 0) AS avg, COUNT(*) AS count").
		Where("lawyer_id = ?", lawyerID).
		Scan(&agg).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	type bucket struct {
		Rating int
		N      int
	}
	var buckets []bucket
	if err := h.db.Model(&models.Review{}).
		Select("rating, COUNT(*) AS n").
		Where("lawyer_id = ?", lawyerID).
		Group("rating").
		Scan(&buckets).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	dist := map[string]int{"1": 0, "2": 0, "3": 0, "4": 0, "5": 0}
	for _, b := range buckets {
		dist[strconv.Itoa(b.Rating)] = b.N
	}

	return c.JSON(reviewSummary{
		LawyerID:      lawyerID,
		AverageRating: math.Round(agg.Avg*10) / 10,
		TotalReviews:  agg.Count,
		Distribution:  dist,
	})
}
