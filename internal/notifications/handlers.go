package notifications

import (
	"math"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"

	"github.com/meronaya/legal-backend/internal/auth"
	"github.com/meronaya/legal-backend/pkg/models"
)

type Handler struct {
	db  *gorm.DB
	hub *Hub
}

func NewHandler(db *gorm.DB, hub *Hub) *Handler { return &Handler{db: db, hub: hub} }

func parsePage(c *fiber.Ctx) (page, size int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	size, _ = strconv.Atoi(c.Query("pageSize", "20"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	return
}

// List godoc
// @Summary      List my notifications
// @Tags         notifications
// @Security     BearerAuth
// @Produce      json
// @Param        page      query int  false "page"
// @Param        pageSize  query int  false "pageSize"
// @Param        unread    query bool false "only unread"
// @Success      200  {object}  map[string]any
// @Router       /notifications [get]
func (h *Handler) List(c *fiber.Ctx) error {
	userID := auth.MustUserID(c)
	page, size := parsePage(c)

	q := h.db.Model(&models.Notification{}).Where("user_id = ?", userID)
	if c.QueryBool("unread") {
		q = q.Where("is_read = false")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	items := make([]models.Notification, 0, size)
	if err := q.Order("created_at DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&items).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	return c.JSON(fiber.Map{
		"page": page, "pageSize": size, "total": total,
		"pages": int(math.Ceil(float64(total) / float64(size))),
		"items": items,
	})
}

// UnreadCount godoc
// @Summary      Count unread notifications
// @Tags         notifications
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  map[string]int64
// @Router       /notifications/unread-count [get]
func (h *Handler) UnreadCount(c *fiber.Ctx) error {
	userID := auth.MustUserID(c)

	var count int64
	if err := h.db.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = false", userID).
		Count(&count).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"unread": count})
}

// MarkRead godoc
// @Summary      Mark one notification as read
// @Tags         notifications
// @Security     BearerAuth
// @Param        id  path  string  true  "notification id (uuid)"
// @Success      200  {object}  map[string]bool
// @Failure      404  {object}  models.ErrorResponse
// @Router       /notifications/{id}/read [patch]
func (h *Handler) MarkRead(c *fiber.Ctx) error {
	userID := auth.MustUserID(c)

	res := h.db.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", c.Params("id"), userID).
		Update("is_read", true)
	if res.Error != nil {
		return fiber.ErrInternalServerError
	}
	if res.RowsAffected == 0 {
		return fiber.ErrNotFound
	}
	return c.JSON(fiber.Map{"ok": true})
}

// MarkAllRead godoc
// @Summary      Mark all my notifications as read
// @Tags         notifications
// @Security     BearerAuth
// @Success      200  {object}  map[string]bool
// @Router       /notifications/read-all [patch]
func (h *Handler) MarkAllRead(c *fiber.Ctx) error {
	userID := auth.MustUserID(c)

	if err := h.db.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = false", userID).
		Update("is_read", true).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"ok": true})
}

/* ============================== WebSocket =============================== */

// UpgradeRequired gates /ws routes to real WebSocket upgrade requests.
func UpgradeRequired(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Stream keeps the user's connection registered until they disconnect.
// Incoming frames are read and discarded; the relay is push-only.
func (h *Handler) Stream() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		userID, _ := c.Locals("userID").(string)
		if userID == "" {
			_ = c.Close()
			return
		}

		h.hub.Register(userID, c)
		defer h.hub.Unregister(userID, c)
		defer c.Close()

		c.SetReadLimit(1024)
		for {
			_ = c.SetReadDeadline(time.Now().Add(10 * time.Minute))
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	})
}
