package notifications

import (
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/meronaya/legal-backend/pkg/models"
)

// Notifier persists a notification and pushes it to the recipient's open
// connections. It is fire-and-forget: a failure here never fails or rolls
// back the lifecycle operation that triggered it.
type Notifier struct {
	db  *gorm.DB
	hub *Hub
}

func NewNotifier(db *gorm.DB, hub *Hub) *Notifier {
	return &Notifier{db: db, hub: hub}
}

// Notify stores the notification and publishes it. Call after a meaningful
// action: case accepted, proposal submitted, consultation scheduled, etc.
// Always uses the root DB handle, not the caller's transaction, so the
// notification is not tied to the lifecycle commit.
func (n *Notifier) Notify(userID uuid.UUID, title, message string, ntype models.NotifType, link string) {
	notif := models.Notification{
		UserID:  userID,
		Title:   title,
		Message: message,
		Type:    ntype,
		Link:    link,
	}
	if err := n.db.Create(&notif).Error; err != nil {
		log.Printf("notifications: persist for %s failed: %v", userID, err)
		return
	}
	if n.hub != nil {
		n.hub.Publish(userID.String(), notif)
	}
}
