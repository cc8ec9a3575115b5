package utils

import (
	"context"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/meronaya/legal-backend/pkg/models"
)

// RecordTimeline appends an audit entry to a case's timeline.
// Entries are append-only; nothing in the lifecycle updates or deletes them.
// Errors are logged and swallowed (best-effort logging): a failed append
// must never fail the lifecycle operation that triggered it.
//
// Pass the caller's transaction as db to make the entry part of the same
// commit, or the root *gorm.DB to record it independently.
func RecordTimeline(
	ctx context.Context,
	db *gorm.DB,
	caseID uuid.UUID,
	actorID *uuid.UUID, // nil = system-generated
	event models.TimelineEvent,
	title, description string,
) {
	err := db.WithContext(ctx).Create(&models.CaseTimeline{
		CaseID:      caseID,
		EventType:   event,
		Title:       title,
		Description: description,
		CreatedBy:   actorID,
	}).Error
	if err != nil {
		log.Printf("timeline: append %s for case %s failed: %v", event, caseID, err)
	}
}
