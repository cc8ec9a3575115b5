package cases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/meronaya/legal-backend/internal/notifications"
	"github.com/meronaya/legal-backend/pkg/apperr"
	"github.com/meronaya/legal-backend/pkg/models"
	"github.com/meronaya/legal-backend/pkg/utils"
)

// Service owns the case status field and its transitions. Every mutating
// operation runs in a single transaction with the case row locked FOR
// UPDATE, so the status column is the serialization point for the whole
// lifecycle.
type Service struct {
	db       *gorm.DB
	notifier *notifications.Notifier
}

func NewService(db *gorm.DB, notifier *notifications.Notifier) *Service {
	return &Service{db: db, notifier: notifier}
}

func (s *Service) notify(userID uuid.UUID, title, msg string, ntype models.NotifType, link string) {
	if s.notifier != nil {
		s.notifier.Notify(userID, title, msg, ntype, link)
	}
}

/* =============================== Create ================================= */

type CreateInput struct {
	Title               string
	Category            string
	Description         string
	Urgency             models.Urgency
	Selection           models.LawyerSelection
	RequestConsultation bool
	PreferredLawyerIDs  []uuid.UUID
}

// Create validates the input and persists a new case for the client.
// Public selection opens the case to every lawyer; specific selection
// requires each preferred id to resolve to a lawyer-role user.
func (s *Service) Create(ctx context.Context, actor models.Actor, in CreateInput) (*models.Case, error) {
	if actor.Role != models.RoleClient {
		return nil, apperr.ForbiddenRole("only clients can create cases")
	}
	if !models.ValidCategory(in.Category) {
		return nil, apperr.InvalidStatus("unknown case category: " + in.Category)
	}

	status := models.CasePublic
	var preferred []models.User
	if in.Selection == models.SelectionSpecific {
		status = models.CaseSentToLawyers

		if len(in.PreferredLawyerIDs) == 0 {
			return nil, apperr.MissingField("preferred_lawyers")
		}
		if err := s.db.WithContext(ctx).
			Where("id IN ? AND role = ?", in.PreferredLawyerIDs, models.RoleLawyer).
			Find(&preferred).Error; err != nil {
			return nil, apperr.Storage(err)
		}
		if len(preferred) != len(dedupe(in.PreferredLawyerIDs)) {
			return nil, apperr.InvalidReference("one or more selected lawyers are invalid")
		}
	}

	cs := models.Case{
		ClientID:            actor.ID,
		Title:               in.Title,
		Category:            in.Category,
		Description:         in.Description,
		Urgency:             in.Urgency,
		Selection:           in.Selection,
		RequestConsultation: in.RequestConsultation,
		Status:              status,
		PreferredLawyers:    preferred,
	}
	if err := s.db.WithContext(ctx).Create(&cs).Error; err != nil {
		return nil, apperr.Storage(err)
	}

	actorID := actor.ID
	utils.RecordTimeline(ctx, s.db, cs.ID, &actorID, models.EventCaseCreated,
		"Case created", "Case submitted: "+cs.Title)

	for _, lw := range preferred {
		s.notify(lw.ID, "New case for you",
			"A client sent you the case \""+cs.Title+"\" for review.",
			models.NotifCase, "/lawyer/case/"+cs.ID.String())
	}

	return &cs, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

/* ============================ AcceptPublic ============================== */

// AcceptPublic lets a lawyer take a public case directly. The row lock plus
// the status recheck make concurrent acceptance a single-winner race: the
// loser sees AlreadyAccepted, never a silent overwrite.
func (s *Service) AcceptPublic(ctx context.Context, actor models.Actor, caseID uuid.UUID) (*models.Case, error) {
	if actor.Role != models.RoleLawyer {
		return nil, apperr.ForbiddenRole("only lawyers can accept cases")
	}

	var cs models.Case
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&cs, "id = ?", caseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("case")
			}
			return apperr.Storage(err)
		}

		switch cs.Status {
		case models.CasePublic:
			// fall through to accept
		case models.CaseAccepted, models.CaseInProgress, models.CaseCompleted:
			return apperr.AlreadyAccepted()
		default:
			return apperr.InvalidTransition("case is not available for acceptance")
		}

		now := time.Now()
		lawyerID := actor.ID
		cs.LawyerID = &lawyerID
		cs.Status = models.CaseAccepted
		cs.AcceptedAt = &now
		if err := tx.Model(&models.Case{}).Where("id = ?", cs.ID).
			Updates(map[string]any{
				"lawyer_id":   lawyerID,
				"status":      models.CaseAccepted,
				"accepted_at": now,
			}).Error; err != nil {
			return apperr.Storage(err)
		}

		actorID := actor.ID
		utils.RecordTimeline(ctx, tx, cs.ID, &actorID, models.EventCaseAccepted,
			"Case accepted", "A lawyer accepted the case directly.")
		return nil
	})
	if err != nil {
		return nil, asAppErr(err)
	}

	s.notify(cs.ClientID, "Case accepted",
		"A lawyer accepted your case \""+cs.Title+"\".",
		models.NotifCase, "/client/case/"+cs.ID.String())

	return &cs, nil
}

/* ============================ UpdateStatus ============================== */

// UpdateStatus moves a case to any member of the status enum.
//
// UpdateStatus moves a case to newStatus. Only the case's participants
// (client, assigned lawyer, staff) may call it.
func (s *Service) UpdateStatus(ctx context.Context, actor models.Actor, caseID uuid.UUID, newStatus models.CaseStatus) (*models.Case, error) {
	if !models.ValidCaseStatus(newStatus) {
		return nil, apperr.InvalidStatus("invalid case status: " + string(newStatus))
	}

	var cs models.Case
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&cs, "id = ?", caseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("case")
			}
			return apperr.Storage(err)
		}

		if !actor.IsStaff && actor.ID != cs.ClientID &&
			(cs.LawyerID == nil || *cs.LawyerID != actor.ID) {
			return apperr.Forbidden("you are not a participant on this case")
		}

		oldStatus := cs.Status
		updates := map[string]any{"status": newStatus}
		now := time.Now()

		// Timestamps are set exactly once, on the first transition in.
		if newStatus == models.CaseAccepted {
			if cs.LawyerID == nil {
				lawyerID := actor.ID
				cs.LawyerID = &lawyerID
				updates["lawyer_id"] = lawyerID
			}
			if cs.AcceptedAt == nil {
				cs.AcceptedAt = &now
				updates["accepted_at"] = now
			}
		}
		if newStatus == models.CaseCompleted && cs.CompletedAt == nil {
			cs.CompletedAt = &now
			updates["completed_at"] = now
		}

		if err := tx.Model(&models.Case{}).Where("id = ?", cs.ID).
			Updates(updates).Error; err != nil {
			return apperr.Storage(err)
		}
		cs.Status = newStatus

		actorID := actor.ID
		utils.RecordTimeline(ctx, tx, cs.ID, &actorID, models.EventStatusChanged,
			"Status changed",
			fmt.Sprintf("Case status changed from %s to %s", oldStatus, newStatus))
		return nil
	})
	if err != nil {
		return nil, asAppErr(err)
	}

	// Tell the counterpart, not the actor.
	if actor.ID == cs.ClientID && cs.LawyerID != nil {
		s.notify(*cs.LawyerID, "Case status updated",
			fmt.Sprintf("Case \"%s\" is now %s.", cs.Title, cs.Status),
			models.NotifCase, "/lawyer/case/"+cs.ID.String())
	} else if actor.ID != cs.ClientID {
		s.notify(cs.ClientID, "Case status updated",
			fmt.Sprintf("Your case \"%s\" is now %s.", cs.Title, cs.Status),
			models.NotifCase, "/client/case/"+cs.ID.String())
	}

	return &cs, nil
}

/* ============================ UpdateDetails ============================= */

type DetailsInput struct {
	CaseNumber      *string
	CourtName       *string
	OpposingParty   *string
	NextHearingDate *time.Time
	Status          *models.CaseStatus
	Notes           *string
}

// UpdateDetails lets the assigned lawyer fill in court information.
// Only the whitelisted fields above are writable through this path.
func (s *Service) UpdateDetails(ctx context.Context, actor models.Actor, caseID uuid.UUID, in DetailsInput) (*models.Case, error) {
	if actor.Role != models.RoleLawyer {
		return nil, apperr.ForbiddenRole("only lawyers can update case details")
	}

	var cs models.Case
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&cs, "id = ?", caseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("case")
			}
			return apperr.Storage(err)
		}

		if cs.LawyerID == nil || *cs.LawyerID != actor.ID {
			return apperr.Forbidden("you can only update cases assigned to you")
		}

		updates := map[string]any{}
		if in.CaseNumber != nil {
			updates["case_number"] = *in.CaseNumber
			cs.CaseNumber = *in.CaseNumber
		}
		if in.CourtName != nil {
			updates["court_name"] = *in.CourtName
			cs.CourtName = *in.CourtName
		}
		if in.OpposingParty != nil {
			updates["opposing_party"] = *in.OpposingParty
			cs.OpposingParty = *in.OpposingParty
		}
		if in.NextHearingDate != nil {
			updates["next_hearing_date"] = *in.NextHearingDate
			cs.NextHearingDate = in.NextHearingDate
		}
		if in.Notes != nil {
			updates["notes"] = *in.Notes
			cs.Notes = *in.Notes
		}
		if in.Status != nil {
			if !models.ValidCaseStatus(*in.Status) {
				return apperr.InvalidStatus("invalid case status: " + string(*in.Status))
			}
			updates["status"] = *in.Status
			cs.Status = *in.Status
			if *in.Status == models.CaseCompleted && cs.CompletedAt == nil {
				now := time.Now()
				updates["completed_at"] = now
				cs.CompletedAt = &now
			}
		}
		if len(updates) == 0 {
			return nil
		}

		if err := tx.Model(&models.Case{}).Where("id = ?", cs.ID).
			Updates(updates).Error; err != nil {
			return apperr.Storage(err)
		}

		actorID := actor.ID
		if in.NextHearingDate != nil {
			utils.RecordTimeline(ctx, tx, cs.ID, &actorID, models.EventHearingScheduled,
				"Hearing scheduled",
				"Next hearing set for "+in.NextHearingDate.Format("2006-01-02"))
		}
		utils.RecordTimeline(ctx, tx, cs.ID, &actorID, models.EventCaseUpdated,
			"Case details updated", "The assigned lawyer updated case details.")
		return nil
	})
	if err != nil {
		return nil, asAppErr(err)
	}

	s.notify(cs.ClientID, "Case updated",
		"Your lawyer updated details on \""+cs.Title+"\".",
		models.NotifCase, "/client/case/"+cs.ID.String())

	return &cs, nil
}

/* ============================= Visibility =============================== */

// VisibleTo scopes a case query to what the actor may see:
// clients their own cases; lawyers their assigned cases, open public cases,
// and directed cases where they are preferred; staff everything.
func VisibleTo(db *gorm.DB, actor models.Actor) *gorm.DB {
	switch {
	case actor.IsStaff:
		return db.Model(&models.Case{})
	case actor.Role == models.RoleClient:
		return db.Model(&models.Case{}).Where("cases.client_id = ?", actor.ID)
	default:
		return db.Model(&models.Case{}).
			Where(`cases.lawyer_id = ?
				OR (cases.status IN ? AND cases.lawyer_selection = ?)
				OR (cases.status IN ? AND EXISTS (
					SELECT 1 FROM case_preferred_lawyers cpl
					WHERE cpl.case_id = cases.id AND cpl.user_id = ?))`,
				actor.ID,
				[]models.CaseStatus{models.CasePublic, models.CaseProposalsReceived}, models.SelectionPublic,
				[]models.CaseStatus{models.CaseSentToLawyers, models.CaseProposalsReceived},
				actor.ID)
	}
}

// asAppErr keeps structured failures intact and wraps anything else as a
// storage fault.
func asAppErr(err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	return apperr.Storage(err)
}
