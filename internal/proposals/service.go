package proposals

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/meronaya/legal-backend/internal/notifications"
	"github.com/meronaya/legal-backend/pkg/apperr"
	"github.com/meronaya/legal-backend/pkg/models"
	"github.com/meronaya/legal-backend/pkg/utils"
)

// Service owns proposal submission and the accept-one-reject-rest rule.
// Every mutation locks the parent case row first, so competing submits and
// accepts on the same case serialize on a single point.
type Service struct {
	db       *gorm.DB
	notifier *notifications.Notifier
}

func NewService(db *gorm.DB, notifier *notifications.Notifier) *Service {
	return &Service{db: db, notifier: notifier}
}

func (s *Service) notify(userID uuid.UUID, title, msg string, link string) {
	if s.notifier != nil {
		s.notifier.Notify(userID, title, msg, models.NotifCase, link)
	}
}

/* ================================ Submit ================================ */

// Submit creates a pending proposal for an open case. The duplicate
// pre-check under the case lock is an optimization; the unique index on
// (case_id, lawyer_id) is the guarantee, and a constraint violation on
// insert still comes back as DuplicateProposal.
func (s *Service) Submit(ctx context.Context, actor models.Actor, caseID uuid.UUID, text string) (*models.Proposal, error) {
	if actor.Role != models.RoleLawyer {
		return nil, apperr.ForbiddenRole("only lawyers can submit proposals")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.MissingField("proposal_text")
	}

	var (
		prop models.Proposal
		cs   models.Case
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&cs, "id = ?", caseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("case")
			}
			return apperr.Storage(err)
		}
		if !cs.IsOpen() {
			return apperr.InvalidTransition("this case is no longer accepting proposals")
		}

		var cnt int64
		if err := tx.Model(&models.Proposal{}).
			Where("case_id = ? AND lawyer_id = ?", caseID, actor.ID).
			Count(&cnt).Error; err != nil {
			return apperr.Storage(err)
		}
		if cnt > 0 {
			return apperr.DuplicateProposal()
		}

		prop = models.Proposal{
			CaseID:       caseID,
			LawyerID:     actor.ID,
			ProposalText: text,
			Status:       models.ProposalPending,
		}
		if err := tx.Create(&prop).Error; err != nil {
			if isUniqueViolation(err) {
				return apperr.DuplicateProposal()
			}
			return apperr.Storage(err)
		}

		updates := map[string]any{
			"proposal_count": gorm.Expr("proposal_count + 1"),
		}
		// First proposal flips the case into proposals_received; it keeps
		// accepting more until the client decides.
		if cs.Status == models.CasePublic || cs.Status == models.CaseSentToLawyers {
			updates["status"] = models.CaseProposalsReceived
			cs.Status = models.CaseProposalsReceived
		}
		if err := tx.Model(&models.Case{}).Where("id = ?", caseID).
			Updates(updates).Error; err != nil {
			return apperr.Storage(err)
		}
		return nil
	})
	if err != nil {
		return nil, asAppErr(err)
	}

	s.notify(cs.ClientID, "New proposal received",
		"A lawyer submitted a proposal for \""+cs.Title+"\".",
		"/client/case/"+cs.ID.String())

	return &prop, nil
}

/* ================================ Accept ================================ */

// Accept marks one proposal accepted and, in the same transaction, rejects
// every sibling still pending and engages the case with the winning lawyer.
// Either all of it commits or none of it does; a concurrent reader never
// sees a half-applied decision.
func (s *Service) Accept(ctx context.Context, actor models.Actor, proposalID uuid.UUID) (*models.Proposal, error) {
	if actor.Role != models.RoleClient {
		return nil, apperr.ForbiddenRole("only clients can accept proposals")
	}

	var (
		prop     models.Proposal
		cs       models.Case
		loserIDs []uuid.UUID
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&prop, "id = ?", proposalID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("proposal")
			}
			return apperr.Storage(err)
		}

		// Lock the case before re-reading the proposal: the case row is the
		// serialization point, so two clients racing on different proposals
		// of the same case queue up here.
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&cs, "id = ?", prop.CaseID).Error; err != nil {
			return apperr.Storage(err)
		}
		if cs.ClientID != actor.ID {
			return apperr.Forbidden("you can only accept proposals for your own cases")
		}

		// Re-read under the lock; the first accept may have rejected us.
		if err := tx.First(&prop, "id = ?", proposalID).Error; err != nil {
			return apperr.Storage(err)
		}
		if !prop.IsPending() {
			return apperr.AlreadyReviewed()
		}
		if !cs.IsOpen() {
			return apperr.AlreadyAccepted()
		}

		now := time.Now()

		// Winner
		if err := tx.Model(&models.Proposal{}).Where("id = ?", prop.ID).
			Updates(map[string]any{
				"status":      models.ProposalAccepted,
				"reviewed_at": now,
			}).Error; err != nil {
			return apperr.Storage(err)
		}
		prop.Status = models.ProposalAccepted
		prop.ReviewedAt = &now

		// Everyone else still pending. Remember who, so only lawyers
		// turned down by this decision hear about it; proposals the
		// client rejected individually before were notified then.
		if err := tx.Model(&models.Proposal{}).
			Where("case_id = ? AND id <> ? AND status = ?", cs.ID, prop.ID, models.ProposalPending).
			Pluck("lawyer_id", &loserIDs).Error; err != nil {
			return apperr.Storage(err)
		}
		if len(loserIDs) > 0 {
			if err := tx.Model(&models.Proposal{}).
				Where("case_id = ? AND id <> ? AND status = ?", cs.ID, prop.ID, models.ProposalPending).
				Updates(map[string]any{
					"status":      models.ProposalRejected,
					"reviewed_at": now,
				}).Error; err != nil {
				return apperr.Storage(err)
			}
		}

		// Engage the case
		if err := tx.Model(&models.Case{}).Where("id = ?", cs.ID).
			Updates(map[string]any{
				"lawyer_id":   prop.LawyerID,
				"status":      models.CaseAccepted,
				"accepted_at": now,
			}).Error; err != nil {
			return apperr.Storage(err)
		}

		actorID := actor.ID
		utils.RecordTimeline(ctx, tx, cs.ID, &actorID, models.EventCaseAccepted,
			"Proposal accepted", "The client accepted a proposal and engaged a lawyer.")
		return nil
	})
	if err != nil {
		return nil, asAppErr(err)
	}

	s.notify(prop.LawyerID, "Proposal accepted",
		"Your proposal for \""+cs.Title+"\" was accepted.",
		"/lawyer/case/"+cs.ID.String())

	// Losing lawyers hear about it too, outside the transaction.
	for _, id := range loserIDs {
		s.notify(id, "Proposal not selected",
			"The client chose another proposal for \""+cs.Title+"\".",
			"/lawyer/proposals")
	}

	return &prop, nil
}

/* ================================ Reject ================================ */

// Reject turns down a pending proposal, optionally with client feedback.
func (s *Service) Reject(ctx context.Context, actor models.Actor, proposalID uuid.UUID, feedback string) (*models.Proposal, error) {
	if actor.Role != models.RoleClient {
		return nil, apperr.ForbiddenRole("only clients can reject proposals")
	}

	var prop models.Proposal
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&prop, "id = ?", proposalID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("proposal")
			}
			return apperr.Storage(err)
		}

		var cs models.Case
		if err := tx.First(&cs, "id = ?", prop.CaseID).Error; err != nil {
			return apperr.Storage(err)
		}
		if cs.ClientID != actor.ID {
			return apperr.Forbidden("you can only reject proposals for your own cases")
		}
		if !prop.IsPending() {
			return apperr.AlreadyReviewed()
		}

		now := time.Now()
		updates := map[string]any{
			"status":      models.ProposalRejected,
			"reviewed_at": now,
		}
		if fb := strings.TrimSpace(feedback); fb != "" {
			updates["client_feedback"] = fb
			prop.ClientFeedback = fb
		}
		if err := tx.Model(&models.Proposal{}).Where("id = ?", prop.ID).
			Updates(updates).Error; err != nil {
			return apperr.Storage(err)
		}
		prop.Status = models.ProposalRejected
		prop.ReviewedAt = &now
		return nil
	})
	if err != nil {
		return nil, asAppErr(err)
	}

	s.notify(prop.LawyerID, "Proposal rejected",
		"Your proposal was not accepted by the client.",
		"/lawyer/proposals")

	return &prop, nil
}

/* =============================== Withdraw =============================== */

// Withdraw pulls a pending proposal back and releases its slot in the
// case's proposal count. GREATEST keeps the counter at zero even if the
// count drifted out of sync.
func (s *Service) Withdraw(ctx context.Context, actor models.Actor, proposalID uuid.UUID) (*models.Proposal, error) {
	if actor.Role != models.RoleLawyer {
		return nil, apperr.ForbiddenRole("only lawyers can withdraw proposals")
	}

	var prop models.Proposal
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&prop, "id = ?", proposalID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("proposal")
			}
			return apperr.Storage(err)
		}
		if prop.LawyerID != actor.ID {
			return apperr.Forbidden("you can only withdraw your own proposals")
		}
		if !prop.IsPending() {
			return apperr.AlreadyReviewed()
		}

		if err := tx.Model(&models.Proposal{}).Where("id = ?", prop.ID).
			Update("status", models.ProposalWithdrawn).Error; err != nil {
			return apperr.Storage(err)
		}
		prop.Status = models.ProposalWithdrawn

		if err := tx.Model(&models.Case{}).Where("id = ?", prop.CaseID).
			Update("proposal_count", gorm.Expr("GREATEST(proposal_count - 1, 0)")).Error; err != nil {
			return apperr.Storage(err)
		}
		return nil
	})
	if err != nil {
		return nil, asAppErr(err)
	}
	return &prop, nil
}

/* =============================== Helpers ================================ */

// isUniqueViolation matches Postgres unique constraint failures without
// importing the driver (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "23505")
}

func asAppErr(err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	return apperr.Storage(err)
}
