package proposals

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/meronaya/legal-backend/internal/notifications"
	"github.com/meronaya/legal-backend/pkg/apperr"
	"github.com/meronaya/legal-backend/pkg/models"
)

/* ============================================================================
   Helpers
   ============================================================================ */

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	_ = godotenv.Load()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is empty")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{}, &models.Case{}, &models.CaseTimeline{},
		&models.Proposal{}, &models.Notification{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() {
		sql := `
TRUNCATE TABLE
	notifications,
	proposals,
	case_timelines,
	cases,
	users
RESTART IDENTITY CASCADE`
		if err := db.Exec(sql).Error; err != nil {
			t.Logf("truncate failed (ignored): %v", err)
		}
	})

	return db
}

func seedUser(t *testing.T, db *gorm.DB, role models.Role) models.User {
	t.Helper()
	u := models.User{
		ID:           uuid.New(),
		Email:        fmt.Sprintf("%s+%s@test.local", role, uuid.NewString()),
		PasswordHash: "x",
		Role:         role,
	}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func seedCase(t *testing.T, db *gorm.DB, clientID uuid.UUID, status models.CaseStatus) models.Case {
	t.Helper()
	cs := models.Case{
		ID:          uuid.New(),
		ClientID:    clientID,
		Title:       "Inheritance dispute",
		Category:    "Family Law",
		Description: "Siblings disagree over the division of an estate.",
		Status:      status,
	}
	require.NoError(t, db.Create(&cs).Error)
	return cs
}

func actorFor(u models.User) models.Actor {
	return models.Actor{ID: u.ID, Role: u.Role, IsStaff: u.Role == models.RoleSuperAdmin}
}

func appCode(t *testing.T, err error) apperr.Code {
	t.Helper()
	ae, ok := err.(*apperr.Error)
	require.True(t, ok, "expected *apperr.Error, got %T: %v", err, err)
	return ae.Code
}

const sampleText = "I have handled a dozen estate disputes like this one and can take it on."

/* ============================================================================
   Submit
   ============================================================================ */

func TestSubmit_FirstProposalFlipsStatus(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil)
	client := seedUser(t, db, models.RoleClient)
	lawyer := seedUser(t, db, models.RoleLawyer)
	cs := seedCase(t, db, client.ID, models.CasePublic)

	prop, err := svc.Submit(context.Background(), actorFor(lawyer), cs.ID, sampleText)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalPending, prop.Status)

	var got models.Case
	require.NoError(t, db.First(&got, "id = ?", cs.ID).Error)
	assert.Equal(t, models.CaseProposalsReceived, got.Status)
	assert.Equal(t, 1, got.ProposalCount)
}

func TestSubmit_DuplicateRejected(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil)
	client := seedUser(t, db, models.RoleClient)
	lawyer := seedUser(t, db, models.RoleLawyer)
	cs := seedCase(t, db, client.ID, models.CasePublic)

	_, err := svc.Submit(context.Background(), actorFor(lawyer), cs.ID, sampleText)
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), actorFor(lawyer), cs.ID, "Second attempt on the same case.")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeDuplicateProposal, appCode(t, err))

	var cnt int64
	require.NoError(t, db.Model(&models.Proposal{}).
		Where("case_id = ? AND lawyer_id = ?", cs.ID, lawyer.ID).Count(&cnt).Error)
	assert.EqualValues(t, 1, cnt)
}

func TestSubmit_ClosedCaseRejected(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil)
	client := seedUser(t, db, models.RoleClient)
	lawyer := seedUser(t, db, models.RoleLawyer)

	for _, st := range []models.CaseStatus{
		models.CaseAccepted, models.CaseInProgress,
		models.CaseCompleted, models.CaseCancelled,
	} {
		cs := seedCase(t, db, client.ID, st)
		_, err := svc.Submit(context.Background(), actorFor(lawyer), cs.ID, sampleText)
		require.Error(t, err, "status %s must reject proposals", st)
		assert.Equal(t, apperr.CodeInvalidTransition, appCode(t, err))
	}
}

func TestSubmit_ClientForbidden(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil)
	client := seedUser(t, db, models.RoleClient)
	cs := seedCase(t, db, client.ID, models.CasePublic)

	_, err := svc.Submit(context.Background(), actorFor(client), cs.ID, sampleText)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeForbiddenRole, appCode(t, err))
}

/* ============================================================================
   Accept
   ============================================================================ */

func TestAccept_WinnerTakesCase_SiblingsRejected(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil)
	client := seedUser(t, db, models.RoleClient)
	cs := seedCase(t, db, client.ID, models.CasePublic)

	var props []*models.Proposal
	for i := 0; i < 3; i++ {
		lawyer := seedUser(t, db, models.RoleLawyer)
		p, err := svc.Submit(context.Background(), actorFor(lawyer), cs.ID, sampleText)
		require.NoError(t, err)
		props = append(props, p)
	}

	winner, err := svc.Accept(context.Background(), actorFor(client), props[1].ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalAccepted, winner.Status)
	assert.NotNil(t, winner.ReviewedAt)

	var finalCase models.Case
	require.NoError(t, db.First(&finalCase, "id = ?", cs.ID).Error)
	assert.Equal(t, models.CaseAccepted, finalCase.Status)
	require.NotNil(t, finalCase.LawyerID)
	assert.Equal(t, props[1].LawyerID, *finalCase.LawyerID)
	assert.NotNil(t, finalCase.AcceptedAt)

	var all []models.Proposal
	require.NoError(t, db.Where("case_id = ?", cs.ID).Find(&all).Error)
	accepted, rejected := 0, 0
	for _, p := range all {
		switch p.Status {
		case models.ProposalAccepted:
			accepted++
		case models.ProposalRejected:
			rejected++
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 2, rejected)
}

func TestAccept_OnlyCaseOwner(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil)
	client := seedUser(t, db, models.RoleClient)
	other := seedUser(t, db, models.RoleClient)
	lawyer := seedUser(t, db, models.RoleLawyer)
	cs := seedCase(t, db, client.ID, models.CasePublic)

	p, err := svc.Submit(context.Background(), actorFor(lawyer), cs.ID, sampleText)
	require.NoError(t, err)

	_, err = svc.Accept(context.Background(), actorFor(other), p.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeForbidden, appCode(t, err))
}

// Concurrent accepts on two proposals of the same case must elect exactly
// one winner; the loser fails because its proposal was rejected by the
// winning transaction.
func TestAccept_ConcurrentAccepts_OneWinner(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil)
	client := seedUser(t, db, models.RoleClient)
	cs := seedCase(t, db, client.ID, models.CasePublic)

	var ids []uuid.UUID
	for i := 0; i < 2; i++ {
		lawyer := seedUser(t, db, models.RoleLawyer)
		p, err := svc.Submit(context.Background(), actorFor(lawyer), cs.ID, sampleText)
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			_, errs[i] = svc.Accept(context.Background(), actorFor(client), id)
		}(i, id)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		}
	}
	assert.Equal(t, 1, wins)

	var accepted int64
	require.NoError(t, db.Model(&models.Proposal{}).
		Where("case_id = ? AND status = ?", cs.ID, models.ProposalAccepted).
		Count(&accepted).Error)
	assert.EqualValues(t, 1, accepted)
}

func TestAccept_AlreadyDecidedConflicts(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil)
	client := seedUser(t, db, models.RoleClient)
	lawyer := seedUser(t, db, models.RoleLawyer)
	cs := seedCase(t, db, client.ID, models.CasePublic)

	p, err := svc.Submit(context.Background(), actorFor(lawyer), cs.ID, sampleText)
	require.NoError(t, err)
	_, err = svc.Accept(context.Background(), actorFor(client), p.ID)
	require.NoError(t, err)

	_, err = svc.Accept(context.Background(), actorFor(client), p.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeAlreadyReviewed, appCode(t, err))
}

// A lawyer whose proposal the client already turned down one by one must
// not hear "not selected" again when a sibling is accepted later; only the
// lawyers rejected by the accept itself do.
func TestAccept_NotifiesOnlyFreshlyRejectedLawyers(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, notifications.NewNotifier(db, nil))
	client := seedUser(t, db, models.RoleClient)
	winner := seedUser(t, db, models.RoleLawyer)
	pending := seedUser(t, db, models.RoleLawyer)
	turnedDown := seedUser(t, db, models.RoleLawyer)
	cs := seedCase(t, db, client.ID, models.CasePublic)

	winProp, err := svc.Submit(context.Background(), actorFor(winner), cs.ID, sampleText)
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), actorFor(pending), cs.ID, sampleText)
	require.NoError(t, err)
	earlyProp, err := svc.Submit(context.Background(), actorFor(turnedDown), cs.ID, sampleText)
	require.NoError(t, err)

	_, err = svc.Reject(context.Background(), actorFor(client), earlyProp.ID, "too expensive")
	require.NoError(t, err)
	_, err = svc.Accept(context.Background(), actorFor(client), winProp.ID)
	require.NoError(t, err)

	notSelected := func(lawyerID uuid.UUID) int64 {
		var n int64
		require.NoError(t, db.Model(&models.Notification{}).
			Where("user_id = ? AND title = ?", lawyerID, "Proposal not selected").
			Count(&n).Error)
		return n
	}
	assert.EqualValues(t, 1, notSelected(pending.ID))
	assert.EqualValues(t, 0, notSelected(turnedDown.ID))
}

/* ============================================================================
   Reject / Withdraw
   ============================================================================ */

func TestReject_StoresFeedback(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil)
	client := seedUser(t, db, models.RoleClient)
	lawyer := seedUser(t, db, models.RoleLawyer)
	cs := seedCase(t, db, client.ID, models.CasePublic)

	p, err := svc.Submit(context.Background(), actorFor(lawyer), cs.ID, sampleText)
	require.NoError(t, err)

	got, err := svc.Reject(context.Background(), actorFor(client), p.ID, "Looking for someone local.")
	require.NoError(t, err)
	assert.Equal(t, models.ProposalRejected, got.Status)
	assert.Equal(t, "Looking for someone local.", got.ClientFeedback)
	assert.NotNil(t, got.ReviewedAt)
}

func TestWithdraw_DecrementsCountWithFloor(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil)
	client := seedUser(t, db, models.RoleClient)
	lawyer := seedUser(t, db, models.RoleLawyer)
	cs := seedCase(t, db, client.ID, models.CasePublic)

	p, err := svc.Submit(context.Background(), actorFor(lawyer), cs.ID, sampleText)
	require.NoError(t, err)

	got, err := svc.Withdraw(context.Background(), actorFor(lawyer), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalWithdrawn, got.Status)

	var final models.Case
	require.NoError(t, db.First(&final, "id = ?", cs.ID).Error)
	assert.Equal(t, 0, final.ProposalCount)

	// Force the counter out of sync; a stray decrement must not go negative.
	require.NoError(t, db.Model(&models.Case{}).Where("id = ?", cs.ID).
		Update("proposal_count", gorm.Expr("GREATEST(proposal_count - 1, 0)")).Error)
	require.NoError(t, db.First(&final, "id = ?", cs.ID).Error)
	assert.Equal(t, 0, final.ProposalCount)
}

func TestWithdraw_OnlyOwnProposal(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil)
	client := seedUser(t, db, models.RoleClient)
	lawyer := seedUser(t, db, models.RoleLawyer)
	other := seedUser(t, db, models.RoleLawyer)
	cs := seedCase(t, db, client.ID, models.CasePublic)

	p, err := svc.Submit(context.Background(), actorFor(lawyer), cs.ID, sampleText)
	require.NoError(t, err)

	_, err = svc.Withdraw(context.Background(), actorFor(other), p.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeForbidden, appCode(t, err))
}
