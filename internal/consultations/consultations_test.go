package consultations

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/meronaya/legal-backend/pkg/apperr"
	"github.com/meronaya/legal-backend/pkg/models"
)

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
		&models.User{}, &models.Case{}, &models.Consultation{},
		&models.Appointment{}, &models.Notification{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() {
		sql := `
TRUNCATE TABLE
	notifications,
	appointments,
	consultations,
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

func actorFor(u models.User) models.Actor {
	return models.Actor{ID: u.ID, Role: u.Role, IsStaff: u.Role == models.RoleSuperAdmin}
}

func appCode(t *testing.T, err error) apperr.Code {
	t.Helper()
	ae, ok := err.(*apperr.Error)
	require.True(t, ok, "expected *apperr.Error, got %T: %v", err, err)
	return ae.Code
}

/* ============================================================================
   Request
   ============================================================================ */

func TestRequest_VideoConsultation(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil)
	client := seedUser(t, db, models.RoleClient)
	lawyer := seedUser(t, db, models.RoleLawyer)

	cons, err := svc.Request(context.Background(), actorFor(client), RequestInput{
		LawyerID:      lawyer.ID,
		Mode:          models.MeetingVideo,
		RequestedDay:  "monday",
		RequestedTime: "10:00",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ConsultationRequested, cons.Status)
	assert.Equal(t, client.ID, cons.ClientID)
}

func TestRequest_InPersonRequiresLocationAndPhone(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil)
	client := seedUser(t, db, models.RoleClient)
	lawyer := seedUser(t, db, models.RoleLawyer)

	_, err := svc.Request(context.Background(), actorFor(client), RequestInput{
		LawyerID: lawyer.ID,
		Mode:     models.MeetingInPerson,
	})
	require.Error(t, err)
	ae := err.(*apperr.Error)
	assert.Equal(t, apperr.CodeMissingField, ae.Code)
	assert.Equal(t, "meeting_location", ae.Field)

	_, err = svc.Request(context.Background(), actorFor(client), RequestInput{
		LawyerID:        lawyer.ID,
		Mode:            models.MeetingInPerson,
		MeetingLocation: "12 Main Street, suite 4",
	})
	require.Error(t, err)
	ae = err.(*apperr.Error)
	assert.Equal(t, apperr.CodeMissingField, ae.Code)
	assert.Equal(t, "phone_number", ae.Field)
}

func TestRequest_CaseAnchoredChecksLawyer(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil)
	client := seedUser(t, db, models.RoleClient)
	assigned := seedUser(t, db, models.RoleLawyer)
	other := seedUser(t, db, models.RoleLawyer)

	cs := models.Case{
		ID: uuid.New(), ClientID: client.ID, LawyerID: &assigned.ID,
		Title: "T", Category: "Civil Law", Status: models.CaseAccepted,
	}
	require.NoError(t, db.Create(&cs).Error)

	// Wrong lawyer for the case is a reference error.
	_, err := svc.Request(context.Background(), actorFor(client), RequestInput{
		LawyerID: other.ID, CaseID: &cs.ID, Mode: models.MeetingVideo,
	})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidReference, appCode(t, err))

	// The assigned lawyer is fine.
	_, err = svc.Request(context.Background(), actorFor(client), RequestInput{
		LawyerID: assigned.ID, CaseID: &cs.ID, Mode: models.MeetingVideo,
	})
	require.NoError(t, err)
}

// Case-anchored requests are allowed only while the case sits in accepted,
// not before a lawyer was engaged and not after work started.
func TestRequest_UnacceptedCaseRejected(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil)
	client := seedUser(t, db, models.RoleClient)
	lawyer := seedUser(t, db, models.RoleLawyer)

	for _, status := range []models.CaseStatus{
		models.CasePublic, models.CaseInProgress, models.CaseCompleted,
	} {
		cs := models.Case{
			ID: uuid.New(), ClientID: client.ID, LawyerID: &lawyer.ID,
			Title: "T", Category: "Civil Law", Status: status,
		}
		require.NoError(t, db.Create(&cs).Error)

		_, err := svc.Request(context.Background(), actorFor(client), RequestInput{
			LawyerID: lawyer.ID, CaseID: &cs.ID, Mode: models.MeetingVideo,
		})
		require.Error(t, err, "status %s", status)
		assert.Equal(t, apperr.CodeInvalidTransition, appCode(t, err), "status %s", status)
	}
}

/* ============================================================================
   Accept / Reject / Complete
   ============================================================================ */

func TestAccept_CreatesAppointment_PaymentByMode(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil)
	client := seedUser(t, db, models.RoleClient)
	lawyer := seedUser(t, db, models.RoleLawyer)

	tests := []struct {
		mode models.MeetingMode
		want models.PayStatus
	}{
		{models.MeetingVideo, models.PayPending},
		{models.MeetingInPerson, models.PayInHand},
	}
	for _, tc := range tests {
		in := RequestInput{LawyerID: lawyer.ID, Mode: tc.mode}
		if tc.mode == models.MeetingInPerson {
			in.MeetingLocation = "12 Main Street"
			in.PhoneNumber = "+15550100200"
		}
		cons, err := svc.Request(context.Background(), actorFor(client), in)
		require.NoError(t, err)

		got, err := svc.Accept(context.Background(), actorFor(lawyer), cons.ID,
			"2026-09-15", "14:00", "https://meet.example.com/abc")
		require.NoError(t, err)
		assert.Equal(t, models.ConsultationAccepted, got.Status)

		var appt models.Appointment
		require.NoError(t, db.First(&appt, "consultation_id = ?", cons.ID).Error)
		assert.Equal(t, models.AppointmentPending, appt.Status)
		assert.Equal(t, tc.want, appt.PaymentStatus, "mode %s", tc.mode)
		assert.Equal(t, "2026-09-15", appt.ScheduledDate)
	}
}

func TestAccept_OnlyRequestedLawyer(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil)
	client := seedUser(t, db, models.RoleClient)
	lawyer := seedUser(t, db, models.RoleLawyer)
	other := seedUser(t, db, models.RoleLawyer)

	cons, err := svc.Request(context.Background(), actorFor(client), RequestInput{
		LawyerID: lawyer.ID, Mode: models.MeetingVideo,
	})
	require.NoError(t, err)

	_, err = svc.Accept(context.Background(), actorFor(other), cons.ID, "", "", "")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeForbidden, appCode(t, err))
}

func TestComplete_CascadesToAppointment(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil)
	client := seedUser(t, db, models.RoleClient)
	lawyer := seedUser(t, db, models.RoleLawyer)

	cons, err := svc.Request(context.Background(), actorFor(client), RequestInput{
		LawyerID: lawyer.ID, Mode: models.MeetingVideo,
	})
	require.NoError(t, err)
	_, err = svc.Accept(context.Background(), actorFor(lawyer), cons.ID, "2026-09-20", "09:00", "")
	require.NoError(t, err)

	got, err := svc.Complete(context.Background(), actorFor(client), cons.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConsultationCompleted, got.Status)

	var appt models.Appointment
	require.NoError(t, db.First(&appt, "consultation_id = ?", cons.ID).Error)
	assert.Equal(t, models.AppointmentCompleted, appt.Status)
}

func TestComplete_RequestedCannotComplete(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil)
	client := seedUser(t, db, models.RoleClient)
	lawyer := seedUser(t, db, models.RoleLawyer)

	cons, err := svc.Request(context.Background(), actorFor(client), RequestInput{
		LawyerID: lawyer.ID, Mode: models.MeetingVideo,
	})
	require.NoError(t, err)

	_, err = svc.Complete(context.Background(), actorFor(lawyer), cons.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidTransition, appCode(t, err))
}
