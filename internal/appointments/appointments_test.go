package appointments

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

	"github.com/meronaya/legal-backend/internal/consultations"
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
		&models.User{}, &models.Case{}, &models.CaseTimeline{}, &models.Consultation{},
		&models.Appointment{}, &models.CaseAppointment{}, &models.Notification{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() {
		sql := `
TRUNCATE TABLE
	notifications,
	case_appointments,
	appointments,
	consultations,
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

func seedAcceptedCase(t *testing.T, db *gorm.DB, clientID, lawyerID uuid.UUID) models.Case {
	t.Helper()
	cs := models.Case{
		ID: uuid.New(), ClientID: clientID, LawyerID: &lawyerID,
		Title: "Custody arrangement", Category: "Family Law",
		Status: models.CaseAccepted,
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

/* ============================================================================
   Consultation appointments
   ============================================================================ */

// An accepted consultation without an appointment row gets one materialized
// on first listing.
func TestListForUser_MaterializesMissingAppointments(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil)
	client := seedUser(t, db, models.RoleClient)
	lawyer := seedUser(t, db, models.RoleLawyer)

	cons := models.Consultation{
		ID: uuid.New(), ClientID: client.ID, LawyerID: lawyer.ID,
		Mode: models.MeetingInPerson, MeetingLocation: "12 Main Street",
		PhoneNumber: "+15550100200", Status: models.ConsultationAccepted,
		ScheduledDate: "2026-09-10", ScheduledTime: "11:00",
	}
	require.NoError(t, db.Create(&cons).Error)

	rows, err := svc.ListForUser(context.Background(), actorFor(client))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, cons.ID, rows[0].ConsultationID)
	assert.Equal(t, models.PayInHand, rows[0].PaymentStatus)
	assert.Equal(t, "2026-09-10", rows[0].ScheduledDate)

	// Listing again must not create a second row.
	rows, err = svc.ListForUser(context.Background(), actorFor(client))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestPay_VideoOnly(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil)
	client := seedUser(t, db, models.RoleClient)
	lawyer := seedUser(t, db, models.RoleLawyer)

	mk := func(mode models.MeetingMode) models.Appointment {
		cons := models.Consultation{
			ID: uuid.New(), ClientID: client.ID, LawyerID: lawyer.ID,
			Mode: mode, Status: models.ConsultationAccepted,
		}
		require.NoError(t, db.Create(&cons).Error)
		appt, err := consultations.EnsureAppointment(db, &cons)
		require.NoError(t, err)
		return *appt
	}

	video := mk(models.MeetingVideo)
	paid, err := svc.Pay(context.Background(), actorFor(client), video.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayPaid, paid.PaymentStatus)
	assert.Equal(t, models.AppointmentConfirmed, paid.Status)

	inPerson := mk(models.MeetingInPerson)
	_, err = svc.Pay(context.Background(), actorFor(client), inPerson.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidTransition, appCode(t, err))
}

/* ============================================================================
   Case appointments
   ============================================================================ */

// Scheduling is allowed only while the case sits in accepted; a public or
// already started case is turned away.
func TestCreateCaseAppointment_RequiresEngagedCase(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil)
	client := seedUser(t, db, models.RoleClient)
	lawyer := seedUser(t, db, models.RoleLawyer)

	for _, status := range []models.CaseStatus{
		models.CasePublic, models.CaseInProgress,
	} {
		cs := models.Case{
			ID: uuid.New(), ClientID: client.ID, LawyerID: &lawyer.ID,
			Title: "T", Category: "Civil Law", Status: status,
		}
		require.NoError(t, db.Create(&cs).Error)

		_, err := svc.CreateCaseAppointment(context.Background(), actorFor(client), CreateCaseAppointmentInput{
			CaseID: cs.ID, Title: "Strategy call", Mode: models.MeetingVideo,
		})
		require.Error(t, err, "status %s", status)
		assert.Equal(t, apperr.CodeInvalidTransition, appCode(t, err), "status %s", status)
	}
}

func TestConfirmCaseAppointment_RequiresScheduleAndLink(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil)
	client := seedUser(t, db, models.RoleClient)
	lawyer := seedUser(t, db, models.RoleLawyer)
	cs := seedAcceptedCase(t, db, client.ID, lawyer.ID)

	appt, err := svc.CreateCaseAppointment(context.Background(), actorFor(client), CreateCaseAppointmentInput{
		CaseID: cs.ID, Title: "Pre-hearing prep", Mode: models.MeetingVideo,
	})
	require.NoError(t, err)

	cases := []struct {
		date, tm, link string
		missing        string
	}{
		{"", "10:00", "https://meet.example.com/x", "scheduled_date"},
		{"2026-10-01", "", "https://meet.example.com/x", "scheduled_time"},
		{"2026-10-01", "10:00", "", "meeting_link"},
	}
	for _, tc := range cases {
		_, err := svc.ConfirmCaseAppointment(context.Background(), actorFor(lawyer), appt.ID, tc.date, tc.tm, tc.link)
		require.Error(t, err)
		ae := err.(*apperr.Error)
		assert.Equal(t, apperr.CodeMissingField, ae.Code)
		assert.Equal(t, tc.missing, ae.Field)
	}

	got, err := svc.ConfirmCaseAppointment(context.Background(), actorFor(lawyer), appt.ID,
		"2026-10-01", "10:00", "https://meet.example.com/x")
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentConfirmed, got.Status)
}

func TestConfirmCaseAppointment_InPersonNeedsNoLink(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil)
	client := seedUser(t, db, models.RoleClient)
	lawyer := seedUser(t, db, models.RoleLawyer)
	cs := seedAcceptedCase(t, db, client.ID, lawyer.ID)

	appt, err := svc.CreateCaseAppointment(context.Background(), actorFor(client), CreateCaseAppointmentInput{
		CaseID: cs.ID, Title: "Document signing", Mode: models.MeetingInPerson,
		MeetingLocation: "12 Main Street", PhoneNumber: "+15550100200",
	})
	require.NoError(t, err)

	got, err := svc.ConfirmCaseAppointment(context.Background(), actorFor(lawyer), appt.ID,
		"2026-10-02", "15:30", "")
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentConfirmed, got.Status)
}

func TestCaseAppointment_LifecycleTransitions(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil)
	client := seedUser(t, db, models.RoleClient)
	lawyer := seedUser(t, db, models.RoleLawyer)
	cs := seedAcceptedCase(t, db, client.ID, lawyer.ID)

	appt, err := svc.CreateCaseAppointment(context.Background(), actorFor(client), CreateCaseAppointmentInput{
		CaseID: cs.ID, Title: "Witness interview", Mode: models.MeetingVideo,
	})
	require.NoError(t, err)

	// Pending appointments cannot be completed or rescheduled.
	_, err = svc.CompleteCaseAppointment(context.Background(), actorFor(lawyer), appt.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidTransition, appCode(t, err))
	_, err = svc.RescheduleCaseAppointment(context.Background(), actorFor(lawyer), appt.ID, "2026-10-05", "09:00")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidTransition, appCode(t, err))

	_, err = svc.ConfirmCaseAppointment(context.Background(), actorFor(lawyer), appt.ID,
		"2026-10-03", "09:00", "https://meet.example.com/y")
	require.NoError(t, err)

	// Confirmed appointments cannot be cancelled.
	_, err = svc.CancelCaseAppointment(context.Background(), actorFor(client), appt.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidTransition, appCode(t, err))

	moved, err := svc.RescheduleCaseAppointment(context.Background(), actorFor(client), appt.ID, "2026-10-06", "13:00")
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentRescheduled, moved.Status)
	assert.Equal(t, "2026-10-06", moved.ScheduledDate)

	done, err := svc.CompleteCaseAppointment(context.Background(), actorFor(lawyer), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentCompleted, done.Status)
}

func TestCancelCaseAppointment_PendingOnly(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil)
	client := seedUser(t, db, models.RoleClient)
	lawyer := seedUser(t, db, models.RoleLawyer)
	cs := seedAcceptedCase(t, db, client.ID, lawyer.ID)

	appt, err := svc.CreateCaseAppointment(context.Background(), actorFor(client), CreateCaseAppointmentInput{
		CaseID: cs.ID, Title: "Initial briefing", Mode: models.MeetingVideo,
	})
	require.NoError(t, err)

	got, err := svc.CancelCaseAppointment(context.Background(), actorFor(client), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentCancelled, got.Status)
}
