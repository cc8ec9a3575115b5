// @title           Legal Services Marketplace API
// @version         1.0
// @description     Backend for a legal services marketplace: clients post cases, lawyers submit proposals, clients accept one, and both sides schedule consultations and appointments.
// @BasePath        /api
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
// @description     Format: Bearer <token>
package main

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"

	"github.com/meronaya/legal-backend/pkg/database"
	"github.com/meronaya/legal-backend/pkg/models"

	"github.com/meronaya/legal-backend/internal/appointments"
	"github.com/meronaya/legal-backend/internal/auth"
	"github.com/meronaya/legal-backend/internal/cases"
	"github.com/meronaya/legal-backend/internal/consultations"
	"github.com/meronaya/legal-backend/internal/notifications"
	"github.com/meronaya/legal-backend/internal/proposals"
	"github.com/meronaya/legal-backend/internal/reviews"
	"github.com/meronaya/legal-backend/internal/storage"
)

func main() {
	_ = godotenv.Load()

	db := database.Init()
	if err := db.AutoMigrate(
		&models.User{}, &models.Case{}, &models.CaseDocument{}, &models.CaseTimeline{},
		&models.Proposal{}, &models.Consultation{}, &models.Appointment{},
		&models.CaseAppointment{}, &models.Notification{}, &models.Review{},
	); err != nil {
		log.Fatal("migration failed:", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: auth.ErrorHandler,
	})

	app.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })

	api := app.Group("/api")

	// Notifications: hub + persister shared by every domain service
	hub := notifications.NewHub()
	notifier := notifications.NewNotifier(db, hub)

	// Auth
	authH := auth.NewHandler(db)
	api.Post("/signup", authH.Signup)
	api.Post("/login", authH.Login)
	api.Get("/me", auth.RequireAuth(), authH.Me)

	// Storage helper
	sb := storage.NewSupabase() // uses SUPABASE_URL / SUPABASE_SECRET_KEY / SUPABASE_BUCKET

	// Cases
	caseSvc := cases.NewService(db, notifier)
	caseH := cases.NewHandler(db, caseSvc, sb)
	api.Post("/cases", auth.RequireAuth(), auth.RequireRole("client"), caseH.Create)
	api.Get("/cases", auth.RequireAuth(), caseH.List)
	api.Get("/cases/public", auth.RequireAuth(), auth.RequireRole("lawyer"), caseH.PublicBrowse)
	api.Get("/cases/:id", auth.RequireAuth(), caseH.GetDetail)
	api.Post("/cases/:id/accept", auth.RequireAuth(), auth.RequireRole("lawyer"), caseH.AcceptPublic)
	api.Patch("/cases/:id/status", auth.RequireAuth(), caseH.UpdateStatus)
	api.Patch("/cases/:id/details", auth.RequireAuth(), auth.RequireRole("lawyer"), caseH.UpdateDetails)
	api.Post("/cases/:id/documents", auth.RequireAuth(), caseH.UploadDocuments)
	api.Delete("/documents/:docID", auth.RequireAuth(), caseH.DeleteDocument)
	api.Get("/documents/:docID/signed-url", auth.RequireAuth(), caseH.SignedDownloadURL)

	// Proposals
	propSvc := proposals.NewService(db, notifier)
	propH := proposals.NewHandler(db, propSvc)
	api.Post("/proposals", auth.RequireAuth(), auth.RequireRole("lawyer"), propH.Submit)
	api.Get("/proposals/mine", auth.RequireAuth(), auth.RequireRole("lawyer"), propH.ListMine)
	api.Post("/proposals/:id/accept", auth.RequireAuth(), auth.RequireRole("client"), propH.Accept)
	api.Post("/proposals/:id/reject", auth.RequireAuth(), auth.RequireRole("client"), propH.Reject)
	api.Post("/proposals/:id/withdraw", auth.RequireAuth(), auth.RequireRole("lawyer"), propH.Withdraw)
	api.Get("/cases/:id/proposals", auth.RequireAuth(), propH.ListByCase)

	// Consultations
	consSvc := consultations.NewService(db, notifier)
	consH := consultations.NewHandler(db, consSvc)
	api.Post("/consultations", auth.RequireAuth(), auth.RequireRole("client"), consH.Request)
	api.Get("/consultations", auth.RequireAuth(), consH.List)
	api.Post("/consultations/:id/accept", auth.RequireAuth(), auth.RequireRole("lawyer"), consH.Accept)
	api.Post("/consultations/:id/reject", auth.RequireAuth(), auth.RequireRole("lawyer"), consH.Reject)
	api.Post("/consultations/:id/complete", auth.RequireAuth(), consH.Complete)

	// Appointments
	apptSvc := appointments.NewService(db, notifier)
	apptH := appointments.NewHandler(db, apptSvc)
	api.Get("/appointments", auth.RequireAuth(), apptH.List)
	api.Post("/appointments/:id/pay", auth.RequireAuth(), auth.RequireRole("client"), apptH.Pay)
	api.Post("/case-appointments", auth.RequireAuth(), auth.RequireRole("client"), apptH.CreateCaseAppointment)
	api.Get("/case-appointments", auth.RequireAuth(), apptH.ListCaseAppointments)
	api.Post("/case-appointments/:id/confirm", auth.RequireAuth(), auth.RequireRole("lawyer"), apptH.ConfirmCaseAppointment)
	api.Post("/case-appointments/:id/reschedule", auth.RequireAuth(), apptH.RescheduleCaseAppointment)
	api.Post("/case-appointments/:id/cancel", auth.RequireAuth(), apptH.CancelCaseAppointment)
	api.Post("/case-appointments/:id/complete", auth.RequireAuth(), apptH.CompleteCaseAppointment)

	// Notifications inbox + WebSocket stream
	notifH := notifications.NewHandler(db, hub)
	api.Get("/notifications", auth.RequireAuth(), notifH.List)
	api.Get("/notifications/unread-count", auth.RequireAuth(), notifH.UnreadCount)
	api.Patch("/notifications/:id/read", auth.RequireAuth(), notifH.MarkRead)
	api.Patch("/notifications/read-all", auth.RequireAuth(), notifH.MarkAllRead)
	app.Use("/ws", notifications.UpgradeRequired)
	app.Get("/ws/notifications", auth.RequireAuth(), notifH.Stream())

	// Reviews
	revH := reviews.NewHandler(db, notifier)
	api.Post("/reviews", auth.RequireAuth(), auth.RequireRole("client"), revH.Create)
	api.Get("/reviews/mine", auth.RequireAuth(), auth.RequireRole("client"), revH.ListMine)
	api.Get("/lawyers/:id/reviews", revH.ListByLawyer)
	api.Get("/lawyers/:id/reviews/summary", revH.Summary)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}
	log.Println("Server running on :" + port)
	log.Fatal(app.Listen(":" + port))
}
