package models

import (
	"time"

	"github.com/google/uuid"
)

/* =============================== Enums ================================== */

// Role defines the type of user in the system.
type Role string

const (
	RoleClient     Role = "client"
	RoleLawyer     Role = "lawyer"
	RoleSuperAdmin Role = "superadmin"
)

// CaseStatus defines lifecycle states for a case.
type CaseStatus string

const (
	CaseDraft             CaseStatus = "draft"
	CasePublic            CaseStatus = "public"
	CaseSentToLawyers     CaseStatus = "sent_to_lawyers"
	CaseProposalsReceived CaseStatus = "proposals_received"
	CaseAccepted          CaseStatus = "accepted"
	CaseInProgress        CaseStatus = "in_progress"
	CaseCompleted         CaseStatus = "completed"
	CaseCancelled         CaseStatus = "cancelled"
	CaseRejected          CaseStatus = "rejected"
)

// ValidCaseStatus reports whether s is a member of the case status enum.
func ValidCaseStatus(s CaseStatus) bool {
	switch s {
	case CaseDraft, CasePublic, CaseSentToLawyers, CaseProposalsReceived,
		CaseAccepted, CaseInProgress, CaseCompleted, CaseCancelled, CaseRejected:
		return true
	}
	return false
}

// Urgency defines how urgent a case is.
type Urgency string

const (
	UrgencyLow    Urgency = "Low"
	UrgencyMedium Urgency = "Medium"
	UrgencyHigh   Urgency = "High"
)

// LawyerSelection controls whether a case is open to all lawyers or
// directed at a preferred set.
type LawyerSelection string

const (
	SelectionSpecific LawyerSelection = "specific"
	SelectionPublic   LawyerSelection = "public"
)

// CaseCategories are the fixed legal categories a case can belong to.
var CaseCategories = []string{
	"Criminal Law",
	"Civil Law",
	"Family Law",
	"Property Law",
	"Corporate Law",
	"Labor Law",
	"Constitutional Law",
	"Environmental Law",
	"Tax Law",
	"Immigration Law",
}

// ValidCategory reports whether c is one of the fixed case categories.
func ValidCategory(c string) bool {
	for _, v := range CaseCategories {
		if v == c {
			return true
		}
	}
	return false
}

// ProposalStatus defines lifecycle states for a proposal.
type ProposalStatus string

const (
	ProposalPending   ProposalStatus = "pending"
	ProposalAccepted  ProposalStatus = "accepted"
	ProposalRejected  ProposalStatus = "rejected"
	ProposalWithdrawn ProposalStatus = "withdrawn"
)

// MeetingMode defines how a consultation or appointment takes place.
type MeetingMode string

const (
	MeetingVideo    MeetingMode = "video"
	MeetingInPerson MeetingMode = "in_person"
)

// ConsultationStatus defines lifecycle states for a consultation request.
type ConsultationStatus string

const (
	ConsultationRequested ConsultationStatus = "requested"
	ConsultationAccepted  ConsultationStatus = "accepted"
	ConsultationRejected  ConsultationStatus = "rejected"
	ConsultationCompleted ConsultationStatus = "completed"
)

// AppointmentStatus defines lifecycle states for appointments, both
// consultation-linked and case-scoped.
type AppointmentStatus string

const (
	AppointmentPending     AppointmentStatus = "pending"
	AppointmentConfirmed   AppointmentStatus = "confirmed"
	AppointmentRescheduled AppointmentStatus = "rescheduled"
	AppointmentCompleted   AppointmentStatus = "completed"
	AppointmentCancelled   AppointmentStatus = "cancelled"
)

// PayStatus defines payment states for an appointment.
type PayStatus string

const (
	PayPending PayStatus = "pending"
	PayPaid    PayStatus = "paid"
	PayInHand  PayStatus = "in_hand"
)

// TimelineEvent defines the kinds of events recorded on a case timeline.
type TimelineEvent string

const (
	EventCaseCreated      TimelineEvent = "case_created"
	EventCaseAccepted     TimelineEvent = "case_accepted"
	EventStatusChanged    TimelineEvent = "status_changed"
	EventDocumentUploaded TimelineEvent = "document_uploaded"
	EventHearingScheduled TimelineEvent = "hearing_scheduled"
	EventNoteAdded        TimelineEvent = "note_added"
	EventCaseUpdated      TimelineEvent = "case_updated"
)

// NotifType categorizes a notification for the frontend.
type NotifType string

const (
	NotifCase        NotifType = "case"
	NotifAppointment NotifType = "appointment"
	NotifMessage     NotifType = "message"
	NotifPayment     NotifType = "payment"
	NotifAlert       NotifType = "alert"
	NotifSystem      NotifType = "system"
)

/* =============================== Entities =============================== */

// User represents a client, lawyer, or superadmin.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Role         Role      `gorm:"type:varchar(20);not null" json:"role"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsStaff reports whether the user has staff-level access.
func (u *User) IsStaff() bool { return u.Role == RoleSuperAdmin }

// Case represents a legal case submitted by a client.
type Case struct {
	ID       uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ClientID uuid.UUID  `gorm:"type:uuid;not null;index" json:"client_id"`
	LawyerID *uuid.UUID `gorm:"type:uuid;index" json:"lawyer_id"`

	Title               string          `gorm:"size:200;not null" json:"title"`
	Category            string          `gorm:"size:50;not null;index" json:"category"`
	Description         string          `gorm:"size:2000" json:"description"`
	Urgency             Urgency         `gorm:"type:varchar(10);default:'Medium'" json:"urgency"`
	Selection           LawyerSelection `gorm:"column:lawyer_selection;type:varchar(10);default:'public'" json:"lawyer_selection"`
	RequestConsultation bool            `json:"request_consultation"`

	Status        CaseStatus `gorm:"type:varchar(20);default:'public';index" json:"status"`
	ProposalCount int        `gorm:"not null;default:0" json:"proposal_count"`

	RejectionReason string `json:"rejection_reason,omitempty"`
	Notes           string `json:"notes,omitempty"`

	// Filled in by the assigned lawyer as the matter progresses.
	CaseNumber      string     `gorm:"size:100" json:"case_number,omitempty"`
	CourtName       string     `gorm:"size:200" json:"court_name,omitempty"`
	OpposingParty   string     `gorm:"size:200" json:"opposing_party,omitempty"`
	NextHearingDate *time.Time `gorm:"type:date" json:"next_hearing_date,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Relations
	PreferredLawyers []User         `gorm:"many2many:case_preferred_lawyers" json:"preferred_lawyers,omitempty"`
	Documents        []CaseDocument `json:"documents,omitempty"`
	Proposals        []Proposal     `json:"proposals,omitempty"`
	Timeline         []CaseTimeline `json:"timeline,omitempty"`
}

// IsOpen reports whether the case still accepts proposals.
func (c *Case) IsOpen() bool {
	return c.Status == CasePublic || c.Status == CaseSentToLawyers || c.Status == CaseProposalsReceived
}


// Proposal represents a lawyer's bid to take on a case.
// The composite unique index on (case_id, lawyer_id) is the correctness
// backstop for the one-proposal-per-lawyer rule; service-level checks are
// an optimization on top of it.
type Proposal struct {
	ID       uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CaseID   uuid.UUID `gorm:"type:uuid;not null;index:idx_proposal_case_lawyer,unique" json:"case_id"`
	LawyerID uuid.UUID `gorm:"type:uuid;not null;index:idx_proposal_case_lawyer,unique" json:"lawyer_id"`

	ProposalText   string         `gorm:"size:2000;not null" json:"proposal_text"`
	Status         ProposalStatus `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	ClientFeedback string         `json:"client_feedback,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
}

// IsPending reports whether the proposal is still awaiting client review.
func (p *Proposal) IsPending() bool { return p.Status == ProposalPending }

// Consultation is a client-initiated request for lawyer time, optionally
// tied to an already-accepted case.
type Consultation struct {
	ID       uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ClientID uuid.UUID  `gorm:"type:uuid;not null;index" json:"client_id"`
	LawyerID uuid.UUID  `gorm:"type:uuid;not null;index" json:"lawyer_id"`
	CaseID   *uuid.UUID `gorm:"type:uuid;index" json:"case_id,omitempty"`

	Mode            MeetingMode `gorm:"type:varchar(20);default:'video'" json:"mode"`
	RequestedDay    string      `gorm:"size:20" json:"requested_day,omitempty"`
	RequestedTime   string      `gorm:"size:20" json:"requested_time,omitempty"`
	MeetingLocation string      `gorm:"size:255" json:"meeting_location,omitempty"`
	PhoneNumber     string      `gorm:"size:30" json:"phone_number,omitempty"`
	ScheduledDate   string      `gorm:"size:20" json:"scheduled_date,omitempty"`
	ScheduledTime   string      `gorm:"size:20" json:"scheduled_time,omitempty"`
	MeetingLink     string      `gorm:"size:500" json:"meeting_link,omitempty"`
	Notes           string      `json:"notes,omitempty"`

	Status    ConsultationStatus `gorm:"type:varchar(20);default:'requested';index" json:"status"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Appointment is the scheduled meeting derived from an accepted consultation.
type Appointment struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ConsultationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"consultation_id"`

	ScheduledDate string            `gorm:"size:20" json:"scheduled_date,omitempty"`
	ScheduledTime string            `gorm:"size:20" json:"scheduled_time,omitempty"`
	Status        AppointmentStatus `gorm:"type:varchar(20);default:'pending'" json:"status"`
	PaymentStatus PayStatus         `gorm:"type:varchar(20);default:'pending'" json:"payment_status"`
	Notes         string            `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Consultation Consultation `gorm:"foreignKey:ConsultationID;references:ID" json:"consultation,omitempty"`
}

// CaseAppointment is a meeting within an already-accepted case. Unlike a
// consultation it carries no payment obligation.
type CaseAppointment struct {
	ID       uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CaseID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"case_id"`
	ClientID uuid.UUID  `gorm:"type:uuid;not null;index" json:"client_id"`
	LawyerID *uuid.UUID `gorm:"type:uuid;index" json:"lawyer_id"`

	Title           string      `gorm:"size:200;not null" json:"title"`
	Mode            MeetingMode `gorm:"type:varchar(20);default:'video'" json:"mode"`
	PreferredDay    string      `gorm:"size:10" json:"preferred_day,omitempty"`
	PreferredTime   string      `gorm:"size:20" json:"preferred_time,omitempty"`
	MeetingLocation string      `gorm:"size:255" json:"meeting_location,omitempty"`
	PhoneNumber     string      `gorm:"size:30" json:"phone_number,omitempty"`
	ScheduledDate   string      `gorm:"size:20" json:"scheduled_date,omitempty"`
	ScheduledTime   string      `gorm:"size:20" json:"scheduled_time,omitempty"`
	MeetingLink     string      `gorm:"size:500" json:"meeting_link,omitempty"`

	Status    AppointmentStatus `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// CaseDocument is a file uploaded for a case.
type CaseDocument struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CaseID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"case_id"`
	UploadedBy *uuid.UUID `gorm:"type:uuid" json:"uploaded_by,omitempty"`

	Key      string `gorm:"not null" json:"-"`
	FileName string `gorm:"size:255;not null" json:"file_name"`
	FileType string `gorm:"size:10" json:"file_type"`
	FileSize int    `gorm:"not null" json:"file_size"`

	UploadedAt time.Time `gorm:"autoCreateTime" json:"uploaded_at"`
}

// CaseTimeline is an append-only audit entry for a case. Rows are never
// updated or deleted through normal lifecycle operations.
type CaseTimeline struct {
	ID     uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CaseID uuid.UUID `gorm:"type:uuid;not null;index" json:"case_id"`

	EventType   TimelineEvent `gorm:"type:varchar(20);not null" json:"event_type"`
	Title       string        `gorm:"size:200;not null" json:"title"`
	Description string        `json:"description"`

	// Nil means the event was generated by the system.
	CreatedBy *uuid.UUID `gorm:"type:uuid" json:"created_by,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// Notification is a message persisted for a user and pushed over their
// WebSocket group when they are connected.
type Notification struct {
	ID     uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index:idx_notif_user_read" json:"user_id"`

	Title   string    `gorm:"size:255;not null" json:"title"`
	Message string    `gorm:"not null" json:"message"`
	Type    NotifType `gorm:"column:notif_type;type:varchar(20);default:'system'" json:"notif_type"`
	IsRead  bool      `gorm:"default:false;index:idx_notif_user_read" json:"is_read"`
	Link    string    `gorm:"size:255" json:"link,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Review is a client's rating of a lawyer.
type Review struct {
	ID       uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ClientID uuid.UUID `gorm:"type:uuid;not null;index" json:"client_id"`
	LawyerID uuid.UUID `gorm:"type:uuid;not null;index" json:"lawyer_id"`

	Title   string `gorm:"size:255" json:"title,omitempty"`
	Comment string `gorm:"not null" json:"comment"`
	Rating  int    `gorm:"not null;default:5" json:"rating"`

	IsVerifiedConsultation bool      `json:"is_verified_consultation"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}
