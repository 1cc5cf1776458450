package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/peteat123/Peteat-sub001/internal/apperr"
)

// AttachmentPreview is shown in conversation lists for messages without text.
const AttachmentPreview = "📎 Attachment"

type Message struct {
	ID          string    `json:"id" bson:"_id"`
	SenderID    string    `json:"sender_id" bson:"sender_id"`
	RecipientID string    `json:"recipient_id" bson:"recipient_id"`
	Body        string    `json:"body" bson:"body"`
	Attachments []string  `json:"attachments" bson:"attachments"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	Read        bool      `json:"read" bson:"read"`
}

// NewMessage validates content and stamps id and time. Either body or
// attachments must be non-empty; both are stored exactly as given.
func NewMessage(sender, recipient, body string, attachments []string, now time.Time) (*Message, error) {
	if sender == "" || recipient == "" {
		return nil, apperr.InvalidMessage("sender and recipient required")
	}
	if body == "" && len(attachments) == 0 {
		return nil, apperr.InvalidMessage("message needs a body or at least one attachment")
	}
	return &Message{
		ID:          uuid.NewString(),
		SenderID:    sender,
		RecipientID: recipient,
		Body:        body,
		Attachments: append([]string(nil), attachments...),
		CreatedAt:   now.UTC(),
	}, nil
}

// Preview is the conversation-list text for m.
func (m *Message) Preview() string {
	if m.Body != "" {
		return m.Body
	}
	return AttachmentPreview
}

type Conversation struct {
	ID                 string    `json:"id" bson:"_id"`
	Participants       []string  `json:"participants" bson:"participants"`
	LastMessagePreview string    `json:"last_message_preview" bson:"last_message_preview"`
	LastSenderID       string    `json:"last_sender_id" bson:"last_sender_id"`
	LastMessageAt      time.Time `json:"last_message_at" bson:"last_message_at"`
	CreatedAt          time.Time `json:"created_at" bson:"created_at"`
}

// PairKey returns the order-independent key for the conversation between a
// and b together with the sorted participants.
func PairKey(a, b string) (string, []string) {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b, []string{a, b}
}

type PushToken struct {
	Token     string    `json:"token" bson:"_id"`
	UserID    string    `json:"user_id" bson:"user_id"`
	Platform  string    `json:"platform" bson:"platform"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

type Notification struct {
	ID        string            `json:"id" bson:"_id"`
	UserID    string            `json:"user_id" bson:"user_id"`
	Title     string            `json:"title" bson:"title"`
	Body      string            `json:"body" bson:"body"`
	Data      map[string]string `json:"data,omitempty" bson:"data,omitempty"`
	CreatedAt time.Time         `json:"created_at" bson:"created_at"`
	ReadAt    *time.Time        `json:"read_at" bson:"read_at"`
}

const (
	BookingPending   = "pending"
	BookingConfirmed = "confirmed"
	BookingScheduled = "scheduled"
	BookingCompleted = "completed"
	BookingCancelled = "cancelled"
)

// ActiveBookingStatuses are the statuses that still get reminders.
var ActiveBookingStatuses = []string{BookingConfirmed, BookingScheduled}

type Booking struct {
	ID          string    `json:"id" bson:"_id"`
	OwnerID     string    `json:"owner_id" bson:"owner_id"`
	ClinicID    string    `json:"clinic_id" bson:"clinic_id"`
	PetName     string    `json:"pet_name" bson:"pet_name"`
	Service     string    `json:"service" bson:"service"`
	ScheduledAt time.Time `json:"scheduled_at" bson:"scheduled_at"`
	Status      string    `json:"status" bson:"status"`
}

// Participants returns the distinct non-empty users a reminder goes to.
func (b *Booking) Participants() []string {
	out := make([]string, 0, 2)
	if b.OwnerID != "" {
		out = append(out, b.OwnerID)
	}
	if b.ClinicID != "" && b.ClinicID != b.OwnerID {
		out = append(out, b.ClinicID)
	}
	return out
}
