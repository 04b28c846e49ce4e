package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	DeliveryPosthumous = "POSTHUMOUS"
	DeliveryScheduled  = "SCHEDULED"
)

// Letter is pre-written content for a recipient. Only sealed letters
// (SealedAt set) with DeliveryTrigger POSTHUMOUS are eligible for delivery
// at release; the release pipeline reads letters, never mutates them.
type Letter struct {
	ID              uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID          uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	Title           string     `gorm:"size:255" json:"title"`
	Salutation      string     `gorm:"size:255" json:"salutation"`
	Body            string     `gorm:"type:text;not null" json:"body"`
	Signature       string     `gorm:"size:255" json:"signature"`
	DeliveryTrigger string     `gorm:"size:20;not null;default:'POSTHUMOUS';index" json:"delivery_trigger"`
	SealedAt        *time.Time `json:"sealed_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Recipients      []LetterRecipient `gorm:"foreignKey:LetterID" json:"recipients"`
}

type LetterRecipient struct {
	ID              uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	LetterID        uuid.UUID     `gorm:"type:uuid;not null;index" json:"letter_id"`
	LegacyContactID uuid.UUID     `gorm:"type:uuid;not null" json:"legacy_contact_id"`
	Contact         LegacyContact `gorm:"foreignKey:LegacyContactID" json:"contact"`
	CreatedAt       time.Time     `json:"created_at"`
}

// LetterDelivery is the per-recipient delivery receipt. Its existence is
// what makes a re-run of the release pipeline skip an already-delivered
// letter.
type LetterDelivery struct {
	ID             uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	LetterID       uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_letter_deliveries_letter_recipient" json:"letter_id"`
	RecipientEmail string     `gorm:"size:255;not null;uniqueIndex:idx_letter_deliveries_letter_recipient" json:"recipient_email"`
	Status         string     `gorm:"size:20;not null;default:'DELIVERED'" json:"status"`
	SentAt         time.Time  `gorm:"not null" json:"sent_at"`
	DeliveredAt    *time.Time `json:"delivered_at"`
	CreatedAt      time.Time  `json:"created_at"`
}
