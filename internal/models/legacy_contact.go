package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ContactPending  = "PENDING"
	ContactVerified = "VERIFIED"
)

// LegacyContact is a person the user trusts to attest their passing and/or
// receive escrowed keys. Only VERIFIED contacts count toward the consensus
// threshold; a contact becomes VERIFIED by accepting the role once via the
// acceptance token (distinct from attesting death later).
type LegacyContact struct {
	ID                 uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID             uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Name               string    `gorm:"size:200;not null" json:"name"`
	Email              string    `gorm:"size:255;not null" json:"email"`
	VerificationStatus string    `gorm:"size:20;not null;default:'PENDING'" json:"verification_status"`
	AcceptToken        string    `gorm:"size:64;uniqueIndex" json:"-"`
	AcceptedAt         *time.Time `json:"accepted_at"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	User               User      `gorm:"foreignKey:UserID" json:"-"`
}

// SwitchVerification is one contact's single-use attestation slot for one
// trigger cycle. Rows are created fresh each time the switch triggers and
// deleted when the switch resets, so stale tokens cannot confirm a later
// cycle.
type SwitchVerification struct {
	ID                uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	DeadManSwitchID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"dead_man_switch_id"`
	LegacyContactID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"legacy_contact_id"`
	VerificationToken string     `gorm:"size:64;not null;uniqueIndex" json:"-"`
	ExpiresAt         time.Time  `gorm:"not null" json:"expires_at"`
	Verified          bool       `gorm:"not null;default:false" json:"verified"`
	VerifiedAt        *time.Time `json:"verified_at"`
	CreatedAt         time.Time  `json:"created_at"`
}
