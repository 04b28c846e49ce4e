package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// KeyEscrow holds one beneficiary's copy of a user's master key: already
// wrapped with the user's password key, then re-wrapped with the server
// master key for storage. Releasing unwraps the server layer only - the
// beneficiary still needs the user's recovery secret to reach plaintext.
//
// Once Released flips true the row is immutable; release is idempotent.
type KeyEscrow struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID        uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_key_escrows_user_beneficiary" json:"user_id"`
	BeneficiaryID uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_key_escrows_user_beneficiary" json:"beneficiary_id"`
	EncryptedKey  datatypes.JSON `gorm:"type:jsonb;not null" json:"-"`
	Released      bool           `gorm:"not null;default:false;index" json:"released"`
	ReleasedAt    *time.Time     `json:"released_at"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Beneficiary   LegacyContact  `gorm:"foreignKey:BeneficiaryID" json:"-"`
}
