package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User is the account owner. The password hash doubles as the
// re-authentication factor for destructive switch operations. The encryption
// columns hold the server-side half of the key hierarchy (salt,
// password-wrapped master key, KDF parameters) - none of which can decrypt
// content without the password itself.
type User struct {
	ID                  uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Email               string         `gorm:"not null;size:255;uniqueIndex" json:"email"`
	Password            string         `gorm:"not null" json:"-"`
	FirstName           string         `gorm:"size:100" json:"first_name"`
	LastName            string         `gorm:"size:100" json:"last_name"`
	Role                string         `gorm:"size:20;default:'user'" json:"role"`
	EncryptionSalt      string         `gorm:"size:64" json:"-"`
	EncryptedMasterKey  datatypes.JSON `gorm:"type:jsonb" json:"-"`
	KeyDerivationParams datatypes.JSON `gorm:"type:jsonb" json:"-"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`
}

// FullName is used in outbound notifications to contacts and beneficiaries.
func (u *User) FullName() string {
	if u.FirstName == "" && u.LastName == "" {
		return u.Email
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
