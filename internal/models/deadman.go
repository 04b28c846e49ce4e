package models

import (
	"time"

	"github.com/google/uuid"
)

// SwitchStatus is the lifecycle state of a dead man's switch. Transitions
// only move forward except for the explicit reset paths (check-in, cancel).
type SwitchStatus string

const (
	SwitchActive    SwitchStatus = "ACTIVE"
	SwitchWarning   SwitchStatus = "WARNING"
	SwitchTriggered SwitchStatus = "TRIGGERED"
	SwitchVerified  SwitchStatus = "VERIFIED"
	SwitchReleased  SwitchStatus = "RELEASED"
	SwitchCancelled SwitchStatus = "CANCELLED"
	SwitchDisabled  SwitchStatus = "DISABLED"
)

// CheckInIntervals are the allowed check-in cadences in days.
var CheckInIntervals = []int{7, 14, 30, 60, 90}

// DeadManSwitch holds one user's switch configuration and current state.
// Exactly one row exists per user; re-configuring reuses the row.
type DeadManSwitch struct {
	ID                    uuid.UUID    `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID                uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	Status                SwitchStatus `gorm:"size:20;not null;default:'ACTIVE';index" json:"status"`
	Enabled               bool         `gorm:"not null;default:true" json:"enabled"`
	CheckInIntervalDays   int          `gorm:"not null" json:"check_in_interval_days"`
	GracePeriodDays       int          `gorm:"not null;default:7" json:"grace_period_days"`
	RequiredVerifications int          `gorm:"not null;default:2" json:"required_verifications"`
	MissedCheckIns        int          `gorm:"not null;default:0" json:"missed_check_ins"`
	LastCheckIn           *time.Time   `json:"last_check_in"`
	NextCheckInDue        *time.Time   `gorm:"index" json:"next_check_in_due"`
	TriggeredAt           *time.Time   `json:"triggered_at"`
	VerifiedAt            *time.Time   `json:"verified_at"`
	ReleasedAt            *time.Time   `json:"released_at"`
	CreatedAt             time.Time    `json:"created_at"`
	UpdatedAt             time.Time    `json:"updated_at"`
	User                  User         `gorm:"foreignKey:UserID" json:"-"`
}

func (DeadManSwitch) TableName() string {
	return "dead_man_switches"
}

// CheckInEvent is an append-only audit record of proof-of-life events.
// Rows are never updated or deleted.
type CheckInEvent struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	CheckedInAt time.Time `gorm:"not null;index" json:"checked_in_at"`
	Method      string    `gorm:"size:20;not null;default:'MANUAL'" json:"method"`
	CreatedAt   time.Time `json:"created_at"`
}

const (
	CheckInManual    = "MANUAL"
	CheckInAutomated = "AUTOMATED"
)
