package deadman

import (
	"time"

	"github.com/Reshigan/Heirloom-sub004/internal/models"
	"github.com/google/uuid"
)

// SwitchStore persists switch records. All writes that move a switch
// between states go through UpdateIf so two writers can never both apply a
// transition: the conditional update is the single-writer guarantee.
type SwitchStore interface {
	Get(userID uuid.UUID) (*models.DeadManSwitch, error)
	GetByID(id uuid.UUID) (*models.DeadManSwitch, error)
	Create(sw *models.DeadManSwitch) error
	// Save rewrites configuration fields on an existing row (not used for
	// status transitions).
	Save(sw *models.DeadManSwitch) error
	// UpdateIf applies updates only while the row still holds one of the
	// expected statuses. Returns false when the row moved on; callers treat
	// that as a benign no-op or retry with fresh state.
	UpdateIf(userID uuid.UUID, expect []models.SwitchStatus, updates map[string]interface{}) (bool, error)
	// ListOverdue returns enabled ACTIVE/WARNING switches whose
	// next_check_in_due has passed.
	ListOverdue(now time.Time) ([]models.DeadManSwitch, error)
	// ListUpcoming returns enabled ACTIVE switches due within the window.
	ListUpcoming(now, until time.Time) ([]models.DeadManSwitch, error)
	// ListCooldownElapsed returns VERIFIED switches whose verified_at is at
	// or before the cutoff.
	ListCooldownElapsed(cutoff time.Time) ([]models.DeadManSwitch, error)
}

// CheckInStore is the append-only proof-of-life log.
type CheckInStore interface {
	Append(event *models.CheckInEvent) error
	List(userID uuid.UUID, limit, offset int) ([]models.CheckInEvent, int64, error)
}

// ContactStore reads the user's legacy contacts.
type ContactStore interface {
	ListVerified(userID uuid.UUID) ([]models.LegacyContact, error)
}

// VerificationStore persists per-trigger attestation slots.
type VerificationStore interface {
	Create(v *models.SwitchVerification) error
	GetByToken(token string) (*models.SwitchVerification, error)
	// MarkVerified conditionally flips verified false->true.
	MarkVerified(id uuid.UUID, at time.Time) (bool, error)
	CountVerified(switchID uuid.UUID) (int64, error)
	DeleteForSwitch(switchID uuid.UUID) error
}

// UserStore reads account data for notifications and re-authentication.
type UserStore interface {
	Get(userID uuid.UUID) (*models.User, error)
}

// LetterStore gives the release pipeline read access to sealed posthumous
// letters and write access to delivery receipts only.
type LetterStore interface {
	ListSealedPosthumous(userID uuid.UUID) ([]models.Letter, error)
	HasDelivery(letterID uuid.UUID, recipientEmail string) (bool, error)
	RecordDelivery(d *models.LetterDelivery) error
}

// PasswordVerifier re-authenticates destructive operations.
type PasswordVerifier interface {
	VerifyPassword(plaintext, hash string) bool
}

// KeyReleaser is the escrow vault surface the coordinator drives.
type KeyReleaser interface {
	ReleaseEscrowedKeys(userID uuid.UUID) (int, error)
}
