// Package deadman implements the dead man's switch protocol: the per-user
// switch state machine, the background scheduler that advances time-based
// transitions, the attestation collector and the release coordinator.
//
// Lifecycle: ACTIVE -> WARNING (missed check-in) -> TRIGGERED (still
// silent, enough verified contacts) -> VERIFIED (consensus reached) ->
// RELEASED (48h cooldown elapsed, irreversible). Check-in resets any
// pre-release state back to ACTIVE; that is the owner's sole abort lever.
package deadman

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Reshigan/Heirloom-sub004/internal/cryptoutil"
	"github.com/Reshigan/Heirloom-sub004/internal/models"
	"github.com/Reshigan/Heirloom-sub004/internal/notify"
	"github.com/google/uuid"
)

const (
	// CooldownPeriod is the gap between consensus and release. Fixed, not
	// configurable: the cooldown is the cancellation window and must not be
	// shortenable under pressure.
	CooldownPeriod = 48 * time.Hour

	// VerificationTTL bounds how long an attestation token stays usable.
	VerificationTTL = 7 * 24 * time.Hour

	// escalationDelay is how long a switch sits in WARNING before the
	// second miss is counted and the trigger is evaluated.
	escalationDelay = 24 * time.Hour

	// DefaultRequiredVerifications is the consensus threshold for new
	// switches.
	DefaultRequiredVerifications = 2
)

var (
	ErrNotConfigured         = errors.New("dead man's switch not configured")
	ErrDisabled              = errors.New("dead man's switch is disabled")
	ErrAlreadyReleased       = errors.New("content already released; switch requires reconfiguration")
	ErrInvalidInterval       = errors.New("check-in interval must be one of 7, 14, 30, 60 or 90 days")
	ErrInvalidGracePeriod    = errors.New("grace period must be at least 1 day")
	ErrInvalidPassword       = errors.New("invalid password")
	ErrNotCancellable        = errors.New("switch is not in a cancellable state")
	ErrInsufficientAttesters = errors.New("not enough verified legacy contacts to trigger")
	ErrConflict              = errors.New("concurrent update, retry with fresh state")
)

// Service owns all user-initiated switch operations and the transition
// helpers the scheduler drives. Collaborators are injected; the service
// never reaches into globals.
type Service struct {
	switches      SwitchStore
	checkins      CheckInStore
	contacts      ContactStore
	verifications VerificationStore
	users         UserStore
	passwords     PasswordVerifier
	dispatcher    notify.Dispatcher
	now           func() time.Time
}

func NewService(
	switches SwitchStore,
	checkins CheckInStore,
	contacts ContactStore,
	verifications VerificationStore,
	users UserStore,
	passwords PasswordVerifier,
	dispatcher notify.Dispatcher,
) *Service {
	return &Service{
		switches:      switches,
		checkins:      checkins,
		contacts:      contacts,
		verifications: verifications,
		users:         users,
		passwords:     passwords,
		dispatcher:    dispatcher,
		now:           time.Now,
	}
}

func validInterval(days int) bool {
	for _, d := range models.CheckInIntervals {
		if d == days {
			return true
		}
	}
	return false
}

// Configure creates or resets the user's switch. Re-configuring a RELEASED
// switch starts a fresh ACTIVE cycle; already-released escrow entries stay
// released (re-escrow requires explicit new setup).
func (s *Service) Configure(userID uuid.UUID, intervalDays, gracePeriodDays int) (*models.DeadManSwitch, error) {
	if !validInterval(intervalDays) {
		return nil, ErrInvalidInterval
	}
	if gracePeriodDays < 1 {
		return nil, ErrInvalidGracePeriod
	}

	now := s.now()
	next := now.AddDate(0, 0, intervalDays)

	sw, err := s.switches.Get(userID)
	if err != nil {
		sw = &models.DeadManSwitch{
			ID:                    uuid.New(),
			UserID:                userID,
			Status:                models.SwitchActive,
			Enabled:               true,
			CheckInIntervalDays:   intervalDays,
			GracePeriodDays:       gracePeriodDays,
			RequiredVerifications: DefaultRequiredVerifications,
			LastCheckIn:           &now,
			NextCheckInDue:        &next,
		}
		if err := s.switches.Create(sw); err != nil {
			return nil, fmt.Errorf("create switch: %w", err)
		}
		slog.Info("dead man's switch configured", "user_id", userID.String(), "interval_days", intervalDays)
		return sw, nil
	}

	// A reset abandons the current trigger cycle, if any. Like CheckIn it
	// is a conditional update retried on conflict: a trigger landing
	// between the read and the write moves the status, this write becomes
	// a no-op, and the retry sees the new cycle so its tokens are deleted
	// with it.
	for attempt := 0; attempt < 3; attempt++ {
		updated, err := s.switches.UpdateIf(userID,
			[]models.SwitchStatus{sw.Status},
			map[string]interface{}{
				"status":                 models.SwitchActive,
				"enabled":                true,
				"check_in_interval_days": intervalDays,
				"grace_period_days":      gracePeriodDays,
				"missed_check_ins":       0,
				"last_check_in":          now,
				"next_check_in_due":      next,
				"triggered_at":           nil,
				"verified_at":            nil,
			})
		if err != nil {
			return nil, fmt.Errorf("update switch: %w", err)
		}
		if !updated {
			sw, err = s.switches.Get(userID)
			if err != nil {
				return nil, ErrNotConfigured
			}
			continue
		}

		if err := s.cancelCycle(sw); err != nil {
			return nil, err
		}

		sw.Status = models.SwitchActive
		sw.Enabled = true
		sw.CheckInIntervalDays = intervalDays
		sw.GracePeriodDays = gracePeriodDays
		sw.MissedCheckIns = 0
		sw.LastCheckIn = &now
		sw.NextCheckInDue = &next
		sw.TriggeredAt = nil
		sw.VerifiedAt = nil

		slog.Info("dead man's switch reconfigured", "user_id", userID.String(), "interval_days", intervalDays)
		return sw, nil
	}
	return nil, ErrConflict
}

// CheckIn records proof of life. It resets any pre-release state back to
// ACTIVE; a check-in against a RELEASED switch is rejected. The reset is a
// conditional update retried on conflict, so a check-in racing the scanner
// cannot end up applied alongside a trigger.
func (s *Service) CheckIn(userID uuid.UUID, method string) (*time.Time, error) {
	for attempt := 0; attempt < 3; attempt++ {
		sw, err := s.switches.Get(userID)
		if err != nil {
			return nil, ErrNotConfigured
		}
		if !sw.Enabled || sw.Status == models.SwitchDisabled {
			return nil, ErrDisabled
		}
		if sw.Status == models.SwitchReleased {
			return nil, ErrAlreadyReleased
		}

		now := s.now()
		next := now.AddDate(0, 0, sw.CheckInIntervalDays)
		wasEscalated := sw.Status == models.SwitchTriggered || sw.Status == models.SwitchVerified

		updated, err := s.switches.UpdateIf(userID,
			[]models.SwitchStatus{sw.Status},
			map[string]interface{}{
				"status":            models.SwitchActive,
				"missed_check_ins":  0,
				"last_check_in":     now,
				"next_check_in_due": next,
				"triggered_at":      nil,
				"verified_at":       nil,
			})
		if err != nil {
			return nil, fmt.Errorf("check in: %w", err)
		}
		if !updated {
			// The scanner moved the switch between our read and write.
			continue
		}

		if wasEscalated {
			if err := s.cancelCycle(sw); err != nil {
				slog.Error("trigger cycle cleanup failed after check-in", "user_id", userID.String(), "error", err)
			}
		}

		// The audit log knows exactly two origins; anything else the
		// caller sends is recorded as a manual check-in.
		if method != models.CheckInAutomated {
			method = models.CheckInManual
		}
		if err := s.checkins.Append(&models.CheckInEvent{
			ID:          uuid.New(),
			UserID:      userID,
			CheckedInAt: now,
			Method:      method,
		}); err != nil {
			slog.Error("check-in event append failed", "user_id", userID.String(), "error", err)
		}

		slog.Info("user checked in", "user_id", userID.String(), "next_due", next)
		return &next, nil
	}
	return nil, ErrConflict
}

// CancelTrigger aborts an in-flight trigger cycle after password
// re-authentication. Fails closed: a wrong password changes nothing and is
// logged as a security-relevant event.
func (s *Service) CancelTrigger(userID uuid.UUID, password string) error {
	user, err := s.users.Get(userID)
	if err != nil {
		return ErrNotConfigured
	}
	if !s.passwords.VerifyPassword(password, user.Password) {
		slog.Warn("cancel-trigger rejected: password verification failed", "user_id", userID.String(), "action", "dms.cancel")
		return ErrInvalidPassword
	}

	sw, err := s.switches.Get(userID)
	if err != nil {
		return ErrNotConfigured
	}
	switch sw.Status {
	case models.SwitchWarning, models.SwitchTriggered, models.SwitchVerified:
	default:
		return ErrNotCancellable
	}

	now := s.now()
	next := now.AddDate(0, 0, sw.CheckInIntervalDays)
	updated, err := s.switches.UpdateIf(userID,
		[]models.SwitchStatus{models.SwitchWarning, models.SwitchTriggered, models.SwitchVerified},
		map[string]interface{}{
			"status":            models.SwitchActive,
			"missed_check_ins":  0,
			"last_check_in":     now,
			"next_check_in_due": next,
			"triggered_at":      nil,
			"verified_at":       nil,
		})
	if err != nil {
		return fmt.Errorf("cancel trigger: %w", err)
	}
	if !updated {
		// Moved to RELEASED (or reset) since the read; nothing to cancel.
		return ErrNotCancellable
	}

	if err := s.cancelCycle(sw); err != nil {
		slog.Error("trigger cycle cleanup failed after cancel", "user_id", userID.String(), "error", err)
	}

	slog.Info("dead man's switch trigger cancelled", "user_id", userID.String())
	return nil
}

// cancelCycle deletes pending attestation slots for the switch and tells
// the contacted parties it was a false alarm. Invalidating by deletion
// means a stale token can never confirm a later cycle.
func (s *Service) cancelCycle(sw *models.DeadManSwitch) error {
	if sw.TriggeredAt == nil && sw.Status != models.SwitchTriggered && sw.Status != models.SwitchVerified {
		return nil
	}

	if err := s.verifications.DeleteForSwitch(sw.ID); err != nil {
		return fmt.Errorf("delete pending verifications: %w", err)
	}

	user, err := s.users.Get(sw.UserID)
	if err != nil {
		return nil
	}
	contacts, err := s.contacts.ListVerified(sw.UserID)
	if err != nil {
		return nil
	}
	for _, contact := range contacts {
		if err := s.dispatcher.SendSwitchCancelled(contact.Email, contact.Name, user.FullName()); err != nil {
			slog.Warn("cancellation notification failed", "user_id", sw.UserID.String(), "contact_id", contact.ID.String(), "error", err)
		}
	}
	return nil
}

// Disable turns the switch off entirely. Password-gated like cancel.
func (s *Service) Disable(userID uuid.UUID, password string) error {
	user, err := s.users.Get(userID)
	if err != nil {
		return ErrNotConfigured
	}
	if !s.passwords.VerifyPassword(password, user.Password) {
		slog.Warn("disable rejected: password verification failed", "user_id", userID.String(), "action", "dms.disable")
		return ErrInvalidPassword
	}

	sw, err := s.switches.Get(userID)
	if err != nil {
		return ErrNotConfigured
	}
	if sw.Status == models.SwitchReleased {
		return ErrAlreadyReleased
	}

	updated, err := s.switches.UpdateIf(userID,
		[]models.SwitchStatus{models.SwitchActive, models.SwitchWarning, models.SwitchTriggered, models.SwitchVerified},
		map[string]interface{}{
			"status":  models.SwitchDisabled,
			"enabled": false,
		})
	if err != nil {
		return fmt.Errorf("disable switch: %w", err)
	}
	if !updated {
		return ErrNotCancellable
	}

	if err := s.cancelCycle(sw); err != nil {
		slog.Error("trigger cycle cleanup failed after disable", "user_id", userID.String(), "error", err)
	}
	slog.Info("dead man's switch disabled", "user_id", userID.String())
	return nil
}

// StatusSnapshot is the user-facing view of the switch.
type StatusSnapshot struct {
	Configured            bool                `json:"configured"`
	Enabled               bool                `json:"enabled"`
	Status                models.SwitchStatus `json:"status,omitempty"`
	CheckInIntervalDays   int                 `json:"check_in_interval_days,omitempty"`
	GracePeriodDays       int                 `json:"grace_period_days,omitempty"`
	LastCheckIn           *time.Time          `json:"last_check_in,omitempty"`
	NextCheckInDue        *time.Time          `json:"next_check_in_due,omitempty"`
	MissedCheckIns        int                 `json:"missed_check_ins"`
	RequiredVerifications int                 `json:"required_verifications,omitempty"`
	CurrentVerifications  int                 `json:"current_verifications"`
	VerifiedContacts      int                 `json:"verified_contacts"`
}

// Status reports the switch state plus the attester headcount, so a client
// can surface "you need N more verified contacts" before it matters.
func (s *Service) Status(userID uuid.UUID) (*StatusSnapshot, error) {
	sw, err := s.switches.Get(userID)
	if err != nil {
		return &StatusSnapshot{Configured: false}, nil
	}

	confirmed, err := s.verifications.CountVerified(sw.ID)
	if err != nil {
		return nil, fmt.Errorf("count verifications: %w", err)
	}
	contacts, err := s.contacts.ListVerified(userID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}

	return &StatusSnapshot{
		Configured:            true,
		Enabled:               sw.Enabled,
		Status:                sw.Status,
		CheckInIntervalDays:   sw.CheckInIntervalDays,
		GracePeriodDays:       sw.GracePeriodDays,
		LastCheckIn:           sw.LastCheckIn,
		NextCheckInDue:        sw.NextCheckInDue,
		MissedCheckIns:        sw.MissedCheckIns,
		RequiredVerifications: sw.RequiredVerifications,
		CurrentVerifications:  int(confirmed),
		VerifiedContacts:      len(contacts),
	}, nil
}

// History returns the paginated check-in log, newest first.
func (s *Service) History(userID uuid.UUID, page, limit int) ([]models.CheckInEvent, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.checkins.List(userID, limit, (page-1)*limit)
}

// HandleMissedCheckIn advances one overdue switch a single step. Called by
// the scheduler for each switch past next_check_in_due.
func (s *Service) HandleMissedCheckIn(sw *models.DeadManSwitch) error {
	if !sw.Enabled || sw.NextCheckInDue == nil {
		return nil
	}
	now := s.now()

	switch sw.Status {
	case models.SwitchActive:
		// First miss: warn, do not touch verifications yet.
		updated, err := s.switches.UpdateIf(sw.UserID,
			[]models.SwitchStatus{models.SwitchActive},
			map[string]interface{}{
				"status":           models.SwitchWarning,
				"missed_check_ins": sw.MissedCheckIns + 1,
			})
		if err != nil {
			return fmt.Errorf("warn transition: %w", err)
		}
		if !updated {
			return nil
		}
		if user, err := s.users.Get(sw.UserID); err == nil {
			if err := s.dispatcher.SendUrgentReminder(user.Email, user.FirstName, sw.GracePeriodDays); err != nil {
				slog.Warn("urgent reminder failed", "user_id", sw.UserID.String(), "error", err)
			}
		}
		slog.Warn("missed check-in, switch in warning period", "user_id", sw.UserID.String(), "action", "dms.warn")
		return nil

	case models.SwitchWarning:
		// Second consecutive miss, counted one full day after the first.
		if now.Before(sw.NextCheckInDue.Add(escalationDelay)) {
			return nil
		}
		return s.TriggerSwitch(sw)

	default:
		return nil
	}
}

// TriggerSwitch moves WARNING -> TRIGGERED, issues one fresh attestation
// slot per verified contact and notifies everyone. A switch without enough
// verified contacts can never trigger: it stays WARNING and the failure is
// logged as an operational error; the scheduler re-evaluates every scan.
func (s *Service) TriggerSwitch(sw *models.DeadManSwitch) error {
	contacts, err := s.contacts.ListVerified(sw.UserID)
	if err != nil {
		return fmt.Errorf("list verified contacts: %w", err)
	}
	if len(contacts) < sw.RequiredVerifications {
		slog.Error("switch cannot trigger: insufficient verified legacy contacts",
			"user_id", sw.UserID.String(),
			"action", "dms.trigger",
			"verified_contacts", len(contacts),
			"required", sw.RequiredVerifications)
		return ErrInsufficientAttesters
	}

	now := s.now()
	updated, err := s.switches.UpdateIf(sw.UserID,
		[]models.SwitchStatus{models.SwitchWarning},
		map[string]interface{}{
			"status":           models.SwitchTriggered,
			"missed_check_ins": sw.MissedCheckIns + 1,
			"triggered_at":     now,
		})
	if err != nil {
		return fmt.Errorf("trigger transition: %w", err)
	}
	if !updated {
		// Already triggered by an overlapping scan, or the user checked in.
		return nil
	}

	user, err := s.users.Get(sw.UserID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	expires := now.Add(VerificationTTL)
	for _, contact := range contacts {
		token, err := cryptoutil.NewToken()
		if err != nil {
			return err
		}
		if err := s.verifications.Create(&models.SwitchVerification{
			ID:                uuid.New(),
			DeadManSwitchID:   sw.ID,
			LegacyContactID:   contact.ID,
			VerificationToken: token,
			ExpiresAt:         expires,
		}); err != nil {
			return fmt.Errorf("create verification for contact %s: %w", contact.ID, err)
		}
		if err := s.dispatcher.SendDeathVerificationRequest(contact.Email, contact.Name, user.FullName(), token); err != nil {
			slog.Warn("verification request notification failed", "user_id", sw.UserID.String(), "contact_id", contact.ID.String(), "error", err)
		}
	}

	// One last attempt to reach the user directly.
	if err := s.dispatcher.SendFinalWarning(user.Email, user.FirstName); err != nil {
		slog.Warn("final warning notification failed", "user_id", sw.UserID.String(), "error", err)
	}

	slog.Warn("dead man's switch triggered", "user_id", sw.UserID.String(), "action", "dms.trigger", "contacts_notified", len(contacts))
	return nil
}
