package deadman

import (
	"fmt"
	"log/slog"

	"github.com/Reshigan/Heirloom-sub004/internal/models"
	"github.com/Reshigan/Heirloom-sub004/internal/notify"
	"time"
)

// GenericFailureMessage is returned for any unusable token. Not-found and
// expired are deliberately indistinguishable so the endpoint leaks nothing
// about whether a switch (or a person) exists.
const GenericFailureMessage = "Invalid or expired verification link"

// VerifyResult is the attester-facing outcome.
type VerifyResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Collector tallies third-party attestations against the consensus
// threshold and advances the switch once it is crossed.
type Collector struct {
	switches      SwitchStore
	verifications VerificationStore
	users         UserStore
	dispatcher    notify.Dispatcher
	now           func() time.Time
}

func NewCollector(switches SwitchStore, verifications VerificationStore, users UserStore, dispatcher notify.Dispatcher) *Collector {
	return &Collector{
		switches:      switches,
		verifications: verifications,
		users:         users,
		dispatcher:    dispatcher,
		now:           time.Now,
	}
}

// VerifyPassing records one contact's attestation. Confirming an
// already-confirmed token is idempotent success. Consensus is reached by
// whichever confirmation crosses the threshold last; attesters act
// independently, so no ordering beyond monotonic counting is promised.
func (c *Collector) VerifyPassing(token string) (*VerifyResult, error) {
	v, err := c.verifications.GetByToken(token)
	if err != nil {
		return &VerifyResult{Success: false, Message: GenericFailureMessage}, nil
	}

	now := c.now()
	if now.After(v.ExpiresAt) {
		return &VerifyResult{Success: false, Message: GenericFailureMessage}, nil
	}

	sw, err := c.switches.GetByID(v.DeadManSwitchID)
	if err != nil {
		return &VerifyResult{Success: false, Message: GenericFailureMessage}, nil
	}

	if !v.Verified {
		if _, err := c.verifications.MarkVerified(v.ID, now); err != nil {
			return nil, fmt.Errorf("record verification: %w", err)
		}
	}

	confirmed, err := c.verifications.CountVerified(sw.ID)
	if err != nil {
		return nil, fmt.Errorf("count verifications: %w", err)
	}
	tally := fmt.Sprintf("%d/%d", confirmed, sw.RequiredVerifications)

	if int(confirmed) >= sw.RequiredVerifications {
		updated, err := c.switches.UpdateIf(sw.UserID,
			[]models.SwitchStatus{models.SwitchTriggered},
			map[string]interface{}{
				"status":      models.SwitchVerified,
				"verified_at": now,
			})
		if err != nil {
			return nil, fmt.Errorf("verified transition: %w", err)
		}
		if updated {
			// Last chance for the user: the cooldown clock starts now.
			if user, err := c.users.Get(sw.UserID); err == nil {
				if err := c.dispatcher.SendPassingVerified(user.Email, user.FirstName); err != nil {
					slog.Warn("passing-verified notification failed", "user_id", sw.UserID.String(), "error", err)
				}
			}
			slog.Info("passing verified, cooldown started",
				"user_id", sw.UserID.String(), "action", "dms.verified", "tally", tally)
		}
	}

	return &VerifyResult{
		Success: true,
		Message: fmt.Sprintf("Verification recorded (%s)", tally),
	}, nil
}
