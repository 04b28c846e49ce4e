package deadman

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Reshigan/Heirloom-sub004/internal/models"
	"github.com/Reshigan/Heirloom-sub004/internal/notify"
	"github.com/google/uuid"
)

var ErrCooldownActive = errors.New("cooldown has not elapsed")

// Coordinator executes the one-time release for a VERIFIED switch whose
// cooldown has elapsed: escrowed keys first, then sealed posthumous
// letters, then the RELEASED transition. Every step is guarded by its own
// idempotency marker (released flag, delivery receipt, conditional status
// update), so a run interrupted anywhere can be safely re-driven by the
// next scheduler pass.
type Coordinator struct {
	switches   SwitchStore
	letters    LetterStore
	users      UserStore
	releaser   KeyReleaser
	dispatcher notify.Dispatcher
	now        func() time.Time
}

func NewCoordinator(switches SwitchStore, letters LetterStore, users UserStore, releaser KeyReleaser, dispatcher notify.Dispatcher) *Coordinator {
	return &Coordinator{
		switches:   switches,
		letters:    letters,
		users:      users,
		releaser:   releaser,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// Release runs the release pipeline for one user. Re-invoking after a
// partial failure skips already-released keys and already-delivered
// letters. Invoking on an already-RELEASED switch is a no-op.
func (c *Coordinator) Release(userID uuid.UUID) error {
	sw, err := c.switches.Get(userID)
	if err != nil {
		return ErrNotConfigured
	}
	if sw.Status == models.SwitchReleased {
		return nil
	}
	if sw.Status != models.SwitchVerified {
		return nil
	}
	now := c.now()
	if sw.VerifiedAt == nil || now.Before(sw.VerifiedAt.Add(CooldownPeriod)) {
		return ErrCooldownActive
	}

	released, err := c.releaser.ReleaseEscrowedKeys(userID)
	if err != nil {
		return fmt.Errorf("escrow release: %w", err)
	}

	delivered, failed, err := c.deliverLetters(userID)
	if err != nil {
		return fmt.Errorf("letter delivery: %w", err)
	}
	if failed > 0 {
		// Stay VERIFIED so the next pass retries the failed recipients;
		// the receipts keep successful ones from being re-sent.
		slog.Warn("release incomplete, will retry letter delivery",
			"user_id", userID.String(), "delivered", delivered, "failed", failed)
		return fmt.Errorf("letter delivery: %d of %d recipients failed", failed, delivered+failed)
	}

	updated, err := c.switches.UpdateIf(userID,
		[]models.SwitchStatus{models.SwitchVerified},
		map[string]interface{}{
			"status":      models.SwitchReleased,
			"released_at": now,
		})
	if err != nil {
		return fmt.Errorf("released transition: %w", err)
	}
	if !updated {
		return nil
	}

	slog.Info("dead man's switch released",
		"user_id", userID.String(),
		"action", "dms.release",
		"keys_released", released,
		"letters_delivered", delivered)
	return nil
}

func (c *Coordinator) deliverLetters(userID uuid.UUID) (delivered, failed int, err error) {
	user, err := c.users.Get(userID)
	if err != nil {
		return 0, 0, fmt.Errorf("load user: %w", err)
	}

	letters, err := c.letters.ListSealedPosthumous(userID)
	if err != nil {
		return 0, 0, fmt.Errorf("list letters: %w", err)
	}

	for _, letter := range letters {
		for _, recipient := range letter.Recipients {
			email := recipient.Contact.Email
			if email == "" {
				continue
			}

			exists, err := c.letters.HasDelivery(letter.ID, email)
			if err != nil {
				return delivered, failed, fmt.Errorf("check delivery receipt: %w", err)
			}
			if exists {
				continue
			}

			if err := c.dispatcher.SendLetterDelivery(email, recipient.Contact.Name, user.FullName(), notify.LetterContent{
				Salutation: letter.Salutation,
				Body:       letter.Body,
				Signature:  letter.Signature,
			}); err != nil {
				slog.Error("letter delivery failed", "user_id", userID.String(), "letter_id", letter.ID.String(), "recipient", email, "error", err)
				failed++
				continue
			}

			now := c.now()
			if err := c.letters.RecordDelivery(&models.LetterDelivery{
				ID:             uuid.New(),
				LetterID:       letter.ID,
				RecipientEmail: email,
				Status:         "DELIVERED",
				SentAt:         now,
				DeliveredAt:    &now,
			}); err != nil {
				return delivered, failed, fmt.Errorf("record delivery receipt: %w", err)
			}
			delivered++
		}
	}
	return delivered, failed, nil
}
