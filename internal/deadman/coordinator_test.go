package deadman

import (
	"errors"
	"testing"
	"time"

	"github.com/Reshigan/Heirloom-sub004/internal/models"
	"github.com/Reshigan/Heirloom-sub004/internal/notify"
	"github.com/google/uuid"
)

// verifyAll drives the full path to VERIFIED: trigger, then both
// attestations.
func verifyAll(t *testing.T, env *testEnv) {
	t.Helper()
	env.escalate(t)
	collector := newTestCollector(env)
	for _, v := range env.verifs.forSwitch(env.mustSwitch(t).ID) {
		if _, err := collector.VerifyPassing(v.VerificationToken); err != nil {
			t.Fatalf("verify: %v", err)
		}
	}
	if got := env.mustSwitch(t).Status; got != models.SwitchVerified {
		t.Fatalf("status = %s, want VERIFIED", got)
	}
}

func sealedLetter(env *testEnv, recipients ...models.LegacyContact) models.Letter {
	sealed := env.now
	letter := models.Letter{
		ID:              uuid.New(),
		UserID:          env.userID,
		Title:           "For later",
		Salutation:      "Dear friend",
		Body:            "Thank you for everything.",
		Signature:       "Ada",
		DeliveryTrigger: models.DeliveryPosthumous,
		SealedAt:        &sealed,
	}
	for _, c := range recipients {
		letter.Recipients = append(letter.Recipients, models.LetterRecipient{
			ID:              uuid.New(),
			LetterID:        letter.ID,
			LegacyContactID: c.ID,
			Contact:         c,
		})
	}
	return letter
}

func newTestCoordinator(env *testEnv, letters *memLetters, releaser *fakeReleaser) *Coordinator {
	c := NewCoordinator(env.switches, letters, env.users, releaser, env.disp)
	c.now = func() time.Time { return env.now }
	return c
}

func TestReleaseWaitsOutCooldown(t *testing.T) {
	env := newTestEnv(t, 2)
	verifyAll(t, env)
	coordinator := newTestCoordinator(env, &memLetters{}, &fakeReleaser{})

	env.advance(CooldownPeriod - time.Hour)
	if err := coordinator.Release(env.userID); !errors.Is(err, ErrCooldownActive) {
		t.Fatalf("err = %v, want ErrCooldownActive", err)
	}
	if got := env.mustSwitch(t).Status; got != models.SwitchVerified {
		t.Errorf("status = %s, want VERIFIED (release must wait)", got)
	}
}

func TestReleasePipeline(t *testing.T) {
	env := newTestEnv(t, 2)
	verifyAll(t, env)

	letters := &memLetters{}
	letters.letters = append(letters.letters, sealedLetter(env, env.contacts.contacts...))
	releaser := &fakeReleaser{}
	coordinator := newTestCoordinator(env, letters, releaser)

	env.advance(CooldownPeriod + time.Minute)
	if err := coordinator.Release(env.userID); err != nil {
		t.Fatalf("release: %v", err)
	}

	sw := env.mustSwitch(t)
	if sw.Status != models.SwitchReleased {
		t.Fatalf("status = %s, want RELEASED", sw.Status)
	}
	if sw.ReleasedAt == nil {
		t.Error("released_at not set")
	}
	if releaser.calls != 1 {
		t.Errorf("escrow release calls = %d, want 1", releaser.calls)
	}
	if env.disp.count(notify.KindLetterDelivery) != 2 {
		t.Errorf("letter deliveries = %d, want 2", env.disp.count(notify.KindLetterDelivery))
	}
	if len(letters.deliveries) != 2 {
		t.Errorf("delivery receipts = %d, want 2", len(letters.deliveries))
	}

	// Re-running against a RELEASED switch is a no-op.
	if err := coordinator.Release(env.userID); err != nil {
		t.Fatalf("repeat release: %v", err)
	}
	if releaser.calls != 1 {
		t.Errorf("repeat release ran the escrow pipeline again")
	}
	if env.disp.count(notify.KindLetterDelivery) != 2 {
		t.Error("repeat release resent letters")
	}
}

func TestReleaseRetriesFailedRecipientsOnly(t *testing.T) {
	env := newTestEnv(t, 2)
	verifyAll(t, env)

	letters := &memLetters{}
	letters.letters = append(letters.letters, sealedLetter(env, env.contacts.contacts...))
	releaser := &fakeReleaser{}
	coordinator := newTestCoordinator(env, letters, releaser)

	env.advance(CooldownPeriod + time.Minute)
	env.disp.failTo["bob@example.com"] = true
	if err := coordinator.Release(env.userID); err == nil {
		t.Fatal("release with a failed recipient must return an error")
	}

	// Alice got hers and has a receipt; the switch stays VERIFIED.
	if got := env.mustSwitch(t).Status; got != models.SwitchVerified {
		t.Fatalf("status = %s, want VERIFIED (incomplete delivery)", got)
	}
	if len(letters.deliveries) != 1 {
		t.Fatalf("delivery receipts = %d, want 1", len(letters.deliveries))
	}

	// Next pass sends only to bob, then completes the release.
	env.disp.failTo["bob@example.com"] = false
	if err := coordinator.Release(env.userID); err != nil {
		t.Fatalf("retry release: %v", err)
	}
	if got := env.mustSwitch(t).Status; got != models.SwitchReleased {
		t.Fatalf("status = %s, want RELEASED", got)
	}
	if env.disp.count(notify.KindLetterDelivery) != 2 {
		t.Errorf("letter deliveries = %d, want 2 total", env.disp.count(notify.KindLetterDelivery))
	}
	if len(letters.deliveries) != 2 {
		t.Errorf("delivery receipts = %d, want 2", len(letters.deliveries))
	}
}

func TestReleaseSkipsUnsealedLetters(t *testing.T) {
	env := newTestEnv(t, 2)
	verifyAll(t, env)

	letters := &memLetters{}
	draft := sealedLetter(env, env.contacts.contacts[0])
	draft.SealedAt = nil
	letters.letters = append(letters.letters, draft)
	coordinator := newTestCoordinator(env, letters, &fakeReleaser{})

	env.advance(CooldownPeriod + time.Minute)
	if err := coordinator.Release(env.userID); err != nil {
		t.Fatalf("release: %v", err)
	}
	if env.disp.count(notify.KindLetterDelivery) != 0 {
		t.Error("draft letters must never be delivered")
	}
	if got := env.mustSwitch(t).Status; got != models.SwitchReleased {
		t.Errorf("status = %s, want RELEASED", got)
	}
}

func TestSchedulerScanAdvancesLifecycle(t *testing.T) {
	env := newTestEnv(t, 2)
	if _, err := env.svc.Configure(env.userID, 30, 7); err != nil {
		t.Fatalf("configure: %v", err)
	}

	letters := &memLetters{}
	releaser := &fakeReleaser{}
	coordinator := newTestCoordinator(env, letters, releaser)
	sched := NewScheduler(env.switches, env.users, env.svc, coordinator, env.disp, nil, time.Hour)
	sched.now = func() time.Time { return env.now }

	// Day 29: the 1-day reminder goes out.
	env.advance(29 * 24 * time.Hour)
	sched.Scan(t.Context())
	if env.disp.count(notify.KindCheckInReminder) != 1 {
		t.Errorf("reminders = %d, want 1", env.disp.count(notify.KindCheckInReminder))
	}

	// Day 30: overdue, first miss.
	env.advance(24*time.Hour + time.Hour)
	sched.Scan(t.Context())
	if got := env.mustSwitch(t).Status; got != models.SwitchWarning {
		t.Fatalf("status = %s, want WARNING", got)
	}

	// Day 31: second miss, trigger.
	env.advance(24 * time.Hour)
	sched.Scan(t.Context())
	if got := env.mustSwitch(t).Status; got != models.SwitchTriggered {
		t.Fatalf("status = %s, want TRIGGERED", got)
	}

	// Both contacts attest; the next scans release after the cooldown.
	collector := newTestCollector(env)
	for _, v := range env.verifs.forSwitch(env.mustSwitch(t).ID) {
		if _, err := collector.VerifyPassing(v.VerificationToken); err != nil {
			t.Fatalf("verify: %v", err)
		}
	}
	sched.Scan(t.Context())
	if got := env.mustSwitch(t).Status; got != models.SwitchVerified {
		t.Fatalf("status = %s, want VERIFIED during cooldown", got)
	}

	env.advance(CooldownPeriod + time.Minute)
	sched.Scan(t.Context())
	if got := env.mustSwitch(t).Status; got != models.SwitchReleased {
		t.Fatalf("status = %s, want RELEASED after cooldown", got)
	}
	if releaser.calls != 1 {
		t.Errorf("escrow release calls = %d, want 1", releaser.calls)
	}
}
