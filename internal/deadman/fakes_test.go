package deadman

// In-memory fakes for the store and collaborator interfaces. They mirror
// the conditional-update semantics of the Postgres stores so concurrency
// edge cases (benign no-ops on moved-on rows) are testable without a
// database.

import (
	"errors"
	"sync"
	"time"

	"github.com/Reshigan/Heirloom-sub004/internal/models"
	"github.com/Reshigan/Heirloom-sub004/internal/notify"
	"github.com/google/uuid"
)

var errNotFound = errors.New("not found")

type memSwitches struct {
	mu     sync.Mutex
	byUser map[uuid.UUID]*models.DeadManSwitch
}

func newMemSwitches() *memSwitches {
	return &memSwitches{byUser: make(map[uuid.UUID]*models.DeadManSwitch)}
}

func (s *memSwitches) Get(userID uuid.UUID) (*models.DeadManSwitch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sw, ok := s.byUser[userID]
	if !ok {
		return nil, errNotFound
	}
	cp := *sw
	return &cp, nil
}

func (s *memSwitches) GetByID(id uuid.UUID) (*models.DeadManSwitch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sw := range s.byUser {
		if sw.ID == id {
			cp := *sw
			return &cp, nil
		}
	}
	return nil, errNotFound
}

func (s *memSwitches) Create(sw *models.DeadManSwitch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sw
	s.byUser[sw.UserID] = &cp
	return nil
}

func (s *memSwitches) Save(sw *models.DeadManSwitch) error {
	return s.Create(sw)
}

func (s *memSwitches) UpdateIf(userID uuid.UUID, expect []models.SwitchStatus, updates map[string]interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sw, ok := s.byUser[userID]
	if !ok {
		return false, nil
	}
	matched := false
	for _, st := range expect {
		if sw.Status == st {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	applyUpdates(sw, updates)
	return true, nil
}

func applyUpdates(sw *models.DeadManSwitch, updates map[string]interface{}) {
	for col, val := range updates {
		switch col {
		case "status":
			sw.Status = val.(models.SwitchStatus)
		case "enabled":
			sw.Enabled = val.(bool)
		case "check_in_interval_days":
			sw.CheckInIntervalDays = val.(int)
		case "grace_period_days":
			sw.GracePeriodDays = val.(int)
		case "missed_check_ins":
			sw.MissedCheckIns = val.(int)
		case "last_check_in":
			t := val.(time.Time)
			sw.LastCheckIn = &t
		case "next_check_in_due":
			t := val.(time.Time)
			sw.NextCheckInDue = &t
		case "triggered_at":
			sw.TriggeredAt = timePtr(val)
		case "verified_at":
			sw.VerifiedAt = timePtr(val)
		case "released_at":
			sw.ReleasedAt = timePtr(val)
		}
	}
}

func timePtr(val interface{}) *time.Time {
	if val == nil {
		return nil
	}
	t := val.(time.Time)
	return &t
}

func (s *memSwitches) ListOverdue(now time.Time) ([]models.DeadManSwitch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DeadManSwitch
	for _, sw := range s.byUser {
		if sw.Enabled &&
			(sw.Status == models.SwitchActive || sw.Status == models.SwitchWarning) &&
			sw.NextCheckInDue != nil && !sw.NextCheckInDue.After(now) {
			out = append(out, *sw)
		}
	}
	return out, nil
}

func (s *memSwitches) ListUpcoming(now, until time.Time) ([]models.DeadManSwitch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DeadManSwitch
	for _, sw := range s.byUser {
		if sw.Enabled && sw.Status == models.SwitchActive && sw.NextCheckInDue != nil &&
			sw.NextCheckInDue.After(now) && !sw.NextCheckInDue.After(until) {
			out = append(out, *sw)
		}
	}
	return out, nil
}

func (s *memSwitches) ListCooldownElapsed(cutoff time.Time) ([]models.DeadManSwitch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DeadManSwitch
	for _, sw := range s.byUser {
		if sw.Status == models.SwitchVerified && sw.VerifiedAt != nil && !sw.VerifiedAt.After(cutoff) {
			out = append(out, *sw)
		}
	}
	return out, nil
}

type memCheckIns struct {
	mu     sync.Mutex
	events []models.CheckInEvent
}

func (s *memCheckIns) Append(event *models.CheckInEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	return nil
}

func (s *memCheckIns) List(userID uuid.UUID, limit, offset int) ([]models.CheckInEvent, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var mine []models.CheckInEvent
	for _, e := range s.events {
		if e.UserID == userID {
			mine = append(mine, e)
		}
	}
	total := int64(len(mine))
	if offset >= len(mine) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(mine) {
		end = len(mine)
	}
	return mine[offset:end], total, nil
}

type memContacts struct {
	contacts []models.LegacyContact
}

func (s *memContacts) ListVerified(userID uuid.UUID) ([]models.LegacyContact, error) {
	var out []models.LegacyContact
	for _, c := range s.contacts {
		if c.UserID == userID && c.VerificationStatus == models.ContactVerified {
			out = append(out, c)
		}
	}
	return out, nil
}

type memVerifications struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.SwitchVerification
}

func newMemVerifications() *memVerifications {
	return &memVerifications{rows: make(map[uuid.UUID]*models.SwitchVerification)}
}

func (s *memVerifications) Create(v *models.SwitchVerification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	s.rows[v.ID] = &cp
	return nil
}

func (s *memVerifications) GetByToken(token string) (*models.SwitchVerification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.rows {
		if v.VerificationToken == token {
			cp := *v
			return &cp, nil
		}
	}
	return nil, errNotFound
}

func (s *memVerifications) MarkVerified(id uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.rows[id]
	if !ok || v.Verified {
		return false, nil
	}
	v.Verified = true
	v.VerifiedAt = &at
	return true, nil
}

func (s *memVerifications) CountVerified(switchID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, v := range s.rows {
		if v.DeadManSwitchID == switchID && v.Verified {
			count++
		}
	}
	return count, nil
}

func (s *memVerifications) DeleteForSwitch(switchID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, v := range s.rows {
		if v.DeadManSwitchID == switchID {
			delete(s.rows, id)
		}
	}
	return nil
}

func (s *memVerifications) forSwitch(switchID uuid.UUID) []models.SwitchVerification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SwitchVerification
	for _, v := range s.rows {
		if v.DeadManSwitchID == switchID {
			out = append(out, *v)
		}
	}
	return out
}

type memUsers struct {
	users map[uuid.UUID]*models.User
}

func (s *memUsers) Get(userID uuid.UUID) (*models.User, error) {
	u, ok := s.users[userID]
	if !ok {
		return nil, errNotFound
	}
	cp := *u
	return &cp, nil
}

type memLetters struct {
	mu         sync.Mutex
	letters    []models.Letter
	deliveries []models.LetterDelivery
}

func (s *memLetters) ListSealedPosthumous(userID uuid.UUID) ([]models.Letter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Letter
	for _, l := range s.letters {
		if l.UserID == userID && l.DeliveryTrigger == models.DeliveryPosthumous && l.SealedAt != nil {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *memLetters) HasDelivery(letterID uuid.UUID, recipientEmail string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.deliveries {
		if d.LetterID == letterID && d.RecipientEmail == recipientEmail {
			return true, nil
		}
	}
	return false, nil
}

func (s *memLetters) RecordDelivery(d *models.LetterDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, *d)
	return nil
}

// plaintextPasswords treats the stored hash as the plaintext itself; the
// real bcrypt comparison is covered in the auth service tests.
type plaintextPasswords struct{}

func (plaintextPasswords) VerifyPassword(plaintext, hash string) bool {
	return plaintext != "" && plaintext == hash
}

// fakeDispatcher records every outbound notification by kind.
type fakeDispatcher struct {
	mu     sync.Mutex
	sent   map[string][]notify.EmailJob
	fail   map[string]bool
	failTo map[string]bool
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{
		sent:   make(map[string][]notify.EmailJob),
		fail:   make(map[string]bool),
		failTo: make(map[string]bool),
	}
}

func (d *fakeDispatcher) record(kind string, job notify.EmailJob) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail[kind] || d.failTo[job.To] {
		return errors.New("provider unavailable")
	}
	job.Kind = kind
	d.sent[kind] = append(d.sent[kind], job)
	return nil
}

func (d *fakeDispatcher) count(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent[kind])
}

func (d *fakeDispatcher) SendCheckInReminder(email, name string, daysLeft int) error {
	return d.record(notify.KindCheckInReminder, notify.EmailJob{To: email, ToName: name, DaysLeft: daysLeft})
}

func (d *fakeDispatcher) SendUrgentReminder(email, name string, graceDays int) error {
	return d.record(notify.KindUrgentReminder, notify.EmailJob{To: email, ToName: name, DaysLeft: graceDays})
}

func (d *fakeDispatcher) SendFinalWarning(email, name string) error {
	return d.record(notify.KindFinalWarning, notify.EmailJob{To: email, ToName: name})
}

func (d *fakeDispatcher) SendDeathVerificationRequest(contactEmail, contactName, userName, token string) error {
	return d.record(notify.KindDeathVerificationRequest, notify.EmailJob{To: contactEmail, ToName: contactName, UserName: userName, Token: token})
}

func (d *fakeDispatcher) SendPassingVerified(email, name string) error {
	return d.record(notify.KindPassingVerified, notify.EmailJob{To: email, ToName: name})
}

func (d *fakeDispatcher) SendSwitchCancelled(contactEmail, contactName, userName string) error {
	return d.record(notify.KindSwitchCancelled, notify.EmailJob{To: contactEmail, ToName: contactName, UserName: userName})
}

func (d *fakeDispatcher) SendEscrowKeyRelease(beneficiaryEmail, beneficiaryName, userName, wrappedKey string) error {
	return d.record(notify.KindEscrowKeyRelease, notify.EmailJob{To: beneficiaryEmail, ToName: beneficiaryName, UserName: userName, WrappedKey: wrappedKey})
}

func (d *fakeDispatcher) SendLetterDelivery(recipientEmail, recipientName, userName string, letter notify.LetterContent) error {
	return d.record(notify.KindLetterDelivery, notify.EmailJob{To: recipientEmail, ToName: recipientName, UserName: userName, Letter: &letter})
}

func (d *fakeDispatcher) SendContactInvite(contactEmail, contactName, userName, token string) error {
	return d.record(notify.KindContactInvite, notify.EmailJob{To: contactEmail, ToName: contactName, UserName: userName, Token: token})
}

// fakeReleaser satisfies KeyReleaser for coordinator tests.
type fakeReleaser struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *fakeReleaser) ReleaseEscrowedKeys(userID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	r.calls++
	return 1, nil
}
