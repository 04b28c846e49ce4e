package deadman

import (
	"time"

	"github.com/Reshigan/Heirloom-sub004/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormSwitchStore is the Postgres-backed switch store. Status transitions
// go through UpdateIf, a conditional UPDATE keyed on the expected status -
// the single-writer guarantee from the concurrency model.
type GormSwitchStore struct {
	db *gorm.DB
}

func NewGormSwitchStore(db *gorm.DB) *GormSwitchStore {
	return &GormSwitchStore{db: db}
}

func (s *GormSwitchStore) Get(userID uuid.UUID) (*models.DeadManSwitch, error) {
	var sw models.DeadManSwitch
	if err := s.db.First(&sw, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &sw, nil
}

func (s *GormSwitchStore) GetByID(id uuid.UUID) (*models.DeadManSwitch, error) {
	var sw models.DeadManSwitch
	if err := s.db.First(&sw, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &sw, nil
}

func (s *GormSwitchStore) Create(sw *models.DeadManSwitch) error {
	return s.db.Create(sw).Error
}

func (s *GormSwitchStore) Save(sw *models.DeadManSwitch) error {
	return s.db.Save(sw).Error
}

func (s *GormSwitchStore) UpdateIf(userID uuid.UUID, expect []models.SwitchStatus, updates map[string]interface{}) (bool, error) {
	result := s.db.Model(&models.DeadManSwitch{}).
		Where("user_id = ? AND status IN ?", userID, expect).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *GormSwitchStore) ListOverdue(now time.Time) ([]models.DeadManSwitch, error) {
	var switches []models.DeadManSwitch
	err := s.db.
		Where("enabled = true AND status IN ? AND next_check_in_due <= ?",
			[]models.SwitchStatus{models.SwitchActive, models.SwitchWarning}, now).
		Find(&switches).Error
	return switches, err
}

func (s *GormSwitchStore) ListUpcoming(now, until time.Time) ([]models.DeadManSwitch, error) {
	var switches []models.DeadManSwitch
	err := s.db.
		Where("enabled = true AND status = ? AND next_check_in_due > ? AND next_check_in_due <= ?",
			models.SwitchActive, now, until).
		Find(&switches).Error
	return switches, err
}

func (s *GormSwitchStore) ListCooldownElapsed(cutoff time.Time) ([]models.DeadManSwitch, error) {
	var switches []models.DeadManSwitch
	err := s.db.
		Where("status = ? AND verified_at <= ?", models.SwitchVerified, cutoff).
		Find(&switches).Error
	return switches, err
}

type GormCheckInStore struct {
	db *gorm.DB
}

func NewGormCheckInStore(db *gorm.DB) *GormCheckInStore {
	return &GormCheckInStore{db: db}
}

func (s *GormCheckInStore) Append(event *models.CheckInEvent) error {
	return s.db.Create(event).Error
}

func (s *GormCheckInStore) List(userID uuid.UUID, limit, offset int) ([]models.CheckInEvent, int64, error) {
	var events []models.CheckInEvent
	var total int64

	if err := s.db.Model(&models.CheckInEvent{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := s.db.Where("user_id = ?", userID).
		Order("checked_in_at DESC").
		Limit(limit).Offset(offset).
		Find(&events).Error
	return events, total, err
}

type GormContactStore struct {
	db *gorm.DB
}

func NewGormContactStore(db *gorm.DB) *GormContactStore {
	return &GormContactStore{db: db}
}

func (s *GormContactStore) ListVerified(userID uuid.UUID) ([]models.LegacyContact, error) {
	var contacts []models.LegacyContact
	err := s.db.
		Where("user_id = ? AND verification_status = ?", userID, models.ContactVerified).
		Find(&contacts).Error
	return contacts, err
}

type GormVerificationStore struct {
	db *gorm.DB
}

func NewGormVerificationStore(db *gorm.DB) *GormVerificationStore {
	return &GormVerificationStore{db: db}
}

func (s *GormVerificationStore) Create(v *models.SwitchVerification) error {
	return s.db.Create(v).Error
}

func (s *GormVerificationStore) GetByToken(token string) (*models.SwitchVerification, error) {
	var v models.SwitchVerification
	if err := s.db.First(&v, "verification_token = ?", token).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *GormVerificationStore) MarkVerified(id uuid.UUID, at time.Time) (bool, error) {
	result := s.db.Model(&models.SwitchVerification{}).
		Where("id = ? AND verified = false", id).
		Updates(map[string]interface{}{
			"verified":    true,
			"verified_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *GormVerificationStore) CountVerified(switchID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.Model(&models.SwitchVerification{}).
		Where("dead_man_switch_id = ? AND verified = true", switchID).
		Count(&count).Error
	return count, err
}

func (s *GormVerificationStore) DeleteForSwitch(switchID uuid.UUID) error {
	return s.db.Where("dead_man_switch_id = ?", switchID).
		Delete(&models.SwitchVerification{}).Error
}

type GormUserStore struct {
	db *gorm.DB
}

func NewGormUserStore(db *gorm.DB) *GormUserStore {
	return &GormUserStore{db: db}
}

func (s *GormUserStore) Get(userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GormLetterStore reads sealed letters and writes delivery receipts. The
// release pipeline never mutates letter content.
type GormLetterStore struct {
	db *gorm.DB
}

func NewGormLetterStore(db *gorm.DB) *GormLetterStore {
	return &GormLetterStore{db: db}
}

func (s *GormLetterStore) ListSealedPosthumous(userID uuid.UUID) ([]models.Letter, error) {
	var letters []models.Letter
	err := s.db.
		Preload("Recipients").
		Preload("Recipients.Contact").
		Where("user_id = ? AND delivery_trigger = ? AND sealed_at IS NOT NULL",
			userID, models.DeliveryPosthumous).
		Find(&letters).Error
	return letters, err
}

func (s *GormLetterStore) HasDelivery(letterID uuid.UUID, recipientEmail string) (bool, error) {
	var count int64
	err := s.db.Model(&models.LetterDelivery{}).
		Where("letter_id = ? AND recipient_email = ?", letterID, recipientEmail).
		Count(&count).Error
	return count > 0, err
}

func (s *GormLetterStore) RecordDelivery(d *models.LetterDelivery) error {
	return s.db.Create(d).Error
}
