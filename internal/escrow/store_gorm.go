package escrow

import (
	"time"

	"github.com/Reshigan/Heirloom-sub004/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore is the Postgres-backed escrow store.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) UpsertUnreleased(userID, beneficiaryID uuid.UUID, encryptedKey []byte) error {
	entry := models.KeyEscrow{
		ID:            uuid.New(),
		UserID:        userID,
		BeneficiaryID: beneficiaryID,
		EncryptedKey:  encryptedKey,
	}
	// The released guard in the update set keeps released entries immutable.
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "beneficiary_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"encrypted_key": encryptedKey,
			"updated_at":    time.Now(),
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Eq{Column: clause.Column{Table: "key_escrows", Name: "released"}, Value: false},
		}},
	}).Create(&entry).Error
}

func (s *GormStore) ListUnreleased(userID uuid.UUID) ([]models.KeyEscrow, error) {
	var entries []models.KeyEscrow
	err := s.db.Preload("Beneficiary").
		Where("user_id = ? AND released = false", userID).
		Find(&entries).Error
	return entries, err
}

func (s *GormStore) MarkReleased(id uuid.UUID, at time.Time) (bool, error) {
	result := s.db.Model(&models.KeyEscrow{}).
		Where("id = ? AND released = false", id).
		Updates(map[string]interface{}{
			"released":    true,
			"released_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GormUserStore adapts the users table to the vault's needs.
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

func (s *GormUserStore) SaveEncryption(userID uuid.UUID, salt string, wrappedKey, kdfParams []byte) error {
	return s.db.Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"encryption_salt":       salt,
			"encrypted_master_key":  wrappedKey,
			"key_derivation_params": kdfParams,
		}).Error
}

// GormContactStore resolves beneficiaries against the user's legacy contacts.
type GormContactStore struct {
	db *gorm.DB
}

func NewGormContactStore(db *gorm.DB) *GormContactStore {
	return &GormContactStore{db: db}
}

func (s *GormContactStore) GetByIDs(userID uuid.UUID, ids []uuid.UUID) ([]models.LegacyContact, error) {
	var contacts []models.LegacyContact
	err := s.db.Where("user_id = ? AND id IN ?", userID, ids).Find(&contacts).Error
	return contacts, err
}
