package services

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Reshigan/Heirloom-sub004/internal/cryptoutil"
	"github.com/Reshigan/Heirloom-sub004/internal/models"
	"github.com/Reshigan/Heirloom-sub004/internal/notify"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrContactExists     = errors.New("contact with this email already exists")
	ErrInvalidAcceptLink = errors.New("invalid or expired acceptance link")
)

// ContactService manages legacy contacts: the people who can attest the
// user's passing and receive escrowed keys. A contact only counts toward
// the verification consensus after accepting the role via the emailed
// token.
type ContactService struct {
	db         *gorm.DB
	dispatcher notify.Dispatcher
}

func NewContactService(db *gorm.DB, dispatcher notify.Dispatcher) *ContactService {
	return &ContactService{db: db, dispatcher: dispatcher}
}

func (s *ContactService) Create(userID uuid.UUID, name, email string) (*models.LegacyContact, error) {
	if name == "" || email == "" {
		return nil, errors.New("name and email are required")
	}

	var existing models.LegacyContact
	if err := s.db.Where("user_id = ? AND email = ?", userID, email).First(&existing).Error; err == nil {
		return nil, ErrContactExists
	}

	token, err := cryptoutil.NewToken()
	if err != nil {
		return nil, err
	}

	contact := models.LegacyContact{
		ID:                 uuid.New(),
		UserID:             userID,
		Name:               name,
		Email:              email,
		VerificationStatus: models.ContactPending,
		AcceptToken:        token,
	}
	if err := s.db.Create(&contact).Error; err != nil {
		return nil, fmt.Errorf("create contact: %w", err)
	}

	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err == nil {
		if err := s.dispatcher.SendContactInvite(contact.Email, contact.Name, user.FullName(), token); err != nil {
			slog.Warn("contact invite failed", "user_id", userID.String(), "contact_id", contact.ID.String(), "error", err)
		}
	}

	slog.Info("legacy contact added", "user_id", userID.String(), "contact_id", contact.ID.String())
	return &contact, nil
}

func (s *ContactService) List(userID uuid.UUID) ([]models.LegacyContact, error) {
	var contacts []models.LegacyContact
	err := s.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&contacts).Error
	return contacts, err
}

// Accept marks a contact VERIFIED via the invite token. Accepting twice is
// an idempotent success; an unknown token gets the same generic error as
// any other unusable link.
func (s *ContactService) Accept(token string) error {
	if token == "" {
		return ErrInvalidAcceptLink
	}

	var contact models.LegacyContact
	if err := s.db.Where("accept_token = ?", token).First(&contact).Error; err != nil {
		return ErrInvalidAcceptLink
	}
	if contact.VerificationStatus == models.ContactVerified {
		return nil
	}

	now := time.Now()
	if err := s.db.Model(&contact).Updates(map[string]interface{}{
		"verification_status": models.ContactVerified,
		"accepted_at":         now,
	}).Error; err != nil {
		return fmt.Errorf("accept contact: %w", err)
	}

	slog.Info("legacy contact accepted role", "contact_id", contact.ID.String(), "user_id", contact.UserID.String())
	return nil
}
