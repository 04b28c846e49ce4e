// Package escrow implements the key escrow vault: beneficiary-specific
// wrapped copies of a user's master key, held until the switch protocol
// authorizes their one-time release.
//
// Key hierarchy: the master key is wrapped with the user's password-derived
// key (client secret), then re-wrapped with the server master key for
// storage. The server alone can never reach plaintext, and releasing only
// strips the server layer - the beneficiary still needs the user's recovery
// secret to unwrap the rest.
package escrow

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Reshigan/Heirloom-sub004/internal/cryptoutil"
	"github.com/Reshigan/Heirloom-sub004/internal/models"
	"github.com/Reshigan/Heirloom-sub004/internal/notify"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrAlreadyConfigured  = errors.New("encryption already configured")
	ErrNotConfigured      = errors.New("encryption not configured")
	ErrNoBeneficiaries    = errors.New("at least one beneficiary required")
	ErrUnknownBeneficiary = errors.New("beneficiary is not a legacy contact of this user")
	ErrInvalidServerKey   = errors.New("server master key must be 32 bytes, base64-encoded")
)

// Store persists escrow entries.
type Store interface {
	// UpsertUnreleased creates or refreshes the entry for (user,
	// beneficiary). Released entries are immutable and must not be touched.
	UpsertUnreleased(userID, beneficiaryID uuid.UUID, encryptedKey []byte) error
	ListUnreleased(userID uuid.UUID) ([]models.KeyEscrow, error)
	// MarkReleased conditionally flips released false->true. Returns false
	// if the entry was already released (benign: another pass won the race).
	MarkReleased(id uuid.UUID, at time.Time) (bool, error)
}

// UserStore is the slice of user persistence the vault needs.
type UserStore interface {
	Get(userID uuid.UUID) (*models.User, error)
	SaveEncryption(userID uuid.UUID, salt string, wrappedKey, kdfParams []byte) error
}

// ContactStore resolves beneficiary ids to legacy contacts.
type ContactStore interface {
	GetByIDs(userID uuid.UUID, ids []uuid.UUID) ([]models.LegacyContact, error)
}

// KeySet is everything generated at encryption setup. All fields are safe
// to store server-side: the password key that unwraps WrappedMasterKey is
// derived client-side and never persisted.
type KeySet struct {
	Salt             string              `json:"salt"`
	WrappedMasterKey cryptoutil.Envelope `json:"encrypted_master_key"`
	KDFParams        cryptoutil.KDFParams `json:"key_derivation_params"`
}

type Vault struct {
	store      Store
	users      UserStore
	contacts   ContactStore
	dispatcher notify.Dispatcher
	serverKey  []byte
}

// NewVault builds the vault. serverKeyB64 is the base64-encoded 32-byte
// server master key from configuration.
func NewVault(store Store, users UserStore, contacts ContactStore, dispatcher notify.Dispatcher, serverKeyB64 string) (*Vault, error) {
	key, err := base64.StdEncoding.DecodeString(serverKeyB64)
	if err != nil || len(key) != cryptoutil.KeyLength {
		return nil, ErrInvalidServerKey
	}
	return &Vault{
		store:      store,
		users:      users,
		contacts:   contacts,
		dispatcher: dispatcher,
		serverKey:  key,
	}, nil
}

// GenerateUserKeySet creates a fresh master key, derives a password key
// from a new random salt, and wraps the master key with it.
func (v *Vault) GenerateUserKeySet(password string) (*KeySet, error) {
	masterKey, err := cryptoutil.GenerateKey()
	if err != nil {
		return nil, err
	}
	salt, err := cryptoutil.GenerateSalt()
	if err != nil {
		return nil, err
	}

	passwordKey := cryptoutil.DeriveKey(password, salt)
	wrapped, err := cryptoutil.Encrypt(masterKey, passwordKey)
	if err != nil {
		return nil, fmt.Errorf("wrap master key: %w", err)
	}

	return &KeySet{
		Salt:             base64.StdEncoding.EncodeToString(salt),
		WrappedMasterKey: wrapped,
		KDFParams:        cryptoutil.DefaultKDFParams(),
	}, nil
}

// SetupResult is returned once at setup; the recovery code is not stored.
type SetupResult struct {
	KeySet       *KeySet
	RecoveryCode string
}

// SetupUserEncryption verifies the password, generates the key set and
// persists the server-side half on the user record. Fails if encryption is
// already configured - re-keying is an explicit, separate flow.
func (v *Vault) SetupUserEncryption(userID uuid.UUID, password string) (*SetupResult, error) {
	user, err := v.users.Get(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidPassword
	}
	if user.EncryptionSalt != "" {
		return nil, ErrAlreadyConfigured
	}

	keySet, err := v.GenerateUserKeySet(password)
	if err != nil {
		return nil, err
	}

	wrappedJSON, err := keySet.WrappedMasterKey.Marshal()
	if err != nil {
		return nil, err
	}
	paramsJSON := []byte(fmt.Sprintf(`{"iterations":%d,"algorithm":%q}`,
		keySet.KDFParams.Iterations, keySet.KDFParams.Algorithm))

	if err := v.users.SaveEncryption(userID, keySet.Salt, wrappedJSON, paramsJSON); err != nil {
		return nil, fmt.Errorf("store key set: %w", err)
	}

	code, err := cryptoutil.NewRecoveryCode()
	if err != nil {
		return nil, err
	}

	slog.Info("encryption key set generated", "user_id", userID.String())
	return &SetupResult{KeySet: keySet, RecoveryCode: code}, nil
}

// Params returns what a client needs to re-derive the password key. Nil
// KeySet means encryption has not been set up.
func (v *Vault) Params(userID uuid.UUID) (*KeySet, error) {
	user, err := v.users.Get(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	if user.EncryptionSalt == "" {
		return nil, ErrNotConfigured
	}
	wrapped, err := cryptoutil.ParseEnvelope(user.EncryptedMasterKey)
	if err != nil {
		return nil, err
	}
	return &KeySet{
		Salt:             user.EncryptionSalt,
		WrappedMasterKey: wrapped,
		KDFParams:        cryptoutil.DefaultKDFParams(),
	}, nil
}

// CreateKeyEscrow re-wraps the user's (already password-wrapped) master key
// with the server master key and stores one unreleased entry per
// beneficiary. Beneficiaries must be legacy contacts of the user.
func (v *Vault) CreateKeyEscrow(userID uuid.UUID, userWrappedKey cryptoutil.Envelope, beneficiaryIDs []uuid.UUID) error {
	if len(beneficiaryIDs) == 0 {
		return ErrNoBeneficiaries
	}

	contacts, err := v.contacts.GetByIDs(userID, beneficiaryIDs)
	if err != nil {
		return fmt.Errorf("resolve beneficiaries: %w", err)
	}
	if len(contacts) != len(beneficiaryIDs) {
		return ErrUnknownBeneficiary
	}

	innerJSON, err := userWrappedKey.Marshal()
	if err != nil {
		return err
	}

	for _, contact := range contacts {
		// Fresh outer envelope per beneficiary: the nonce is never shared
		// across entries.
		outer, err := cryptoutil.Encrypt(innerJSON, v.serverKey)
		if err != nil {
			return fmt.Errorf("wrap escrow key: %w", err)
		}
		outerJSON, err := outer.Marshal()
		if err != nil {
			return err
		}
		if err := v.store.UpsertUnreleased(userID, contact.ID, outerJSON); err != nil {
			return fmt.Errorf("store escrow for beneficiary %s: %w", contact.ID, err)
		}
	}

	slog.Info("key escrow created", "user_id", userID.String(), "beneficiaries", len(beneficiaryIDs))
	return nil
}

// ReleaseEscrowedKeys strips the server wrap from every unreleased entry of
// the user and hands the recovered (still password-wrapped) key to the
// dispatcher for delivery. Per entry: the released write lands before the
// send, so re-invocation can never double-send; an entry that fails to
// unwrap stays unreleased and is retried on the next pass. Returns the
// number of entries released.
func (v *Vault) ReleaseEscrowedKeys(userID uuid.UUID) (int, error) {
	entries, err := v.store.ListUnreleased(userID)
	if err != nil {
		return 0, fmt.Errorf("list escrow entries: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	user, err := v.users.Get(userID)
	if err != nil {
		return 0, ErrUserNotFound
	}

	released := 0
	for _, entry := range entries {
		outer, err := cryptoutil.ParseEnvelope(entry.EncryptedKey)
		if err != nil {
			slog.Error("escrow entry has invalid envelope", "user_id", userID.String(), "escrow_id", entry.ID.String(), "error", err)
			continue
		}
		inner, err := cryptoutil.Decrypt(outer, v.serverKey)
		if err != nil {
			slog.Error("escrow unwrap failed", "user_id", userID.String(), "escrow_id", entry.ID.String(), "error", err)
			continue
		}

		updated, err := v.store.MarkReleased(entry.ID, time.Now())
		if err != nil {
			slog.Error("escrow release write failed", "user_id", userID.String(), "escrow_id", entry.ID.String(), "error", err)
			continue
		}
		if !updated {
			// Concurrent pass already released this entry.
			continue
		}
		released++

		if entry.Beneficiary.Email == "" {
			slog.Error("escrow beneficiary has no email", "user_id", userID.String(), "beneficiary_id", entry.BeneficiaryID.String())
			continue
		}
		if err := v.dispatcher.SendEscrowKeyRelease(
			entry.Beneficiary.Email,
			entry.Beneficiary.Name,
			user.FullName(),
			base64.StdEncoding.EncodeToString(inner),
		); err != nil {
			// The job is queued durable-side; a publish failure here is
			// logged for the operator, never unwinds the release.
			slog.Error("escrow key release notification failed", "user_id", userID.String(), "beneficiary_id", entry.BeneficiaryID.String(), "error", err)
		}

		slog.Info("escrow key released", "user_id", userID.String(), "beneficiary_id", entry.BeneficiaryID.String())
	}

	return released, nil
}
