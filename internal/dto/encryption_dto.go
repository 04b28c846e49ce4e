package dto

import (
	"github.com/Reshigan/Heirloom-sub004/internal/cryptoutil"
	"github.com/google/uuid"
)

type SetupEncryptionRequest struct {
	Password string `json:"password"`
}

type SetupEncryptionResponse struct {
	Salt                string               `json:"salt"`
	EncryptedMasterKey  cryptoutil.Envelope  `json:"encrypted_master_key"`
	KeyDerivationParams cryptoutil.KDFParams `json:"key_derivation_params"`
	// RecoveryCode is shown exactly once; it is never stored server-side.
	RecoveryCode string `json:"recovery_code"`
}

type EncryptionParamsResponse struct {
	Salt                string               `json:"salt"`
	EncryptedMasterKey  cryptoutil.Envelope  `json:"encrypted_master_key"`
	KeyDerivationParams cryptoutil.KDFParams `json:"key_derivation_params"`
}

type CreateEscrowRequest struct {
	// EncryptedKey is the user's password-wrapped master key; the server
	// adds its own wrapping layer before storage.
	EncryptedKey   cryptoutil.Envelope `json:"encrypted_key"`
	BeneficiaryIDs []uuid.UUID         `json:"beneficiary_ids"`
}
