package dto

import (
	"time"

	"github.com/google/uuid"
)

type CreateContactRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type ContactResponse struct {
	ID                 uuid.UUID  `json:"id"`
	Name               string     `json:"name"`
	Email              string     `json:"email"`
	VerificationStatus string     `json:"verification_status"`
	AcceptedAt         *time.Time `json:"accepted_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}
