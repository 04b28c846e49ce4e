package dto

import "time"

type ConfigureSwitchRequest struct {
	IntervalDays    int `json:"interval_days"`
	GracePeriodDays int `json:"grace_period_days"`
}

type CheckInResponse struct {
	Message        string    `json:"message"`
	NextCheckInDue time.Time `json:"next_check_in_due"`
}

// PasswordRequest re-authenticates destructive switch operations (cancel,
// disable).
type PasswordRequest struct {
	Password string `json:"password"`
}

type CheckInHistoryResponse struct {
	Events []CheckInEventResponse `json:"events"`
	Total  int64                  `json:"total"`
	Page   int                    `json:"page"`
	Limit  int                    `json:"limit"`
}

type CheckInEventResponse struct {
	CheckedInAt time.Time `json:"checked_in_at"`
	Method      string    `json:"method"`
}

type VerifyResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
