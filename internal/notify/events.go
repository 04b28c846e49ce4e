// Package notify is the boundary to the email provider. State-machine code
// treats every send as fire-and-forget: messages are published to a durable
// work queue and a consumer hands them to the provider, so a slow or failing
// provider can never stall a switch transition.
package notify

import "time"

// Message kinds carried on the notifications queue.
const (
	KindCheckInReminder          = "checkin.reminder"
	KindUrgentReminder           = "checkin.urgent"
	KindFinalWarning             = "checkin.final_warning"
	KindDeathVerificationRequest = "verification.request"
	KindPassingVerified          = "verification.confirmed"
	KindSwitchCancelled          = "switch.cancelled"
	KindEscrowKeyRelease         = "escrow.key_release"
	KindLetterDelivery           = "letter.delivery"
	KindContactInvite            = "contact.invite"
)

// LetterContent is the sealed letter body attached to a delivery message.
type LetterContent struct {
	Salutation string `json:"salutation,omitempty"`
	Body       string `json:"body"`
	Signature  string `json:"signature,omitempty"`
}

// EmailJob is the unit of work on the notifications queue. It carries
// enough for the mail worker to render and send without querying the
// primary database.
type EmailJob struct {
	Kind       string         `json:"kind"`
	To         string         `json:"to"`
	ToName     string         `json:"to_name,omitempty"`
	UserName   string         `json:"user_name,omitempty"`
	DaysLeft   int            `json:"days_left,omitempty"`
	Token      string         `json:"token,omitempty"`
	Tally      string         `json:"tally,omitempty"`
	WrappedKey string         `json:"wrapped_key,omitempty"`
	Letter     *LetterContent `json:"letter,omitempty"`
	QueuedAt   time.Time      `json:"queued_at"`
}

// Dispatcher sends protocol notifications. Implementations must be safe for
// concurrent use; callers log errors and continue.
type Dispatcher interface {
	SendCheckInReminder(email, name string, daysLeft int) error
	SendUrgentReminder(email, name string, graceDays int) error
	SendFinalWarning(email, name string) error
	SendDeathVerificationRequest(contactEmail, contactName, userName, token string) error
	SendPassingVerified(email, name string) error
	SendSwitchCancelled(contactEmail, contactName, userName string) error
	SendEscrowKeyRelease(beneficiaryEmail, beneficiaryName, userName, wrappedKey string) error
	SendLetterDelivery(recipientEmail, recipientName, userName string, letter LetterContent) error
	SendContactInvite(contactEmail, contactName, userName, token string) error
}
