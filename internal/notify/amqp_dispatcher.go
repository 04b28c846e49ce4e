package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const emailQueueName = "notifications.email"

// AMQPDispatcher publishes email jobs to a durable RabbitMQ queue.
// Messages are persistent so queued notifications survive broker restarts.
type AMQPDispatcher struct {
	url string
}

func NewAMQPDispatcher(url string) *AMQPDispatcher {
	return &AMQPDispatcher{url: url}
}

func (d *AMQPDispatcher) publish(job EmailJob) error {
	job.QueuedAt = time.Now().UTC()

	conn, err := amqp.Dial(d.url)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// Idempotent declare; durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(emailQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq queue declare: %w", err)
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal email job: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = ch.PublishWithContext(ctx,
		"",             // default exchange
		emailQueueName, // routing key = queue name
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    job.QueuedAt,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

func (d *AMQPDispatcher) SendCheckInReminder(email, name string, daysLeft int) error {
	return d.publish(EmailJob{Kind: KindCheckInReminder, To: email, ToName: name, DaysLeft: daysLeft})
}

func (d *AMQPDispatcher) SendUrgentReminder(email, name string, graceDays int) error {
	return d.publish(EmailJob{Kind: KindUrgentReminder, To: email, ToName: name, DaysLeft: graceDays})
}

func (d *AMQPDispatcher) SendFinalWarning(email, name string) error {
	return d.publish(EmailJob{Kind: KindFinalWarning, To: email, ToName: name})
}

func (d *AMQPDispatcher) SendDeathVerificationRequest(contactEmail, contactName, userName, token string) error {
	return d.publish(EmailJob{Kind: KindDeathVerificationRequest, To: contactEmail, ToName: contactName, UserName: userName, Token: token})
}

func (d *AMQPDispatcher) SendPassingVerified(email, name string) error {
	return d.publish(EmailJob{Kind: KindPassingVerified, To: email, ToName: name})
}

func (d *AMQPDispatcher) SendSwitchCancelled(contactEmail, contactName, userName string) error {
	return d.publish(EmailJob{Kind: KindSwitchCancelled, To: contactEmail, ToName: contactName, UserName: userName})
}

func (d *AMQPDispatcher) SendEscrowKeyRelease(beneficiaryEmail, beneficiaryName, userName, wrappedKey string) error {
	return d.publish(EmailJob{Kind: KindEscrowKeyRelease, To: beneficiaryEmail, ToName: beneficiaryName, UserName: userName, WrappedKey: wrappedKey})
}

func (d *AMQPDispatcher) SendLetterDelivery(recipientEmail, recipientName, userName string, letter LetterContent) error {
	return d.publish(EmailJob{Kind: KindLetterDelivery, To: recipientEmail, ToName: recipientName, UserName: userName, Letter: &letter})
}

func (d *AMQPDispatcher) SendContactInvite(contactEmail, contactName, userName, token string) error {
	return d.publish(EmailJob{Kind: KindContactInvite, To: contactEmail, ToName: contactName, UserName: userName, Token: token})
}
