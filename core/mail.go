package core

import "net/mail"

type (
	EmailMessage struct {
		To      []mail.Address
		Subject string
		Body    string
	}

	// EmailService is any service that can send emails.
	EmailService interface {
		// SendMessages sends messages concurrently; failures are logged, not returned.
		SendMessages(messages ...*EmailMessage)
	}

	// SMSService is any service that can deliver short text messages.
	// Real provider integration (Clickatell / BulkSMS) is deferred; the
	// console implementation is the only one wired up.
	SMSService interface {
		SendSMS(phone, body string)
	}
)
