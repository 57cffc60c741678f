package model

import "time"

// Job carries the denormalized fields a queue item needs from either job
// source. Public jobs fill VisaType; manual jobs fill ETANumber and Phone.
type Job struct {
	ID        string
	Company   string
	JobTitle  string
	Email     string
	VisaType  string
	ETANumber string
	Phone     string
}

type EmailTemplate struct {
	ID        string
	Subject   string
	Body      string
	CreatedAt time.Time
}

// SMTPCredential is the user's own mailbox login. Read-only to this core.
type SMTPCredential struct {
	Provider string // "gmail" or "outlook"
	Email    string
	Password string
}
