package repo

import (
	"context"

	"github.com/luisf-nog/h2link-mailer/internal/model"
)

// TemplateRepository lists a user's email templates, newest first.
type TemplateRepository interface {
	ListByUser(ctx context.Context, userID string) ([]model.EmailTemplate, error)
}

// CredentialRepository reads the user's mailbox login. Returns nil without
// error when no credentials are stored; this core never writes them.
type CredentialRepository interface {
	ForUser(ctx context.Context, userID string) (*model.SMTPCredential, error)
}

// JobRepository resolves the two job sources a queue item may reference.
type JobRepository interface {
	PublicJob(ctx context.Context, id string) (*model.Job, error)
	ManualJob(ctx context.Context, id string) (*model.Job, error)
}

// SettingsRepository reads operator-level settings.
type SettingsRepository interface {
	CronToken(ctx context.Context) (string, error)
}
