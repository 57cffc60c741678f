package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/luisf-nog/h2link-mailer/internal/model"
)

type PostgresTemplateRepo struct {
	db *sql.DB
}

func NewPostgresTemplateRepo(db *sql.DB) *PostgresTemplateRepo {
	return &PostgresTemplateRepo{db: db}
}

func (r *PostgresTemplateRepo) ListByUser(ctx context.Context, userID string) ([]model.EmailTemplate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, subject, body, created_at
		FROM email_templates
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.EmailTemplate
	for rows.Next() {
		var t model.EmailTemplate
		if err := rows.Scan(&t.ID, &t.Subject, &t.Body, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type PostgresCredentialRepo struct {
	db *sql.DB
}

func NewPostgresCredentialRepo(db *sql.DB) *PostgresCredentialRepo {
	return &PostgresCredentialRepo{db: db}
}

func (r *PostgresCredentialRepo) ForUser(ctx context.Context, userID string) (*model.SMTPCredential, error) {
	var c model.SMTPCredential
	var password sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT provider, email, app_password
		FROM smtp_credentials
		WHERE user_id = $1
	`, userID).Scan(&c.Provider, &c.Email, &password)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Password = password.String
	return &c, nil
}

type PostgresJobRepo struct {
	db *sql.DB
}

func NewPostgresJobRepo(db *sql.DB) *PostgresJobRepo {
	return &PostgresJobRepo{db: db}
}

func (r *PostgresJobRepo) PublicJob(ctx context.Context, id string) (*model.Job, error) {
	var j model.Job
	var company, title, email, visa sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, company, job_title, email, visa_type
		FROM public_jobs
		WHERE id = $1
	`, id).Scan(&j.ID, &company, &title, &email, &visa)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("public job %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	j.Company = company.String
	j.JobTitle = title.String
	j.Email = email.String
	j.VisaType = visa.String
	return &j, nil
}

func (r *PostgresJobRepo) ManualJob(ctx context.Context, id string) (*model.Job, error) {
	var j model.Job
	var company, title, email, eta, phone sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, company, job_title, email, eta_number, phone
		FROM manual_jobs
		WHERE id = $1
	`, id).Scan(&j.ID, &company, &title, &email, &eta, &phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("manual job %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	j.Company = company.String
	j.JobTitle = title.String
	j.Email = email.String
	j.ETANumber = eta.String
	j.Phone = phone.String
	return &j, nil
}

type PostgresSettingsRepo struct {
	db *sql.DB
}

func NewPostgresSettingsRepo(db *sql.DB) *PostgresSettingsRepo {
	return &PostgresSettingsRepo{db: db}
}

func (r *PostgresSettingsRepo) CronToken(ctx context.Context) (string, error) {
	var token string
	err := r.db.QueryRowContext(ctx, `
		SELECT value FROM app_settings WHERE key = 'cron_token'
	`).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return token, err
}
