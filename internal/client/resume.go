package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/luisf-nog/h2link-mailer/internal/mail"
)

// ResumeFetcher downloads a user's stored resume so it can ride along as
// the application's PDF attachment. Callers treat failures as non-fatal;
// the email goes out without the attachment.
type ResumeFetcher struct {
	client *http.Client
}

func NewResumeFetcher() *ResumeFetcher {
	return &ResumeFetcher{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

const maxResumeBytes = 10 << 20

func (f *ResumeFetcher) Fetch(ctx context.Context, rawURL string) (*mail.Attachment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxResumeBytes))
	if err != nil {
		return nil, err
	}

	return &mail.Attachment{
		Name:     fileNameFromURL(rawURL),
		Content:  content,
		MIMEType: "application/pdf",
	}, nil
}

func fileNameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "resume.pdf"
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "resume.pdf"
	}
	return name
}
