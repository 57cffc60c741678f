package mail

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// now is swappable so tests can pin the Date header.
var now = time.Now

type Attachment struct {
	Name     string
	Content  []byte
	MIMEType string
}

// Message is the input to Build. ExtraHeaders are inserted verbatim between
// the standard headers and the body; empty entries are dropped.
type Message struct {
	From         string
	To           string
	Subject      string
	HTMLBody     string
	ExtraHeaders []string
	Attachment   *Attachment
}

const bodyStyle = "font-family: Calibri, sans-serif; font-size: 14px;"

// Build renders a complete RFC 2822 message ready for the SMTP DATA
// command. The subject always goes out as a base64 encoded-word so header
// folding never becomes an issue, and the HTML body as a base64 text/html
// part. With an attachment the message switches to multipart/mixed under a
// random, unguessable boundary.
func Build(m Message) []byte {
	subjectEncoded := fmt.Sprintf("=?UTF-8?B?%s?=", b64(m.Subject))

	lines := []string{
		"From: " + m.From,
		"To: " + m.To,
		"Subject: " + subjectEncoded,
		"Date: " + now().UTC().Format(time.RFC1123Z),
		"MIME-Version: 1.0",
	}
	for _, h := range m.ExtraHeaders {
		if h != "" {
			lines = append(lines, h)
		}
	}

	htmlB64 := b64(fmt.Sprintf(`<div style=%q>%s</div>`, bodyStyle, m.HTMLBody))

	if m.Attachment == nil {
		lines = append(lines,
			"Content-Type: text/html; charset=UTF-8",
			"Content-Transfer-Encoding: base64",
			"",
			htmlB64,
		)
		return []byte(strings.Join(lines, "\r\n"))
	}

	boundary := "----=_Part_" + uuid.NewString()
	att := m.Attachment
	lines = append(lines,
		fmt.Sprintf("Content-Type: multipart/mixed; boundary=%q", boundary),
		"",
		"--"+boundary,
		"Content-Type: text/html; charset=UTF-8",
		"Content-Transfer-Encoding: base64",
		"",
		htmlB64,
		"--"+boundary,
		fmt.Sprintf("Content-Type: %s; name=%q", att.MIMEType, att.Name),
		"Content-Transfer-Encoding: base64",
		fmt.Sprintf("Content-Disposition: attachment; filename=%q", att.Name),
		"",
		base64.StdEncoding.EncodeToString(att.Content),
		"--"+boundary+"--",
		"",
	)
	return []byte(strings.Join(lines, "\r\n"))
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}
