package mail

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
)

// ErrInvalidAddress indicates the recipient address failed validation.
var ErrInvalidAddress = errors.New("invalid email address")

// mxLookup is swappable for tests.
var mxLookup = net.LookupMX

var addressRe = regexp.MustCompile(
	`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?` +
		`(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+$`)

// Domain returns the lower-cased domain component of an email address.
func Domain(address string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(address))
	at := strings.LastIndex(s, "@")
	if at <= 0 || at == len(s)-1 {
		return "", fmt.Errorf("%w: missing domain", ErrInvalidAddress)
	}

	domain := strings.TrimSuffix(s[at+1:], ".")
	if len(domain) < 3 {
		return "", fmt.Errorf("%w: empty domain", ErrInvalidAddress)
	}
	if strings.ContainsAny(domain, " \t") {
		return "", fmt.Errorf("%w: whitespace in domain", ErrInvalidAddress)
	}

	return domain, nil
}

// ValidateRecipient checks address syntax and that the recipient's domain
// publishes at least one MX record, so hard bounces are caught before any
// SMTP traffic. DNS is inconsistent in the wild; this is best-effort.
func ValidateRecipient(address string) error {
	if !addressRe.MatchString(strings.TrimSpace(address)) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	domain, err := Domain(address)
	if err != nil {
		return err
	}

	records, err := mxLookup(domain)
	if err != nil || len(records) == 0 {
		return fmt.Errorf("domain %s has no MX records", domain)
	}
	return nil
}
