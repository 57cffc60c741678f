package service

import (
	"regexp"
	"strings"
)

// ErrorKind buckets a send failure for circuit-breaker purposes.
type ErrorKind int

const (
	// ErrorUnknown is anything we cannot confidently classify.
	ErrorUnknown ErrorKind = iota
	// ErrorAuth means the user's mailbox rejected the login.
	ErrorAuth
	// ErrorBounce means the recipient address is bad.
	ErrorBounce
	// ErrorTransient means a retry later might succeed.
	ErrorTransient
)

// Breaking reports whether this failure counts toward the consecutive-error
// threshold. Only failures that will keep happening on retry count.
func (k ErrorKind) Breaking() bool {
	return k == ErrorAuth || k == ErrorBounce
}

var authMarkers = []string{"auth", "password", "credential", "530", "534", "535"}

var bounceMarkers = []string{
	"550", "551", "552", "553", "554",
	"mailbox", "recipient", "unknown user", "user unknown",
}

var transientCodeRe = regexp.MustCompile(`\b4\d\d\b`)

// ClassifySendError inspects the failure text. Auth markers win over bounce
// markers: a 535 with "mailbox" in the text is still an auth failure.
func ClassifySendError(err error) ErrorKind {
	if err == nil {
		return ErrorUnknown
	}
	msg := strings.ToLower(err.Error())

	for _, m := range authMarkers {
		if strings.Contains(msg, m) {
			return ErrorAuth
		}
	}
	for _, m := range bounceMarkers {
		if strings.Contains(msg, m) {
			return ErrorBounce
		}
	}
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") || transientCodeRe.MatchString(msg) {
		return ErrorTransient
	}
	return ErrorUnknown
}
