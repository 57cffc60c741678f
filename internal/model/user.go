package model

// SendingState is the per-user view the queue processor works against:
// plan, profile completeness fields, daily credit counters and the
// circuit-breaker error count.
type SendingState struct {
	UserID             string
	PlanTier           PlanTier
	FullName           string
	Age                *int
	PhoneE164          string
	ContactEmail       string
	ResumeURL          string
	CreditsUsedToday   int
	CreditsResetDate   string // YYYY-MM-DD, UTC
	ConsecutiveErrors  int
	ReferralBonusLimit int
	Timezone           string // IANA name, may be empty
}

// ProfileComplete reports whether the fields every outgoing application
// depends on are filled in.
func (s *SendingState) ProfileComplete() bool {
	return s.FullName != "" && s.Age != nil && s.PhoneE164 != "" && s.ContactEmail != ""
}
