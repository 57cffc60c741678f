package service

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/luisf-nog/h2link-mailer/internal/model"
)

// SendProfile shapes how one outgoing message presents itself and how long
// the worker waits before the next item.
type SendProfile struct {
	XMailer     string
	UserAgent   string
	DedupeToken string
	Delay       time.Duration
}

// Headers renders the profile as raw header lines, skipping empty values.
func (p SendProfile) Headers() []string {
	var out []string
	if p.XMailer != "" {
		out = append(out, "X-Mailer: "+p.XMailer)
	}
	if p.UserAgent != "" {
		out = append(out, "User-Agent: "+p.UserAgent)
	}
	return out
}

var mailerPool = []string{
	"iPhone Mail (20A362)",
	"Android Mail",
	"Mozilla Thunderbird",
	"Microsoft Outlook 16.0",
}

// PickSendProfile decides per-message presentation by plan tier. Gold gets
// a fixed Outlook identity and a fixed pause; diamond rotates through a
// small client pool with a jittered pause and a dedupe token so otherwise
// identical messages differ. Free and black get no decoration.
func PickSendProfile(tier model.PlanTier) SendProfile {
	switch tier {
	case model.TierGold:
		return SendProfile{
			XMailer: "Microsoft Outlook 16.0",
			Delay:   15 * time.Second,
		}
	case model.TierDiamond:
		mailer := mailerPool[rand.Intn(len(mailerPool))]
		return SendProfile{
			XMailer:     mailer,
			UserAgent:   mailer,
			DedupeToken: fmt.Sprintf("ref-%s", uuid.NewString()),
			Delay:       15*time.Second + time.Duration(rand.Int63n(int64(30*time.Second)+1)),
		}
	default:
		return SendProfile{}
	}
}
