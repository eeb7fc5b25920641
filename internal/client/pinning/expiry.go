package pinning

import (
	"fmt"
	"strings"
	"time"
)

// ExpiryChoice is one of the link lifetimes offered for attachments.
type ExpiryChoice struct {
	Short    string
	Label    string
	Duration time.Duration
}

const day = 24 * time.Hour

var ExpiryChoices = []ExpiryChoice{
	{"1m", "1 Minute", time.Minute},
	{"30m", "30 Minutes", 30 * time.Minute},
	{"1h", "1 Hour", time.Hour},
	{"12h", "12 Hours", 12 * time.Hour},
	{"1d", "1 Day", day},
	{"7d", "7 Days", 7 * day},
	{"30d", "30 Days", 30 * day},
	{"90d", "90 Days", 90 * day},
}

const DefaultExpiry = day

// MaxPresignExpiry is the longest lifetime a SigV4 presigned URL may have.
const MaxPresignExpiry = 7 * day

// ParseExpiry accepts one of the short forms ("1m" ... "90d"). An empty
// string selects DefaultExpiry.
func ParseExpiry(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return DefaultExpiry, nil
	}
	for _, c := range ExpiryChoices {
		if c.Short == s {
			return c.Duration, nil
		}
	}

	shorts := make([]string, len(ExpiryChoices))
	for i, c := range ExpiryChoices {
		shorts[i] = c.Short
	}
	return 0, fmt.Errorf("unknown expiry %q (choose one of %s)", s, strings.Join(shorts, ", "))
}
