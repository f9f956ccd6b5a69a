package broker

import (
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
)

// totpPeriod is the Kite TOTP step in seconds.
const totpPeriod = 30

// GenerateTOTP returns the Kite two-factor code for t.
func GenerateTOTP(secret string, t time.Time) (string, error) {
	return totp.GenerateCode(normalizeSecret(secret), t)
}

// ValidateTOTP reports whether code is valid for secret right now.
func ValidateTOTP(code, secret string) bool {
	return totp.Validate(strings.TrimSpace(code), normalizeSecret(secret))
}

// TOTPRemaining returns the seconds left before the code at t rolls over.
func TOTPRemaining(t time.Time) int {
	return totpPeriod - int(t.Unix()%totpPeriod)
}

func normalizeSecret(secret string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(secret), " ", ""))
}
