package auth

import "strings"

// NormalizePhoneNumber rewrites Israeli numbers into the +972 form the oneZero
// two-factor endpoint expects. Other numbers pass through after trimming.
//
//	0501234567     -> +972501234567
//	972501234567   -> +972501234567
//	+9720501234567 -> +972501234567
func NormalizePhoneNumber(phone string) string {
	p := strings.TrimSpace(phone)
	switch {
	case strings.HasPrefix(p, "+9720"):
		return "+972" + p[len("+9720"):]
	case strings.HasPrefix(p, "05"):
		return "+972" + p[1:]
	case strings.HasPrefix(p, "972"):
		return "+" + p
	}
	return p
}
