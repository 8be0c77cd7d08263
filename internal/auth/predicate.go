package auth

import (
	"strings"

	"github.com/Checker-Finance/bank-scrapers/pkg/model"
)

// tokenExpiredSignature is the engine's phrasing when the long-term token no
// longer resolves to an identity. It is matched verbatim.
const tokenExpiredSignature = "reading 'idToken'"

// IsTokenExpired reports whether a failed scrape means the long-term token
// must be renewed. Successful and nil results never match.
func IsTokenExpired(r *model.ScrapeResult) bool {
	if r == nil || r.Success {
		return false
	}
	return strings.Contains(r.ErrorMessage, tokenExpiredSignature)
}
