package model

import (
	"fmt"
	"strings"
)

// CompanyID identifies a banking portal supported by the scraping engine.
type CompanyID string

const (
	CompanyOneZero  CompanyID = "oneZero"
	CompanyIsracard CompanyID = "isracard"
	CompanyMax      CompanyID = "max"
	CompanyHapoalim CompanyID = "hapoalim"
)

// Companies lists every supported company in a stable order.
var Companies = []CompanyID{CompanyOneZero, CompanyIsracard, CompanyMax, CompanyHapoalim}

// SupportsLongTermToken reports whether the company authenticates with an
// OTP-minted long-term token that can be renewed mid-run.
func (c CompanyID) SupportsLongTermToken() bool {
	return c == CompanyOneZero
}

// Key is the lower-cased form used in secret names, cache keys and subjects.
func (c CompanyID) Key() string {
	return strings.ToLower(string(c))
}

// ParseCompanyID resolves a case-insensitive company name.
func ParseCompanyID(s string) (CompanyID, error) {
	for _, c := range Companies {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unsupported company %q", s)
}
