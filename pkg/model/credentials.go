package model

import (
	"fmt"
	"strings"
)

// Credentials holds the identity fields a company login form needs. Which fields
// are populated depends on the company; the engine ignores the rest.
type Credentials struct {
	ID               string `json:"id,omitempty"`
	Card6Digits      string `json:"card6Digits,omitempty"`
	Username         string `json:"username,omitempty"`
	UserCode         string `json:"userCode,omitempty"`
	Email            string `json:"email,omitempty"`
	Password         string `json:"password,omitempty"`
	PhoneNumber      string `json:"phoneNumber,omitempty"`
	OTPLongTermToken string `json:"otpLongTermToken,omitempty"`
}

// CredentialsFromSecret maps a raw secret map (as stored in the secrets manager)
// onto Credentials. Unknown keys are ignored.
func CredentialsFromSecret(m map[string]string) Credentials {
	return Credentials{
		ID:               m["id"],
		Card6Digits:      m["card6Digits"],
		Username:         m["username"],
		UserCode:         m["userCode"],
		Email:            m["email"],
		Password:         m["password"],
		PhoneNumber:      m["phoneNumber"],
		OTPLongTermToken: m["otpLongTermToken"],
	}
}

// Validate checks that the fields the company's login form needs are present.
// A missing long-term token is allowed for oneZero; the first run renews it.
func (c Credentials) Validate(company CompanyID) error {
	var missing []string
	need := func(name, v string) {
		if v == "" {
			missing = append(missing, name)
		}
	}
	switch company {
	case CompanyOneZero:
		need("email", c.Email)
		need("password", c.Password)
		need("phoneNumber", c.PhoneNumber)
	case CompanyIsracard:
		need("id", c.ID)
		need("card6Digits", c.Card6Digits)
		need("password", c.Password)
	case CompanyMax:
		need("username", c.Username)
		need("password", c.Password)
	case CompanyHapoalim:
		need("userCode", c.UserCode)
		need("password", c.Password)
	default:
		return fmt.Errorf("unsupported company %q", company)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s credentials missing %s", company, strings.Join(missing, ", "))
	}
	return nil
}
