package order

import (
	"net"
	"strings"

	"github.com/go-playground/validator/v10"
)

var emailValidate = validator.New()

// lookupMX is swapped out in tests to avoid live DNS.
var lookupMX = net.LookupMX

// ValidEmail checks syntax and deliverability: the address must parse and its
// domain must publish at least one MX record.
func ValidEmail(email string) bool {
	if emailValidate.Var(email, "required,email") != nil {
		return false
	}
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	records, err := lookupMX(email[at+1:])
	return err == nil && len(records) > 0
}

// NormalizeEmail lowercases and trims the address so it can serve as the
// invoice primary key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
