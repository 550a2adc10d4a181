// Package email holds the address rules shared by the KYC forms, the session
// service and the fake authority.
package email

import (
	"strings"

	"github.com/asaskevich/govalidator"
)

// Normalize trims surrounding whitespace and lowercases the address. Emails are
// case-insensitive identity keys, so every comparison and every request body
// goes through Normalize first.
func Normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Equal compares two addresses after normalization.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// Valid reports whether address has a local part, an '@' and a dotted domain.
func Valid(address string) bool {
	address = strings.TrimSpace(address)
	if address == "" || strings.ContainsAny(address, " \t\r\n") {
		return false
	}
	return govalidator.StringLength(address, "3", "254") && govalidator.IsEmail(address)
}
