package auth

import (
	"slices"
)

// DefaultAdminEmail is the allow-listed admin address when none is configured.
const DefaultAdminEmail = "admin@ecoagris.org"

// AllowList holds the admin email addresses. Matching is exact and case
// sensitive.
type AllowList struct {
	emails []string
}

// NewAllowList creates an allow-list, skipping empty entries.
func NewAllowList(emails ...string) *AllowList {
	list := &AllowList{}
	for _, e := range emails {
		if e != "" && !slices.Contains(list.emails, e) {
			list.emails = append(list.emails, e)
		}
	}
	return list
}

// Allowed reports whether email is an admin address.
func (a *AllowList) Allowed(email string) bool {
	if email == "" {
		return false
	}
	return slices.Contains(a.emails, email)
}

// Emails returns the configured addresses.
func (a *AllowList) Emails() []string {
	return slices.Clone(a.emails)
}
