package models

import "strings"

// User is the engine's view of a directory user: enough identity to build a
// notification recipient and to evaluate requester-scoped policy criteria.
type User struct {
	ID             int64  `json:"id" db:"id"`
	OrganizationID int64  `json:"organization_id" db:"organization_id"`
	Name           string `json:"name" db:"name"`
	Email          string `json:"email" db:"email"`
	Role           string `json:"role" db:"role"`
	Department     string `json:"department" db:"department"`
	IsActive       bool   `json:"is_active" db:"is_active"`
}

// Recipient is a structured notification address. Deduplication happens on
// the case-folded email so the same person reached through a team and a
// direct assignment is notified once.
type Recipient struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// RecipientFor builds a recipient from a user.
func RecipientFor(u *User) Recipient {
	return Recipient{Name: u.Name, Email: u.Email}
}

// DedupeRecipients removes duplicate addresses, preserving first-seen order.
func DedupeRecipients(in []Recipient) []Recipient {
	seen := make(map[string]struct{}, len(in))
	out := make([]Recipient, 0, len(in))
	for _, r := range in {
		key := strings.ToLower(strings.TrimSpace(r.Email))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}
