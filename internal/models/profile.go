package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile is the per-user display record kept in the document store.
// It only enriches the authenticated user's display and carries no authority.
type Profile struct {
	UID         uuid.UUID `json:"uid"`
	DisplayName string    `json:"displayName"`
	Country     string    `json:"country,omitempty"` // ISO 3166-1 alpha-2
	Title       string    `json:"title,omitempty"`
	PhotoURL    string    `json:"photoUrl,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
