package models

import "time"

type User struct {
	ID              int    `json:"id" example:"1"`                   // User ID
	Name            string `json:"name" example:"Jane Creator"`      // Display name
	Email           string `json:"email" example:"user@example.com"` // User email
	TokenIdentifier string `json:"-"`                                // Stable identity-provider subject
	Role            string `json:"role" example:"user"`              // "user" or "admin"
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (u *User) Admin() bool {
	return u.Role == "admin"
}
