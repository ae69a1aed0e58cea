package domain

import "time"

// User is the domain model for account holders. Staff are users carrying the
// staff role.
type User struct {
	ID           string
	Name         string
	Email        string
	Phone        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
