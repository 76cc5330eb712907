package domain

import "time"

// User is owned by the surrounding account system; the messaging core only
// looks users up by id to validate receivers and render usernames.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
}
