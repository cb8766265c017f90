package model

import "time"

// Project groups configs and is shared by its member users.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Members holds member user IDs when loaded.
	Members []string `json:"members,omitempty"`
}

// User is an account that can be a member of projects.
// AuthToken authenticates API and CLI download requests.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Username  string    `json:"username,omitempty"`
	AuthToken string    `json:"auth_token,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
