package models

import (
	"time"
)

// User is an operator account for the review API.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Role gates privileged transitions; only admins may approve or publish.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)
