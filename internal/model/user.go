package model

import (
	"regexp"
	"strings"
	"time"
)

// Role is the capability class of a user.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

// User is an admin or a member account.
type User struct {
	ID           string    `json:"id" bson:"_id"`
	Name         string    `json:"name" bson:"name"`
	Email        string    `json:"email" bson:"email"`
	PasswordHash string    `json:"-" bson:"passwordHash"`
	Role         Role      `json:"role" bson:"role"`
	CreatedBy    string    `json:"created_by,omitempty" bson:"createdBy,omitempty"`
	CreatedAt    time.Time `json:"created_at" bson:"createdAt"`
}

// Ref returns the display form of the user.
func (u *User) Ref() UserRef {
	return UserRef{ID: u.ID, Name: u.Name, Email: u.Email}
}

// Actor returns the user as an authenticated caller.
func (u *User) Actor() Actor {
	return Actor{ID: u.ID, Role: u.Role, Email: u.Email}
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID    string
	Role  Role
	Email string
}

// IsZero reports whether no caller is set.
func (a Actor) IsZero() bool {
	return a.ID == ""
}

var emailPattern = regexp.MustCompile(`^\w+([.+-]\w+)*@[a-zA-Z0-9_-]+(\.[a-zA-Z0-9_-]+)*\.[a-zA-Z]{2,}$`)

const minPasswordLength = 6

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateMemberRequest represents the request body for provisioning a member.
type CreateMemberRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks if the CreateMemberRequest is valid.
func (r *CreateMemberRequest) Validate() error {
	return validateAccount(r.Name, r.Email, r.Password)
}

// SignupRequest represents the request body for registering an admin.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks if the SignupRequest is valid.
func (r *SignupRequest) Validate() error {
	return validateAccount(r.Name, r.Email, r.Password)
}

// LoginRequest represents the request body for logging in.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the issued token and the account.
type LoginResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

func validateAccount(name, email, password string) error {
	if strings.TrimSpace(name) == "" {
		return ErrNameRequired
	}
	if !emailPattern.MatchString(NormalizeEmail(email)) {
		return ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}
