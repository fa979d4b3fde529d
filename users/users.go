package users

import (
	"golang.org/x/crypto/bcrypt"
)

// User is a resource owner the provider can authenticate.
type User struct {
	Subject       string   `json:"sub"`                      // Unique, stable identifier embedded in tokens
	Username      string   `json:"username,omitempty"`       // Login name
	PasswordHash  string   `json:"-"`                        // Hashed password - never serialize
	FirstName     string   `json:"first_name,omitempty"`     // Given name
	LastName      string   `json:"last_name,omitempty"`      // Family name
	Email         string   `json:"email,omitempty"`          // Email address
	EmailVerified bool     `json:"email_verified,omitempty"` // Whether the email was verified
	Address       string   `json:"address,omitempty"`        // Postal address claim
	Website       string   `json:"website,omitempty"`        // Profile website claim
	Roles         []string `json:"roles,omitempty"`          // Role claims
}

// Name returns the composite display name used in the "name" claim.
func (u *User) Name() string {
	if u.FirstName == "" && u.LastName == "" {
		return u.Username
	}
	return u.FirstName + " " + u.LastName
}

// HasRole reports whether the user carries the given role claim.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
