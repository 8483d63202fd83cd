package users

import (
	"fmt"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// RoleType represents a user's role within the application
type RoleType string

const (
	RoleAdmin RoleType = "admin" // Can manage users and application configuration
	RoleUser  RoleType = "user"  // Regular user
)

type User struct {
	ID           string    `json:"id"`                   // Unique identifier for the user
	Email        string    `json:"email"`                // User's email address
	Name         string    `json:"name,omitempty"`       // Display name from the identity provider or registration
	AvatarURL    string    `json:"avatar_url,omitempty"` // Profile picture URL
	Company      string    `json:"company,omitempty"`    // Company the user belongs to
	Role         RoleType  `json:"role"`                 // Application role
	IsActive     bool      `json:"is_active"`            // Inactive users cannot authenticate
	PasswordHash string    `json:"-"`                    // Hashed password, empty for OAuth-only users - never serialize
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
