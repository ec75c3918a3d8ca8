package utils

import (
	"fmt"
	"regexp"
	"strings"
)

const maxTitleLength = 200

// ValidateTitle validates a request title
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("title must not be empty")
	}
	if len(title) > maxTitleLength {
		return fmt.Errorf("title exceeds %d characters", maxTitleLength)
	}
	return nil
}

// ValidateAmount validates a request amount in minor currency units
func ValidateAmount(amount int64) error {
	if amount < 0 {
		return fmt.Errorf("amount must not be negative: %d", amount)
	}
	return nil
}

// ValidateEmail validates an email address
func ValidateEmail(email string) error {
	emailRegex := regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

// SanitizeString removes control characters from user-provided text,
// keeping tabs and newlines
func SanitizeString(s string) string {
	return regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`).ReplaceAllString(s, "")
}
