package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

const (
	maxNameLength        = 100
	maxTitleLength       = 200
	maxDescriptionLength = 1000
	maxNotifyDaysBefore  = 365
)

// maxAmount bounds money inputs to what a NUMERIC(14,2) column holds
var maxAmount = decimal.RequireFromString("999999999999.99")

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NormalizeEmail lowercases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks if an email address is valid
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ValidationError{Field: "email", Message: "email is required"}
	}
	if !emailRegex.MatchString(email) {
		return ValidationError{Field: "email", Message: "invalid email format"}
	}
	return nil
}

// ValidatePassword checks if a password meets requirements
func ValidatePassword(password string) error {
	if password == "" {
		return ValidationError{Field: "password", Message: "password is required"}
	}
	if len(password) < 8 {
		return ValidationError{Field: "password", Message: "password must be at least 8 characters"}
	}
	if len(password) > 72 {
		return ValidationError{Field: "password", Message: "password must be at most 72 bytes"}
	}
	return nil
}

// ValidateName checks a person, family or category name
func ValidateName(name string) error {
	return validateText("name", name, 2, maxNameLength)
}

// ValidateTitle checks a reminder or budget title
func ValidateTitle(title string) error {
	return validateText("title", title, 1, maxTitleLength)
}

// ValidateDescription checks optional free text
func ValidateDescription(description string) error {
	if len(description) > maxDescriptionLength {
		return ValidationError{Field: "description", Message: fmt.Sprintf("description must be at most %d characters", maxDescriptionLength)}
	}
	return nil
}

func validateText(field, value string, minLen, maxLen int) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return ValidationError{Field: field, Message: field + " is required"}
	}
	if len(value) < minLen {
		return ValidationError{Field: field, Message: fmt.Sprintf("%s must be at least %d characters", field, minLen)}
	}
	if len(value) > maxLen {
		return ValidationError{Field: field, Message: fmt.Sprintf("%s must be at most %d characters", field, maxLen)}
	}
	return nil
}

// ValidateAmount checks that a money amount is positive, has at most two decimals and fits storage
func ValidateAmount(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ValidationError{Field: field, Message: "must be greater than zero"}
	}
	if amount.Exponent() < -2 && !amount.Equal(amount.Round(2)) {
		return ValidationError{Field: field, Message: "must have at most two decimal places"}
	}
	if amount.GreaterThan(maxAmount) {
		return ValidationError{Field: field, Message: "is too large"}
	}
	return nil
}

// ValidateAlertThreshold checks a budget alert threshold percentage
func ValidateAlertThreshold(threshold int) error {
	if threshold < 1 || threshold > 100 {
		return ValidationError{Field: "alertThreshold", Message: "must be between 1 and 100"}
	}
	return nil
}

// ValidateNotifyDaysBefore checks a reminder's notification lead time
func ValidateNotifyDaysBefore(days int) error {
	if days < 0 || days > maxNotifyDaysBefore {
		return ValidationError{Field: "notifyDaysBefore", Message: fmt.Sprintf("must be between 0 and %d", maxNotifyDaysBefore)}
	}
	return nil
}

// ValidateDate checks that a required date was provided
func ValidateDate(field string, t time.Time) error {
	if t.IsZero() {
		return ValidationError{Field: field, Message: field + " is required"}
	}
	return nil
}

// ParseMonth parses a YYYY-MM month. An empty string yields the zero time.
func ParseMonth(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return time.Time{}, ValidationError{Field: "month", Message: "must be formatted as YYYY-MM"}
	}
	return t, nil
}

// First returns the first non-nil error
func First(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
