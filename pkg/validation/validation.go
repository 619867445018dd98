package validation

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

var (
	phonePattern    = regexp.MustCompile(`^[1-9][0-9]{5,15}$`)
	instancePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)
)

// ValidateInstanceName accepts 1-64 characters of letters, digits, '_', '-' and
// '.', starting with a letter or digit. Names end up in URL paths and log fields.
func ValidateInstanceName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("instance is required")
	}
	if !instancePattern.MatchString(name) {
		return errors.New("instance must be 1-64 characters of letters, digits, '_', '-' or '.'")
	}
	return nil
}

// ValidatePhone ensures international format (no leading 0, digits only, length 6-16).
func ValidatePhone(phone string) error {
	trimmed := strings.TrimSpace(phone)
	if trimmed == "" {
		return errors.New("phone number cannot be empty")
	}
	trimmed = strings.TrimPrefix(trimmed, "+")
	if strings.HasPrefix(trimmed, "0") {
		return errors.New("phone number must be in international format without leading 0")
	}
	if !phonePattern.MatchString(trimmed) {
		return errors.New("phone number must be digits only and at least 6 characters")
	}
	return nil
}

// ValidateRecipient ensures a send target is present. Bare numbers are checked
// as phones, full JIDs are left to the address parser.
func ValidateRecipient(to string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return errors.New("to is required")
	}
	if strings.Contains(to, "@") {
		return nil
	}
	return ValidatePhone(to)
}

// ValidateWebhookURL accepts an empty value (disables the hook) or an absolute
// http(s) URL.
func ValidateWebhookURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || u.Host == "" {
		return errors.New("url must be valid")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("url must use http or https")
	}
	return nil
}
