// Package validation checks user supplied credentials, hosts and paths.
package validation

import (
	"errors"
	"path/filepath"
	"strings"
	"unicode"
)

var (
	ErrPasswordTooShort    = errors.New("password must be at least 12 characters")
	ErrPasswordNoUppercase = errors.New("password must contain at least one uppercase letter")
	ErrPasswordNoLowercase = errors.New("password must contain at least one lowercase letter")
	ErrPasswordNoDigit     = errors.New("password must contain at least one digit")
	ErrPasswordCommon      = errors.New("password is too common, please choose a stronger password")
	ErrInputTooLong        = errors.New("input exceeds maximum length")
	ErrInputInvalid        = errors.New("input contains invalid characters")
	ErrPathNotAbsolute     = errors.New("path must be absolute")
)

// PasswordPolicy defines password requirements for the API user.
type PasswordPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireDigit     bool
	CheckCommon      bool
}

func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:        12,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireDigit:     true,
		CheckCommon:      true,
	}
}

var commonPasswords = map[string]bool{
	"password":     true,
	"password1":    true,
	"password123":  true,
	"123456789012": true,
	"qwertyuiop12": true,
	"changeme":     true,
	"admin":        true,
	"letmein":      true,
	"welcome":      true,
	"iloveyou":     true,
	"modbackup":    true,
}

type charClasses struct {
	upper, lower, digit, special bool
}

func classify(s string) charClasses {
	var c charClasses
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			c.upper = true
		case unicode.IsLower(r):
			c.lower = true
		case unicode.IsDigit(r):
			c.digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			c.special = true
		}
	}
	return c
}

// ValidatePassword validates a password against the policy.
func ValidatePassword(password string, policy PasswordPolicy) error {
	if policy.CheckCommon && commonPasswords[strings.ToLower(password)] {
		return ErrPasswordCommon
	}
	if len(password) < policy.MinLength {
		return ErrPasswordTooShort
	}

	c := classify(password)
	if policy.RequireUppercase && !c.upper {
		return ErrPasswordNoUppercase
	}
	if policy.RequireLowercase && !c.lower {
		return ErrPasswordNoLowercase
	}
	if policy.RequireDigit && !c.digit {
		return ErrPasswordNoDigit
	}
	return nil
}

// PasswordStrength returns a score from 0-100.
func PasswordStrength(password string) int {
	if commonPasswords[strings.ToLower(password)] {
		return 0
	}

	score := 0
	switch n := len(password); {
	case n >= 20:
		score += 40
	case n >= 16:
		score += 30
	case n >= 12:
		score += 20
	case n >= 8:
		score += 10
	}

	c := classify(password)
	for _, ok := range []bool{c.upper, c.lower, c.digit, c.special} {
		if ok {
			score += 15
		}
	}

	if score > 100 {
		score = 100
	}
	return score
}

// ValidateHost accepts a hostname, IP address or bucket name.
func ValidateHost(host string) error {
	if len(host) > 253 {
		return ErrInputTooLong
	}
	if host == "" || strings.ContainsAny(host, "/\\ \t\r\n\x00") {
		return ErrInputInvalid
	}
	return nil
}

// ValidateArchivePath accepts an absolute path without control characters.
func ValidateArchivePath(path string) error {
	if strings.ContainsAny(path, "\x00\n\r") {
		return ErrInputInvalid
	}
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}
	return nil
}
