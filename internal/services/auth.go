package services

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/pandeptwidyaop/modbackup/internal/config"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAuthNotConfigured  = errors.New("auth.password_hash is not set")
)

// AuthService checks API credentials against the configured bcrypt hash.
type AuthService struct {
	cfg *config.Config
}

func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{cfg: cfg}
}

func (s *AuthService) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func (s *AuthService) CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// Configured reports whether a password hash is set.
func (s *AuthService) Configured() bool {
	return s.cfg.Auth.PasswordHash != ""
}

// Authenticate verifies a username and password.
func (s *AuthService) Authenticate(username, password string) error {
	if !s.Configured() {
		return ErrAuthNotConfigured
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.cfg.Auth.Username)) == 1
	passOK := s.CheckPassword(password, s.cfg.Auth.PasswordHash)
	if !userOK || !passOK {
		return ErrInvalidCredentials
	}
	return nil
}
