// Package auth guards the control API with username/password login and JWT
// session tokens.
package auth

import (
	"errors"
	"os"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAuthDisabled       = errors.New("authentication is disabled")
)

// Authenticator handles user authentication
type Authenticator struct {
	enabled      bool
	username     string
	passwordHash []byte
	jwtManager   *JWTManager
}

// Config holds authenticator settings. Password may be plaintext or an
// existing bcrypt hash.
type Config struct {
	Enabled  bool
	Username string
	Password string
}

// ConfigFromEnv reads AUTH_ENABLED, AUTH_USERNAME and AUTH_PASSWORD.
func ConfigFromEnv() Config {
	username := os.Getenv("AUTH_USERNAME")
	if username == "" {
		username = "admin"
	}
	return Config{
		Enabled:  os.Getenv("AUTH_ENABLED") == "true",
		Username: username,
		Password: os.Getenv("AUTH_PASSWORD"),
	}
}

// NewAuthenticator creates an authenticator backed by the given JWT manager.
func NewAuthenticator(cfg Config, jwtManager *JWTManager) *Authenticator {
	var passwordHash []byte
	if cfg.Enabled && cfg.Password != "" {
		// Check if password is already a bcrypt hash
		if len(cfg.Password) == 60 && cfg.Password[0] == '$' {
			passwordHash = []byte(cfg.Password)
		} else {
			hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
			if err == nil {
				passwordHash = hash
			}
		}
	}

	return &Authenticator{
		enabled:      cfg.Enabled,
		username:     cfg.Username,
		passwordHash: passwordHash,
		jwtManager:   jwtManager,
	}
}

// IsEnabled returns whether authentication is enabled
func (a *Authenticator) IsEnabled() bool {
	return a.enabled
}

// Authenticate validates credentials and returns a JWT token
func (a *Authenticator) Authenticate(username, password string) (string, int64, error) {
	if !a.enabled {
		return "", 0, ErrAuthDisabled
	}

	if username != a.username {
		return "", 0, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return "", 0, ErrInvalidCredentials
	}

	token, expiresAt, err := a.jwtManager.GenerateToken(username)
	if err != nil {
		return "", 0, err
	}

	return token, expiresAt.Unix(), nil
}

// ValidateToken validates a JWT token
func (a *Authenticator) ValidateToken(token string) (*Claims, error) {
	return a.jwtManager.ValidateToken(token)
}

// HashPassword creates a bcrypt hash of a password (utility function)
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
