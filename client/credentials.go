package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	credDirName  = ".taskctl"
	credFileName = "credentials.json"
	TokenEnv     = "TASKCTL_TOKEN"
)

type Credentials struct {
	Server    string     `json:"server"`
	Token     string     `json:"token"`
	Source    string     `json:"source"` // "env" | "file"
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the stored token is past its expiry.
func (c *Credentials) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

func CredentialsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home: %w", err)
	}
	return filepath.Join(home, credDirName, credFileName), nil
}

// LoadCredentials returns the token from TASKCTL_TOKEN or the credentials
// file, or nil when neither is set.
func LoadCredentials() (*Credentials, error) {
	if env := strings.TrimSpace(os.Getenv(TokenEnv)); env != "" {
		return &Credentials{Token: stripBearer(env), Source: "env"}, nil
	}

	p, err := CredentialsPath()
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	var creds Credentials
	if err := json.Unmarshal(b, &creds); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	creds.Token = stripBearer(creds.Token)
	creds.Source = "file"
	return &creds, nil
}

func SaveCredentials(server, token string, expires time.Time) error {
	token = stripBearer(strings.TrimSpace(token))
	if token == "" {
		return errors.New("empty token")
	}
	p, err := CredentialsPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	creds := Credentials{
		Server:    server,
		Token:     token,
		Source:    "file",
		CreatedAt: time.Now(),
	}
	if !expires.IsZero() {
		creds.ExpiresAt = &expires
	}
	b, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.WriteFile(p, b, 0o600); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func DeleteCredentials() error {
	p, err := CredentialsPath()
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove: %w", err)
	}
	return nil
}

func stripBearer(s string) string {
	if strings.HasPrefix(strings.ToLower(s), "bearer ") {
		return strings.TrimSpace(s[7:])
	}
	return s
}
