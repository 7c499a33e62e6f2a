package services

import (
	"os"
	"strings"
)

// Credential resolves an API key at the moment a request is made so rotated
// keys take effect without a restart.
type Credential func() (string, bool)

// StaticCredential always returns key.
func StaticCredential(key string) Credential {
	key = strings.TrimSpace(key)
	return func() (string, bool) {
		return key, key != ""
	}
}

// EnvCredential prefers the configured value and falls back to envVar.
func EnvCredential(configured, envVar string) Credential {
	configured = strings.TrimSpace(configured)
	return func() (string, bool) {
		if configured != "" {
			return configured, true
		}
		if envVar == "" {
			return "", false
		}
		value, ok := os.LookupEnv(envVar)
		value = strings.TrimSpace(value)
		return value, ok && value != ""
	}
}

// Resolve returns the key or an ErrConfiguration error naming service.
func (c Credential) Resolve(service string) (string, error) {
	if c == nil {
		return "", Wrap(ErrConfiguration, service, "credential", "api key not configured", nil)
	}
	key, ok := c()
	if !ok {
		return "", Wrap(ErrConfiguration, service, "credential", "api key not configured", nil)
	}
	return key, nil
}
