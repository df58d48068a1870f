package app

import (
	"fmt"
	"strings"

	"github.com/charlesng35/notifyd/pkg/crypto"
)

const jwtSecretBytes = 48

// JWTSecretKey names the generated JWT secret in the map returned by ApplyRuntimeDefaults.
const JWTSecretKey = "auth.jwt.secret"

// ApplyRuntimeDefaults ensures critical secrets are populated even when no configuration file is supplied.
// It returns a map describing which keys were generated so callers can log the event without exposing values.
// A generated JWT secret is only a candidate: callers persist it so every replica and restart agrees.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)

	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		secret, err := crypto.GenerateToken(jwtSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = secret
		generated[JWTSecretKey] = true
	}

	return generated, nil
}
