package config

import (
	"fmt"
	"log"
)

func MustNonEmpty(value, envName string) {
	if value == "" {
		log.Fatalf("missing required env %s", envName)
	}
}

func MustNonEmptyBytes(value []byte, envName string) {
	if len(value) == 0 {
		log.Fatalf("missing required env %s", envName)
	}
}

// Validate reports the first setting that the selected modes cannot run without.
func (c Config) Validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("missing required env BACKEND_URL")
	}
	switch c.CartStorage {
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("missing required env REDIS_ADDR")
		}
	case "sql":
		if c.DatabaseURL == "" {
			return fmt.Errorf("missing required env DATABASE_URL")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown CART_STORAGE %q", c.CartStorage)
	}
	switch c.IdentityMode {
	case "remote":
		if c.IdentityURL == "" {
			return fmt.Errorf("missing required env IDENTITY_URL")
		}
	case "local":
		if len(c.IdentitySecret) == 0 {
			return fmt.Errorf("missing required env IDENTITY_SECRET")
		}
	default:
		return fmt.Errorf("unknown IDENTITY_MODE %q", c.IdentityMode)
	}
	return nil
}
