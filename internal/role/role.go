package role

import (
	"errors"
	"fmt"
	"strings"
)

type Role string

const (
	User   Role = "user"
	Seller Role = "seller"
	Admin  Role = "admin"
)

var (
	ErrUnknownRole = errors.New("unknown role")
	ErrNoEmail     = errors.New("no authenticated email")
	ErrClosed      = errors.New("role resolver closed")
	ErrStale       = errors.New("identity changed while role was loading")
)

// ParseRole accepts only the closed set of roles. Anything else is an error,
// never a fallback role.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.TrimSpace(s)); r {
	case User, Seller, Admin:
		return r, nil
	}
	return "", fmt.Errorf("%q: %w", s, ErrUnknownRole)
}

func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

func (r Role) String() string { return string(r) }
