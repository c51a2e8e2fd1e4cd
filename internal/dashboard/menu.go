package dashboard

import (
	_ "embed"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/Skotchmaster/pharmacy_shop/internal/role"
)

//go:embed menu.yaml
var defaultMenu []byte

type Entry struct {
	ID    string      `yaml:"id" json:"id"`
	Label string      `yaml:"label" json:"label"`
	Path  string      `yaml:"path" json:"path"`
	Roles []role.Role `yaml:"roles" json:"-"`
}

type Menu struct {
	entries []Entry
}

// Load parses a menu document and rejects entries naming unknown roles.
func Load(doc []byte) (*Menu, error) {
	var entries []Entry
	if err := yaml.Unmarshal(doc, &entries); err != nil {
		return nil, fmt.Errorf("parse menu: %w", err)
	}
	for _, e := range entries {
		if e.ID == "" || e.Path == "" {
			return nil, fmt.Errorf("menu entry %q: id and path are required", e.Label)
		}
		for _, r := range e.Roles {
			if !r.Valid() {
				return nil, fmt.Errorf("menu entry %q: %w: %q", e.ID, role.ErrUnknownRole, r)
			}
		}
	}
	return &Menu{entries: entries}, nil
}

func Default() *Menu {
	m, err := Load(defaultMenu)
	if err != nil {
		panic(err)
	}
	return m
}

// For returns the entries visible to r. An unresolved role sees nothing.
func (m *Menu) For(r role.Role) []Entry {
	out := []Entry{}
	if r == "" {
		return out
	}
	for _, e := range m.entries {
		if slices.Contains(e.Roles, r) {
			out = append(out, e)
		}
	}
	return out
}
